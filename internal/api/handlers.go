package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/4thel00z/haconf/internal"
)

// AuthorHeader names the client that made a request.
const AuthorHeader = "X-Haconf-Author"

const requester = "http"

const maxBody = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	uc     *internal.UseCases
	logger *slog.Logger
}

func NewHandler(uc *internal.UseCases, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{uc: uc, logger: logger}
}

// filePath extracts the file path from the wildcard segment. Encoded slashes
// are accepted.
func filePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

func author(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	return r.Header.Get(AuthorHeader)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid body: %w", err)
	}
	return nil
}

// ListFiles handles GET /api/files?prefix=.
func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	out, err := h.uc.List.Execute(r.Context(), internal.ListInput{Prefix: r.URL.Query().Get("prefix")})
	if err != nil {
		h.writeError(w, r, "list files", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ReadFile handles GET /api/files/*.
func (h *Handler) ReadFile(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, "")
}

// VersionFile handles GET /api/versions/{id}/files/*.
func (h *Handler) VersionFile(w http.ResponseWriter, r *http.Request) {
	h.read(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request, at string) {
	p := filePath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	out, err := h.uc.Read.Execute(r.Context(), internal.ReadInput{Path: p, At: at})
	if err != nil {
		h.writeError(w, r, "read file", err)
		return
	}
	content, encoding := internal.EncodeContent(out.Content)
	writeJSON(w, http.StatusOK, FileResponse{Path: out.Path, Version: out.Version, Content: content, Encoding: encoding})
}

// WriteFile handles PUT /api/files/*.
func (h *Handler) WriteFile(w http.ResponseWriter, r *http.Request) {
	h.mutateFile(w, r, internal.MutationWrite)
}

// AppendFile handles POST /api/files/*.
func (h *Handler) AppendFile(w http.ResponseWriter, r *http.Request) {
	h.mutateFile(w, r, internal.MutationAppend)
}

// DeleteFile handles DELETE /api/files/*. The body is optional.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	h.mutateFile(w, r, internal.MutationDelete)
}

func (h *Handler) mutateFile(w http.ResponseWriter, r *http.Request, kind internal.MutationKind) {
	p := filePath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req FileRequest
	if err := decode(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	out, err := h.uc.Mutate.Execute(r.Context(), internal.MutateInput{
		Requests:  []internal.MutationSpec{{Kind: string(kind), Path: p, Content: req.Content, Encoding: req.Encoding}},
		Author:    author(r, req.Author),
		Message:   req.Message,
		Requester: requester,
		Reload:    req.Reload,
	})
	if err != nil {
		h.writeError(w, r, string(kind)+" file", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Mutate handles POST /api/mutations.
func (h *Handler) Mutate(w http.ResponseWriter, r *http.Request) {
	var in internal.MutateInput
	if err := decode(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	in.Author = author(r, in.Author)
	in.Requester = requester

	out, err := h.uc.Mutate.Execute(r.Context(), in)
	if err != nil {
		h.writeError(w, r, "mutate", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ListVersions handles GET /api/versions?limit=&before=.
func (h *Handler) ListVersions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 {
		limit = 50
	}

	out, err := h.uc.Log.Execute(r.Context(), internal.LogInput{Limit: limit, Before: q.Get("before")})
	if err != nil {
		h.writeError(w, r, "list versions", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Head handles GET /api/versions/head.
func (h *Handler) Head(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, "HEAD")
}

// GetVersion handles GET /api/versions/{id}?patch=1.
func (h *Handler) GetVersion(w http.ResponseWriter, r *http.Request) {
	h.show(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request, rev string) {
	out, err := h.uc.Show.Execute(r.Context(), internal.ShowInput{Rev: rev, Patch: flag(r, "patch")})
	if err != nil {
		h.writeError(w, r, "show version", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// VersionTree handles GET /api/versions/{id}/tree?prefix=.
func (h *Handler) VersionTree(w http.ResponseWriter, r *http.Request) {
	out, err := h.uc.List.Execute(r.Context(), internal.ListInput{
		Prefix: r.URL.Query().Get("prefix"),
		At:     chi.URLParam(r, "id"),
	})
	if err != nil {
		h.writeError(w, r, "version tree", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Diff handles GET /api/diff?from=&to=&patch=1.
func (h *Handler) Diff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("from") == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from is required"))
		return
	}
	out, err := h.uc.Diff.Execute(r.Context(), internal.DiffInput{
		From:  q.Get("from"),
		To:    q.Get("to"),
		Patch: flag(r, "patch"),
	})
	if err != nil {
		h.writeError(w, r, "diff", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Rollback handles POST /api/rollback.
func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	var in internal.RollbackInput
	if err := decode(w, r, &in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if in.Target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("target is required"))
		return
	}
	in.Author = author(r, in.Author)

	out, err := h.uc.Rollback.Execute(r.Context(), in)
	if err != nil {
		h.writeError(w, r, "rollback", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Status handles GET /api/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	out, err := h.uc.Status.Execute(r.Context())
	if err != nil {
		h.writeError(w, r, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func flag(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}
