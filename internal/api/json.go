package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/4thel00z/haconf/internal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps domain errors onto HTTP status codes. A reverted batch or a
// rejected rollback keeps its own status whatever the underlying cause.
func statusFor(err error) int {
	switch {
	case errors.Is(err, internal.ErrPartialApplyReverted), errors.Is(err, internal.ErrValidationRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, internal.ErrNotFound), errors.Is(err, internal.ErrUnknownVersion):
		return http.StatusNotFound
	case errors.Is(err, internal.ErrInvalidPath), errors.Is(err, internal.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, internal.ErrEmptyStore), errors.Is(err, internal.ErrNotInitialized):
		return http.StatusConflict
	case errors.Is(err, internal.ErrLockTimeout):
		return http.StatusServiceUnavailable
	case errors.Is(err, internal.ErrStoreUnavailable):
		return http.StatusInsufficientStorage
	}
	return http.StatusInternalServerError
}

// writeError reports err to the client. Server-side failures are logged and
// masked.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), op+" failed", slog.String("error", msg))
		msg = "internal error"
	} else if status >= http.StatusInternalServerError {
		h.logger.WarnContext(r.Context(), op+" failed", slog.String("error", msg))
	}
	writeJSON(w, status, errorBody(msg))
}
