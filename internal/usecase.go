package internal

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// Use case input/output DTOs

type SnapshotOutput struct {
	ID           string    `json:"id"`
	ParentID     string    `json:"parent_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Author       string    `json:"author"`
	Message      string    `json:"message"`
	ChangedPaths []string  `json:"changed_paths"`
}

func NewSnapshotOutput(s *Snapshot) SnapshotOutput {
	paths := s.ChangedPaths
	if paths == nil {
		paths = []string{}
	}
	return SnapshotOutput{
		ID:           s.ID,
		ParentID:     s.ParentID,
		Timestamp:    s.Timestamp,
		Author:       s.Author,
		Message:      s.Message,
		ChangedPaths: paths,
	}
}

type DiffEntryOutput struct {
	Path  string `json:"path"`
	Kind  string `json:"change_kind"`
	Patch string `json:"patch,omitempty"`
}

func newDiffEntryOutputs(entries []DiffEntry) []DiffEntryOutput {
	out := make([]DiffEntryOutput, len(entries))
	for i, e := range entries {
		out[i] = DiffEntryOutput{Path: e.Path, Kind: string(e.Kind), Patch: e.Patch}
	}
	return out
}

// MutationSpec is one request as callers send it. Content is taken as-is
// unless Encoding is "base64".
type MutationSpec struct {
	Kind     string `json:"kind"`
	Path     string `json:"path"`
	Content  string `json:"content,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

type MutateInput struct {
	Requests  []MutationSpec `json:"requests"`
	Author    string         `json:"author,omitempty"`
	Message   string         `json:"message,omitempty"`
	Requester string         `json:"-"`
	Reload    []string       `json:"reload,omitempty"`
}

type ReloadOutput struct {
	Component string `json:"component"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

type MutateOutput struct {
	Snapshot SnapshotOutput `json:"snapshot"`
	Reloads  []ReloadOutput `json:"reloads,omitempty"`
}

type ReadInput struct {
	Path string
	At   string
}

type ReadOutput struct {
	Path    string `json:"path"`
	Version string `json:"version,omitempty"`
	Content []byte `json:"content"`
}

type ListInput struct {
	Prefix string
	At     string
}

type FileOutput struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

type ListOutput struct {
	Version string       `json:"version,omitempty"`
	Files   []FileOutput `json:"files"`
}

type LogInput struct {
	Limit  int
	Before string
}

type LogOutput struct {
	Snapshots []SnapshotOutput `json:"snapshots"`
	Next      string           `json:"next,omitempty"`
}

type ShowInput struct {
	Rev   string
	Patch bool
}

type ShowOutput struct {
	Snapshot SnapshotOutput    `json:"snapshot"`
	Changes  []DiffEntryOutput `json:"changes"`
}

type DiffInput struct {
	From  string
	To    string
	Patch bool
}

type DiffOutput struct {
	From    string            `json:"from"`
	To      string            `json:"to"`
	Entries []DiffEntryOutput `json:"entries"`
}

type RollbackInput struct {
	Target         string   `json:"target"`
	Author         string   `json:"author,omitempty"`
	SkipValidation bool     `json:"skip_validation,omitempty"`
	Reload         []string `json:"reload,omitempty"`
}

type StatusOutput struct {
	Head    SnapshotOutput    `json:"head"`
	Clean   bool              `json:"clean"`
	Changes []DiffEntryOutput `json:"changes"`
}

// Use cases

type MutateUseCase struct {
	core *Core
}

func NewMutateUseCase(core *Core) *MutateUseCase {
	return &MutateUseCase{core: core}
}

func (uc *MutateUseCase) Execute(ctx context.Context, input MutateInput) (*MutateOutput, error) {
	if len(input.Requests) == 0 {
		return nil, fmt.Errorf("%w: no requests", ErrInvalidRequest)
	}

	requests := make([]MutationRequest, len(input.Requests))
	for i, spec := range input.Requests {
		req, err := spec.request()
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i, err)
		}
		req.Context.Requester = input.Requester
		requests[i] = req
	}

	author := uc.author(input.Author)

	var snap *Snapshot
	var err error
	if len(requests) == 1 {
		snap, err = uc.core.Coalescer.Submit(ctx, requests[0], author, input.Message)
	} else {
		snap, err = uc.core.Serializer.Perform(ctx, requests, author, input.Message)
	}
	if err != nil {
		return nil, err
	}

	return &MutateOutput{
		Snapshot: NewSnapshotOutput(snap),
		Reloads:  reloadAll(ctx, uc.core.Reloader, input.Reload),
	}, nil
}

func (uc *MutateUseCase) author(a string) string {
	if a != "" {
		return a
	}
	return uc.core.Config.Author
}

func (m MutationSpec) request() (MutationRequest, error) {
	kind := MutationKind(m.Kind)
	if !kind.Valid() {
		return MutationRequest{}, fmt.Errorf("%w: unknown mutation kind %q", ErrInvalidRequest, m.Kind)
	}
	p, err := NewPath(m.Path)
	if err != nil {
		return MutationRequest{}, err
	}
	content, err := DecodeContent(m.Content, m.Encoding)
	if err != nil {
		return MutationRequest{}, err
	}
	switch kind {
	case MutationAppend:
		return AppendRequest(p, content), nil
	case MutationDelete:
		return DeleteRequest(p), nil
	}
	return WriteRequest(p, content), nil
}

// EncodingBase64 marks content carried as standard base64.
const EncodingBase64 = "base64"

// EncodeContent returns data as a string fit for a JSON body, and the
// encoding used: empty for UTF-8 text, EncodingBase64 for anything else.
func EncodeContent(data []byte) (string, string) {
	if utf8.Valid(data) && !isBinary(data) {
		return string(data), ""
	}
	return base64.StdEncoding.EncodeToString(data), EncodingBase64
}

// DecodeContent reverses EncodeContent.
func DecodeContent(content, encoding string) ([]byte, error) {
	switch encoding {
	case "":
		return []byte(content), nil
	case EncodingBase64:
		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, fmt.Errorf("%w: content: %w", ErrInvalidRequest, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%w: unknown encoding %q", ErrInvalidRequest, encoding)
}

func reloadAll(ctx context.Context, r Reloader, components []string) []ReloadOutput {
	if len(components) == 0 {
		return nil
	}
	out := make([]ReloadOutput, 0, len(components))
	for _, c := range components {
		res := ReloadOutput{Component: c}
		switch {
		case r == nil:
			res.Error = "platform not configured"
		default:
			if err := r.ReloadComponent(ctx, c); err != nil {
				res.Error = err.Error()
			} else {
				res.OK = true
			}
		}
		out = append(out, res)
	}
	return out
}

type ReadUseCase struct {
	core *Core
}

func NewReadUseCase(core *Core) *ReadUseCase {
	return &ReadUseCase{core: core}
}

// Execute reads the live file, or the version recorded in input.At.
func (uc *ReadUseCase) Execute(ctx context.Context, input ReadInput) (*ReadOutput, error) {
	p, err := NewPath(input.Path)
	if err != nil {
		return nil, err
	}

	if input.At == "" {
		data, err := uc.core.Serializer.ReadFile(ctx, p)
		if err != nil {
			return nil, err
		}
		return &ReadOutput{Path: p.String(), Content: data}, nil
	}

	snap, err := uc.core.Store.Resolve(ctx, input.At)
	if err != nil {
		return nil, err
	}
	data, err := uc.core.History.ReadFileAt(ctx, snap.ID, p)
	if err != nil {
		return nil, err
	}
	return &ReadOutput{Path: p.String(), Version: snap.ID, Content: data}, nil
}

type ListUseCase struct {
	core *Core
}

func NewListUseCase(core *Core) *ListUseCase {
	return &ListUseCase{core: core}
}

func (uc *ListUseCase) Execute(ctx context.Context, input ListInput) (*ListOutput, error) {
	var files []FileInfo
	var version string
	var err error

	if input.At == "" {
		files, err = uc.core.Serializer.ListFiles(ctx, input.Prefix)
	} else {
		var snap *Snapshot
		if snap, err = uc.core.Store.Resolve(ctx, input.At); err != nil {
			return nil, err
		}
		version = snap.ID
		files, err = uc.core.Store.Files(ctx, snap.ID)
	}
	if err != nil {
		return nil, err
	}

	out := &ListOutput{Version: version, Files: []FileOutput{}}
	for _, f := range files {
		if Path(f.Path).HasPrefix(input.Prefix) {
			out.Files = append(out.Files, FileOutput{Path: f.Path, Size: f.Size})
		}
	}
	return out, nil
}

type LogUseCase struct {
	core *Core
}

func NewLogUseCase(core *Core) *LogUseCase {
	return &LogUseCase{core: core}
}

func (uc *LogUseCase) Execute(ctx context.Context, input LogInput) (*LogOutput, error) {
	before := input.Before
	if before != "" {
		snap, err := uc.core.Store.Resolve(ctx, before)
		if err != nil {
			return nil, err
		}
		before = snap.ID
	}

	snaps, err := uc.core.History.History(ctx, input.Limit, before)
	if err != nil {
		return nil, err
	}

	out := &LogOutput{Snapshots: make([]SnapshotOutput, len(snaps))}
	for i, s := range snaps {
		out.Snapshots[i] = NewSnapshotOutput(s)
	}
	if n := len(snaps); input.Limit > 0 && n == input.Limit && !snaps[n-1].IsRoot() {
		out.Next = snaps[n-1].ID
	}
	return out, nil
}

type ShowUseCase struct {
	core *Core
}

func NewShowUseCase(core *Core) *ShowUseCase {
	return &ShowUseCase{core: core}
}

func (uc *ShowUseCase) Execute(ctx context.Context, input ShowInput) (*ShowOutput, error) {
	rev := input.Rev
	if rev == "" {
		rev = "HEAD"
	}
	snap, err := uc.core.Store.Resolve(ctx, rev)
	if err != nil {
		return nil, err
	}

	var changes []DiffEntry
	if snap.IsRoot() {
		changes, err = uc.core.Store.Changes(ctx, snap.ID)
		if err == nil && input.Patch {
			for i := range changes {
				data, readErr := uc.core.Store.ReadFileAt(ctx, snap.ID, Path(changes[i].Path))
				if readErr != nil {
					return nil, readErr
				}
				changes[i].Patch = linePatch(changes[i].Path, nil, data)
			}
		}
	} else {
		var opts []DiffOption
		if input.Patch {
			opts = append(opts, WithPatch())
		}
		changes, err = uc.core.History.Diff(ctx, snap.ParentID, snap.ID, opts...)
	}
	if err != nil {
		return nil, err
	}

	return &ShowOutput{Snapshot: NewSnapshotOutput(snap), Changes: newDiffEntryOutputs(changes)}, nil
}

type DiffUseCase struct {
	core *Core
}

func NewDiffUseCase(core *Core) *DiffUseCase {
	return &DiffUseCase{core: core}
}

// Execute diffs two revisions. An empty To means head.
func (uc *DiffUseCase) Execute(ctx context.Context, input DiffInput) (*DiffOutput, error) {
	to := input.To
	if to == "" {
		to = "HEAD"
	}
	fromSnap, err := uc.core.Store.Resolve(ctx, input.From)
	if err != nil {
		return nil, err
	}
	toSnap, err := uc.core.Store.Resolve(ctx, to)
	if err != nil {
		return nil, err
	}

	var opts []DiffOption
	if input.Patch {
		opts = append(opts, WithPatch())
	}
	entries, err := uc.core.History.Diff(ctx, fromSnap.ID, toSnap.ID, opts...)
	if err != nil {
		return nil, err
	}

	return &DiffOutput{From: fromSnap.ID, To: toSnap.ID, Entries: newDiffEntryOutputs(entries)}, nil
}

type RollbackUseCase struct {
	core *Core
}

func NewRollbackUseCase(core *Core) *RollbackUseCase {
	return &RollbackUseCase{core: core}
}

func (uc *RollbackUseCase) Execute(ctx context.Context, input RollbackInput) (*MutateOutput, error) {
	target, err := uc.core.Store.Resolve(ctx, input.Target)
	if err != nil {
		return nil, err
	}

	author := input.Author
	if author == "" {
		author = uc.core.Config.Author
	}

	var opts []RollbackOption
	if input.SkipValidation {
		opts = append(opts, SkipValidation())
	}

	snap, err := uc.core.Rollback.Rollback(ctx, target.ID, author, opts...)
	if err != nil {
		return nil, err
	}

	return &MutateOutput{
		Snapshot: NewSnapshotOutput(snap),
		Reloads:  reloadAll(ctx, uc.core.Reloader, input.Reload),
	}, nil
}

type StatusUseCase struct {
	core *Core
}

func NewStatusUseCase(core *Core) *StatusUseCase {
	return &StatusUseCase{core: core}
}

func (uc *StatusUseCase) Execute(ctx context.Context) (*StatusOutput, error) {
	head, err := uc.core.Store.Head(ctx)
	if err != nil {
		return nil, err
	}
	changes, err := uc.core.Serializer.Status(ctx)
	if err != nil {
		return nil, err
	}
	return &StatusOutput{
		Head:    NewSnapshotOutput(head),
		Clean:   len(changes) == 0,
		Changes: newDiffEntryOutputs(changes),
	}, nil
}

// UseCases bundles every use case of one Core.
type UseCases struct {
	Mutate   *MutateUseCase
	Read     *ReadUseCase
	List     *ListUseCase
	Log      *LogUseCase
	Show     *ShowUseCase
	Diff     *DiffUseCase
	Rollback *RollbackUseCase
	Status   *StatusUseCase
}

func NewUseCases(core *Core) *UseCases {
	return &UseCases{
		Mutate:   NewMutateUseCase(core),
		Read:     NewReadUseCase(core),
		List:     NewListUseCase(core),
		Log:      NewLogUseCase(core),
		Show:     NewShowUseCase(core),
		Diff:     NewDiffUseCase(core),
		Rollback: NewRollbackUseCase(core),
		Status:   NewStatusUseCase(core),
	}
}

// IsClientError reports whether err was caused by the caller's input rather
// than by the store. A rollback rejected by the platform is never the
// caller's fault, whatever the validator returned.
func IsClientError(err error) bool {
	switch {
	case errors.Is(err, ErrValidationRejected):
		return false
	case errors.Is(err, ErrPartialApplyReverted):
		return true
	}
	return errors.Is(err, ErrInvalidPath) || errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnknownVersion)
}
