package internal

import (
	"context"
	"errors"
	"fmt"
	"iter"
)

// HistoryEngine answers read-only queries over committed snapshots. It never
// takes the lock token.
type HistoryEngine struct {
	store HistoryReader
}

func NewHistoryEngine(store HistoryReader) *HistoryEngine {
	return &HistoryEngine{store: store}
}

// History returns up to limit snapshots, newest first. With before set, only
// snapshots strictly older than before are returned, so paging resumes from
// the last id of the previous page. A limit below one means no limit.
func (h *HistoryEngine) History(ctx context.Context, limit int, before string) ([]*Snapshot, error) {
	var out []*Snapshot
	for snap, err := range h.Walk(ctx, before) {
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Walk lazily yields snapshots newest first, starting at head or just below
// before.
func (h *HistoryEngine) Walk(ctx context.Context, before string) iter.Seq2[*Snapshot, error] {
	return func(yield func(*Snapshot, error) bool) {
		start, err := h.start(ctx, before)
		if err != nil {
			yield(nil, err)
			return
		}
		if start == "" {
			return
		}
		for snap, err := range h.store.Walk(ctx, start) {
			if !yield(snap, err) || err != nil {
				return
			}
		}
	}
}

func (h *HistoryEngine) start(ctx context.Context, before string) (string, error) {
	if before == "" {
		head, err := h.store.Head(ctx)
		if err != nil {
			return "", err
		}
		return head.ID, nil
	}
	snap, err := h.get(ctx, before)
	if err != nil {
		return "", err
	}
	return snap.ParentID, nil
}

// Get returns one snapshot.
func (h *HistoryEngine) Get(ctx context.Context, id string) (*Snapshot, error) {
	return h.get(ctx, id)
}

func (h *HistoryEngine) Head(ctx context.Context) (*Snapshot, error) {
	return h.store.Head(ctx)
}

type diffOptions struct {
	patch bool
}

type DiffOption func(*diffOptions)

// WithPatch attaches a line patch to every entry.
func WithPatch() DiffOption {
	return func(o *diffOptions) { o.patch = true }
}

// Diff lists the files that differ between two snapshots, sorted by path.
func (h *HistoryEngine) Diff(ctx context.Context, from, to string, opts ...DiffOption) ([]DiffEntry, error) {
	var o diffOptions
	for _, opt := range opts {
		opt(&o)
	}

	fromSnap, err := h.get(ctx, from)
	if err != nil {
		return nil, err
	}
	toSnap, err := h.get(ctx, to)
	if err != nil {
		return nil, err
	}

	var entries []DiffEntry
	switch {
	case fromSnap.ID == toSnap.ID:
		return []DiffEntry{}, nil
	case toSnap.ParentID == fromSnap.ID:
		entries, err = h.store.Changes(ctx, toSnap.ID)
	default:
		entries, err = h.store.DiffTrees(ctx, fromSnap.ID, toSnap.ID)
	}
	if err != nil {
		return nil, err
	}

	if o.patch {
		for i := range entries {
			if err := h.attachPatch(ctx, fromSnap.ID, toSnap.ID, &entries[i]); err != nil {
				return nil, err
			}
		}
	}
	return entries, nil
}

func (h *HistoryEngine) attachPatch(ctx context.Context, from, to string, e *DiffEntry) error {
	p := Path(e.Path)
	var before, after []byte
	var err error

	if e.Kind != ChangeAdded {
		if before, err = h.store.ReadFileAt(ctx, from, p); err != nil {
			return fmt.Errorf("patch %s: %w", p, err)
		}
		if before == nil {
			before = []byte{}
		}
	}
	if e.Kind != ChangeRemoved {
		if after, err = h.store.ReadFileAt(ctx, to, p); err != nil {
			return fmt.Errorf("patch %s: %w", p, err)
		}
		if after == nil {
			after = []byte{}
		}
	}

	e.Patch = linePatch(e.Path, before, after)
	return nil
}

// ReadFileAt returns p as recorded in id.
func (h *HistoryEngine) ReadFileAt(ctx context.Context, id string, p Path) ([]byte, error) {
	if _, err := h.get(ctx, id); err != nil {
		return nil, err
	}
	return h.store.ReadFileAt(ctx, id, p)
}

func (h *HistoryEngine) get(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := h.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, &VersionError{ID: id}
	}
	return snap, err
}
