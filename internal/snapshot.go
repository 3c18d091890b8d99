package internal

import (
	"context"
	"iter"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Snapshot is an immutable record of the working tree at one commit.
type Snapshot struct {
	ID           string
	ParentID     string // empty only for the root snapshot
	Timestamp    time.Time
	Author       string
	Message      string
	ChangedPaths []string
}

// IsRoot reports whether s has no parent.
func (s *Snapshot) IsRoot() bool {
	return s.ParentID == ""
}

type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

// DiffEntry is one file-level difference between two snapshots.
type DiffEntry struct {
	Path  string
	Kind  ChangeKind
	Patch string
}

func sortEntries(entries []DiffEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
}

func entryPaths(entries []DiffEntry) []string {
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.Path
	}
	return paths
}

// Tree is a fully materialized file tree keyed by slash-separated path.
type Tree map[string][]byte

// Paths returns the tree's paths in lexical order.
func (t Tree) Paths() []string {
	paths := make([]string, 0, len(t))
	for p := range t {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

type MutationKind string

const (
	MutationWrite  MutationKind = "write"
	MutationAppend MutationKind = "append"
	MutationDelete MutationKind = "delete"
)

func (k MutationKind) Valid() bool {
	switch k {
	case MutationWrite, MutationAppend, MutationDelete:
		return true
	}
	return false
}

// RequestContext identifies who submitted a mutation.
type RequestContext struct {
	RequestID string
	Requester string
}

// MutationRequest is one unit of work against the working tree.
type MutationRequest struct {
	Kind    MutationKind
	Path    Path
	Payload []byte
	Context RequestContext
}

func newRequest(kind MutationKind, p Path, payload []byte) MutationRequest {
	return MutationRequest{
		Kind:    kind,
		Path:    p,
		Payload: payload,
		Context: RequestContext{RequestID: uuid.Must(uuid.NewV7()).String()},
	}
}

// WriteRequest replaces the content of p.
func WriteRequest(p Path, content []byte) MutationRequest {
	return newRequest(MutationWrite, p, content)
}

// AppendRequest appends content to p, creating it if missing.
func AppendRequest(p Path, content []byte) MutationRequest {
	return newRequest(MutationAppend, p, content)
}

// DeleteRequest removes p.
func DeleteRequest(p Path) MutationRequest {
	return newRequest(MutationDelete, p, nil)
}

// SnapshotStore is the durable log of snapshots.
type SnapshotStore interface {
	Commit(ctx context.Context, author, message string, allowEmpty bool) (*Snapshot, error)
	Get(ctx context.Context, id string) (*Snapshot, error)
	Head(ctx context.Context) (*Snapshot, error)
	Materialize(ctx context.Context, id string) (Tree, error)
}

// HistoryReader is the read side used by the history engine.
type HistoryReader interface {
	Get(ctx context.Context, id string) (*Snapshot, error)
	Head(ctx context.Context) (*Snapshot, error)
	Walk(ctx context.Context, from string) iter.Seq2[*Snapshot, error]
	Changes(ctx context.Context, id string) ([]DiffEntry, error)
	DiffTrees(ctx context.Context, from, to string) ([]DiffEntry, error)
	ReadFileAt(ctx context.Context, id string, p Path) ([]byte, error)
}
