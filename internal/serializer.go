package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
)

// WorkingStore is a SnapshotStore whose snapshots are taken from a live
// working tree.
type WorkingStore interface {
	SnapshotStore
	Filesystem() billy.Filesystem
	Ignored(p string, isDir bool) bool
	ResetIndex(ctx context.Context) error
	WorkingChanges(ctx context.Context) ([]DiffEntry, error)
}

// Batch is one unit of work executed under the lock token.
type Batch struct {
	Requests []MutationRequest
	Author   string
	Message  string

	// Plan, if set, builds further requests once the lock is held, so it
	// observes the head that the batch will be committed on top of.
	Plan func(ctx context.Context) ([]MutationRequest, error)

	// PreCommit runs after every request is applied and before the commit.
	// An error reverts the batch and is returned unchanged.
	PreCommit func(ctx context.Context) error

	// SkipIfClean turns a batch that leaves the tree unchanged into
	// ErrCleanTree instead of an empty snapshot.
	SkipIfClean bool
}

// Serializer funnels every mutation of the working tree through a single
// lock token.
type Serializer struct {
	store       WorkingStore
	fs          billy.Filesystem
	lock        chan struct{}
	lockTimeout time.Duration
	hooks       []CommitHook
	logger      *slog.Logger
}

type SerializerOption func(*Serializer)

// WithLockTimeout bounds lock acquisition for callers whose context has no
// deadline. Zero waits forever.
func WithLockTimeout(d time.Duration) SerializerOption {
	return func(s *Serializer) { s.lockTimeout = d }
}

func WithCommitHook(hook CommitHook) SerializerOption {
	return func(s *Serializer) { s.hooks = append(s.hooks, hook) }
}

func WithSerializerLogger(logger *slog.Logger) SerializerOption {
	return func(s *Serializer) { s.logger = logger }
}

func NewSerializer(store WorkingStore, opts ...SerializerOption) *Serializer {
	s := &Serializer{
		store:  store,
		fs:     store.Filesystem(),
		lock:   make(chan struct{}, 1),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnCommit registers hook for every later commit. It must not be called
// concurrently with Execute.
func (s *Serializer) OnCommit(hook CommitHook) {
	s.hooks = append(s.hooks, hook)
}

// Perform applies requests in order and commits the result as one snapshot.
func (s *Serializer) Perform(ctx context.Context, requests []MutationRequest, author, message string) (*Snapshot, error) {
	return s.Execute(ctx, Batch{Requests: requests, Author: author, Message: message})
}

// Execute runs b under the lock token. Once the token is held, cancellation
// of ctx is ignored until the batch has either committed or been reverted.
func (s *Serializer) Execute(ctx context.Context, b Batch) (*Snapshot, error) {
	if err := s.acquire(ctx); err != nil {
		var timeout *LockTimeoutError
		if errors.As(err, &timeout) {
			mutationsTotal.WithLabelValues(resultTimeout).Inc()
			s.logger.Warn("lock timeout", slog.Duration("waited", timeout.Waited), slog.String("author", b.Author))
		} else {
			mutationsTotal.WithLabelValues(resultCanceled).Inc()
		}
		return nil, err
	}

	detached := context.WithoutCancel(ctx)
	snap, err := s.critical(detached, b)
	s.release()

	switch {
	case err == nil:
		mutationsTotal.WithLabelValues(resultCommitted).Inc()
		runHooks(detached, s.hooks, snap, s.logger)
	case errors.Is(err, ErrCleanTree):
		mutationsTotal.WithLabelValues(resultClean).Inc()
	default:
		mutationsTotal.WithLabelValues(resultReverted).Inc()
	}
	return snap, err
}

// ReadFile returns the live content of p.
func (s *Serializer) ReadFile(ctx context.Context, p Path) ([]byte, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	if s.store.Ignored(p.String(), false) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	data, err := readFile(s.fs, p.String())
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", p, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return data, nil
}

// ListFiles lists the live, tracked files below prefix in lexical order. An
// empty prefix lists the whole tree.
func (s *Serializer) ListFiles(ctx context.Context, prefix string) ([]FileInfo, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()

	prefix = strings.Trim(prefix, "/")
	var files []FileInfo
	err := walkFiles(s.fs, "", s.store.Ignored, func(p string, info os.FileInfo) error {
		if Path(p).HasPrefix(prefix) {
			files = append(files, FileInfo{Path: p, Size: info.Size()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	slices.SortFunc(files, func(a, b FileInfo) int { return strings.Compare(a.Path, b.Path) })
	return files, nil
}

// Status reports the live changes not yet captured by a snapshot.
func (s *Serializer) Status(ctx context.Context) ([]DiffEntry, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.store.WorkingChanges(ctx)
}

func (s *Serializer) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &LockTimeoutError{}
		}
		return err
	}

	start := time.Now()
	select {
	case s.lock <- struct{}{}:
		lockWaitSeconds.Observe(time.Since(start).Seconds())
		return nil
	default:
	}

	if _, ok := ctx.Deadline(); !ok && s.lockTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.lockTimeout)
		defer cancel()
	}

	select {
	case s.lock <- struct{}{}:
		lockWaitSeconds.Observe(time.Since(start).Seconds())
		return nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &LockTimeoutError{Waited: time.Since(start)}
		}
		return ctx.Err()
	}
}

func (s *Serializer) release() {
	<-s.lock
}

func (s *Serializer) critical(ctx context.Context, b Batch) (*Snapshot, error) {
	requests := b.Requests
	if b.Plan != nil {
		planned, err := b.Plan(ctx)
		if err != nil {
			return nil, err
		}
		requests = append(slices.Clone(requests), planned...)
	}

	message := b.Message
	if message == "" {
		message = describe(requests)
	}

	j := newJournal(s.fs)
	for i, req := range requests {
		if err := s.apply(j, req); err != nil {
			return nil, s.revert(j, &ApplyError{Index: i, Kind: req.Kind, Path: req.Path.String(), Err: err})
		}
	}
	batchRequests.Observe(float64(len(requests)))

	if b.PreCommit != nil {
		if err := b.PreCommit(ctx); err != nil {
			return nil, s.revert(j, err)
		}
	}

	start := time.Now()
	snap, err := s.store.Commit(ctx, b.Author, message, !b.SkipIfClean)
	commitDurationSeconds.Observe(time.Since(start).Seconds())
	if errors.Is(err, ErrCleanTree) {
		return nil, err
	}
	if err != nil {
		err = s.revert(j, err)
		if rerr := s.store.ResetIndex(ctx); rerr != nil {
			s.logger.Error("reset index failed", slog.Any("error", rerr))
			err = errors.Join(err, rerr)
		}
		return nil, err
	}

	s.logger.Info("mutation committed",
		slog.String("version", snap.ID),
		slog.String("author", snap.Author),
		slog.Int("requests", len(requests)),
		slog.Any("paths", j.paths()))

	return snap, nil
}

func (s *Serializer) revert(j *journal, cause error) error {
	if err := j.undo(); err != nil {
		s.logger.Error("revert incomplete", slog.Any("cause", cause), slog.Any("error", err))
		return errors.Join(cause, err)
	}
	s.logger.Warn("mutation reverted", slog.Any("error", cause), slog.Any("paths", j.paths()))
	return cause
}

func (s *Serializer) apply(j *journal, req MutationRequest) error {
	if !req.Kind.Valid() {
		return fmt.Errorf("%w: unknown mutation kind %q", ErrInvalidRequest, req.Kind)
	}
	p, err := NewPath(req.Path.String())
	if err != nil {
		return err
	}
	// Rollback requests restore paths recorded in a snapshot regardless of
	// the live ignore rules.
	if req.Context.Requester != rollbackRequester && s.store.Ignored(p.String(), false) {
		return fmt.Errorf("%w: %s is excluded from snapshots", ErrInvalidPath, p)
	}

	if err := j.record(p); err != nil {
		return err
	}

	switch req.Kind {
	case MutationWrite:
		return writeFileAtomic(s.fs, p.String(), req.Payload)

	case MutationAppend:
		current, err := readFile(s.fs, p.String())
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("read: %w", err)
		}
		return writeFileAtomic(s.fs, p.String(), append(current, req.Payload...))

	case MutationDelete:
		if err := s.fs.Remove(p.String()); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("%s: %w", p, ErrNotFound)
			}
			return fmt.Errorf("remove: %w", err)
		}
		s.pruneDirs(path.Dir(p.String()))
	}
	return nil
}

// pruneDirs removes dir and its parents while they are empty.
func (s *Serializer) pruneDirs(dir string) {
	for dir != "." && dir != "/" && dir != "" {
		infos, err := s.fs.ReadDir(dir)
		if err != nil || len(infos) > 0 {
			return
		}
		if err := s.fs.Remove(dir); err != nil {
			return
		}
		dir = path.Dir(dir)
	}
}

func describe(requests []MutationRequest) string {
	switch len(requests) {
	case 0:
		return "snapshot"
	case 1:
		return fmt.Sprintf("%s %s", requests[0].Kind, requests[0].Path)
	}
	return fmt.Sprintf("update %d files", len(requests))
}
