package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
)

const rollbackRequester = "rollback"

// RollbackSource is what the rollback engine reads to plan a restore.
type RollbackSource interface {
	Get(ctx context.Context, id string) (*Snapshot, error)
	Head(ctx context.Context) (*Snapshot, error)
	DiffTrees(ctx context.Context, from, to string) ([]DiffEntry, error)
	ReadFileAt(ctx context.Context, id string, p Path) ([]byte, error)
	Dirty(ctx context.Context) ([]string, error)
	IgnoredAt(ctx context.Context, id string, p string) (bool, error)
}

// RollbackEngine restores earlier snapshots through the serializer, so a
// rollback is itself a snapshot and can be rolled back.
type RollbackEngine struct {
	serializer *Serializer
	store      RollbackSource
	validator  Validator
	logger     *slog.Logger
}

type RollbackEngineOption func(*RollbackEngine)

// WithValidator checks the restored tree with v before it is committed.
func WithValidator(v Validator) RollbackEngineOption {
	return func(r *RollbackEngine) { r.validator = v }
}

func WithRollbackLogger(logger *slog.Logger) RollbackEngineOption {
	return func(r *RollbackEngine) { r.logger = logger }
}

func NewRollbackEngine(s *Serializer, store RollbackSource, opts ...RollbackEngineOption) *RollbackEngine {
	r := &RollbackEngine{
		serializer: s,
		store:      store,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type rollbackOptions struct {
	skipValidation bool
}

type RollbackOption func(*rollbackOptions)

// SkipValidation commits the rollback without asking the validator.
func SkipValidation() RollbackOption {
	return func(o *rollbackOptions) { o.skipValidation = true }
}

// Rollback makes the working tree equal to target and commits it as a new
// snapshot. Rolling back to head still produces a snapshot.
func (r *RollbackEngine) Rollback(ctx context.Context, target, author string, opts ...RollbackOption) (*Snapshot, error) {
	var o rollbackOptions
	for _, opt := range opts {
		opt(&o)
	}

	snap, err := r.store.Get(ctx, target)
	if errors.Is(err, ErrNotFound) {
		rollbacksTotal.WithLabelValues(resultFailed).Inc()
		return nil, &VersionError{ID: target}
	}
	if err != nil {
		rollbacksTotal.WithLabelValues(resultFailed).Inc()
		return nil, err
	}

	b := Batch{
		Author:  author,
		Message: "rollback: restore " + snap.ID,
		Plan:    func(ctx context.Context) ([]MutationRequest, error) { return r.plan(ctx, snap.ID) },
	}
	if r.validator != nil && !o.skipValidation {
		b.PreCommit = func(ctx context.Context) error { return r.validate(ctx, snap.ID) }
	}

	result, err := r.serializer.Execute(ctx, b)
	switch {
	case err == nil:
		rollbacksTotal.WithLabelValues(resultCommitted).Inc()
		r.logger.Info("rollback committed",
			slog.String("target", snap.ID),
			slog.String("version", result.ID),
			slog.Int("changed", len(result.ChangedPaths)))
	case errors.Is(err, ErrValidationRejected):
		rollbacksTotal.WithLabelValues(resultRejected).Inc()
		r.logger.Warn("rollback rejected", slog.String("target", snap.ID), slog.Any("error", err))
	default:
		rollbacksTotal.WithLabelValues(resultFailed).Inc()
		r.logger.Error("rollback failed", slog.String("target", snap.ID), slog.Any("error", err))
	}
	return result, err
}

// plan runs under the lock token and computes the requests that turn the
// live tree into target: everything head differs on plus any uncommitted
// edits.
func (r *RollbackEngine) plan(ctx context.Context, target string) ([]MutationRequest, error) {
	head, err := r.store.Head(ctx)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]struct{})
	if head.ID != target {
		entries, err := r.store.DiffTrees(ctx, head.ID, target)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			paths[e.Path] = struct{}{}
		}
	}

	dirty, err := r.store.Dirty(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	for _, p := range dirty {
		paths[p] = struct{}{}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	requests := make([]MutationRequest, 0, len(sorted))
	for _, name := range sorted {
		p := Path(name)
		content, err := r.store.ReadFileAt(ctx, target, p)
		switch {
		case err == nil:
			requests = append(requests, r.request(WriteRequest(p, content)))
		case errors.Is(err, ErrNotFound):
			if _, statErr := r.serializer.fs.Stat(name); errors.Is(statErr, os.ErrNotExist) {
				continue
			}
			// Excluded by the target's own rules: leave it on disk, untracked.
			ignored, ignErr := r.store.IgnoredAt(ctx, target, name)
			if ignErr != nil {
				return nil, ignErr
			}
			if ignored {
				continue
			}
			requests = append(requests, r.request(DeleteRequest(p)))
		default:
			return nil, err
		}
	}

	r.logger.Debug("rollback planned",
		slog.String("target", target),
		slog.String("head", head.ID),
		slog.Int("requests", len(requests)))

	return requests, nil
}

func (r *RollbackEngine) request(req MutationRequest) MutationRequest {
	req.Context.Requester = rollbackRequester
	return req
}

func (r *RollbackEngine) validate(ctx context.Context, target string) error {
	res, err := r.validator.ValidateConfiguration(ctx)
	if err != nil {
		return &ValidationError{Target: target, Err: err}
	}
	if !res.Valid {
		return &ValidationError{Target: target, Details: res.Errors}
	}
	return nil
}
