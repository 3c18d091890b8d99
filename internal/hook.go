package internal

import (
	"context"
	"log/slog"
)

// CommitHook observes every snapshot committed through a Serializer. Hooks
// run after the lock token is released and cannot fail the commit.
type CommitHook func(ctx context.Context, snap *Snapshot)

// LogCommitHook records each commit on logger.
func LogCommitHook(logger *slog.Logger) CommitHook {
	return func(ctx context.Context, snap *Snapshot) {
		logger.InfoContext(ctx, "snapshot committed",
			slog.String("version", snap.ID),
			slog.String("parent", snap.ParentID),
			slog.String("author", snap.Author),
			slog.String("message", snap.Message),
			slog.Any("changed", snap.ChangedPaths))
	}
}

func runHooks(ctx context.Context, hooks []CommitHook, snap *Snapshot, logger *slog.Logger) {
	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("commit hook panicked", slog.String("version", snap.ID), slog.Any("panic", r))
				}
			}()
			hook(ctx, snap)
		}()
	}
}
