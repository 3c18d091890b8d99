package internal

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const autoMessage = "auto: external change"

// Watcher snapshots edits made to the working tree behind the serializer's
// back, such as changes from the platform's own UI.
type Watcher struct {
	serializer *Serializer
	root       string
	ignored    func(p string, isDir bool) bool
	debounce   time.Duration
	author     string
	logger     *slog.Logger
}

type WatcherOption func(*Watcher)

func WithWatchLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

func WithWatchAuthor(author string) WatcherOption {
	return func(w *Watcher) { w.author = author }
}

// NewWatcher watches root, the on-disk location of the serializer's working
// tree. ignored filters slash-separated paths relative to root.
func NewWatcher(s *Serializer, root string, ignored func(p string, isDir bool) bool, debounce time.Duration, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		serializer: s,
		root:       root,
		ignored:    ignored,
		debounce:   debounce,
		author:     DefaultAuthor,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Capture commits the live tree if it differs from head. A clean tree
// returns nil and no snapshot.
func (w *Watcher) Capture(ctx context.Context) (*Snapshot, error) {
	snap, err := w.serializer.Execute(ctx, Batch{
		Author:      w.author,
		Message:     autoMessage,
		SkipIfClean: true,
	})
	if errors.Is(err, ErrCleanTree) {
		return nil, nil
	}
	return snap, err
}

// Run processes file events until ctx is cancelled, capturing a snapshot
// once events have been quiet for the debounce window.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := w.addDirs(fw, w.root); err != nil {
		return fmt.Errorf("add watch dirs: %w", err)
	}
	w.logger.Info("watcher started", slog.String("root", w.root), slog.Duration("debounce", w.debounce))

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("watcher stopped")
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			rel, relevant := w.relevant(ev)
			if !relevant {
				continue
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := w.addDirs(fw, ev.Name); addErr != nil {
						w.logger.Warn("watch new dir failed", slog.String("path", rel), slog.Any("error", addErr))
					}
				}
			}

			w.logger.Debug("change observed", slog.String("path", rel), slog.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", slog.Any("error", watchErr))

		case <-timer.C:
			snap, err := w.Capture(ctx)
			if err != nil {
				w.logger.Error("auto snapshot failed", slog.Any("error", err))
				continue
			}
			if snap != nil {
				w.logger.Info("auto snapshot", slog.String("version", snap.ID), slog.Any("changed", snap.ChangedPaths))
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) (string, bool) {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return "", false
	}
	rel, err := filepath.Rel(w.root, ev.Name)
	if err != nil || rel == "." {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if _, err := NewPath(rel); err != nil {
		return "", false
	}
	return rel, !w.ignored(rel, false)
}

func (w *Watcher) addDirs(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.root {
			rel, relErr := filepath.Rel(w.root, p)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)
			if _, pathErr := NewPath(rel); pathErr != nil || w.ignored(rel, true) {
				return filepath.SkipDir
			}
		}
		return fw.Add(p)
	})
}
