package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Core wires the store, serializer, coalescer, history and rollback engines
// of one workspace.
type Core struct {
	Workspace  Workspace
	Config     *Config
	Store      *GitStore
	Serializer *Serializer
	Coalescer  *Coalescer
	History    *HistoryEngine
	Rollback   *RollbackEngine
	Reloader   Reloader
	Logger     *slog.Logger
}

type coreOptions struct {
	logger    *slog.Logger
	validator Validator
	reloader  Reloader
	hooks     []CommitHook
	store     []StoreOption
}

type CoreOption func(*coreOptions)

func WithLogger(logger *slog.Logger) CoreOption {
	return func(o *coreOptions) { o.logger = logger }
}

// WithCoreValidator replaces the validator derived from the platform config.
func WithCoreValidator(v Validator) CoreOption {
	return func(o *coreOptions) { o.validator = v }
}

// WithCoreReloader replaces the reloader derived from the platform config.
func WithCoreReloader(r Reloader) CoreOption {
	return func(o *coreOptions) { o.reloader = r }
}

func WithCoreCommitHook(hook CommitHook) CoreOption {
	return func(o *coreOptions) { o.hooks = append(o.hooks, hook) }
}

func WithCoreStoreOptions(opts ...StoreOption) CoreOption {
	return func(o *coreOptions) { o.store = append(o.store, opts...) }
}

// InitWorkspace creates the metadata directory, the baseline snapshot and
// the default config of ws.
func InitWorkspace(ctx context.Context, ws Workspace, cfg *Config, opts ...StoreOption) (*Snapshot, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if info, err := os.Stat(ws.Root); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("configuration root %s is not a directory", ws.Root)
	}

	store, err := InitStore(ctx, ws, cfg.Author, opts...)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(ws.ConfigPath()); os.IsNotExist(err) {
		if err := SaveConfig(ws.ConfigPath(), cfg); err != nil {
			return nil, err
		}
	}

	return store.Head(ctx)
}

// OpenCore opens the on-disk store of ws and assembles a Core over it.
func OpenCore(ws Workspace, cfg *Config, opts ...CoreOption) (*Core, error) {
	var o coreOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	store, err := OpenStore(ws, append([]StoreOption{WithStoreLogger(logger)}, o.store...)...)
	if err != nil {
		return nil, err
	}

	c := NewCore(store, cfg, opts...)
	c.Workspace = ws
	return c, nil
}

// NewCore assembles a Core over an already opened store.
func NewCore(store *GitStore, cfg *Config, opts ...CoreOption) *Core {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var o coreOptions
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var platform *HomeAssistant
	if cfg.Platform.Enabled() {
		platform = NewHomeAssistant(cfg.Platform, WithPlatformLogger(logger))
	}

	validator := o.validator
	if validator == nil && platform != nil && cfg.Rollback.Validate {
		validator = platform
	}
	reloader := o.reloader
	if reloader == nil && platform != nil {
		reloader = platform
	}

	serializerOpts := []SerializerOption{
		WithLockTimeout(cfg.Serializer.LockTimeout),
		WithSerializerLogger(logger),
	}
	for _, hook := range o.hooks {
		serializerOpts = append(serializerOpts, WithCommitHook(hook))
	}
	serializer := NewSerializer(store, serializerOpts...)

	rollbackOpts := []RollbackEngineOption{WithRollbackLogger(logger)}
	if validator != nil {
		rollbackOpts = append(rollbackOpts, WithValidator(validator))
	}

	return &Core{
		Config:     cfg,
		Store:      store,
		Serializer: serializer,
		Coalescer:  NewCoalescer(serializer, cfg.Serializer.CoalesceWindow, cfg.Serializer.MaxBatch, WithCoalescerLogger(logger)),
		History:    NewHistoryEngine(store),
		Rollback:   NewRollbackEngine(serializer, store, rollbackOpts...),
		Reloader:   reloader,
		Logger:     logger,
	}
}

// Watcher returns an auto-snapshot watcher over the workspace root.
func (c *Core) Watcher() *Watcher {
	return NewWatcher(c.Serializer, c.Workspace.Root, c.Store.Ignored, c.Config.Watch.Debounce,
		WithWatchLogger(c.Logger),
		WithWatchAuthor(c.Config.Author))
}

// Close flushes any batch still waiting in the coalescer.
func (c *Core) Close() error {
	c.Coalescer.Flush()
	return nil
}
