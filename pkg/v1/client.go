package v1

import (
	"context"
	"fmt"

	"github.com/4thel00z/haconf/internal"
)

// Client provides programmatic access to a versioned configuration tree.
type Client struct {
	core   *internal.Core
	uc     *internal.UseCases
	author string
}

// New opens the workspace selected by the options.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	ws, err := internal.NewWorkspaceResolver().Resolve(cfg.root, cfg.meta)
	if err != nil {
		return nil, err
	}

	conf, err := internal.LoadConfig(ws.ConfigPath())
	if err != nil {
		return nil, err
	}
	if cfg.author != "" {
		conf.Author = cfg.author
	}
	if cfg.coalesceSet {
		conf.Serializer.CoalesceWindow = cfg.coalesceWindow
	}

	if cfg.init && !ws.Initialized() {
		if _, err := internal.InitWorkspace(context.Background(), ws, conf); err != nil {
			return nil, fmt.Errorf("init: %w", err)
		}
	}

	var coreOpts []internal.CoreOption
	if cfg.validator != nil {
		coreOpts = append(coreOpts, internal.WithCoreValidator(cfg.validator))
	}
	core, err := internal.OpenCore(ws, conf, coreOpts...)
	if err != nil {
		return nil, err
	}

	return &Client{
		core:   core,
		uc:     internal.NewUseCases(core),
		author: conf.Author,
	}, nil
}

// Root returns the configuration root the client operates on.
func (c *Client) Root() string {
	return c.core.Workspace.Root
}

// Write replaces the file at path and records a snapshot.
func (c *Client) Write(ctx context.Context, path string, content []byte) (*Snapshot, error) {
	return c.mutate(ctx, internal.MutationWrite, path, content)
}

// Append adds content to the end of the file at path, creating it if needed.
func (c *Client) Append(ctx context.Context, path string, content []byte) (*Snapshot, error) {
	return c.mutate(ctx, internal.MutationAppend, path, content)
}

// Delete removes the file at path and records a snapshot.
func (c *Client) Delete(ctx context.Context, path string) (*Snapshot, error) {
	return c.mutate(ctx, internal.MutationDelete, path, nil)
}

func (c *Client) mutate(ctx context.Context, kind internal.MutationKind, path string, content []byte) (*Snapshot, error) {
	out, err := c.uc.Mutate.Execute(ctx, internal.MutateInput{
		Requests:  []internal.MutationSpec{{Kind: string(kind), Path: path, Content: string(content)}},
		Author:    c.author,
		Requester: "v1",
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return fromOutput(out.Snapshot), nil
}

// Read returns the live content of path.
func (c *Client) Read(ctx context.Context, path string) ([]byte, error) {
	return c.ReadAt(ctx, path, "")
}

// ReadAt returns the content of path as recorded in version. An empty
// version reads the live tree.
func (c *Client) ReadAt(ctx context.Context, path, version string) ([]byte, error) {
	out, err := c.uc.Read.Execute(ctx, internal.ReadInput{Path: path, At: version})
	if err != nil {
		return nil, err
	}
	return out.Content, nil
}

// Head returns the newest snapshot.
func (c *Client) Head(ctx context.Context) (*Snapshot, error) {
	out, err := c.uc.Show.Execute(ctx, internal.ShowInput{Rev: "HEAD"})
	if err != nil {
		return nil, err
	}
	return fromOutput(out.Snapshot), nil
}

// History lists up to limit snapshots older than before, newest first. An
// empty before starts at head; limit 0 lists everything.
func (c *Client) History(ctx context.Context, limit int, before string) ([]Snapshot, error) {
	out, err := c.uc.Log.Execute(ctx, internal.LogInput{Limit: limit, Before: before})
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}

	snapshots := make([]Snapshot, 0, len(out.Snapshots))
	for _, s := range out.Snapshots {
		snapshots = append(snapshots, *fromOutput(s))
	}
	return snapshots, nil
}

// Diff lists the files that differ between from and to. An empty to means
// head.
func (c *Client) Diff(ctx context.Context, from, to string) ([]Change, error) {
	out, err := c.uc.Diff.Execute(ctx, internal.DiffInput{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	changes := make([]Change, 0, len(out.Entries))
	for _, e := range out.Entries {
		changes = append(changes, Change{Path: e.Path, Kind: e.Kind, Patch: e.Patch})
	}
	return changes, nil
}

// Rollback restores the tree of target as a new snapshot.
func (c *Client) Rollback(ctx context.Context, target string) (*Snapshot, error) {
	out, err := c.uc.Rollback.Execute(ctx, internal.RollbackInput{Target: target, Author: c.author})
	if err != nil {
		return nil, fmt.Errorf("rollback: %w", err)
	}
	return fromOutput(out.Snapshot), nil
}

// Close flushes pending mutations and releases the store.
func (c *Client) Close() error {
	return c.core.Close()
}
