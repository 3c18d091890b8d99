package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

// app opens the workspace lazily, once per process, from the persistent
// flags of the command being run.
type app struct {
	resolver *internal.WorkspaceResolver

	mu   sync.Mutex
	core *internal.Core
	uc   *internal.UseCases
}

func newApp(resolver *internal.WorkspaceResolver) *app {
	return &app{resolver: resolver}
}

func (a *app) workspace(cmd *cobra.Command) (internal.Workspace, error) {
	root, _ := cmd.Flags().GetString("root")
	meta, _ := cmd.Flags().GetString("meta")
	return a.resolver.Resolve(root, meta)
}

func (a *app) config(cmd *cobra.Command, ws internal.Workspace) (*internal.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = ws.ConfigPath()
	}
	cfg, err := internal.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if author, _ := cmd.Flags().GetString("author"); author != "" {
		cfg.Author = author
	}
	return cfg, nil
}

// open returns the Core of the selected workspace, opening it on first use.
func (a *app) open(cmd *cobra.Command, opts ...internal.CoreOption) (*internal.Core, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.core != nil {
		return a.core, nil
	}

	ws, err := a.workspace(cmd)
	if err != nil {
		return nil, err
	}
	cfg, err := a.config(cmd, ws)
	if err != nil {
		return nil, err
	}

	logger := cfg.Log.NewLogger(cmd.ErrOrStderr())
	core, err := internal.OpenCore(ws, cfg, append([]internal.CoreOption{internal.WithLogger(logger)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ws.Root, err)
	}

	a.core = core
	a.uc = internal.NewUseCases(core)
	return core, nil
}

func (a *app) useCases(cmd *cobra.Command) (*internal.UseCases, error) {
	if _, err := a.open(cmd); err != nil {
		return nil, err
	}
	return a.uc, nil
}

func (a *app) close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.core != nil {
		_ = a.core.Close()
		a.core = nil
		a.uc = nil
	}
}
