package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

func NewWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the configuration tree and snapshot changes",
		Long: `Watch the configuration tree for edits made outside haconf (the file editor,
the UI, a text editor over SSH) and record each settled burst as a snapshot.`,
		Args: cobra.NoArgs,
		RunE: makeWatchRunner(a),
	}

	cmd.Flags().Duration("debounce", 0, "Quiet period before a snapshot is taken (default from config)")
	return cmd
}

func makeWatchRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		core, err := a.open(cmd, internal.WithCoreCommitHook(printCommit(cmd)))
		if err != nil {
			return err
		}
		if d, _ := cmd.Flags().GetDuration("debounce"); d > 0 {
			core.Config.Watch.Debounce = d
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for changes...\n", core.Workspace.Root)
		return core.Watcher().Run(cmd.Context())
	}
}

func printCommit(cmd *cobra.Command) internal.CommitHook {
	return func(_ context.Context, s *internal.Snapshot) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n", s.Timestamp.Format(time.TimeOnly), short(s.ID), subject(s.Message))
	}
}
