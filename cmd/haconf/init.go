package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

func NewInitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Start tracking a configuration tree",
		Long:  `Create the metadata directory and record the current tree as the baseline snapshot.`,
		Args:  cobra.NoArgs,
		RunE:  makeInitRunner(a),
	}

	return cmd
}

func makeInitRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ws, err := a.workspace(cmd)
		if err != nil {
			return err
		}
		cfg, err := a.config(cmd, ws)
		if err != nil {
			return err
		}

		snap, err := internal.InitWorkspace(cmd.Context(), ws, cfg)
		if err != nil {
			return fmt.Errorf("init: %w", err)
		}

		if asJSON(cmd) {
			return outputJSON(cmd, internal.NewSnapshotOutput(snap))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Initialized haconf store at %s\n", ws.MetaPath)
		fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s (%d files)\n", short(snap.ID), subject(snap.Message), len(snap.ChangedPaths))
		return nil
	}
}
