package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

func asJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func outputJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func short(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

// subject is the first line of a snapshot message.
func subject(msg string) string {
	line, _, _ := strings.Cut(msg, "\n")
	return strings.TrimSpace(line)
}

func kindMark(kind string) string {
	switch internal.ChangeKind(kind) {
	case internal.ChangeAdded:
		return "A"
	case internal.ChangeRemoved:
		return "D"
	}
	return "M"
}

func printChanges(cmd *cobra.Command, changes []internal.DiffEntryOutput) {
	for _, c := range changes {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", kindMark(c.Kind), c.Path)
	}
	for _, c := range changes {
		if c.Patch != "" {
			fmt.Fprint(cmd.OutOrStdout(), "\n"+c.Patch)
		}
	}
}

func printMutation(cmd *cobra.Command, out *internal.MutateOutput) error {
	if asJSON(cmd) {
		return outputJSON(cmd, out)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "[%s] %s\n", short(out.Snapshot.ID), subject(out.Snapshot.Message))
	for _, r := range out.Reloads {
		if r.OK {
			fmt.Fprintf(cmd.OutOrStdout(), "reloaded %s\n", r.Component)
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "reload %s failed: %s\n", r.Component, r.Error)
		}
	}
	return nil
}
