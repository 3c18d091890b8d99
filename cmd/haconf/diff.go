package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

func NewDiffCmd(uc useCases) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <from> [to]",
		Short: "Show changes between two versions",
		Long:  `Show the files that differ between two versions. The second version defaults to HEAD.`,
		Args:  cobra.RangeArgs(1, 2),
		RunE:  makeDiffRunner(uc),
	}

	cmd.Flags().BoolP("patch", "p", false, "Include line patches")
	return cmd
}

func makeDiffRunner(uc useCases) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		u, err := uc(cmd)
		if err != nil {
			return err
		}
		to := ""
		if len(args) > 1 {
			to = args[1]
		}
		patch, _ := cmd.Flags().GetBool("patch")

		out, err := u.Diff.Execute(cmd.Context(), internal.DiffInput{From: args[0], To: to, Patch: patch})
		if err != nil {
			return fmt.Errorf("get diff: %w", err)
		}

		if asJSON(cmd) {
			return outputJSON(cmd, out)
		}
		if len(out.Entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No changes.")
			return nil
		}
		printChanges(cmd, out.Entries)
		return nil
	}
}
