package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

func NewShowCmd(uc useCases) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show [rev]",
		Short: "Show one snapshot and the files it changed",
		Args:  cobra.MaximumNArgs(1),
		RunE:  makeShowRunner(uc),
	}

	cmd.Flags().BoolP("patch", "p", false, "Include line patches")
	return cmd
}

func makeShowRunner(uc useCases) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		u, err := uc(cmd)
		if err != nil {
			return err
		}
		rev := "HEAD"
		if len(args) > 0 {
			rev = args[0]
		}
		patch, _ := cmd.Flags().GetBool("patch")

		out, err := u.Show.Execute(cmd.Context(), internal.ShowInput{Rev: rev, Patch: patch})
		if err != nil {
			return err
		}

		if asJSON(cmd) {
			return outputJSON(cmd, out)
		}

		s := out.Snapshot
		fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s\n", s.ID)
		if s.ParentID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "Parent: %s\n", s.ParentID)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Author: %s\n", s.Author)
		fmt.Fprintf(cmd.OutOrStdout(), "Date:   %s\n\n", s.Timestamp.Format("Mon Jan 2 15:04:05 2006 -0700"))
		fmt.Fprintf(cmd.OutOrStdout(), "    %s\n\n", strings.TrimRight(s.Message, "\n"))
		printChanges(cmd, out.Changes)
		return nil
	}
}
