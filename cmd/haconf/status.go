package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewStatusCmd(uc useCases) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show uncommitted changes",
		Long:  `Show the head snapshot and any edits made to the tree since.`,
		Args:  cobra.NoArgs,
		RunE:  makeStatusRunner(uc),
	}

	cmd.Flags().BoolP("patch", "p", false, "Include line patches")
	return cmd
}

func makeStatusRunner(uc useCases) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		u, err := uc(cmd)
		if err != nil {
			return err
		}
		patch, _ := cmd.Flags().GetBool("patch")

		out, err := u.Status.Execute(cmd.Context())
		if err != nil {
			return fmt.Errorf("get status: %w", err)
		}

		if asJSON(cmd) {
			return outputJSON(cmd, out)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "At %s %s\n", short(out.Head.ID), subject(out.Head.Message))
		if out.Clean {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing changed since the last snapshot.")
			return nil
		}
		if !patch {
			for i := range out.Changes {
				out.Changes[i].Patch = ""
			}
		}
		printChanges(cmd, out.Changes)
		return nil
	}
}
