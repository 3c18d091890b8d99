package main

import (
	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

func NewRollbackCmd(uc useCases) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollback <rev>",
		Short: "Restore an earlier version",
		Long: `Make the configuration tree equal to the given version and record that as a new
snapshot. Uncommitted edits are discarded. The rollback itself can be rolled back.`,
		Args: cobra.ExactArgs(1),
		RunE: makeRollbackRunner(uc),
	}

	cmd.Flags().Bool("no-validate", false, "Skip platform validation of the restored tree")
	cmd.Flags().StringSlice("reload", nil, "Components to reload afterwards (e.g. automation,core)")
	return cmd
}

func makeRollbackRunner(uc useCases) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		u, err := uc(cmd)
		if err != nil {
			return err
		}
		noValidate, _ := cmd.Flags().GetBool("no-validate")
		reload, _ := cmd.Flags().GetStringSlice("reload")
		author, _ := cmd.Flags().GetString("author")

		out, err := u.Rollback.Execute(cmd.Context(), internal.RollbackInput{
			Target:         args[0],
			Author:         author,
			SkipValidation: noValidate,
			Reload:         reload,
		})
		if err != nil {
			return err
		}
		return printMutation(cmd, out)
	}
}
