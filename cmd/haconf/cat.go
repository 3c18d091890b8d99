package main

import (
	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

func NewCatCmd(uc useCases) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <path>",
		Short: "Print a file",
		Long:  `Print the live content of a file, or its content at an earlier version.`,
		Args:  cobra.ExactArgs(1),
		RunE:  makeCatRunner(uc),
	}

	cmd.Flags().String("at", "", "Version id or revision (e.g. HEAD~1)")
	return cmd
}

func makeCatRunner(uc useCases) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		u, err := uc(cmd)
		if err != nil {
			return err
		}
		at, _ := cmd.Flags().GetString("at")

		out, err := u.Read.Execute(cmd.Context(), internal.ReadInput{Path: args[0], At: at})
		if err != nil {
			return err
		}

		if asJSON(cmd) {
			return outputJSON(cmd, map[string]string{
				"path":    out.Path,
				"version": out.Version,
				"content": string(out.Content),
			})
		}
		_, err = cmd.OutOrStdout().Write(out.Content)
		return err
	}
}
