package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

func NewLsCmd(uc useCases) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [prefix]",
		Short: "List tracked files",
		Args:  cobra.MaximumNArgs(1),
		RunE:  makeLsRunner(uc),
	}

	cmd.Flags().String("at", "", "List the tree of a version instead of the live tree")
	cmd.Flags().BoolP("long", "l", false, "Show file sizes")
	return cmd
}

func makeLsRunner(uc useCases) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		u, err := uc(cmd)
		if err != nil {
			return err
		}
		prefix := ""
		if len(args) > 0 {
			prefix = args[0]
		}
		at, _ := cmd.Flags().GetString("at")
		long, _ := cmd.Flags().GetBool("long")

		out, err := u.List.Execute(cmd.Context(), internal.ListInput{Prefix: prefix, At: at})
		if err != nil {
			return err
		}

		if asJSON(cmd) {
			return outputJSON(cmd, out)
		}
		for _, f := range out.Files {
			if long {
				fmt.Fprintf(cmd.OutOrStdout(), "%8d  %s\n", f.Size, f.Path)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), f.Path)
			}
		}
		return nil
	}
}
