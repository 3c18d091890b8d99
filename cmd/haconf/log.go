package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

func NewLogCmd(uc useCases) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show snapshot history",
		Long:  `Show snapshots newest first. Use --before with the last id shown to page further back.`,
		Args:  cobra.NoArgs,
		RunE:  makeLogRunner(uc),
	}

	cmd.Flags().IntP("number", "n", 10, "Limit number of snapshots (0 for all)")
	cmd.Flags().String("before", "", "Only show snapshots older than this version")
	cmd.Flags().Bool("oneline", false, "Show each snapshot on one line")
	return cmd
}

func makeLogRunner(uc useCases) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		u, err := uc(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("number")
		before, _ := cmd.Flags().GetString("before")
		oneline, _ := cmd.Flags().GetBool("oneline")

		out, err := u.Log.Execute(cmd.Context(), internal.LogInput{Limit: limit, Before: before})
		if err != nil {
			return fmt.Errorf("get log: %w", err)
		}

		if asJSON(cmd) {
			return outputJSON(cmd, out)
		}

		for _, s := range out.Snapshots {
			if oneline {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", short(s.ID), subject(s.Message))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s\n", s.ID)
				fmt.Fprintf(cmd.OutOrStdout(), "Author: %s\n", s.Author)
				fmt.Fprintf(cmd.OutOrStdout(), "Date:   %s\n\n", s.Timestamp.Format("Mon Jan 2 15:04:05 2006 -0700"))
				fmt.Fprintf(cmd.OutOrStdout(), "    %s\n\n", strings.TrimRight(s.Message, "\n"))
			}
		}
		if out.Next != "" && !oneline {
			fmt.Fprintf(cmd.OutOrStdout(), "(more: haconf log --before %s)\n", out.Next)
		}
		return nil
	}
}
