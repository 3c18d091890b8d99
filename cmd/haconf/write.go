package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

func NewWriteCmd(uc useCases) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <path> [content|-]",
		Short: "Replace a file and record a snapshot",
		Long:  `Replace the file at path. Reads from stdin if content is omitted or "-".`,
		Args:  cobra.RangeArgs(1, 2),
		RunE:  makeMutateRunner(uc, internal.MutationWrite),
	}

	addMutationFlags(cmd)
	return cmd
}

func NewAppendCmd(uc useCases) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append <path> [content|-]",
		Short: "Append to a file and record a snapshot",
		Long:  `Append to the file at path, creating it if needed. Reads from stdin if content is omitted or "-".`,
		Args:  cobra.RangeArgs(1, 2),
		RunE:  makeMutateRunner(uc, internal.MutationAppend),
	}

	addMutationFlags(cmd)
	return cmd
}

func NewRmCmd(uc useCases) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm <path>...",
		Short: "Delete files and record one snapshot",
		Args:  cobra.MinimumNArgs(1),
		RunE:  makeRmRunner(uc),
	}

	addMutationFlags(cmd)
	return cmd
}

func addMutationFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("message", "m", "", "Snapshot message")
	cmd.Flags().StringSlice("reload", nil, "Components to reload afterwards (e.g. automation,core)")
}

func makeMutateRunner(uc useCases, kind internal.MutationKind) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		content, err := resolveContent(cmd, args)
		if err != nil {
			return err
		}

		return runMutation(cmd, uc, []internal.MutationSpec{{Kind: string(kind), Path: args[0], Content: content}})
	}
}

func makeRmRunner(uc useCases) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		specs := make([]internal.MutationSpec, len(args))
		for i, p := range args {
			specs[i] = internal.MutationSpec{Kind: string(internal.MutationDelete), Path: p}
		}
		return runMutation(cmd, uc, specs)
	}
}

func runMutation(cmd *cobra.Command, uc useCases, specs []internal.MutationSpec) error {
	u, err := uc(cmd)
	if err != nil {
		return err
	}

	message, _ := cmd.Flags().GetString("message")
	reload, _ := cmd.Flags().GetStringSlice("reload")
	author, _ := cmd.Flags().GetString("author")

	out, err := u.Mutate.Execute(cmd.Context(), internal.MutateInput{
		Requests:  specs,
		Author:    author,
		Message:   message,
		Requester: "cli",
		Reload:    reload,
	})
	if err != nil {
		return err
	}
	return printMutation(cmd, out)
}

func resolveContent(cmd *cobra.Command, args []string) (string, error) {
	if len(args) >= 2 && args[1] != "-" {
		return args[1], nil
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}
