package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal"
)

// useCases resolves the use cases for the command being run.
type useCases func(cmd *cobra.Command) (*internal.UseCases, error)

func NewRootCmd(version string, a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "haconf",
		Short:         "Versioned backups and rollback for Home Assistant configuration",
		Long:          `Every change to the configuration tree becomes a snapshot that can be inspected, diffed and rolled back.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)
	setHelpWithExternals(rootCmd)

	if a != nil {
		addSubcommands(rootCmd, version, a)
	}

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("root", "", "Configuration root (default $"+internal.EnvRoot+" or nearest initialized directory)")
	cmd.PersistentFlags().String("meta", "", "Metadata directory (default <root>/"+internal.MetaDirName+")")
	cmd.PersistentFlags().StringP("config", "c", "", "Config file (default <meta>/config.yaml)")
	cmd.PersistentFlags().String("author", "", "Author recorded on snapshots")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
}

func addSubcommands(root *cobra.Command, version string, a *app) {
	uc := useCases(a.useCases)

	root.AddCommand(
		NewInitCmd(a),
		NewWriteCmd(uc),
		NewAppendCmd(uc),
		NewRmCmd(uc),
		NewCatCmd(uc),
		NewLsCmd(uc),
		NewLogCmd(uc),
		NewShowCmd(uc),
		NewDiffCmd(uc),
		NewRollbackCmd(uc),
		NewStatusCmd(uc),
		NewWatchCmd(a),
		NewServeCmd(a),
		NewMCPCmd(a, version),
	)
}

func setHelpWithExternals(cmd *cobra.Command) {
	defaultHelp := cmd.HelpFunc()

	cmd.SetHelpFunc(func(c *cobra.Command, args []string) {
		defaultHelp(c, args)
		printExternalCommands(c)
	})
}

func printExternalCommands(cmd *cobra.Command) {
	externals := listExternalCommands()
	if len(externals) == 0 {
		return
	}

	fmt.Fprintln(cmd.OutOrStdout(), "\nExternal commands (haconf-*):")
	for _, name := range externals {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
	}
}
