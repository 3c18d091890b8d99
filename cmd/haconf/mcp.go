package main

import (
	"github.com/spf13/cobra"

	"github.com/4thel00z/haconf/internal/mcpserver"
)

func NewMCPCmd(a *app, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the store to an AI agent over MCP (stdio)",
		Long: `Speak the Model Context Protocol on stdin/stdout, exposing tools to read, write
and roll back configuration files. Every write is recorded as a snapshot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			core, err := a.open(cmd)
			if err != nil {
				return err
			}
			uc, err := a.useCases(cmd)
			if err != nil {
				return err
			}
			return mcpserver.New(uc, version, core.Config.Author).ServeStdio()
		},
	}
}
