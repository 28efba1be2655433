package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fieldstone/bugtrack/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets Claude Code query and manage the bug database natively.
Configure in Claude Code with:

  {
    "mcpServers": {
      "bugtrack": { "command": "bugtrack", "args": ["mcp"] }
    }
  }

Available tools: bug_list, bug_get, bug_create, bug_update,
bug_delete, bug_stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		srv := mcp.NewServer(s)
		return srv.ServeStdio(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
