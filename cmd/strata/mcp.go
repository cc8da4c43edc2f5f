package main

import (
	"github.com/spf13/cobra"

	stratamcp "github.com/hyperengineering/strata/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for coding agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

This allows coding agents to use Strata memory tools directly.

Configuration in an agent's MCP settings:

  {
    "mcpServers": {
      "strata": {
        "command": "strata",
        "args": ["mcp"],
        "env": {
          "STRATA_DB_PATH": "/path/to/strata.db"
        }
      }
    }
  }

Environment variables:
  STRATA_DB_PATH       Path to the local SQLite database
  STRATA_OLLAMA_URL    Ollama base URL for embeddings (optional)
  STRATA_OLLAMA_MODEL  Ollama embedding model (default: nomic-embed-text)`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cc, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := buildEngine(cc)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	server := stratamcp.NewServer(engine)
	return server.Run()
}
