package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vecna-vault/vecna/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpServerCmd)
}

var mcpServerCmd = &cobra.Command{
	Use:   "mcp-server",
	Short: "Start the read-only MCP server for AI assistant integration",
	Long: `Start a Model Context Protocol server over stdio.

The server is strictly read-only: tools return record names, metadata, and
masked values. Plaintext passwords and alias commands are never sent.

Available tools:
  - credential_list:       List credential names with metadata
  - credential_exists:     Check if a credential exists with metadata
  - credential_get_masked: Get a masked password (e.g. "****WXYZ")
  - alias_list:            List alias names with metadata

Authentication:
  Set VECNA_PASSWORD before starting the server. The variable is read once
  and cleared from the environment.

Policy:
  Create <vault-dir>/mcp-policy.yaml to choose which names are exposed.
  Without a policy file nothing is exposed (deny-by-default).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		server, err := mcp.NewServer(&mcp.ServerOptions{VaultDir: flagVaultDir}, version)
		if err != nil {
			return fmt.Errorf("failed to create MCP server: %w", err)
		}
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigChan
			cancel()
		}()

		fmt.Fprintln(os.Stderr, "MCP server started (stdio)")
		return server.Run(ctx)
	},
}
