package main

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/anamnesis/internal/cli"
	"github.com/aretw0/anamnesis/pkg/adapters/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Exposes the questionnaire to AI agents as MCP tools (consult, restart, history).

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		app, err := cli.Build(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		defer app.Close()

		srv := mcp.NewServer(app.Service, mcp.WithLogger(logger))

		switch cfg.Server.MCPTransport {
		case "stdio":
			// Ensure logs don't corrupt JSON-RPC on Stdout
			log.SetOutput(os.Stderr)
			logger.Info("Starting MCP server (stdio)")
			return srv.ServeStdio()
		case "sse":
			logger.Info("Starting MCP server (SSE)", "port", cfg.Server.MCPPort)
			if err := srv.ServeSSE(ctx, cfg.Server.MCPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("MCP server stopped gracefully")
			return nil
		default:
			return fmt.Errorf("unknown transport %q (supported: stdio, sse)", cfg.Server.MCPTransport)
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8081, "Port to listen on (only for SSE)")
	_ = v.BindPFlag("server.mcp_transport", mcpCmd.Flags().Lookup("transport"))
	_ = v.BindPFlag("server.mcp_port", mcpCmd.Flags().Lookup("port"))
}
