package main

import (
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/aretw0/hotswap/internal/cli"
	"github.com/aretw0/hotswap/internal/config"
	"github.com/aretw0/hotswap/internal/logging"
	"github.com/aretw0/hotswap/pkg/adapters/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp [manifest]",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts a coordinator session as an MCP Server.
This allows AI agents to push update packets and inspect the instance table and
module graph as tools.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		port, _ := cmd.Flags().GetInt("port")

		// Logs must never reach stdout, which carries JSON-RPC in stdio mode.
		logger := logging.New(slog.LevelInfo)
		log.SetOutput(os.Stderr)

		m, err := config.Load(manifestPath(cmd, args))
		if err != nil {
			return err
		}
		s, err := cli.NewSession(cmd.Context(), m, cli.SessionOptions{Logger: logger})
		if err != nil {
			return err
		}
		srv := mcp.NewServer(s.Coordinator)

		switch transport {
		case "stdio":
			logger.Info("Starting hotswap MCP Server (Stdio)")
			return srv.ServeStdio()
		case "sse":
			logger.Info("Starting hotswap MCP Server (SSE)", "port", port)
			ctx := cli.NewSignalContext(cmd.Context())
			defer ctx.Cancel()
			if err := srv.ServeSSE(ctx, port); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("MCP Server stopped gracefully")
			return nil
		default:
			return errors.New("unknown transport " + transport + ". Supported: stdio, sse")
		}
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().Int("port", 8080, "Port to listen on (only for SSE)")
}
