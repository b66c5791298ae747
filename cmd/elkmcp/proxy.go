package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alucardeht/elk-mcp/internal/daemon"
)

func newProxyCmd() *cobra.Command {
	var socket string

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Relay an MCP stdio session to a running daemon",
		Long:  "proxy lets several MCP clients share one daemon and its loaded tool catalog. Start the daemon with 'elkmcp serve --daemon'.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if socket == "" {
				socket = cfg.SocketPath
			}

			conn, err := daemon.NewSocketConnector(socket).Connect(ctx)
			if err != nil {
				return fmt.Errorf("connect to daemon at %s: %w", socket, err)
			}
			defer conn.Close()

			return daemon.Bridge(ctx, conn, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&socket, "socket", "", "daemon socket (default from config)")

	return cmd
}
