package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alucardeht/elk-mcp/internal/mcp"
	"github.com/alucardeht/elk-mcp/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version info",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", mcp.DefaultServerName, version.Version)
			fmt.Fprintf(cmd.OutOrStdout(), " - MCP protocol: %s\n", version.ProtocolVersion)
			return nil
		},
	}
}
