package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/alucardeht/elk-mcp/internal/daemon"
	"github.com/alucardeht/elk-mcp/internal/tools"
	"github.com/alucardeht/elk-mcp/pkg/protocol"
)

func newToolsCmd() *cobra.Command {
	var (
		backends []string
		socket   string
	)

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the generated tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var list []protocol.Tool
			if socket != "" {
				client, err := daemon.Dial(ctx, socket)
				if err != nil {
					return err
				}
				defer client.Close()
				if _, err := client.Initialize(ctx); err != nil {
					return err
				}
				if list, err = client.ListTools(ctx); err != nil {
					return err
				}
			} else {
				a, err := newApp(cfg, backends)
				if err != nil {
					return err
				}
				defer a.Close()

				if err := a.catalog.LoadAll(ctx); err != nil {
					return err
				}
				list = describe(a.registry)
			}

			if jsonOutput() {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(list)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTITLE")
			for _, t := range list {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Title)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringSliceVar(&backends, "backend", nil, "only load these backends (elasticsearch|es|kibana)")
	cmd.Flags().StringVar(&socket, "socket", "", "ask a running daemon instead of loading in-process")

	return cmd
}

func describe(registry *tools.Registry) []protocol.Tool {
	var out []protocol.Tool
	for _, t := range registry.List() {
		entry := protocol.Tool{Name: t.Name(), Description: t.Description(), InputSchema: t.Schema()}
		if annotated, ok := t.(tools.AnnotatedTool); ok {
			entry.Title = annotated.Title()
			entry.Annotations = annotated.Annotations()
		}
		out = append(out, entry)
	}
	return out
}
