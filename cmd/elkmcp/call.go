package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alucardeht/elk-mcp/internal/daemon"
)

func newCallCmd() *cobra.Command {
	var (
		backends []string
		socket   string
	)

	cmd := &cobra.Command{
		Use:   "call NAME [JSON]",
		Short: "Call one tool with JSON arguments",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			name := args[0]
			input := json.RawMessage(`{}`)
			if len(args) == 2 {
				input = json.RawMessage(args[1])
				if !json.Valid(input) {
					return fmt.Errorf("arguments are not valid JSON")
				}
			}

			if socket != "" {
				client, err := daemon.Dial(ctx, socket)
				if err != nil {
					return err
				}
				defer client.Close()
				if _, err := client.Initialize(ctx); err != nil {
					return err
				}

				result, err := client.CallTool(ctx, name, input)
				if err != nil {
					return err
				}
				for _, c := range result.Content {
					fmt.Fprintln(cmd.OutOrStdout(), c.Text)
				}
				if result.IsError {
					return errors.New("tool reported an error")
				}
				return nil
			}

			a, err := newApp(cfg, backends)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.catalog.LoadAll(ctx); err != nil {
				if _, ok := a.registry.Get(name); !ok {
					return err
				}
				log.Warn("some backends failed to load", "error", err)
			}

			out, err := a.registry.ExecuteWithTimeout(ctx, name, input, cfg.CallTimeout)
			if err != nil {
				return err
			}

			data, err := json.Marshal(out)
			if err != nil {
				return err
			}
			var pretty bytes.Buffer
			if err := json.Indent(&pretty, data, "", "  "); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), pretty.String())
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&backends, "backend", nil, "only load these backends (elasticsearch|es|kibana)")
	cmd.Flags().StringVar(&socket, "socket", "", "call through a running daemon")

	return cmd
}
