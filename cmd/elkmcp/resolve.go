package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alucardeht/elk-mcp/internal/specsource"
)

func newResolveCmd() *cobra.Command {
	var backendName string

	cmd := &cobra.Command{
		Use:   "resolve [LOCATOR]",
		Short: "Resolve an OpenAPI spec and print a summary",
		Long:  "Resolve a spec from a URL or file path. Without LOCATOR the backend's configured or default spec is used.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := specsource.LookupBackend(backendName)
			if err != nil {
				return err
			}

			loc := cfg.Locator(backend)
			if len(args) == 1 {
				loc = specsource.Ref(args[0])
			}

			doc, err := specsource.NewResolver().Resolve(cmd.Context(), loc, backend)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput() {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if doc.IsRaw() {
					return enc.Encode(doc.Raw)
				}
				return enc.Encode(doc.Data)
			}

			if doc.IsRaw() {
				fmt.Fprintf(out, "unparsed locator: %s\n", doc.Raw)
				return nil
			}
			fmt.Fprintf(out, "backend: %s\n", backend.Name)
			fmt.Fprintf(out, "title:   %s\n", doc.Title())
			fmt.Fprintf(out, "version: %s\n", doc.Version())
			fmt.Fprintf(out, "paths:   %d\n", doc.PathCount())
			return nil
		},
	}

	cmd.Flags().StringVar(&backendName, "backend", "elasticsearch", "backend whose defaults apply (elasticsearch|es|kibana)")

	return cmd
}
