package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alucardeht/elk-mcp/internal/config"
	"github.com/alucardeht/elk-mcp/internal/logger"
)

var (
	cfgFile  string
	envFiles []string
	logLevel string
	output   string

	cfg *config.Config
)

// NewRootCmd returns the root command for the elkmcp CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "elkmcp",
		Short:         "Elasticsearch and Kibana REST APIs as MCP tools",
		Long:          "elkmcp resolves the Elasticsearch and Kibana OpenAPI specifications and serves every operation as an MCP tool.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.elkmcp/config.yaml)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	rootCmd.PersistentFlags().StringVar(&output, "output", "text", "output format: json|text")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newCallCmd())
	rootCmd.AddCommand(newProxyCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func initConfig() error {
	config.LoadEnv(envFiles...)

	if cfgFile != "" {
		if err := os.Setenv(config.EnvConfigFile, cfgFile); err != nil {
			return err
		}
	}

	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}

	logger.Init(logger.Config{
		Level:  logger.ParseLevel(loaded.LogLevel),
		Format: loaded.LogFormat,
		Output: os.Stderr,
	})

	cfg = loaded
	return nil
}

func jsonOutput() bool {
	return output == "json"
}
