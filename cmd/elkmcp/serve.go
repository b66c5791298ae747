package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alucardeht/elk-mcp/internal/daemon"
	"github.com/alucardeht/elk-mcp/internal/logger"
	"github.com/alucardeht/elk-mcp/internal/mcp"
	"github.com/alucardeht/elk-mcp/internal/watcher"
)

var log = logger.ForComponent("cli")

func newServeCmd() *cobra.Command {
	var (
		socket     string
		httpAddr   string
		daemonMode bool
		keepGoing  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP on stdio, on a unix socket with --daemon, or over HTTP with --http",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.catalog.LoadAll(ctx); err != nil {
				if !keepGoing {
					return err
				}
				log.Warn("continuing with the backends that loaded", "error", err)
			}

			if cfg.Watcher.Enabled {
				w, err := watcher.New(cfg.Watcher)
				if err != nil {
					return err
				}
				defer w.Stop()

				n, err := a.catalog.Watch(ctx, w)
				if err != nil {
					return err
				}
				if n > 0 {
					if err := w.Start(ctx); err != nil {
						return err
					}
				}
			}

			if cfg.MetricsAddr != "" {
				go func() {
					if err := a.metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
						log.Error("metrics listener failed", "error", err)
					}
				}()
			}

			server := mcp.NewServer(a.registry, mcp.WithCallTimeout(cfg.CallTimeout))

			if httpAddr != "" {
				if socket != "" || daemonMode {
					return errors.New("--http cannot be combined with --socket or --daemon")
				}
				return server.ListenHTTP(ctx, httpAddr)
			}

			if socket != "" {
				daemonMode = true
			} else {
				socket = cfg.SocketPath
			}
			if daemonMode {
				return serveDaemon(ctx, server, socket)
			}
			return serveStdio(ctx, server)
		},
	}

	cmd.Flags().StringVar(&socket, "socket", "", "unix socket to listen on (implies --daemon)")
	cmd.Flags().StringVar(&httpAddr, "http", "", "serve MCP over HTTP on this address, e.g. localhost:8000 (SSE at /sse, JSON at /mcp)")
	cmd.Flags().BoolVar(&daemonMode, "daemon", false, "listen on the configured unix socket instead of stdio")
	cmd.Flags().BoolVar(&keepGoing, "keep-going", false, "start even if some backends fail to load")

	return cmd
}

func serveDaemon(ctx context.Context, server *mcp.Server, socket string) error {
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	lc := daemon.NewLifecycle(cfg.DataDir, socket)
	if err := lc.Acquire(); err != nil {
		if errors.Is(err, daemon.ErrLockHeld) && lc.SocketResponsive() {
			log.Info("daemon already running", "socket", socket)
		}
		return err
	}
	defer lc.Release()

	return daemon.New(server, socket).Serve(ctx)
}

// serveStdio returns when stdin closes or ctx is cancelled; a blocked stdin read
// does not hold up shutdown.
func serveStdio(ctx context.Context, server *mcp.Server) error {
	done := make(chan error, 1)
	go func() {
		done <- server.ProcessStream(ctx, os.Stdin, os.Stdout)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	}
}
