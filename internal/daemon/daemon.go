// Package daemon serves the MCP server on a unix socket so several clients can
// share one loaded tool catalog.
package daemon

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/alucardeht/elk-mcp/internal/logger"
	"github.com/alucardeht/elk-mcp/internal/mcp"
)

var log = logger.ForComponent("daemon")

type Daemon struct {
	socket       *SocketListener
	server       *mcp.Server
	connections  map[net.Conn]bool
	connMu       sync.Mutex
	wg           sync.WaitGroup
	shutdown     chan struct{}
	shutdownOnce sync.Once
	startTime    time.Time
}

func New(server *mcp.Server, socketPath string) *Daemon {
	return &Daemon{
		socket:      NewSocketListener(socketPath),
		server:      server,
		connections: make(map[net.Conn]bool),
		shutdown:    make(chan struct{}),
	}
}

// Serve listens on the socket and blocks until ctx is cancelled or Shutdown is
// called. Each connection speaks newline-delimited JSON-RPC.
func (d *Daemon) Serve(ctx context.Context) error {
	if err := d.socket.Start(); err != nil {
		return err
	}
	d.startTime = time.Now()
	log.Info("daemon listening", "socket", d.socket.Path())

	go func() {
		select {
		case <-ctx.Done():
			d.Shutdown()
		case <-d.shutdown:
		}
	}()

	for {
		conn, err := d.socket.Accept()
		if err != nil {
			select {
			case <-d.shutdown:
				d.wg.Wait()
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			log.Warn("accept failed", "error", err)
			continue
		}

		d.connMu.Lock()
		d.connections[conn] = true
		d.connMu.Unlock()

		d.wg.Add(1)
		go d.handleConnection(ctx, conn)
	}
}

func (d *Daemon) handleConnection(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		d.connMu.Lock()
		delete(d.connections, conn)
		d.connMu.Unlock()
		d.wg.Done()
	}()

	log.Debug("client connected")
	if err := d.server.ProcessStream(ctx, conn, conn); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug("connection closed", "error", err)
	}
}

func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		close(d.shutdown)

		if err := d.socket.Close(); err != nil {
			log.Warn("failed to close socket", "error", err)
		}

		d.connMu.Lock()
		for conn := range d.connections {
			conn.Close()
		}
		d.connMu.Unlock()

		log.Info("daemon stopped")
	})
}

func (d *Daemon) SocketPath() string {
	return d.socket.Path()
}

func (d *Daemon) Uptime() time.Duration {
	if d.startTime.IsZero() {
		return 0
	}
	return time.Since(d.startTime)
}

func (d *Daemon) ConnectionCount() int {
	d.connMu.Lock()
	defer d.connMu.Unlock()
	return len(d.connections)
}
