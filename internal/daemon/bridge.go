package daemon

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/alucardeht/elk-mcp/pkg/protocol"
)

// Bridge relays an MCP stdio session to a daemon connection: lines from in go
// to conn and everything the daemon writes goes to out. It returns once the
// daemon has answered everything sent before in reached EOF, or when ctx ends.
func Bridge(ctx context.Context, conn net.Conn, in io.Reader, out io.Writer) error {
	upstream := make(chan error, 1)
	downstream := make(chan error, 1)

	go func() {
		_, err := io.Copy(conn, in)
		if cw, ok := conn.(interface{ CloseWrite() error }); ok {
			cw.CloseWrite()
		}
		upstream <- err
	}()

	go func() {
		_, err := io.Copy(protocol.NewFlushWriter(out), conn)
		downstream <- err
	}()

	for {
		select {
		case err := <-upstream:
			if err != nil {
				conn.Close()
				return err
			}
			upstream = nil
		case err := <-downstream:
			if err != nil && !errors.Is(err, net.ErrClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
			conn.Close()
			return nil
		}
	}
}
