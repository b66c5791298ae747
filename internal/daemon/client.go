package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/sourcegraph/jsonrpc2"

	"github.com/alucardeht/elk-mcp/internal/mcp"
	"github.com/alucardeht/elk-mcp/pkg/protocol"
	"github.com/alucardeht/elk-mcp/pkg/version"
)

// Client talks to a running daemon over its socket.
type Client struct {
	conn *jsonrpc2.Conn
}

// Dial connects to the daemon at socketPath. Call Initialize before anything else.
func Dial(ctx context.Context, socketPath string) (*Client, error) {
	netConn, err := NewSocketConnector(socketPath).Connect(ctx)
	if err != nil {
		return nil, err
	}
	return NewClient(ctx, netConn), nil
}

func NewClient(ctx context.Context, netConn net.Conn) *Client {
	stream := jsonrpc2.NewBufferedStream(netConn, jsonrpc2.PlainObjectCodec{})
	return &Client{conn: jsonrpc2.NewConn(ctx, stream, &clientHandler{})}
}

type clientHandler struct{}

// Handle ignores server-initiated messages. The CLI makes one call per
// connection, so a tools/list_changed notification has nothing to refresh.
func (h *clientHandler) Handle(ctx context.Context, conn *jsonrpc2.Conn, req *jsonrpc2.Request) {
}

func (c *Client) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	params := mcp.InitializeParams{
		ProtocolVersion: version.ProtocolVersion,
		ClientInfo:      mcp.ClientInfo{Name: "elkmcp-cli", Version: version.Version},
	}

	var result mcp.InitializeResult
	if err := c.conn.Call(ctx, "initialize", params, &result); err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	if err := c.conn.Notify(ctx, "notifications/initialized", struct{}{}); err != nil {
		return nil, fmt.Errorf("initialized notification failed: %w", err)
	}
	return &result, nil
}

func (c *Client) ListTools(ctx context.Context) ([]protocol.Tool, error) {
	var result protocol.ListToolsResult
	if err := c.conn.Call(ctx, "tools/list", struct{}{}, &result); err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a tool. A tool-level failure comes back as a result with
// IsError set, not as an error.
func (c *Client) CallTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	params := protocol.CallToolParams{Name: name, Arguments: args}

	var result protocol.CallToolResult
	if err := c.conn.Call(ctx, "tools/call", params, &result); err != nil {
		return nil, fmt.Errorf("tools/call %s failed: %w", name, err)
	}
	return &result, nil
}

func (c *Client) Ping(ctx context.Context) error {
	var result json.RawMessage
	return c.conn.Call(ctx, "ping", nil, &result)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
