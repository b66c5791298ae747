// Package mcp serves a tool registry over newline-delimited JSON-RPC 2.0, and
// over HTTP with the SSE transport.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/alucardeht/elk-mcp/internal/tools"
	"github.com/alucardeht/elk-mcp/pkg/protocol"
)

const maxMessageSize = 16 * 1024 * 1024

type Server struct {
	registry *tools.Registry
	handler  *Handler

	mu          sync.Mutex
	subscribers map[uint64]func(v interface{}) error
	nextSub     uint64
}

type Option func(*Handler)

// WithCallTimeout bounds each tools/call. Zero disables the limit.
func WithCallTimeout(d time.Duration) Option {
	return func(h *Handler) { h.callTimeout = d }
}

func WithServerName(name string) Option {
	return func(h *Handler) { h.serverName = name }
}

// NewServer serves registry. Every successful group replacement in registry is
// announced to connected clients as notifications/tools/list_changed.
func NewServer(registry *tools.Registry, opts ...Option) *Server {
	s := &Server{
		registry:    registry,
		handler:     NewHandler(registry, opts...),
		subscribers: make(map[uint64]func(v interface{}) error),
	}
	registry.OnChange(func(group string) {
		log.Debug("tool list changed", "group", group)
		s.Notify(protocol.MethodToolsListChanged)
	})
	return s
}

// HandleRequest returns nil for notifications.
func (s *Server) HandleRequest(ctx context.Context, req *Request) *Response {
	return s.handler.Handle(ctx, req)
}

// Notify sends a notification to every connected stream and SSE session.
func (s *Server) Notify(method string) {
	msg := &protocol.JSONRPCNotification{JSONRPC: protocol.JSONRPCVersion, Method: method}

	s.mu.Lock()
	sends := make([]func(v interface{}) error, 0, len(s.subscribers))
	for _, send := range s.subscribers {
		sends = append(sends, send)
	}
	s.mu.Unlock()

	for _, send := range sends {
		if err := send(msg); err != nil {
			log.Debug("notification not delivered", "method", method, "error", err)
		}
	}
}

func (s *Server) subscribe(send func(v interface{}) error) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = send
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subscribers, id)
	}
}

// ProcessStream reads one request per line from reader and writes one response
// per line to writer until reader is exhausted or ctx is done. Notifications
// from Notify are interleaved on writer between responses.
func (s *Server) ProcessStream(ctx context.Context, reader io.Reader, writer io.Writer) error {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)

	var mu sync.Mutex
	encoder := json.NewEncoder(protocol.NewFlushWriter(writer))
	send := func(v interface{}) error {
		mu.Lock()
		defer mu.Unlock()
		return encoder.Encode(v)
	}
	defer s.subscribe(send)()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			log.Warn("invalid request line", "error", err)
			if err := send(parseErrorResponse()); err != nil {
				return err
			}
			continue
		}

		resp := s.HandleRequest(ctx, &req)
		if resp == nil {
			continue
		}
		if err := send(resp); err != nil {
			return err
		}
	}

	return scanner.Err()
}

func parseErrorResponse() *Response {
	return &Response{
		JSONRPC: protocol.JSONRPCVersion,
		Error: &protocol.JSONRPCError{
			Code:    protocol.CodeParseError,
			Message: "Parse error",
		},
	}
}

func (s *Server) Registry() *tools.Registry {
	return s.registry
}
