package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/alucardeht/elk-mcp/internal/logger"
	"github.com/alucardeht/elk-mcp/internal/tools"
	"github.com/alucardeht/elk-mcp/pkg/protocol"
	"github.com/alucardeht/elk-mcp/pkg/version"
)

var log = logger.ForComponent("mcp")

const (
	DefaultServerName  = "elk-mcp"
	DefaultCallTimeout = 60 * time.Second
)

type Handler struct {
	registry    *tools.Registry
	serverName  string
	callTimeout time.Duration

	mu          sync.Mutex
	initialized bool
	clientInfo  ClientInfo
}

func NewHandler(registry *tools.Registry, opts ...Option) *Handler {
	h := &Handler{
		registry:    registry,
		serverName:  DefaultServerName,
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle dispatches one request. Notifications yield a nil response.
func (h *Handler) Handle(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		h.handleNotification(req)
		return nil
	}

	resp := &Response{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      req.ID,
	}

	var (
		result interface{}
		err    error
	)

	switch req.Method {
	case "initialize":
		result, err = h.handleInitialize(req)
	case "ping":
		result = map[string]interface{}{}
	case "tools/list":
		result = h.handleListTools()
	case "tools/call":
		result, err = h.handleCallTool(ctx, req)
	default:
		err = &protocol.JSONRPCError{
			Code:    protocol.CodeMethodNotFound,
			Message: fmt.Sprintf("Method not found: %s", req.Method),
		}
	}

	if err != nil {
		var rpcErr *protocol.JSONRPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &protocol.JSONRPCError{Code: protocol.CodeInternalError, Message: err.Error()}
		}
		resp.Error = rpcErr
		return resp
	}

	resp.Result = result
	return resp
}

func (h *Handler) handleNotification(req *Request) {
	switch req.Method {
	case "notifications/initialized":
		h.mu.Lock()
		h.initialized = true
		client := h.clientInfo
		h.mu.Unlock()
		log.Info("client initialized", "client", client.Name, "version", client.Version)
	case "notifications/cancelled":
	default:
		log.Debug("ignoring notification", "method", req.Method)
	}
}

func invalidParams(format string, args ...interface{}) error {
	return &protocol.JSONRPCError{
		Code:    protocol.CodeInvalidParams,
		Message: fmt.Sprintf(format, args...),
	}
}

func (h *Handler) handleInitialize(req *Request) (interface{}, error) {
	var params InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, invalidParams("failed to parse initialize request: %v", err)
		}
	}

	h.mu.Lock()
	h.clientInfo = params.ClientInfo
	h.mu.Unlock()

	return &InitializeResult{
		ProtocolVersion: negotiateProtocolVersion(params.ProtocolVersion),
		Capabilities: map[string]interface{}{
			"tools": map[string]interface{}{"listChanged": true},
		},
		ServerInfo: ClientInfo{
			Name:    h.serverName,
			Version: version.Version,
		},
	}, nil
}

func negotiateProtocolVersion(clientVersion string) string {
	for _, v := range version.SupportedProtocolVersions {
		if clientVersion == v {
			return v
		}
	}

	return version.ProtocolVersion
}

func (h *Handler) handleListTools() interface{} {
	toolsList := h.registry.List()
	result := protocol.ListToolsResult{Tools: make([]Tool, 0, len(toolsList))}

	for _, t := range toolsList {
		entry := Tool{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.Schema(),
		}
		if !json.Valid(entry.InputSchema) {
			entry.InputSchema = json.RawMessage(`{"type":"object"}`)
		}

		if annotated, ok := t.(tools.AnnotatedTool); ok {
			entry.Title = annotated.Title()
			entry.Annotations = annotated.Annotations()
		}

		result.Tools = append(result.Tools, entry)
	}

	return result
}

// handleCallTool reports tool failures as isError results so the model can see
// them; only malformed calls and unknown tools become JSON-RPC errors.
func (h *Handler) handleCallTool(ctx context.Context, req *Request) (result interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("tool panic recovered",
				"panic", r,
				"stack", string(debug.Stack()))
			result = protocol.TextResult(fmt.Sprintf("tool execution panicked: %v", r), true)
			err = nil
		}
	}()

	var params protocol.CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, invalidParams("failed to parse tool call request: %v", err)
	}
	if params.Name == "" {
		return nil, invalidParams("tool name is required")
	}
	if _, ok := h.registry.Get(params.Name); !ok {
		return nil, invalidParams("Tool not found: %s", params.Name)
	}

	start := time.Now()
	out, err := h.registry.ExecuteWithTimeout(ctx, params.Name, params.Arguments, h.callTimeout)
	if err != nil {
		log.Warn("tool call failed",
			"tool", params.Name,
			"duration", time.Since(start),
			"error", err)
		return protocol.TextResult(err.Error(), true), nil
	}

	text, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	log.Debug("tool call finished", "tool", params.Name, "duration", time.Since(start))
	return protocol.TextResult(string(text), false), nil
}

func (h *Handler) Initialized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.initialized
}
