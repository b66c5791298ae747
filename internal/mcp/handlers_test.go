package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alucardeht/elk-mcp/internal/tools"
	"github.com/alucardeht/elk-mcp/pkg/protocol"
	"github.com/alucardeht/elk-mcp/pkg/version"
)

type echoTool struct{}

func (echoTool) Name() string            { return "echo" }
func (echoTool) Description() string     { return "Echo the arguments back" }
func (echoTool) Title() string           { return "Echo" }
func (echoTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (echoTool) Annotations() map[string]bool {
	return tools.ReadOnlyAnnotations()
}

func (echoTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, tools.NewInvalidInputError("echo", err)
	}
	return args, nil
}

type failingTool struct {
	panics bool
	delay  time.Duration
}

func (f failingTool) Name() string {
	switch {
	case f.panics:
		return "explode"
	case f.delay > 0:
		return "slow"
	}
	return "fail"
}
func (failingTool) Description() string     { return "always fails" }
func (failingTool) Schema() json.RawMessage { return json.RawMessage(`not json`) }

func (f failingTool) Execute(ctx context.Context, _ json.RawMessage) (interface{}, error) {
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, errors.New("backend returned HTTP 404: index_not_found_exception")
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	registry := tools.NewRegistry()
	require.NoError(t, registry.Register(echoTool{}))
	require.NoError(t, registry.Register(failingTool{}))
	require.NoError(t, registry.Register(failingTool{panics: true}))
	require.NoError(t, registry.Register(failingTool{delay: time.Second}))
	return NewServer(registry, WithCallTimeout(50*time.Millisecond))
}

func call(t *testing.T, s *Server, method string, params interface{}) *Response {
	t.Helper()
	req := &Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		require.NoError(t, err)
		req.Params = data
	}
	resp := s.HandleRequest(context.Background(), req)
	require.NotNil(t, resp)
	return resp
}

func callResult(t *testing.T, resp *Response) *protocol.CallToolResult {
	t.Helper()
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(*protocol.CallToolResult)
	require.True(t, ok, "unexpected result type %T", resp.Result)
	return result
}

func TestInitialize(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, "initialize", map[string]interface{}{
		"protocolVersion": "2025-03-26",
		"clientInfo":      map[string]string{"name": "chat", "version": "1.0"},
	})
	require.Nil(t, resp.Error)
	result := resp.Result.(*InitializeResult)
	assert.Equal(t, "2025-03-26", result.ProtocolVersion)
	assert.Equal(t, DefaultServerName, result.ServerInfo.Name)
	assert.Equal(t, map[string]interface{}{"listChanged": true}, result.Capabilities["tools"])

	resp = call(t, s, "initialize", map[string]interface{}{"protocolVersion": "1999-01-01"})
	assert.Equal(t, version.ProtocolVersion, resp.Result.(*InitializeResult).ProtocolVersion)

	assert.Nil(t, s.HandleRequest(context.Background(), &Request{JSONRPC: "2.0", Method: "notifications/initialized"}))
	assert.True(t, s.handler.Initialized())
}

func TestListTools(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, "tools/list", nil)
	require.Nil(t, resp.Error)
	list := resp.Result.(protocol.ListToolsResult)
	require.Len(t, list.Tools, 4)

	echo := list.Tools[0]
	assert.Equal(t, "echo", echo.Name)
	assert.Equal(t, "Echo", echo.Title)
	assert.True(t, echo.Annotations["readOnlyHint"])

	for _, tool := range list.Tools {
		assert.True(t, json.Valid(tool.InputSchema), tool.Name)
	}
}

func TestCallTool(t *testing.T) {
	s := newTestServer(t)

	result := callResult(t, call(t, s, "tools/call", map[string]interface{}{
		"name":      "echo",
		"arguments": map[string]interface{}{"index": "logs"},
	}))
	assert.False(t, result.IsError)
	require.Len(t, result.Content, 1)
	assert.JSONEq(t, `{"index":"logs"}`, result.Content[0].Text)

	result = callResult(t, call(t, s, "tools/call", map[string]interface{}{"name": "fail"}))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "index_not_found_exception")

	result = callResult(t, call(t, s, "tools/call", map[string]interface{}{"name": "explode"}))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "panicked")

	result = callResult(t, call(t, s, "tools/call", map[string]interface{}{"name": "slow"}))
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "deadline exceeded")
}

func TestCallToolErrors(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, "tools/call", map[string]interface{}{"name": "missing"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInvalidParams, resp.Error.Code)

	resp = call(t, s, "tools/call", map[string]interface{}{})
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeInvalidParams, resp.Error.Code)

	resp = call(t, s, "resources/list", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, protocol.CodeMethodNotFound, resp.Error.Code)
}

func TestProcessStream(t *testing.T) {
	s := newTestServer(t)

	input := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-06-18"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`{not json`,
		`{"jsonrpc":"2.0","id":"abc","method":"ping"}`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"echo","arguments":{"q":1}}}`,
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, s.ProcessStream(context.Background(), strings.NewReader(input), &out))

	var responses []map[string]interface{}
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m))
		responses = append(responses, m)
	}

	require.Len(t, responses, 4, "notifications get no response")
	assert.EqualValues(t, 1, responses[0]["id"])
	assert.Nil(t, responses[1]["id"])
	assert.EqualValues(t, protocol.CodeParseError, responses[1]["error"].(map[string]interface{})["code"])
	assert.Equal(t, "abc", responses[2]["id"])
	assert.EqualValues(t, 3, responses[3]["id"])
}

type renamedTool struct {
	echoTool
	name string
}

func (r renamedTool) Name() string { return r.name }

func TestProcessStreamAnnouncesToolListChanges(t *testing.T) {
	s := newTestServer(t)

	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	done := make(chan error, 1)
	go func() {
		done <- s.ProcessStream(context.Background(), inR, outW)
		outW.Close()
	}()
	lines := bufio.NewScanner(outR)

	_, err := io.WriteString(inW, `{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n")
	require.NoError(t, err)
	require.True(t, lines.Scan())

	replaced := make(chan error, 1)
	go func() {
		replaced <- s.Registry().ReplaceGroup("elasticsearch", []tools.Tool{renamedTool{name: "search-3"}})
	}()

	require.True(t, lines.Scan())
	var note protocol.JSONRPCNotification
	require.NoError(t, json.Unmarshal(lines.Bytes(), &note))
	assert.Equal(t, protocol.MethodToolsListChanged, note.Method)
	require.NoError(t, <-replaced)

	require.NoError(t, inW.Close())
	require.NoError(t, <-done)

	s.Notify(protocol.MethodToolsListChanged)
	assert.Empty(t, s.subscribers, "closed streams unsubscribe")
}
