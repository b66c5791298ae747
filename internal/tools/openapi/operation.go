package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/alucardeht/elk-mcp/internal/circuit"
	"github.com/alucardeht/elk-mcp/internal/specsource"
	"github.com/alucardeht/elk-mcp/internal/tools"
)

type param struct {
	name        string
	in          string
	required    bool
	description string
	schema      map[string]any
}

type requestBody struct {
	key         string
	required    bool
	contentType string
	schema      map[string]any
}

// OperationTool invokes one OpenAPI operation against the backend client.
type OperationTool struct {
	name        string
	title       string
	description string
	method      string
	path        string
	params      []param
	body        *requestBody
	schema      json.RawMessage
	client      *specsource.Client
	breaker     *circuit.Breaker
}

func (t *OperationTool) Name() string        { return t.name }
func (t *OperationTool) Description() string { return t.description }
func (t *OperationTool) Title() string       { return t.title }
func (t *OperationTool) Schema() json.RawMessage {
	return t.schema
}

func (t *OperationTool) Annotations() map[string]bool {
	return tools.MethodAnnotations(t.method)
}

// Method and Path identify the operation the tool was generated from.
func (t *OperationTool) Method() string { return t.method }
func (t *OperationTool) Path() string   { return t.path }

func (t *OperationTool) buildSchema() error {
	props := make(map[string]any, len(t.params)+1)
	required := make([]string, 0)

	for _, p := range t.params {
		s := make(map[string]any, len(p.schema)+1)
		for k, v := range p.schema {
			s[k] = v
		}
		if p.description != "" {
			s["description"] = p.description
		}
		props[p.name] = s
		if p.required {
			required = append(required, p.name)
		}
	}

	if t.body != nil {
		s := make(map[string]any, len(t.body.schema)+1)
		for k, v := range t.body.schema {
			s[k] = v
		}
		if _, ok := s["description"]; !ok {
			s["description"] = fmt.Sprintf("Request body (%s)", t.body.contentType)
		}
		props[t.body.key] = s
		if t.body.required {
			required = append(required, t.body.key)
		}
	}

	sort.Strings(required)
	schema, err := json.Marshal(map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	})
	if err != nil {
		return fmt.Errorf("%s: marshal input schema: %w", t.name, err)
	}
	t.schema = schema
	return nil
}

// HTTPError is returned when the backend answers with a 4xx or 5xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("backend returned HTTP %d: %s", e.StatusCode, e.Body)
}

func (t *OperationTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	args := map[string]json.RawMessage{}
	if len(bytes.TrimSpace(input)) > 0 && !bytes.Equal(bytes.TrimSpace(input), []byte("null")) {
		if err := json.Unmarshal(input, &args); err != nil {
			return nil, tools.NewInvalidInputError(t.name, err)
		}
	}

	req, err := t.request(args)
	if err != nil {
		return nil, tools.NewInvalidInputError(t.name, err)
	}

	var ticket circuit.Ticket
	if t.breaker != nil {
		var ok bool
		if ticket, ok = t.breaker.Allow(); !ok {
			return nil, tools.NewToolExecutionError(t.name, circuit.ErrOpen)
		}
	}

	resp, err := t.client.Do(ctx, req)
	t.record(ctx, ticket, resp, err)
	if err != nil {
		return nil, tools.NewToolExecutionError(t.name, err)
	}

	if resp.StatusCode >= 400 {
		return nil, tools.NewToolExecutionError(t.name, &HTTPError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(resp.Body), 2048),
		})
	}

	return decodeBody(resp), nil
}

// record counts transport failures and 5xx answers against the backend. A call
// cut short by the caller's context says nothing about the backend.
func (t *OperationTool) record(ctx context.Context, ticket circuit.Ticket, resp *specsource.Response, err error) {
	if t.breaker == nil {
		return
	}
	switch {
	case err != nil && ctx.Err() != nil:
		t.breaker.Abandon(ticket)
	case err != nil, resp.StatusCode >= 500:
		t.breaker.RecordFailure(ticket)
	default:
		t.breaker.RecordSuccess(ticket)
	}
}

func (t *OperationTool) request(args map[string]json.RawMessage) (specsource.Request, error) {
	req := specsource.Request{
		Method: t.method,
		Query:  url.Values{},
		Header: http.Header{},
	}

	path := t.path
	for _, p := range t.params {
		raw, ok := args[p.name]
		if !ok || isNull(raw) {
			if p.required {
				return req, fmt.Errorf("missing required parameter %q", p.name)
			}
			continue
		}

		value := stringify(raw)
		switch p.in {
		case "path":
			path = strings.ReplaceAll(path, "{"+p.name+"}", url.PathEscape(value))
		case "query":
			req.Query.Set(p.name, value)
		case "header":
			req.Header.Set(p.name, value)
		}
	}
	req.Path = path

	if t.body != nil {
		raw, ok := args[t.body.key]
		switch {
		case ok && !isNull(raw):
			req.Body = []byte(raw)
			var text string
			if !strings.Contains(t.body.contentType, "json") && json.Unmarshal(raw, &text) == nil {
				req.Body = []byte(text)
			}
			req.Header.Set("Content-Type", t.body.contentType)
		case t.body.required:
			return req, fmt.Errorf("missing required parameter %q", t.body.key)
		}
	}

	return req, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// stringify renders a JSON argument the way Elasticsearch expects it on the URL:
// strings unquoted, arrays comma-joined, everything else as JSON text.
func stringify(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		parts := make([]string, 0, len(list))
		for _, item := range list {
			parts = append(parts, stringify(item))
		}
		return strings.Join(parts, ",")
	}

	return string(bytes.TrimSpace(raw))
}

func decodeBody(resp *specsource.Response) interface{} {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return map[string]interface{}{"status": resp.StatusCode}
	}

	var decoded interface{}
	if err := json.Unmarshal(resp.Body, &decoded); err == nil {
		return decoded
	}
	return string(resp.Body)
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
