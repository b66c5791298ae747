package openapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/alucardeht/elk-mcp/internal/tools"
)

const (
	DefaultScopedSearchName  = "search_content"
	DefaultScopedSearchIndex = "content-*"

	indexSearchPath = "/{index}/_search"
)

// ScopedSearch configures a search tool whose index is fixed, so the caller only
// supplies the query body.
type ScopedSearch struct {
	Name  string `yaml:"name"`
	Index string `yaml:"index"`
}

func (s ScopedSearch) withDefaults() ScopedSearch {
	if s.Name == "" {
		s.Name = DefaultScopedSearchName
	}
	if s.Index == "" {
		s.Index = DefaultScopedSearchIndex
	}
	return s
}

func isIndexSearch(method, path string) bool {
	return method == http.MethodPost && path == indexSearchPath
}

// ScopedSearchTool runs the spec's POST /{index}/_search operation with index
// pinned to a pattern.
type ScopedSearchTool struct {
	name   string
	index  string
	search *OperationTool
	schema json.RawMessage
}

func newScopedSearchTool(name, index string, search *OperationTool) (*ScopedSearchTool, error) {
	schema, err := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"body": map[string]any{
				"type":        "object",
				"description": "Search query or aggregation query, e.g. {\"query\": {\"match\": {\"field\": \"value\"}}}",
			},
		},
		"required": []string{"body"},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: marshal input schema: %w", name, err)
	}
	return &ScopedSearchTool{name: name, index: index, search: search, schema: schema}, nil
}

func (t *ScopedSearchTool) Name() string { return t.name }
func (t *ScopedSearchTool) Title() string {
	return "Search " + t.index
}

func (t *ScopedSearchTool) Description() string {
	return fmt.Sprintf("Search for documents ONLY in indices matching '%s'. "+
		"This tool automatically searches all matching indices. "+
		"Provide only the query body (e.g., {\"query\": {\"match\": {\"field\": \"value\"}}}).", t.index)
}

func (t *ScopedSearchTool) Schema() json.RawMessage { return t.schema }

// Searching does not change the cluster even though it is a POST.
func (t *ScopedSearchTool) Annotations() map[string]bool {
	hints := tools.ReadOnlyAnnotations()
	hints["openWorldHint"] = true
	return hints
}

// Index is the pattern every call is pinned to.
func (t *ScopedSearchTool) Index() string { return t.index }

func (t *ScopedSearchTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	var in struct {
		Body json.RawMessage `json:"body"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, tools.NewInvalidInputError(t.name, err)
	}
	if isNull(in.Body) || bytes.TrimSpace(in.Body)[0] != '{' {
		return nil, tools.NewInvalidInputError(t.name, fmt.Errorf("body must be a JSON object"))
	}

	index, err := json.Marshal(t.index)
	if err != nil {
		return nil, tools.NewInvalidInputError(t.name, err)
	}

	args := map[string]json.RawMessage{"index": index}
	if t.search.body != nil {
		args[t.search.body.key] = in.Body
	}
	forwarded, err := json.Marshal(args)
	if err != nil {
		return nil, tools.NewInvalidInputError(t.name, err)
	}
	return t.search.Execute(ctx, forwarded)
}
