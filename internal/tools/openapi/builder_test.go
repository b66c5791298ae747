package openapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alucardeht/elk-mcp/internal/circuit"
	"github.com/alucardeht/elk-mcp/internal/specsource"
	"github.com/alucardeht/elk-mcp/internal/tools"
)

const searchSpec = `
openapi: 3.0.3
info:
  title: Elasticsearch Request & Response Specification
  version: 9.0.0
paths:
  /_cat/indices:
    get:
      operationId: cat-indices
      summary: Get index information
      parameters:
        - name: format
          in: query
          schema:
            type: string
  /{index}/_search:
    parameters:
      - name: index
        in: path
        required: true
        description: Comma-separated list of data streams
        schema:
          type: string
    post:
      operationId: search-3
      description: Run a search.
      tags: [search]
      parameters:
        - name: size
          in: query
          schema:
            type: integer
      requestBody:
        content:
          application/json:
            schema:
              $ref: '#/components/schemas/SearchRequest'
  /{index}/_doc:
    post:
      operationId: index
      tags: [document]
      parameters:
        - name: index
          in: path
          required: true
          schema:
            type: string
      requestBody:
        required: true
        content:
          application/json:
            schema:
              type: object
  /{index}:
    delete:
      operationId: indices-delete
      parameters:
        - name: index
          in: path
          required: true
          schema:
            type: string
    head:
      operationId: indices-exists
      parameters:
        - name: index
          in: path
          required: true
          schema:
            type: string
  /_mapping:
    get:
      operationId: indices-get-mapping
  /_mapping/field:
    get:
      operationId: indices-get-mapping
components:
  schemas:
    SearchRequest:
      type: object
      properties:
        query:
          $ref: '#/components/schemas/Query'
    Query:
      type: object
      properties:
        match_all:
          type: object
`

func loadSearchSpec(t *testing.T) specsource.Document {
	t.Helper()
	data, err := specsource.Parse([]byte(searchSpec), specsource.FormatYAML)
	require.NoError(t, err)
	return specsource.Document{Data: data}
}

func toolNames(ts []tools.Tool) []string {
	names := make([]string, 0, len(ts))
	for _, tool := range ts {
		names = append(names, tool.Name())
	}
	return names
}

func findTool(t *testing.T, ts []tools.Tool, name string) *OperationTool {
	t.Helper()
	for _, tool := range ts {
		if tool.Name() == name {
			op, ok := tool.(*OperationTool)
			require.True(t, ok)
			return op
		}
	}
	t.Fatalf("tool %s not generated; have %v", name, toolNames(ts))
	return nil
}

func TestBuildGeneratesTools(t *testing.T) {
	client := specsource.NewClient(specsource.ClientConfig{BaseURL: "http://localhost:9200"})

	ts, err := Build(context.Background(), loadSearchSpec(t), client, Options{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"cat-indices",
		"search-3",
		"index",
		"indices-delete",
		"indices-exists",
		"indices-get-mapping",
		"indices-get-mapping-2",
	}, toolNames(ts))

	search := findTool(t, ts, "search-3")
	assert.Equal(t, http.MethodPost, search.Method())
	assert.Equal(t, "/{index}/_search", search.Path())
	assert.Contains(t, search.Description(), "Run a search.")
	assert.Contains(t, search.Description(), "POST /{index}/_search")

	var schema struct {
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(search.Schema(), &schema))
	assert.Equal(t, []string{"index"}, schema.Required)
	assert.Equal(t, "Comma-separated list of data streams", schema.Properties["index"]["description"])
	assert.Equal(t, "integer", schema.Properties["size"]["type"])

	body := schema.Properties["body"]
	require.NotNil(t, body)
	query := body["properties"].(map[string]any)["query"].(map[string]any)
	assert.Contains(t, query["properties"], "match_all", "component refs are inlined")

	assert.True(t, search.Annotations()["openWorldHint"])
	assert.False(t, search.Annotations()["readOnlyHint"])
	assert.True(t, findTool(t, ts, "cat-indices").Annotations()["readOnlyHint"])
	assert.True(t, findTool(t, ts, "indices-delete").Annotations()["destructiveHint"])
}

func TestBuildRouteMaps(t *testing.T) {
	client := specsource.NewClient(specsource.ClientConfig{})
	doc := loadSearchSpec(t)

	ts, err := Build(context.Background(), doc, client, Options{
		RouteMaps: []RouteMap{
			{Methods: []string{"delete"}, Type: RouteExclude},
			{Pattern: `^/_mapping`, Type: RouteExclude},
			{Tags: []string{"document"}, Type: RouteExclude},
			{Methods: []string{"*"}, Pattern: `.*`, Type: RouteTool},
		},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cat-indices", "search-3", "indices-exists"}, toolNames(ts))

	_, err = Build(context.Background(), doc, client, Options{
		RouteMaps: []RouteMap{{Pattern: `(`}},
	})
	assert.Error(t, err)

	_, err = Build(context.Background(), doc, client, Options{
		RouteMaps: []RouteMap{{Type: "resource"}},
	})
	assert.Error(t, err)
}

func TestBuildPrefixAndFilter(t *testing.T) {
	filter, err := tools.NewFilter([]string{"kibana_cat-*", "kibana_search*"})
	require.NoError(t, err)

	ts, err := Build(context.Background(), loadSearchSpec(t), specsource.NewClient(specsource.ClientConfig{}), Options{
		Prefix: "kibana_",
		Filter: filter,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"kibana_cat-indices", "kibana_search-3"}, toolNames(ts))
}

func TestBuildRejectsRawDocument(t *testing.T) {
	_, err := Build(context.Background(), specsource.Document{Raw: "rendered-spec"}, nil, Options{})
	assert.ErrorContains(t, err, "rendered-spec")
}

func TestOperationToolExecute(t *testing.T) {
	var gotPath, gotQuery, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":{"total":{"value":1}}}`))
	}))
	defer srv.Close()

	client := specsource.NewClient(specsource.ClientConfig{BaseURL: srv.URL, APIKey: "secret"})
	ts, err := Build(context.Background(), loadSearchSpec(t), client, Options{})
	require.NoError(t, err)

	search := findTool(t, ts, "search-3")
	result, err := search.Execute(context.Background(), json.RawMessage(`{
		"index": ["logs-a", "logs-b"],
		"size": 5,
		"body": {"query": {"match_all": {}}}
	}`))
	require.NoError(t, err)

	assert.Equal(t, "/logs-a,logs-b/_search", gotPath)
	assert.Equal(t, "size=5", gotQuery)
	assert.Equal(t, "ApiKey secret", gotAuth)
	assert.JSONEq(t, `{"query": {"match_all": {}}}`, gotBody)
	assert.Equal(t, map[string]interface{}{
		"hits": map[string]interface{}{"total": map[string]interface{}{"value": float64(1)}},
	}, result)
}

func TestOperationToolValidation(t *testing.T) {
	client := specsource.NewClient(specsource.ClientConfig{BaseURL: "http://127.0.0.1:1"})
	ts, err := Build(context.Background(), loadSearchSpec(t), client, Options{})
	require.NoError(t, err)

	_, err = findTool(t, ts, "index").Execute(context.Background(), json.RawMessage(`{"body": {"user": {"id": "alebaro"}}}`))
	require.Error(t, err)
	assert.Equal(t, tools.CodeInvalidParams, tools.ErrorCode(err))
	assert.ErrorContains(t, err, `"index"`)

	_, err = findTool(t, ts, "index").Execute(context.Background(), json.RawMessage(`{"index": "mcp-test-index"}`))
	assert.Equal(t, tools.CodeInvalidParams, tools.ErrorCode(err))

	_, err = findTool(t, ts, "index").Execute(context.Background(), json.RawMessage(`[1]`))
	assert.Equal(t, tools.CodeInvalidParams, tools.ErrorCode(err))
}

func TestOperationToolHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"index_not_found_exception"}`))
	}))
	defer srv.Close()

	client := specsource.NewClient(specsource.ClientConfig{BaseURL: srv.URL})
	ts, err := Build(context.Background(), loadSearchSpec(t), client, Options{})
	require.NoError(t, err)

	_, err = findTool(t, ts, "indices-delete").Execute(context.Background(), json.RawMessage(`{"index": "missing"}`))
	require.Error(t, err)

	var httpErr *HTTPError
	require.True(t, errors.As(err, &httpErr))
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.Contains(t, httpErr.Body, "index_not_found_exception")
}

func TestOperationToolBreaker(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	breaker := circuit.New(circuit.Config{FailureThreshold: 2, OpenTimeout: time.Hour})
	client := specsource.NewClient(specsource.ClientConfig{BaseURL: srv.URL})
	ts, err := Build(context.Background(), loadSearchSpec(t), client, Options{Breaker: breaker})
	require.NoError(t, err)
	tool := findTool(t, ts, "indices-delete")

	_, err = tool.Execute(context.Background(), json.RawMessage(`{"index": "missing"}`))
	require.Error(t, err)
	assert.Equal(t, circuit.Closed, breaker.State(), "4xx is the caller's problem")

	for i := 0; i < 2; i++ {
		_, err = tool.Execute(context.Background(), json.RawMessage(`{"index": "logs"}`))
		require.Error(t, err)
	}
	assert.Equal(t, circuit.Open, breaker.State())

	_, err = findTool(t, ts, "cat-indices").Execute(context.Background(), nil)
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.Equal(t, int32(3), hits.Load())
}

func TestOperationToolEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := specsource.NewClient(specsource.ClientConfig{BaseURL: srv.URL})
	ts, err := Build(context.Background(), loadSearchSpec(t), client, Options{})
	require.NoError(t, err)

	result, err := findTool(t, ts, "indices-exists").Execute(context.Background(), json.RawMessage(`{"index": "logs"}`))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"status": http.StatusOK}, result)
}

func TestToolNaming(t *testing.T) {
	assert.Equal(t, "get___cat_indices", toolName("", "GET", "/_cat/indices"))
	assert.Equal(t, "search-3", toolName("search-3", "POST", "/x"))
	assert.Equal(t, "fleet_agent_policies", toolName("Fleet Agent Policies", "GET", "/x"))

	assert.Equal(t, "Indices Get Mapping 1", toolTitle("indices-get-mapping-1", ""))
	assert.Equal(t, "Get index information", toolTitle("cat-indices", " Get index information "))

	used := map[string]int{}
	assert.Equal(t, "a", uniqueName(used, "a"))
	assert.Equal(t, "a-2", uniqueName(used, "a"))
	assert.Equal(t, "a-3", uniqueName(used, "a"))
}

func findScoped(t *testing.T, ts []tools.Tool, name string) *ScopedSearchTool {
	t.Helper()
	for _, tool := range ts {
		if tool.Name() == name {
			scoped, ok := tool.(*ScopedSearchTool)
			require.True(t, ok)
			return scoped
		}
	}
	t.Fatalf("tool %s not generated; have %v", name, toolNames(ts))
	return nil
}

func TestScopedSearchPinsIndex(t *testing.T) {
	var gotMethod, gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hits":{"hits":[]}}`))
	}))
	defer srv.Close()

	client := specsource.NewClient(specsource.ClientConfig{BaseURL: srv.URL, APIKey: "secret"})
	ts, err := Build(context.Background(), loadSearchSpec(t), client, Options{ScopedSearch: &ScopedSearch{}})
	require.NoError(t, err)

	search := findScoped(t, ts, "search_content")
	assert.Equal(t, "content-*", search.Index())
	assert.Contains(t, search.Description(), "content-*")
	assert.True(t, search.Annotations()["readOnlyHint"])

	var schema struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	require.NoError(t, json.Unmarshal(search.Schema(), &schema))
	assert.Equal(t, []string{"body"}, schema.Required)
	assert.Len(t, schema.Properties, 1)

	_, err = search.Execute(context.Background(), json.RawMessage(`{
		"index": "secrets",
		"body": {"query": {"match": {"title": "elastic"}}}
	}`))
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "/content-*/_search", gotPath)
	assert.JSONEq(t, `{"query": {"match": {"title": "elastic"}}}`, gotBody)

	_, err = search.Execute(context.Background(), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Equal(t, tools.CodeInvalidParams, tools.ErrorCode(err))
}

func TestScopedSearchOptions(t *testing.T) {
	client := specsource.NewClient(specsource.ClientConfig{BaseURL: "http://localhost:9200"})

	t.Run("custom pattern and prefix", func(t *testing.T) {
		ts, err := Build(context.Background(), loadSearchSpec(t), client, Options{
			Prefix:       "es_",
			ScopedSearch: &ScopedSearch{Name: "search_docs", Index: "docs-*"},
		})
		require.NoError(t, err)
		assert.Equal(t, "docs-*", findScoped(t, ts, "es_search_docs").Index())
	})

	t.Run("filter hides the generic search", func(t *testing.T) {
		filter, err := tools.NewFilter([]string{"search_content"})
		require.NoError(t, err)

		ts, err := Build(context.Background(), loadSearchSpec(t), client, Options{
			Filter:       filter,
			ScopedSearch: &ScopedSearch{},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"search_content"}, toolNames(ts))
	})

	t.Run("no index search operation", func(t *testing.T) {
		data, err := specsource.Parse([]byte(`
openapi: 3.0.3
info: {title: Kibana, version: 9.0.0}
paths:
  /api/status:
    get:
      operationId: get-status
`), specsource.FormatYAML)
		require.NoError(t, err)

		ts, err := Build(context.Background(), specsource.Document{Data: data}, client, Options{ScopedSearch: &ScopedSearch{}})
		require.NoError(t, err)
		assert.Equal(t, []string{"get-status"}, toolNames(ts))
	})
}
