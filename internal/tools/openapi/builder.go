// Package openapi exposes the operations of a resolved OpenAPI document as tools.
// Parsing, $ref resolution and the path/operation model come from kin-openapi;
// this package decides which operations become tools, names them, derives their
// input schemas and routes calls through a specsource.Client.
package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/alucardeht/elk-mcp/internal/circuit"
	"github.com/alucardeht/elk-mcp/internal/logger"
	"github.com/alucardeht/elk-mcp/internal/specsource"
	"github.com/alucardeht/elk-mcp/internal/tools"
)

var log = logger.ForComponent("openapi")

const (
	DefaultSchemaDepth    = 4
	DefaultDescriptionLen = 2000
	maxToolNameLen        = 64
)

// methodOrder fixes the order operations on one path are visited in, so generated
// names (and their de-duplication suffixes) are stable across runs.
var methodOrder = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodTrace,
}

type Options struct {
	// Prefix is prepended to every tool name, e.g. "kibana_".
	Prefix    string
	RouteMaps []RouteMap
	Filter    *tools.Filter
	// SchemaDepth bounds $ref inlining in input schemas.
	SchemaDepth int
	// DescriptionLen truncates tool descriptions, in runes.
	DescriptionLen int
	// Breaker, when set, is shared by every generated tool of the backend.
	Breaker *circuit.Breaker
	// ScopedSearch adds an index-pinned search tool next to the generated ones
	// when the document has a POST /{index}/_search operation.
	ScopedSearch *ScopedSearch
}

func (o Options) withDefaults() Options {
	if o.SchemaDepth <= 0 {
		o.SchemaDepth = DefaultSchemaDepth
	}
	if o.DescriptionLen <= 0 {
		o.DescriptionLen = DefaultDescriptionLen
	}
	return o
}

// Load parses a resolved document with kin-openapi. Pass-through documents carry no
// parsed content and are rejected.
func Load(ctx context.Context, doc specsource.Document) (*openapi3.T, error) {
	if doc.IsRaw() {
		return nil, fmt.Errorf("spec %q has no recognized extension and was not parsed", doc.Raw)
	}
	if doc.Data == nil {
		return nil, fmt.Errorf("spec document is empty")
	}

	data, err := json.Marshal(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("encode spec: %w", err)
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx

	spec, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("load openapi document: %w", err)
	}
	return spec, nil
}

// Build generates one tool per routed operation in doc.
func Build(ctx context.Context, doc specsource.Document, client *specsource.Client, opts Options) ([]tools.Tool, error) {
	opts = opts.withDefaults()

	routes, err := compileRoutes(opts.RouteMaps)
	if err != nil {
		return nil, err
	}

	spec, err := Load(ctx, doc)
	if err != nil {
		return nil, err
	}
	if spec.Paths == nil {
		return nil, nil
	}

	pathItems := spec.Paths.Map()
	paths := make([]string, 0, len(pathItems))
	for p := range pathItems {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	used := make(map[string]int)
	var result []tools.Tool
	var indexSearch *OperationTool
	excluded := 0

	for _, path := range paths {
		item := pathItems[path]
		if item == nil {
			continue
		}
		ops := item.Operations()

		for _, method := range methodOrder {
			op := ops[method]
			if op == nil {
				continue
			}

			if routeType(routes, method, path, op.Tags) == RouteExclude {
				excluded++
				continue
			}

			name := uniqueName(used, opts.Prefix+toolName(op.OperationID, method, path))
			allowed := opts.Filter.Allows(name)
			// The scoped search needs the operation even when the filter hides it.
			scoped := opts.ScopedSearch != nil && indexSearch == nil && isIndexSearch(method, path)
			if !allowed && !scoped {
				continue
			}

			tool, err := newOperationTool(name, method, path, item, op, client, opts)
			if err != nil {
				return nil, err
			}
			if scoped {
				indexSearch = tool
			}
			if allowed {
				result = append(result, tool)
			}
		}
	}

	if opts.ScopedSearch != nil {
		scoped := opts.ScopedSearch.withDefaults()
		name := uniqueName(used, opts.Prefix+scoped.Name)
		switch {
		case indexSearch == nil:
			log.Warn("spec has no index search operation, skipping scoped search tool",
				"tool", name, "title", doc.Title())
		case opts.Filter.Allows(name):
			tool, err := newScopedSearchTool(name, scoped.Index, indexSearch)
			if err != nil {
				return nil, err
			}
			result = append(result, tool)
		}
	}

	log.Info("generated tools from spec",
		"title", doc.Title(),
		"paths", len(paths),
		"tools", len(result),
		"excluded", excluded)

	return result, nil
}

func newOperationTool(name, method, path string, item *openapi3.PathItem, op *openapi3.Operation, client *specsource.Client, opts Options) (*OperationTool, error) {
	t := &OperationTool{
		name:        name,
		title:       toolTitle(name, op.Summary),
		description: toolDescription(method, path, op, opts.DescriptionLen),
		method:      method,
		path:        path,
		params:      collectParams(item.Parameters, op.Parameters, opts.SchemaDepth),
		client:      client,
		breaker:     opts.Breaker,
	}

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		t.body = collectBody(op.RequestBody.Value, t.params, opts.SchemaDepth)
	}

	if err := t.buildSchema(); err != nil {
		return nil, err
	}
	return t, nil
}

// collectParams merges path-level and operation-level parameters; the operation's
// definition wins for the same (in, name). Cookie parameters are skipped.
func collectParams(pathLevel, opLevel openapi3.Parameters, depth int) []param {
	type key struct{ in, name string }
	index := make(map[key]int)
	var out []param

	for _, list := range []openapi3.Parameters{pathLevel, opLevel} {
		for _, ref := range list {
			if ref == nil || ref.Value == nil {
				continue
			}
			p := ref.Value
			if p.In == openapi3.ParameterInCookie {
				continue
			}

			entry := param{
				name:        p.Name,
				in:          p.In,
				required:    p.Required || p.In == openapi3.ParameterInPath,
				description: p.Description,
				schema:      schemaMap(p.Schema, depth),
			}
			if len(entry.schema) == 0 {
				entry.schema = map[string]any{"type": "string"}
			}

			k := key{p.In, p.Name}
			if i, ok := index[k]; ok {
				out[i] = entry
				continue
			}
			index[k] = len(out)
			out = append(out, entry)
		}
	}

	return out
}

func collectBody(rb *openapi3.RequestBody, params []param, depth int) *requestBody {
	if len(rb.Content) == 0 {
		return nil
	}

	contentType := "application/json"
	if _, ok := rb.Content[contentType]; !ok {
		types := make([]string, 0, len(rb.Content))
		for ct := range rb.Content {
			types = append(types, ct)
		}
		sort.Strings(types)
		contentType = types[0]
	}

	key := "body"
	for _, p := range params {
		if p.name == key {
			key = "request_body"
			break
		}
	}

	body := &requestBody{
		key:         key,
		required:    rb.Required,
		contentType: contentType,
		schema:      map[string]any{},
	}
	if mt := rb.Content[contentType]; mt != nil {
		body.schema = schemaMap(mt.Schema, depth)
	}
	if rb.Description != "" {
		body.schema["description"] = rb.Description
	}
	return body
}

var nonNameChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// toolName derives a stable identifier from the operationId, or from method and
// path when the operation has none.
func toolName(operationID, method, path string) string {
	base := operationID
	if base == "" {
		base = method + "_" + path
	}

	name := nonNameChars.ReplaceAllString(strings.ToLower(base), "_")
	name = strings.Trim(name, "_-")
	if name == "" {
		name = strings.ToLower(method)
	}
	if len(name) > maxToolNameLen {
		name = strings.TrimRight(name[:maxToolNameLen], "_-")
	}
	return name
}

func uniqueName(used map[string]int, name string) string {
	used[name]++
	n := used[name]
	if n == 1 {
		return name
	}

	suffix := "-" + strconv.Itoa(n)
	candidate := name + suffix
	if len(candidate) > maxToolNameLen {
		candidate = name[:maxToolNameLen-len(suffix)] + suffix
	}
	if used[candidate] > 0 {
		return uniqueName(used, candidate)
	}
	used[candidate] = 1
	return candidate
}

func toolTitle(name, summary string) string {
	if summary = strings.TrimSpace(summary); summary != "" {
		return summary
	}
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' })
	return cases.Title(language.English).String(strings.Join(words, " "))
}

func toolDescription(method, path string, op *openapi3.Operation, limit int) string {
	text := strings.TrimSpace(op.Description)
	if text == "" {
		text = strings.TrimSpace(op.Summary)
	}
	endpoint := method + " " + path
	if text == "" {
		return endpoint
	}
	return truncate(text, limit) + "\n\n" + endpoint
}
