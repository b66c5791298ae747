package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alucardeht/elk-mcp/internal/tools"
)

func GetTools(store *Store) []tools.Tool {
	return []tools.Tool{
		NewListTool(store),
		NewSearchTool(store),
	}
}

type ListTool struct {
	store *Store
}

func NewListTool(store *Store) *ListTool {
	return &ListTool{store: store}
}

func (t *ListTool) Name() string {
	return "history_list"
}

func (t *ListTool) Description() string {
	return `List recent tool calls made through this server, newest first.

Each entry has the tool name, the arguments it was called with, whether it
succeeded, the error text if it failed and how long it took.`
}

func (t *ListTool) Title() string {
	return "List Call History"
}

func (t *ListTool) Annotations() map[string]bool {
	return tools.ReadOnlyAnnotations()
}

func (t *ListTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"tool": {
				"type": "string",
				"description": "Only calls to this tool"
			},
			"status": {
				"type": "string",
				"enum": ["ok", "error"],
				"description": "Only successful or only failed calls"
			},
			"limit": {
				"type": "integer",
				"description": "Max results to return (default 50, max 100)"
			}
		}
	}`)
}

func (t *ListTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var req struct {
		Tool   string `json:"tool"`
		Status string `json:"status"`
		Limit  int    `json:"limit"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &req); err != nil {
			return nil, tools.NewInvalidInputError(t.Name(), err)
		}
	}

	status := Status(req.Status)
	if status != "" && status != StatusOK && status != StatusError {
		return nil, tools.NewInvalidInputError(t.Name(), fmt.Errorf("unknown status %q", req.Status))
	}

	calls, err := t.store.List(ctx, ListOptions{Tool: req.Tool, Status: status, Limit: req.Limit})
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}

	return map[string]interface{}{
		"total": len(calls),
		"calls": callItems(calls),
	}, nil
}

type SearchTool struct {
	store *Store
}

func NewSearchTool(store *Store) *SearchTool {
	return &SearchTool{store: store}
}

func (t *SearchTool) Name() string {
	return "history_search"
}

func (t *SearchTool) Description() string {
	return "Full-text search over past tool calls (tool names, arguments and error messages)"
}

func (t *SearchTool) Title() string {
	return "Search Call History"
}

func (t *SearchTool) Annotations() map[string]bool {
	return tools.ReadOnlyAnnotations()
}

func (t *SearchTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {
				"type": "string",
				"description": "Text to look for, matched as a phrase"
			},
			"limit": {
				"type": "integer",
				"description": "Max results"
			}
		},
		"required": ["query"]
	}`)
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var req struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if err := json.Unmarshal(input, &req); err != nil {
		return nil, tools.NewInvalidInputError(t.Name(), err)
	}
	if req.Query == "" {
		return nil, tools.NewInvalidInputError(t.Name(), fmt.Errorf("search query is required"))
	}

	calls, err := t.store.Search(ctx, req.Query, req.Limit)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	return map[string]interface{}{
		"query": req.Query,
		"total": len(calls),
		"calls": callItems(calls),
	}, nil
}

func callItems(calls []*Call) []map[string]interface{} {
	items := make([]map[string]interface{}, 0, len(calls))
	for _, c := range calls {
		item := map[string]interface{}{
			"id":          c.ID,
			"tool":        c.Tool,
			"arguments":   c.Arguments,
			"status":      c.Status,
			"duration_ms": c.DurationMs,
			"created_at":  c.CreatedAt.Format(time.RFC3339),
		}
		if c.Error != "" {
			item["error"] = c.Error
		}
		items = append(items, item)
	}
	return items
}
