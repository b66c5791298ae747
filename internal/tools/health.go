package tools

import (
	"context"
	"encoding/json"
	"time"
)

type HealthTool struct {
	registry *Registry
	groups   []string
	started  time.Time
}

// NewHealthTool reports on the given registry; groups lists the backends whose
// tool counts should be included.
func NewHealthTool(registry *Registry, groups ...string) *HealthTool {
	return &HealthTool{
		registry: registry,
		groups:   groups,
		started:  time.Now(),
	}
}

func (t *HealthTool) Name() string {
	return "health"
}

func (t *HealthTool) Description() string {
	return "Check server health and how many tools each backend exposes"
}

func (t *HealthTool) Title() string {
	return "Server Health"
}

func (t *HealthTool) Annotations() map[string]bool {
	return ReadOnlyAnnotations()
}

func (t *HealthTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {},
		"required": []
	}`)
}

func (t *HealthTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	backends := make(map[string]int, len(t.groups))
	for _, g := range t.groups {
		backends[g] = len(t.registry.Group(g))
	}

	return map[string]interface{}{
		"status":         "healthy",
		"uptime_seconds": int64(time.Since(t.started).Seconds()),
		"tools":          len(t.registry.Names()),
		"backends":       backends,
	}, nil
}
