package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTool struct {
	name  string
	delay time.Duration
	err   error
}

func (s *stubTool) Name() string            { return s.name }
func (s *stubTool) Description() string     { return "stub " + s.name }
func (s *stubTool) Schema() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }

func (s *stubTool) Execute(ctx context.Context, input json.RawMessage) (interface{}, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return map[string]interface{}{"tool": s.name, "input": string(input)}, nil
}

func stubs(names ...string) []Tool {
	out := make([]Tool, 0, len(names))
	for _, n := range names {
		out = append(out, &stubTool{name: n})
	}
	return out
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&stubTool{name: "health"}))
	assert.Error(t, r.Register(&stubTool{name: "health"}))
	assert.Error(t, r.Register(&stubTool{name: ""}))

	tool, ok := r.Get("health")
	require.True(t, ok)
	assert.Equal(t, "health", tool.Name())

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistryReplaceGroup(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubTool{name: "health"}))

	require.NoError(t, r.ReplaceGroup("elasticsearch", stubs("search-3", "cat-indices")))
	require.NoError(t, r.ReplaceGroup("kibana", stubs("kibana_get-status")))
	assert.Equal(t, []string{"cat-indices", "health", "kibana_get-status", "search-3"}, r.Names())
	assert.Equal(t, []string{"cat-indices", "search-3"}, r.Group("elasticsearch"))

	require.NoError(t, r.ReplaceGroup("elasticsearch", stubs("search-3", "index")))
	assert.Equal(t, []string{"health", "index", "kibana_get-status", "search-3"}, r.Names())

	err := r.ReplaceGroup("elasticsearch", stubs("health"))
	assert.ErrorContains(t, err, "already registered")
	assert.Equal(t, []string{"index", "search-3"}, r.Group("elasticsearch"), "failed replace leaves group intact")

	assert.ErrorContains(t, r.ReplaceGroup("kibana", stubs("a", "a")), "duplicate")

	require.NoError(t, r.ReplaceGroup("elasticsearch", nil))
	assert.Empty(t, r.Group("elasticsearch"))
	assert.Equal(t, []string{"health", "kibana_get-status"}, r.Names())
}

func TestRegistryOnChange(t *testing.T) {
	r := NewRegistry()

	var changed []string
	r.OnChange(func(group string) {
		assert.Equal(t, len(r.Group(group)) > 0, group == "elasticsearch", "new tools are visible to the observer")
		changed = append(changed, group)
	})

	require.NoError(t, r.Register(&stubTool{name: "health"}))
	require.NoError(t, r.ReplaceGroup("elasticsearch", stubs("search-3")))
	assert.Error(t, r.ReplaceGroup("kibana", stubs("health")))
	require.NoError(t, r.ReplaceGroup("kibana", nil))

	assert.Equal(t, []string{"elasticsearch", "kibana"}, changed, "failed replaces and plain registrations are silent")
}

func TestRegistryExecute(t *testing.T) {
	r := NewRegistry()
	failure := errors.New("boom")
	require.NoError(t, r.Register(&stubTool{name: "ok"}))
	require.NoError(t, r.Register(&stubTool{name: "fails", err: failure}))

	var mu sync.Mutex
	var calls []string
	r.Observe(func(name string, input json.RawMessage, d time.Duration, err error) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, name)
	})

	result, err := r.Execute(context.Background(), "ok", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	assert.Equal(t, `{"x":1}`, result.(map[string]interface{})["input"])

	_, err = r.Execute(context.Background(), "fails", nil)
	assert.ErrorIs(t, err, failure)

	_, err = r.Execute(context.Background(), "missing", nil)
	assert.Equal(t, CodeMethodNotFound, ErrorCode(err))

	assert.Equal(t, []string{"ok", "fails"}, calls, "observers skip unknown tools")
}

func TestRegistryExecuteWithTimeout(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&stubTool{name: "slow", delay: time.Second}))

	_, err := r.ExecuteWithTimeout(context.Background(), "slow", nil, 20*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, r.Register(&stubTool{name: "fast"}))
	_, err = r.ExecuteWithTimeout(context.Background(), "fast", nil, 0)
	assert.NoError(t, err)
}

func TestFilter(t *testing.T) {
	f, err := NewFilter([]string{"cat-indices", " search-* ", "", "indices-get-mapping*"})
	require.NoError(t, err)
	assert.False(t, f.Empty())

	assert.True(t, f.Allows("cat-indices"))
	assert.True(t, f.Allows("search-3"))
	assert.True(t, f.Allows("indices-get-mapping-1"))
	assert.False(t, f.Allows("index"))

	kept := f.Apply(stubs("index", "search-3", "cat-indices"))
	require.Len(t, kept, 2)
	assert.Equal(t, "search-3", kept[0].Name())

	var nilFilter *Filter
	assert.True(t, nilFilter.Empty())
	assert.True(t, nilFilter.Allows("anything"))

	_, err = NewFilter([]string{"search-["})
	assert.Error(t, err)
}

func TestHealthTool(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.ReplaceGroup("elasticsearch", stubs("search-3", "cat-indices")))
	health := NewHealthTool(r, "elasticsearch", "kibana")
	require.NoError(t, r.Register(health))

	result, err := health.Execute(context.Background(), nil)
	require.NoError(t, err)

	m := result.(map[string]interface{})
	assert.Equal(t, "healthy", m["status"])
	assert.Equal(t, 3, m["tools"])
	assert.Equal(t, map[string]int{"elasticsearch": 2, "kibana": 0}, m["backends"])
	assert.True(t, health.Annotations()["readOnlyHint"])
}

func TestMethodAnnotations(t *testing.T) {
	get := MethodAnnotations("GET")
	assert.True(t, get["readOnlyHint"])
	assert.True(t, get["openWorldHint"])

	del := MethodAnnotations("DELETE")
	assert.True(t, del["destructiveHint"])

	post := MethodAnnotations("POST")
	assert.False(t, post["idempotentHint"])
	assert.False(t, post["readOnlyHint"])

	assert.False(t, ReadOnlyAnnotations()["openWorldHint"], "shared sets are not mutated")
}
