package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"
)

type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (interface{}, error)
}

type AnnotatedTool interface {
	Tool
	Title() string
	Annotations() map[string]bool
}

// CallObserver is notified after every tool execution that went through the registry.
type CallObserver func(name string, input json.RawMessage, duration time.Duration, err error)

// ChangeObserver is notified after ReplaceGroup swapped a group's tools.
type ChangeObserver func(group string)

type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	groups    map[string][]string
	observers []CallObserver
	onChange  []ChangeObserver
}

func NewRegistry() *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		groups: make(map[string][]string),
	}
}

func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registerLocked(tool)
}

func (r *Registry) registerLocked(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}

	r.tools[name] = tool
	return nil
}

// ReplaceGroup swaps every tool previously registered under group for the given
// set in one step. Callers never observe a half-replaced group. On a name clash
// with a tool outside the group nothing changes.
func (r *Registry) ReplaceGroup(group string, tools []Tool) error {
	r.mu.Lock()
	err := r.replaceGroupLocked(group, tools)
	observers := append([]ChangeObserver(nil), r.onChange...)
	r.mu.Unlock()

	if err != nil {
		return err
	}
	for _, observe := range observers {
		observe(group)
	}
	return nil
}

func (r *Registry) replaceGroupLocked(group string, tools []Tool) error {
	old := make(map[string]bool, len(r.groups[group]))
	for _, name := range r.groups[group] {
		old[name] = true
	}

	seen := make(map[string]bool, len(tools))
	for _, tool := range tools {
		name := tool.Name()
		if name == "" {
			return fmt.Errorf("%s: tool name cannot be empty", group)
		}
		if seen[name] {
			return fmt.Errorf("%s: duplicate tool %s", group, name)
		}
		seen[name] = true
		if _, exists := r.tools[name]; exists && !old[name] {
			return fmt.Errorf("%s: tool already registered: %s", group, name)
		}
	}

	for name := range old {
		delete(r.tools, name)
	}

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		r.tools[tool.Name()] = tool
		names = append(names, tool.Name())
	}
	r.groups[group] = names

	return nil
}

// Group returns the names registered under group.
func (r *Registry) Group(group string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := append([]string(nil), r.groups[group]...)
	sort.Strings(names)
	return names
}

func (r *Registry) Observe(observer CallObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, observer)
}

// OnChange registers observer for group replacements. It runs outside the
// registry lock, after the new tools are visible.
func (r *Registry) OnChange(observer ChangeObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, observer)
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (interface{}, error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, NewToolNotFoundError(name)
	}

	start := time.Now()
	result, err := tool.Execute(ctx, input)
	r.notify(name, input, time.Since(start), err)

	return result, err
}

// ExecuteWithTimeout runs the tool under a deadline. A non-positive timeout means
// no deadline beyond ctx's own.
func (r *Registry) ExecuteWithTimeout(ctx context.Context, name string, input json.RawMessage, timeout time.Duration) (interface{}, error) {
	if timeout <= 0 {
		return r.Execute(ctx, name, input)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return r.Execute(ctx, name, input)
}

func (r *Registry) notify(name string, input json.RawMessage, d time.Duration, err error) {
	r.mu.RLock()
	observers := append([]CallObserver(nil), r.observers...)
	r.mu.RUnlock()

	for _, observe := range observers {
		observe(name, input, d, err)
	}
}

// List returns the registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name() < result[j].Name()
	})
	return result
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
