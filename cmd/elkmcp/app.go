package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alucardeht/elk-mcp/internal/catalog"
	"github.com/alucardeht/elk-mcp/internal/config"
	"github.com/alucardeht/elk-mcp/internal/metrics"
	"github.com/alucardeht/elk-mcp/internal/specsource"
	"github.com/alucardeht/elk-mcp/internal/tools"
	"github.com/alucardeht/elk-mcp/internal/tools/history"
)

// app is everything a command needs to list or execute tools in-process.
type app struct {
	registry *tools.Registry
	catalog  *catalog.Catalog
	metrics  *metrics.Collector
	history  *history.Store
}

// newApp wires the registry for cfg. When backends is non-empty only those
// backends are loaded.
func newApp(cfg *config.Config, backends []string) (*app, error) {
	filter, err := tools.NewFilter(cfg.Tools)
	if err != nil {
		return nil, err
	}

	sources, err := selectSources(catalog.SourcesFromConfig(cfg), backends)
	if err != nil {
		return nil, err
	}

	a := &app{
		registry: tools.NewRegistry(),
		metrics:  metrics.NewCollector(),
	}
	a.registry.Observe(a.metrics.ObserveCall)
	a.catalog = catalog.New(a.registry, sources,
		catalog.WithFilter(filter),
		catalog.WithRecorder(a.metrics))

	if err := a.registry.Register(tools.NewHealthTool(a.registry, a.catalog.Groups()...)); err != nil {
		return nil, err
	}

	if cfg.History {
		if err := cfg.EnsureDirectories(); err != nil {
			return nil, err
		}
		store, err := history.NewStore(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.history = store
		a.registry.Observe(store.Observer())
		for _, t := range history.GetTools(store) {
			if err := a.registry.Register(t); err != nil {
				store.Close()
				return nil, err
			}
		}
	}

	return a, nil
}

func (a *app) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

func selectSources(sources []catalog.Source, backends []string) ([]catalog.Source, error) {
	if len(backends) == 0 {
		return sources, nil
	}

	want := make(map[string]bool, len(backends))
	for _, name := range backends {
		b, err := specsource.LookupBackend(name)
		if err != nil {
			return nil, err
		}
		want[b.Name] = true
	}

	var out []catalog.Source
	for _, src := range sources {
		if want[src.Backend.Name] {
			out = append(out, src)
			delete(want, src.Backend.Name)
		}
	}
	if len(want) > 0 {
		disabled := make([]string, 0, len(want))
		for name := range want {
			disabled = append(disabled, name)
		}
		sort.Strings(disabled)
		return nil, fmt.Errorf("backend disabled: %s", strings.Join(disabled, ", "))
	}
	return out, nil
}
