// Package catalog turns configured backends into registered tools: it resolves
// each backend's spec, generates its tools and keeps them current when a local
// spec file changes.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alucardeht/elk-mcp/internal/circuit"
	"github.com/alucardeht/elk-mcp/internal/config"
	"github.com/alucardeht/elk-mcp/internal/logger"
	"github.com/alucardeht/elk-mcp/internal/specsource"
	"github.com/alucardeht/elk-mcp/internal/tools"
	"github.com/alucardeht/elk-mcp/internal/tools/openapi"
	"github.com/alucardeht/elk-mcp/internal/watcher"
)

var log = logger.ForComponent("catalog")

// Recorder receives load statistics. *metrics.Collector implements it.
type Recorder interface {
	ObserveResolve(backend string, d time.Duration, err error)
	SetTools(backend string, n int)
}

// Source is one backend as configured: where its spec is and how to reach it.
type Source struct {
	Backend   specsource.Backend
	Locator   specsource.Locator
	Client    *specsource.Client
	Prefix    string
	RouteMaps []openapi.RouteMap
	// Breaker guards calls to the backend. It outlives reloads so a spec change
	// does not reset it.
	Breaker *circuit.Breaker
	// ScopedSearch, when set, adds an index-pinned search tool to the group.
	ScopedSearch *openapi.ScopedSearch
}

// SourcesFromConfig builds a Source for every enabled backend, with clients taken
// from the process environment.
func SourcesFromConfig(cfg *config.Config) []Source {
	var out []Source
	for _, b := range cfg.Enabled() {
		bc := cfg.Backends[b.Name]
		src := Source{
			Backend:   b,
			Locator:   cfg.Locator(b),
			Client:    specsource.NewDefaultClient(b),
			Prefix:    bc.Prefix,
			RouteMaps: bc.RouteMaps,
			Breaker:   circuit.New(cfg.Breaker),
		}
		if b.Name == specsource.Elasticsearch.Name && cfg.ContentSearch.Enabled {
			src.ScopedSearch = &openapi.ScopedSearch{
				Name:  cfg.ContentSearch.Name,
				Index: cfg.ContentSearch.Index,
			}
		}
		out = append(out, src)
	}
	return out
}

type Catalog struct {
	registry *tools.Registry
	resolver *specsource.Resolver
	filter   *tools.Filter
	recorder Recorder

	mu      sync.Mutex
	sources map[string]Source
	order   []string
}

type Option func(*Catalog)

func WithResolver(r *specsource.Resolver) Option {
	return func(c *Catalog) { c.resolver = r }
}

func WithFilter(f *tools.Filter) Option {
	return func(c *Catalog) { c.filter = f }
}

func WithRecorder(r Recorder) Option {
	return func(c *Catalog) { c.recorder = r }
}

func New(registry *tools.Registry, sources []Source, opts ...Option) *Catalog {
	c := &Catalog{
		registry: registry,
		resolver: specsource.NewResolver(),
		sources:  make(map[string]Source),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, src := range sources {
		if _, ok := c.sources[src.Backend.Name]; !ok {
			c.order = append(c.order, src.Backend.Name)
		}
		c.sources[src.Backend.Name] = src
	}
	return c
}

// Groups returns the backend names in load order; each is a registry group.
func (c *Catalog) Groups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.order...)
}

// LoadAll loads every backend. A failing backend does not stop the others; the
// returned error joins all failures.
func (c *Catalog) LoadAll(ctx context.Context) error {
	var errs []error
	for _, name := range c.Groups() {
		if _, err := c.Load(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load resolves one backend's spec and swaps its tools into the registry. On
// failure the previously registered tools are left untouched.
func (c *Catalog) Load(ctx context.Context, name string) (int, error) {
	c.mu.Lock()
	src, ok := c.sources[name]
	c.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("unknown backend: %q", name)
	}

	start := time.Now()
	n, err := c.load(ctx, src)
	if c.recorder != nil {
		c.recorder.ObserveResolve(name, time.Since(start), err)
	}
	if err != nil {
		log.Error("failed to load backend", "backend", name, "spec", src.Locator.String(), "error", err)
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	if c.recorder != nil {
		c.recorder.SetTools(name, n)
	}
	log.Info("backend loaded", "backend", name, "tools", n, "duration", time.Since(start))
	return n, nil
}

func (c *Catalog) load(ctx context.Context, src Source) (int, error) {
	doc, err := c.resolver.Resolve(ctx, src.Locator, src.Backend)
	if err != nil {
		return 0, err
	}

	generated, err := openapi.Build(ctx, doc, src.Client, openapi.Options{
		Prefix:       src.Prefix,
		RouteMaps:    src.RouteMaps,
		Filter:       c.filter,
		Breaker:      src.Breaker,
		ScopedSearch: src.ScopedSearch,
	})
	if err != nil {
		return 0, err
	}

	if err := c.registry.ReplaceGroup(src.Backend.Name, generated); err != nil {
		return 0, err
	}
	return len(generated), nil
}

// Watch registers every backend whose spec is a local file with w, reloading
// that backend when the file changes. It returns the number of files watched.
func (c *Catalog) Watch(ctx context.Context, w *watcher.Watcher) (int, error) {
	watched := 0
	for _, name := range c.Groups() {
		c.mu.Lock()
		src := c.sources[name]
		c.mu.Unlock()

		if src.Locator.IsAbsent() || src.Locator.IsInline() || src.Locator.IsRemote() {
			continue
		}

		backend := name
		err := w.Watch(src.Locator.Text(), func(e watcher.FileEvent) {
			log.Info("spec file changed, reloading", "backend", backend, "path", e.Path, "event", e.Type.String())
			if _, err := c.Load(ctx, backend); err != nil {
				log.Warn("reload failed, keeping previous tools", "backend", backend, "error", err)
			}
		})
		if err != nil {
			return watched, fmt.Errorf("%s: %w", name, err)
		}
		watched++
	}
	return watched, nil
}
