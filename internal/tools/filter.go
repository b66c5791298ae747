package tools

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter selects tools by name using glob patterns ("search*", "indices-get-*").
// An empty filter admits everything.
type Filter struct {
	patterns []string
}

// NewFilter validates the patterns up front so a typo fails at startup instead of
// silently hiding every tool.
func NewFilter(patterns []string) (*Filter, error) {
	f := &Filter{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid tool pattern: %q", p)
		}
		f.patterns = append(f.patterns, p)
	}
	return f, nil
}

func (f *Filter) Empty() bool {
	return f == nil || len(f.patterns) == 0
}

func (f *Filter) Allows(name string) bool {
	if f.Empty() {
		return true
	}
	for _, p := range f.patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Apply returns the subset of ts admitted by the filter, preserving order.
func (f *Filter) Apply(ts []Tool) []Tool {
	if f.Empty() {
		return ts
	}
	out := make([]Tool, 0, len(ts))
	for _, t := range ts {
		if f.Allows(t.Name()) {
			out = append(out, t)
		}
	}
	return out
}
