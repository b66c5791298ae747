package openapi

import (
	"fmt"
	"regexp"
	"strings"
)

type RouteType string

const (
	RouteTool    RouteType = "tool"
	RouteExclude RouteType = "exclude"
)

// RouteMap decides whether an operation becomes a tool. Every set field must match:
// Methods (any of, "*" for all), Pattern (regexp against the path) and Tags (any of).
// Maps are evaluated in order and the first match wins; unmatched operations
// become tools.
type RouteMap struct {
	Methods []string  `yaml:"methods" json:"methods,omitempty"`
	Pattern string    `yaml:"pattern" json:"pattern,omitempty"`
	Tags    []string  `yaml:"tags" json:"tags,omitempty"`
	Type    RouteType `yaml:"type" json:"type"`
}

type compiledRoute struct {
	methods map[string]bool
	pattern *regexp.Regexp
	tags    map[string]bool
	kind    RouteType
}

func compileRoutes(maps []RouteMap) ([]compiledRoute, error) {
	out := make([]compiledRoute, 0, len(maps))

	for i, m := range maps {
		kind := m.Type
		if kind == "" {
			kind = RouteTool
		}
		if kind != RouteTool && kind != RouteExclude {
			return nil, fmt.Errorf("route map %d: unknown type %q", i, m.Type)
		}

		cr := compiledRoute{kind: kind}

		for _, method := range m.Methods {
			if method == "*" {
				cr.methods = nil
				break
			}
			if cr.methods == nil {
				cr.methods = make(map[string]bool)
			}
			cr.methods[strings.ToUpper(method)] = true
		}

		if m.Pattern != "" {
			re, err := regexp.Compile(m.Pattern)
			if err != nil {
				return nil, fmt.Errorf("route map %d: %w", i, err)
			}
			cr.pattern = re
		}

		for _, tag := range m.Tags {
			if cr.tags == nil {
				cr.tags = make(map[string]bool)
			}
			cr.tags[tag] = true
		}

		out = append(out, cr)
	}

	return out, nil
}

func (cr compiledRoute) matches(method, path string, tags []string) bool {
	if cr.methods != nil && !cr.methods[method] {
		return false
	}
	if cr.pattern != nil && !cr.pattern.MatchString(path) {
		return false
	}
	if cr.tags != nil {
		for _, tag := range tags {
			if cr.tags[tag] {
				return true
			}
		}
		return false
	}
	return true
}

func routeType(routes []compiledRoute, method, path string, tags []string) RouteType {
	for _, cr := range routes {
		if cr.matches(method, path, tags) {
			return cr.kind
		}
	}
	return RouteTool
}
