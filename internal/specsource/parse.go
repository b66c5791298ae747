package specsource

import (
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var errNotMapping = errors.New("document root is not a mapping")

// Parse decodes data in the given format into a JSON-compatible mapping.
func Parse(data []byte, format Format) (map[string]any, error) {
	var root any

	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &root); err != nil {
			return nil, err
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &root); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}

	doc, ok := normalize(root).(map[string]any)
	if !ok {
		return nil, errNotMapping
	}
	return doc, nil
}

// normalize rewrites YAML mappings keyed by non-strings (unquoted status codes such
// as 200) into string-keyed maps so the document survives a JSON round trip.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = normalize(child)
		}
		return t
	case map[any]any:
		m := make(map[string]any, len(t))
		for k, child := range t {
			m[fmt.Sprint(k)] = normalize(child)
		}
		return m
	case []any:
		for i, child := range t {
			t[i] = normalize(child)
		}
		return t
	}
	return v
}
