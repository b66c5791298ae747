package openapi

import (
	"encoding/json"

	"github.com/getkin/kin-openapi/openapi3"
)

// nestedKeys are the schema keywords whose values are rebuilt from resolved refs.
var nestedKeys = []string{"properties", "items", "allOf", "oneOf", "anyOf", "not", "additionalProperties"}

// schemaMap renders a resolved kin-openapi schema as plain JSON Schema, inlining
// $refs up to depth levels. Recursive types (the query DSL is full of them) are cut
// at the limit, where only scalar keywords such as type and description survive.
func schemaMap(ref *openapi3.SchemaRef, depth int) map[string]any {
	if ref == nil || ref.Value == nil {
		return map[string]any{}
	}
	s := ref.Value

	m := map[string]any{}
	if raw, err := json.Marshal(s); err == nil {
		_ = json.Unmarshal(raw, &m)
	}
	for _, k := range nestedKeys {
		delete(m, k)
	}
	delete(m, "$ref")

	if depth <= 0 {
		return m
	}

	if len(s.Properties) > 0 {
		props := make(map[string]any, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = schemaMap(p, depth-1)
		}
		m["properties"] = props
	}
	if s.Items != nil {
		m["items"] = schemaMap(s.Items, depth-1)
	}
	for key, refs := range map[string]openapi3.SchemaRefs{
		"allOf": s.AllOf,
		"oneOf": s.OneOf,
		"anyOf": s.AnyOf,
	} {
		if len(refs) == 0 {
			continue
		}
		list := make([]any, 0, len(refs))
		for _, r := range refs {
			list = append(list, schemaMap(r, depth-1))
		}
		m[key] = list
	}
	if s.Not != nil {
		m["not"] = schemaMap(s.Not, depth-1)
	}
	if ap := s.AdditionalProperties.Schema; ap != nil {
		m["additionalProperties"] = schemaMap(ap, depth-1)
	} else if has := s.AdditionalProperties.Has; has != nil {
		m["additionalProperties"] = *has
	}

	return m
}
