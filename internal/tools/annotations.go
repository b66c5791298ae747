package tools

import "net/http"

func ReadOnlyAnnotations() map[string]bool {
	return map[string]bool{
		"readOnlyHint":    true,
		"destructiveHint": false,
		"idempotentHint":  true,
		"openWorldHint":   false,
	}
}

func DestructiveAnnotations() map[string]bool {
	return map[string]bool{
		"readOnlyHint":    false,
		"destructiveHint": true,
		"idempotentHint":  true,
		"openWorldHint":   false,
	}
}

func SafeWriteAnnotations() map[string]bool {
	return map[string]bool{
		"readOnlyHint":    false,
		"destructiveHint": false,
		"idempotentHint":  true,
		"openWorldHint":   false,
	}
}

func NonIdempotentWriteAnnotations() map[string]bool {
	return map[string]bool{
		"readOnlyHint":    false,
		"destructiveHint": false,
		"idempotentHint":  false,
		"openWorldHint":   false,
	}
}

// MethodAnnotations maps an HTTP method onto MCP hints. Remote calls always set
// openWorldHint since they reach a service outside this process.
func MethodAnnotations(method string) map[string]bool {
	var hints map[string]bool
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		hints = ReadOnlyAnnotations()
	case http.MethodDelete:
		hints = DestructiveAnnotations()
	case http.MethodPut:
		hints = SafeWriteAnnotations()
	default:
		hints = NonIdempotentWriteAnnotations()
	}
	hints["openWorldHint"] = true
	return hints
}
