package specsource

import (
	"net/url"
	"path"
	"strings"
)

type locatorKind int

const (
	kindAbsent locatorKind = iota
	kindInline
	kindRef
)

// Locator points at an OpenAPI document. The zero value is absent and resolves to
// the backend's default. Build one with Inline or Ref.
type Locator struct {
	kind locatorKind
	doc  map[string]any
	ref  string
}

// Inline wraps an already-parsed document. An empty document counts as absent.
func Inline(doc map[string]any) Locator {
	if len(doc) == 0 {
		return Locator{}
	}
	return Locator{kind: kindInline, doc: doc}
}

// Ref wraps a URL or filesystem path. Empty text counts as absent.
func Ref(text string) Locator {
	if text == "" {
		return Locator{}
	}
	return Locator{kind: kindRef, ref: text}
}

func (l Locator) IsAbsent() bool { return l.kind == kindAbsent }

func (l Locator) IsInline() bool { return l.kind == kindInline }

// Text returns the reference text, or "" for absent and inline locators.
func (l Locator) Text() string { return l.ref }

func (l Locator) String() string {
	switch l.kind {
	case kindInline:
		return "<inline>"
	case kindRef:
		return l.ref
	}
	return "<default>"
}

// IsRemote reports whether the locator text is an http(s) URL.
func (l Locator) IsRemote() bool {
	return l.kind == kindRef && isURL(l.ref)
}

// Format is the serialization of a referenced document, inferred from its extension.
type Format int

const (
	FormatNone Format = iota
	FormatJSON
	FormatYAML
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatYAML:
		return "yaml"
	}
	return "none"
}

// DetectFormat infers the format from the trailing extension. For URLs only the
// path component is considered, so query strings do not hide the extension.
func DetectFormat(ref string) Format {
	p := ref
	if isURL(ref) {
		if u, err := url.Parse(ref); err == nil {
			p = u.Path
		}
	}

	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	}
	return FormatNone
}

func isURL(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Document is a resolved specification: either a parsed mapping in Data, or the
// locator text passed through untouched in Raw.
type Document struct {
	Data map[string]any
	Raw  string
}

func (d Document) IsRaw() bool {
	return d.Data == nil && d.Raw != ""
}

// Title returns info.title when the document carries one.
func (d Document) Title() string {
	return d.info("title")
}

// Version returns info.version when the document carries one.
func (d Document) Version() string {
	return d.info("version")
}

// PathCount returns the number of entries under paths.
func (d Document) PathCount() int {
	paths, _ := d.Data["paths"].(map[string]any)
	return len(paths)
}

func (d Document) info(key string) string {
	info, _ := d.Data["info"].(map[string]any)
	v, _ := info[key].(string)
	return v
}
