// Package specsource turns a spec locator into a parsed OpenAPI document and builds
// the HTTP client that talks to the backend the document describes.
//
// Resolution performs at most one kind of I/O per call: a network fetch for http(s)
// locators, a file read for local paths, or none for inline documents and
// pass-through text. Nothing is cached or retried; callers that want resilience wrap
// Resolve themselves.
package specsource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/alucardeht/elk-mcp/internal/logger"
)

var log = logger.ForComponent("specsource")

// Resolver resolves locators using its own HTTP client for remote fetches.
type Resolver struct {
	httpClient *http.Client
}

type ResolverOption func(*Resolver)

// WithHTTPClient sets the client used to download remote specs.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) {
		if c != nil {
			r.httpClient = c
		}
	}
}

func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		httpClient: &http.Client{Transport: newTransport()},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve resolves loc for backend with a default Resolver.
func Resolve(ctx context.Context, loc Locator, backend Backend) (Document, error) {
	return NewResolver().Resolve(ctx, loc, backend)
}

// Resolve returns the document loc refers to. An absent locator is replaced by the
// backend's default. Inline documents come back unchanged. Text locators are
// fetched or read and parsed according to their extension; text with no
// recognized extension is handed back as Document.Raw without any I/O.
func (r *Resolver) Resolve(ctx context.Context, loc Locator, backend Backend) (Document, error) {
	if loc.IsAbsent() {
		if backend.SpecWarning != "" {
			log.Warn(backend.SpecWarning, "backend", backend.Name)
		}
		loc = backend.DefaultLocator()
	}

	if loc.IsInline() {
		return Document{Data: loc.doc}, nil
	}

	ref := loc.Text()
	format := DetectFormat(ref)
	if format == FormatNone {
		log.Debug("passing locator through unparsed", "backend", backend.Name, "locator", ref)
		return Document{Raw: ref}, nil
	}

	var (
		data []byte
		err  error
	)
	if isURL(ref) {
		data, err = r.fetch(ctx, ref)
	} else {
		data, err = readLocal(ref)
	}
	if err != nil {
		return Document{}, err
	}

	doc, err := Parse(data, format)
	if err != nil {
		return Document{}, &ParseError{Source: ref, Format: format, Err: err}
	}

	log.Debug("resolved spec",
		"backend", backend.Name,
		"locator", ref,
		"format", format.String(),
		"bytes", len(data))

	return Document{Data: doc}, nil
}

func (r *Resolver) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &RemoteFetchError{URL: url, Err: err}
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, &RemoteFetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RemoteFetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &RemoteFetchError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	return data, nil
}

func readLocal(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LocalReadError{Path: path, Err: err}
	}
	return data, nil
}
