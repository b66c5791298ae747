package specsource

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// AuthScheme prefixes the credential in the Authorization header.
const AuthScheme = "ApiKey"

// ClientConfig is the resolved connection data for one backend.
type ClientConfig struct {
	BaseURL string
	APIKey  string
}

// ConfigFromEnv reads the backend's URL and credential variables. Missing values
// are left empty; nothing is validated here.
func ConfigFromEnv(b Backend) ClientConfig {
	return ClientConfig{
		BaseURL: os.Getenv(b.URLEnv),
		APIKey:  os.Getenv(b.CredentialEnv()),
	}
}

// Client issues requests against one backend with a fixed Authorization header.
// It is immutable after construction and safe for concurrent use.
type Client struct {
	baseURL       *url.URL
	authorization string
	http          *http.Client
}

// NewDefaultClient builds a client from the process environment. An unset base
// URL defers the failure to the first request; an unset credential yields the
// header "ApiKey " rather than an error.
func NewDefaultClient(b Backend) *Client {
	return NewClient(ConfigFromEnv(b))
}

func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		authorization: AuthScheme + " " + cfg.APIKey,
		http:          &http.Client{Transport: newTransport()},
	}
	if cfg.BaseURL != "" {
		if u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/")); err == nil {
			c.baseURL = u
		} else {
			log.Warn("ignoring unparsable base URL", "url", cfg.BaseURL, "error", err)
		}
	}
	return c
}

// newTransport clones the default transport and pins certificate verification on.
func newTransport() *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	return t
}

// BaseURL returns the configured base URL, or "" when none was set.
func (c *Client) BaseURL() string {
	if c.baseURL == nil {
		return ""
	}
	return c.baseURL.String()
}

func (c *Client) Authorization() string {
	return c.authorization
}

// Header returns a copy of the default headers sent with every request.
func (c *Client) Header() http.Header {
	h := make(http.Header)
	h.Set("Authorization", c.authorization)
	return h
}

// VerifiesTLS always reports true; there is no way to disable verification.
func (c *Client) VerifiesTLS() bool {
	t, ok := c.http.Transport.(*http.Transport)
	return ok && (t.TLSClientConfig == nil || !t.TLSClientConfig.InsecureSkipVerify)
}

// Request describes one call. Path is already escaped and relative to the base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration
}

// Do sends req relative to the base URL.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if c.baseURL == nil {
		return nil, ErrNoBaseURL
	}

	target := *c.baseURL
	escaped := c.baseURL.EscapedPath() + "/" + strings.TrimLeft(req.Path, "/")
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, fmt.Errorf("invalid request path %q: %w", req.Path, err)
	}
	target.Path = unescaped
	target.RawPath = escaped
	if len(req.Query) > 0 {
		target.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Authorization", c.authorization)
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Duration:   time.Since(start),
	}, nil
}
