package specsource

import (
	"fmt"
	"strings"
)

// DefaultAPIKeyEnv is the credential variable shared by the Elastic backend family.
const DefaultAPIKeyEnv = "ELASTIC_API_KEY"

// Backend identifies one REST service family. Each variant carries its defaults as
// data: where its OpenAPI document lives and which environment variables hold its
// base URL and credential.
type Backend struct {
	Name           string
	DefaultSpecURL string
	URLEnv         string
	APIKeyEnv      string
	// SpecWarning is logged whenever DefaultSpecURL is substituted for an absent locator.
	SpecWarning string
}

var (
	Elasticsearch = Backend{
		Name:           "elasticsearch",
		DefaultSpecURL: "https://www.elastic.co/docs/api/doc/elasticsearch.yaml",
		URLEnv:         "ELASTICSEARCH_URL",
	}

	Kibana = Backend{
		Name:           "kibana",
		DefaultSpecURL: "https://www.elastic.co/docs/api/doc/kibana.yaml",
		URLEnv:         "KIBANA_URL",
		SpecWarning:    "Kibana's OpenAPI specification is malformed",
	}
)

// Backends returns every known backend variant.
func Backends() []Backend {
	return []Backend{Elasticsearch, Kibana}
}

// LookupBackend resolves a backend by name. "es" is accepted for Elasticsearch.
func LookupBackend(name string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "elasticsearch", "es":
		return Elasticsearch, nil
	case "kibana":
		return Kibana, nil
	}
	return Backend{}, fmt.Errorf("unknown backend: %q", name)
}

// CredentialEnv returns the variable holding the backend's API key, falling back
// to the family default when the variant does not override it.
func (b Backend) CredentialEnv() string {
	if b.APIKeyEnv != "" {
		return b.APIKeyEnv
	}
	return DefaultAPIKeyEnv
}

// DefaultLocator is the locator substituted when the caller supplies none.
func (b Backend) DefaultLocator() Locator {
	return Ref(b.DefaultSpecURL)
}

func (b Backend) String() string {
	return b.Name
}
