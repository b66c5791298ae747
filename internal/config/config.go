package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/alucardeht/elk-mcp/internal/circuit"
	"github.com/alucardeht/elk-mcp/internal/specsource"
	"github.com/alucardeht/elk-mcp/internal/tools/openapi"
	"github.com/alucardeht/elk-mcp/internal/watcher"
)

// Environment variables read by Load. Backend URLs and the API key keep the names
// defined by specsource.Backend.
const (
	EnvConfigFile  = "ELKMCP_CONFIG"
	EnvBackends    = "ELKMCP_BACKENDS"
	EnvTools       = "ELKMCP_TOOLS"
	EnvLogLevel    = "ELKMCP_LOG_LEVEL"
	EnvLogFormat   = "ELKMCP_LOG_FORMAT"
	EnvDataDir     = "ELKMCP_DATA_DIR"
	EnvSocket      = "ELKMCP_SOCKET"
	EnvCallTimeout = "ELKMCP_CALL_TIMEOUT"
	EnvMetricsAddr = "ELKMCP_METRICS_ADDR"
	EnvHistory     = "ELKMCP_HISTORY"
	EnvWatch       = "ELKMCP_WATCH"
	// EnvContentIndex overrides the index pattern of the content search tool.
	EnvContentIndex = "ELKMCP_CONTENT_INDEX"
)

type BackendConfig struct {
	Enabled bool `yaml:"enabled"`
	// Spec is the locator text: URL, file path or empty for the backend default.
	Spec      string             `yaml:"spec"`
	Prefix    string             `yaml:"prefix"`
	RouteMaps []openapi.RouteMap `yaml:"route_maps"`
}

// ContentSearchConfig controls the Elasticsearch search tool pinned to an index
// pattern.
type ContentSearchConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name"`
	Index   string `yaml:"index"`
}

type Config struct {
	DataDir       string                   `yaml:"data_dir"`
	SocketPath    string                   `yaml:"socket_path"`
	DatabasePath  string                   `yaml:"database_path"`
	LogLevel      string                   `yaml:"log_level"`
	LogFormat     string                   `yaml:"log_format"`
	CallTimeout   time.Duration            `yaml:"call_timeout"`
	MetricsAddr   string                   `yaml:"metrics_addr"`
	History       bool                     `yaml:"history"`
	Tools         []string                 `yaml:"tools"`
	Backends      map[string]BackendConfig `yaml:"backends"`
	Watcher       watcher.WatcherConfig    `yaml:"watcher"`
	Breaker       circuit.Config           `yaml:"breaker"`
	ContentSearch ContentSearchConfig      `yaml:"content_search"`
}

func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".elkmcp")

	return &Config{
		DataDir:      dataDir,
		SocketPath:   filepath.Join(dataDir, "daemon.sock"),
		DatabasePath: filepath.Join(dataDir, "history.db"),
		LogLevel:     "info",
		LogFormat:    "text",
		CallTimeout:  60 * time.Second,
		History:      true,
		Backends: map[string]BackendConfig{
			specsource.Elasticsearch.Name: {Enabled: true},
			specsource.Kibana.Name:        {Enabled: true, Prefix: "kibana_"},
		},
		Watcher: watcher.DefaultWatcherConfig(),
		Breaker: circuit.DefaultConfig(),
		ContentSearch: ContentSearchConfig{
			Enabled: true,
			Name:    openapi.DefaultScopedSearchName,
			Index:   openapi.DefaultScopedSearchIndex,
		},
	}
}

// LoadEnv loads .env files from the working directory into the process
// environment. Variables that are already set win.
func LoadEnv(files ...string) []string {
	if len(files) == 0 {
		files = []string{".env"}
	}

	loaded := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			continue
		}
		loaded = append(loaded, file)
	}
	return loaded
}

// Load builds the configuration from defaults, then the YAML file named by
// ELKMCP_CONFIG (or <data dir>/config.yaml when present), then the environment.
func Load() (*Config, error) {
	cfg := Default()

	path := os.Getenv(EnvConfigFile)
	explicit := path != ""
	if !explicit {
		path = filepath.Join(GetEnv(EnvDataDir, cfg.DataDir), "config.yaml")
	}

	if err := cfg.mergeFile(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if file.DataDir != "" {
		c.DataDir = file.DataDir
		c.SocketPath = filepath.Join(file.DataDir, "daemon.sock")
		c.DatabasePath = filepath.Join(file.DataDir, "history.db")
	}
	setString(&c.SocketPath, file.SocketPath)
	setString(&c.DatabasePath, file.DatabasePath)
	setString(&c.LogLevel, file.LogLevel)
	setString(&c.LogFormat, file.LogFormat)
	setString(&c.MetricsAddr, file.MetricsAddr)
	if file.CallTimeout > 0 {
		c.CallTimeout = file.CallTimeout
	}
	if len(file.Tools) > 0 {
		c.Tools = file.Tools
	}
	if file.Watcher.DebounceWindow > 0 {
		c.Watcher.DebounceWindow = file.Watcher.DebounceWindow
	}
	if file.Breaker.FailureThreshold > 0 {
		c.Breaker.FailureThreshold = file.Breaker.FailureThreshold
	}
	if file.Breaker.OpenTimeout > 0 {
		c.Breaker.OpenTimeout = file.Breaker.OpenTimeout
	}
	setString(&c.ContentSearch.Name, file.ContentSearch.Name)
	setString(&c.ContentSearch.Index, file.ContentSearch.Index)

	// Booleans only override when the key is present.
	var present struct {
		History *bool `yaml:"history"`
		Watcher struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"watcher"`
		ContentSearch struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"content_search"`
		Backends map[string]struct {
			Enabled *bool `yaml:"enabled"`
		} `yaml:"backends"`
	}
	if err := yaml.Unmarshal(data, &present); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if present.History != nil {
		c.History = *present.History
	}
	if present.Watcher.Enabled != nil {
		c.Watcher.Enabled = *present.Watcher.Enabled
	}
	if present.ContentSearch.Enabled != nil {
		c.ContentSearch.Enabled = *present.ContentSearch.Enabled
	}

	for name, b := range file.Backends {
		backend, err := specsource.LookupBackend(name)
		if err != nil {
			return fmt.Errorf("config %s: %w", path, err)
		}

		merged := c.Backends[backend.Name]
		if enabled := present.Backends[name].Enabled; enabled != nil {
			merged.Enabled = *enabled
		}
		setString(&merged.Spec, b.Spec)
		setString(&merged.Prefix, b.Prefix)
		if len(b.RouteMaps) > 0 {
			merged.RouteMaps = b.RouteMaps
		}
		c.Backends[backend.Name] = merged
	}

	return nil
}

func (c *Config) applyEnv() error {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		c.DataDir = dir
		c.SocketPath = filepath.Join(dir, "daemon.sock")
		c.DatabasePath = filepath.Join(dir, "history.db")
	}
	c.SocketPath = GetEnv(EnvSocket, c.SocketPath)
	c.LogLevel = GetEnv(EnvLogLevel, c.LogLevel)
	c.LogFormat = GetEnv(EnvLogFormat, c.LogFormat)
	c.MetricsAddr = GetEnv(EnvMetricsAddr, c.MetricsAddr)
	c.History = GetEnvBool(EnvHistory, c.History)
	c.Watcher.Enabled = GetEnvBool(EnvWatch, c.Watcher.Enabled)
	c.ContentSearch.Index = GetEnv(EnvContentIndex, c.ContentSearch.Index)

	if v := os.Getenv(EnvCallTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvCallTimeout, err)
		}
		c.CallTimeout = d
	}

	if v := os.Getenv(EnvTools); v != "" {
		c.Tools = splitList(v)
	}

	if v := os.Getenv(EnvBackends); v != "" {
		enabled := make(map[string]bool)
		for _, name := range splitList(v) {
			b, err := specsource.LookupBackend(name)
			if err != nil {
				return fmt.Errorf("%s: %w", EnvBackends, err)
			}
			enabled[b.Name] = true
		}
		for _, b := range specsource.Backends() {
			bc := c.Backends[b.Name]
			bc.Enabled = enabled[b.Name]
			c.Backends[b.Name] = bc
		}
	}

	for _, b := range specsource.Backends() {
		if v := os.Getenv(SpecEnv(b)); v != "" {
			bc := c.Backends[b.Name]
			bc.Spec = v
			c.Backends[b.Name] = bc
		}
	}

	return nil
}

// SpecEnv names the variable overriding a backend's spec locator, e.g.
// ELASTICSEARCH_OPENAPI_SPEC.
func SpecEnv(b specsource.Backend) string {
	return strings.ToUpper(b.Name) + "_OPENAPI_SPEC"
}

// Enabled returns the enabled backends in their canonical order.
func (c *Config) Enabled() []specsource.Backend {
	var out []specsource.Backend
	for _, b := range specsource.Backends() {
		if c.Backends[b.Name].Enabled {
			out = append(out, b)
		}
	}
	return out
}

// Locator returns the spec locator configured for b; empty means the default.
func (c *Config) Locator(b specsource.Backend) specsource.Locator {
	return specsource.Ref(c.Backends[b.Name].Spec)
}

func (c *Config) EnsureDirectories() error {
	return os.MkdirAll(c.DataDir, 0700)
}

func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
