// Package registry holds static per-endpoint routing configuration.
// Configuration is immutable for the lifetime of a process; a new Registry
// must be built to pick up changes.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// EndpointConfig describes one logical endpoint. Dependencies keeps its
// declared order: the first unavailable dependency decides the routing
// outcome.
type EndpointConfig struct {
	Path           string
	Complexity     int
	BaseTimeout    time.Duration
	AdaptiveBuffer time.Duration
	Priority       string
	Dependencies   []string
	Fallback       string
	Manager        string
	Category       string
}

// UnmarshalYAML decodes an endpoint entry, parsing timeouts from duration
// strings like "4s".
func (e *EndpointConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Path           string   `yaml:"path"`
		Complexity     int      `yaml:"complexity"`
		BaseTimeout    string   `yaml:"base_timeout"`
		AdaptiveBuffer string   `yaml:"adaptive_buffer"`
		Priority       string   `yaml:"priority"`
		Dependencies   []string `yaml:"dependencies"`
		Fallback       string   `yaml:"fallback"`
		Manager        string   `yaml:"manager"`
		Category       string   `yaml:"category"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	e.Path = raw.Path
	e.Complexity = raw.Complexity
	e.Priority = raw.Priority
	e.Dependencies = raw.Dependencies
	e.Fallback = raw.Fallback
	e.Manager = raw.Manager
	e.Category = raw.Category

	var err error
	if e.BaseTimeout, err = parseDuration(raw.BaseTimeout); err != nil {
		return fmt.Errorf("endpoint %s: base_timeout: %w", raw.Path, err)
	}
	if e.AdaptiveBuffer, err = parseDuration(raw.AdaptiveBuffer); err != nil {
		return fmt.Errorf("endpoint %s: adaptive_buffer: %w", raw.Path, err)
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// Registry resolves request paths to endpoint configuration.
type Registry struct {
	byPath []EndpointConfig
}

// Config is the on-disk registry shape.
type Config struct {
	Endpoints []EndpointConfig `yaml:"endpoints"`
}

// New builds a registry from endpoint configs. Entries are validated; a
// duplicate or empty path is a configuration error.
func New(endpoints []EndpointConfig) (*Registry, error) {
	seen := make(map[string]struct{}, len(endpoints))
	for _, ep := range endpoints {
		if ep.Path == "" {
			return nil, fmt.Errorf("endpoint with empty path")
		}
		if _, dup := seen[ep.Path]; dup {
			return nil, fmt.Errorf("duplicate endpoint path %q", ep.Path)
		}
		if ep.BaseTimeout <= 0 {
			return nil, fmt.Errorf("endpoint %s: base_timeout must be positive", ep.Path)
		}
		if ep.Complexity < 0 {
			return nil, fmt.Errorf("endpoint %s: complexity cannot be negative", ep.Path)
		}
		seen[ep.Path] = struct{}{}
	}
	out := make([]EndpointConfig, len(endpoints))
	copy(out, endpoints)
	return &Registry{byPath: out}, nil
}

// Match resolves a path to its endpoint config.
func (r *Registry) Match(path string) (EndpointConfig, bool) {
	for _, ep := range r.byPath {
		if ep.Path == path {
			return ep, true
		}
	}
	return EndpointConfig{}, false
}

// ListAll returns every configured endpoint, sorted by path.
func (r *Registry) ListAll() []EndpointConfig {
	out := make([]EndpointConfig, len(r.byPath))
	copy(out, r.byPath)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Load reads the registry from config/endpoints.yaml.
func Load() (*Registry, error) {
	return LoadFromPath(filepath.Join("config", "endpoints.yaml"))
}

// LoadFromPath reads the registry from a specific path.
func LoadFromPath(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoint config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse endpoint config: %w", err)
	}
	return New(cfg.Endpoints)
}

// LoadOrDefault reads the registry or falls back to the built-in defaults.
func LoadOrDefault() *Registry {
	reg, err := Load()
	if err != nil {
		reg, _ = New(DefaultEndpoints())
	}
	return reg
}

// DefaultEndpoints returns a minimal built-in endpoint set so the service is
// usable without a config file.
func DefaultEndpoints() []EndpointConfig {
	return []EndpointConfig{
		{
			Path:           "/players/gamelogs",
			Complexity:     3,
			BaseTimeout:    2 * time.Second,
			AdaptiveBuffer: time.Second,
			Priority:       "normal",
			Dependencies:   []string{"stats-api"},
			Category:       "gamelog",
		},
		{
			Path:           "/players/projections",
			Complexity:     8,
			BaseTimeout:    4 * time.Second,
			AdaptiveBuffer: 3 * time.Second,
			Priority:       "normal",
			Dependencies:   []string{"stats-api", "projection-engine"},
			Fallback:       "/players/gamelogs",
			Manager:        "/orchestrator/projections",
			Category:       "projection",
		},
	}
}
