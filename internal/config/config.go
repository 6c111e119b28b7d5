// Package config loads the statlayer daemon configuration. Precedence is
// environment variables over the YAML file over built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Storage   StorageConfig   `yaml:"storage"`
	Source    SourceConfig    `yaml:"source"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Retention RetentionConfig `yaml:"retention"`
	Registry  RegistryConfig  `yaml:"registry"`
}

type ServerConfig struct {
	Host string `yaml:"host" env:"STATLAYER_HOST"`
	Port int    `yaml:"port" env:"STATLAYER_PORT"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" env:"STATLAYER_LOG_LEVEL"`
	Format string `yaml:"format" env:"STATLAYER_LOG_FORMAT"`
}

type StorageConfig struct {
	// Backend is "file" or "bolt".
	Backend string `yaml:"backend" env:"STATLAYER_STORAGE_BACKEND"`
	Dir     string `yaml:"dir" env:"STATLAYER_STORAGE_DIR"`
	DBPath  string `yaml:"db_path" env:"STATLAYER_STORAGE_DB"`
}

type SourceConfig struct {
	BaseURL           string        `yaml:"-" env:"STATLAYER_SOURCE_URL"`
	Timeout           time.Duration `yaml:"-" env:"STATLAYER_SOURCE_TIMEOUT"`
	RequestsPerSecond int           `yaml:"-" env:"STATLAYER_SOURCE_RPS"`
}

// UnmarshalYAML decodes the source block, parsing the timeout from a
// duration string like "15s".
func (s *SourceConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		BaseURL           string `yaml:"base_url"`
		Timeout           string `yaml:"timeout"`
		RequestsPerSecond int    `yaml:"requests_per_second"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	s.BaseURL = raw.BaseURL
	s.RequestsPerSecond = raw.RequestsPerSecond
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("source.timeout: %w", err)
		}
		s.Timeout = d
	}
	return nil
}

type TasksConfig struct {
	Workers    int `yaml:"workers" env:"STATLAYER_TASK_WORKERS"`
	QueueDepth int `yaml:"queue_depth" env:"STATLAYER_TASK_QUEUE"`
}

type RetentionConfig struct {
	Schedule   string `yaml:"schedule" env:"STATLAYER_RETENTION_SCHEDULE"`
	KeepWindow int    `yaml:"keep_window" env:"STATLAYER_RETENTION_KEEP"`
}

type RegistryConfig struct {
	Path string `yaml:"path" env:"STATLAYER_ENDPOINTS_PATH"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server:    ServerConfig{Host: "0.0.0.0", Port: 8090},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Storage:   StorageConfig{Backend: "file", Dir: "data/artifacts", DBPath: "data/artifacts.db"},
		Source:    SourceConfig{Timeout: 15 * time.Second, RequestsPerSecond: 4},
		Tasks:     TasksConfig{Workers: 4, QueueDepth: 64},
		Retention: RetentionConfig{Schedule: "@daily"},
	}
}

// Load reads config/statlayer.yaml if present, then applies environment
// overrides.
func Load() (*Config, error) {
	return LoadFromPath(filepath.Join("config", "statlayer.yaml"))
}

// LoadFromPath reads a specific config file, then applies environment
// overrides. A missing file is not an error; defaults apply.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, fmt.Errorf("failed to decode environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "file", "bolt":
	default:
		return fmt.Errorf("storage backend must be file or bolt, got %q", c.Storage.Backend)
	}
	if c.Tasks.Workers <= 0 {
		return fmt.Errorf("tasks.workers must be positive")
	}
	if c.Retention.KeepWindow < 0 {
		return fmt.Errorf("retention.keep_window cannot be negative")
	}
	return nil
}
