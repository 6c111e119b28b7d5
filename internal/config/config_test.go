package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "statlayer.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadFromPathMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Server.Port != 8090 {
		t.Fatalf("port = %d, want default 8090", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "file" {
		t.Fatalf("backend = %q, want default file", cfg.Storage.Backend)
	}
	if cfg.Source.Timeout != 15*time.Second {
		t.Fatalf("timeout = %v, want default 15s", cfg.Source.Timeout)
	}
}

func TestLoadFromPathAppliesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
storage:
  backend: bolt
  db_path: /var/lib/statlayer/artifacts.db
source:
  base_url: https://stats.example.com
  timeout: 30s
  requests_per_second: 2
retention:
  schedule: "0 4 * * *"
  keep_window: 82
`)
	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "bolt" {
		t.Fatalf("backend = %q", cfg.Storage.Backend)
	}
	if cfg.Source.Timeout != 30*time.Second {
		t.Fatalf("timeout = %v", cfg.Source.Timeout)
	}
	if cfg.Source.BaseURL != "https://stats.example.com" {
		t.Fatalf("base url = %q", cfg.Source.BaseURL)
	}
	if cfg.Retention.KeepWindow != 82 {
		t.Fatalf("keep window = %d", cfg.Retention.KeepWindow)
	}
	// Unmentioned sections keep their defaults.
	if cfg.Tasks.Workers != 4 {
		t.Fatalf("workers = %d, want default 4", cfg.Tasks.Workers)
	}
}

func TestEnvironmentOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9100
`)
	t.Setenv("STATLAYER_PORT", "9222")
	t.Setenv("STATLAYER_STORAGE_BACKEND", "bolt")

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Server.Port != 9222 {
		t.Fatalf("port = %d, want env override 9222", cfg.Server.Port)
	}
	if cfg.Storage.Backend != "bolt" {
		t.Fatalf("backend = %q, want env override bolt", cfg.Storage.Backend)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	if _, err := LoadFromPath(writeConfig(t, "storage:\n  backend: redis\n")); err == nil {
		t.Fatal("expected unknown backend to be rejected")
	}
	if _, err := LoadFromPath(writeConfig(t, "tasks:\n  workers: 0\n")); err == nil {
		t.Fatal("expected zero workers to be rejected")
	}
	if _, err := LoadFromPath(writeConfig(t, "retention:\n  keep_window: -1\n")); err == nil {
		t.Fatal("expected negative keep window to be rejected")
	}
	if _, err := LoadFromPath(writeConfig(t, "source:\n  timeout: never\n")); err == nil {
		t.Fatal("expected bad duration to be rejected")
	}
}
