package registry

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestNew_Validation(t *testing.T) {
	if _, err := New([]EndpointConfig{{Path: "", BaseTimeout: time.Second}}); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := New([]EndpointConfig{
		{Path: "/a", BaseTimeout: time.Second},
		{Path: "/a", BaseTimeout: time.Second},
	}); err == nil {
		t.Fatalf("expected error for duplicate path")
	}
	if _, err := New([]EndpointConfig{{Path: "/a"}}); err == nil {
		t.Fatalf("expected error for missing base timeout")
	}
}

func TestMatch(t *testing.T) {
	reg, err := New(DefaultEndpoints())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ep, ok := reg.Match("/players/gamelogs")
	if !ok || ep.Path != "/players/gamelogs" {
		t.Fatalf("expected match, got %v %v", ep, ok)
	}
	if _, ok := reg.Match("/nope"); ok {
		t.Fatalf("expected no match for unknown path")
	}
}

func TestLoadFromPath_PreservesDependencyOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "endpoints.yaml")
	raw := `endpoints:
  - path: /players/projections
    complexity: 8
    base_timeout: 4s
    adaptive_buffer: 3s
    priority: normal
    dependencies:
      - stats-api
      - projection-engine
      - season-index
    fallback: /players/gamelogs
    manager: /orchestrator/projections
    category: projection
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	reg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ep, ok := reg.Match("/players/projections")
	if !ok {
		t.Fatalf("expected endpoint")
	}
	want := []string{"stats-api", "projection-engine", "season-index"}
	if !reflect.DeepEqual(ep.Dependencies, want) {
		t.Fatalf("dependency order not preserved: %v", ep.Dependencies)
	}
	if ep.BaseTimeout != 4*time.Second || ep.AdaptiveBuffer != 3*time.Second {
		t.Fatalf("durations not parsed: %v %v", ep.BaseTimeout, ep.AdaptiveBuffer)
	}
}

func TestLoadOrDefault_FallsBack(t *testing.T) {
	reg := LoadOrDefault()
	if len(reg.ListAll()) == 0 {
		t.Fatalf("expected built-in endpoints")
	}
}
