package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMarksToggleAvailability(t *testing.T) {
	m := NewSystemMonitor(nil)

	if !m.IsServiceAvailable("gamelog-source") {
		t.Fatal("unmarked dependency should be available")
	}

	m.MarkUnavailable("gamelog-source")
	if m.IsServiceAvailable("gamelog-source") {
		t.Fatal("marked dependency should be unavailable")
	}
	if !m.IsServiceAvailable("cache") {
		t.Fatal("mark leaked to another dependency")
	}

	m.MarkAvailable("gamelog-source")
	if !m.IsServiceAvailable("gamelog-source") {
		t.Fatal("cleared mark should restore availability")
	}
}

func TestProbeOverridesMark(t *testing.T) {
	m := NewSystemMonitor(nil)

	m.MarkUnavailable("gamelog-source")
	m.RegisterProbe("gamelog-source", func(ctx context.Context) bool { return true })

	if !m.IsServiceAvailable("gamelog-source") {
		t.Fatal("probe result should override a manual mark")
	}

	m.RegisterProbe("gamelog-source", func(ctx context.Context) bool { return false })
	if m.IsServiceAvailable("gamelog-source") {
		t.Fatal("failing probe should report unavailable")
	}
}

func TestCooldownExpiresLazily(t *testing.T) {
	m := NewSystemMonitor(nil)

	m.SetCooldown("/players/gamelogs", time.Now().Add(time.Hour))
	if !m.IsInCooldown("/players/gamelogs") {
		t.Fatal("active window should report in cooldown")
	}

	m.SetCooldown("/players/gamelogs", time.Now().Add(-time.Second))
	if m.IsInCooldown("/players/gamelogs") {
		t.Fatal("expired window should report not in cooldown")
	}
	// Expired entries are pruned on read.
	m.mu.RLock()
	_, still := m.cooldowns["/players/gamelogs"]
	m.mu.RUnlock()
	if still {
		t.Fatal("expired window should be pruned")
	}
}

func TestClearCooldown(t *testing.T) {
	m := NewSystemMonitor(nil)

	m.SetCooldown("/players/gamelogs", time.Now().Add(time.Hour))
	m.ClearCooldown("/players/gamelogs")
	if m.IsInCooldown("/players/gamelogs") {
		t.Fatal("cleared window should not report in cooldown")
	}
}

func TestCurrentLoadCachesSamples(t *testing.T) {
	m := NewSystemMonitor(nil)

	calls := 0
	m.sampleCPU = func() (float64, error) {
		calls++
		return 42.5, nil
	}

	first := m.CurrentLoad()
	second := m.CurrentLoad()
	if calls != 1 {
		t.Fatalf("expected one sample inside the interval, got %d", calls)
	}
	if first.CPUPercent != 42.5 || second.CPUPercent != 42.5 {
		t.Fatalf("unexpected load: %+v %+v", first, second)
	}
	if first.SampledAt.IsZero() {
		t.Fatal("successful sample should carry a timestamp")
	}
}

func TestCurrentLoadFailureReturnsUnknown(t *testing.T) {
	m := NewSystemMonitor(nil)
	m.sampleCPU = func() (float64, error) {
		return 0, errors.New("proc unreadable")
	}

	got := m.CurrentLoad()
	if !got.SampledAt.IsZero() {
		t.Fatal("failed sample must stay unknown, not report an idle host")
	}
}
