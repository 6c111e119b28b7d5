// Package health tracks per-dependency availability, administrative cooldown
// windows and current host load for routing decisions.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/hoopsight/statlayer/pkg/logger"
)

// Load is a best-effort snapshot of host load. A zero SampledAt means no
// sample could be taken; consumers must treat the snapshot as unknown rather
// than as an idle host.
type Load struct {
	CPUPercent float64
	SampledAt  time.Time
}

// Monitor reports dependency availability, cooldowns and load. All methods
// are best-effort and never return errors; routing must stay decidable when
// the monitor itself is degraded.
type Monitor interface {
	IsServiceAvailable(name string) bool
	IsInCooldown(path string) bool
	CurrentLoad() Load
}

// Probe checks a single dependency. It must return quickly.
type Probe func(ctx context.Context) bool

// SystemMonitor is the default Monitor implementation. Availability comes
// from explicit marks (set by whoever observes a dependency failing) and
// optional probes; CPU load is sampled from the host via gopsutil.
type SystemMonitor struct {
	log          *logger.Logger
	probeTimeout time.Duration

	mu          sync.RWMutex
	unavailable map[string]struct{}
	probes      map[string]Probe
	cooldowns   map[string]time.Time

	loadMu       sync.Mutex
	cachedLoad   Load
	loadInterval time.Duration
	sampleCPU    func() (float64, error)
}

var _ Monitor = (*SystemMonitor)(nil)

// NewSystemMonitor creates a monitor with no marks or cooldowns.
func NewSystemMonitor(log *logger.Logger) *SystemMonitor {
	if log == nil {
		log = logger.NewDefault("health")
	}
	return &SystemMonitor{
		log:          log,
		probeTimeout: 2 * time.Second,
		unavailable:  make(map[string]struct{}),
		probes:       make(map[string]Probe),
		cooldowns:    make(map[string]time.Time),
		loadInterval: 5 * time.Second,
		sampleCPU:    sampleHostCPU,
	}
}

// RegisterProbe attaches a liveness probe for a dependency. A probe overrides
// manual marks for that dependency.
func (m *SystemMonitor) RegisterProbe(name string, probe Probe) {
	m.mu.Lock()
	m.probes[name] = probe
	m.mu.Unlock()
}

// MarkUnavailable records a dependency as down until MarkAvailable is called.
func (m *SystemMonitor) MarkUnavailable(name string) {
	m.mu.Lock()
	m.unavailable[name] = struct{}{}
	m.mu.Unlock()
	m.log.WithField("dependency", name).Warn("dependency marked unavailable")
}

// MarkAvailable clears a previous unavailability mark.
func (m *SystemMonitor) MarkAvailable(name string) {
	m.mu.Lock()
	delete(m.unavailable, name)
	m.mu.Unlock()
}

// IsServiceAvailable reports whether a dependency is currently usable.
func (m *SystemMonitor) IsServiceAvailable(name string) bool {
	m.mu.RLock()
	probe, hasProbe := m.probes[name]
	_, marked := m.unavailable[name]
	m.mu.RUnlock()

	if hasProbe {
		ctx, cancel := context.WithTimeout(context.Background(), m.probeTimeout)
		defer cancel()
		return probe(ctx)
	}
	return !marked
}

// SetCooldown routes an endpoint to its fallback until the window expires.
func (m *SystemMonitor) SetCooldown(path string, until time.Time) {
	m.mu.Lock()
	m.cooldowns[path] = until
	m.mu.Unlock()
	m.log.WithField("path", path).
		WithField("until", until.Format(time.RFC3339)).
		Info("cooldown window set")
}

// ClearCooldown lifts an administrative cooldown early.
func (m *SystemMonitor) ClearCooldown(path string) {
	m.mu.Lock()
	delete(m.cooldowns, path)
	m.mu.Unlock()
}

// IsInCooldown reports whether the endpoint is inside a cooldown window.
// Expired windows are pruned lazily.
func (m *SystemMonitor) IsInCooldown(path string) bool {
	m.mu.RLock()
	until, ok := m.cooldowns[path]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	if time.Now().After(until) {
		m.mu.Lock()
		if cur, ok := m.cooldowns[path]; ok && cur.Equal(until) {
			delete(m.cooldowns, path)
		}
		m.mu.Unlock()
		return false
	}
	return true
}

// CurrentLoad returns a recent CPU load sample, refreshing it at most once
// per interval. Sampling failures return the zero Load.
func (m *SystemMonitor) CurrentLoad() Load {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	if time.Since(m.cachedLoad.SampledAt) < m.loadInterval {
		return m.cachedLoad
	}

	pct, err := m.sampleCPU()
	if err != nil {
		m.log.WithError(err).Debug("cpu sample failed")
		return m.cachedLoad
	}
	m.cachedLoad = Load{CPUPercent: pct, SampledAt: time.Now()}
	return m.cachedLoad
}

func sampleHostCPU() (float64, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}
