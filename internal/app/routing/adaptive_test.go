package routing

import (
	"testing"
	"time"

	"github.com/hoopsight/statlayer/internal/app/health"
	"github.com/hoopsight/statlayer/internal/app/registry"
)

// fakeMonitor is a deterministic health.Monitor for routing tests.
type fakeMonitor struct {
	down      map[string]bool
	cooldowns map[string]bool
	load      health.Load
}

func newFakeMonitor() *fakeMonitor {
	return &fakeMonitor{down: make(map[string]bool), cooldowns: make(map[string]bool)}
}

func (m *fakeMonitor) IsServiceAvailable(name string) bool { return !m.down[name] }
func (m *fakeMonitor) IsInCooldown(path string) bool       { return m.cooldowns[path] }
func (m *fakeMonitor) CurrentLoad() health.Load            { return m.load }

func testEndpoints(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]registry.EndpointConfig{
		{
			Path:           "/simple",
			Complexity:     2,
			BaseTimeout:    time.Second,
			AdaptiveBuffer: time.Second,
		},
		{
			Path:           "/heavy",
			Complexity:     9,
			BaseTimeout:    2 * time.Second,
			AdaptiveBuffer: 4 * time.Second,
			Dependencies:   []string{"stats-api", "projection-engine"},
			Fallback:       "/heavy/cached",
			Category:       "projection",
		},
		{
			Path:           "/heavy-nofallback",
			Complexity:     9,
			BaseTimeout:    2 * time.Second,
			AdaptiveBuffer: 2 * time.Second,
			Dependencies:   []string{"projection-engine"},
		},
		{
			Path:           "/managed",
			Complexity:     5,
			BaseTimeout:    time.Second,
			AdaptiveBuffer: time.Second,
			Manager:        "/orchestrator/managed",
		},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func newRouter(t *testing.T, monitor health.Monitor) *AdaptiveRouter {
	t.Helper()
	return NewAdaptiveRouter(testEndpoints(t), monitor, nil, DefaultAdaptiveConfig(), nil)
}

func TestRecommend_UnknownPathIsDirect(t *testing.T) {
	r := newRouter(t, newFakeMonitor())
	d := r.Recommend("/nowhere", RequestContext{})
	if d.Strategy != StrategyDirect {
		t.Fatalf("expected direct, got %s", d.Strategy)
	}
	if d.Timeout != DefaultAdaptiveConfig().DefaultTimeout {
		t.Fatalf("expected default timeout, got %v", d.Timeout)
	}
}

func TestRecommend_TimeoutAdjustments(t *testing.T) {
	monitor := newFakeMonitor()
	r := newRouter(t, monitor)

	// Base 1s + buffer 1s.
	if d := r.Recommend("/simple", RequestContext{}); d.Timeout != 2*time.Second {
		t.Fatalf("normal priority: expected 2s, got %v", d.Timeout)
	}
	// High priority halves the buffer.
	if d := r.Recommend("/simple", RequestContext{Priority: PriorityHigh}); d.Timeout != 1500*time.Millisecond {
		t.Fatalf("high priority: expected 1.5s, got %v", d.Timeout)
	}
	// Low priority doubles it.
	if d := r.Recommend("/simple", RequestContext{Priority: PriorityLow}); d.Timeout != 3*time.Second {
		t.Fatalf("low priority: expected 3s, got %v", d.Timeout)
	}
	// Force-fresh adds the fixed increment.
	if d := r.Recommend("/simple", RequestContext{ForceFresh: true}); d.Timeout != 4*time.Second {
		t.Fatalf("force fresh: expected 4s, got %v", d.Timeout)
	}
	// High CPU load grows the buffer by half.
	monitor.load = health.Load{CPUPercent: 90, SampledAt: time.Now()}
	if d := r.Recommend("/simple", RequestContext{}); d.Timeout != 2500*time.Millisecond {
		t.Fatalf("high load: expected 2.5s, got %v", d.Timeout)
	}
	// An unknown load sample skips the adjustment rather than failing.
	monitor.load = health.Load{}
	if d := r.Recommend("/simple", RequestContext{}); d.Timeout != 2*time.Second {
		t.Fatalf("unknown load: expected 2s, got %v", d.Timeout)
	}
}

func TestRecommend_Cooldown(t *testing.T) {
	monitor := newFakeMonitor()
	monitor.cooldowns["/heavy"] = true
	r := newRouter(t, monitor)

	d := r.Recommend("/heavy", RequestContext{})
	if d.Strategy != StrategyCooldown {
		t.Fatalf("expected cooldown, got %s", d.Strategy)
	}
	if d.Target != "/heavy/cached" {
		t.Fatalf("cooldown should target the fallback, got %s", d.Target)
	}
	if d.UseShadowRace {
		t.Fatalf("cooldown must not shadow race")
	}
}

func TestRecommend_FirstDownDependencyDecides(t *testing.T) {
	monitor := newFakeMonitor()
	monitor.down["stats-api"] = true
	monitor.down["projection-engine"] = true
	r := newRouter(t, monitor)

	d := r.Recommend("/heavy", RequestContext{})
	if d.Strategy != StrategyFallback {
		t.Fatalf("expected fallback, got %s", d.Strategy)
	}
	if d.Target != "/heavy/cached" {
		t.Fatalf("expected fallback target, got %s", d.Target)
	}
	// Declared order is significant: stats-api is listed first.
	if d.Reason != "dependency stats-api unavailable; serving fallback" {
		t.Fatalf("unexpected reason: %s", d.Reason)
	}
}

func TestRecommend_DependencyDownNoFallbackIsDegraded(t *testing.T) {
	monitor := newFakeMonitor()
	monitor.down["projection-engine"] = true
	r := newRouter(t, monitor)

	d := r.Recommend("/heavy-nofallback", RequestContext{})
	if d.Strategy != StrategyDegraded {
		t.Fatalf("expected degraded, got %s", d.Strategy)
	}
	if d.Target != "/heavy-nofallback" {
		t.Fatalf("degraded should target the endpoint itself, got %s", d.Target)
	}
}

func TestRecommend_ComplexityRouting(t *testing.T) {
	r := newRouter(t, newFakeMonitor())

	if d := r.Recommend("/simple", RequestContext{}); d.Strategy != StrategyDirect {
		t.Fatalf("low complexity should be direct, got %s", d.Strategy)
	}

	d := r.Recommend("/heavy", RequestContext{})
	if d.Strategy != StrategyManaged {
		t.Fatalf("high complexity should be managed, got %s", d.Strategy)
	}
	if !d.UseShadowRace {
		t.Fatalf("expected shadow race for raceable fallback")
	}
	if d.PatienceThreshold != 2*time.Second {
		t.Fatalf("patience must equal base timeout, got %v", d.PatienceThreshold)
	}
	if d.Timeout <= d.PatienceThreshold {
		t.Fatalf("adaptive timeout should exceed patience")
	}

	// A declared manager routes managed even at medium complexity.
	d = r.Recommend("/managed", RequestContext{})
	if d.Strategy != StrategyManaged || d.Target != "/orchestrator/managed" {
		t.Fatalf("expected managed via declared manager, got %#v", d)
	}
	if d.UseShadowRace {
		t.Fatalf("no fallback configured; shadow race must be off")
	}
}

func TestRecommend_Deterministic(t *testing.T) {
	r := newRouter(t, newFakeMonitor())
	first := r.Recommend("/heavy", RequestContext{Priority: PriorityHigh})
	second := r.Recommend("/heavy", RequestContext{Priority: PriorityHigh})

	if first.Strategy != second.Strategy ||
		first.Target != second.Target ||
		first.Timeout != second.Timeout ||
		first.UseShadowRace != second.UseShadowRace ||
		first.PatienceThreshold != second.PatienceThreshold {
		t.Fatalf("recommend not deterministic: %#v vs %#v", first, second)
	}
}
