package routing

import (
	"fmt"
	"time"

	"github.com/hoopsight/statlayer/internal/app/health"
	"github.com/hoopsight/statlayer/internal/app/metrics"
	"github.com/hoopsight/statlayer/internal/app/registry"
	"github.com/hoopsight/statlayer/pkg/logger"
)

// AdaptiveConfig tunes the adaptive router's thresholds.
type AdaptiveConfig struct {
	// DefaultTimeout applies to paths unknown to the registry.
	DefaultTimeout time.Duration

	// ForceFreshIncrement is added to the adaptive buffer when the caller
	// demands fresh data.
	ForceFreshIncrement time.Duration

	// HighLoadCPUPercent is the CPU load above which timeouts grow by 50%.
	HighLoadCPUPercent float64

	// LowComplexity and below routes DIRECT; HighComplexity and above
	// routes MANAGED.
	LowComplexity  int
	HighComplexity int

	// ShadowRaceCategories are the endpoint categories eligible for shadow
	// racing against their fallback.
	ShadowRaceCategories []string
}

// DefaultAdaptiveConfig returns the production thresholds.
func DefaultAdaptiveConfig() AdaptiveConfig {
	return AdaptiveConfig{
		DefaultTimeout:       5 * time.Second,
		ForceFreshIncrement:  2 * time.Second,
		HighLoadCPUPercent:   75,
		LowComplexity:        3,
		HighComplexity:       7,
		ShadowRaceCategories: []string{"gamelog", "projection"},
	}
}

// AdaptiveRouter recommends, per logical endpoint, how a request should be
// executed. It is advisory: it produces a RouteDecision without performing
// the call itself. Given identical configuration, health state and request
// context, Recommend is deterministic.
type AdaptiveRouter struct {
	registry *registry.Registry
	monitor  health.Monitor
	racer    ShadowRaceExecutor
	cfg      AdaptiveConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewAdaptiveRouter constructs an adaptive router. racer may be nil when
// shadow racing is not wired; decisions are still produced, only
// ExecuteWithShadowRace degrades to the plain live-then-cache path.
func NewAdaptiveRouter(reg *registry.Registry, monitor health.Monitor, racer ShadowRaceExecutor, cfg AdaptiveConfig, log *logger.Logger) *AdaptiveRouter {
	if log == nil {
		log = logger.NewDefault("adaptive-router")
	}
	if cfg.DefaultTimeout <= 0 {
		cfg = DefaultAdaptiveConfig()
	}
	return &AdaptiveRouter{
		registry: reg,
		monitor:  monitor,
		racer:    racer,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// Recommend decides the routing strategy and dynamic timeout for a path.
func (r *AdaptiveRouter) Recommend(path string, rctx RequestContext) RouteDecision {
	decision := r.recommend(path, rctx)
	metrics.RecordRouteDecision(string(decision.Strategy))
	r.log.WithField("path", path).
		WithField("strategy", string(decision.Strategy)).
		WithField("target", decision.Target).
		Debug(decision.Reason)
	return decision
}

func (r *AdaptiveRouter) recommend(path string, rctx RequestContext) RouteDecision {
	ep, found := r.registry.Match(path)
	if !found {
		return RouteDecision{
			Strategy:  StrategyDirect,
			Target:    path,
			Timeout:   r.cfg.DefaultTimeout,
			Reason:    "path not registered; direct with default timeout",
			Priority:  rctx.Priority,
			CreatedAt: r.now(),
		}
	}

	timeout := r.dynamicTimeout(ep, rctx)

	if r.monitor.IsInCooldown(path) {
		target := ep.Fallback
		if target == "" {
			target = ep.Path
		}
		return RouteDecision{
			Strategy:  StrategyCooldown,
			Target:    target,
			Timeout:   timeout,
			Fallback:  ep.Fallback,
			Reason:    "endpoint in administrative cooldown",
			Priority:  rctx.Priority,
			Endpoint:  ep,
			CreatedAt: r.now(),
		}
	}

	// Declared order matters: the first unavailable dependency decides.
	for _, dep := range ep.Dependencies {
		if r.monitor.IsServiceAvailable(dep) {
			continue
		}
		if ep.Fallback != "" {
			return RouteDecision{
				Strategy:  StrategyFallback,
				Target:    ep.Fallback,
				Timeout:   timeout,
				Fallback:  ep.Fallback,
				Reason:    fmt.Sprintf("dependency %s unavailable; serving fallback", dep),
				Priority:  rctx.Priority,
				Endpoint:  ep,
				CreatedAt: r.now(),
			}
		}
		return RouteDecision{
			Strategy:  StrategyDegraded,
			Target:    ep.Path,
			Timeout:   timeout,
			Reason:    fmt.Sprintf("dependency %s unavailable; no fallback configured", dep),
			Priority:  rctx.Priority,
			Endpoint:  ep,
			CreatedAt: r.now(),
		}
	}

	if ep.Complexity <= r.cfg.LowComplexity {
		return RouteDecision{
			Strategy:  StrategyDirect,
			Target:    ep.Path,
			Timeout:   timeout,
			Fallback:  ep.Fallback,
			Reason:    "low complexity endpoint",
			Priority:  rctx.Priority,
			Endpoint:  ep,
			CreatedAt: r.now(),
		}
	}

	shadowRace := ep.Complexity >= r.cfg.HighComplexity &&
		ep.Fallback != "" &&
		r.categoryEligible(ep.Category)

	if ep.Manager != "" || ep.Complexity >= r.cfg.HighComplexity {
		target := ep.Manager
		if target == "" {
			target = ep.Path
		}
		decision := RouteDecision{
			Strategy:  StrategyManaged,
			Target:    target,
			Timeout:   timeout,
			Fallback:  ep.Fallback,
			Reason:    "high complexity or managed endpoint",
			Priority:  rctx.Priority,
			Endpoint:  ep,
			CreatedAt: r.now(),
		}
		if shadowRace {
			// Patience is the base timeout on purpose: the race exists to
			// avoid paying the adaptive buffer when a cached answer is
			// available sooner.
			decision.UseShadowRace = true
			decision.PatienceThreshold = ep.BaseTimeout
			decision.Reason = "high complexity endpoint with raceable fallback"
		}
		return decision
	}

	return RouteDecision{
		Strategy:  StrategyDirect,
		Target:    ep.Path,
		Timeout:   timeout,
		Fallback:  ep.Fallback,
		Reason:    "medium complexity endpoint",
		Priority:  rctx.Priority,
		Endpoint:  ep,
		CreatedAt: r.now(),
	}
}

// dynamicTimeout computes base timeout plus an adaptive buffer adjusted for
// request priority, force-fresh and current host load. A failed load sample
// simply skips the load adjustment.
func (r *AdaptiveRouter) dynamicTimeout(ep registry.EndpointConfig, rctx RequestContext) time.Duration {
	buffer := ep.AdaptiveBuffer
	switch rctx.Priority {
	case PriorityHigh:
		buffer /= 2
	case PriorityLow:
		buffer *= 2
	}
	if rctx.ForceFresh {
		buffer += r.cfg.ForceFreshIncrement
	}
	if load := r.monitor.CurrentLoad(); !load.SampledAt.IsZero() && load.CPUPercent > r.cfg.HighLoadCPUPercent {
		buffer += buffer / 2
	}
	return ep.BaseTimeout + buffer
}

func (r *AdaptiveRouter) categoryEligible(category string) bool {
	for _, c := range r.cfg.ShadowRaceCategories {
		if c == category {
			return true
		}
	}
	return false
}
