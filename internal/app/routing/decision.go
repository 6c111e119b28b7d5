// Package routing contains the two request routers: the AdaptiveRouter,
// which recommends an execution strategy per logical endpoint, and the
// SovereignRouter, which serves the best available data for one entity while
// coordinating freshness checks, delta syncs and heals.
package routing

import (
	"time"

	"github.com/hoopsight/statlayer/internal/app/registry"
)

// RouteStrategy is the execution strategy recommended for a request.
type RouteStrategy string

const (
	// StrategyDirect calls the endpoint with no orchestration.
	StrategyDirect RouteStrategy = "direct"

	// StrategyManaged routes the call through a declared manager.
	StrategyManaged RouteStrategy = "managed"

	// StrategyFallback serves an alternate path because a dependency is down.
	StrategyFallback RouteStrategy = "fallback"

	// StrategyCooldown serves the fallback during an administrative window.
	StrategyCooldown RouteStrategy = "cooldown"

	// StrategyDegraded serves a reduced response: a dependency is down and
	// no fallback is configured.
	StrategyDegraded RouteStrategy = "degraded"
)

// Priority levels carried in the request context.
const (
	PriorityHigh   = "high"
	PriorityNormal = "normal"
	PriorityLow    = "low"
)

// RequestContext carries per-request hints into routing decisions.
type RequestContext struct {
	Priority   string
	ForceFresh bool
}

// RouteDecision is the advisory outcome of AdaptiveRouter.Recommend. It is
// consumed once by the caller and never persisted.
type RouteDecision struct {
	Strategy          RouteStrategy
	Target            string
	Timeout           time.Duration
	UseShadowRace     bool
	PatienceThreshold time.Duration
	Fallback          string
	Reason            string
	Priority          string
	Endpoint          registry.EndpointConfig
	CreatedAt         time.Time
}
