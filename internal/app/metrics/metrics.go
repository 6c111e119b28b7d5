package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the statlayer-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	entityRequests = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "statlayer",
			Subsystem: "router",
			Name:      "entity_requests_total",
			Help:      "Total number of entity data requests routed.",
		},
	)

	cacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "statlayer",
			Subsystem: "router",
			Name:      "cache_hits_total",
			Help:      "Requests answered from a FRESH or WARM artifact.",
		},
	)

	syncsTriggered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statlayer",
			Subsystem: "sync",
			Name:      "triggered_total",
			Help:      "Delta syncs triggered, by mode (blocking or background).",
		},
		[]string{"mode"},
	)

	syncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "statlayer",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of delta sync operations.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
	)

	healsTriggered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "statlayer",
			Subsystem: "router",
			Name:      "heals_triggered_total",
			Help:      "Asynchronous heal tasks dispatched on integrity failure.",
		},
	)

	routeDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statlayer",
			Subsystem: "adaptive",
			Name:      "route_decisions_total",
			Help:      "Endpoint routing decisions, by strategy.",
		},
		[]string{"strategy"},
	)

	shadowRaceOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statlayer",
			Subsystem: "adaptive",
			Name:      "shadow_race_outcomes_total",
			Help:      "Shadow race resolutions, by winning source.",
		},
		[]string{"source"},
	)

	backgroundTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "statlayer",
			Subsystem: "tasks",
			Name:      "completed_total",
			Help:      "Background tasks completed, by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		entityRequests,
		cacheHits,
		syncsTriggered,
		syncDuration,
		healsTriggered,
		routeDecisions,
		shadowRaceOutcomes,
		backgroundTasks,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordEntityRequest counts a routed entity request and whether it was
// served from a usable cache tier.
func RecordEntityRequest(cacheHit bool) {
	entityRequests.Inc()
	if cacheHit {
		cacheHits.Inc()
	}
}

// RecordSyncTriggered counts a triggered sync. Mode is "blocking" or
// "background".
func RecordSyncTriggered(mode string) {
	if mode == "" {
		mode = "unknown"
	}
	syncsTriggered.WithLabelValues(mode).Inc()
}

// RecordSyncDuration records how long a sync took.
func RecordSyncDuration(duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	syncDuration.Observe(duration.Seconds())
}

// RecordHealTriggered counts a dispatched heal task.
func RecordHealTriggered() {
	healsTriggered.Inc()
}

// RecordRouteDecision counts an adaptive routing decision.
func RecordRouteDecision(strategy string) {
	if strategy == "" {
		strategy = "unknown"
	}
	routeDecisions.WithLabelValues(strategy).Inc()
}

// RecordShadowRaceOutcome counts which source won a shadow race.
func RecordShadowRaceOutcome(source string) {
	if source == "" {
		source = "unknown"
	}
	shadowRaceOutcomes.WithLabelValues(source).Inc()
}

// RecordBackgroundTask counts a completed background task. Outcome is
// "ok", "error" or "panic".
func RecordBackgroundTask(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	backgroundTasks.WithLabelValues(outcome).Inc()
}
