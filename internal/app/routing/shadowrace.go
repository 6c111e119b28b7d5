package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/hoopsight/statlayer/internal/app/metrics"
	"github.com/hoopsight/statlayer/pkg/logger"
)

// Race source tags.
const (
	RaceSourceLive  = "live"
	RaceSourceCache = "cache"
)

// Fetch produces a result for one side of a race.
type Fetch func(ctx context.Context) (interface{}, error)

// RaceOutcome is the result of a shadow race or of the plain
// live-then-cache path.
type RaceOutcome struct {
	Data   interface{}
	Source string

	// LateArrivalPending is true when the cached result was returned while
	// the live fetch continues in the background to refresh the cache.
	LateArrivalPending bool

	// LiveErr carries the live path's error when the cache answered
	// instead.
	LiveErr error
}

// ShadowRaceExecutor races a live fetch against a cached fallback under a
// patience budget, returning whichever resolves first.
type ShadowRaceExecutor interface {
	Execute(ctx context.Context, live, cacheFallback Fetch, patience time.Duration, label string) (RaceOutcome, error)
}

// RefreshFunc consumes a late-arriving live result so it can refresh the
// cache after the caller has already been answered.
type RefreshFunc func(ctx context.Context, label string, data interface{})

// Racer is the default ShadowRaceExecutor.
type Racer struct {
	log     *logger.Logger
	refresh RefreshFunc
}

var _ ShadowRaceExecutor = (*Racer)(nil)

// NewRacer constructs a shadow race executor. refresh may be nil when late
// arrivals should be dropped.
func NewRacer(refresh RefreshFunc, log *logger.Logger) *Racer {
	if log == nil {
		log = logger.NewDefault("shadow-race")
	}
	return &Racer{log: log, refresh: refresh}
}

type raceReply struct {
	data interface{}
	err  error
}

// Execute waits up to patience for the live fetch; past that it commits to
// the cached fallback and lets the live fetch run to completion in the
// background so its result can still refresh the cache.
func (r *Racer) Execute(ctx context.Context, live, cacheFallback Fetch, patience time.Duration, label string) (RaceOutcome, error) {
	if patience <= 0 {
		patience = time.Second
	}

	liveCh := make(chan raceReply, 1)
	// Deliberately not ctx-scoped: a late live result is still wanted for
	// the cache refresh after the caller has been answered.
	liveCtx := context.Background()
	go func() {
		data, err := live(liveCtx)
		liveCh <- raceReply{data: data, err: err}
	}()

	timer := time.NewTimer(patience)
	defer timer.Stop()

	select {
	case reply := <-liveCh:
		if reply.err == nil {
			metrics.RecordShadowRaceOutcome(RaceSourceLive)
			return RaceOutcome{Data: reply.data, Source: RaceSourceLive}, nil
		}
		// Live failed fast; fall back to the cache immediately.
		return r.commitToCache(ctx, cacheFallback, label, reply.err, false)
	case <-timer.C:
		r.log.WithField("label", label).
			WithField("patience", patience.String()).
			Debug("patience exhausted; committing to cached result")
		outcome, err := r.commitToCache(ctx, cacheFallback, label, nil, true)
		if err == nil {
			go r.consumeLateArrival(liveCh, label)
			return outcome, nil
		}
		// The cache came up empty but the live fetch is still in flight;
		// wait for it under the caller's deadline before giving up.
		select {
		case reply := <-liveCh:
			if reply.err == nil {
				metrics.RecordShadowRaceOutcome(RaceSourceLive)
				return RaceOutcome{Data: reply.data, Source: RaceSourceLive}, nil
			}
			return RaceOutcome{}, err
		case <-ctx.Done():
			return RaceOutcome{}, err
		}
	case <-ctx.Done():
		return RaceOutcome{}, ctx.Err()
	}
}

func (r *Racer) commitToCache(ctx context.Context, cacheFallback Fetch, label string, liveErr error, pending bool) (RaceOutcome, error) {
	data, err := cacheFallback(ctx)
	if err != nil {
		if liveErr != nil {
			return RaceOutcome{}, liveErr
		}
		return RaceOutcome{}, fmt.Errorf("cached fallback for %s: %w", label, err)
	}
	metrics.RecordShadowRaceOutcome(RaceSourceCache)
	return RaceOutcome{
		Data:               data,
		Source:             RaceSourceCache,
		LateArrivalPending: pending,
		LiveErr:            liveErr,
	}, nil
}

func (r *Racer) consumeLateArrival(liveCh <-chan raceReply, label string) {
	reply := <-liveCh
	if reply.err != nil {
		r.log.WithError(reply.err).WithField("label", label).Debug("late live fetch failed")
		return
	}
	if r.refresh != nil {
		r.refresh(context.Background(), label, reply.data)
	}
}

// ExecuteWithShadowRace runs a decided route. Without a shadow race it
// executes the live task under the decision timeout, falling back to the
// cache task once on failure with the original error attached; if the cache
// also fails the original error propagates.
func (r *AdaptiveRouter) ExecuteWithShadowRace(ctx context.Context, decision RouteDecision, live, cacheTask Fetch) (RaceOutcome, error) {
	if decision.UseShadowRace && r.racer != nil {
		return r.racer.Execute(ctx, live, cacheTask, decision.PatienceThreshold, decision.Target)
	}

	liveCtx := ctx
	if decision.Timeout > 0 {
		var cancel context.CancelFunc
		liveCtx, cancel = context.WithTimeout(ctx, decision.Timeout)
		defer cancel()
	}

	data, liveErr := live(liveCtx)
	if liveErr == nil {
		return RaceOutcome{Data: data, Source: RaceSourceLive}, nil
	}
	if cacheTask == nil {
		return RaceOutcome{}, liveErr
	}
	cached, cacheErr := cacheTask(ctx)
	if cacheErr != nil {
		return RaceOutcome{}, liveErr
	}
	return RaceOutcome{Data: cached, Source: RaceSourceCache, LiveErr: liveErr}, nil
}
