package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hoopsight/statlayer/internal/app/delta"
	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
	"github.com/hoopsight/statlayer/internal/app/freshness"
	"github.com/hoopsight/statlayer/internal/app/heal"
	"github.com/hoopsight/statlayer/internal/app/metrics"
	"github.com/hoopsight/statlayer/internal/app/storage"
	"github.com/hoopsight/statlayer/pkg/logger"
)

// ErrUnavailable is returned when an entity has no cached data and the
// blocking sync needed to produce some has failed.
var ErrUnavailable = errors.New("entity data unavailable")

// Source tags attached to entity responses.
const (
	SourceCache      = "cache"
	SourceStaleCache = "stale_cache"
	SourceFallback   = "fallback"
)

// StatusHealing marks a response served while an async heal is in flight.
const StatusHealing = "healing"

// EntityResponse is the result of routing one entity data request. Every
// response carries freshness metadata so callers can distinguish fresh data,
// stale data served during a refresh, and data served while healing.
type EntityResponse struct {
	EntityID  string
	Records   []gamelog.Record
	Source    string
	Status    string
	Freshness freshness.Result
}

// TaskSubmitter dispatches fire-and-forget background work. The task pool
// implements it.
type TaskSubmitter interface {
	Submit(label string, run func(ctx context.Context) error) (string, error)
}

// SovereignRouter is the entry point for single-entity data requests. It
// consults the freshness gate, triggers delta syncs either blocking or in
// the background, and degrades gracefully on integrity failure. Raw fetch
// and storage errors are translated into stale or fallback responses; the
// only error that propagates is a failed blocking sync with no cached data
// to fall back on.
type SovereignRouter struct {
	gate    *freshness.Gate
	manager *delta.Manager
	store   storage.ArtifactStore
	pool    TaskSubmitter
	healer  heal.Healer
	log     *logger.Logger

	mu      sync.Mutex
	healing map[string]struct{}
}

// NewSovereignRouter wires the entity router.
func NewSovereignRouter(gate *freshness.Gate, manager *delta.Manager, store storage.ArtifactStore, pool TaskSubmitter, healer heal.Healer, log *logger.Logger) *SovereignRouter {
	if log == nil {
		log = logger.NewDefault("sovereign-router")
	}
	return &SovereignRouter{
		gate:    gate,
		manager: manager,
		store:   store,
		pool:    pool,
		healer:  healer,
		log:     log,
		healing: make(map[string]struct{}),
	}
}

// Route serves the best available data for one entity.
func (r *SovereignRouter) Route(ctx context.Context, entityID string, forceFresh bool) (EntityResponse, error) {
	res := r.gate.Verify(ctx, entityID)
	metrics.RecordEntityRequest(res.Usable())

	if res.Status == freshness.StatusCorrupted {
		return r.respondHealing(ctx, entityID, res)
	}

	if res.NeedsSync() || forceFresh {
		// A brand-new entity (EXPIRED with nothing stored) or an explicit
		// force-fresh must wait for the sync; handing back an empty result
		// would be worse than blocking.
		if forceFresh || res.Status == freshness.StatusExpired {
			if err := r.blockingSync(ctx, entityID, &res); err != nil {
				return EntityResponse{}, err
			}
		} else {
			r.backgroundSync(entityID)
		}
	}

	art, err := r.store.Read(ctx, entityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return EntityResponse{}, fmt.Errorf("%w: %s", ErrUnavailable, entityID)
		}
		return EntityResponse{}, fmt.Errorf("read artifact %s: %w", entityID, err)
	}

	source := SourceStaleCache
	if res.Usable() {
		source = SourceCache
	}
	return EntityResponse{
		EntityID:  entityID,
		Records:   art.Records,
		Source:    source,
		Status:    string(res.Status),
		Freshness: res,
	}, nil
}

// blockingSync awaits a sync and re-verifies on success. A failed sync is
// tolerated when cached records already exist; the caller is then served
// stale data instead of an error.
func (r *SovereignRouter) blockingSync(ctx context.Context, entityID string, res *freshness.Result) error {
	metrics.RecordSyncTriggered("blocking")
	_, err := r.manager.Sync(ctx, entityID)
	if err != nil {
		exists, existsErr := r.store.Exists(ctx, entityID)
		if existsErr != nil || !exists {
			return fmt.Errorf("%w: %s: %v", ErrUnavailable, entityID, err)
		}
		r.log.WithError(err).
			WithField("entity_id", entityID).
			Warn("blocking sync failed; serving cached data")
		return nil
	}
	*res = r.gate.Verify(ctx, entityID)
	return nil
}

// backgroundSync dispatches a fire-and-forget refresh. The caller is served
// the existing stale data immediately; the refreshed artifact benefits the
// next request. The task runs on a detached context so cancelling the
// triggering request does not abort it.
func (r *SovereignRouter) backgroundSync(entityID string) {
	metrics.RecordSyncTriggered("background")
	_, err := r.pool.Submit("sync:"+entityID, func(taskCtx context.Context) error {
		_, syncErr := r.manager.Sync(taskCtx, entityID)
		return syncErr
	})
	if err != nil {
		r.log.WithError(err).WithField("entity_id", entityID).Warn("background sync not scheduled")
	}
}

// respondHealing dispatches an isolate-and-resync task at most once per
// corruption event and answers immediately with whatever data is on hand.
func (r *SovereignRouter) respondHealing(ctx context.Context, entityID string, res freshness.Result) (EntityResponse, error) {
	r.mu.Lock()
	_, inFlight := r.healing[entityID]
	if !inFlight {
		r.healing[entityID] = struct{}{}
	}
	r.mu.Unlock()

	if !inFlight {
		metrics.RecordHealTriggered()
		_, err := r.pool.Submit("heal:"+entityID, func(taskCtx context.Context) error {
			defer func() {
				r.mu.Lock()
				delete(r.healing, entityID)
				r.mu.Unlock()
			}()
			return r.healer.Heal(taskCtx, entityID)
		})
		if err != nil {
			r.mu.Lock()
			delete(r.healing, entityID)
			r.mu.Unlock()
			r.log.WithError(err).WithField("entity_id", entityID).Warn("heal not scheduled")
		}
	}

	resp := EntityResponse{
		EntityID:  entityID,
		Source:    SourceFallback,
		Status:    StatusHealing,
		Freshness: res,
	}
	if art, err := r.store.Read(ctx, entityID); err == nil {
		resp.Records = art.Records
	}
	return resp, nil
}
