// Package freshness classifies cached artifacts into discrete usability
// tiers and detects content changes that bypassed the sync path.
//
// Hash baselines live only in process memory: a restart cannot detect
// corruption that happened before it started and will classify by age alone.
// A cold start therefore degrades to a conservative age-based answer, never
// to serving unverifiable data as fresh.
package freshness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
	"github.com/hoopsight/statlayer/internal/app/storage"
	"github.com/hoopsight/statlayer/pkg/logger"
)

// Status is a freshness tier.
type Status string

const (
	StatusFresh     Status = "fresh"
	StatusWarm      Status = "warm"
	StatusStale     Status = "stale"
	StatusExpired   Status = "expired"
	StatusCorrupted Status = "corrupted"
)

// Age thresholds, ascending.
const (
	freshThreshold = 6 * time.Hour
	warmThreshold  = 12 * time.Hour
	staleThreshold = 24 * time.Hour
)

// InfiniteAge marks an entity with no usable artifact at all.
const InfiniteAge = time.Duration(math.MaxInt64)

// Result is the outcome of one Verify call. It is derived state and is never
// persisted.
type Result struct {
	EntityID  string
	Status    Status
	Age       time.Duration
	HashValid bool
	Location  string
	LastSync  time.Time // zero when no sync time is known
}

// NeedsSync reports whether the artifact requires a refresh before it can be
// considered current.
func (r Result) NeedsSync() bool {
	switch r.Status {
	case StatusStale, StatusExpired, StatusCorrupted:
		return true
	default:
		return false
	}
}

// Usable reports whether the artifact can be served without waiting for a
// sync.
func (r Result) Usable() bool {
	return r.Status == StatusFresh || r.Status == StatusWarm
}

type baseline struct {
	hash     string
	syncedAt time.Time
	synced   bool
}

// Gate answers freshness queries for cached artifacts. Baselines are an
// optimization, not a source of truth; an empty gate falls back to storage
// modification times.
type Gate struct {
	store storage.ArtifactStore
	log   *logger.Logger
	now   func() time.Time

	mu        sync.Mutex
	baselines map[string]baseline
}

// NewGate creates a gate with empty baselines.
func NewGate(store storage.ArtifactStore, log *logger.Logger) *Gate {
	if log == nil {
		log = logger.NewDefault("freshness")
	}
	return &Gate{
		store:     store,
		log:       log,
		now:       time.Now,
		baselines: make(map[string]baseline),
	}
}

// WithClock overrides the gate's time source. Intended for tests.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Verify classifies the entity's cached artifact. It never fails: any read
// or hash error degrades to EXPIRED so the caller re-syncs rather than
// serving unverifiable data.
func (g *Gate) Verify(ctx context.Context, entityID string) Result {
	exists, err := g.store.Exists(ctx, entityID)
	if err != nil || !exists {
		if err != nil {
			g.log.WithError(err).WithField("entity_id", entityID).Warn("artifact existence check failed")
		}
		return Result{EntityID: entityID, Status: StatusExpired, Age: InfiniteAge}
	}

	art, err := g.store.Read(ctx, entityID)
	if err != nil {
		g.log.WithError(err).WithField("entity_id", entityID).Warn("artifact read failed; treating as expired")
		return Result{EntityID: entityID, Status: StatusExpired, Age: InfiniteAge}
	}
	currentHash, err := hashRecords(art.Records)
	if err != nil {
		g.log.WithError(err).WithField("entity_id", entityID).Warn("artifact hash failed; treating as expired")
		return Result{EntityID: entityID, Status: StatusExpired, Age: InfiniteAge}
	}

	g.mu.Lock()
	base, known := g.baselines[entityID]
	if known && base.hash != currentHash {
		// The content changed without a MarkSynced in between: something
		// mutated the artifact outside the sync path. The baseline is kept
		// so repeated verifies stay CORRUPTED until a heal re-baselines.
		g.mu.Unlock()
		return Result{EntityID: entityID, Status: StatusCorrupted, Age: 0, Location: entityID}
	}
	lastSync := base.syncedAt
	hasSync := known && base.synced
	g.baselines[entityID] = baseline{hash: currentHash, syncedAt: base.syncedAt, synced: base.synced}
	g.mu.Unlock()

	if !hasSync {
		if mt, err := g.store.ModifiedTime(ctx, entityID); err == nil {
			lastSync = mt
		}
	}

	res := Result{
		EntityID:  entityID,
		HashValid: true,
		Location:  entityID,
		LastSync:  lastSync,
	}
	if lastSync.IsZero() {
		res.Status = StatusExpired
		res.Age = InfiniteAge
		res.HashValid = false
		return res
	}

	res.Age = g.now().Sub(lastSync)
	switch {
	case res.Age < freshThreshold:
		res.Status = StatusFresh
	case res.Age < warmThreshold:
		res.Status = StatusWarm
	case res.Age < staleThreshold:
		res.Status = StatusStale
	default:
		res.Status = StatusExpired
	}
	return res
}

// MarkSynced records the current time and recomputed content hash as the new
// baseline. It must be called exactly once per successful sync, after the
// artifact write is durable.
func (g *Gate) MarkSynced(ctx context.Context, entityID string) error {
	art, err := g.store.Read(ctx, entityID)
	if err != nil {
		return err
	}
	hash, err := hashRecords(art.Records)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.baselines[entityID] = baseline{hash: hash, syncedAt: g.now(), synced: true}
	g.mu.Unlock()
	return nil
}

// Rebaseline re-records the content hash while preserving the recorded sync
// time. Maintenance rewrites (retention truncation) call it so the next
// Verify does not report the intentional change as corruption, without
// resetting the freshness clock: only a real sync may do that.
func (g *Gate) Rebaseline(ctx context.Context, entityID string) error {
	art, err := g.store.Read(ctx, entityID)
	if err != nil {
		return err
	}
	hash, err := hashRecords(art.Records)
	if err != nil {
		return err
	}
	g.mu.Lock()
	base := g.baselines[entityID]
	g.baselines[entityID] = baseline{hash: hash, syncedAt: base.syncedAt, synced: base.synced}
	g.mu.Unlock()
	return nil
}

// Forget drops the entity's baseline. Used by the healer before re-syncing a
// corrupted artifact.
func (g *Gate) Forget(entityID string) {
	g.mu.Lock()
	delete(g.baselines, entityID)
	g.mu.Unlock()
}

func hashRecords(records []gamelog.Record) (string, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
