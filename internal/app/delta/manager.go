// Package delta implements incremental game log synchronisation: fetch only
// the records an entity is missing, merge them without duplication, and
// replace the stored artifact atomically.
package delta

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
	"github.com/hoopsight/statlayer/internal/app/metrics"
	"github.com/hoopsight/statlayer/internal/app/source"
	"github.com/hoopsight/statlayer/internal/app/storage"
	"github.com/hoopsight/statlayer/pkg/logger"
)

// Sentinel errors.
var (
	// ErrSourceUnavailable wraps upstream fetch failures. A sync returning
	// it has not mutated storage; callers with cached data may serve it.
	ErrSourceUnavailable = errors.New("data source unavailable")

	// ErrWriteFailure wraps storage write failures. The canonical artifact
	// is unchanged when it is returned.
	ErrWriteFailure = errors.New("artifact write failed")
)

// SyncStatus is the outcome class of a sync.
type SyncStatus string

const (
	StatusNoNewData SyncStatus = "no_new_data"
	StatusSynced    SyncStatus = "synced"
)

// SyncResult reports what a sync did.
type SyncResult struct {
	EntityID    string
	Status      SyncStatus
	Existing    int
	New         int
	Total       int
	CompletedAt time.Time
}

// TruncateResult reports what a retention pass dropped.
type TruncateResult struct {
	EntityID string
	Kept     int
	Dropped  int
}

// Marker is notified after an artifact has been durably replaced. The
// freshness gate implements it. MarkSynced resets both hash baseline and
// sync time after a real sync; Rebaseline refreshes only the hash after a
// maintenance rewrite, leaving the freshness clock untouched.
type Marker interface {
	MarkSynced(ctx context.Context, entityID string) error
	Rebaseline(ctx context.Context, entityID string) error
}

// Manager coordinates delta syncs. At most one sync or truncate runs per
// entity at any time; concurrent Sync callers for the same entity are
// coalesced onto the in-flight operation's result.
type Manager struct {
	store  storage.ArtifactStore
	client source.Client
	marker Marker
	log    *logger.Logger

	group singleflight.Group

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager constructs a sync manager. marker may be nil.
func NewManager(store storage.ArtifactStore, client source.Client, marker Marker, log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("delta")
	}
	return &Manager{
		store:  store,
		client: client,
		marker: marker,
		log:    log,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (m *Manager) entityLock(entityID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[entityID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[entityID] = lock
	}
	return lock
}

// Sync fetches records newer than the stored high-water mark and merges them
// in. A fetch failure returns ErrSourceUnavailable alongside a NO_NEW_DATA
// result and leaves storage untouched; an empty successful fetch is the
// ordinary steady state and returns NO_NEW_DATA with no error.
func (m *Manager) Sync(ctx context.Context, entityID string) (SyncResult, error) {
	v, err, _ := m.group.Do(entityID, func() (interface{}, error) {
		lock := m.entityLock(entityID)
		lock.Lock()
		defer lock.Unlock()
		return m.syncLocked(ctx, entityID)
	})
	res, _ := v.(SyncResult)
	return res, err
}

func (m *Manager) syncLocked(ctx context.Context, entityID string) (SyncResult, error) {
	started := time.Now()
	defer func() { metrics.RecordSyncDuration(time.Since(started)) }()

	existing, err := m.loadExisting(ctx, entityID)
	if err != nil {
		return SyncResult{EntityID: entityID, Status: StatusNoNewData}, err
	}

	query := gamelog.Query{}
	if hwm, ok := gamelog.HighWaterMark(existing); ok {
		query.AfterGameID = hwm.GameID
		query.After = hwm.PlayedAt
	}

	fetched, err := m.client.FetchGameLogs(ctx, entityID, query)
	if err != nil {
		m.log.WithError(err).WithField("entity_id", entityID).Warn("upstream fetch failed")
		return SyncResult{
			EntityID:    entityID,
			Status:      StatusNoNewData,
			Existing:    len(existing),
			Total:       len(existing),
			CompletedAt: time.Now().UTC(),
		}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if len(fetched) == 0 {
		return SyncResult{
			EntityID:    entityID,
			Status:      StatusNoNewData,
			Existing:    len(existing),
			Total:       len(existing),
			CompletedAt: time.Now().UTC(),
		}, nil
	}

	merged := gamelog.Merge(existing, fetched)
	if err := m.store.AtomicWrite(ctx, entityID, merged); err != nil {
		return SyncResult{
			EntityID: entityID,
			Status:   StatusNoNewData,
			Existing: len(existing),
			Total:    len(existing),
		}, fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}

	if m.marker != nil {
		if err := m.marker.MarkSynced(ctx, entityID); err != nil {
			m.log.WithError(err).WithField("entity_id", entityID).Warn("mark synced failed")
		}
	}

	res := SyncResult{
		EntityID:    entityID,
		Status:      StatusSynced,
		Existing:    len(existing),
		New:         len(merged) - len(existing),
		Total:       len(merged),
		CompletedAt: time.Now().UTC(),
	}
	m.log.WithField("entity_id", entityID).
		WithField("existing", res.Existing).
		WithField("new", res.New).
		Info("delta sync completed")
	return res, nil
}

// Truncate keeps only the keepWindow most recent records, using the same
// atomic replacement and per-entity exclusivity as Sync.
func (m *Manager) Truncate(ctx context.Context, entityID string, keepWindow int) (TruncateResult, error) {
	if keepWindow <= 0 {
		return TruncateResult{}, fmt.Errorf("keep window must be positive, got %d", keepWindow)
	}

	lock := m.entityLock(entityID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := m.loadExisting(ctx, entityID)
	if err != nil {
		return TruncateResult{EntityID: entityID}, err
	}
	if len(existing) <= keepWindow {
		return TruncateResult{EntityID: entityID, Kept: len(existing)}, nil
	}

	// Records are stored ascending by PlayedAt, so the tail is the most
	// recent window.
	kept := existing[len(existing)-keepWindow:]
	out := make([]gamelog.Record, len(kept))
	copy(out, kept)

	if err := m.store.AtomicWrite(ctx, entityID, out); err != nil {
		return TruncateResult{EntityID: entityID, Kept: len(existing)},
			fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	if m.marker != nil {
		// Only the hash baseline moves: a truncate is not a sync and must
		// not make an old artifact look freshly synced.
		if err := m.marker.Rebaseline(ctx, entityID); err != nil {
			m.log.WithError(err).WithField("entity_id", entityID).Warn("rebaseline failed")
		}
	}

	res := TruncateResult{EntityID: entityID, Kept: len(out), Dropped: len(existing) - len(out)}
	m.log.WithField("entity_id", entityID).
		WithField("dropped", res.Dropped).
		Info("artifact truncated")
	return res, nil
}

func (m *Manager) loadExisting(ctx context.Context, entityID string) ([]gamelog.Record, error) {
	art, err := m.store.Read(ctx, entityID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load existing artifact: %w", err)
	}
	return art.Records, nil
}
