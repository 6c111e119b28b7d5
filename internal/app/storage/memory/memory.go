package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
	"github.com/hoopsight/statlayer/internal/app/storage"
)

// Store is an in-memory implementation of storage.ArtifactStore. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu       sync.RWMutex
	records  map[string][]gamelog.Record
	modified map[string]time.Time

	// WriteErr, when set, makes the next AtomicWrite fail without mutating
	// stored state. Tests use it to exercise write-failure handling.
	WriteErr error
}

var _ storage.ArtifactStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		records:  make(map[string][]gamelog.Record),
		modified: make(map[string]time.Time),
	}
}

func (s *Store) Read(ctx context.Context, entityID string) (gamelog.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.records[entityID]
	if !ok {
		return gamelog.Artifact{}, storage.ErrNotFound
	}
	out := make([]gamelog.Record, len(rs))
	copy(out, rs)
	return gamelog.Artifact{EntityID: entityID, Records: out}, nil
}

func (s *Store) AtomicWrite(ctx context.Context, entityID string, records []gamelog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.WriteErr != nil {
		err := s.WriteErr
		s.WriteErr = nil
		return err
	}
	stored := make([]gamelog.Record, len(records))
	copy(stored, records)
	s.records[entityID] = stored
	s.modified[entityID] = time.Now().UTC()
	return nil
}

func (s *Store) Exists(ctx context.Context, entityID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[entityID]
	return ok, nil
}

func (s *Store) ModifiedTime(ctx context.Context, entityID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.modified[entityID]
	if !ok {
		return time.Time{}, storage.ErrNotFound
	}
	return ts, nil
}

func (s *Store) ListEntities(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SetModifiedTime backdates an artifact's modification time. Test helper for
// exercising freshness classification against storage metadata.
func (s *Store) SetModifiedTime(entityID string, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modified[entityID] = ts
}
