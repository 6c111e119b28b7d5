// Package bolt implements storage.ArtifactStore over a bbolt database.
// Each write is a single transaction, which gives the same all-or-nothing
// replacement guarantee as the file store's temp-then-rename discipline.
package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
	"github.com/hoopsight/statlayer/internal/app/storage"
)

var (
	bucketArtifacts = []byte("artifacts")
	bucketModified  = []byte("modified")
)

// Store persists artifacts in a single bbolt file.
type Store struct {
	db *bbolt.DB
}

var _ storage.ArtifactStore = (*Store)(nil)

// Open opens or creates the database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open artifact db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketArtifacts); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketModified)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise artifact buckets: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Read(ctx context.Context, entityID string) (gamelog.Artifact, error) {
	var art gamelog.Artifact
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketArtifacts).Get([]byte(entityID))
		if data == nil {
			return storage.ErrNotFound
		}
		return json.Unmarshal(data, &art)
	})
	if err != nil {
		if err == storage.ErrNotFound {
			return gamelog.Artifact{}, err
		}
		return gamelog.Artifact{}, fmt.Errorf("read artifact %s: %w", entityID, err)
	}
	return art, nil
}

func (s *Store) AtomicWrite(ctx context.Context, entityID string, records []gamelog.Record) error {
	data, err := json.Marshal(gamelog.Artifact{EntityID: entityID, Records: records})
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", entityID, err)
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketArtifacts).Put([]byte(entityID), data); err != nil {
			return err
		}
		var ts [8]byte
		binary.BigEndian.PutUint64(ts[:], uint64(time.Now().UTC().UnixNano()))
		return tx.Bucket(bucketModified).Put([]byte(entityID), ts[:])
	})
	if err != nil {
		return fmt.Errorf("write artifact %s: %w", entityID, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, entityID string) (bool, error) {
	var ok bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		ok = tx.Bucket(bucketArtifacts).Get([]byte(entityID)) != nil
		return nil
	})
	return ok, err
}

func (s *Store) ModifiedTime(ctx context.Context, entityID string) (time.Time, error) {
	var ts time.Time
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketModified).Get([]byte(entityID))
		if data == nil {
			return storage.ErrNotFound
		}
		ts = time.Unix(0, int64(binary.BigEndian.Uint64(data))).UTC()
		return nil
	})
	if err != nil {
		if err == storage.ErrNotFound {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("read artifact mtime %s: %w", entityID, err)
	}
	return ts, nil
}

func (s *Store) ListEntities(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketArtifacts).ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
