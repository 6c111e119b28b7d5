// Package file implements storage.ArtifactStore over a directory of JSON
// files, one per entity. Writes follow write-to-temp-then-rename discipline:
// the canonical file is replaced in a single rename, so readers never observe
// a partially written artifact and an interrupted write leaves the previous
// artifact byte-identical.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
	"github.com/hoopsight/statlayer/internal/app/storage"
)

const (
	artifactExt = ".json"
	tempPrefix  = ".tmp-"
)

// Store persists artifacts under a base directory.
type Store struct {
	dir string
}

var _ storage.ArtifactStore = (*Store)(nil)

// New creates the base directory if needed and removes stray temp files left
// behind by an interrupted process.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	s := &Store{dir: dir}
	s.sweepTempFiles()
	return s, nil
}

func (s *Store) path(entityID string) string {
	return filepath.Join(s.dir, sanitize(entityID)+artifactExt)
}

func (s *Store) Read(ctx context.Context, entityID string) (gamelog.Artifact, error) {
	data, err := os.ReadFile(s.path(entityID))
	if err != nil {
		if os.IsNotExist(err) {
			return gamelog.Artifact{}, storage.ErrNotFound
		}
		return gamelog.Artifact{}, fmt.Errorf("read artifact %s: %w", entityID, err)
	}
	var art gamelog.Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return gamelog.Artifact{}, fmt.Errorf("decode artifact %s: %w", entityID, err)
	}
	return art, nil
}

func (s *Store) AtomicWrite(ctx context.Context, entityID string, records []gamelog.Record) error {
	art := gamelog.Artifact{EntityID: entityID, Records: records}
	data, err := json.Marshal(art)
	if err != nil {
		return fmt.Errorf("encode artifact %s: %w", entityID, err)
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+sanitize(entityID)+"-*")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp artifact: %w", err)
	}

	if err := os.Rename(tmpName, s.path(entityID)); err != nil {
		return fmt.Errorf("replace artifact %s: %w", entityID, err)
	}
	return nil
}

func (s *Store) Exists(ctx context.Context, entityID string) (bool, error) {
	_, err := os.Stat(s.path(entityID))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat artifact %s: %w", entityID, err)
	}
	return true, nil
}

func (s *Store) ModifiedTime(ctx context.Context, entityID string) (time.Time, error) {
	info, err := os.Stat(s.path(entityID))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("stat artifact %s: %w", entityID, err)
	}
	return info.ModTime(), nil
}

func (s *Store) ListEntities(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, tempPrefix) || !strings.HasSuffix(name, artifactExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, artifactExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// sweepTempFiles removes leftovers from writes interrupted before rename.
// The canonical artifacts are untouched.
func (s *Store) sweepTempFiles() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), tempPrefix) {
			os.Remove(filepath.Join(s.dir, e.Name()))
		}
	}
}

// sanitize keeps entity ids filesystem-safe.
func sanitize(entityID string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, entityID)
}
