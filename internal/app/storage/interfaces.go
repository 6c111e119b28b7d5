// Package storage defines the persistence contract for cached game log
// artifacts. Implementations must provide whole-artifact atomic replacement:
// a reader never observes a partially written record set.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
)

// ErrNotFound is returned when no artifact exists for an entity.
var ErrNotFound = errors.New("artifact not found")

// ArtifactStore persists one record set per entity id.
type ArtifactStore interface {
	// Read returns the stored artifact, or ErrNotFound.
	Read(ctx context.Context, entityID string) (gamelog.Artifact, error)

	// AtomicWrite replaces the entity's artifact in a single step.
	// If it returns an error, the previously stored artifact is intact.
	AtomicWrite(ctx context.Context, entityID string, records []gamelog.Record) error

	// Exists reports whether an artifact is stored for the entity.
	Exists(ctx context.Context, entityID string) (bool, error)

	// ModifiedTime returns the artifact's last modification time, used as a
	// conservative freshness fallback when no in-memory sync time is known.
	ModifiedTime(ctx context.Context, entityID string) (time.Time, error)

	// ListEntities returns the ids of all stored artifacts.
	ListEntities(ctx context.Context) ([]string, error)
}
