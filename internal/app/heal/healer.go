// Package heal restores entities whose cached artifacts failed integrity
// verification.
package heal

import (
	"context"
	"fmt"
	"strings"

	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
	"github.com/hoopsight/statlayer/internal/app/source"
	"github.com/hoopsight/statlayer/internal/app/storage"
	"github.com/hoopsight/statlayer/pkg/logger"
)

// QuarantineSuffix tags the artifact copy kept aside for inspection after a
// corruption event. Maintenance and listing logic must skip these ids.
const QuarantineSuffix = ".quarantine"

// IsQuarantineID reports whether an entity id names a quarantined copy.
func IsQuarantineID(entityID string) bool {
	return strings.HasSuffix(entityID, QuarantineSuffix)
}

// BaselineResetter drops a freshness baseline so the healed artifact gets a
// clean one. The freshness gate implements it.
type BaselineResetter interface {
	Forget(entityID string)
	MarkSynced(ctx context.Context, entityID string) error
}

// Healer repairs a corrupted entity.
type Healer interface {
	Heal(ctx context.Context, entityID string) error
}

// ReSyncHealer isolates the suspect artifact under a quarantine id, then
// replaces the canonical artifact with a full authoritative re-fetch.
type ReSyncHealer struct {
	store  storage.ArtifactStore
	client source.Client
	gate   BaselineResetter
	log    *logger.Logger
}

var _ Healer = (*ReSyncHealer)(nil)

// NewReSyncHealer constructs the default healer.
func NewReSyncHealer(store storage.ArtifactStore, client source.Client, gate BaselineResetter, log *logger.Logger) *ReSyncHealer {
	if log == nil {
		log = logger.NewDefault("heal")
	}
	return &ReSyncHealer{store: store, client: client, gate: gate, log: log}
}

// Heal quarantines the current artifact, re-fetches the full history and
// writes it as the new canonical artifact. The canonical artifact is only
// replaced if the re-fetch succeeds; a failed heal leaves it untouched so a
// later attempt can retry.
func (h *ReSyncHealer) Heal(ctx context.Context, entityID string) error {
	if suspect, err := h.store.Read(ctx, entityID); err == nil {
		qid := entityID + QuarantineSuffix
		if err := h.store.AtomicWrite(ctx, qid, suspect.Records); err != nil {
			h.log.WithError(err).WithField("entity_id", entityID).Warn("quarantine copy failed")
		}
	}

	fetched, err := h.client.FetchGameLogs(ctx, entityID, gamelog.Query{})
	if err != nil {
		return fmt.Errorf("heal re-fetch for %s: %w", entityID, err)
	}
	merged := gamelog.Merge(nil, fetched)
	if err := h.store.AtomicWrite(ctx, entityID, merged); err != nil {
		return fmt.Errorf("heal write for %s: %w", entityID, err)
	}

	if h.gate != nil {
		h.gate.Forget(entityID)
		if err := h.gate.MarkSynced(ctx, entityID); err != nil {
			h.log.WithError(err).WithField("entity_id", entityID).Warn("heal re-baseline failed")
		}
	}

	h.log.WithField("entity_id", entityID).
		WithField("records", len(merged)).
		Info("entity healed")
	return nil
}
