// Package maintenance runs scheduled retention over stored artifacts.
// Truncation is independent of the sync path and goes through the sync
// manager so it shares the same per-entity exclusivity.
package maintenance

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/hoopsight/statlayer/internal/app/delta"
	"github.com/hoopsight/statlayer/internal/app/heal"
	"github.com/hoopsight/statlayer/internal/app/storage"
	"github.com/hoopsight/statlayer/internal/app/system"
	"github.com/hoopsight/statlayer/pkg/logger"
)

// Truncator periodically drops records outside the retention window.
type Truncator struct {
	store      storage.ArtifactStore
	manager    *delta.Manager
	keepWindow int
	schedule   string
	log        *logger.Logger
	runner     *cron.Cron
}

var _ system.Service = (*Truncator)(nil)

// NewTruncator creates a retention runner. schedule is a cron expression
// (or a descriptor like "@daily"); keepWindow is the number of most recent
// records kept per entity.
func NewTruncator(store storage.ArtifactStore, manager *delta.Manager, schedule string, keepWindow int, log *logger.Logger) *Truncator {
	if log == nil {
		log = logger.NewDefault("maintenance")
	}
	if schedule == "" {
		schedule = "@daily"
	}
	return &Truncator{
		store:      store,
		manager:    manager,
		keepWindow: keepWindow,
		schedule:   schedule,
		log:        log,
	}
}

func (t *Truncator) Name() string { return "maintenance-truncator" }

func (t *Truncator) Start(ctx context.Context) error {
	if t.keepWindow <= 0 {
		t.log.Info("retention disabled; truncator idle")
		return nil
	}
	runner := cron.New()
	if _, err := runner.AddFunc(t.schedule, func() { t.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule retention: %w", err)
	}
	runner.Start()
	t.runner = runner
	t.log.WithField("schedule", t.schedule).
		WithField("keep_window", t.keepWindow).
		Info("maintenance truncator started")
	return nil
}

func (t *Truncator) Stop(ctx context.Context) error {
	if t.runner == nil {
		return nil
	}
	stopCtx := t.runner.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce applies retention to every stored artifact. Quarantined copies are
// left alone: they exist for inspection, not serving.
func (t *Truncator) RunOnce(ctx context.Context) {
	ids, err := t.store.ListEntities(ctx)
	if err != nil {
		t.log.WithError(err).Warn("retention listing failed")
		return
	}
	for _, id := range ids {
		if heal.IsQuarantineID(id) {
			continue
		}
		res, err := t.manager.Truncate(ctx, id, t.keepWindow)
		if err != nil {
			t.log.WithError(err).WithField("entity_id", id).Warn("retention truncate failed")
			continue
		}
		if res.Dropped > 0 {
			t.log.WithField("entity_id", id).
				WithField("dropped", res.Dropped).
				Info("retention applied")
		}
	}
}
