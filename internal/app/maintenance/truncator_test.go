package maintenance

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hoopsight/statlayer/internal/app/delta"
	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
	"github.com/hoopsight/statlayer/internal/app/freshness"
	"github.com/hoopsight/statlayer/internal/app/heal"
	"github.com/hoopsight/statlayer/internal/app/source"
	"github.com/hoopsight/statlayer/internal/app/storage/memory"
)

func seededRecords(n int) []gamelog.Record {
	rs := make([]gamelog.Record, 0, n)
	for i := 0; i < n; i++ {
		rs = append(rs, gamelog.Record{
			GameID:   fmt.Sprintf("g%02d", i+1),
			PlayedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i),
		})
	}
	return rs
}

func newTruncatorFixture(t *testing.T, keep int) (*Truncator, *memory.Store) {
	t.Helper()
	store := memory.New()
	client := source.ClientFunc(func(ctx context.Context, entityID string, q gamelog.Query) ([]gamelog.Record, error) {
		return nil, nil
	})
	gate := freshness.NewGate(store, nil)
	manager := delta.NewManager(store, client, gate, nil)
	return NewTruncator(store, manager, "@daily", keep, nil), store
}

func TestRunOnceAppliesRetention(t *testing.T) {
	ctx := context.Background()
	tr, store := newTruncatorFixture(t, 3)

	if err := store.AtomicWrite(ctx, "player-1", seededRecords(5)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.AtomicWrite(ctx, "player-2", seededRecords(2)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tr.RunOnce(ctx)

	a, err := store.Read(ctx, "player-1")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(a.Records) != 3 {
		t.Fatalf("expected 3 kept records, got %d", len(a.Records))
	}
	// The most recent records survive.
	if a.Records[0].GameID != "g03" || a.Records[2].GameID != "g05" {
		t.Fatalf("wrong records kept: %+v", a.Records)
	}

	b, err := store.Read(ctx, "player-2")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(b.Records) != 2 {
		t.Fatalf("under-window artifact must be untouched, got %d records", len(b.Records))
	}
}

func TestRunOnceSkipsQuarantinedCopies(t *testing.T) {
	ctx := context.Background()
	tr, store := newTruncatorFixture(t, 1)

	qid := "player-1" + heal.QuarantineSuffix
	if err := store.AtomicWrite(ctx, qid, seededRecords(4)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tr.RunOnce(ctx)

	q, err := store.Read(ctx, qid)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(q.Records) != 4 {
		t.Fatalf("quarantined copy must not be truncated, got %d records", len(q.Records))
	}
}

func TestStartWithRetentionDisabled(t *testing.T) {
	tr, _ := newTruncatorFixture(t, 0)
	ctx := context.Background()
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := tr.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	_, store := newTruncatorFixture(t, 1)
	client := source.ClientFunc(func(ctx context.Context, entityID string, q gamelog.Query) ([]gamelog.Record, error) {
		return nil, nil
	})
	manager := delta.NewManager(store, client, freshness.NewGate(store, nil), nil)
	tr := NewTruncator(store, manager, "not a schedule", 1, nil)
	if err := tr.Start(context.Background()); err == nil {
		t.Fatal("expected invalid schedule to fail Start")
	}
}
