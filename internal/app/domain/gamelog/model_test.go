package gamelog

import (
	"testing"
	"time"
)

func rec(id string, playedAt time.Time) Record {
	return Record{GameID: id, PlayedAt: playedAt}
}

func TestMerge_DeduplicatesAndSorts(t *testing.T) {
	base := time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC)

	existing := []Record{
		rec("g1", base),
		rec("g2", base.Add(24*time.Hour)),
	}
	fetched := []Record{
		rec("g3", base.Add(48*time.Hour)),
		{GameID: "g2", PlayedAt: base.Add(24 * time.Hour), Opponent: "corrected"},
	}

	merged := Merge(existing, fetched)
	if len(merged) != 3 {
		t.Fatalf("expected 3 records, got %d", len(merged))
	}
	for i := 1; i < len(merged); i++ {
		if merged[i].PlayedAt.Before(merged[i-1].PlayedAt) {
			t.Fatalf("records not sorted ascending at %d", i)
		}
	}
	seen := make(map[string]bool)
	for _, r := range merged {
		if seen[r.GameID] {
			t.Fatalf("duplicate game id %s", r.GameID)
		}
		seen[r.GameID] = true
	}
	// The fetched version of a duplicate wins.
	if merged[1].Opponent != "corrected" {
		t.Fatalf("expected fetched duplicate to win, got %#v", merged[1])
	}
}

func TestMerge_Idempotent(t *testing.T) {
	base := time.Date(2026, 2, 1, 18, 30, 0, 0, time.UTC)
	records := []Record{rec("a", base), rec("b", base.Add(time.Hour))}

	once := Merge(records, nil)
	twice := Merge(once, nil)
	if len(once) != len(twice) {
		t.Fatalf("merge not idempotent: %d vs %d", len(once), len(twice))
	}
	for i := range once {
		if once[i].GameID != twice[i].GameID {
			t.Fatalf("order changed at %d: %s vs %s", i, once[i].GameID, twice[i].GameID)
		}
	}
}

func TestHighWaterMark(t *testing.T) {
	if _, ok := HighWaterMark(nil); ok {
		t.Fatalf("expected no high-water mark for empty set")
	}

	base := time.Date(2026, 3, 5, 20, 0, 0, 0, time.UTC)
	records := []Record{
		rec("g1", base),
		rec("g3", base.Add(2*time.Hour)),
		rec("g2", base.Add(2*time.Hour)),
	}
	hwm, ok := HighWaterMark(records)
	if !ok {
		t.Fatalf("expected high-water mark")
	}
	// Ties on PlayedAt break by GameID, descending.
	if hwm.GameID != "g3" {
		t.Fatalf("expected g3, got %s", hwm.GameID)
	}
}
