// Package gamelog defines the domain model for per-player game log data
// sourced from upstream stat providers.
package gamelog

import (
	"sort"
	"time"
)

// Record is a single game stat line for a player. GameID is the natural key:
// an artifact never holds two records with the same GameID.
type Record struct {
	GameID    string             `json:"game_id"`
	PlayedAt  time.Time          `json:"played_at"`
	Season    string             `json:"season,omitempty"`
	Opponent  string             `json:"opponent,omitempty"`
	Stats     map[string]float64 `json:"stats,omitempty"`
	FetchedAt time.Time          `json:"fetched_at,omitempty"`
}

// Artifact is the durable record set cached for one entity.
type Artifact struct {
	EntityID string   `json:"entity_id"`
	Records  []Record `json:"records"`
}

// Query bounds an upstream fetch to records strictly newer than the
// high-water mark already stored.
type Query struct {
	AfterGameID string
	After       time.Time
	Season      string
}

// HighWaterMark returns the most recent record in rs, preferring the latest
// PlayedAt and breaking ties by GameID. ok is false for an empty set.
func HighWaterMark(rs []Record) (Record, bool) {
	if len(rs) == 0 {
		return Record{}, false
	}
	top := rs[0]
	for _, r := range rs[1:] {
		if r.PlayedAt.After(top.PlayedAt) ||
			(r.PlayedAt.Equal(top.PlayedAt) && r.GameID > top.GameID) {
			top = r
		}
	}
	return top, true
}

// Merge concatenates existing and fetched records, deduplicates by GameID
// keeping the most recently fetched version of any duplicate, and returns
// the result sorted ascending by PlayedAt (GameID as tiebreak). Merge is
// idempotent: merging the same inputs twice yields identical output.
func Merge(existing, fetched []Record) []Record {
	byID := make(map[string]Record, len(existing)+len(fetched))
	for _, r := range existing {
		byID[r.GameID] = r
	}
	// Fetched records win over stored ones for the same game.
	for _, r := range fetched {
		byID[r.GameID] = r
	}

	merged := make([]Record, 0, len(byID))
	for _, r := range byID {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if !merged[i].PlayedAt.Equal(merged[j].PlayedAt) {
			return merged[i].PlayedAt.Before(merged[j].PlayedAt)
		}
		return merged[i].GameID < merged[j].GameID
	})
	return merged
}
