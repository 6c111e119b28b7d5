package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
)

const gamelogPayload = `{
  "gamelogs": [
    {"game_id": "g01", "played_at": "2026-01-10T19:00:00Z", "season": "2025-26", "opponent": "BOS",
     "stats": {"points": 27, "rebounds": 11.5}},
    {"game_id": "g02", "played_at": "2026-01-12T19:30:00Z", "season": "2025-26", "opponent": "DEN",
     "stats": {"points": 31}}
  ]
}`

func TestFetchGameLogsParsesPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/players/player-7/gamelogs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(gamelogPayload))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, RequestsPerSecond: 100}, nil)
	records, err := c.FetchGameLogs(context.Background(), "player-7", gamelog.Query{})
	if err != nil {
		t.Fatalf("FetchGameLogs: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].GameID != "g01" || records[0].Opponent != "BOS" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
	if records[0].Stats["rebounds"] != 11.5 {
		t.Fatalf("stats not parsed: %+v", records[0].Stats)
	}
	if records[0].FetchedAt.IsZero() {
		t.Fatal("FetchedAt must be stamped")
	}
}

func TestFetchGameLogsSendsAndReappliesBound(t *testing.T) {
	var gotAfter string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAfter = r.URL.Query().Get("after")
		// Provider ignores the bound and returns everything.
		w.Write([]byte(gamelogPayload))
	}))
	defer srv.Close()

	after := time.Date(2026, 1, 11, 0, 0, 0, 0, time.UTC)
	c := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, RequestsPerSecond: 100}, nil)
	records, err := c.FetchGameLogs(context.Background(), "player-7", gamelog.Query{After: after})
	if err != nil {
		t.Fatalf("FetchGameLogs: %v", err)
	}
	if gotAfter != "2026-01-11T00:00:00Z" {
		t.Fatalf("after parameter = %q", gotAfter)
	}
	if len(records) != 1 || records[0].GameID != "g02" {
		t.Fatalf("bound not re-applied locally: %+v", records)
	}
}

func TestFetchGameLogsRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"gamelogs": []}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, RequestsPerSecond: 100}, nil)
	records, err := c.FetchGameLogs(context.Background(), "player-7", gamelog.Query{})
	if err != nil {
		t.Fatalf("FetchGameLogs: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty result, got %+v", records)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected retry after 502, calls = %d", calls)
	}
}

func TestFetchGameLogsClientErrorIsFinal(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewHTTPClient(HTTPClientConfig{BaseURL: srv.URL, RequestsPerSecond: 100}, nil)
	if _, err := c.FetchGameLogs(context.Background(), "nobody", gamelog.Query{}); err == nil {
		t.Fatal("expected error on 404")
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("4xx must not be retried, calls = %d", calls)
	}
}

func TestParseGameLogsRootArray(t *testing.T) {
	body := []byte(`[{"game_id": "g09", "played_at": "2026-02-01T00:00:00Z"}]`)
	records, err := parseGameLogs("player-1", body, gamelog.Query{})
	if err != nil {
		t.Fatalf("parseGameLogs: %v", err)
	}
	if len(records) != 1 || records[0].GameID != "g09" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestParseGameLogsRejectsMalformed(t *testing.T) {
	cases := map[string]string{
		"not an array":    `{"gamelogs": {"game_id": "g01"}}`,
		"missing game_id": `[{"played_at": "2026-02-01T00:00:00Z"}]`,
		"bad played_at":   `[{"game_id": "g01", "played_at": "yesterday"}]`,
	}
	for name, body := range cases {
		if _, err := parseGameLogs("player-1", []byte(body), gamelog.Query{}); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}
