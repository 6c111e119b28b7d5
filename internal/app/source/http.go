package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
	"github.com/hoopsight/statlayer/pkg/logger"
)

const maxResponseBytes = 8 << 20

// HTTPClientConfig configures the upstream stats client.
type HTTPClientConfig struct {
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond int
	Burst             int
}

// HTTPClient fetches game logs from an upstream JSON stats API. Requests are
// rate limited so sync bursts cannot hammer the provider.
type HTTPClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	maxRetries int
	log        *logger.Logger
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient constructs a rate-limited upstream client.
func NewHTTPClient(cfg HTTPClientConfig, log *logger.Logger) *HTTPClient {
	if log == nil {
		log = logger.NewDefault("source-http")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = rps
	}
	return &HTTPClient{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		baseURL:    cfg.BaseURL,
		maxRetries: maxRetries,
		log:        log,
	}
}

// FetchGameLogs retrieves records strictly newer than the query bound.
func (c *HTTPClient) FetchGameLogs(ctx context.Context, entityID string, query gamelog.Query) ([]gamelog.Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u := fmt.Sprintf("%s/players/%s/gamelogs", c.baseURL, url.PathEscape(entityID))
	params := url.Values{}
	if !query.After.IsZero() {
		params.Set("after", query.After.UTC().Format(time.RFC3339))
	}
	if query.Season != "" {
		params.Set("season", query.Season)
	}
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}

	body, err := c.getWithRetry(ctx, u)
	if err != nil {
		return nil, err
	}
	return parseGameLogs(entityID, body, query)
}

func (c *HTTPClient) getWithRetry(ctx context.Context, u string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 250 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("upstream status %d", resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
		case readErr != nil:
			lastErr = fmt.Errorf("read response: %w", readErr)
			continue
		}
		return data, nil
	}
	return nil, lastErr
}

// parseGameLogs extracts records from the upstream payload. The bound is
// re-applied locally because not every provider honours the after parameter.
func parseGameLogs(entityID string, body []byte, query gamelog.Query) ([]gamelog.Record, error) {
	root := gjson.GetBytes(body, "gamelogs")
	if !root.Exists() {
		root = gjson.ParseBytes(body)
	}
	if !root.IsArray() {
		return nil, fmt.Errorf("unexpected payload shape for %s", entityID)
	}

	now := time.Now().UTC()
	var records []gamelog.Record
	var parseErr error
	root.ForEach(func(_, item gjson.Result) bool {
		gameID := item.Get("game_id").String()
		if gameID == "" {
			parseErr = fmt.Errorf("game log without game_id for %s", entityID)
			return false
		}
		playedAt, err := time.Parse(time.RFC3339, item.Get("played_at").String())
		if err != nil {
			parseErr = fmt.Errorf("game %s: bad played_at: %w", gameID, err)
			return false
		}
		if !query.After.IsZero() && !playedAt.After(query.After) {
			return true
		}

		rec := gamelog.Record{
			GameID:    gameID,
			PlayedAt:  playedAt.UTC(),
			Season:    item.Get("season").String(),
			Opponent:  item.Get("opponent").String(),
			FetchedAt: now,
		}
		if stats := item.Get("stats"); stats.IsObject() {
			rec.Stats = make(map[string]float64)
			stats.ForEach(func(k, v gjson.Result) bool {
				rec.Stats[k.String()] = v.Float()
				return true
			})
		}
		records = append(records, rec)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}
	return records, nil
}
