// Package source defines the upstream data source contract and an HTTP
// implementation for fetching player game logs.
package source

import (
	"context"

	"github.com/hoopsight/statlayer/internal/app/domain/gamelog"
)

// Client retrieves game log records for an entity. An empty result with a
// nil error means the upstream has nothing newer than the query bound; it is
// never used to signal a failure.
type Client interface {
	FetchGameLogs(ctx context.Context, entityID string, query gamelog.Query) ([]gamelog.Record, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, entityID string, query gamelog.Query) ([]gamelog.Record, error)

func (f ClientFunc) FetchGameLogs(ctx context.Context, entityID string, query gamelog.Query) ([]gamelog.Record, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, entityID, query)
}
