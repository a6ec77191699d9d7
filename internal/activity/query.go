// Package activity stores the per-entity activity trail written for every
// valuation domain event and answers timeline and search queries over it.
package activity

import (
	"context"
	"time"

	"github.com/matthewbaird/valuation/internal/types"
)

// Store is the interface for reading and writing activity entries.
type Store interface {
	// WriteEntries writes one or more activity entries (one event → many entries).
	WriteEntries(ctx context.Context, entries []types.ActivityEntry) error

	// QueryByEntity returns activity entries for a specific entity.
	QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) (entries []types.ActivityEntry, nextCursor string, totalCount int, err error)

	// Search matches activity summaries case-insensitively.
	Search(ctx context.Context, query string, opts SearchOptions) (entries []types.ActivityEntry, totalCount int, err error)
}

// QueryOptions controls filtering and pagination for entity activity queries.
type QueryOptions struct {
	Since      *time.Time // default: 6 months ago
	Until      *time.Time // default: now
	Categories []string   // "valuation", "workflow"
	MinWeight  string     // minimum weight threshold (default: "info")
	Limit      int        // max results (default: 100, max: 500)
	Cursor     string     // occurred_at of the last entry of the previous page
}

// SearchOptions controls filtering for activity search.
type SearchOptions struct {
	EntityType string     // filter to specific entity type
	Actor      string     // filter to one actor
	Since      *time.Time // filter by time
	Categories []string
	Limit      int // max results (default: 20)
}

// DefaultQueryOptions returns QueryOptions with sensible defaults.
func DefaultQueryOptions() QueryOptions {
	sixMonthsAgo := time.Now().AddDate(0, -6, 0)
	now := time.Now()
	return QueryOptions{
		Since:     &sixMonthsAgo,
		Until:     &now,
		MinWeight: "info",
		Limit:     100,
	}
}

// DefaultSearchOptions returns SearchOptions with sensible defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Limit: 20,
	}
}

func queryLimit(n int) int {
	if n <= 0 || n > 500 {
		return 100
	}
	return n
}

func searchLimit(n int) int {
	if n <= 0 {
		return 20
	}
	if n > 500 {
		return 500
	}
	return n
}

// weightsAtLeast lists every weight at least as severe as min.
func weightsAtLeast(min string) []string {
	var out []string
	for w := range types.WeightOrder {
		if types.IsAtLeastWeight(w, min) {
			out = append(out, w)
		}
	}
	return out
}
