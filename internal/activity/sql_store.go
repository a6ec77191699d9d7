package activity

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/matthewbaird/valuation/internal/database"
	"github.com/matthewbaird/valuation/internal/types"
)

const entriesTable = "activity_entries"

var entryColumns = []string{
	"event_id", "event_type", "occurred_at", "indexed_entity_type", "indexed_entity_id",
	"entity_role", "actor", "source_refs", "summary", "category", "weight", "payload",
}

type entryRow struct {
	EventID           string         `db:"event_id"`
	EventType         string         `db:"event_type"`
	OccurredAt        time.Time      `db:"occurred_at"`
	IndexedEntityType string         `db:"indexed_entity_type"`
	IndexedEntityID   string         `db:"indexed_entity_id"`
	EntityRole        string         `db:"entity_role"`
	Actor             string         `db:"actor"`
	SourceRefs        string         `db:"source_refs"`
	Summary           string         `db:"summary"`
	Category          string         `db:"category"`
	Weight            string         `db:"weight"`
	Payload           sql.NullString `db:"payload"`
}

// SQLStore implements Store on the shared SQLite database.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps a migrated database handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

// WriteEntries inserts activity entries, ignoring duplicates.
func (s *SQLStore) WriteEntries(ctx context.Context, entries []types.ActivityEntry) error {
	if len(entries) == 0 {
		return nil
	}

	ins := database.Builder().Insert(entriesTable).Columns(entryColumns...)
	for _, e := range entries {
		refsJSON, err := json.Marshal(e.SourceRefs)
		if err != nil {
			return fmt.Errorf("encode source refs: %w", err)
		}
		var payload sql.NullString
		if len(e.Payload) > 0 {
			payload = sql.NullString{String: string(e.Payload), Valid: true}
		}
		ins.Values(
			e.EventID, e.EventType, e.OccurredAt.UTC(), e.IndexedEntityType, e.IndexedEntityID,
			e.EntityRole, e.Actor, string(refsJSON), e.Summary, e.Category, e.Weight, payload,
		)
	}
	ins.OnConflict(entsql.DoNothing())

	query, args := ins.Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("writing activity entries: %w", err)
	}
	return nil
}

// QueryByEntity returns activity entries for a specific entity with filtering and pagination.
func (s *SQLStore) QueryByEntity(ctx context.Context, entityType, entityID string, opts QueryOptions) ([]types.ActivityEntry, string, int, error) {
	limit := queryLimit(opts.Limit)

	preds := []*entsql.Predicate{
		entsql.EQ("indexed_entity_type", entityType),
		entsql.EQ("indexed_entity_id", entityID),
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC()))
	}
	if opts.Until != nil {
		preds = append(preds, entsql.LTE("occurred_at", opts.Until.UTC()))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", anySlice(opts.Categories)...))
	}
	if opts.MinWeight != "" && opts.MinWeight != "info" {
		preds = append(preds, entsql.In("weight", anySlice(weightsAtLeast(opts.MinWeight))...))
	}
	if opts.Cursor != "" {
		if cursorTime, err := time.Parse(time.RFC3339Nano, opts.Cursor); err == nil {
			preds = append(preds, entsql.LT("occurred_at", cursorTime.UTC()))
		}
	}

	total, err := s.count(ctx, preds)
	if err != nil {
		return nil, "", 0, err
	}

	// Fetch one extra row to learn whether a next page exists.
	entries, err := s.selectEntries(ctx, preds, limit+1)
	if err != nil {
		return nil, "", 0, fmt.Errorf("querying activity entries: %w", err)
	}

	var nextCursor string
	if len(entries) > limit {
		entries = entries[:limit]
		nextCursor = entries[len(entries)-1].OccurredAt.Format(time.RFC3339Nano)
	}
	return entries, nextCursor, total, nil
}

// Search matches activity summaries case-insensitively.
func (s *SQLStore) Search(ctx context.Context, query string, opts SearchOptions) ([]types.ActivityEntry, int, error) {
	preds := []*entsql.Predicate{entsql.ContainsFold("summary", query)}
	if opts.EntityType != "" {
		preds = append(preds, entsql.EQ("indexed_entity_type", opts.EntityType))
	}
	if opts.Actor != "" {
		preds = append(preds, entsql.EQ("actor", opts.Actor))
	}
	if opts.Since != nil {
		preds = append(preds, entsql.GTE("occurred_at", opts.Since.UTC()))
	}
	if len(opts.Categories) > 0 {
		preds = append(preds, entsql.In("category", anySlice(opts.Categories)...))
	}

	total, err := s.count(ctx, preds)
	if err != nil {
		return nil, 0, err
	}
	entries, err := s.selectEntries(ctx, preds, searchLimit(opts.Limit))
	if err != nil {
		return nil, 0, fmt.Errorf("searching activity entries: %w", err)
	}
	return entries, total, nil
}

func (s *SQLStore) count(ctx context.Context, preds []*entsql.Predicate) (int, error) {
	query, args := database.Builder().Select(entsql.Count("*")).
		From(entsql.Table(entriesTable)).
		Where(entsql.And(preds...)).
		Query()
	var total int
	if err := sqlx.GetContext(ctx, s.db, &total, query, args...); err != nil {
		return 0, fmt.Errorf("counting activity entries: %w", err)
	}
	return total, nil
}

func (s *SQLStore) selectEntries(ctx context.Context, preds []*entsql.Predicate, limit int) ([]types.ActivityEntry, error) {
	query, args := database.Builder().Select(entryColumns...).
		From(entsql.Table(entriesTable)).
		Where(entsql.And(preds...)).
		OrderBy(entsql.Desc("occurred_at")).
		Limit(limit).
		Query()

	var rows []entryRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, err
	}
	entries := make([]types.ActivityEntry, 0, len(rows))
	for _, r := range rows {
		e := types.ActivityEntry{
			EventID:           r.EventID,
			EventType:         r.EventType,
			OccurredAt:        r.OccurredAt.UTC(),
			IndexedEntityType: r.IndexedEntityType,
			IndexedEntityID:   r.IndexedEntityID,
			EntityRole:        r.EntityRole,
			Actor:             r.Actor,
			Summary:           r.Summary,
			Category:          r.Category,
			Weight:            r.Weight,
		}
		if r.SourceRefs != "" {
			_ = json.Unmarshal([]byte(r.SourceRefs), &e.SourceRefs)
		}
		if r.Payload.Valid {
			e.Payload = json.RawMessage(r.Payload.String)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func anySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
