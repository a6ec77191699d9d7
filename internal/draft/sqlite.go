package draft

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jmoiron/sqlx"

	"github.com/matthewbaird/valuation/internal/database"
	"github.com/matthewbaird/valuation/internal/form"
)

const draftsTable = "drafts"

type draftRow struct {
	Key       string    `db:"key"`
	Record    string    `db:"record"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SQLStore implements Store on the shared SQLite database.
type SQLStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSQLStore wraps a migrated database handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *SQLStore) Put(ctx context.Context, key string, record form.FlatRecord) (Draft, error) {
	if err := ValidateKey(key); err != nil {
		return Draft{}, err
	}
	if record == nil {
		record = form.FlatRecord{}
	}
	data, err := json.Marshal(record)
	if err != nil {
		return Draft{}, fmt.Errorf("encode draft: %w", err)
	}
	now := s.now()

	query, args := database.Builder().Insert(draftsTable).
		Columns("key", "record", "updated_at").
		Values(key, string(data), now).
		OnConflict(entsql.ConflictColumns("key"), entsql.ResolveWithNewValues()).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return Draft{}, fmt.Errorf("put draft %s: %w", key, err)
	}
	return Draft{Key: key, Record: record.Clone(), UpdatedAt: now}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (Draft, error) {
	query, args := database.Builder().Select("key", "record", "updated_at").
		From(entsql.Table(draftsTable)).
		Where(entsql.EQ("key", key)).
		Query()

	var row draftRow
	if err := sqlx.GetContext(ctx, s.db, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Draft{}, fmt.Errorf("get %s: %w", key, ErrNotFound)
		}
		return Draft{}, fmt.Errorf("get draft %s: %w", key, err)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(row.Record)))
	dec.UseNumber()
	var record form.FlatRecord
	if err := dec.Decode(&record); err != nil {
		return Draft{}, fmt.Errorf("decode draft %s: %w", key, err)
	}
	if record == nil {
		record = form.FlatRecord{}
	}
	return Draft{Key: row.Key, Record: record, UpdatedAt: row.UpdatedAt.UTC()}, nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	query, args := database.Builder().Delete(draftsTable).
		Where(entsql.EQ("key", key)).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("delete draft %s: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Sweep(ctx context.Context, before time.Time) (int, error) {
	query, args := database.Builder().Delete(draftsTable).
		Where(entsql.LT("updated_at", before.UTC())).
		Query()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("sweep drafts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep drafts: %w", err)
	}
	return int(n), nil
}
