package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/matthewbaird/valuation/internal/database"
	"github.com/matthewbaird/valuation/internal/form"
)

const valuationsTable = "valuations"

var valuationColumns = []string{
	"id", "reference_number", "applicant", "bank_name", "status", "record",
	"version", "created_by", "updated_by", "manager_remarks",
	"created_at", "updated_at", "submitted_at", "decided_at",
}

type valuationRow struct {
	ID              string       `db:"id"`
	ReferenceNumber string       `db:"reference_number"`
	Applicant       string       `db:"applicant"`
	BankName        string       `db:"bank_name"`
	Status          string       `db:"status"`
	Record          string       `db:"record"`
	Version         int          `db:"version"`
	CreatedBy       string       `db:"created_by"`
	UpdatedBy       string       `db:"updated_by"`
	ManagerRemarks  string       `db:"manager_remarks"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
	SubmittedAt     sql.NullTime `db:"submitted_at"`
	DecidedAt       sql.NullTime `db:"decided_at"`
}

// SQLStore implements Store on the shared SQLite database. Statements are
// rendered with the ent SQL builder and executed through sqlx.
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps a migrated database handle.
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, record form.NestedRecord, actor string) (Valuation, error) {
	record = normalize(record)
	sum := summarize(record)
	now := nowUTC()
	v := Valuation{
		ID:              uuid.New().String(),
		ReferenceNumber: sum.ReferenceNumber,
		Applicant:       sum.Applicant,
		BankName:        sum.BankName,
		Status:          StatusDraft,
		Record:          record,
		Version:         1,
		CreatedBy:       actor,
		UpdatedBy:       actor,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	row, err := toRow(v)
	if err != nil {
		return Valuation{}, err
	}

	query, args := database.Builder().Insert(valuationsTable).
		Columns(valuationColumns...).
		Values(row.ID, row.ReferenceNumber, row.Applicant, row.BankName, row.Status, row.Record,
			row.Version, row.CreatedBy, row.UpdatedBy, row.ManagerRemarks,
			row.CreatedAt, row.UpdatedAt, row.SubmittedAt, row.DecidedAt).
		Query()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return Valuation{}, fmt.Errorf("insert valuation: %w", err)
	}
	return v, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Valuation, error) {
	return s.get(ctx, s.db, id)
}

func (s *SQLStore) get(ctx context.Context, q sqlx.QueryerContext, id string) (Valuation, error) {
	query, args := database.Builder().Select(valuationColumns...).
		From(entsql.Table(valuationsTable)).
		Where(entsql.EQ("id", id)).
		Query()

	var row valuationRow
	if err := sqlx.GetContext(ctx, q, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Valuation{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
		}
		return Valuation{}, fmt.Errorf("get %s: %w", id, err)
	}
	return fromRow(row)
}

func listPredicate(f Filter) *entsql.Predicate {
	var preds []*entsql.Predicate
	if f.Status != "" {
		preds = append(preds, entsql.EQ("status", f.Status))
	}
	if f.CreatedBy != "" {
		preds = append(preds, entsql.EQ("created_by", f.CreatedBy))
	}
	if f.Query != "" {
		preds = append(preds, entsql.Or(
			entsql.ContainsFold("applicant", f.Query),
			entsql.ContainsFold("reference_number", f.Query),
		))
	}
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	default:
		return entsql.And(preds...)
	}
}

func (s *SQLStore) List(ctx context.Context, f Filter) ([]Valuation, int, error) {
	b := database.Builder()

	count := b.Select(entsql.Count("*")).From(entsql.Table(valuationsTable))
	if p := listPredicate(f); p != nil {
		count.Where(p)
	}
	query, args := count.Query()
	var total int
	if err := sqlx.GetContext(ctx, s.db, &total, query, args...); err != nil {
		return nil, 0, fmt.Errorf("count valuations: %w", err)
	}

	sel := b.Select(valuationColumns...).
		From(entsql.Table(valuationsTable)).
		OrderBy(entsql.Desc("updated_at"), entsql.Asc("id")).
		Limit(clampLimit(f.Limit)).
		Offset(max(f.Offset, 0))
	if p := listPredicate(f); p != nil {
		sel.Where(p)
	}
	query, args = sel.Query()

	var rows []valuationRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list valuations: %w", err)
	}
	out := make([]Valuation, 0, len(rows))
	for _, r := range rows {
		v, err := fromRow(r)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, nil
}

func (s *SQLStore) Save(ctx context.Context, id string, record form.NestedRecord, actor string) (Valuation, error) {
	var saved Valuation
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		v, err := s.get(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("save: %w", err)
		}
		if !editable(v.Status) {
			return fmt.Errorf("save %s (%s): %w", id, v.Status, ErrNotEditable)
		}

		record = normalize(record)
		sum := summarize(record)
		v.Record = record
		v.ReferenceNumber = sum.ReferenceNumber
		v.Applicant = sum.Applicant
		v.BankName = sum.BankName
		v.UpdatedBy = actor
		v.UpdatedAt = nowUTC()
		v.Version++
		if err := update(ctx, tx, v); err != nil {
			return fmt.Errorf("save %s: %w", id, err)
		}
		saved = v
		return nil
	})
	return saved, err
}

func (s *SQLStore) Transition(ctx context.Context, id, target, actor, remarks string) (Valuation, error) {
	var moved Valuation
	err := withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		v, err := s.get(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("transition: %w", err)
		}
		if err := ValidateTransition(Transitions, v.Status, target); err != nil {
			return fmt.Errorf("transition %s: %w", id, err)
		}
		applyTransition(&v, target, actor, remarks)
		if err := update(ctx, tx, v); err != nil {
			return fmt.Errorf("transition %s: %w", id, err)
		}
		moved = v
		return nil
	})
	return moved, err
}

func (s *SQLStore) Delete(ctx context.Context, id string) error {
	return withTx(ctx, s.db, func(tx *sqlx.Tx) error {
		v, err := s.get(ctx, tx, id)
		if err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if !editable(v.Status) {
			return fmt.Errorf("delete %s (%s): %w", id, v.Status, ErrNotEditable)
		}
		query, args := database.Builder().Delete(valuationsTable).
			Where(entsql.EQ("id", id)).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		return nil
	})
}

// update writes every mutable column of v, guarded by the previous version.
func update(ctx context.Context, tx *sqlx.Tx, v Valuation) error {
	row, err := toRow(v)
	if err != nil {
		return err
	}
	query, args := database.Builder().Update(valuationsTable).
		Set("reference_number", row.ReferenceNumber).
		Set("applicant", row.Applicant).
		Set("bank_name", row.BankName).
		Set("status", row.Status).
		Set("record", row.Record).
		Set("version", row.Version).
		Set("updated_by", row.UpdatedBy).
		Set("manager_remarks", row.ManagerRemarks).
		Set("updated_at", row.UpdatedAt).
		Set("submitted_at", row.SubmittedAt).
		Set("decided_at", row.DecidedAt).
		Where(entsql.And(entsql.EQ("id", row.ID), entsql.EQ("version", row.Version-1))).
		Query()
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func toRow(v Valuation) (valuationRow, error) {
	data, err := json.Marshal(v.Record)
	if err != nil {
		return valuationRow{}, fmt.Errorf("encode record: %w", err)
	}
	return valuationRow{
		ID:              v.ID,
		ReferenceNumber: v.ReferenceNumber,
		Applicant:       v.Applicant,
		BankName:        v.BankName,
		Status:          v.Status,
		Record:          string(data),
		Version:         v.Version,
		CreatedBy:       v.CreatedBy,
		UpdatedBy:       v.UpdatedBy,
		ManagerRemarks:  v.ManagerRemarks,
		CreatedAt:       v.CreatedAt,
		UpdatedAt:       v.UpdatedAt,
		SubmittedAt:     nullTime(v.SubmittedAt),
		DecidedAt:       nullTime(v.DecidedAt),
	}, nil
}

func fromRow(r valuationRow) (Valuation, error) {
	record, err := DecodeRecord([]byte(r.Record))
	if err != nil {
		return Valuation{}, fmt.Errorf("valuation %s: %w", r.ID, err)
	}
	return Valuation{
		ID:              r.ID,
		ReferenceNumber: r.ReferenceNumber,
		Applicant:       r.Applicant,
		BankName:        r.BankName,
		Status:          r.Status,
		Record:          record,
		Version:         r.Version,
		CreatedBy:       r.CreatedBy,
		UpdatedBy:       r.UpdatedBy,
		ManagerRemarks:  r.ManagerRemarks,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
		SubmittedAt:     timePtr(r.SubmittedAt),
		DecidedAt:       timePtr(r.DecidedAt),
	}, nil
}

// DecodeRecord parses a stored JSON record, keeping numbers as json.Number.
func DecodeRecord(data []byte) (form.NestedRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var record form.NestedRecord
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if record == nil {
		record = form.NestedRecord{}
	}
	return record, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	u := t.Time.UTC()
	return &u
}
