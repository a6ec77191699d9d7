// Package store persists valuation records and drives their review
// workflow.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/matthewbaird/valuation/internal/form"
)

// Sentinel errors returned by every Store implementation.
var (
	ErrNotFound    = errors.New("valuation not found")
	ErrConflict    = errors.New("valuation status conflict")
	ErrNotEditable = errors.New("valuation is not editable in its current status")
)

// Workflow statuses.
const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
)

// Valuation is one persisted valuation report.
type Valuation struct {
	ID              string            `json:"id"`
	ReferenceNumber string            `json:"reference_number"`
	Applicant       string            `json:"applicant"`
	BankName        string            `json:"bank_name"`
	Status          string            `json:"status"`
	Record          form.NestedRecord `json:"record"`
	Version         int               `json:"version"`
	CreatedBy       string            `json:"created_by"`
	UpdatedBy       string            `json:"updated_by"`
	ManagerRemarks  string            `json:"manager_remarks,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	SubmittedAt     *time.Time        `json:"submitted_at,omitempty"`
	DecidedAt       *time.Time        `json:"decided_at,omitempty"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status    string
	CreatedBy string
	// Query matches applicant or reference number, case-insensitively.
	Query  string
	Limit  int
	Offset int
}

// Store is implemented by the SQLite and in-memory valuation stores.
type Store interface {
	// Create persists record as a new draft valuation.
	Create(ctx context.Context, record form.NestedRecord, actor string) (Valuation, error)
	Get(ctx context.Context, id string) (Valuation, error)
	// List returns one page of valuations, most recently updated first, and
	// the total number of matches.
	List(ctx context.Context, f Filter) ([]Valuation, int, error)
	// Save replaces the record of an editable valuation, last write wins,
	// and returns the stored valuation.
	Save(ctx context.Context, id string, record form.NestedRecord, actor string) (Valuation, error)
	// Transition moves a valuation to target when the workflow allows it.
	Transition(ctx context.Context, id, target, actor, remarks string) (Valuation, error)
	// Delete removes a valuation that is still a draft.
	Delete(ctx context.Context, id string) error
}

// summary is the set of columns copied out of the record on every write.
type summary struct {
	ReferenceNumber string
	Applicant       string
	BankName        string
}

func summarize(record form.NestedRecord) summary {
	flat := form.Flatten(record)
	return summary{
		ReferenceNumber: flat.String("referenceNumber"),
		Applicant:       flat.String("applicant"),
		BankName:        flat.String("bankName"),
	}
}

// normalize stores every record in nested form. A flat record is nested
// through the catalog; a nested one is flattened and nested again so
// aliases and line-item numbering are canonical.
func normalize(record form.NestedRecord) form.NestedRecord {
	if record == nil {
		record = form.NestedRecord{}
	}
	return form.Nest(form.Flatten(record))
}

func editable(status string) bool {
	return status == StatusDraft
}

func clampLimit(n int) int {
	if n <= 0 {
		return 20
	}
	if n > 100 {
		return 100
	}
	return n
}
