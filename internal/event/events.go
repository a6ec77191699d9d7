package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/valuation/internal/store"
	"github.com/matthewbaird/valuation/internal/types"
)

// Event types.
const (
	TypeValuationCreated   = "valuation_created"
	TypeValuationSaved     = "valuation_saved"
	TypeValuationSubmitted = "valuation_submitted"
	TypeValuationApproved  = "valuation_approved"
	TypeValuationRejected  = "valuation_rejected"
	TypeValuationReopened  = "valuation_reopened"
	TypeValuationDeleted   = "valuation_deleted"
)

// DomainEvent carries the canonical shape of every domain event.
type DomainEvent struct {
	ID               string
	EventType        string
	OccurredAt       time.Time
	Actor            string
	AffectedEntities []types.SourceRef
	Summary          string
	Category         string // "valuation", "workflow"
	Weight           string // "critical", "major", "minor", "info"
	Payload          json.RawMessage
}

func newID() string { return uuid.New().String() }

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// ValuationPayload carries event-specific data for every valuation event.
type ValuationPayload struct {
	ValuationID     string `json:"valuation_id"`
	ReferenceNumber string `json:"reference_number,omitempty"`
	Applicant       string `json:"applicant,omitempty"`
	Status          string `json:"status"`
	PreviousStatus  string `json:"previous_status,omitempty"`
	Version         int    `json:"version,omitempty"`
	Remarks         string `json:"remarks,omitempty"`
	Actor           string `json:"actor"`
}

// PayloadOf describes v as changed by actor.
func PayloadOf(v store.Valuation, actor string) ValuationPayload {
	return ValuationPayload{
		ValuationID:     v.ID,
		ReferenceNumber: v.ReferenceNumber,
		Applicant:       v.Applicant,
		Status:          v.Status,
		Version:         v.Version,
		Remarks:         v.ManagerRemarks,
		Actor:           actor,
	}
}

// label names a valuation in a summary by reference number when it has one.
func (p ValuationPayload) label() string {
	if p.ReferenceNumber != "" {
		return p.ReferenceNumber
	}
	if len(p.ValuationID) > 8 {
		return p.ValuationID[:8]
	}
	return p.ValuationID
}

func newValuationEvent(eventType, category, weight, summary string, p ValuationPayload) DomainEvent {
	return DomainEvent{
		ID:         newID(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Actor:      p.Actor,
		AffectedEntities: []types.SourceRef{
			{EntityType: "valuation", EntityID: p.ValuationID, Role: "subject"},
			{EntityType: "user", EntityID: p.Actor, Role: "related"},
		},
		Summary:  summary,
		Category: category,
		Weight:   weight,
		Payload:  mustJSON(p),
	}
}

// ── Editing events ───────────────────────────────────────────────────────────

func NewValuationCreated(p ValuationPayload) DomainEvent {
	return newValuationEvent(TypeValuationCreated, "valuation", "minor",
		fmt.Sprintf("Valuation %s created for %s", p.label(), orUnnamed(p.Applicant)), p)
}

func NewValuationSaved(p ValuationPayload) DomainEvent {
	return newValuationEvent(TypeValuationSaved, "valuation", "info",
		fmt.Sprintf("Valuation %s saved (version %d)", p.label(), p.Version), p)
}

func NewValuationDeleted(p ValuationPayload) DomainEvent {
	return newValuationEvent(TypeValuationDeleted, "valuation", "major",
		fmt.Sprintf("Valuation %s deleted", p.label()), p)
}

// ── Workflow events ──────────────────────────────────────────────────────────

func NewValuationSubmitted(p ValuationPayload) DomainEvent {
	return newValuationEvent(TypeValuationSubmitted, "workflow", "major",
		fmt.Sprintf("Valuation %s submitted for approval", p.label()), p)
}

func NewValuationApproved(p ValuationPayload) DomainEvent {
	return newValuationEvent(TypeValuationApproved, "workflow", "major",
		fmt.Sprintf("Valuation %s approved", p.label()), p)
}

func NewValuationRejected(p ValuationPayload) DomainEvent {
	summary := fmt.Sprintf("Valuation %s rejected", p.label())
	if p.Remarks != "" {
		summary += ": " + p.Remarks
	}
	return newValuationEvent(TypeValuationRejected, "workflow", "critical", summary, p)
}

func NewValuationReopened(p ValuationPayload) DomainEvent {
	return newValuationEvent(TypeValuationReopened, "workflow", "minor",
		fmt.Sprintf("Valuation %s reopened for editing", p.label()), p)
}

// ForStatus returns the workflow event for a transition into status.
func ForStatus(status string, p ValuationPayload) (DomainEvent, bool) {
	switch status {
	case store.StatusSubmitted:
		return NewValuationSubmitted(p), true
	case store.StatusApproved:
		return NewValuationApproved(p), true
	case store.StatusRejected:
		return NewValuationRejected(p), true
	case store.StatusDraft:
		return NewValuationReopened(p), true
	default:
		return DomainEvent{}, false
	}
}

func orUnnamed(s string) string {
	if s == "" {
		return "unnamed applicant"
	}
	return s
}
