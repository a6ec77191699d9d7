package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewbaird/valuation/internal/form"
)

// MemoryStore implements Store with an in-memory map.
// Intended for demos and testing, no database required.
type MemoryStore struct {
	mu         sync.RWMutex
	valuations map[string]Valuation
}

// NewMemoryStore creates a new empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{valuations: make(map[string]Valuation)}
}

func (s *MemoryStore) Create(_ context.Context, record form.NestedRecord, actor string) (Valuation, error) {
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

	s.mu.Lock()
	s.valuations[v.ID] = v
	s.mu.Unlock()
	return cloneValuation(v), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (Valuation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.valuations[id]
	if !ok {
		return Valuation{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return cloneValuation(v), nil
}

func (s *MemoryStore) List(_ context.Context, f Filter) ([]Valuation, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(f.Query))
	var matched []Valuation
	for _, v := range s.valuations {
		if f.Status != "" && v.Status != f.Status {
			continue
		}
		if f.CreatedBy != "" && v.CreatedBy != f.CreatedBy {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(v.Applicant), q) &&
			!strings.Contains(strings.ToLower(v.ReferenceNumber), q) {
			continue
		}
		matched = append(matched, v)
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].UpdatedAt.Equal(matched[j].UpdatedAt) {
			return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	total := len(matched)
	limit := clampLimit(f.Limit)
	if f.Offset >= len(matched) {
		return []Valuation{}, total, nil
	}
	matched = matched[max(f.Offset, 0):]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]Valuation, len(matched))
	for i, v := range matched {
		out[i] = cloneValuation(v)
	}
	return out, total, nil
}

func (s *MemoryStore) Save(_ context.Context, id string, record form.NestedRecord, actor string) (Valuation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.valuations[id]
	if !ok {
		return Valuation{}, fmt.Errorf("save %s: %w", id, ErrNotFound)
	}
	if !editable(v.Status) {
		return Valuation{}, fmt.Errorf("save %s (%s): %w", id, v.Status, ErrNotEditable)
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
	s.valuations[id] = v
	return cloneValuation(v), nil
}

func (s *MemoryStore) Transition(_ context.Context, id, target, actor, remarks string) (Valuation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.valuations[id]
	if !ok {
		return Valuation{}, fmt.Errorf("transition %s: %w", id, ErrNotFound)
	}
	if err := ValidateTransition(Transitions, v.Status, target); err != nil {
		return Valuation{}, fmt.Errorf("transition %s: %w", id, err)
	}
	applyTransition(&v, target, actor, remarks)
	s.valuations[id] = v
	return cloneValuation(v), nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.valuations[id]
	if !ok {
		return fmt.Errorf("delete %s: %w", id, ErrNotFound)
	}
	if !editable(v.Status) {
		return fmt.Errorf("delete %s (%s): %w", id, v.Status, ErrNotEditable)
	}
	delete(s.valuations, id)
	return nil
}

func cloneValuation(v Valuation) Valuation {
	v.Record = v.Record.Clone()
	return v
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
