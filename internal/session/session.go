// Package session holds the state of one live editing session: the flat
// form a user is working on, where it came from and how to persist it.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/matthewbaird/valuation/internal/derive"
	"github.com/matthewbaird/valuation/internal/draft"
	"github.com/matthewbaird/valuation/internal/event"
	"github.com/matthewbaird/valuation/internal/form"
	"github.com/matthewbaird/valuation/internal/logging"
	"github.com/matthewbaird/valuation/internal/store"
)

// ErrNotLoaded is returned by operations that need a loaded form.
var ErrNotLoaded = errors.New("no form loaded")

// Where a loaded form came from.
const (
	SourceNew    = "new"
	SourceStored = "stored"
	SourceDraft  = "draft"
)

// Backend is what a session reads from and writes to.
type Backend struct {
	Valuations store.Store
	Drafts     draft.Store
	// Recorder is optional.
	Recorder event.Recorder
	Log      *zap.Logger
}

// State is a point-in-time copy of a session's form.
type State struct {
	SessionID   string          `json:"session_id"`
	ValuationID string          `json:"valuation_id,omitempty"`
	Status      string          `json:"status"`
	Version     int             `json:"version"`
	Source      string          `json:"source"`
	Record      form.FlatRecord `json:"record"`
	GrandTotal  string          `json:"grand_total"`
}

// Session holds per-connection editing state.
type Session struct {
	ID           string    `json:"id"`
	User         string    `json:"user"`
	CreatedAt    time.Time `json:"created_at"`
	LastActiveAt time.Time `json:"last_active_at"`

	mu          sync.Mutex
	backend     *Backend
	log         *zap.Logger
	loaded      bool
	dirty       bool
	valuationID string
	status      string
	version     int
	source      string
	record      form.FlatRecord
}

// New creates an empty session for user.
func New(user string, backend *Backend) *Session {
	now := time.Now()
	id := uuid.New().String()
	return &Session{
		ID:           id,
		User:         user,
		CreatedAt:    now,
		LastActiveAt: now,
		backend:      backend,
		log:          logging.OrNop(backend.Log).Named("session").With(zap.String("session_id", id), zap.String("user", user)),
	}
}

// Touch updates the last activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.LastActiveAt = time.Now()
	s.mu.Unlock()
}

// IsExpired returns true if the session has exceeded the given max age.
func (s *Session) IsExpired(maxAge time.Duration) bool {
	return time.Since(s.CreatedAt) > maxAge
}

// IsIdle returns true if the session has been idle longer than the timeout.
func (s *Session) IsIdle(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.LastActiveAt) > timeout
}

// Load starts editing valuationID, or a new valuation when it is empty.
// An unsaved draft for the same user and valuation is resumed; otherwise
// the stored record is merged into an empty form.
func (s *Session) Load(ctx context.Context, valuationID string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActiveAt = time.Now()

	status, version := store.StatusDraft, 0
	var stored form.NestedRecord
	if valuationID != "" {
		v, err := s.backend.Valuations.Get(ctx, valuationID)
		if err != nil {
			return State{}, err
		}
		status, version, stored = v.Status, v.Version, v.Record
	}

	empty := form.Flatten(form.NestedRecord{})
	record, source := empty, SourceNew
	d, err := s.backend.Drafts.Get(ctx, draft.Key(s.User, valuationID))
	switch {
	case err == nil:
		record, source = form.Default().MergeFlat(empty, d.Record), SourceDraft
	case errors.Is(err, draft.ErrNotFound):
		if stored != nil {
			record, source = form.Merge(empty, stored), SourceStored
		}
	default:
		return State{}, fmt.Errorf("loading draft: %w", err)
	}

	s.loaded = true
	s.valuationID = valuationID
	s.status = status
	s.version = version
	s.source = source
	s.record = record
	s.dirty = false
	s.log.Debug("form loaded", zap.String("valuation_id", valuationID), zap.String("source", source))
	return s.stateLocked(), nil
}

// Set applies one field edit and its derived-value rules.
func (s *Session) Set(key, value string) (State, error) {
	return s.edit(func(f form.FlatRecord) form.FlatRecord {
		return derive.ApplyFieldChange(f, key, value)
	})
}

// SetItem edits one field of the custom line item at index.
func (s *Session) SetItem(index int, field, value string) (State, error) {
	return s.edit(func(f form.FlatRecord) form.FlatRecord {
		return derive.ApplyFlatItemChange(f, index, field, value)
	})
}

// AddItem appends an empty custom line item.
func (s *Session) AddItem(description string) (State, error) {
	return s.edit(func(f form.FlatRecord) form.FlatRecord {
		return derive.AddItem(f, description)
	})
}

// RemoveItem deletes the custom line item at index.
func (s *Session) RemoveItem(index int) (State, error) {
	return s.edit(func(f form.FlatRecord) form.FlatRecord {
		return derive.RemoveItem(f, index)
	})
}

// Recompute re-applies every derived-value rule to the form.
func (s *Session) Recompute() (State, error) {
	return s.edit(derive.Recompute)
}

func (s *Session) edit(fn func(form.FlatRecord) form.FlatRecord) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return State{}, ErrNotLoaded
	}
	s.LastActiveAt = time.Now()
	s.record = fn(s.record)
	s.dirty = true
	return s.stateLocked(), nil
}

// SaveDraft stores the current form so it can be resumed later.
func (s *Session) SaveDraft(ctx context.Context) (draft.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return draft.Draft{}, ErrNotLoaded
	}
	s.LastActiveAt = time.Now()
	d, err := s.backend.Drafts.Put(ctx, draft.Key(s.User, s.valuationID), s.record)
	if err != nil {
		return draft.Draft{}, err
	}
	s.dirty = false
	return d, nil
}

// Dirty reports whether the form has edits that are in neither a draft
// nor the store.
func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Save persists the form. A new valuation is created on first save. The
// stored record is merged back into the form and the draft is cleared.
func (s *Session) Save(ctx context.Context) (store.Valuation, State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return store.Valuation{}, State{}, ErrNotLoaded
	}
	s.LastActiveAt = time.Now()

	draftKey := draft.Key(s.User, s.valuationID)
	nested := form.Nest(s.record)

	var (
		v   store.Valuation
		err error
	)
	created := s.valuationID == ""
	if created {
		v, err = s.backend.Valuations.Create(ctx, nested, s.User)
	} else {
		v, err = s.backend.Valuations.Save(ctx, s.valuationID, nested, s.User)
	}
	if err != nil {
		return store.Valuation{}, State{}, err
	}

	s.valuationID = v.ID
	s.status = v.Status
	s.version = v.Version
	s.source = SourceStored
	s.record = form.Merge(s.record, v.Record)
	s.dirty = false

	if err := s.backend.Drafts.Delete(ctx, draftKey); err != nil && !errors.Is(err, draft.ErrNotFound) {
		s.log.Warn("clearing draft failed", zap.String("key", draftKey), zap.Error(err))
	}

	evt := event.NewValuationSaved(event.PayloadOf(v, s.User))
	if created {
		evt = event.NewValuationCreated(event.PayloadOf(v, s.User))
	}
	s.recordEvent(ctx, evt)

	return v, s.stateLocked(), nil
}

// State returns a copy of the current form.
func (s *Session) State() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return State{}, ErrNotLoaded
	}
	return s.stateLocked(), nil
}

func (s *Session) stateLocked() State {
	return State{
		SessionID:   s.ID,
		ValuationID: s.valuationID,
		Status:      s.status,
		Version:     s.version,
		Source:      s.source,
		Record:      s.record.Clone(),
		GrandTotal:  derive.GrandTotal(s.record),
	}
}

func (s *Session) recordEvent(ctx context.Context, evt event.DomainEvent) {
	if s.backend.Recorder == nil {
		return
	}
	if err := s.backend.Recorder.Record(ctx, evt); err != nil {
		s.log.Warn("event recording failed", zap.String("event_type", evt.EventType), zap.Error(err))
	}
}
