package draft

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matthewbaird/valuation/internal/form"
)

// MemoryStore implements Store in memory.
type MemoryStore struct {
	mu     sync.Mutex
	drafts map[string]Draft
	now    func() time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drafts: make(map[string]Draft),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Put(_ context.Context, key string, record form.FlatRecord) (Draft, error) {
	if err := ValidateKey(key); err != nil {
		return Draft{}, err
	}
	d := Draft{Key: key, Record: record.Clone(), UpdatedAt: s.now()}

	s.mu.Lock()
	s.drafts[key] = d
	s.mu.Unlock()

	d.Record = d.Record.Clone()
	return d, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[key]
	if !ok {
		return Draft{}, fmt.Errorf("get %s: %w", key, ErrNotFound)
	}
	d.Record = d.Record.Clone()
	return d, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, key)
	return nil
}

func (s *MemoryStore) Sweep(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, d := range s.drafts {
		if d.UpdatedAt.Before(before) {
			delete(s.drafts, k)
			n++
		}
	}
	return n, nil
}
