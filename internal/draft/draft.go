// Package draft keeps unsaved form state so an editing session can resume
// after a disconnect. Drafts are keyed by "<user>:<valuation id>", with
// "new" standing in for a valuation that has not been created yet.
package draft

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/matthewbaird/valuation/internal/form"
)

// ErrNotFound is returned when no draft exists for a key.
var ErrNotFound = errors.New("draft not found")

// NewValuation is the key suffix used before a valuation has an ID.
const NewValuation = "new"

// Draft is one stored form snapshot.
type Draft struct {
	Key       string          `json:"key"`
	Record    form.FlatRecord `json:"record"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store is implemented by the SQLite and in-memory draft stores.
type Store interface {
	Put(ctx context.Context, key string, record form.FlatRecord) (Draft, error)
	Get(ctx context.Context, key string) (Draft, error)
	Delete(ctx context.Context, key string) error
	// Sweep deletes drafts not updated since before and reports how many
	// were removed.
	Sweep(ctx context.Context, before time.Time) (int, error)
}

// Key builds the draft key for user editing valuationID. An empty
// valuationID selects the new-valuation draft.
func Key(user, valuationID string) string {
	if valuationID == "" {
		valuationID = NewValuation
	}
	return user + ":" + valuationID
}

// ValidateKey checks that key has a non-empty user and valuation part.
func ValidateKey(key string) error {
	user, id, ok := strings.Cut(key, ":")
	if !ok || user == "" || id == "" {
		return fmt.Errorf("invalid draft key %q: want <user>:<valuation id|new>", key)
	}
	return nil
}
