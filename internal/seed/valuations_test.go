package seed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/matthewbaird/valuation/internal/store"
)

func TestValuations(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	core, logs := observer.New(zap.InfoLevel)

	n, err := Valuations(ctx, s, zap.New(core))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, total, err := s.List(ctx, store.Filter{CreatedBy: Actor})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	byRef := map[string]store.Valuation{}
	for _, v := range all {
		byRef[v.ReferenceNumber] = v
	}
	assert.Equal(t, store.StatusDraft, byRef["DEMO-001"].Status)
	assert.Equal(t, store.StatusSubmitted, byRef["DEMO-002"].Status)
	assert.Equal(t, store.StatusApproved, byRef["DEMO-003"].Status)
	assert.Equal(t, "Verified against site visit.", byRef["DEMO-003"].ManagerRemarks)
	assert.Equal(t, "State Bank", byRef["DEMO-001"].BankName)

	n, err = Valuations(ctx, s, zap.New(core))
	require.NoError(t, err)
	assert.Zero(t, n, "second run is a no-op")
	assert.Equal(t, 1, logs.FilterMessage("valuations already seeded, skipping").Len())
}
