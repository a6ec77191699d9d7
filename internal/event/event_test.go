package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/valuation/internal/activity"
	"github.com/matthewbaird/valuation/internal/store"
	"github.com/matthewbaird/valuation/internal/types"
)

type capturePublisher struct{ events []DomainEvent }

func (p *capturePublisher) Publish(_ context.Context, evt DomainEvent) {
	p.events = append(p.events, evt)
}

type failingTrail struct{ activity.Store }

func (failingTrail) WriteEntries(context.Context, []types.ActivityEntry) error {
	return errors.New("disk full")
}

func TestActivityRecorder_WriteFailureIsNotPublished(t *testing.T) {
	pub := &capturePublisher{}
	rec := NewActivityRecorder(failingTrail{activity.NewMemoryStore()})
	rec.SetPublisher(pub)

	err := rec.Record(context.Background(), NewValuationSaved(ValuationPayload{ValuationID: "v1", Actor: "alice"}))
	assert.ErrorContains(t, err, "recording valuation_saved: disk full")
	assert.Empty(t, pub.events)
}

func TestConstructors(t *testing.T) {
	p := ValuationPayload{ValuationID: "3f2a9c1e-0000-4000-8000-000000000000", ReferenceNumber: "VAL-7", Status: "rejected", Remarks: "photos missing", Actor: "manager"}

	evt := NewValuationRejected(p)
	assert.Equal(t, TypeValuationRejected, evt.EventType)
	assert.Equal(t, "Valuation VAL-7 rejected: photos missing", evt.Summary)
	assert.Equal(t, "workflow", evt.Category)
	assert.Equal(t, "critical", evt.Weight)
	assert.Equal(t, "manager", evt.Actor)
	require.Len(t, evt.AffectedEntities, 2)
	assert.Equal(t, "valuation", evt.AffectedEntities[0].EntityType)

	var decoded ValuationPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &decoded))
	assert.Equal(t, p, decoded)

	p.ReferenceNumber = ""
	assert.Equal(t, "Valuation 3f2a9c1e created for unnamed applicant", NewValuationCreated(p).Summary)
}

func TestForStatus(t *testing.T) {
	p := ValuationPayload{ValuationID: "v1", Actor: "alice"}
	for status, want := range map[string]string{
		"submitted": TypeValuationSubmitted,
		"approved":  TypeValuationApproved,
		"rejected":  TypeValuationRejected,
		"draft":     TypeValuationReopened,
	} {
		evt, ok := ForStatus(status, p)
		require.True(t, ok, status)
		assert.Equal(t, want, evt.EventType)
	}
	_, ok := ForStatus("archived", p)
	assert.False(t, ok)
}

func TestActivityRecorder_Record(t *testing.T) {
	ctx := context.Background()
	store := activity.NewMemoryStore()
	pub := &capturePublisher{}
	rec := NewActivityRecorder(store)
	rec.SetPublisher(pub)

	evt := NewValuationSaved(ValuationPayload{ValuationID: "v1", Version: 3, Actor: "alice"})
	require.NoError(t, rec.Record(ctx, evt))

	byValuation, _, total, err := store.QueryByEntity(ctx, "valuation", "v1", activity.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Valuation v1 saved (version 3)", byValuation[0].Summary)
	assert.Equal(t, "alice", byValuation[0].Actor)

	_, _, total, err = store.QueryByEntity(ctx, "user", "alice", activity.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	require.Len(t, pub.events, 1)
	assert.Equal(t, evt.ID, pub.events[0].ID)

	// An event without an actor indexes only the valuation.
	anon := NewValuationDeleted(ValuationPayload{ValuationID: "v2"})
	require.NoError(t, rec.Record(ctx, anon))
	_, _, total, _ = store.QueryByEntity(ctx, "user", "", activity.DefaultQueryOptions())
	assert.Equal(t, 0, total)
}

func TestPayloadOf(t *testing.T) {
	v := store.Valuation{ID: "v1", ReferenceNumber: "VAL-1", Applicant: "Ravi", Status: store.StatusRejected, Version: 4, ManagerRemarks: "redo"}
	p := PayloadOf(v, "mgr")
	assert.Equal(t, ValuationPayload{
		ValuationID: "v1", ReferenceNumber: "VAL-1", Applicant: "Ravi",
		Status: "rejected", Version: 4, Remarks: "redo", Actor: "mgr",
	}, p)
}
