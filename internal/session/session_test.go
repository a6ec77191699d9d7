package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/valuation/internal/activity"
	"github.com/matthewbaird/valuation/internal/derive"
	"github.com/matthewbaird/valuation/internal/draft"
	"github.com/matthewbaird/valuation/internal/event"
	"github.com/matthewbaird/valuation/internal/form"
	"github.com/matthewbaird/valuation/internal/store"
)

func newBackend() (*Backend, *activity.MemoryStore) {
	trail := activity.NewMemoryStore()
	return &Backend{
		Valuations: store.NewMemoryStore(),
		Drafts:     draft.NewMemoryStore(),
		Recorder:   event.NewActivityRecorder(trail),
	}, trail
}

func TestSession_RequiresLoad(t *testing.T) {
	b, _ := newBackend()
	s := New("alice", b)

	_, err := s.Set("applicant", "Ravi")
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = s.SaveDraft(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, _, err = s.Save(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestSession_NewValuationLifecycle(t *testing.T) {
	ctx := context.Background()
	b, trail := newBackend()
	s := New("alice", b)

	st, err := s.Load(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, SourceNew, st.Source)
	assert.Equal(t, "", st.Record.String("applicant"))

	_, err = s.Set("applicant", "Ravi Kumar")
	require.NoError(t, err)
	st, err = s.Set(derive.FieldTotalMarketValue, "1000000")
	require.NoError(t, err)
	assert.Equal(t, "900000", st.Record.String(derive.FieldRealizableValue))
	assert.Equal(t, "800000", st.Record.String(derive.FieldDistressValue))

	_, err = s.Set("grillWorks", "4")
	require.NoError(t, err)
	_, err = s.Set("grillRate", "250")
	require.NoError(t, err)
	_, err = s.AddItem("Sump")
	require.NoError(t, err)
	_, err = s.SetItem(0, derive.ItemQty, "2")
	require.NoError(t, err)
	st, err = s.SetItem(0, derive.ItemRate, "500")
	require.NoError(t, err)
	assert.Equal(t, "1000", st.Record.Items(derive.FieldLineItems)[0].Value)
	assert.Equal(t, "2000", st.GrandTotal)

	assert.True(t, s.Dirty())
	_, err = s.SaveDraft(ctx)
	require.NoError(t, err)
	assert.False(t, s.Dirty())
	_, err = b.Drafts.Get(ctx, "alice:new")
	require.NoError(t, err)

	v, st, err := s.Save(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "Ravi Kumar", v.Applicant)
	assert.Equal(t, store.StatusDraft, st.Status)
	assert.Equal(t, v.ID, st.ValuationID)
	assert.Equal(t, SourceStored, st.Source)
	assert.Equal(t, "1000", st.Record.String("grillValue"))

	_, err = b.Drafts.Get(ctx, "alice:new")
	assert.ErrorIs(t, err, draft.ErrNotFound, "save clears the draft")

	_, _, total, err := trail.QueryByEntity(ctx, "valuation", v.ID, activity.DefaultQueryOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	// A second save updates the same valuation.
	_, err = s.Set("bankName", "Canara Bank")
	require.NoError(t, err)
	v2, _, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, v.ID, v2.ID)
	assert.Equal(t, v.Version+1, v2.Version)
	assert.Equal(t, "Canara Bank", v2.BankName)
}

func TestSession_LoadPrefersDraft(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend()

	v, err := b.Valuations.Create(ctx, form.NestedRecord{
		"clientDetails": map[string]any{"applicant": "Stored Name"},
	}, "alice")
	require.NoError(t, err)

	s := New("alice", b)
	st, err := s.Load(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceStored, st.Source)
	assert.Equal(t, "Stored Name", st.Record.String("applicant"))

	_, err = b.Drafts.Put(ctx, draft.Key("alice", v.ID), form.FlatRecord{"applicant": "Draft Name"})
	require.NoError(t, err)

	st, err = New("alice", b).Load(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceDraft, st.Source)
	assert.Equal(t, "Draft Name", st.Record.String("applicant"))
	assert.Contains(t, st.Record, "bankName", "draft is filled out to the full form")

	// Another user does not see alice's draft.
	st, err = New("bob", b).Load(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, SourceStored, st.Source)
}

func TestSession_LoadUnknown(t *testing.T) {
	b, _ := newBackend()
	_, err := New("alice", b).Load(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSession_SaveNotEditable(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend()
	v, err := b.Valuations.Create(ctx, form.NestedRecord{}, "alice")
	require.NoError(t, err)
	_, err = b.Valuations.Transition(ctx, v.ID, store.StatusSubmitted, "alice", "")
	require.NoError(t, err)

	s := New("alice", b)
	_, err = s.Load(ctx, v.ID)
	require.NoError(t, err)
	_, _, err = s.Save(ctx)
	assert.ErrorIs(t, err, store.ErrNotEditable)
}

func TestSession_RemoveItemAndRecompute(t *testing.T) {
	b, _ := newBackend()
	s := New("alice", b)
	_, err := s.Load(context.Background(), "")
	require.NoError(t, err)

	_, _ = s.AddItem("One")
	_, _ = s.AddItem("Two")
	st, err := s.RemoveItem(0)
	require.NoError(t, err)
	items := st.Record.Items(derive.FieldLineItems)
	require.Len(t, items, 1)
	assert.Equal(t, "Two", items[0].Description)
	assert.Equal(t, 1, items[0].SNo)

	_, err = s.Recompute()
	require.NoError(t, err)
}

func TestManager(t *testing.T) {
	b, _ := newBackend()
	m := NewManager(b, time.Hour, time.Hour)

	s := m.Create("alice")
	assert.Same(t, s, m.Get(s.ID))
	assert.Nil(t, m.Get("missing"))
	assert.Equal(t, 1, m.Len())

	s.mu.Lock()
	s.LastActiveAt = time.Now().Add(-2 * time.Hour)
	s.mu.Unlock()
	assert.Equal(t, 1, m.Cleanup())
	assert.Nil(t, m.Get(s.ID))

	s2 := m.Create("bob")
	m.Remove(s2.ID)
	assert.Equal(t, 0, m.Len())
}

func TestManager_GetExpired(t *testing.T) {
	b, _ := newBackend()
	m := NewManager(b, time.Millisecond, time.Hour)
	s := m.Create("alice")
	time.Sleep(5 * time.Millisecond)
	assert.Nil(t, m.Get(s.ID))
	assert.Equal(t, 0, m.Len())
}

func TestSession_LegacyAliasEditIsSaved(t *testing.T) {
	ctx := context.Background()
	b, _ := newBackend()
	v, err := b.Valuations.Create(ctx, form.NestedRecord{
		"clientDetails": map[string]any{"applicant": "Ravi"},
		"siteDetails": map[string]any{
			"boundaries": map[string]any{"east": map[string]any{"saleDeed": "Road"}},
		},
	}, "alice")
	require.NoError(t, err)

	s := New("alice", b)
	_, err = s.Load(ctx, v.ID)
	require.NoError(t, err)
	st, err := s.Set("boundaryDeedEast", "River")
	require.NoError(t, err)
	assert.Equal(t, "River", st.Record.String("boundariesEastSaleDeed"))

	saved, st, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "River", st.Record.String("boundaryDeedEast"))
	assert.Equal(t, "River", st.Record.String("boundariesEastSaleDeed"))

	stored, err := b.Valuations.Get(ctx, saved.ID)
	require.NoError(t, err)
	east, ok := stored.Record["siteDetails"].(map[string]any)["boundaries"].(map[string]any)["east"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "River", east["saleDeed"])
}
