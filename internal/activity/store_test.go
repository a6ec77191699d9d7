package activity

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/matthewbaird/valuation/internal/database"
	"github.com/matthewbaird/valuation/internal/types"
)

func testEntry(entityType, entityID, category, weight, summary string, daysAgo int) types.ActivityEntry {
	return types.ActivityEntry{
		EventID:           "test-" + summary,
		EventType:         "TestEvent",
		OccurredAt:        time.Now().UTC().AddDate(0, 0, -daysAgo),
		IndexedEntityType: entityType,
		IndexedEntityID:   entityID,
		EntityRole:        "subject",
		Actor:             "alice",
		Summary:           summary,
		Category:          category,
		Weight:            weight,
	}
}

// eachStore runs fn against a fresh memory store and a fresh SQLite store.
func eachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) {
		db, err := database.OpenMemory(context.Background())
		if err != nil {
			t.Fatalf("OpenMemory: %v", err)
		}
		defer db.Close()
		fn(t, NewSQLStore(db))
	})
}

func TestStore_WriteAndQuery(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		entries := []types.ActivityEntry{
			testEntry("valuation", "v1", "valuation", "info", "Valuation saved", 10),
			testEntry("valuation", "v1", "workflow", "major", "Valuation submitted", 5),
			testEntry("valuation", "v2", "valuation", "info", "Valuation saved", 10),
		}
		entries[1].Payload = json.RawMessage(`{"status":"submitted"}`)
		entries[1].SourceRefs = []types.SourceRef{{EntityType: "valuation", EntityID: "v1", Role: "subject"}}

		if err := store.WriteEntries(ctx, entries); err != nil {
			t.Fatalf("WriteEntries: %v", err)
		}

		results, _, total, err := store.QueryByEntity(ctx, "valuation", "v1", DefaultQueryOptions())
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
		if len(results) != 2 {
			t.Fatalf("results = %d, want 2", len(results))
		}
		if results[0].Summary != "Valuation submitted" {
			t.Errorf("first = %q, want newest entry first", results[0].Summary)
		}
		if string(results[0].Payload) != `{"status":"submitted"}` {
			t.Errorf("payload = %s", results[0].Payload)
		}
		if len(results[0].SourceRefs) != 1 || results[0].Actor != "alice" {
			t.Errorf("source refs / actor not preserved: %+v", results[0])
		}
	})
}

func TestStore_WriteEntries_Duplicate(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		if _, ok := store.(*MemoryStore); ok {
			t.Skip("memory store keeps duplicates")
		}
		ctx := context.Background()
		e := testEntry("valuation", "v1", "valuation", "info", "Saved", 1)
		if err := store.WriteEntries(ctx, []types.ActivityEntry{e}); err != nil {
			t.Fatalf("WriteEntries: %v", err)
		}
		if err := store.WriteEntries(ctx, []types.ActivityEntry{e}); err != nil {
			t.Fatalf("WriteEntries duplicate: %v", err)
		}
		_, _, total, _ := store.QueryByEntity(ctx, "valuation", "v1", DefaultQueryOptions())
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
	})
}

func TestStore_QueryByEntity_FilterCategory(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("valuation", "v1", "valuation", "info", "Saved", 10),
			testEntry("valuation", "v1", "workflow", "major", "Submitted", 5),
		})

		opts := DefaultQueryOptions()
		opts.Categories = []string{"valuation"}
		results, _, total, err := store.QueryByEntity(ctx, "valuation", "v1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
		if len(results) != 1 || results[0].Category != "valuation" {
			t.Errorf("expected only the valuation entry, got %+v", results)
		}
	})
}

func TestStore_QueryByEntity_TimeWindow(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("valuation", "v1", "valuation", "info", "Recent", 5),
			testEntry("valuation", "v1", "valuation", "info", "Old", 200),
		})

		since := time.Now().AddDate(0, 0, -30)
		opts := DefaultQueryOptions()
		opts.Since = &since
		results, _, total, err := store.QueryByEntity(ctx, "valuation", "v1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
		if len(results) != 1 || results[0].Summary != "Recent" {
			t.Errorf("expected only 'Recent' entry")
		}
	})
}

func TestStore_QueryByEntity_MinWeight(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("valuation", "v1", "valuation", "info", "Info level", 5),
			testEntry("valuation", "v1", "workflow", "critical", "Critical level", 4),
			testEntry("valuation", "v1", "workflow", "minor", "Minor level", 3),
		})

		opts := DefaultQueryOptions()
		opts.MinWeight = "major"
		results, _, total, err := store.QueryByEntity(ctx, "valuation", "v1", opts)
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
		if len(results) != 1 || results[0].Weight != "critical" {
			t.Errorf("expected only the critical entry")
		}
	})
}

func TestStore_QueryByEntity_CursorPagination(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		for i, s := range []string{"one", "two", "three", "four", "five"} {
			store.WriteEntries(ctx, []types.ActivityEntry{testEntry("valuation", "v1", "valuation", "info", s, i+1)})
		}

		opts := DefaultQueryOptions()
		opts.Limit = 2
		var seen []string
		for page := 0; page < 5; page++ {
			results, next, total, err := store.QueryByEntity(ctx, "valuation", "v1", opts)
			if err != nil {
				t.Fatalf("QueryByEntity: %v", err)
			}
			if page == 0 && total != 5 {
				t.Errorf("total = %d, want 5", total)
			}
			for _, r := range results {
				seen = append(seen, r.Summary)
			}
			if next == "" {
				break
			}
			opts.Cursor = next
		}
		want := []string{"one", "two", "three", "four", "five"}
		if len(seen) != len(want) {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
		for i := range want {
			if seen[i] != want[i] {
				t.Errorf("seen[%d] = %q, want %q", i, seen[i], want[i])
			}
		}
	})
}

func TestStore_Search(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("valuation", "v1", "workflow", "major", "Valuation VAL-7 rejected: photos missing", 5),
			testEntry("valuation", "v1", "valuation", "info", "Valuation VAL-7 saved", 10),
			testEntry("valuation", "v2", "workflow", "major", "Valuation VAL-8 rejected: wrong survey number", 3),
		})

		results, total, err := store.Search(ctx, "REJECTED", DefaultSearchOptions())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if total != 2 {
			t.Errorf("total = %d, want 2", total)
		}
		if len(results) != 2 {
			t.Errorf("results = %d, want 2", len(results))
		}
	})
}

func TestStore_Search_Filters(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		bob := testEntry("valuation", "v2", "valuation", "info", "Valuation saved by bob", 5)
		bob.Actor = "bob"
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("valuation", "v1", "valuation", "info", "Valuation saved", 5),
			testEntry("draft", "alice:v1", "valuation", "info", "Valuation saved", 5),
			bob,
		})

		opts := DefaultSearchOptions()
		opts.EntityType = "valuation"
		results, total, err := store.Search(ctx, "saved", opts)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if total != 2 || len(results) != 2 {
			t.Errorf("entity filter: total = %d, results = %d, want 2", total, len(results))
		}

		opts.Actor = "bob"
		results, total, err = store.Search(ctx, "saved", opts)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if total != 1 || len(results) != 1 || results[0].Actor != "bob" {
			t.Errorf("expected only bob's entry")
		}
	})
}

func TestStore_Search_NoMatch(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		store.WriteEntries(ctx, []types.ActivityEntry{
			testEntry("valuation", "v1", "valuation", "info", "Valuation saved", 5),
		})

		results, total, err := store.Search(ctx, "zzzznotfound", DefaultSearchOptions())
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if total != 0 || len(results) != 0 {
			t.Errorf("expected no results, got %d", total)
		}
	})
}

func TestStore_EmptyStore(t *testing.T) {
	eachStore(t, func(t *testing.T, store Store) {
		results, _, total, err := store.QueryByEntity(context.Background(), "valuation", "nobody", DefaultQueryOptions())
		if err != nil {
			t.Fatalf("QueryByEntity: %v", err)
		}
		if total != 0 || len(results) != 0 {
			t.Errorf("expected empty results from empty store")
		}
	})
}
