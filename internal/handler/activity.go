// Activity handlers operate on the activity trail rather than the
// valuation store.
package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/matthewbaird/valuation/internal/activity"
	"github.com/matthewbaird/valuation/internal/types"
)

// ActivityHandler implements HTTP handlers for the activity trail.
type ActivityHandler struct {
	store activity.Store
}

// NewActivityHandler creates a new ActivityHandler.
func NewActivityHandler(store activity.Store) *ActivityHandler {
	return &ActivityHandler{store: store}
}

func parseTime(v string) *time.Time {
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

func parseLimit(v string, max int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0
	}
	if n > max {
		n = max
	}
	return n
}

// GetValuationActivity returns the chronological activity feed of one
// valuation.
// GET /v1/valuations/{id}/activity
func (h *ActivityHandler) GetValuationActivity(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	q := r.URL.Query()

	opts := activity.DefaultQueryOptions()
	if t := parseTime(q.Get("since")); t != nil {
		opts.Since = t
	}
	if t := parseTime(q.Get("until")); t != nil {
		opts.Until = t
	}
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if mw := q.Get("min_weight"); mw != "" {
		opts.MinWeight = mw
	}
	if n := parseLimit(q.Get("limit"), 500); n > 0 {
		opts.Limit = n
	}
	opts.Cursor = q.Get("cursor")

	entries, nextCursor, totalCount, err := h.store.QueryByEntity(r.Context(), "valuation", id, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "QUERY_FAILED", err.Error())
		return
	}

	resp := struct {
		Activities []types.ActivityEntry `json:"activities"`
		NextCursor string                `json:"next_cursor,omitempty"`
		TotalCount int                   `json:"total_count"`
		Period     struct {
			Since time.Time `json:"since"`
			Until time.Time `json:"until"`
		} `json:"period"`
	}{
		Activities: entries,
		NextCursor: nextCursor,
		TotalCount: totalCount,
	}
	if opts.Since != nil {
		resp.Period.Since = *opts.Since
	}
	if opts.Until != nil {
		resp.Period.Until = *opts.Until
	}
	if resp.Activities == nil {
		resp.Activities = []types.ActivityEntry{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// SearchActivity matches activity summaries across all valuations.
// GET /v1/activity/search?q=
func (h *ActivityHandler) SearchActivity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "q is required")
		return
	}

	opts := activity.DefaultSearchOptions()
	opts.EntityType = q.Get("entity_type")
	opts.Actor = q.Get("actor")
	opts.Since = parseTime(q.Get("since"))
	if cats := q.Get("categories"); cats != "" {
		opts.Categories = strings.Split(cats, ",")
	}
	if n := parseLimit(q.Get("limit"), 200); n > 0 {
		opts.Limit = n
	}

	entries, totalCount, err := h.store.Search(r.Context(), query, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "SEARCH_FAILED", err.Error())
		return
	}

	resp := struct {
		Results    []types.ActivityEntry `json:"results"`
		TotalCount int                   `json:"total_count"`
	}{
		Results:    entries,
		TotalCount: totalCount,
	}
	if resp.Results == nil {
		resp.Results = []types.ActivityEntry{}
	}

	writeJSON(w, http.StatusOK, resp)
}
