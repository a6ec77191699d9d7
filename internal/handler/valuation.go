package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/matthewbaird/valuation/internal/derive"
	"github.com/matthewbaird/valuation/internal/draft"
	"github.com/matthewbaird/valuation/internal/event"
	"github.com/matthewbaird/valuation/internal/form"
	"github.com/matthewbaird/valuation/internal/store"
)

// ValuationHandler implements HTTP handlers for ValuationService.
type ValuationHandler struct {
	store  store.Store
	drafts draft.Store
}

// NewValuationHandler creates a new ValuationHandler.
func NewValuationHandler(s store.Store, drafts draft.Store) *ValuationHandler {
	return &ValuationHandler{store: s, drafts: drafts}
}

// valuationResponse is a valuation with its record in the shape the
// caller asked for.
type valuationResponse struct {
	store.Valuation
	Record     any    `json:"record"`
	Shape      string `json:"shape"`
	GrandTotal string `json:"grand_total,omitempty"`
}

func respond(r *http.Request, v store.Valuation) valuationResponse {
	if r.URL.Query().Get("shape") == "flat" {
		flat := form.Flatten(v.Record)
		return valuationResponse{Valuation: v, Record: flat, Shape: "flat", GrandTotal: derive.GrandTotal(flat)}
	}
	return valuationResponse{Valuation: v, Record: v.Record, Shape: "nested"}
}

// CreateValuation creates a draft valuation from a nested or flat record.
// POST /v1/valuations
func (h *ValuationHandler) CreateValuation(w http.ResponseWriter, r *http.Request) {
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var record form.NestedRecord
	if !decodeBody(w, r, &record) {
		return
	}
	v, err := h.store.Create(r.Context(), record, audit.Actor)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	recordEvent(r.Context(), event.NewValuationCreated(event.PayloadOf(v, audit.Actor)))
	writeJSON(w, http.StatusCreated, respond(r, v))
}

// GetValuation returns one valuation.
// GET /v1/valuations/{id}
func (h *ValuationHandler) GetValuation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	v, err := h.store.Get(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, respond(r, v))
}

// ListValuations returns one page of valuations without their records.
// GET /v1/valuations
func (h *ValuationHandler) ListValuations(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	q := r.URL.Query()
	items, total, err := h.store.List(r.Context(), store.Filter{
		Status:    q.Get("status"),
		CreatedBy: q.Get("created_by"),
		Query:     q.Get("q"),
		Limit:     p.Limit,
		Offset:    p.Offset,
	})
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	for i := range items {
		items[i].Record = nil
	}
	if items == nil {
		items = []store.Valuation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valuations":  items,
		"total_count": total,
		"page_size":   p.Limit,
		"offset":      p.Offset,
	})
}

// UpdateValuation saves the record of a draft valuation as sent. The
// caller's draft for this valuation is cleared.
// PUT /v1/valuations/{id}
func (h *ValuationHandler) UpdateValuation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	var record form.NestedRecord
	if !decodeBody(w, r, &record) {
		return
	}
	v, err := h.store.Save(r.Context(), id, record, audit.Actor)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	if h.drafts != nil {
		key := draft.Key(audit.Actor, id)
		if err := h.drafts.Delete(r.Context(), key); err != nil && !errors.Is(err, draft.ErrNotFound) {
			logger.Warn("clearing draft failed", zap.String("key", key), zap.Error(err))
		}
	}
	recordEvent(r.Context(), event.NewValuationSaved(event.PayloadOf(v, audit.Actor)))
	writeJSON(w, http.StatusOK, respond(r, v))
}

// DeleteValuation removes a draft valuation.
// DELETE /v1/valuations/{id}
func (h *ValuationHandler) DeleteValuation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	v, err := h.store.Get(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	recordEvent(r.Context(), event.NewValuationDeleted(event.PayloadOf(v, audit.Actor)))
	w.WriteHeader(http.StatusNoContent)
}
