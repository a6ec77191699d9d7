package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matthewbaird/valuation/internal/draft"
	"github.com/matthewbaird/valuation/internal/form"
)

// DraftHandler implements HTTP handlers for unsaved form drafts.
type DraftHandler struct {
	drafts draft.Store
}

// NewDraftHandler creates a new DraftHandler.
func NewDraftHandler(drafts draft.Store) *DraftHandler {
	return &DraftHandler{drafts: drafts}
}

func parseDraftKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := chi.URLParam(r, "key")
	if err := draft.ValidateKey(key); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_KEY", err.Error())
		return "", false
	}
	return key, true
}

// GetDraft returns the draft stored under key.
// GET /v1/drafts/{key}
func (h *DraftHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	key, ok := parseDraftKey(w, r)
	if !ok {
		return
	}
	d, err := h.drafts.Get(r.Context(), key)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// PutDraft stores a flat record under key.
// PUT /v1/drafts/{key}
func (h *DraftHandler) PutDraft(w http.ResponseWriter, r *http.Request) {
	key, ok := parseDraftKey(w, r)
	if !ok {
		return
	}
	if _, ok := parseAuditContext(w, r); !ok {
		return
	}
	var record form.FlatRecord
	if !decodeBody(w, r, &record) {
		return
	}
	d, err := h.drafts.Put(r.Context(), key, record)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// DeleteDraft discards the draft stored under key.
// DELETE /v1/drafts/{key}
func (h *DraftHandler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	key, ok := parseDraftKey(w, r)
	if !ok {
		return
	}
	if _, ok := parseAuditContext(w, r); !ok {
		return
	}
	if err := h.drafts.Delete(r.Context(), key); err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
