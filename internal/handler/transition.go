package handler

import (
	"net/http"
	"strings"

	"github.com/matthewbaird/valuation/internal/event"
	"github.com/matthewbaird/valuation/internal/store"
)

type transitionRequest struct {
	Remarks string `json:"remarks"`
}

// SubmitValuation sends a draft valuation for approval.
// POST /v1/valuations/{id}/submit
func (h *ValuationHandler) SubmitValuation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, store.StatusSubmitted, false)
}

// ApproveValuation approves a submitted valuation. Managers only.
// POST /v1/valuations/{id}/approve
func (h *ValuationHandler) ApproveValuation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, store.StatusApproved, true)
}

// RejectValuation rejects a submitted valuation with remarks. Managers only.
// POST /v1/valuations/{id}/reject
func (h *ValuationHandler) RejectValuation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, store.StatusRejected, true)
}

// ReopenValuation returns a rejected valuation to draft for rework.
// POST /v1/valuations/{id}/reopen
func (h *ValuationHandler) ReopenValuation(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, store.StatusDraft, false)
}

func (h *ValuationHandler) transition(w http.ResponseWriter, r *http.Request, target string, managerOnly bool) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return
	}
	if managerOnly && !audit.IsManager() {
		writeError(w, http.StatusForbidden, "MANAGER_REQUIRED", "this action requires the manager role")
		return
	}

	var req transitionRequest
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	req.Remarks = strings.TrimSpace(req.Remarks)
	if target == store.StatusRejected && req.Remarks == "" {
		writeError(w, http.StatusBadRequest, "MISSING_REMARKS", "remarks are required to reject a valuation")
		return
	}

	before, err := h.store.Get(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	v, err := h.store.Transition(r.Context(), id, target, audit.Actor, req.Remarks)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}

	p := event.PayloadOf(v, audit.Actor)
	p.PreviousStatus = before.Status
	p.Remarks = req.Remarks
	if evt, ok := event.ForStatus(target, p); ok {
		recordEvent(r.Context(), evt)
	}
	writeJSON(w, http.StatusOK, respond(r, v))
}
