package handler

import (
	"net/http"

	"github.com/matthewbaird/valuation/internal/catalog"
	"github.com/matthewbaird/valuation/internal/derive"
	"github.com/matthewbaird/valuation/internal/form"
)

// FormHandler exposes the stateless form engine over HTTP. None of its
// routes touch storage.
type FormHandler struct {
	mapper *form.Mapper
}

// NewFormHandler creates a FormHandler over the catalog behind mapper.
func NewFormHandler(mapper *form.Mapper) *FormHandler {
	if mapper == nil {
		mapper = form.Default()
	}
	return &FormHandler{mapper: mapper}
}

type itemChange struct {
	Index int    `json:"index"`
	Field string `json:"field"`
	Value string `json:"value"`
}

type applyRequest struct {
	Record form.FlatRecord `json:"record"`
	Key    string          `json:"key"`
	Value  string          `json:"value"`
	Item   *itemChange     `json:"item,omitempty"`
}

type formResponse struct {
	Record     form.FlatRecord `json:"record"`
	GrandTotal string          `json:"grand_total"`
}

func newFormResponse(f form.FlatRecord) formResponse {
	return formResponse{Record: f, GrandTotal: derive.GrandTotal(f)}
}

// Apply applies one field edit, or one line-item edit, to a flat record
// and returns the record with its derived values.
// POST /v1/form/apply
func (h *FormHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	switch {
	case req.Item != nil:
		writeJSON(w, http.StatusOK, newFormResponse(
			derive.ApplyFlatItemChange(req.Record, req.Item.Index, req.Item.Field, req.Item.Value)))
	case req.Key != "":
		writeJSON(w, http.StatusOK, newFormResponse(derive.ApplyFieldChange(req.Record, req.Key, req.Value)))
	default:
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "key or item is required")
	}
}

// Recompute re-applies every derived-value rule to a flat record.
// POST /v1/form/recompute
func (h *FormHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	var record form.FlatRecord
	if !decodeBody(w, r, &record) {
		return
	}
	writeJSON(w, http.StatusOK, newFormResponse(derive.Recompute(record)))
}

// Flatten converts a nested record to the flat form.
// POST /v1/form/flatten
func (h *FormHandler) Flatten(w http.ResponseWriter, r *http.Request) {
	var record form.NestedRecord
	if !decodeBody(w, r, &record) {
		return
	}
	writeJSON(w, http.StatusOK, h.mapper.Flatten(record))
}

// Nest converts a flat record to the nested form.
// POST /v1/form/nest
func (h *FormHandler) Nest(w http.ResponseWriter, r *http.Request) {
	var record form.FlatRecord
	if !decodeBody(w, r, &record) {
		return
	}
	writeJSON(w, http.StatusOK, h.mapper.Nest(record))
}

// Catalog describes the field catalog. With ?group= it lists the scalar
// leaves of that group.
// GET /v1/catalog
func (h *FormHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	c := h.mapper.Catalog()
	if g := r.URL.Query().Get("group"); g != "" {
		leaves := c.LeavesOfGroup(g)
		if leaves == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "unknown group: "+g)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"group": g, "fields": leaves})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Groups  []string        `json:"groups"`
		Entries []catalog.Entry `json:"entries"`
		Aliases []catalog.Alias `json:"aliases"`
		Rules   []ruleInfo      `json:"rules"`
	}{
		Groups:  c.Groups(),
		Entries: c.Entries(),
		Aliases: c.Aliases(),
		Rules:   describeRules(),
	})
}

type ruleInfo struct {
	Name     string   `json:"name"`
	Triggers []string `json:"triggers"`
	Outputs  []string `json:"outputs"`
}

func describeRules() []ruleInfo {
	rules := derive.Rules()
	out := make([]ruleInfo, len(rules))
	for i, rule := range rules {
		out[i] = ruleInfo{Name: rule.Name, Triggers: rule.Triggers, Outputs: rule.Outputs}
	}
	return out
}
