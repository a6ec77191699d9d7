package handler

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/matthewbaird/valuation/internal/export"
)

// ExportValuation streams a valuation as an xlsx workbook.
// GET /v1/valuations/{id}/export
func (h *ValuationHandler) ExportValuation(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	v, err := h.store.Get(r.Context(), id)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	f, err := export.Workbook(v)
	if err != nil {
		storeErrorToHTTP(w, err)
		return
	}
	defer f.Close()

	name := v.ReferenceNumber
	if name == "" {
		name = v.ID
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "valuation-"+name+".xlsx"))
	if _, err := f.WriteTo(w); err != nil {
		logger.Warn("writing workbook failed", zap.String("valuation_id", id), zap.Error(err))
	}
}
