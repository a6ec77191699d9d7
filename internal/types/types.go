// Package types provides the value types shared by the form engine, the
// stores and the HTTP layer.
package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// LineItem is one row of the valuation details table. Quantities, rates and
// values are kept as the decimal strings the user typed or the engine
// derived; they are never parsed on the way in or out of storage.
type LineItem struct {
	SNo         int    `json:"sno"`
	Description string `json:"description"`
	Qty         string `json:"qty"`
	Rate        string `json:"rate"`
	Value       string `json:"value"`

	// Extra holds item fields not listed above, as decoded. They are
	// written back unchanged.
	Extra map[string]any `json:"-"`
}

// IsLineItemField reports whether name is one of LineItem's own JSON fields.
func IsLineItemField(name string) bool {
	switch name {
	case "sno", "description", "qty", "rate", "value":
		return true
	}
	return false
}

type plainLineItem LineItem

// MarshalJSON writes the known fields together with Extra. Known fields win
// over an Extra entry of the same name.
func (li LineItem) MarshalJSON() ([]byte, error) {
	if len(li.Extra) == 0 {
		return json.Marshal(plainLineItem(li))
	}
	out := make(map[string]any, len(li.Extra)+5)
	for k, v := range li.Extra {
		out[k] = v
	}
	out["sno"] = li.SNo
	out["description"] = li.Description
	out["qty"] = li.Qty
	out["rate"] = li.Rate
	out["value"] = li.Value
	return json.Marshal(out)
}

// UnmarshalJSON reads the known fields and keeps every other field in Extra.
func (li *LineItem) UnmarshalJSON(data []byte) error {
	var p plainLineItem
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k, v := range raw {
		if IsLineItemField(k) {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		var x any
		if err := dec.Decode(&x); err != nil {
			return err
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = x
	}
	*li = LineItem(p)
	return nil
}

// MediaRef is the descriptor returned by the media upload service.
// The form engine treats it as opaque.
type MediaRef struct {
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	OriginalName string `json:"originalName"`
}

// SourceRef identifies an entity referenced by a domain event.
type SourceRef struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Role       string `json:"role"` // "subject", "target", "related", "context"
}

// ActivityEntry is a secondary index entry over the domain event log,
// keyed by a referenced entity. One event produces multiple entries.
type ActivityEntry struct {
	EventID           string          `json:"event_id"`
	EventType         string          `json:"event_type"`
	OccurredAt        time.Time       `json:"occurred_at"`
	IndexedEntityType string          `json:"indexed_entity_type"`
	IndexedEntityID   string          `json:"indexed_entity_id"`
	EntityRole        string          `json:"entity_role"`
	Actor             string          `json:"actor,omitempty"`
	SourceRefs        []SourceRef     `json:"source_refs"`
	Summary           string          `json:"summary"`
	Category          string          `json:"category"` // "valuation", "workflow", "draft"
	Weight            string          `json:"weight"`   // "critical", "major", "minor", "info"
	Payload           json.RawMessage `json:"payload"`
}

// WeightOrder ranks event weights; lower is more severe.
var WeightOrder = map[string]int{
	"critical": 0,
	"major":    1,
	"minor":    2,
	"info":     3,
}

// IsAtLeastWeight reports whether weight is at least as severe as min.
// Unknown weights rank as "info".
func IsAtLeastWeight(weight, min string) bool {
	w, ok := WeightOrder[weight]
	if !ok {
		w = WeightOrder["info"]
	}
	m, ok := WeightOrder[min]
	if !ok {
		m = WeightOrder["info"]
	}
	return w <= m
}
