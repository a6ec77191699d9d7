// Package wire defines the WebSocket protocol for live form editing.
package wire

import (
	"encoding/json"
	"time"

	"github.com/matthewbaird/valuation/internal/store"
)

// ── Client → Server messages ────────────────────────────────────────────────

// ClientMessage is the envelope for all client-to-server WebSocket messages.
type ClientMessage struct {
	Type string          `json:"type"` // "load", "set", "item", "add_item", "remove_item", "recompute", "draft", "save", "ping"
	ID   string          `json:"id"`   // Client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// LoadData is the payload for "load" messages. An empty ValuationID starts
// a new valuation.
type LoadData struct {
	ValuationID string `json:"valuation_id"`
}

// SetData is the payload for "set" messages.
type SetData struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ItemData is the payload for "item" and "remove_item" messages.
type ItemData struct {
	Index int    `json:"index"`
	Field string `json:"field,omitempty"`
	Value string `json:"value,omitempty"`
}

// AddItemData is the payload for "add_item" messages.
type AddItemData struct {
	Description string `json:"description"`
}

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type      string `json:"type"`                 // "session", "form", "saved", "error", "pong"
	RequestID string `json:"request_id,omitempty"` // Echoes client ID
	Data      any    `json:"data,omitempty"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SessionData carries session information.
type SessionData struct {
	SessionID string `json:"session_id"`
	User      string `json:"user"`
}

// SavedData acknowledges a "draft" or "save" message. Valuation is set
// for a save, DraftKey for a draft.
type SavedData struct {
	Kind      string           `json:"kind"` // "draft" or "valuation"
	DraftKey  string           `json:"draft_key,omitempty"`
	Valuation *store.Valuation `json:"valuation,omitempty"`
	At        time.Time        `json:"at"`
}
