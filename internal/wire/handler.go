package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/matthewbaird/valuation/internal/logging"
	"github.com/matthewbaird/valuation/internal/session"
	"github.com/matthewbaird/valuation/internal/store"
)

// Handler manages WebSocket connections for form editing.
type Handler struct {
	sessions *session.Manager
	log      *zap.Logger
}

// NewHandler creates a WebSocket handler backed by sessions.
func NewHandler(sessions *session.Manager, log *zap.Logger) *Handler {
	return &Handler{
		sessions: sessions,
		log:      logging.OrNop(log).Named("wire"),
	}
}

// ServeHTTP upgrades to WebSocket and runs the message loop. The editing
// user comes from the X-Actor header or, for browsers that cannot set
// headers on an upgrade, the actor query parameter.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := r.Header.Get("X-Actor")
	if user == "" {
		user = r.URL.Query().Get("actor")
	}
	if user == "" {
		http.Error(w, "actor is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn("websocket accept", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sess := h.sessions.Create(user)
	defer h.sessions.Remove(sess.ID)
	ctx := r.Context()
	log := h.log.With(zap.String("session_id", sess.ID), zap.String("user", user))

	h.send(ctx, conn, ServerMessage{
		Type: "session",
		Data: SessionData{SessionID: sess.ID, User: user},
	})

	for {
		var msg ClientMessage
		err := wsjson.Read(ctx, conn, &msg)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Debug("connection closed", zap.Int("status", int(websocket.CloseStatus(err))))
			}
			h.keepUnsaved(sess, log)
			return
		}
		h.dispatch(ctx, conn, sess, msg)
	}
}

func (h *Handler) dispatch(ctx context.Context, conn *websocket.Conn, sess *session.Session, msg ClientMessage) {
	switch msg.Type {
	case "load":
		var data LoadData
		if !h.decode(ctx, conn, msg, &data) {
			return
		}
		h.reply(ctx, conn, msg.ID)(sess.Load(ctx, data.ValuationID))
	case "set":
		var data SetData
		if !h.decode(ctx, conn, msg, &data) {
			return
		}
		if data.Key == "" {
			h.sendError(ctx, conn, msg.ID, "invalid_data", "key is required")
			return
		}
		h.reply(ctx, conn, msg.ID)(sess.Set(data.Key, data.Value))
	case "item":
		var data ItemData
		if !h.decode(ctx, conn, msg, &data) {
			return
		}
		h.reply(ctx, conn, msg.ID)(sess.SetItem(data.Index, data.Field, data.Value))
	case "add_item":
		var data AddItemData
		if len(msg.Data) > 0 && !h.decode(ctx, conn, msg, &data) {
			return
		}
		h.reply(ctx, conn, msg.ID)(sess.AddItem(data.Description))
	case "remove_item":
		var data ItemData
		if !h.decode(ctx, conn, msg, &data) {
			return
		}
		h.reply(ctx, conn, msg.ID)(sess.RemoveItem(data.Index))
	case "recompute":
		h.reply(ctx, conn, msg.ID)(sess.Recompute())
	case "draft":
		d, err := sess.SaveDraft(ctx)
		if err != nil {
			h.sendFailure(ctx, conn, msg.ID, err)
			return
		}
		h.send(ctx, conn, ServerMessage{
			Type:      "saved",
			RequestID: msg.ID,
			Data:      SavedData{Kind: "draft", DraftKey: d.Key, At: d.UpdatedAt},
		})
	case "save":
		v, state, err := sess.Save(ctx)
		if err != nil {
			h.sendFailure(ctx, conn, msg.ID, err)
			return
		}
		h.send(ctx, conn, ServerMessage{
			Type:      "saved",
			RequestID: msg.ID,
			Data:      SavedData{Kind: "valuation", Valuation: &v, At: v.UpdatedAt},
		})
		h.send(ctx, conn, ServerMessage{Type: "form", RequestID: msg.ID, Data: state})
	case "ping":
		sess.Touch()
		h.send(ctx, conn, ServerMessage{Type: "pong", RequestID: msg.ID})
	default:
		h.sendError(ctx, conn, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

// reply sends the resulting form state, or the error that prevented it.
func (h *Handler) reply(ctx context.Context, conn *websocket.Conn, requestID string) func(session.State, error) {
	return func(state session.State, err error) {
		if err != nil {
			h.sendFailure(ctx, conn, requestID, err)
			return
		}
		h.send(ctx, conn, ServerMessage{Type: "form", RequestID: requestID, Data: state})
	}
}

func (h *Handler) decode(ctx context.Context, conn *websocket.Conn, msg ClientMessage, v any) bool {
	if err := json.Unmarshal(msg.Data, v); err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_data", fmt.Sprintf("invalid %s data", msg.Type))
		return false
	}
	return true
}

// keepUnsaved stores edits that never reached a draft or the store so the
// user can resume after a dropped connection.
func (h *Handler) keepUnsaved(sess *session.Session, log *zap.Logger) {
	if !sess.Dirty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := sess.SaveDraft(ctx); err != nil {
		log.Warn("keeping unsaved edits failed", zap.Error(err))
	}
}

func (h *Handler) sendFailure(ctx context.Context, conn *websocket.Conn, requestID string, err error) {
	switch {
	case errors.Is(err, session.ErrNotLoaded):
		h.sendError(ctx, conn, requestID, "not_loaded", err.Error())
	case errors.Is(err, store.ErrNotFound):
		h.sendError(ctx, conn, requestID, "not_found", err.Error())
	case errors.Is(err, store.ErrNotEditable):
		h.sendError(ctx, conn, requestID, "not_editable", err.Error())
	case errors.Is(err, store.ErrConflict):
		h.sendError(ctx, conn, requestID, "conflict", err.Error())
	default:
		h.log.Error("request failed", zap.String("request_id", requestID), zap.Error(err))
		h.sendError(ctx, conn, requestID, "internal", "internal error")
	}
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		h.log.Debug("write error", zap.Error(err))
	}
}

func (h *Handler) sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	h.send(ctx, conn, ServerMessage{
		Type:      "error",
		RequestID: requestID,
		Data: ErrorData{
			Code:    code,
			Message: message,
		},
	})
}
