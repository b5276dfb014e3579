package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"bookbay-storefront/internal/events"
	"bookbay-storefront/internal/lifecycle"
	"bookbay-storefront/internal/observability"
	"bookbay-storefront/internal/storefront"
	ws "bookbay-storefront/internal/websocket"

	"github.com/gorilla/websocket"
)

// StateMessage is one frame of the state stream.
type StateMessage struct {
	Type          string           `json:"type"`
	Store         string           `json:"store,omitempty"`
	Op            lifecycle.Op     `json:"op,omitempty"`
	Seq           uint64           `json:"seq,omitempty"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	State         storefront.State `json:"state"`
}

// Workspaces looks up live workspaces by session key.
type Workspaces interface {
	Get(key string) (*storefront.Workspace, bool)
}

// StateStream pushes a visitor's store state over a WebSocket: a snapshot
// on connect, then the full state after every applied transition.
type StateStream struct {
	hub        *ws.Hub
	workspaces Workspaces
	upgrader   websocket.Upgrader
}

func NewStateStream(hub *ws.Hub, workspaces Workspaces, allowedOrigins []string) *StateStream {
	return &StateStream{
		hub:        hub,
		workspaces: workspaces,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

// Connect upgrades the request. It runs behind RequireWorkspace.
func (h *StateStream) Connect(w http.ResponseWriter, r *http.Request) {
	wsp, ok := workspaceOr401(w, r)
	if !ok {
		return
	}

	snapshot, err := json.Marshal(StateMessage{Type: ws.TypeSnapshot, State: wsp.State()})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to encode state")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		observability.FromContext(r.Context()).Warn("websocket upgrade failed",
			slog.String("error", err.Error()))
		return
	}

	client := ws.NewClient(h.hub, conn, wsp.Key)
	client.Prime(snapshot)
	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// OnTransition is registered with the workspace registry. Stale completions
// that changed no data are not pushed.
func (h *StateStream) OnTransition(key string, tr lifecycle.Transition) {
	if tr.Stale && !tr.Merged {
		return
	}
	wsp, ok := h.workspaces.Get(key)
	if !ok {
		return
	}

	data, err := json.Marshal(StateMessage{
		Type:          ws.TypeTransition,
		Store:         tr.Store,
		Op:            tr.Ticket.Op,
		Seq:           tr.Ticket.Seq,
		CorrelationID: tr.Ticket.CorrelationID,
		State:         wsp.State(),
	})
	if err != nil {
		slog.Error("failed to marshal state transition",
			slog.String("error", err.Error()),
			slog.String("session", key))
		return
	}
	h.hub.Broadcast(key, ws.TypeTransition, data)
}

// OnSessionCleared closes the streams of a session signed out here or on
// another instance.
func (h *StateStream) OnSessionCleared(_ context.Context, e events.Event) {
	h.hub.Disconnect(e.Session)
}

// checkOrigin accepts same-origin requests and the configured origins.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if slices.Contains(allowed, "*") || slices.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}
