package websocket

import (
	"context"
	"log/slog"

	"bookbay-storefront/internal/observability"
)

// BroadcastMessage is a payload for every connection of one session.
type BroadcastMessage struct {
	SessionKey string
	Type       string
	Message    []byte
}

// Hub tracks the state-stream connections of each session and fans
// snapshots out to them.
type Hub struct {
	// Registered clients by session key
	clients map[string]map[*Client]bool

	broadcast  chan *BroadcastMessage
	register   chan *Client
	unregister chan *Client
	disconnect chan string

	// Closed when Run returns
	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan *BroadcastMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		disconnect: make(chan string, 16),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) error {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			slog.Info("hub shutting down gracefully")
			return ctx.Err()

		case client := <-h.register:
			if h.clients[client.sessionKey] == nil {
				h.clients[client.sessionKey] = make(map[*Client]bool)
			}
			h.clients[client.sessionKey][client] = true
			observability.WebSocketConnectionsActive.Inc()
			slog.Debug("client registered",
				slog.String("session", client.sessionKey))

		case client := <-h.unregister:
			h.unregisterClient(client)

		case key := <-h.disconnect:
			for client := range h.clients[key] {
				h.unregisterClient(client)
			}

		case message := <-h.broadcast:
			clients, ok := h.clients[message.SessionKey]
			if !ok {
				continue
			}
			for client := range clients {
				select {
				case client.send <- message.Message:
					observability.WebSocketMessagesSent.WithLabelValues(message.Type).Inc()
				default:
					// Slow reader, drop the connection
					h.unregisterClient(client)
				}
			}
		}
	}
}

// unregisterClient removes a client and closes its send channel. Only
// registered clients are closed, so a channel is never closed twice.
func (h *Hub) unregisterClient(client *Client) {
	clients, ok := h.clients[client.sessionKey]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	close(client.send)
	observability.WebSocketConnectionsActive.Dec()
	slog.Debug("client unregistered",
		slog.String("session", client.sessionKey))

	if len(clients) == 0 {
		delete(h.clients, client.sessionKey)
	}
}

// shutdown performs graceful cleanup of all connections
func (h *Hub) shutdown() {
	close(h.done)

	for key, clients := range h.clients {
		for client := range clients {
			close(client.send)
			observability.WebSocketConnectionsActive.Dec()
		}
		delete(h.clients, key)
	}

	slog.Info("hub shutdown complete")
}

// Broadcast queues message for every connection of the session. It returns
// without sending once the hub has stopped.
func (h *Hub) Broadcast(sessionKey, msgType string, message []byte) {
	select {
	case h.broadcast <- &BroadcastMessage{SessionKey: sessionKey, Type: msgType, Message: message}:
	case <-h.done:
	}
}

// Disconnect closes every connection of the session.
func (h *Hub) Disconnect(sessionKey string) {
	select {
	case h.disconnect <- sessionKey:
	case <-h.done:
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}
