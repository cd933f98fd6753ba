// Package ws streams emitted filter events to connected front ends over
// WebSocket. Any number of clients may watch; slow clients are dropped
// rather than allowed to stall the broadcast.
package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"ampfilter/internal/logger"
	"ampfilter/internal/metrics"
	"ampfilter/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The rule API carries no credentials, so origin checking buys nothing.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

// NewHub creates an empty hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is cancelled. Once it returns, no one
// reads register/unregister again; done lets attach and detach bail out.
func (h *Hub) Run(ctx context.Context) {
	log := logger.WithComponent("ws")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			metrics.WebsocketClients.Set(0)
			return

		case client := <-h.register:
			h.clients[client] = true
			metrics.WebsocketClients.Set(float64(len(h.clients)))
			log.Info().Str("client_id", client.id).Msg("websocket client registered")

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				metrics.WebsocketClients.Set(float64(len(h.clients)))
				log.Info().Str("client_id", client.id).Msg("websocket client unregistered")
			}

		case message := <-h.broadcast:
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full, assume the client is gone.
					log.Warn().Str("client_id", client.id).Msg("dropping slow websocket client")
					close(client.send)
					delete(h.clients, client)
				}
			}
			metrics.WebsocketClients.Set(float64(len(h.clients)))
		}
	}
}

// Name implements engine.Sink.
func (h *Hub) Name() string { return "websocket" }

// Publish implements engine.Sink by broadcasting the event to all clients.
func (h *Hub) Publish(_ context.Context, event *models.Event) error {
	message, err := json.Marshal(event)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- message:
	default:
		// Broadcast queue full; front-end streaming is best effort.
	}
	return nil
}

// drop detaches a client without blocking when the hub has already shut
// down.
func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// HandleWS upgrades an HTTP request and attaches the client to the hub.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		lg := logger.WithComponent("ws")
		lg.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := newClient(h, conn)
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
