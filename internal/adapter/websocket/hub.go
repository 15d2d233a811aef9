// Package websocket streams alert notifications to dashboard clients.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/couchcryptid/water-quality-service/internal/alerting"
	"github.com/couchcryptid/water-quality-service/internal/domain"
	"github.com/couchcryptid/water-quality-service/internal/observability"
)

const (
	channel         = "websocket"
	broadcastBuffer = 64
)

// Event is the JSON frame sent to clients.
type Event struct {
	Type    string       `json:"type"`
	Message string       `json:"message"`
	Payload domain.Alert `json:"payload"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub tracks connected clients and broadcasts alerts to them. Only the Run
// goroutine touches the client set.
type Hub struct {
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	count      atomic.Int64
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewHub creates a Hub. Call Run to start it.
func NewHub(logger *slog.Logger, metrics *observability.Metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, broadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return

		case c := <-h.register:
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("websocket client connected", "remote", c.conn.RemoteAddr().String())

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
				h.logger.Debug("websocket client disconnected", "remote", c.conn.RemoteAddr().String())
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("websocket client too slow, disconnecting", "remote", c.conn.RemoteAddr().String())
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *Client) {
	delete(h.clients, c)
	close(c.send)
	h.count.Store(int64(len(h.clients)))
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Notify queues the alert for every connected client. It never blocks; when
// the broadcast queue is full the notification is dropped and counted.
func (h *Hub) Notify(_ context.Context, n alerting.Notification) {
	msg, err := json.Marshal(Event{Type: "alert", Message: n.Message(), Payload: n.Alert})
	if err != nil {
		h.metrics.Notifications.WithLabelValues(channel, "error").Inc()
		h.logger.Error("encode websocket event failed", "error", err)
		return
	}
	select {
	case h.broadcast <- msg:
		h.metrics.Notifications.WithLabelValues(channel, "success").Inc()
	default:
		h.metrics.Notifications.WithLabelValues(channel, "error").Inc()
		h.logger.Warn("websocket broadcast queue full, dropping alert", "alert_id", n.Alert.ID)
	}
}

// ServeHTTP upgrades the request and attaches the connection to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &Client{hub: h, conn: conn, send: make(chan []byte, broadcastBuffer)}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

var _ alerting.Notifier = (*Hub)(nil)
