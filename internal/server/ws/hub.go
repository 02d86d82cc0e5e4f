// Package ws bridges the Redis signal bus to WebSocket clients so the
// order status feed is visible from any process attached to the bus.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avelinsk/swapflow/internal/domain"
	"github.com/avelinsk/swapflow/internal/engine"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by the CORS middleware in front.
		return true
	},
}

// client represents a single WebSocket connection. An empty filter set
// means the client receives every status event.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	orders  map[string]bool // filter by order id
	wallets map[string]bool // filter by wallet
	mu      sync.RWMutex
}

// filterMsg is the JSON message a client sends to narrow or widen its feed.
type filterMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	OrderIDs []string `json:"order_ids,omitempty"`
	Wallets  []string `json:"wallets,omitempty"`
}

// Hub manages the set of connected WebSocket clients and fans status
// events from the Redis signal bus out to them.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	bus        domain.SignalBus
	mu         sync.RWMutex
	logger     *slog.Logger
	startedAt  time.Time
}

// NewHub creates a WebSocket hub fed by the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		bus:        bus,
		logger:     logger.With(slog.String("component", "ws_hub")),
		startedAt:  time.Now().UTC(),
	}
}

// Run starts the hub's main event loop. It should be called in a goroutine.
// It handles client registration, unregistration, and event fan-out, and
// exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	go h.pumpEvents(ctx)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.logger.Info("ws: client connected",
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected",
				slog.Int("total_clients", h.clientCount()),
			)

		case data := <-h.broadcast:
			var ev domain.StatusEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				h.logger.Warn("ws: dropping malformed status event",
					slog.String("error", err.Error()),
				)
				continue
			}
			h.mu.RLock()
			for c := range h.clients {
				if !c.wants(ev) {
					continue
				}
				select {
				case c.send <- data:
				default:
					// Client's send buffer is full; skip this event.
					h.logger.Warn("ws: dropping event for slow client",
						slog.String("order_id", ev.OrderID),
					)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// pumpEvents subscribes to the status event channel and forwards received
// payloads to the hub's broadcast loop.
func (h *Hub) pumpEvents(ctx context.Context) {
	msgCh, err := h.bus.Subscribe(ctx, engine.EventsChannel)
	if err != nil {
		h.logger.Error("ws: subscribe to status events failed",
			slog.String("error", err.Error()),
		)
		return
	}

	h.logger.Info("ws: subscribed to status events",
		slog.String("channel", engine.EventsChannel),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: status event subscription closed")
				return
			}
			h.broadcast <- data
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		orders:  make(map[string]bool),
		wallets: make(map[string]bool),
	}

	h.register <- c
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump reads messages from the WebSocket connection. It handles
// feed filter requests (JSON text frames) from the client.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg filterMsg
		if jsonErr := json.Unmarshal(message, &msg); jsonErr == nil && msg.Action != "" {
			c.applyFilter(msg)
		}
	}
}

// applyFilter processes subscribe/unsubscribe requests from the client.
func (c *client) applyFilter(msg filterMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch msg.Action {
	case "subscribe":
		for _, id := range msg.OrderIDs {
			c.orders[id] = true
		}
		for _, w := range msg.Wallets {
			c.wallets[w] = true
		}
	case "unsubscribe":
		for _, id := range msg.OrderIDs {
			delete(c.orders, id)
		}
		for _, w := range msg.Wallets {
			delete(c.wallets, w)
		}
	}
}

// sendHello pushes a small JSON envelope so clients can immediately mark
// the connection as healthy before any status events flow.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"type": "connected",
		"payload": map[string]any{
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// wants reports whether the client's filters admit the given event. Clients
// with no filters receive everything.
func (c *client) wants(ev domain.StatusEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.orders) == 0 && len(c.wallets) == 0 {
		return true
	}
	return c.orders[ev.OrderID] || c.wallets[ev.Wallet]
}

// writePump pumps events from the hub to the WebSocket connection as JSON
// text frames, with periodic ping frames for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
