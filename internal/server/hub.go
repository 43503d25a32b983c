package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tuanle/tickersim/internal/engine"
	"github.com/tuanle/tickersim/internal/market"
	"github.com/tuanle/tickersim/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are filtered by the CORS layer on the main router.
		return true
	},
}

// Hub maintains active websocket connections and fans snapshots out to
// them. It implements engine.Broadcaster.
type Hub struct {
	engine *engine.Engine
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
}

// NewHub creates a hub bound to an engine.
func NewHub(eng *engine.Engine, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		engine:     eng,
		logger:     logger,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// Run processes client registration until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()

			h.logger.Info("client connected",
				"session_id", client.session.ID(),
				"total", total,
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()

			h.engine.Detach(client.session)
			h.logger.Info("client disconnected",
				"session_id", client.session.ID(),
				"total", total,
			)
		}
	}
}

// closeAll drops every client during shutdown.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// BroadcastSnapshot sends a market update to every connected client.
// Clients that cannot keep up are skipped; the tick loop never blocks on
// a slow consumer.
func (h *Hub) BroadcastSnapshot(snap *market.Snapshot) {
	message, err := encodeEvent(EventMarketUpdate, newMarketUpdate(snap))
	if err != nil {
		h.logger.Error("encode market update", "err", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Buffer full, skip this client.
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client is one websocket connection paired with its trading session.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	session *session.Session
}

// handleWebSocket upgrades the connection and starts the client pumps.
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	sess, snap := h.engine.Attach()

	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		session: sess,
	}

	// Greet the session and push the current snapshot before any tick.
	client.enqueueEvent(EventSessionStart, SessionStart{
		SessionID: sess.ID(),
		Cash:      sess.Ledger().Cash().StringFixed(2),
	})
	client.enqueueEvent(EventMarketUpdate, newMarketUpdate(snap))

	h.register <- client

	go client.writePump()
	go client.readPump()
}

// enqueueEvent queues an event for this client only.
func (c *Client) enqueueEvent(event string, payload any) {
	message, err := encodeEvent(event, payload)
	if err != nil {
		c.hub.logger.Error("encode event", "event", event, "err", err)
		return
	}
	select {
	case c.send <- message:
	default:
	}
}

// readPump reads order messages from the connection.
func (c *Client) readPump() {
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read error",
					"session_id", c.session.ID(),
					"err", err,
				)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.hub.logger.Warn("invalid message",
				"session_id", c.session.ID(),
				"err", err,
			)
			continue
		}

		switch env.Event {
		case EventPlaceOrder:
			c.handlePlaceOrder(env.Data)
		default:
			c.hub.logger.Warn("unknown event",
				"session_id", c.session.ID(),
				"event", env.Event,
			)
		}
	}
}

// handlePlaceOrder executes one order and always answers the client,
// with a confirmation or a tagged rejection.
func (c *Client) handlePlaceOrder(data json.RawMessage) {
	var req OrderRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.hub.logger.Warn("malformed order",
			"session_id", c.session.ID(),
			"err", err,
		)
		return
	}

	order, err := req.ToOrder()
	if err != nil {
		c.enqueueEvent(EventOrderRejected, newOrderRejection(req, err))
		return
	}

	trade, err := c.hub.engine.PlaceOrder(context.Background(), c.session, order)
	if err != nil {
		c.enqueueEvent(EventOrderRejected, newOrderRejection(req, err))
		return
	}

	c.enqueueEvent(EventTradeConfirmation, newTradeConfirmation(trade))
}

// writePump writes queued messages and keeps the connection alive.
func (c *Client) writePump() {
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
				// Hub closed the channel.
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
