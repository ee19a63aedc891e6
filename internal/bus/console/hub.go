// Package console exposes a read-only websocket view of MessageBus traffic,
// adapted from the teacher's internal/api dashboard (internal/api/stream.go's
// Hub/Client pair). Where the teacher's Hub pushed market-maker fills and
// quotes to a browser dashboard, this Hub subscribes to the kernel's own bus
// topics (events.order.*, events.position.*, events.account.*) and
// re-broadcasts them as JSON frames — useful for operating a live kernel or
// watching a backtest run without touching the bus's synchronous dispatch
// path (subscribers here run on their own goroutine, not the publisher's).
package console

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nautilus-go/kernel/internal/bus"
)

// Hub manages connected websocket clients and broadcasts bus events to them.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	mu         sync.RWMutex
	logger     *slog.Logger
}

// Client is one connected websocket viewer.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON envelope sent to every connected client.
type Frame struct {
	Topic     string    `json:"topic"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewHub creates a console hub. Call Run in a goroutine, then Attach to a
// MessageBus to start forwarding traffic.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		logger:     logger.With("component", "bus-console"),
	}
}

// Attach subscribes the hub to the quote, trade, bar, order, position,
// account, error and degraded topics on the given bus so it can broadcast
// kernel activity to connected viewers. Other topics are not forwarded.
func (h *Hub) Attach(b *bus.MessageBus) {
	b.Subscribe(bus.TopicDataQuotesPattern, 0, h.forward)
	b.Subscribe(bus.TopicDataTradesPattern, 0, h.forward)
	b.Subscribe(bus.TopicDataBarsPattern, 0, h.forward)
	b.Subscribe(bus.TopicOrderEventsPattern, 0, h.forward)
	b.Subscribe(bus.TopicPositionEventsPattern, 0, h.forward)
	b.Subscribe(bus.TopicAccountEventsPattern, 0, h.forward)
	b.Subscribe(bus.TopicErrors, 0, h.forward)
	b.Subscribe(bus.TopicDegraded, 0, h.forward)
}

func (h *Hub) forward(topic string, payload any) {
	h.Broadcast(Frame{Topic: topic, Timestamp: time.Now(), Payload: payload})
}

// Run starts the hub's main loop; call it in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("console client connected", "count", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.logger.Info("console client disconnected", "count", len(h.clients))

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a frame to all connected clients, dropping it if the
// broadcast channel is saturated rather than blocking the caller.
func (h *Hub) Broadcast(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("failed to marshal console frame", "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("console broadcast channel full, dropping frame")
	}
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

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

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break // console is read-only; any read error just ends the connection
		}
	}
}

// NewClient registers conn with hub and starts its read/write pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	client := &Client{hub: hub, conn: conn, send: make(chan []byte, 256)}
	client.hub.register <- client
	go client.writePump()
	go client.readPump()
	return client
}
