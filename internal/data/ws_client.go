package data

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nautilus-go/kernel/internal/value"
)

const (
	wsPingInterval     = 50 * time.Second
	wsReadTimeout      = 90 * time.Second
	wsMaxReconnectWait = 30 * time.Second
	wsWriteTimeout     = 10 * time.Second
)

// wireEvent is the envelope a venue feed is expected to send: one JSON
// object per message, tagged by kind, carrying the corresponding typed
// payload inline. A real venue adapter translates its own wire format into
// this shape before dispatch; WSMarketDataClient itself is venue-agnostic.
type wireEvent struct {
	Kind  string          `json:"kind"`
	Quote *QuoteTick      `json:"quote,omitempty"`
	Trade *TradeTick      `json:"trade,omitempty"`
	Bar   *Bar            `json:"bar,omitempty"`
	Delta *OrderBookDelta `json:"delta,omitempty"`
}

// WSMarketDataClient is a generic live market data source over a websocket
// connection: auto-reconnecting with exponential backoff, subscribing by
// instrument id, and feeding every decoded tick/bar/delta into an Engine.
type WSMarketDataClient struct {
	url    string
	engine *Engine
	logger *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	subMu sync.RWMutex
	subs  map[value.InstrumentId]bool
}

// NewWSMarketDataClient builds a client that feeds decoded events into engine.
func NewWSMarketDataClient(url string, engine *Engine, logger *slog.Logger) *WSMarketDataClient {
	return &WSMarketDataClient{
		url:    url,
		engine: engine,
		logger: logger.With("component", "ws-market-data"),
		subs:   make(map[value.InstrumentId]bool),
	}
}

// Subscribe marks instId for subscription and, if already connected, sends
// the subscribe message immediately.
func (c *WSMarketDataClient) Subscribe(instId value.InstrumentId) error {
	c.subMu.Lock()
	c.subs[instId] = true
	c.subMu.Unlock()
	return c.send(map[string]any{"op": "subscribe", "instrument_id": instId.String()})
}

// Unsubscribe removes instId from the tracked subscription set.
func (c *WSMarketDataClient) Unsubscribe(instId value.InstrumentId) error {
	c.subMu.Lock()
	delete(c.subs, instId)
	c.subMu.Unlock()
	return c.send(map[string]any{"op": "unsubscribe", "instrument_id": instId.String()})
}

// Run connects and maintains the connection, reconnecting with exponential
// backoff (1s up to 30s) and re-subscribing to every tracked instrument on
// each reconnect. Blocks until ctx is cancelled.
func (c *WSMarketDataClient) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := c.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Warn("market data socket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > wsMaxReconnectWait {
			backoff = wsMaxReconnectWait
		}
	}
}

// Close closes the underlying connection, if any.
func (c *WSMarketDataClient) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *WSMarketDataClient) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		conn.Close()
		c.conn = nil
		c.connMu.Unlock()
	}()

	if err := c.resubscribeAll(); err != nil {
		return fmt.Errorf("resubscribe: %w", err)
	}

	c.logger.Info("market data socket connected", "url", c.url)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go c.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		c.dispatch(msg)
	}
}

func (c *WSMarketDataClient) resubscribeAll() error {
	c.subMu.RLock()
	ids := make([]string, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id.String())
	}
	c.subMu.RUnlock()

	if len(ids) == 0 {
		return nil
	}
	return c.send(map[string]any{"op": "subscribe", "instrument_ids": ids})
}

func (c *WSMarketDataClient) dispatch(data []byte) {
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		c.logger.Debug("ignoring undecodable market data message", "error", err)
		return
	}

	switch ev.Kind {
	case "quote":
		if ev.Quote != nil {
			c.engine.ProcessQuoteTick(*ev.Quote)
		}
	case "trade":
		if ev.Trade != nil {
			c.engine.ProcessTradeTick(*ev.Trade)
		}
	case "bar":
		if ev.Bar != nil {
			c.engine.ProcessBar(*ev.Bar)
		}
	case "book_delta":
		if ev.Delta != nil {
			c.engine.ProcessOrderBookDelta(*ev.Delta)
		}
	default:
		c.logger.Debug("unknown market data event kind", "kind", ev.Kind)
	}
}

func (c *WSMarketDataClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (c *WSMarketDataClient) send(v any) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("market data socket not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteJSON(v)
}
