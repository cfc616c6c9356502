// Package feed connects to the market-data vendor's WebSocket stream and
// fans events out: option trades onto the engine queue, option quotes into
// the NBBO store, index values into the spot tracker.
//
// The feed deliberately does not reconnect; supervision restarts the
// process on a dropped connection.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mwheeler/gexstream/internal/engine"
	"github.com/mwheeler/gexstream/internal/model"
	"github.com/mwheeler/gexstream/internal/nbbo"
	"github.com/mwheeler/gexstream/internal/queue"
)

// Config holds feed connection settings.
type Config struct {
	URL              string
	APIKey           string
	Subscriptions    []string // e.g. ["T.O:SPXW*", "Q.O:SPXW*", "V.I:SPX"]
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
}

// DefaultConfig returns connection defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		ReadTimeout:      30 * time.Second,
	}
}

// Stats counts feed activity.
type Stats struct {
	Events    int64
	Trades    int64
	Quotes    int64
	IndexVals int64
	Skipped   int64
	Malformed int64
}

// Client reads the vendor stream and routes events.
type Client struct {
	cfg    Config
	logger *slog.Logger

	trades *queue.Buffer[engine.RawMessage]
	quotes *nbbo.Store
	spot   *nbbo.SpotTracker

	conn   *websocket.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	stats Stats
}

// New creates a feed client routing into the given sinks.
func New(cfg Config, trades *queue.Buffer[engine.RawMessage], quotes *nbbo.Store, spot *nbbo.SpotTracker, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultConfig().HandshakeTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultConfig().ReadTimeout
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		trades: trades,
		quotes: quotes,
		spot:   spot,
	}
}

// Start dials the vendor, authenticates, subscribes, and begins reading.
func (c *Client) Start(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	c.conn = conn

	if c.cfg.APIKey != "" {
		auth := controlMsg{Action: "auth", Params: c.cfg.APIKey}
		if err := conn.WriteJSON(auth); err != nil {
			conn.Close()
			return fmt.Errorf("send auth: %w", err)
		}
	}

	for _, sub := range c.cfg.Subscriptions {
		if err := conn.WriteJSON(controlMsg{Action: "subscribe", Params: sub}); err != nil {
			conn.Close()
			return fmt.Errorf("subscribe %q: %w", sub, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go c.readLoop(runCtx)

	c.logger.Info("feed connected",
		"url", c.cfg.URL,
		"subscriptions", c.cfg.Subscriptions,
	)
	return nil
}

// Stop closes the connection and waits for the read loop.
func (c *Client) Stop(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("feed stopped")
		return nil
	case <-ctx.Done():
		c.logger.Warn("feed stop timed out")
		return ctx.Err()
	}
}

// Stats returns a snapshot of routing counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *Client) readLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			c.logger.Error("set read deadline", "error", err)
			return
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error("feed read failed", "error", err)
			}
			return
		}

		c.dispatch(data, time.Now())
	}
}

// dispatch routes one frame. The vendor batches events into JSON arrays; a
// bare object is accepted too.
func (c *Client) dispatch(data []byte, receivedAt time.Time) {
	var events []json.RawMessage
	if err := json.Unmarshal(data, &events); err != nil {
		// Single-object frame.
		events = []json.RawMessage{json.RawMessage(data)}
	}

	for _, ev := range events {
		c.route(ev, receivedAt)
	}
}

func (c *Client) route(ev json.RawMessage, receivedAt time.Time) {
	c.bump(func(s *Stats) { s.Events++ })

	var head eventHeader
	if err := json.Unmarshal(ev, &head); err != nil {
		c.bump(func(s *Stats) { s.Malformed++ })
		c.logger.Debug("malformed event", "error", err)
		return
	}

	switch head.Ev {
	case "T":
		c.trades.Send(engine.RawMessage{Data: ev, ReceivedAt: receivedAt})
		c.bump(func(s *Stats) { s.Trades++ })

	case "Q":
		var wire quoteWire
		if err := json.Unmarshal(ev, &wire); err != nil || wire.Sym == "" {
			c.bump(func(s *Stats) { s.Malformed++ })
			return
		}
		// A one-sided quote is still published; the engine's validity
		// check decides whether it is usable.
		q := model.Quote{UpdatedAt: wire.T}
		if wire.Bid != nil {
			q.Bid = *wire.Bid
		}
		if wire.Ask != nil {
			q.Ask = *wire.Ask
		}
		c.quotes.Set(wire.Sym, q)
		c.bump(func(s *Stats) { s.Quotes++ })

	case "V":
		var wire indexWire
		if err := json.Unmarshal(ev, &wire); err != nil || wire.Val <= 0 {
			c.bump(func(s *Stats) { s.Malformed++ })
			return
		}
		c.spot.Set(wire.Val, receivedAt)
		c.bump(func(s *Stats) { s.IndexVals++ })

	default:
		// Control frames ("status", subscription acks) and anything new.
		c.bump(func(s *Stats) { s.Skipped++ })
	}
}

func (c *Client) bump(f func(*Stats)) {
	c.mu.Lock()
	f(&c.stats)
	c.mu.Unlock()
}
