// Package feed ingests closed OHLCV bars from a live WebSocket stream and
// distributes them to the alert pipeline. The wire format is plain JSON,
// one model.Candle per message:
//
//	{"symbol":"RELIANCE","exchange":"NSE","timeframe":"1m","ts":"...","open":...}
//
// The upstream server owns bar-close semantics; everything arriving here is
// treated as closed and immutable.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"alert-systemv1/internal/model"
)

// Config holds configuration for the WebSocket bar ingest.
type Config struct {
	// URL of the bar stream, e.g. "ws://localhost:9001/bars"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
}

// Ingest connects to the bar stream and pushes closed bars into barCh.
type Ingest struct {
	cfg Config

	// Optional hooks for metrics.
	OnReconnect func()
	OnBar       func(model.Candle)
	OnDrop      func()
}

// New creates a new Ingest. Returns an error if the URL is unparseable.
func New(cfg Config) (*Ingest, error) {
	cfg.defaults()
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, err
	}
	return &Ingest{cfg: cfg}, nil
}

// Start connects to the stream and pumps bars into barCh.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
func (ing *Ingest) Start(ctx context.Context, barCh chan<- model.Candle) error {
	delay := ing.cfg.ReconnectDelay

	for {
		// Check context before each attempt
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := ing.runOnce(ctx, barCh)
		if err == nil {
			// Context cancelled cleanly
			return nil
		}

		log.Printf("[feed] disconnected (%v), reconnecting in %s...", err, delay)
		if ing.OnReconnect != nil {
			ing.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		// Exponential backoff
		delay *= 2
		if delay > ing.cfg.MaxReconnectDelay {
			delay = ing.cfg.MaxReconnectDelay
		}
	}
}

// runOnce makes a single connection attempt and reads until disconnect or ctx cancel.
func (ing *Ingest) runOnce(ctx context.Context, barCh chan<- model.Candle) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, ing.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	log.Printf("[feed] connected to %s", ing.cfg.URL)

	// Async context watcher — closes the connection when ctx is cancelled.
	go func() {
		<-ctx.Done()
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			// Check if it's a context cancellation
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		var bar model.Candle
		if err := json.Unmarshal(raw, &bar); err != nil {
			log.Printf("[feed] parse error: %v (raw: %s)", err, raw)
			continue
		}

		if bar.Symbol == "" || bar.Timeframe == "" {
			log.Printf("[feed] skipping bar with empty symbol or timeframe")
			continue
		}
		if ing.OnBar != nil {
			ing.OnBar(bar)
		}

		select {
		case barCh <- bar:
		default:
			if ing.OnDrop != nil {
				ing.OnDrop()
			}
			log.Println("[feed] barCh full, dropping bar")
		}
	}
}
