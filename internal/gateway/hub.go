// Package gateway streams fired alerts to WebSocket clients. It subscribes
// to the Redis alert channels the daemon publishes on, wraps each alert in
// a sequenced envelope, and fans it out to every connected client. A replay
// buffer lets clients that detect a sequence gap backfill what they missed.
package gateway

import (
	"bytes"
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
)

// alertPattern matches every per-instrument alert channel the daemon
// publishes on ("pub:alerts:<exchange>:<symbol>").
const alertPattern = "pub:alerts:*"

// Hub manages WebSocket clients and the Redis alert subscription.
type Hub struct {
	rdb *goredis.Client

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64

	replay  *ReplayBuffer
	Latency *LatencyTracker
}

// NewHub creates a Hub over the given Redis client.
func NewHub(rdb *goredis.Client) *Hub {
	return &Hub{
		rdb:     rdb,
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(1000),
		Latency: NewLatencyTracker(10000),
	}
}

// Run subscribes to the alert channels and fans messages out.
// Blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.rdb.PSubscribe(ctx, alertPattern)
	defer pubsub.Close()

	log.Printf("[alertgw] subscribed to %s", alertPattern)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast(msg.Channel, []byte(msg.Payload))
		}
	}
}

// broadcast wraps an alert payload in a sequenced envelope and sends it to
// every client. The envelope is hand-built: this is the hot path and the
// payload is already JSON.
func (h *Hub) broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	if h.Latency != nil {
		if barTS := extractBarTime(data); !barTS.IsZero() {
			if d := now.Sub(barTS); d >= 0 {
				h.Latency.Record(d)
			}
		}
	}

	h.mu.Lock()
	h.seq++
	seq := h.seq
	h.mu.Unlock()

	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","alert":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')

	h.replay.Push(seq, buf)

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- buf:
		default: // slow client — drop; the replay buffer covers the gap
		}
	}
	h.mu.RUnlock()
}

// HandleWS registers an upgraded connection and starts its pumps. Clients
// reconnecting after a drop pass the last seq they saw and receive the
// buffered alerts since then before live traffic.
func (h *Hub) HandleWS(conn *websocket.Conn, fromSeq int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[alertgw] ws client connected (%d total)", count)

	if fromSeq > 0 {
		for _, env := range h.replay.Since(fromSeq) {
			select {
			case client.send <- env:
			default:
			}
		}
	}

	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the current global envelope sequence number.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// extractBarTime pulls the bar_time field out of an alert payload without a
// full decode; returns the zero time when absent.
func extractBarTime(data []byte) time.Time {
	const key = `"bar_time":"`
	i := bytes.Index(data, []byte(key))
	if i < 0 {
		return time.Time{}
	}
	start := i + len(key)
	end := start
	for end < len(data) && data[end] != '"' {
		end++
	}
	if end >= len(data) {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, string(data[start:end]))
	if err != nil {
		return time.Time{}
	}
	return t
}
