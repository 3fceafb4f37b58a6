// cmd/barsim — Demo WebSocket bar server.
// Broadcasts simulated closed OHLCV bars for testing alertd without a real
// market-data feed. Each message is one model.Candle as JSON.
//
// Simulated time runs faster than wall time: one base-timeframe bar is
// emitted every BAR_INTERVAL_MS of real time.
//
// Config (env vars):
//
//	BAR_SERVER_ADDR  — listen address (default: ":9001")
//	BAR_SYMBOLS      — comma-separated SYMBOL:EXCHANGE pairs (default: "RELIANCE:NSE")
//	BAR_TF           — timeframe of emitted bars (default: "1m")
//	BAR_INTERVAL_MS  — real milliseconds per simulated bar (default: "1000")
package main

import (
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/model"
)

// instrument holds per-symbol simulation state.
type instrument struct {
	Symbol   string
	Exchange string
	Last     float64 // current simulated close price
}

// ─── Hub ──────────────────────────────────────────────────────────────────────

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client — drop bar
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[barsim] upgrade error: %v", err)
			return
		}
		log.Printf("[barsim] client connected: %s", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			log.Printf("[barsim] client disconnected: %s", r.RemoteAddr)
		}()

		// Write pump: sends bar JSON to this client.
		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

// ─── Bar generator ────────────────────────────────────────────────────────────

// nextBar advances the instrument one bar with a small random walk and
// synthesizes an OHLC envelope around the path.
func nextBar(inst *instrument, tf string, ts time.Time, rng *rand.Rand) model.Candle {
	open := inst.Last
	drift := (rng.Float64()*0.6 - 0.3) / 100.0 // ±0.3% per bar
	cls := open * (1 + drift)
	if cls < 1 {
		cls = 1
	}
	hi, lo := open, cls
	if hi < lo {
		hi, lo = lo, hi
	}
	hi *= 1 + rng.Float64()*0.001
	lo *= 1 - rng.Float64()*0.001
	inst.Last = cls

	return model.Candle{
		Symbol:    inst.Symbol,
		Exchange:  inst.Exchange,
		Timeframe: tf,
		TS:        ts,
		Open:      open,
		High:      hi,
		Low:       lo,
		Close:     cls,
		Volume:    float64(rng.Intn(100000) + 1000),
	}
}

func runGenerator(h *hub, instruments []instrument, tf string, intervalMs int) {
	dur, err := dsl.ParseTimeframe(tf)
	if err != nil {
		log.Fatalf("[barsim] bad BAR_TF: %v", err)
	}

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	simTime := time.Now().UTC().Truncate(dur)

	for range ticker.C {
		for i := range instruments {
			bar := nextBar(&instruments[i], tf, simTime, rng)
			h.broadcast(bar.JSON())
		}
		simTime = simTime.Add(dur)
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[barsim] starting demo bar server...")

	// Config
	addr := envOrDefault("BAR_SERVER_ADDR", ":9001")
	symbolsEnv := envOrDefault("BAR_SYMBOLS", "RELIANCE:NSE")
	tf := envOrDefault("BAR_TF", "1m")
	intervalMs := envIntOrDefault("BAR_INTERVAL_MS", 1000)

	instruments := parseInstruments(symbolsEnv)
	if len(instruments) == 0 {
		log.Fatalf("[barsim] no instruments configured via BAR_SYMBOLS")
	}
	log.Printf("[barsim] instruments: %+v", instruments)
	log.Printf("[barsim] emitting one %s bar per %dms", tf, intervalMs)

	h := newHub()

	go runGenerator(h, instruments, tf, intervalMs)

	http.HandleFunc("/bars", wsHandler(h))
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"barsim"}`)
	})

	log.Printf("[barsim] listening on %s  (WebSocket: ws://localhost%s/bars)", addr, addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("[barsim] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func parseInstruments(s string) []instrument {
	// Rough starting prices so the walks look plausible.
	defaultPrices := map[string]float64{
		"RELIANCE": 2950.0,
		"TCS":      4100.0,
		"INFY":     1850.0,
		"NIFTY50":  25660.0,
	}

	var result []instrument
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		seg := strings.SplitN(part, ":", 2)
		if len(seg) != 2 {
			log.Printf("[barsim] skipping invalid symbol entry: %q", part)
			continue
		}
		symbol, exchange := strings.TrimSpace(seg[0]), strings.TrimSpace(seg[1])
		price := defaultPrices[symbol]
		if price == 0 {
			price = 1000.0
		}
		result = append(result, instrument{
			Symbol:   symbol,
			Exchange: exchange,
			Last:     price,
		})
	}
	return result
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
