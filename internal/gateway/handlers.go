package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"alert-systemv1/internal/rules"
	sqlitestore "alert-systemv1/internal/store/sqlite"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the gateway's HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, reader *sqlitestore.Reader, ruleSet []*rules.Rule) {
	// WebSocket: live alert stream. A reconnecting client passes the last
	// seq it saw and receives the buffered alerts since then first.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[alertgw] ws upgrade error: %v", err)
			return
		}
		fromSeq, _ := strconv.ParseInt(r.URL.Query().Get("from_seq"), 10, 64)
		hub.HandleWS(conn, fromSeq)
	})

	// REST: recent fired alerts, newest first.
	mux.HandleFunc("/api/alerts", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 || limit > 1000 {
			limit = 100
		}
		records, err := reader.ReadAlerts(r.Context(), limit)
		if err != nil {
			http.Error(w, `{"error":"alert query failed"}`, http.StatusInternalServerError)
			log.Printf("[alertgw] read alerts: %v", err)
			return
		}
		json.NewEncoder(w).Encode(records)
	})

	// REST: the armed rule set (conditions in wire format).
	mux.HandleFunc("/api/rules", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(ruleSet)
	})

	// Health: stream stats and delivery latency percentiles.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		w.Header().Set("Content-Type", "application/json")
		p50, p95, p99 := hub.Latency.Percentiles()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":         "ok",
			"clients":        hub.ClientCount(),
			"seq":            hub.Seq(),
			"latency_p50_ms": p50,
			"latency_p95_ms": p95,
			"latency_p99_ms": p99,
		})
	})
}
