package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the alert engine.
type Metrics struct {
	// Rule evaluation
	EvalTotal       *prometheus.CounterVec // labels: mode=pointwise|vectorized
	EvalDuration    prometheus.Histogram
	EvalTimeouts    prometheus.Counter
	LimitRejections prometheus.Counter
	CacheHits       prometheus.Counter
	AlertsTriggered prometheus.Counter

	// Candle feed
	BarsIngested prometheus.Counter
	WSReconnects prometheus.Counter
	FeedDrops    prometheus.Counter
	RingOverflow prometheus.Counter
	BarLag       prometheus.Gauge

	// Storage
	RedisReadDur      prometheus.Histogram
	RedisCacheHits    prometheus.Counter
	RedisCacheMisses  prometheus.Counter
	RedisBreakerState prometheus.Gauge // 0 closed, 1 open, 2 half-open
	SQLiteQueryDur    prometheus.Histogram
	SQLiteCommitDur   prometheus.Histogram

	// Notification delivery
	NotifyTotal    *prometheus.CounterVec // labels: channel
	NotifyFailures *prometheus.CounterVec // labels: channel
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		EvalTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_evaluations_total",
			Help: "Rule evaluations completed (by mode)",
		}, []string{"mode"}),
		EvalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertd_evaluation_duration_seconds",
			Help:    "Rule evaluation latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),
		EvalTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_evaluation_timeouts_total",
			Help: "Evaluations aborted by the wall-clock budget",
		}),
		LimitRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_limit_rejections_total",
			Help: "ASTs rejected by the safety validator",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_series_cache_hits_total",
			Help: "Memoized sub-expression series served from cache",
		}),
		AlertsTriggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_alerts_triggered_total",
			Help: "Rules that matched and produced an alert",
		}),

		BarsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_bars_ingested_total",
			Help: "Closed bars received from the live feed",
		}),
		WSReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_ws_reconnects_total",
			Help: "WebSocket feed reconnection attempts",
		}),
		FeedDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_feed_drops_total",
			Help: "Bars dropped because a subscriber channel was full",
		}),
		RingOverflow: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_ring_overflow_total",
			Help: "Bar history ring buffer overwrites",
		}),
		BarLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertd_bar_lag_seconds",
			Help: "Lag between bar close time and ingestion time",
		}),

		RedisReadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertd_redis_read_duration_seconds",
			Help:    "Redis candle cache read latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_redis_cache_hits_total",
			Help: "Candle windows served from the Redis cache",
		}),
		RedisCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "alertd_redis_cache_misses_total",
			Help: "Candle windows that fell through to SQLite",
		}),
		RedisBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "alertd_redis_breaker_state",
			Help: "Redis circuit breaker state (0 closed, 1 open, 2 half-open)",
		}),
		SQLiteQueryDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertd_sqlite_query_duration_seconds",
			Help:    "SQLite candle query latency",
			Buckets: prometheus.DefBuckets,
		}),
		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "alertd_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),

		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_notifications_total",
			Help: "Alert notifications attempted (by channel)",
		}, []string{"channel"}),
		NotifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alertd_notification_failures_total",
			Help: "Alert notifications that failed delivery (by channel)",
		}, []string{"channel"}),
	}

	prometheus.MustRegister(
		m.EvalTotal,
		m.EvalDuration,
		m.EvalTimeouts,
		m.LimitRejections,
		m.CacheHits,
		m.AlertsTriggered,
		m.BarsIngested,
		m.WSReconnects,
		m.FeedDrops,
		m.RingOverflow,
		m.BarLag,
		m.RedisReadDur,
		m.RedisCacheHits,
		m.RedisCacheMisses,
		m.RedisBreakerState,
		m.SQLiteQueryDur,
		m.SQLiteCommitDur,
		m.NotifyTotal,
		m.NotifyFailures,
	)

	return m
}

// HealthStatus represents the daemon's health.
type HealthStatus struct {
	mu sync.RWMutex

	WSConnected    bool      `json:"ws_connected"`
	LastBarTime    time.Time `json:"last_bar_time"`
	RedisConnected bool      `json:"redis_connected"`
	RedisBreaker   string    `json:"redis_breaker,omitempty"` // write-path breaker state
	SQLiteOK       bool      `json:"sqlite_ok"`
	RulesLoaded    int       `json:"rules_loaded"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetWSConnected(v bool) {
	h.mu.Lock()
	h.WSConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBarTime(t time.Time) {
	h.mu.Lock()
	h.LastBarTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) {
	h.mu.Lock()
	h.RedisConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisBreaker(state string) {
	h.mu.Lock()
	h.RedisBreaker = state
	h.mu.Unlock()
}

func (h *HealthStatus) SetSQLiteOK(v bool) {
	h.mu.Lock()
	h.SQLiteOK = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRulesLoaded(n int) {
	h.mu.Lock()
	h.RulesLoaded = n
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	if !h.WSConnected || !h.RedisConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.RedisConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	barAge := ""
	if !h.LastBarTime.IsZero() {
		barAge = time.Since(h.LastBarTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		WSConnected     bool    `json:"ws_connected"`
		LastBarTime     string  `json:"last_bar_time"`
		BarAge          string  `json:"bar_age"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RulesLoaded     int     `json:"rules_loaded"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		WSConnected:     h.WSConnected,
		LastBarTime:     h.LastBarTime.Format(time.RFC3339),
		BarAge:          barAge,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RulesLoaded:     h.RulesLoaded,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
