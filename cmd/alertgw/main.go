// cmd/alertgw serves the alert stream to frontends: it subscribes to the
// Redis channels alertd publishes fired alerts on, fans them out over
// WebSocket with replay-on-reconnect, and exposes the alert archive and
// the armed rule set over REST.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/go-redis/redis/v8"

	"alert-systemv1/config"
	"alert-systemv1/internal/gateway"
	"alert-systemv1/internal/rules"
	sqlitestore "alert-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[alertgw] starting...")

	cfg := config.Load()
	listenAddr := getEnv("GATEWAY_ADDR", ":8080")

	// Redis carries the live alert stream.
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("[alertgw] redis connection failed: %v", err)
	}
	log.Printf("[alertgw] redis connected at %s", cfg.RedisAddr)

	// SQLite serves the alert archive for REST reads.
	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[alertgw] sqlite open failed: %v", err)
	}
	defer reader.Close()

	// The rule set shown over REST mirrors what alertd runs.
	var ruleSet []*rules.Rule
	if cfg.RulesPath != "" {
		ruleSet, err = rules.LoadFile(cfg.RulesPath)
		if err != nil {
			log.Fatalf("[alertgw] load rules: %v", err)
		}
	} else {
		ruleSet = rules.Library()
	}

	hub := gateway.NewHub(rdb)
	go hub.Run(ctx)

	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, hub, reader, ruleSet)

	srv := &http.Server{Addr: listenAddr, Handler: mux}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("[alertgw] serving at http://localhost%s", listenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[alertgw] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[alertgw] shutting down...")
	cancel()
	srv.Shutdown(context.Background())
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}
