package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"alert-systemv1/config"
	"alert-systemv1/internal/candles"
	"alert-systemv1/internal/feed"
	"alert-systemv1/internal/logger"
	"alert-systemv1/internal/markethours"
	"alert-systemv1/internal/metrics"
	"alert-systemv1/internal/model"
	"alert-systemv1/internal/notification"
	"alert-systemv1/internal/pointwise"
	"alert-systemv1/internal/portfolio"
	"alert-systemv1/internal/ringbuf"
	"alert-systemv1/internal/rules"
	redisstore "alert-systemv1/internal/store/redis"
	sqlitestore "alert-systemv1/internal/store/sqlite"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[alertd] starting...")

	cfg := config.Load()
	lg := logger.Init("alertd", logger.ParseLevel(cfg.LogLevel))
	limits := cfg.Limits()
	enabledTFs := cfg.ParseTFs()
	log.Printf("[alertd] enabled TFs: %v (base %s)", enabledTFs, cfg.BaseTimeframe)

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite archive (off hot path) ----
	os.MkdirAll("data", 0o755)
	sqlWriter, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[alertd] sqlite init failed: %v", err)
	}
	defer sqlWriter.Close()
	sqlReader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[alertd] sqlite reader init failed: %v", err)
	}
	defer sqlReader.Close()
	health.SetSQLiteOK(true)
	log.Println("[alertd] sqlite ready")

	// ---- Redis: candle cache + alert pub/sub, degraded to SQLite-only on failure ----
	var source candles.Source = sqlReader
	var bufWriter *redisstore.BufferedWriter
	var cache *redisstore.Cache
	var writeBreaker *redisstore.Breaker

	redisWriter, err := redisstore.New(redisstore.WriterConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[alertd] WARNING: redis init failed: %v (continuing without redis)", err)
		health.SetRedisConnected(false)
	} else {
		cache, err = redisstore.NewCache(redisstore.CacheConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		}, sqlReader, prom)
		if err != nil {
			log.Fatalf("[alertd] redis cache init failed: %v", err)
		}
		source = cache
		cb := redisstore.NewBreaker(5, 10*time.Second)
		cb.OnStateChange = func(from, to redisstore.State) {
			health.SetRedisBreaker(to.String())
		}
		bufWriter = redisstore.NewBufferedWriter(ctx, redisWriter, cb, 10000)
		writeBreaker = cb
		health.SetRedisConnected(true)
		log.Println("[alertd] redis ready")
	}

	if redisWriter != nil {
		health.StartLivenessChecker(ctx, redisWriter.Client(), sqlReader.DB(), 10*time.Second)
	} else {
		health.StartLivenessChecker(ctx, nil, sqlReader.DB(), 10*time.Second)
	}

	// ---- Portfolio metrics for rule identifiers ----
	pf := portfolio.New()
	rm := portfolio.NewRiskManager(portfolio.RiskLimits{}, 0)
	view := pf.View(rm)

	// ---- Rule runner ----
	eval := pointwise.New(source, limits,
		pointwise.WithPortfolio(view),
		pointwise.WithLogger(lg),
		pointwise.WithMetrics(prom),
	)
	runner := rules.NewRunner(eval, limits, lg, prom, 256)

	var ruleSet []*rules.Rule
	if cfg.RulesPath != "" {
		ruleSet, err = rules.LoadFile(cfg.RulesPath)
		if err != nil {
			log.Fatalf("[alertd] load rules: %v", err)
		}
	} else {
		ruleSet = rules.Library()
	}
	ruleNames := make(map[string]string, len(ruleSet))
	for _, r := range ruleSet {
		if err := runner.Register(r); err != nil {
			log.Fatalf("[alertd] rule %q rejected: %v", r.ID, err)
		}
		ruleNames[r.ID] = r.Name
	}
	health.SetRulesLoaded(runner.Len())
	log.Printf("[alertd] %d rules loaded", runner.Len())

	// ---- Notification backends ----
	backends := []notification.Notifier{notification.NewLogNotifier()}
	if cfg.WebhookURL != "" {
		backends = append(backends, notification.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		backends = append(backends, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	notifier := notification.NewMulti(prom, backends...)

	// ---- Pipeline channels ----
	feedCh := make(chan model.Candle, 4096)    // raw bars off the wire
	builderIn := make(chan model.Candle, 4096) // base bars into the TF builder
	closedCh := make(chan model.Candle, 4096)  // all closed bars (base + derived)

	// ---- Ring buffer decouples the WS reader from the pipeline ----
	ring := ringbuf.New(8192, prom.RingOverflow)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case bar, ok := <-feedCh:
				if !ok {
					return
				}
				ring.Push(bar)
			}
		}
	}()

	// Pump: drain the ring into the builder and the closed-bar stream.
	go func() {
		for {
			bar, ok := ring.Pop()
			if !ok {
				select {
				case <-ctx.Done():
					return
				case <-time.After(time.Millisecond):
				}
				continue
			}
			prom.BarsIngested.Inc()
			prom.BarLag.Set(time.Since(bar.TS).Seconds())
			health.SetLastBarTime(bar.TS)

			select {
			case closedCh <- bar:
			default:
				prom.FeedDrops.Inc()
			}
			select {
			case builderIn <- bar:
			default:
				prom.FeedDrops.Inc()
			}
		}
	}()

	// ---- TF builder derives the higher timeframes from base bars ----
	builder, err := feed.NewBuilder(enabledTFs)
	if err != nil {
		log.Fatalf("[alertd] tf builder init failed: %v", err)
	}
	builder.OnStale = func() {
		lg.Warn("stale bar rejected by tf builder")
	}
	go builder.Run(ctx, builderIn, closedCh)

	// ---- Persist + fan out closed bars ----
	fanout := feed.NewFanOut(4096)
	fanout.OnDrop = func(int) {
		prom.FeedDrops.Inc()
	}
	sqliteCh := fanout.Subscribe()
	runnerCh := fanout.Subscribe()
	fanoutIn := make(chan model.Candle, 4096)
	go fanout.Run(ctx, fanoutIn)
	go sqlWriter.Run(ctx, sqliteCh)
	go runner.Run(ctx, runnerCh)

	// The redis write happens before the bar reaches the runner so the
	// evaluator's read-through cache already holds the bar it fires on.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case bar, ok := <-closedCh:
				if !ok {
					return
				}
				pf.UpdatePrice(bar)
				if bufWriter != nil {
					bufWriter.WriteCandle(bar)
				}
				select {
				case fanoutIn <- bar:
				default:
					prom.FeedDrops.Inc()
				}
			}
		}
	}()

	// ---- Alert sink: archive, publish, notify ----
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case res, ok := <-runner.Alerts():
				if !ok {
					return
				}
				if _, err := sqlWriter.SaveAlert(res); err != nil {
					lg.Error("alert archive failed", "rule", res.RuleID, "err", err)
				}
				if bufWriter != nil {
					if err := bufWriter.PublishAlert(res); err != nil {
						lg.Error("alert publish failed", "rule", res.RuleID, "err", err)
					}
				}
				notifier.Send(ctx, notification.Event{
					Level:    notification.AlertInfo,
					RuleName: ruleNames[res.RuleID],
					Result:   res,
				})
			}
		}
	}()

	// ---- Feed lifecycle ----
	ingest, err := feed.New(feed.Config{
		URL:               cfg.FeedURL,
		ReconnectDelay:    2 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
	})
	if err != nil {
		log.Fatalf("[alertd] feed init failed: %v", err)
	}
	ingest.OnReconnect = func() {
		prom.WSReconnects.Inc()
	}
	ingest.OnDrop = func() {
		prom.FeedDrops.Inc()
	}

	if cfg.MarketHoursOnly {
		// Connect at each market open, disconnect at close.
		go func() {
			for {
				now := time.Now()
				if !markethours.IsMarketOpen(now) {
					next := markethours.NextOpen(now)
					log.Printf("[alertd] market closed. %s", markethours.StatusString(now))
					log.Printf("[alertd] sleeping %v until next open %s",
						next.Sub(now).Truncate(time.Second), next.In(markethours.IST).Format("Mon 15:04"))
					health.SetWSConnected(false)
					select {
					case <-ctx.Done():
						return
					case <-time.After(next.Sub(now)):
					}
				}

				closeTime := markethours.TodayClose(time.Now())
				wsCtx, wsCancel := context.WithDeadline(ctx, closeTime)
				health.SetWSConnected(true)
				log.Printf("[alertd] feed connected until %s", closeTime.In(markethours.IST).Format("15:04:05"))

				if err := ingest.Start(wsCtx, feedCh); err != nil {
					log.Printf("[alertd] feed session ended: %v", err)
				}
				wsCancel()
				health.SetWSConnected(false)

				if ctx.Err() != nil {
					return
				}
			}
		}()
	} else {
		health.SetWSConnected(true)
		go func() {
			if err := ingest.Start(ctx, feedCh); err != nil {
				log.Printf("[alertd] feed error: %v", err)
				health.SetWSConnected(false)
			}
		}()
	}

	log.Printf("[alertd] pipeline ready: [WS feed] -> [ring] -> [TF builder] -> [Redis/SQLite] -> [rule runner]")

	// ---- Wait for shutdown signal ----
	<-sigCh
	log.Println("[alertd] shutdown signal received, cleaning up...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)

	if writeBreaker != nil {
		st := writeBreaker.Stats()
		log.Printf("[alertd] redis write breaker: state=%s trips=%d pending=%d",
			st.State, st.Trips, bufWriter.Pending())
	}
	if cache != nil {
		cache.Close()
	}
	if redisWriter != nil {
		redisWriter.Close()
	}
	log.Println("[alertd] shutdown complete.")
}
