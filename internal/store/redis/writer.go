package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"alert-systemv1/internal/model"
)

const (
	// Per-instrument cache: enough bars for the deepest indicator lookback
	// plus warm-up.
	cacheMaxBars     = 2000
	defaultCacheTTL  = 30 * time.Minute
	alertChannelBase = "pub:alerts"
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
}

// Writer caches closed bars in Redis sorted sets and publishes triggered
// alerts over pub/sub.
type Writer struct {
	client *goredis.Client
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Writer{client: client}, nil
}

// Run reads closed bars from candleCh and writes them to the cache.
// Blocks until ctx is cancelled or candleCh is closed.
func (w *Writer) Run(ctx context.Context, candleCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case candle, ok := <-candleCh:
			if !ok {
				return
			}
			w.writeCandle(ctx, candle)
		}
	}
}

// candleKey builds the sorted-set key for one instrument and timeframe.
func candleKey(exchange, symbol, timeframe string) string {
	return "candles:" + exchange + ":" + symbol + ":" + timeframe
}

// writeCandle appends one bar to its instrument's sorted set (score =
// bucket start unix) and trims history beyond cacheMaxBars.
func (w *Writer) writeCandle(ctx context.Context, c model.Candle) {
	key := candleKey(c.Exchange, c.Symbol, c.Timeframe)
	ts := c.TS.Unix()

	pipe := w.client.Pipeline()
	// Replace any bar already cached at this bucket before inserting.
	pipe.ZRemRangeByScore(ctx, key, strconv.FormatInt(ts, 10), strconv.FormatInt(ts, 10))
	pipe.ZAdd(ctx, key, &goredis.Z{Score: float64(ts), Member: string(c.JSON())})
	pipe.ZRemRangeByRank(ctx, key, 0, int64(-cacheMaxBars-1))
	pipe.Expire(ctx, key, defaultCacheTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] write candle %s: %v", key, err)
	}
}

// PublishAlert fans a triggered alert out to subscribers on the
// per-instrument alert channel.
func (w *Writer) PublishAlert(ctx context.Context, res model.AlertResult) error {
	ch := alertChannelBase + ":" + res.Exchange + ":" + res.Symbol
	if err := w.client.Publish(ctx, ch, string(res.JSON())).Err(); err != nil {
		return fmt.Errorf("redis publish alert: %w", err)
	}
	return nil
}

// Close closes the client.
func (w *Writer) Close() error {
	return w.client.Close()
}
