package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"alert-systemv1/internal/candles"
	"alert-systemv1/internal/metrics"
	"alert-systemv1/internal/model"
)

// CacheConfig configures the read-through candle cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
}

// Cache is a read-through candle cache: windows are served from Redis
// sorted sets when present and fall through to the backing source (the
// SQLite archive) on a miss, backfilling the cache on the way out. When
// Redis is unhealthy the circuit breaker routes reads straight to the
// backing source.
type Cache struct {
	client *goredis.Client
	source candles.Source
	cb     *Breaker
	met    *metrics.Metrics
}

// NewCache creates the cache in front of a backing source and pings Redis.
func NewCache(cfg CacheConfig, source candles.Source, met *metrics.Metrics) (*Cache, error) {
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

	cb := NewBreaker(5, 10*time.Second)
	// A missing key or a cancelled caller says nothing about Redis health.
	cb.Ignore = func(err error) bool {
		return err == goredis.Nil ||
			errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded)
	}
	cb.OnStateChange = func(from, to State) {
		log.Printf("[redis-cache] breaker %s -> %s", from, to)
		if met != nil {
			met.RedisBreakerState.Set(float64(to))
		}
	}

	log.Printf("[redis-cache] connected to %s", cfg.Addr)
	return &Cache{client: client, source: source, cb: cb, met: met}, nil
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// GetSeries implements the candle source interface with read-through
// caching. Zero bounds are open-ended.
func (c *Cache) GetSeries(ctx context.Context, symbol, exchange, timeframe string, start, end time.Time) ([]model.Candle, error) {
	var cached []model.Candle
	err := c.cb.Do(func() error {
		var rerr error
		cached, rerr = c.readWindow(ctx, symbol, exchange, timeframe, start, end)
		return rerr
	})
	if err == nil && len(cached) > 0 {
		if c.met != nil {
			c.met.RedisCacheHits.Inc()
		}
		return cached, nil
	}
	if err != nil && err != ErrBreakerOpen {
		log.Printf("[redis-cache] read %s:%s:%s: %v", exchange, symbol, timeframe, err)
	}
	if c.met != nil {
		c.met.RedisCacheMisses.Inc()
	}

	bars, err := c.source.GetSeries(ctx, symbol, exchange, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) > 0 {
		c.backfill(ctx, symbol, exchange, timeframe, bars)
	}
	return bars, nil
}

// readWindow fetches the cached window, decoding each member.
func (c *Cache) readWindow(ctx context.Context, symbol, exchange, timeframe string, start, end time.Time) ([]model.Candle, error) {
	key := candleKey(exchange, symbol, timeframe)
	min, max := "-inf", "+inf"
	if !start.IsZero() {
		min = strconv.FormatInt(start.Unix(), 10)
	}
	if !end.IsZero() {
		max = strconv.FormatInt(end.Unix(), 10)
	}

	begin := time.Now()
	members, err := c.client.ZRangeByScore(ctx, key, &goredis.ZRangeBy{Min: min, Max: max}).Result()
	if c.met != nil {
		c.met.RedisReadDur.Observe(time.Since(begin).Seconds())
	}
	if err != nil {
		return nil, err
	}

	out := make([]model.Candle, 0, len(members))
	for _, m := range members {
		var candle model.Candle
		if err := json.Unmarshal([]byte(m), &candle); err != nil {
			return nil, fmt.Errorf("decode cached candle: %w", err)
		}
		out = append(out, candle)
	}
	return out, nil
}

// backfill populates the cache after a miss; failures only log, the caller
// already has the data.
func (c *Cache) backfill(ctx context.Context, symbol, exchange, timeframe string, bars []model.Candle) {
	err := c.cb.Do(func() error {
		key := candleKey(exchange, symbol, timeframe)
		pipe := c.client.Pipeline()
		for i := range bars {
			b := bars[i]
			pipe.ZAdd(ctx, key, &goredis.Z{Score: float64(b.TS.Unix()), Member: string(b.JSON())})
		}
		pipe.ZRemRangeByRank(ctx, key, 0, int64(-cacheMaxBars-1))
		pipe.Expire(ctx, key, defaultCacheTTL)
		_, perr := pipe.Exec(ctx)
		return perr
	})
	if err != nil && err != ErrBreakerOpen {
		log.Printf("[redis-cache] backfill %s:%s:%s: %v", exchange, symbol, timeframe, err)
	}
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
