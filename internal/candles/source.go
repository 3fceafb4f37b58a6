package candles

import (
	"context"
	"sort"
	"sync"
	"time"

	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/model"
)

// Source supplies ordered, closed OHLCV bars per (symbol, exchange,
// timeframe). Implementations own gap handling and bar-close guarantees;
// the engine assumes it is handed only closed, immutable bars in ascending
// time order.
type Source interface {
	GetSeries(ctx context.Context, symbol, exchange, timeframe string, start, end time.Time) ([]model.Candle, error)
}

// Load fetches one timeframe as a frame. Weekly timeframes not natively
// served by the source are synthesized from daily bars in-process.
func Load(ctx context.Context, src Source, symbol, exchange, timeframe string, start, end time.Time) (*Frame, error) {
	if _, err := dsl.ParseTimeframe(timeframe); err != nil {
		return nil, err
	}
	bars, err := src.GetSeries(ctx, symbol, exchange, timeframe, start, end)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 && dsl.IsWeekly(timeframe) {
		daily, err := src.GetSeries(ctx, symbol, exchange, "1d", start, end)
		if err != nil {
			return nil, err
		}
		df, err := FromCandles("1d", daily)
		if err != nil {
			return nil, err
		}
		return ResampleWeekly(df, dsl.WeeklySpan(timeframe))
	}
	return FromCandles(timeframe, bars)
}

// MemorySource is an in-memory Source keyed by (exchange:symbol, timeframe).
// Used to preload backtest windows and as a test fixture.
type MemorySource struct {
	mu   sync.RWMutex
	bars map[string][]model.Candle
}

// NewMemorySource creates an empty in-memory source.
func NewMemorySource() *MemorySource {
	return &MemorySource{bars: make(map[string][]model.Candle)}
}

// Put stores bars for one (symbol, exchange, timeframe), keeping them sorted.
func (m *MemorySource) Put(bars []model.Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bars {
		k := memKey(b.Symbol, b.Exchange, b.Timeframe)
		m.bars[k] = append(m.bars[k], b)
	}
	for k := range m.bars {
		s := m.bars[k]
		sort.Slice(s, func(i, j int) bool { return s[i].TS.Before(s[j].TS) })
	}
}

// GetSeries returns the stored bars within [start, end]. Zero bounds are
// open-ended.
func (m *MemorySource) GetSeries(_ context.Context, symbol, exchange, timeframe string, start, end time.Time) ([]model.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Candle
	for _, b := range m.bars[memKey(symbol, exchange, timeframe)] {
		if !start.IsZero() && b.TS.Before(start) {
			continue
		}
		if !end.IsZero() && b.TS.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

func memKey(symbol, exchange, timeframe string) string {
	return exchange + ":" + symbol + ":" + timeframe
}
