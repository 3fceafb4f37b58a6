// Package candles defines the candle-source boundary consumed by the rule
// engine: column-oriented per-timeframe bar frames, the Source interface the
// storage/feed adapters implement, and in-process weekly resampling from
// daily bars.
package candles

import (
	"time"

	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/indicator"
	"alert-systemv1/internal/model"
)

// Frame holds the OHLCV history of one timeframe as equal-length columns,
// time-ordered ascending. Times are bucket start times; a bar closes at
// Times[i] + Duration.
type Frame struct {
	Timeframe string
	Duration  time.Duration
	Times     []time.Time
	Open      []float64
	High      []float64
	Low       []float64
	Close     []float64
	Volume    []float64

	// closes overrides the computed close times; resampled weekly frames
	// set it because their buckets close with their last daily bar, not a
	// full span after the bucket start.
	closes []time.Time
}

// Len returns the number of bars.
func (f *Frame) Len() int {
	return len(f.Times)
}

// CloseTimes returns the close time of every bar.
func (f *Frame) CloseTimes() []time.Time {
	if f.closes != nil {
		return f.closes
	}
	out := make([]time.Time, len(f.Times))
	for i, t := range f.Times {
		out[i] = t.Add(f.Duration)
	}
	return out
}

// Field resolves a price/volume field or derived source name to a column.
// Derived sources allocate a fresh slice.
func (f *Frame) Field(name string) ([]float64, bool) {
	switch name {
	case "open":
		return f.Open, true
	case "high":
		return f.High, true
	case "low":
		return f.Low, true
	case "close":
		return f.Close, true
	case "volume":
		return f.Volume, true
	case "hl2":
		return f.derive(func(i int) float64 { return (f.High[i] + f.Low[i]) / 2 }), true
	case "hlc3":
		return f.derive(func(i int) float64 { return (f.High[i] + f.Low[i] + f.Close[i]) / 3 }), true
	case "ohlc4":
		return f.derive(func(i int) float64 {
			return (f.Open[i] + f.High[i] + f.Low[i] + f.Close[i]) / 4
		}), true
	default:
		return nil, false
	}
}

func (f *Frame) derive(fn func(i int) float64) []float64 {
	out := make([]float64, f.Len())
	for i := range out {
		out[i] = fn(i)
	}
	return out
}

// Truncate returns a copy of the frame containing only bars [0, n).
// Used by causality checks and tests; columns are shared sub-slices.
func (f *Frame) Truncate(n int) *Frame {
	if n > f.Len() {
		n = f.Len()
	}
	t := &Frame{
		Timeframe: f.Timeframe,
		Duration:  f.Duration,
		Times:     f.Times[:n],
		Open:      f.Open[:n],
		High:      f.High[:n],
		Low:       f.Low[:n],
		Close:     f.Close[:n],
		Volume:    f.Volume[:n],
	}
	if f.closes != nil {
		t.closes = f.closes[:n]
	}
	return t
}

// FromCandles builds a frame from time-ordered bars of one timeframe.
func FromCandles(timeframe string, bars []model.Candle) (*Frame, error) {
	dur, err := dsl.ParseTimeframe(timeframe)
	if err != nil {
		return nil, err
	}
	f := &Frame{
		Timeframe: timeframe,
		Duration:  dur,
		Times:     make([]time.Time, len(bars)),
		Open:      make([]float64, len(bars)),
		High:      make([]float64, len(bars)),
		Low:       make([]float64, len(bars)),
		Close:     make([]float64, len(bars)),
		Volume:    make([]float64, len(bars)),
	}
	for i, b := range bars {
		f.Times[i] = b.TS
		f.Open[i] = b.Open
		f.High[i] = b.High
		f.Low[i] = b.Low
		f.Close[i] = b.Close
		f.Volume[i] = b.Volume
	}
	return f, nil
}

// LastTwo returns the last two values of a column as (prev, now); missing
// when fewer bars exist.
func LastTwo(col []float64) (prev, now float64) {
	prev, now = indicator.Missing(), indicator.Missing()
	if n := len(col); n >= 1 {
		now = col[n-1]
		if n >= 2 {
			prev = col[n-2]
		}
	}
	return prev, now
}
