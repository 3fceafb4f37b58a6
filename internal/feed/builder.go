package feed

import (
	"context"
	"log"
	"time"

	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/model"
)

// tfState holds the forming bar state for one (instrument, timeframe) pair.
type tfState struct {
	bucket  int64 // bucket start (Unix seconds)
	bar     model.Candle
	started bool
}

// Builder incrementally resamples base bars (e.g. 1m from the feed) into
// the coarser timeframes the loaded rules reference, in O(1) per bar per
// timeframe. A forming bar is finalized and emitted when a bar arrives in
// the next bucket. Weekly frames are not built here; they are synthesized
// from daily bars at query time.
//
// Designed to run in a single goroutine (single consumer).
type Builder struct {
	tfs  []string
	durs []time.Duration

	// Per-TF per-instrument state: states[tfIdx][instrumentKey]
	states []map[string]*tfState

	// Staleness validation: reject bars older than the forming bucket by
	// more than the tolerance. Set to 0 to disable.
	StaleTolerance time.Duration

	// Metrics hooks
	OnBar   func(model.Candle) // called on each finalized bar (optional)
	OnStale func()             // called when a stale bar is rejected (optional)
}

// NewBuilder creates a builder for the given timeframes, e.g. ["5m","1h","1d"].
func NewBuilder(tfs []string) (*Builder, error) {
	durs := make([]time.Duration, len(tfs))
	for i, tf := range tfs {
		if dsl.IsWeekly(tf) {
			return nil, dsl.Errorf(dsl.KindUnsupportedTimeframe, "weekly bars are synthesized from daily, not built live")
		}
		d, err := dsl.ParseTimeframe(tf)
		if err != nil {
			return nil, err
		}
		durs[i] = d
	}
	states := make([]map[string]*tfState, len(tfs))
	for i := range states {
		states[i] = make(map[string]*tfState, 64)
	}
	return &Builder{
		tfs:            tfs,
		durs:           durs,
		states:         states,
		StaleTolerance: 2 * time.Second,
	}, nil
}

// Run consumes base bars from in and emits finalized coarser bars on out.
// Blocks until ctx is cancelled or in is closed; remaining forming bars are
// flushed on shutdown.
func (b *Builder) Run(ctx context.Context, in <-chan model.Candle, out chan<- model.Candle) {
	defer b.Flush(out)

	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-in:
			if !ok {
				return
			}
			b.Apply(bar, out)
		}
	}
}

// Apply folds one base bar into every forming timeframe bucket.
func (b *Builder) Apply(bar model.Candle, out chan<- model.Candle) {
	key := bar.Key()
	ts := bar.TS.Unix()

	for i, dur := range b.durs {
		tfSec := int64(dur / time.Second)
		bucket := ts - ts%tfSec

		st, ok := b.states[i][key]
		if !ok {
			st = &tfState{}
			b.states[i][key] = st
		}

		if st.started && bucket < st.bucket {
			if b.StaleTolerance > 0 && time.Duration(st.bucket-ts)*time.Second > b.StaleTolerance {
				if b.OnStale != nil {
					b.OnStale()
				} else {
					log.Printf("[feed] stale bar rejected for %s (%s behind)", key, time.Duration(st.bucket-ts)*time.Second)
				}
				continue
			}
		}

		if st.started && bucket > st.bucket {
			// Bucket advanced: finalize the forming bar
			b.emit(st.bar, out)
			st.started = false
		}

		if !st.started {
			st.bucket = bucket
			st.bar = model.Candle{
				Symbol:    bar.Symbol,
				Exchange:  bar.Exchange,
				Timeframe: b.tfs[i],
				TS:        time.Unix(bucket, 0).UTC(),
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				Volume:    bar.Volume,
			}
			st.started = true
			continue
		}

		// Merge into the forming bar
		if bar.High > st.bar.High {
			st.bar.High = bar.High
		}
		if bar.Low < st.bar.Low {
			st.bar.Low = bar.Low
		}
		st.bar.Close = bar.Close
		st.bar.Volume += bar.Volume
	}
}

// Flush finalizes and emits every forming bar. Called on shutdown so the
// last partial buckets are not lost.
func (b *Builder) Flush(out chan<- model.Candle) {
	for i := range b.states {
		for _, st := range b.states[i] {
			if st.started {
				b.emit(st.bar, out)
				st.started = false
			}
		}
	}
}

func (b *Builder) emit(bar model.Candle, out chan<- model.Candle) {
	if b.OnBar != nil {
		b.OnBar(bar)
	}
	select {
	case out <- bar:
	default:
		log.Printf("[feed] out channel full, dropping %s %s bar", bar.Key(), bar.Timeframe)
	}
}
