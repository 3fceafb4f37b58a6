package feed

import (
	"context"
	"testing"
	"time"

	"alert-systemv1/internal/model"
)

func minuteBar(ts time.Time, close, volume float64) model.Candle {
	return model.Candle{
		Symbol: "RELIANCE", Exchange: "NSE", Timeframe: "1m",
		TS:   ts,
		Open: close - 0.5, High: close + 1, Low: close - 1, Close: close, Volume: volume,
	}
}

func TestBuilderBucketsAndFinalizes(t *testing.T) {
	b, err := NewBuilder([]string{"5m"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	out := make(chan model.Candle, 8)

	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		b.Apply(minuteBar(start.Add(time.Duration(i)*time.Minute), 100+float64(i), 10), out)
	}
	if len(out) != 0 {
		t.Fatal("bar finalized before its bucket advanced")
	}

	// The first bar of the next bucket finalizes the forming one.
	b.Apply(minuteBar(start.Add(5*time.Minute), 200, 10), out)

	select {
	case bar := <-out:
		if bar.Timeframe != "5m" {
			t.Errorf("timeframe = %q", bar.Timeframe)
		}
		if !bar.TS.Equal(start) {
			t.Errorf("bucket start = %v, want %v", bar.TS, start)
		}
		if bar.Open != 99.5 { // first minute's open
			t.Errorf("open = %v", bar.Open)
		}
		if bar.Close != 104 { // last minute's close
			t.Errorf("close = %v", bar.Close)
		}
		if bar.High != 105 || bar.Low != 99 {
			t.Errorf("high/low = %v/%v", bar.High, bar.Low)
		}
		if bar.Volume != 50 {
			t.Errorf("volume = %v, want 50", bar.Volume)
		}
	default:
		t.Fatal("no finalized bar")
	}
}

func TestBuilderFlushEmitsFormingBars(t *testing.T) {
	b, _ := NewBuilder([]string{"5m", "1h"})
	out := make(chan model.Candle, 8)

	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	b.Apply(minuteBar(start, 100, 10), out)
	b.Flush(out)

	if len(out) != 2 {
		t.Fatalf("flushed %d bars, want 2 (one per timeframe)", len(out))
	}
}

func TestBuilderRejectsWeekly(t *testing.T) {
	if _, err := NewBuilder([]string{"5m", "1w"}); err == nil {
		t.Error("weekly timeframe accepted")
	}
}

func TestBuilderRejectsStaleBars(t *testing.T) {
	b, _ := NewBuilder([]string{"5m"})
	stale := 0
	b.OnStale = func() { stale++ }
	out := make(chan model.Candle, 8)

	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	b.Apply(minuteBar(start.Add(10*time.Minute), 100, 10), out)
	// A bar from two buckets ago is well past the tolerance.
	b.Apply(minuteBar(start, 99, 10), out)

	if stale != 1 {
		t.Errorf("stale count = %d, want 1", stale)
	}
	if len(out) != 0 {
		t.Error("stale bar finalized a bucket")
	}
}

func TestBuilderTracksInstrumentsIndependently(t *testing.T) {
	b, _ := NewBuilder([]string{"5m"})
	out := make(chan model.Candle, 8)

	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	rel := minuteBar(start, 100, 10)
	tcs := minuteBar(start, 4000, 10)
	tcs.Symbol = "TCS"

	b.Apply(rel, out)
	b.Apply(tcs, out)
	// Advancing only RELIANCE finalizes only its bucket.
	b.Apply(minuteBar(start.Add(5*time.Minute), 101, 10), out)

	if len(out) != 1 {
		t.Fatalf("finalized %d bars, want 1", len(out))
	}
	bar := <-out
	if bar.Symbol != "RELIANCE" {
		t.Errorf("symbol = %q", bar.Symbol)
	}
}

func TestFanOutBroadcastAndDrop(t *testing.T) {
	f := NewFanOut(1)
	fast := f.Subscribe()
	slow := f.Subscribe()

	drops := make(chan int, 8)
	f.OnDrop = func(i int) { drops <- i }

	in := make(chan model.Candle)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		f.Run(ctx, in)
		close(done)
	}()

	start := time.Date(2024, 1, 2, 9, 15, 0, 0, time.UTC)
	in <- minuteBar(start, 100, 10)

	// Drain the fast subscriber; leave the slow one full.
	select {
	case <-fast:
	case <-time.After(time.Second):
		t.Fatal("fast subscriber got nothing")
	}

	in <- minuteBar(start.Add(time.Minute), 101, 10)
	close(in)
	<-done

	select {
	case idx := <-drops:
		if idx != 1 {
			t.Errorf("dropped for subscriber %d, want 1", idx)
		}
	default:
		t.Error("slow subscriber's drop not reported")
	}

	// The slow subscriber still holds its first bar; the fast one got both.
	if _, ok := <-slow; !ok {
		t.Error("slow subscriber lost its first bar")
	}
	if _, ok := <-fast; !ok {
		t.Error("fast subscriber missed the second bar")
	}

	// Subscriber channels close when the input closes.
	if _, ok := <-slow; ok {
		t.Error("slow subscriber channel not closed")
	}
	if _, ok := <-fast; ok {
		t.Error("fast subscriber channel not closed")
	}
}
