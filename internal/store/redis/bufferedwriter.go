package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"alert-systemv1/internal/model"
)

// pendingWrite represents a write that was buffered during circuit-open state.
type pendingWrite struct {
	WriteType string // "candle", "alert"
	Data      []byte // JSON-encoded payload
}

// BufferedWriter wraps a Redis Writer with a circuit breaker.
// During circuit-open state, writes are buffered locally and flushed
// when the circuit closes again.
type BufferedWriter struct {
	writer *Writer
	cb     *Breaker
	ctx    context.Context

	mu     sync.Mutex
	buffer []pendingWrite
	maxBuf int // max buffered writes before dropping oldest (default: 10000)

	// Callbacks
	OnBuffer func()          // called when a write is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered writes
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *Breaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]pendingWrite, 0, 256),
		maxBuf: maxBufferSize,
	}

	// Register flush on circuit close
	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteCandle writes a closed bar through the circuit breaker.
// If the circuit is open, the write is buffered locally.
func (bw *BufferedWriter) WriteCandle(c model.Candle) error {
	err := bw.cb.Do(func() error {
		bw.writer.writeCandle(bw.ctx, c)
		return nil // writeCandle logs errors internally
	})
	if err == ErrBreakerOpen {
		bw.bufferWrite("candle", c)
		return nil // buffered, not lost
	}
	return err
}

// PublishAlert publishes an alert through the circuit breaker, buffering it
// when the circuit is open.
func (bw *BufferedWriter) PublishAlert(res model.AlertResult) error {
	err := bw.cb.Do(func() error {
		return bw.writer.PublishAlert(bw.ctx, res)
	})
	if err == ErrBreakerOpen {
		bw.bufferWrite("alert", &res)
		return nil
	}
	return err
}

// bufferWrite appends a pending write, dropping the oldest entry when full.
func (bw *BufferedWriter) bufferWrite(writeType string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[redis-buffer] marshal %s: %v", writeType, err)
		return
	}

	bw.mu.Lock()
	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, pendingWrite{WriteType: writeType, Data: data})
	bw.mu.Unlock()

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays buffered writes after the circuit closes.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	pending := bw.buffer
	bw.buffer = make([]pendingWrite, 0, 256)
	bw.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	for _, pw := range pending {
		switch pw.WriteType {
		case "candle":
			var c model.Candle
			if err := json.Unmarshal(pw.Data, &c); err == nil {
				bw.writer.writeCandle(bw.ctx, c)
			}
		case "alert":
			var res model.AlertResult
			if err := json.Unmarshal(pw.Data, &res); err == nil {
				if err := bw.writer.PublishAlert(bw.ctx, res); err != nil {
					log.Printf("[redis-buffer] replay alert: %v", err)
				}
			}
		}
	}

	log.Printf("[redis-buffer] flushed %d buffered writes", len(pending))
	if bw.OnFlush != nil {
		bw.OnFlush(len(pending))
	}
}

// Pending returns the number of buffered writes.
func (bw *BufferedWriter) Pending() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
