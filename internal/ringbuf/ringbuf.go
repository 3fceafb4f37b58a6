// Package ringbuf decouples the WebSocket feed reader from the bar pipeline
// with a lock-free single-producer single-consumer ring. The reader must
// never block on a slow pipeline; a full ring drops the bar and counts it.
package ringbuf

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"

	"alert-systemv1/internal/model"
)

// cacheLine pads the producer and consumer cursors onto separate cache
// lines so they never false-share on x86-64.
const cacheLine = 64

// Ring is a lock-free SPSC ring of closed bars. Capacity is a power of two,
// so index wrapping is a single mask.
type Ring struct {
	buf  []model.Candle
	mask uint64

	_pad0 [cacheLine]byte
	head  atomic.Uint64 // producer cursor
	_pad1 [cacheLine]byte
	tail  atomic.Uint64 // consumer cursor
	_pad2 [cacheLine]byte

	dropped atomic.Uint64
	drops   prometheus.Counter
}

// New creates a ring holding at least capacity bars (rounded up to a power
// of two, minimum 2). drops, when non-nil, is incremented for every bar
// rejected by a full ring — wire Metrics.RingOverflow here.
func New(capacity int, drops prometheus.Counter) *Ring {
	n := nextPow2(capacity)
	if n < 2 {
		n = 2
	}
	return &Ring{
		buf:   make([]model.Candle, n),
		mask:  uint64(n - 1),
		drops: drops,
	}
}

// Push appends a bar without blocking. A full ring rejects the bar, counts
// the drop, and returns false.
func (r *Ring) Push(c model.Candle) bool {
	head := r.head.Load()
	tail := r.tail.Load()

	if head-tail >= uint64(len(r.buf)) {
		r.dropped.Add(1)
		if r.drops != nil {
			r.drops.Inc()
		}
		return false
	}

	r.buf[head&r.mask] = c
	r.head.Store(head + 1)
	return true
}

// Pop removes the oldest bar without blocking. An empty ring returns false.
func (r *Ring) Pop() (model.Candle, bool) {
	tail := r.tail.Load()
	head := r.head.Load()

	if tail >= head {
		return model.Candle{}, false
	}

	c := r.buf[tail&r.mask]
	r.tail.Store(tail + 1)
	return c, true
}

// Len returns how many bars are queued.
func (r *Ring) Len() int {
	return int(r.head.Load() - r.tail.Load())
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Dropped returns the total bars rejected by a full ring.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
