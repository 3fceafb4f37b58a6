package gateway

import "sync"

// replayEntry holds one broadcast alert envelope for replay.
type replayEntry struct {
	seq  int64
	data []byte
}

// ReplayBuffer is a fixed-size circular buffer of recent alert envelopes.
// Reconnecting clients replay from the last sequence they saw instead of
// losing alerts fired while they were away.
//
// Thread-safe for concurrent writes and reads.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &ReplayBuffer{
		buf: make([]replayEntry, capacity),
		cap: capacity,
	}
}

// Push appends an envelope. Overwrites the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	// Copy so the buffer never aliases the caller's slice.
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.buf[rb.pos] = replayEntry{seq: seq, data: cp}
	rb.pos = (rb.pos + 1) % rb.cap
	if rb.pos == 0 && !rb.full {
		rb.full = true
	}
}

// Since returns the envelopes with seq strictly greater than fromSeq, oldest
// first. A fromSeq older than the buffer returns everything buffered.
func (rb *ReplayBuffer) Since(fromSeq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	count := rb.len()
	var out [][]byte
	for i := 0; i < count; i++ {
		e := rb.buf[rb.index(i)]
		if e.seq > fromSeq {
			out = append(out, e.data)
		}
	}
	return out
}

// Len returns the number of entries currently buffered.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return rb.cap
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % rb.cap
	}
	return logical
}
