package gateway

import "testing"

func TestReplayBufferSince(t *testing.T) {
	rb := NewReplayBuffer(100)

	for i := int64(1); i <= 10; i++ {
		rb.Push(i, []byte("msg"))
	}

	got := rb.Since(3)
	if len(got) != 7 {
		t.Fatalf("Since(3): expected 7 entries, got %d", len(got))
	}
}

func TestReplayBufferWraparound(t *testing.T) {
	rb := NewReplayBuffer(5) // tiny buffer

	// Push 8 entries — the first 3 are evicted.
	for i := int64(1); i <= 8; i++ {
		rb.Push(i, []byte{byte(i)})
	}

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}

	got := rb.Since(0)
	if len(got) != 5 {
		t.Fatalf("Since(0): expected 5, got %d", len(got))
	}
	if got[0][0] != 4 {
		t.Errorf("oldest entry = %d, want 4", got[0][0])
	}
	if got[4][0] != 8 {
		t.Errorf("newest entry = %d, want 8", got[4][0])
	}
}

func TestReplayBufferEmpty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Since(0); len(got) != 0 {
		t.Fatalf("empty buffer Since should return 0 entries, got %d", len(got))
	}
}
