package gateway

import (
	"encoding/json"
	"testing"
	"time"
)

func TestBroadcastEnvelope(t *testing.T) {
	h := NewHub(nil)

	barTime := time.Now().UTC().Add(-50 * time.Millisecond).Format(time.RFC3339Nano)
	payload := []byte(`{"rule_id":"golden-cross","symbol":"RELIANCE","bar_time":"` + barTime + `"}`)

	h.broadcast("pub:alerts:NSE:RELIANCE", payload)
	h.broadcast("pub:alerts:NSE:TCS", []byte(`{"rule_id":"volume-spike"}`))

	if h.Seq() != 2 {
		t.Fatalf("seq = %d, want 2", h.Seq())
	}

	envs := h.replay.Since(0)
	if len(envs) != 2 {
		t.Fatalf("replay holds %d envelopes, want 2", len(envs))
	}

	var env struct {
		Channel string          `json:"channel"`
		Alert   json.RawMessage `json:"alert"`
		TS      time.Time       `json:"ts"`
		Seq     int64           `json:"seq"`
	}
	if err := json.Unmarshal(envs[0], &env); err != nil {
		t.Fatalf("envelope is not valid JSON: %v\n%s", err, envs[0])
	}
	if env.Channel != "pub:alerts:NSE:RELIANCE" {
		t.Errorf("channel = %q", env.Channel)
	}
	if env.Seq != 1 {
		t.Errorf("seq = %d, want 1", env.Seq)
	}
	if string(env.Alert) != string(payload) {
		t.Errorf("alert payload altered:\n%s\n%s", env.Alert, payload)
	}
	if env.TS.IsZero() {
		t.Error("envelope missing timestamp")
	}

	// The first alert carried a bar_time, so one latency sample was taken.
	if h.Latency.Count() != 1 {
		t.Errorf("latency samples = %d, want 1", h.Latency.Count())
	}
}

func TestExtractBarTime(t *testing.T) {
	want := time.Date(2024, 3, 4, 10, 15, 0, 0, time.UTC)
	data := []byte(`{"rule_id":"x","bar_time":"2024-03-04T10:15:00Z","snapshot":{}}`)
	if got := extractBarTime(data); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if !extractBarTime([]byte(`{"rule_id":"x"}`)).IsZero() {
		t.Error("missing bar_time should yield zero time")
	}
	if !extractBarTime([]byte(`{"bar_time":"not-a-time"}`)).IsZero() {
		t.Error("unparseable bar_time should yield zero time")
	}
	if !extractBarTime([]byte(`{"bar_time":"2024-03-04T10:15:00Z`)).IsZero() {
		t.Error("unterminated bar_time should yield zero time")
	}
}
