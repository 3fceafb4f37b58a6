package model

import (
	"encoding/json"
	"time"
)

// Candle represents one closed OHLCV bar for a single instrument and
// timeframe. TS is the bucket start time (UTC, timeframe-aligned); the bar
// closes at TS + timeframe duration. Prices are float64 throughout; the
// rule engine's numeric semantics are defined over f64 series.
type Candle struct {
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	Timeframe string    `json:"timeframe"` // e.g. "5m", "1h", "1d", "1w"
	TS        time.Time `json:"ts"`        // bucket start (UTC)
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Key returns a unique key for this candle's instrument: "exchange:symbol".
func (c *Candle) Key() string {
	return c.Exchange + ":" + c.Symbol
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}
