package model

import (
	"encoding/json"
	"time"
)

// AlertResult is the outcome of one pointwise rule evaluation against the
// most recently closed bar of a symbol.
type AlertResult struct {
	RuleID   string    `json:"rule_id"`
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	Matched  bool      `json:"matched"`
	BarTime  time.Time `json:"bar_time"` // close time of the bar that produced the result

	// Snapshot holds the left/right operand values of the rule's deciding
	// comparison, for alert payloads and debugging. Keys: "LHS", "RHS".
	Snapshot map[string]float64 `json:"snapshot,omitempty"`
}

// JSON returns the JSON-encoded result.
func (r *AlertResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}

// AlertRecord is a persisted triggered alert as stored in the archive.
type AlertRecord struct {
	ID        string    `json:"id"`
	RuleID    string    `json:"rule_id"`
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	BarTime   time.Time `json:"bar_time"`
	LHS       float64   `json:"lhs"`
	RHS       float64   `json:"rhs"`
	CreatedAt time.Time `json:"created_at"`
}
