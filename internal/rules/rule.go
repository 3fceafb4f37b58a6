// Package rules defines stored alert rules: a DSL condition bound to
// instruments, a timeframe, and parameters. The Runner routes live bars to
// the rules watching them and emits alerts for matches.
package rules

import (
	"encoding/json"
	"fmt"
	"time"

	"alert-systemv1/internal/dsl"
)

// Instrument identifies one tradable the rule watches.
type Instrument struct {
	Symbol   string `json:"symbol"`
	Exchange string `json:"exchange"`
}

// Rule is one stored alert rule.
type Rule struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Instruments []Instrument       `json:"instruments"`
	Timeframe   string             `json:"timeframe"`
	Params      map[string]float64 `json:"params,omitempty"`
	Condition   dsl.Node           `json:"-"`

	// Cooldown suppresses re-firing per instrument after a match.
	Cooldown time.Duration `json:"cooldown,omitempty"`
}

// ruleJSON is the persisted form; the condition travels as the AST wire
// format.
type ruleJSON struct {
	ID          string             `json:"id"`
	Name        string             `json:"name"`
	Instruments []Instrument       `json:"instruments"`
	Timeframe   string             `json:"timeframe"`
	Params      map[string]float64 `json:"params,omitempty"`
	Condition   json.RawMessage    `json:"condition"`
	CooldownSec int64              `json:"cooldown_sec,omitempty"`
}

// MarshalJSON encodes the rule with its condition in wire format.
func (r *Rule) MarshalJSON() ([]byte, error) {
	cond, err := dsl.Marshal(r.Condition)
	if err != nil {
		return nil, fmt.Errorf("marshal rule %s condition: %w", r.ID, err)
	}
	return json.Marshal(ruleJSON{
		ID:          r.ID,
		Name:        r.Name,
		Instruments: r.Instruments,
		Timeframe:   r.Timeframe,
		Params:      r.Params,
		Condition:   cond,
		CooldownSec: int64(r.Cooldown / time.Second),
	})
}

// UnmarshalJSON decodes a stored rule, including its condition AST.
func (r *Rule) UnmarshalJSON(data []byte) error {
	var rj ruleJSON
	if err := json.Unmarshal(data, &rj); err != nil {
		return err
	}
	cond, err := dsl.Unmarshal(rj.Condition)
	if err != nil {
		return fmt.Errorf("unmarshal rule %s condition: %w", rj.ID, err)
	}
	r.ID = rj.ID
	r.Name = rj.Name
	r.Instruments = rj.Instruments
	r.Timeframe = rj.Timeframe
	r.Params = rj.Params
	r.Condition = cond
	r.Cooldown = time.Duration(rj.CooldownSec) * time.Second
	return nil
}

// Validate checks the rule is well-formed and within the safety limits.
func (r *Rule) Validate(limits dsl.Limits) error {
	if r.ID == "" {
		return fmt.Errorf("rule has no id")
	}
	if len(r.Instruments) == 0 {
		return fmt.Errorf("rule %s watches no instruments", r.ID)
	}
	if _, err := dsl.ParseTimeframe(r.Timeframe); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	if r.Condition == nil {
		return fmt.Errorf("rule %s has no condition", r.ID)
	}
	if err := dsl.Validate(r.Condition, limits); err != nil {
		return fmt.Errorf("rule %s: %w", r.ID, err)
	}
	return nil
}

// Watches reports whether the rule watches an instrument.
func (r *Rule) Watches(symbol, exchange string) bool {
	for _, ins := range r.Instruments {
		if ins.Symbol == symbol && ins.Exchange == exchange {
			return true
		}
	}
	return false
}
