package rules

import (
	"time"

	"alert-systemv1/internal/dsl"
)

// Prebuilt conditions covering the common alert setups. They double as
// living examples of the DSL's shape.

// GoldenCross fires when the fast SMA closes above the slow SMA.
// Periods are bound as parameters so one rule serves many configurations.
func GoldenCross() *Rule {
	return &Rule{
		ID:        "golden-cross",
		Name:      "SMA golden cross",
		Timeframe: "1d",
		Params:    map[string]float64{"fast": 9, "slow": 21},
		Cooldown:  24 * time.Hour,
		Condition: &dsl.Event{
			Op: dsl.EventCrossesAbove,
			Left: &dsl.Call{Name: "SMA", Args: []dsl.Node{
				&dsl.Ident{Name: "close"}, &dsl.Ident{Name: "fast"},
			}},
			Right: &dsl.Call{Name: "SMA", Args: []dsl.Node{
				&dsl.Ident{Name: "close"}, &dsl.Ident{Name: "slow"},
			}},
		},
	}
}

// RSIOversoldBounce fires when the RSI leaves oversold territory while the
// close still sits under the 50-day average.
func RSIOversoldBounce() *Rule {
	return &Rule{
		ID:        "rsi-oversold-bounce",
		Name:      "RSI oversold bounce",
		Timeframe: "1d",
		Params:    map[string]float64{"length": 14, "floor": 30},
		Cooldown:  24 * time.Hour,
		Condition: &dsl.Logical{
			Op: dsl.LogicAnd,
			Children: []dsl.Node{
				&dsl.Event{
					Op: dsl.EventCrossesAbove,
					Left: &dsl.Call{Name: "RSI", Args: []dsl.Node{
						&dsl.Ident{Name: "close"}, &dsl.Ident{Name: "length"},
					}},
					Right: &dsl.Ident{Name: "floor"},
				},
				&dsl.Compare{
					Op:   dsl.CmpLT,
					Left: &dsl.Call{Name: "CLOSE", Args: nil},
					Right: &dsl.Call{Name: "SMA", Args: []dsl.Node{
						&dsl.Ident{Name: "close"}, &dsl.Number{Value: 50},
					}},
				},
			},
		},
	}
}

// SupertrendFlip fires when the supertrend direction turns up.
func SupertrendFlip() *Rule {
	return &Rule{
		ID:        "supertrend-flip",
		Name:      "Supertrend flips up",
		Timeframe: "1h",
		Params:    map[string]float64{"length": 10, "mult": 3},
		Cooldown:  time.Hour,
		Condition: &dsl.Event{
			Op: dsl.EventCrossesAbove,
			Left: &dsl.Call{Name: "SUPERTREND_DIR", Args: []dsl.Node{
				&dsl.Ident{Name: "length"}, &dsl.Ident{Name: "mult"},
			}},
			Right: &dsl.Number{Value: 0},
		},
	}
}

// MACDBullish fires on the MACD line crossing above its signal line while
// the daily trend is up.
func MACDBullish() *Rule {
	macdArgs := []dsl.Node{
		&dsl.Ident{Name: "close"},
		&dsl.Number{Value: 12}, &dsl.Number{Value: 26}, &dsl.Number{Value: 9},
	}
	return &Rule{
		ID:        "macd-bullish",
		Name:      "MACD bullish cross in daily uptrend",
		Timeframe: "1h",
		Cooldown:  4 * time.Hour,
		Condition: &dsl.Logical{
			Op: dsl.LogicAnd,
			Children: []dsl.Node{
				&dsl.Call{Name: "CROSSOVER", Args: []dsl.Node{
					&dsl.Call{Name: "MACD", Args: macdArgs},
					&dsl.Call{Name: "MACD_SIGNAL", Args: macdArgs},
				}},
				&dsl.Compare{
					Op:   dsl.CmpGT,
					Left: &dsl.Call{Name: "CLOSE", Args: []dsl.Node{&dsl.Ident{Name: "1d"}}},
					Right: &dsl.Call{Name: "SMA", Args: []dsl.Node{
						&dsl.Ident{Name: "close"}, &dsl.Number{Value: 200}, &dsl.Ident{Name: "1d"},
					}},
				},
			},
		},
	}
}

// VolumeSpike fires when volume runs at least `pct` percent over its
// 20-bar average while price moves up.
func VolumeSpike() *Rule {
	return &Rule{
		ID:        "volume-spike",
		Name:      "Volume spike with rising price",
		Timeframe: "5m",
		Params:    map[string]float64{"pct": 200},
		Cooldown:  30 * time.Minute,
		Condition: &dsl.Logical{
			Op: dsl.LogicAnd,
			Children: []dsl.Node{
				&dsl.Compare{
					Op:   dsl.CmpGT,
					Left: &dsl.Call{Name: "VOLUME", Args: nil},
					Right: &dsl.Binary{
						Op: dsl.OpMul,
						Left: &dsl.Call{Name: "AVG", Args: []dsl.Node{
							&dsl.Ident{Name: "volume"}, &dsl.Number{Value: 20},
						}},
						Right: &dsl.Binary{
							Op:    dsl.OpDiv,
							Left:  &dsl.Ident{Name: "pct"},
							Right: &dsl.Number{Value: 100},
						},
					},
				},
				&dsl.Event{
					Op:    dsl.EventMovingUp,
					Left:  &dsl.Call{Name: "CLOSE", Args: nil},
					Right: &dsl.Number{Value: 0.1},
				},
			},
		},
	}
}

// Library returns the prebuilt rules, unbound to instruments.
func Library() []*Rule {
	return []*Rule{
		GoldenCross(),
		RSIOversoldBounce(),
		SupertrendFlip(),
		MACDBullish(),
		VolumeSpike(),
	}
}
