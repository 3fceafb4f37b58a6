// Package portfolio tracks positions, P&L, and portfolio-level metrics.
//
// It maintains a real-time view of open positions, calculates unrealized
// P&L from latest market prices, and exposes position metrics to rule
// evaluation as bare identifiers (UNREALIZED_PNL_PCT, DRAWDOWN_PCT, ...).
package portfolio

import (
	"sync"

	"alert-systemv1/internal/model"
)

// Position represents a single instrument position.
type Position struct {
	Symbol   string  `json:"symbol"`
	Exchange string  `json:"exchange"`
	Qty      float64 `json:"qty"`       // positive = long, negative = short
	AvgPrice float64 `json:"avg_price"` // average entry price
	LastLTP  float64 `json:"last_ltp"`  // last traded price
}

// UnrealizedPnL returns the unrealized P&L.
func (p *Position) UnrealizedPnL() float64 {
	return (p.LastLTP - p.AvgPrice) * p.Qty
}

// UnrealizedPnLPct returns the unrealized P&L as a percentage of entry cost.
func (p *Position) UnrealizedPnLPct() float64 {
	if p.AvgPrice == 0 {
		return 0
	}
	return (p.LastLTP - p.AvgPrice) / p.AvgPrice * 100
}

// Portfolio tracks all open positions.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[string]*Position // key = "exchange:symbol"
}

// New creates a new empty Portfolio.
func New() *Portfolio {
	return &Portfolio{
		positions: make(map[string]*Position),
	}
}

// SetPosition stores or replaces a position.
func (pf *Portfolio) SetPosition(pos Position) {
	key := pos.Exchange + ":" + pos.Symbol
	pf.mu.Lock()
	defer pf.mu.Unlock()
	p := pos
	pf.positions[key] = &p
}

// UpdatePrice updates the last traded price for a position.
func (pf *Portfolio) UpdatePrice(candle model.Candle) {
	key := candle.Key()
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[key]; ok {
		pos.LastLTP = candle.Close
	}
}

// Get returns the position for one instrument, if any.
func (pf *Portfolio) Get(symbol, exchange string) (Position, bool) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pos, ok := pf.positions[exchange+":"+symbol]; ok {
		return *pos, true
	}
	return Position{}, false
}

// GetPositions returns a snapshot of all positions.
func (pf *Portfolio) GetPositions() []Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		result = append(result, *p)
	}
	return result
}

// TotalUnrealizedPnL returns the total unrealized P&L across all positions.
func (pf *Portfolio) TotalUnrealizedPnL() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var total float64
	for _, p := range pf.positions {
		total += p.UnrealizedPnL()
	}
	return total
}

// TotalExposure returns the absolute market value of all positions.
func (pf *Portfolio) TotalExposure() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var total float64
	for _, p := range pf.positions {
		v := p.LastLTP * p.Qty
		if v < 0 {
			v = -v
		}
		total += v
	}
	return total
}
