package portfolio

import (
	"log/slog"
	"sync"
)

// RiskLimits defines configurable risk thresholds surfaced to rules.
type RiskLimits struct {
	MaxDailyLoss   float64 `json:"max_daily_loss"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"` // 0-100
}

// DefaultRiskLimits returns conservative default limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxDailyLoss:   5000,
		MaxDrawdownPct: 5.0,
	}
}

// RiskManager tracks equity, daily P&L and drawdown. Rules reference these
// through the portfolio View (DRAWDOWN_PCT, EQUITY, DAILY_PNL).
type RiskManager struct {
	mu     sync.RWMutex
	limits RiskLimits

	dailyPnL   float64
	equity     float64
	peakEquity float64
}

// NewRiskManager creates a RiskManager with the given limits and starting equity.
func NewRiskManager(limits RiskLimits, initialEquity float64) *RiskManager {
	return &RiskManager{
		limits:     limits,
		equity:     initialEquity,
		peakEquity: initialEquity,
	}
}

// RecordPnL updates daily P&L and equity tracking.
func (rm *RiskManager) RecordPnL(pnl float64) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.dailyPnL += pnl
	rm.equity += pnl
	if rm.equity > rm.peakEquity {
		rm.peakEquity = rm.equity
	}

	slog.Debug("pnl recorded",
		slog.Float64("daily_pnl", rm.dailyPnL),
		slog.Float64("equity", rm.equity),
		slog.Float64("peak", rm.peakEquity))
}

// ResetDaily resets the daily P&L counter (call at market open).
func (rm *RiskManager) ResetDaily() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.dailyPnL = 0
}

// DrawdownPct returns the current drawdown from peak equity in percent.
func (rm *RiskManager) DrawdownPct() float64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	if rm.peakEquity <= 0 {
		return 0
	}
	return (rm.peakEquity - rm.equity) / rm.peakEquity * 100
}

// Equity returns the current equity.
func (rm *RiskManager) Equity() float64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.equity
}

// DailyPnL returns today's realized P&L.
func (rm *RiskManager) DailyPnL() float64 {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.dailyPnL
}

// Breached reports whether a hard risk limit has been crossed.
func (rm *RiskManager) Breached() (bool, string) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	if rm.dailyPnL < -rm.limits.MaxDailyLoss {
		return true, "max daily loss reached"
	}
	if rm.peakEquity > 0 {
		drawdown := (rm.peakEquity - rm.equity) / rm.peakEquity * 100
		if drawdown > rm.limits.MaxDrawdownPct {
			return true, "max drawdown exceeded"
		}
	}
	return false, ""
}
