package portfolio

// View resolves position metrics during rule evaluation. Per-instrument
// metrics are looked up for whichever symbol the rule is being evaluated
// against; account-wide metrics ignore the instrument. Identifiers not
// recognized here fall through to the evaluator's UnknownIdentifier error.
type View struct {
	pf *Portfolio
	rm *RiskManager
}

// View creates a metric resolver over the portfolio. rm may be nil when no
// risk manager is running; its metrics then resolve as absent.
func (pf *Portfolio) View(rm *RiskManager) *View {
	return &View{pf: pf, rm: rm}
}

// Metric resolves a portfolio metric identifier for the given instrument.
func (v *View) Metric(symbol, exchange, name string) (float64, bool) {
	switch name {
	case "UNREALIZED_PNL", "UNREALIZED_PNL_PCT", "POSITION_QTY", "AVG_ENTRY_PRICE", "LAST_PRICE":
		pos, ok := v.pf.Get(symbol, exchange)
		if !ok {
			return 0, false
		}
		switch name {
		case "UNREALIZED_PNL":
			return pos.UnrealizedPnL(), true
		case "UNREALIZED_PNL_PCT":
			return pos.UnrealizedPnLPct(), true
		case "POSITION_QTY":
			return pos.Qty, true
		case "AVG_ENTRY_PRICE":
			return pos.AvgPrice, true
		default:
			return pos.LastLTP, true
		}

	case "TOTAL_UNREALIZED_PNL":
		return v.pf.TotalUnrealizedPnL(), true
	case "TOTAL_EXPOSURE":
		return v.pf.TotalExposure(), true
	case "OPEN_POSITIONS":
		return float64(len(v.pf.GetPositions())), true

	case "DRAWDOWN_PCT", "EQUITY", "DAILY_PNL":
		if v.rm == nil {
			return 0, false
		}
		switch name {
		case "DRAWDOWN_PCT":
			return v.rm.DrawdownPct(), true
		case "EQUITY":
			return v.rm.Equity(), true
		default:
			return v.rm.DailyPnL(), true
		}
	}
	return 0, false
}
