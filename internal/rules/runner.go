package rules

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/metrics"
	"alert-systemv1/internal/model"
	"alert-systemv1/internal/pointwise"
)

// Runner routes closed bars to the rules watching them, evaluates each rule
// pointwise against the just-closed bar, and emits alert results for
// matches. Per-instrument cooldowns suppress repeat fires.
type Runner struct {
	eval   *pointwise.Evaluator
	limits dsl.Limits
	log    *slog.Logger
	met    *metrics.Metrics

	mu    sync.RWMutex
	rules []*Rule

	alertCh   chan model.AlertResult
	lastFired map[string]time.Time // "ruleID|exchange:symbol"
}

// NewRunner creates a runner over a pointwise evaluator.
func NewRunner(eval *pointwise.Evaluator, limits dsl.Limits, log *slog.Logger, met *metrics.Metrics, alertBufferSize int) *Runner {
	return &Runner{
		eval:      eval,
		limits:    limits,
		log:       log,
		met:       met,
		alertCh:   make(chan model.AlertResult, alertBufferSize),
		lastFired: make(map[string]time.Time),
	}
}

// Register validates and adds a rule.
func (r *Runner) Register(rule *Rule) error {
	if err := rule.Validate(r.limits); err != nil {
		return err
	}
	r.mu.Lock()
	r.rules = append(r.rules, rule)
	r.mu.Unlock()
	r.log.Info("rule registered",
		slog.String("rule", rule.ID),
		slog.String("timeframe", rule.Timeframe),
		slog.Int("instruments", len(rule.Instruments)))
	return nil
}

// Len returns the number of registered rules.
func (r *Runner) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// Alerts returns the channel of matched evaluations.
func (r *Runner) Alerts() <-chan model.AlertResult {
	return r.alertCh
}

// Run consumes closed bars and evaluates the rules watching them.
// Blocks until ctx is cancelled or barCh is closed.
func (r *Runner) Run(ctx context.Context, barCh <-chan model.Candle) {
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			r.onBar(ctx, bar)
		}
	}
}

func (r *Runner) onBar(ctx context.Context, bar model.Candle) {
	r.mu.RLock()
	matching := make([]*Rule, 0, 4)
	for _, rule := range r.rules {
		if rule.Timeframe == bar.Timeframe && rule.Watches(bar.Symbol, bar.Exchange) {
			matching = append(matching, rule)
		}
	}
	r.mu.RUnlock()

	for _, rule := range matching {
		r.evaluate(ctx, rule, bar)
	}
}

func (r *Runner) evaluate(ctx context.Context, rule *Rule, bar model.Candle) {
	fireKey := rule.ID + "|" + bar.Key()
	if cool := rule.Cooldown; cool > 0 {
		r.mu.RLock()
		last, fired := r.lastFired[fireKey]
		r.mu.RUnlock()
		if fired && time.Since(last) < cool {
			return
		}
	}

	out, err := r.eval.Evaluate(ctx, rule.Condition, pointwise.Context{
		Symbol:    bar.Symbol,
		Exchange:  bar.Exchange,
		Timeframe: rule.Timeframe,
		End:       bar.TS,
	}, rule.Params)
	if err != nil {
		r.log.Error("rule evaluation failed",
			slog.String("rule", rule.ID),
			slog.String("symbol", bar.Symbol),
			slog.String("error", err.Error()))
		return
	}
	if !out.Matched {
		return
	}

	r.mu.Lock()
	r.lastFired[fireKey] = time.Now()
	r.mu.Unlock()

	if r.met != nil {
		r.met.AlertsTriggered.Inc()
	}

	res := model.AlertResult{
		RuleID:   rule.ID,
		Symbol:   bar.Symbol,
		Exchange: bar.Exchange,
		Matched:  true,
		BarTime:  out.BarTime,
		Snapshot: out.Snapshot,
	}
	select {
	case r.alertCh <- res:
	default:
		r.log.Warn("alert channel full, dropping alert", slog.String("rule", rule.ID))
	}
}
