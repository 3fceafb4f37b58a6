// Package pointwise evaluates one rule AST against the latest closed bar of
// a single symbol. It is the live-alert runtime: every numeric node reduces
// to a now/prev pair, comparisons and events look only at that pair, and a
// missing operand yields a false match rather than an error. Each call
// builds its own candle cache from the source, so an Evaluator is safe to
// share across goroutines.
package pointwise

import (
	"context"
	"log/slog"
	"time"

	"alert-systemv1/internal/candles"
	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/indicator"
	"alert-systemv1/internal/metrics"
)

// SeriesValue is the pointwise unit of computation: the current and previous
// values of a series at the evaluation bar. Missing values are NaN.
type SeriesValue struct {
	Now     float64
	Prev    float64
	BarTime time.Time
}

// Defined reports whether the current value is present.
func (v SeriesValue) Defined() bool {
	return indicator.Defined(v.Now)
}

// Context identifies the symbol and evaluation window for one invocation.
type Context struct {
	Symbol    string
	Exchange  string
	Timeframe string // default timeframe for calls without an explicit one
	End       time.Time
	Lookback  int // bars of history to fetch per timeframe
}

// DefaultLookback is the history depth fetched when Context.Lookback is 0.
const DefaultLookback = 500

// CustomIndicator is a user-defined named function: its body is evaluated
// with the call-site argument expressions substituted for the parameters.
type CustomIndicator struct {
	Params []string
	Body   dsl.Node
}

// MetricProvider resolves portfolio/position metrics referenced by bare
// identifiers, e.g. unrealized P&L percent. The instrument is the one the
// rule is being evaluated against, so position metrics bind per symbol.
type MetricProvider interface {
	Metric(symbol, exchange, name string) (float64, bool)
}

// Outcome is the result of one pointwise evaluation. Snapshot carries the
// operands of the deciding comparison under the keys "LHS" and "RHS".
type Outcome struct {
	Matched  bool
	Snapshot map[string]float64
	BarTime  time.Time
}

// Evaluator is the stateless live-alert runtime over a candle source.
type Evaluator struct {
	source    candles.Source
	portfolio MetricProvider
	customs   map[string]CustomIndicator
	limits    dsl.Limits
	log       *slog.Logger
	met       *metrics.Metrics
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPortfolio attaches the position-metric collaborator.
func WithPortfolio(p MetricProvider) Option {
	return func(e *Evaluator) { e.portfolio = p }
}

// WithCustomIndicators registers user-defined indicators, consulted before
// the built-ins on every call.
func WithCustomIndicators(customs map[string]CustomIndicator) Option {
	return func(e *Evaluator) { e.customs = customs }
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) { e.log = l }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.met = m }
}

// New creates an evaluator over a candle source.
func New(source candles.Source, limits dsl.Limits, opts ...Option) *Evaluator {
	e := &Evaluator{source: source, limits: limits}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs one rule against the symbol's latest bars. The root must be
// a boolean condition. Missing operand data yields Matched=false, never an
// error; structural problems surface as typed errors before any result.
func (e *Evaluator) Evaluate(ctx context.Context, root dsl.Node, sctx Context, params map[string]float64) (*Outcome, error) {
	start := time.Now()
	if err := dsl.Validate(root, e.limits); err != nil {
		if e.met != nil && dsl.IsKind(err, dsl.KindLimitExceeded) {
			e.met.LimitRejections.Inc()
		}
		return nil, err
	}
	if _, err := dsl.ParseTimeframe(sctx.Timeframe); err != nil {
		return nil, err
	}
	if sctx.Lookback <= 0 {
		sctx.Lookback = DefaultLookback
	}

	s := &session{
		e:      e,
		ctx:    ctx,
		sctx:   sctx,
		params: params,
		frames: make(map[string]*candles.Frame),
	}
	if e.limits.Timeout > 0 {
		s.deadline = start.Add(e.limits.Timeout)
	}

	matched, err := s.evalBool(root)
	if err != nil {
		if e.met != nil && dsl.IsKind(err, dsl.KindEvaluationTimeout) {
			e.met.EvalTimeouts.Inc()
		}
		return nil, err
	}

	if e.met != nil {
		e.met.EvalTotal.WithLabelValues("pointwise").Inc()
		e.met.EvalDuration.Observe(time.Since(start).Seconds())
	}
	if e.log != nil {
		e.log.Debug("rule evaluated",
			slog.String("symbol", sctx.Symbol),
			slog.Bool("matched", matched),
			slog.Duration("took", time.Since(start)))
	}
	return &Outcome{Matched: matched, Snapshot: s.snapshot, BarTime: s.barTime}, nil
}

// session is the per-invocation state: the candle cache, the snapshot of the
// deciding comparison, and the recursion depth across custom indicators.
type session struct {
	e        *Evaluator
	ctx      context.Context
	sctx     Context
	params   map[string]float64
	frames   map[string]*candles.Frame
	snapshot map[string]float64
	barTime  time.Time
	deadline time.Time
	depth    int
}

func (s *session) checkDeadline() error {
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		return dsl.Errorf(dsl.KindEvaluationTimeout, "evaluation exceeded budget of %s", s.e.limits.Timeout)
	}
	return nil
}

// frame loads (and caches) the bars for one timeframe, fetching
// Lookback bars ending at the context's end time.
func (s *session) frame(tf string) (*candles.Frame, error) {
	if f, ok := s.frames[tf]; ok {
		return f, nil
	}
	dur, err := dsl.ParseTimeframe(tf)
	if err != nil {
		return nil, err
	}
	end := s.sctx.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	start := end.Add(-dur * time.Duration(s.sctx.Lookback))
	f, err := candles.Load(s.ctx, s.e.source, s.sctx.Symbol, s.sctx.Exchange, tf, start, end)
	if err != nil {
		return nil, err
	}
	s.frames[tf] = f
	if tf == s.sctx.Timeframe && f.Len() > 0 {
		s.barTime = f.Times[f.Len()-1]
	}
	return f, nil
}

// record notes the operands of the most recently decided comparison for the
// alert's debug snapshot.
func (s *session) record(lhs, rhs SeriesValue) {
	s.snapshot = map[string]float64{"LHS": lhs.Now, "RHS": rhs.Now}
	if s.barTime.IsZero() && !lhs.BarTime.IsZero() {
		s.barTime = lhs.BarTime
	}
}
