// Package engine evaluates one rule AST across an entire historical window,
// producing a boolean or numeric series aligned one-to-one with the base
// timeframe's bars. It handles multi-timeframe alignment with a strict
// "most recently closed bar" rule, memoizes sub-expression series, and
// enforces the static safety limits plus a cooperative wall-clock budget.
//
// An Engine instance is scoped to one (symbol, timeframe-set, window): its
// caches die with it and must never be shared across concurrent
// evaluations. Evaluation itself is synchronous and single-threaded.
package engine

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"alert-systemv1/internal/candles"
	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/metrics"
)

// Result is the outcome of one vectorized evaluation: exactly one of Bool
// or Num is set, both aligned to the base timeframe's bar count. Missing
// numeric elements are NaN; boolean elements over missing operands are
// false. Warm-up never fails the whole evaluation — validly computable bars
// stay available.
type Result struct {
	Bool []bool
	Num  []float64
}

type seriesKey struct {
	fp string
	tf string
}

// Engine is a single-evaluation-session vectorized evaluator.
type Engine struct {
	id      string
	base    string
	baseDur time.Duration
	frames  map[string]*candles.Frame
	limits  dsl.Limits
	params  map[string]float64
	log     *slog.Logger
	met     *metrics.Metrics

	deadline  time.Time
	effTF     map[dsl.Node]string
	fps       map[dsl.Node]string
	aligns    map[string][]int
	numCache  map[seriesKey][]float64
	boolCache map[string][]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithParams binds rule parameters resolvable as identifiers.
func WithParams(params map[string]float64) Option {
	return func(e *Engine) { e.params = params }
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.met = m }
}

// New creates an engine over preloaded frames. The base timeframe's frame
// must be present; every other frame the rule references must be preloaded
// too (candles.Load handles weekly synthesis).
func New(base string, frames map[string]*candles.Frame, limits dsl.Limits, opts ...Option) (*Engine, error) {
	baseDur, err := dsl.ParseTimeframe(base)
	if err != nil {
		return nil, err
	}
	if _, ok := frames[base]; !ok {
		return nil, dsl.Errorf(dsl.KindUnsupportedTimeframe, "no candle data loaded for base timeframe %q", base)
	}
	e := &Engine{
		id:        uuid.NewString(),
		base:      base,
		baseDur:   baseDur,
		frames:    frames,
		limits:    limits,
		aligns:    make(map[string][]int),
		numCache:  make(map[seriesKey][]float64),
		boolCache: make(map[string][]bool),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// ID returns the evaluation session ID.
func (e *Engine) ID() string {
	return e.id
}

// Evaluate runs the full pipeline: static validation, timeframe resolution
// (both fail fast, before any series is computed), then memoized recursive
// evaluation aligned to the base timeframe.
func (e *Engine) Evaluate(root dsl.Node) (*Result, error) {
	start := time.Now()
	if e.limits.Timeout > 0 {
		e.deadline = start.Add(e.limits.Timeout)
	}

	if err := dsl.Validate(root, e.limits); err != nil {
		if e.met != nil && dsl.IsKind(err, dsl.KindLimitExceeded) {
			e.met.LimitRejections.Inc()
		}
		return nil, err
	}
	if err := e.resolveTimeframes(root); err != nil {
		return nil, err
	}
	e.fingerprintPass(root)

	var res *Result
	if e.isBoolean(root) {
		bools, err := e.evalBool(root)
		if err != nil {
			return nil, e.observeErr(err)
		}
		res = &Result{Bool: bools}
	} else {
		tf := e.tfOf(root)
		nums, err := e.evalNum(root, tf)
		if err != nil {
			return nil, e.observeErr(err)
		}
		if tf != e.base {
			idx, err := e.alignIdx(tf)
			if err != nil {
				return nil, err
			}
			nums = alignNum(nums, idx)
		}
		res = &Result{Num: nums}
	}

	if e.met != nil {
		e.met.EvalTotal.WithLabelValues("vectorized").Inc()
		e.met.EvalDuration.Observe(time.Since(start).Seconds())
	}
	if e.log != nil {
		e.log.Debug("evaluation complete",
			slog.String("session", e.id),
			slog.Int("bars", e.frames[e.base].Len()),
			slog.Duration("took", time.Since(start)))
	}
	return res, nil
}

func (e *Engine) observeErr(err error) error {
	if e.met != nil && dsl.IsKind(err, dsl.KindEvaluationTimeout) {
		e.met.EvalTimeouts.Inc()
	}
	return err
}

// isBoolean reports whether a node yields a boolean series; the pairwise
// edge-test builtins are boolean calls.
func (e *Engine) isBoolean(n dsl.Node) bool {
	if dsl.IsBoolean(n) {
		return true
	}
	if c, ok := n.(*dsl.Call); ok {
		return isBoolCall(c.Name)
	}
	return false
}

func isBoolCall(name string) bool {
	switch name {
	case "CROSSOVER", "CROSSUNDER", "CROSSING_ABOVE", "CROSSING_BELOW":
		return true
	}
	return false
}

// tfOf returns a node's effective timeframe, defaulting to the base.
func (e *Engine) tfOf(n dsl.Node) string {
	if tf, ok := e.effTF[n]; ok && tf != "" {
		return tf
	}
	return e.base
}

// frame returns the preloaded frame for a timeframe.
func (e *Engine) frame(tf string) (*candles.Frame, error) {
	f, ok := e.frames[tf]
	if !ok {
		return nil, dsl.Errorf(dsl.KindUnsupportedTimeframe, "no candle data loaded for timeframe %q", tf)
	}
	return f, nil
}

// alignIdx returns (building lazily) the alignment map from the base
// timeframe to tf.
func (e *Engine) alignIdx(tf string) ([]int, error) {
	if idx, ok := e.aligns[tf]; ok {
		return idx, nil
	}
	f, err := e.frame(tf)
	if err != nil {
		return nil, err
	}
	idx := alignmentMap(e.frames[e.base].CloseTimes(), f.CloseTimes())
	e.aligns[tf] = idx
	return idx, nil
}

// checkDeadline implements the cooperative timeout: it runs at each node
// visit, never inside tight numeric loops.
func (e *Engine) checkDeadline() error {
	if !e.deadline.IsZero() && time.Now().After(e.deadline) {
		return dsl.Errorf(dsl.KindEvaluationTimeout, "evaluation exceeded budget of %s", e.limits.Timeout)
	}
	return nil
}

// fingerprintPass precomputes structural fingerprints for every node so the
// hot evaluation path never re-serializes sub-trees.
func (e *Engine) fingerprintPass(root dsl.Node) {
	e.fps = make(map[dsl.Node]string)
	dsl.Walk(root, func(n dsl.Node) bool {
		e.fps[n] = dsl.Fingerprint(n)
		return true
	})
}

func (e *Engine) fp(n dsl.Node) string {
	if s, ok := e.fps[n]; ok {
		return s
	}
	return dsl.Fingerprint(n)
}
