package dsl

// Signature describes the argument shape of a built-in function. Argument
// counts exclude the optional trailing timeframe identifier.
type Signature struct {
	MinArgs int
	MaxArgs int

	// TrailingTF permits one extra trailing Ident argument naming the
	// timeframe the call is evaluated in (e.g. SMA(close, 20, 1d)).
	TrailingTF bool

	// LeadingSource permits an optional leading series argument (only the
	// SUPERTREND_* family uses this). When present, length-argument indices
	// shift right by one.
	LeadingSource bool

	// LengthArgs are the indices (within the TF-stripped argument list) of
	// integer lookback parameters, checked against the MaxLookback limit.
	LengthArgs []int
}

// Builtins maps every built-in function name to its signature.
var Builtins = map[string]Signature{
	// Price/volume field accessors.
	"OPEN":   {MinArgs: 0, MaxArgs: 0, TrailingTF: true},
	"HIGH":   {MinArgs: 0, MaxArgs: 0, TrailingTF: true},
	"LOW":    {MinArgs: 0, MaxArgs: 0, TrailingTF: true},
	"CLOSE":  {MinArgs: 0, MaxArgs: 0, TrailingTF: true},
	"VOLUME": {MinArgs: 0, MaxArgs: 0, TrailingTF: true},
	"PRICE":  {MinArgs: 0, MaxArgs: 1, TrailingTF: true}, // PRICE(tf) or PRICE(source, tf)

	// Rolling window functions: (series, length, tf?).
	"SMA":    {MinArgs: 2, MaxArgs: 2, TrailingTF: true, LengthArgs: []int{1}},
	"EMA":    {MinArgs: 2, MaxArgs: 2, TrailingTF: true, LengthArgs: []int{1}},
	"RSI":    {MinArgs: 2, MaxArgs: 2, TrailingTF: true, LengthArgs: []int{1}},
	"STDDEV": {MinArgs: 2, MaxArgs: 2, TrailingTF: true, LengthArgs: []int{1}},
	"MAX":    {MinArgs: 2, MaxArgs: 2, TrailingTF: true, LengthArgs: []int{1}},
	"MIN":    {MinArgs: 2, MaxArgs: 2, TrailingTF: true, LengthArgs: []int{1}},
	"AVG":    {MinArgs: 2, MaxArgs: 2, TrailingTF: true, LengthArgs: []int{1}},
	"SUM":    {MinArgs: 2, MaxArgs: 2, TrailingTF: true, LengthArgs: []int{1}},

	// One-bar return and volatility family.
	"RET": {MinArgs: 1, MaxArgs: 1, TrailingTF: true},
	"ATR": {MinArgs: 1, MaxArgs: 1, TrailingTF: true, LengthArgs: []int{0}},
	"ADX": {MinArgs: 1, MaxArgs: 1, TrailingTF: true, LengthArgs: []int{0}},

	// Volume-weighted family: (price, volume, tf?).
	"OBV":  {MinArgs: 2, MaxArgs: 2, TrailingTF: true},
	"VWAP": {MinArgs: 2, MaxArgs: 2, TrailingTF: true},

	// MACD family: (series, fast, slow, signal, tf?).
	"MACD":        {MinArgs: 4, MaxArgs: 4, TrailingTF: true, LengthArgs: []int{1, 2, 3}},
	"MACD_SIGNAL": {MinArgs: 4, MaxArgs: 4, TrailingTF: true, LengthArgs: []int{1, 2, 3}},
	"MACD_HIST":   {MinArgs: 4, MaxArgs: 4, TrailingTF: true, LengthArgs: []int{1, 2, 3}},

	// Supertrend family: ([source,] length, mult, tf?).
	"SUPERTREND_LINE": {MinArgs: 2, MaxArgs: 3, TrailingTF: true, LeadingSource: true, LengthArgs: []int{0}},
	"SUPERTREND_DIR":  {MinArgs: 2, MaxArgs: 3, TrailingTF: true, LeadingSource: true, LengthArgs: []int{0}},

	// Series transforms.
	"LAG":       {MinArgs: 2, MaxArgs: 2, LengthArgs: []int{1}},
	"ROC":       {MinArgs: 2, MaxArgs: 2, LengthArgs: []int{1}},
	"Z_SCORE":   {MinArgs: 2, MaxArgs: 2, LengthArgs: []int{1}},
	"BOLLINGER": {MinArgs: 3, MaxArgs: 3, LengthArgs: []int{1}},

	// Pairwise edge tests.
	"CROSSOVER":      {MinArgs: 2, MaxArgs: 2},
	"CROSSUNDER":     {MinArgs: 2, MaxArgs: 2},
	"CROSSING_ABOVE": {MinArgs: 2, MaxArgs: 2},
	"CROSSING_BELOW": {MinArgs: 2, MaxArgs: 2},

	// Elementwise math.
	"ABS":  {MinArgs: 1, MaxArgs: 1},
	"SQRT": {MinArgs: 1, MaxArgs: 1},
	"LOG":  {MinArgs: 1, MaxArgs: 1},
	"EXP":  {MinArgs: 1, MaxArgs: 1},
	"POW":  {MinArgs: 2, MaxArgs: 2},
}

// IsBuiltin reports whether name is a built-in function.
func IsBuiltin(name string) bool {
	_, ok := Builtins[name]
	return ok
}

// CallShape is a Call with the trailing timeframe identifier (if any)
// separated from the positional arguments.
type CallShape struct {
	Name string
	Args []Node // positional args, trailing TF ident stripped
	TF   string // "" when the call inherits the evaluation timeframe
}

// ShapeCall checks a built-in call against its signature and splits off the
// trailing timeframe identifier. Fails with UNKNOWN_FUNCTION for unknown
// names and ARITY_MISMATCH for bad argument counts.
func ShapeCall(c *Call) (*CallShape, error) {
	sig, ok := Builtins[c.Name]
	if !ok {
		return nil, Errorf(KindUnknownFunction, "unknown function %q", c.Name)
	}
	args := c.Args
	tf := ""
	if sig.TrailingTF && len(args) > 0 {
		if id, ok := args[len(args)-1].(*Ident); ok && IsTimeframe(id.Name) {
			tf = id.Name
			args = args[:len(args)-1]
		}
	}
	if len(args) < sig.MinArgs || len(args) > sig.MaxArgs {
		if sig.TrailingTF {
			return nil, Errorf(KindArityMismatch, "%s expects %d..%d arguments plus an optional timeframe, got %d",
				c.Name, sig.MinArgs, sig.MaxArgs, len(c.Args))
		}
		return nil, Errorf(KindArityMismatch, "%s expects %d..%d arguments, got %d",
			c.Name, sig.MinArgs, sig.MaxArgs, len(c.Args))
	}
	return &CallShape{Name: c.Name, Args: args, TF: tf}, nil
}

// LengthArgIndices returns the lookback-argument indices for a shaped call,
// accounting for the optional leading source argument of the SUPERTREND
// family.
func (s *CallShape) LengthArgIndices() []int {
	sig := Builtins[s.Name]
	if !sig.LeadingSource {
		return sig.LengthArgs
	}
	// With a leading source present the length args shift right by one.
	if len(s.Args) > sig.MinArgs {
		shifted := make([]int, len(sig.LengthArgs))
		for i, idx := range sig.LengthArgs {
			shifted[i] = idx + 1
		}
		return shifted
	}
	return sig.LengthArgs
}

// HasLeadingSource reports whether a shaped SUPERTREND-family call carries an
// explicit source series as its first argument.
func (s *CallShape) HasLeadingSource() bool {
	sig := Builtins[s.Name]
	return sig.LeadingSource && len(s.Args) > sig.MinArgs
}
