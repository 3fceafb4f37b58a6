package engine

import (
	"strings"

	"alert-systemv1/internal/candles"
	"alert-systemv1/internal/dsl"
	"alert-systemv1/internal/indicator"
)

// CallSeries computes a shaped built-in call over one frame. num evaluates
// a numeric argument into a series on the same frame; scalar resolves a
// constant parameter (literal, signed literal, or bound parameter). Both
// the vectorized engine and the pointwise evaluator dispatch through here
// so the two runtimes cannot drift on indicator semantics.
func CallSeries(shape *dsl.CallShape, f *candles.Frame,
	num func(dsl.Node) ([]float64, error),
	scalar func(dsl.Node) (float64, error)) ([]float64, error) {

	args := shape.Args
	intArg := func(n dsl.Node) (int, error) {
		v, err := scalar(n)
		if err != nil {
			return 0, err
		}
		return int(v), nil
	}

	switch shape.Name {
	case "OPEN", "HIGH", "LOW", "CLOSE", "VOLUME":
		col, _ := f.Field(strings.ToLower(shape.Name))
		return col, nil

	case "PRICE":
		source := "close"
		if len(args) == 1 {
			id, ok := args[0].(*dsl.Ident)
			if !ok {
				return nil, dsl.Errorf(dsl.KindMalformedAst, "PRICE source must be a field name")
			}
			source = id.Name
		}
		col, ok := f.Field(source)
		if !ok {
			return nil, dsl.Errorf(dsl.KindUnknownIdentifier, "unknown price source %q", source)
		}
		return col, nil

	case "SMA", "EMA", "RSI", "STDDEV", "MAX", "MIN", "AVG", "SUM":
		series, err := num(args[0])
		if err != nil {
			return nil, err
		}
		length, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		switch shape.Name {
		case "SMA", "AVG":
			return indicator.SMA(series, length), nil
		case "EMA":
			return indicator.EMA(series, length), nil
		case "RSI":
			return indicator.RSI(series, length), nil
		case "STDDEV":
			return indicator.Stddev(series, length), nil
		case "MAX":
			return indicator.RollingMax(series, length), nil
		case "MIN":
			return indicator.RollingMin(series, length), nil
		default: // SUM
			return indicator.RollingSum(series, length), nil
		}

	case "RET":
		series, err := num(args[0])
		if err != nil {
			return nil, err
		}
		return indicator.Ret(series), nil

	case "ATR", "ADX":
		length, err := intArg(args[0])
		if err != nil {
			return nil, err
		}
		if shape.Name == "ATR" {
			return indicator.ATR(f.High, f.Low, f.Close, length), nil
		}
		return indicator.ADX(f.High, f.Low, f.Close, length), nil

	case "OBV", "VWAP":
		price, err := num(args[0])
		if err != nil {
			return nil, err
		}
		volume, err := num(args[1])
		if err != nil {
			return nil, err
		}
		if shape.Name == "OBV" {
			return indicator.OBV(price, volume), nil
		}
		return indicator.VWAP(price, volume, f.Times), nil

	case "MACD", "MACD_SIGNAL", "MACD_HIST":
		series, err := num(args[0])
		if err != nil {
			return nil, err
		}
		fast, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		slow, err := intArg(args[2])
		if err != nil {
			return nil, err
		}
		signal, err := intArg(args[3])
		if err != nil {
			return nil, err
		}
		macd, signalLine, hist := indicator.MACD(series, fast, slow, signal)
		switch shape.Name {
		case "MACD":
			return macd, nil
		case "MACD_SIGNAL":
			return signalLine, nil
		default:
			return hist, nil
		}

	case "SUPERTREND_LINE", "SUPERTREND_DIR":
		var (
			src  []float64
			rest = args
			err  error
		)
		if shape.HasLeadingSource() {
			src, err = num(args[0])
			if err != nil {
				return nil, err
			}
			rest = args[1:]
		}
		length, err := intArg(rest[0])
		if err != nil {
			return nil, err
		}
		mult, err := scalar(rest[1])
		if err != nil {
			return nil, err
		}
		line, dir := indicator.Supertrend(f.High, f.Low, f.Close, src, length, mult)
		if shape.Name == "SUPERTREND_LINE" {
			return line, nil
		}
		return dir, nil

	case "LAG", "ROC", "Z_SCORE":
		series, err := num(args[0])
		if err != nil {
			return nil, err
		}
		length, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		switch shape.Name {
		case "LAG":
			return indicator.Lag(series, length), nil
		case "ROC":
			return indicator.ROC(series, length), nil
		default:
			return indicator.ZScore(series, length), nil
		}

	case "BOLLINGER":
		series, err := num(args[0])
		if err != nil {
			return nil, err
		}
		length, err := intArg(args[1])
		if err != nil {
			return nil, err
		}
		mult, err := scalar(args[2])
		if err != nil {
			return nil, err
		}
		return indicator.Bollinger(series, length, mult), nil

	case "ABS", "SQRT", "LOG", "EXP":
		series, err := num(args[0])
		if err != nil {
			return nil, err
		}
		switch shape.Name {
		case "ABS":
			return indicator.Abs(series), nil
		case "SQRT":
			return indicator.Sqrt(series), nil
		case "LOG":
			return indicator.Log(series), nil
		default:
			return indicator.Exp(series), nil
		}

	case "POW":
		a, err := num(args[0])
		if err != nil {
			return nil, err
		}
		b, err := num(args[1])
		if err != nil {
			return nil, err
		}
		return indicator.Pow(a, b), nil

	case "CROSSOVER", "CROSSUNDER", "CROSSING_ABOVE", "CROSSING_BELOW":
		return nil, dsl.Errorf(dsl.KindMalformedAst, "%s yields a boolean series, not a numeric one", shape.Name)

	default:
		return nil, dsl.Errorf(dsl.KindUnknownFunction, "unknown function %q", shape.Name)
	}
}
