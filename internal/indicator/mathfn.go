package indicator

import "math"

// Elementwise math over series. Invalid arguments (negative sqrt/log inputs,
// log of zero) yield a missing element, never an error.

func Abs(v []float64) []float64 {
	return mapDefined(v, math.Abs)
}

func Sqrt(v []float64) []float64 {
	return mapDefined(v, func(x float64) float64 {
		if x < 0 {
			return Missing()
		}
		return math.Sqrt(x)
	})
}

func Log(v []float64) []float64 {
	return mapDefined(v, func(x float64) float64 {
		if x <= 0 {
			return Missing()
		}
		return math.Log(x)
	})
}

func Exp(v []float64) []float64 {
	return mapDefined(v, math.Exp)
}

// Pow raises a to the b'th power elementwise; non-finite results are missing.
func Pow(a, b []float64) []float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := AllMissing(n)
	for i := 0; i < n; i++ {
		if !Defined(a[i]) || !Defined(b[i]) {
			continue
		}
		r := math.Pow(a[i], b[i])
		if math.IsInf(r, 0) {
			continue
		}
		out[i] = r
	}
	return out
}

func mapDefined(v []float64, fn func(float64) float64) []float64 {
	out := AllMissing(len(v))
	for i, x := range v {
		if Defined(x) {
			out[i] = fn(x)
		}
	}
	return out
}
