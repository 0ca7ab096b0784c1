package decline

import "math"

// Forecast evaluates the Arps exponential decline model q(t) = qi * exp(-di*t)
// at integer month offset t. The result is always >= 0 and, for di > 0,
// non-increasing in t. Forecast(qi, di, 0) returns qi exactly.
func Forecast(qi, di float64, t int) float64 {
	return qi * math.Exp(-di*float64(t))
}

// ForecastRange evaluates the model over the contiguous offsets
// [offset, offset+months). It serves both to regenerate history-aligned
// forecasts (offset 0 over the observed range) and to project beyond it.
func ForecastRange(qi, di float64, months, offset int) []float64 {
	if months <= 0 {
		return nil
	}
	out := make([]float64, months)
	for i := 0; i < months; i++ {
		out[i] = Forecast(qi, di, offset+i)
	}
	return out
}
