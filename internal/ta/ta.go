package ta

import "math"

// SMA returns the simple moving average of the last n values.
func SMA(vals []float64, n int) float64 {
	if len(vals) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(vals) - n; i < len(vals); i++ {
		sum += vals[i]
	}
	return sum / float64(n)
}

// Mean returns the arithmetic mean of the whole slice.
func Mean(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// Std returns the population standard deviation of the whole slice.
func Std(vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	m := Mean(vals)
	s := 0.0
	for _, v := range vals {
		d := v - m
		s += d * d
	}
	return math.Sqrt(s / float64(len(vals)))
}

// CoefVariation returns std/mean, the scale-free volatility measure used for
// consolidation runs. A single value or a zero mean yields 0.
func CoefVariation(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := Mean(vals)
	if m == 0 {
		return 0
	}
	return Std(vals) / m
}
