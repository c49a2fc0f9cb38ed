// Package analytics computes return, risk and simulation statistics over
// cached price histories. Everything operates on plain float slices or a
// models.Series so the HTTP layer can feed it straight from the cache.
package analytics

import (
	"errors"
	"math"
)

// TradingDaysPerYear is the annualisation base for daily statistics.
const TradingDaysPerYear = 252

// ErrInsufficientData is returned when a statistic needs more observations
// than the series provides.
var ErrInsufficientData = errors.New("insufficient data points")

// SimpleReturns computes period-over-period percentage returns.
func SimpleReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, closes[i]/closes[i-1]-1)
	}
	return out
}

// LogReturns computes period-over-period log returns. Non-positive prices
// contribute a zero return rather than a NaN.
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// sampleStdDev is the n-1 standard deviation.
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
