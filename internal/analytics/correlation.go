package analytics

import (
	"fmt"
	"math"
)

// Pearson computes the Pearson correlation of two equal-length samples.
func Pearson(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("sample lengths differ: %d vs %d", len(x), len(y))
	}
	if len(x) < 2 {
		return 0, ErrInsufficientData
	}

	mx, my := mean(x), mean(y)
	var sxy, sxx, syy float64
	for i := range x {
		dx, dy := x[i]-mx, y[i]-my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0, nil
	}
	return sxy / math.Sqrt(sxx*syy), nil
}

// CorrelationMatrix computes the pairwise Pearson matrix of several return
// series. All series must have the same length.
func CorrelationMatrix(series [][]float64) ([][]float64, error) {
	n := len(series)
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
		out[i][i] = 1
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c, err := Pearson(series[i], series[j])
			if err != nil {
				return nil, fmt.Errorf("series %d vs %d: %w", i, j, err)
			}
			out[i][j] = c
			out[j][i] = c
		}
	}
	return out, nil
}

// RollingCorrelation computes the trailing-window Pearson correlation, one
// value per observation from index window onward.
func RollingCorrelation(x, y []float64, window int) ([]float64, error) {
	if len(x) != len(y) {
		return nil, fmt.Errorf("sample lengths differ: %d vs %d", len(x), len(y))
	}
	if window < 2 {
		return nil, fmt.Errorf("window must be at least 2, got %d", window)
	}
	if len(x) < window {
		return nil, ErrInsufficientData
	}

	out := make([]float64, 0, len(x)-window+1)
	for i := window; i <= len(x); i++ {
		c, err := Pearson(x[i-window:i], y[i-window:i])
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
