package analytics

import (
	"fmt"
	"math"

	"github.com/filippobounous/fbinv/internal/models"
)

// VolatilityEstimator selects the realised-volatility formula. The range
// estimators use the OHLC columns and converge faster than close-to-close
// on the same sample size.
type VolatilityEstimator string

const (
	VolCloseToClose   VolatilityEstimator = "close_to_close"
	VolParkinson      VolatilityEstimator = "parkinson"
	VolGarmanKlass    VolatilityEstimator = "garman_klass"
	VolRogersSatchell VolatilityEstimator = "rogers_satchell"
	VolGKYangZhang    VolatilityEstimator = "gk_yang_zhang"
)

// Volatility computes the annualised realised volatility of a full series
// under the chosen estimator.
func Volatility(s models.Series, est VolatilityEstimator) (float64, error) {
	if len(s) < 2 {
		return 0, ErrInsufficientData
	}
	variances, err := dailyVariances(s, est)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mean(variances) * TradingDaysPerYear), nil
}

// RollingVolatility computes the annualised volatility over a trailing
// window. The result has one value per bar from index window onward.
func RollingVolatility(s models.Series, est VolatilityEstimator, window int) ([]float64, error) {
	if window < 2 {
		return nil, fmt.Errorf("window must be at least 2, got %d", window)
	}
	if len(s) <= window {
		return nil, ErrInsufficientData
	}
	variances, err := dailyVariances(s, est)
	if err != nil {
		return nil, err
	}

	out := make([]float64, 0, len(variances)-window+1)
	for i := window; i <= len(variances); i++ {
		out = append(out, math.Sqrt(mean(variances[i-window:i])*TradingDaysPerYear))
	}
	return out, nil
}

// dailyVariances returns the per-bar variance contribution of each day
// after the first.
func dailyVariances(s models.Series, est VolatilityEstimator) ([]float64, error) {
	switch est {
	case VolCloseToClose, "":
		rets := LogReturns(s.Closes())
		m := mean(rets)
		out := make([]float64, len(rets))
		for i, r := range rets {
			d := r - m
			out[i] = d * d
		}
		return out, nil
	case VolParkinson:
		return barVariances(s, parkinsonVariance), nil
	case VolGarmanKlass:
		return barVariances(s, garmanKlassVariance), nil
	case VolRogersSatchell:
		return barVariances(s, rogersSatchellVariance), nil
	case VolGKYangZhang:
		out := make([]float64, 0, len(s)-1)
		for i := 1; i < len(s); i++ {
			v := garmanKlassVariance(s[i])
			if s[i-1].Close > 0 && s[i].Open > 0 {
				jump := math.Log(s[i].Open / s[i-1].Close)
				v += 0.5 * jump * jump
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown volatility estimator %q", est)
	}
}

func barVariances(s models.Series, f func(models.Bar) float64) []float64 {
	out := make([]float64, 0, len(s)-1)
	for _, b := range s[1:] {
		out = append(out, f(b))
	}
	return out
}

func parkinsonVariance(b models.Bar) float64 {
	if b.Low <= 0 {
		return 0
	}
	hl := math.Log(b.High / b.Low)
	return hl * hl / (4 * math.Ln2)
}

func garmanKlassVariance(b models.Bar) float64 {
	if b.Low <= 0 || b.Open <= 0 {
		return 0
	}
	hl := math.Log(b.High / b.Low)
	co := math.Log(b.Close / b.Open)
	return 0.5*hl*hl - (2*math.Ln2-1)*co*co
}

func rogersSatchellVariance(b models.Bar) float64 {
	if b.Open <= 0 || b.Close <= 0 || b.Low <= 0 {
		return 0
	}
	return math.Log(b.High/b.Close)*math.Log(b.High/b.Open) +
		math.Log(b.Low/b.Close)*math.Log(b.Low/b.Open)
}
