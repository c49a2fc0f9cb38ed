package analytics

import (
	"math"
)

// Metrics is the standard performance summary for one instrument.
type Metrics struct {
	CumulativeReturn float64 `json:"cumulative_return"`
	AnnualisedReturn float64 `json:"annualised_return"`
	Volatility       float64 `json:"volatility"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	Sharpe           float64 `json:"sharpe"`
	Sortino          float64 `json:"sortino"`
	Observations     int     `json:"observations"`
}

// ComputeMetrics summarises a close-price series with a daily risk-free
// rate of riskFree (annualised fraction).
func ComputeMetrics(closes []float64, riskFree float64) (Metrics, error) {
	if len(closes) < 2 {
		return Metrics{}, ErrInsufficientData
	}
	rets := SimpleReturns(closes)

	return Metrics{
		CumulativeReturn: CumulativeReturn(closes),
		AnnualisedReturn: AnnualisedReturn(closes),
		Volatility:       sampleStdDev(rets) * math.Sqrt(TradingDaysPerYear),
		MaxDrawdown:      MaxDrawdown(closes),
		Sharpe:           SharpeRatio(rets, riskFree),
		Sortino:          SortinoRatio(rets, riskFree),
		Observations:     len(closes),
	}, nil
}

// CumulativeReturn is the total fractional gain from first to last close.
func CumulativeReturn(closes []float64) float64 {
	if len(closes) < 2 || closes[0] == 0 {
		return 0
	}
	return closes[len(closes)-1]/closes[0] - 1
}

// AnnualisedReturn geometrically scales the cumulative return to one year
// of trading days.
func AnnualisedReturn(closes []float64) float64 {
	if len(closes) < 2 || closes[0] <= 0 || closes[len(closes)-1] <= 0 {
		return 0
	}
	years := float64(len(closes)-1) / TradingDaysPerYear
	return math.Pow(closes[len(closes)-1]/closes[0], 1/years) - 1
}

// MaxDrawdown is the deepest peak-to-trough decline as a positive fraction.
func MaxDrawdown(closes []float64) float64 {
	var peak, worst float64
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if peak > 0 {
			if dd := 1 - c/peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// SharpeRatio is the annualised excess return over volatility.
func SharpeRatio(returns []float64, riskFree float64) float64 {
	sd := sampleStdDev(returns)
	if sd == 0 {
		return 0
	}
	excess := mean(returns) - riskFree/TradingDaysPerYear
	return excess / sd * math.Sqrt(TradingDaysPerYear)
}

// SortinoRatio penalises only downside deviation.
func SortinoRatio(returns []float64, riskFree float64) float64 {
	target := riskFree / TradingDaysPerYear
	var sum float64
	var n int
	for _, r := range returns {
		if r < target {
			d := r - target
			sum += d * d
			n++
		}
	}
	if n == 0 || sum == 0 {
		return 0
	}
	downside := math.Sqrt(sum / float64(len(returns)))
	return (mean(returns) - target) / downside * math.Sqrt(TradingDaysPerYear)
}
