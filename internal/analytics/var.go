package analytics

import (
	"fmt"
	"math"
	"sort"
)

// VaRMethod selects how value at risk is estimated from a return series.
type VaRMethod string

const (
	VaRHistorical  VaRMethod = "historical"
	VaRParametric  VaRMethod = "parametric"
	VaRConditional VaRMethod = "conditional"
)

// ValueAtRisk returns the loss threshold at the given confidence level as a
// positive fraction. confidence is e.g. 0.95 or 0.99.
func ValueAtRisk(returns []float64, confidence float64, method VaRMethod) (float64, error) {
	if confidence <= 0 || confidence >= 1 {
		return 0, fmt.Errorf("confidence must be in (0, 1), got %v", confidence)
	}
	if len(returns) < 2 {
		return 0, ErrInsufficientData
	}

	switch method {
	case VaRHistorical, "":
		return historicalVaR(returns, confidence), nil
	case VaRParametric:
		// Gaussian quantile via the inverse error function.
		z := math.Sqrt2 * math.Erfinv(2*confidence-1)
		return -(mean(returns) - z*sampleStdDev(returns)), nil
	case VaRConditional:
		return conditionalVaR(returns, confidence), nil
	default:
		return 0, fmt.Errorf("unknown VaR method %q", method)
	}
}

func historicalVaR(returns []float64, confidence float64) float64 {
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	idx := int(math.Floor(float64(len(sorted)) * (1 - confidence)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return -sorted[idx]
}

// conditionalVaR is the expected shortfall: the mean loss beyond the
// historical VaR threshold.
func conditionalVaR(returns []float64, confidence float64) float64 {
	sorted := append([]float64(nil), returns...)
	sort.Float64s(sorted)
	cut := int(math.Floor(float64(len(sorted)) * (1 - confidence)))
	if cut < 1 {
		cut = 1
	}
	return -mean(sorted[:cut])
}
