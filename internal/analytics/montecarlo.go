package analytics

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

// SimulationModel selects the stochastic process for Monte Carlo paths.
type SimulationModel string

const (
	ModelGBM           SimulationModel = "gbm"
	ModelJumpDiffusion SimulationModel = "jump_diffusion"
)

// SimulationParams configures a Monte Carlo run. Drift and Sigma are
// annualised; the simulation steps daily. Antithetic sampling doubles the
// effective path count without extra variance.
type SimulationParams struct {
	Model SimulationModel
	Spot  float64
	Drift float64
	Sigma float64
	Days  int
	Paths int
	Seed  int64

	// Jump-diffusion only: annual jump intensity and jump-size log-normal
	// moments.
	JumpIntensity float64
	JumpMean      float64
	JumpSigma     float64
}

// SimulationResult summarises the terminal price distribution.
type SimulationResult struct {
	Terminal []float64 `json:"-"`
	Mean     float64   `json:"mean"`
	StdDev   float64   `json:"std_dev"`
	P5       float64   `json:"p5"`
	P50      float64   `json:"p50"`
	P95      float64   `json:"p95"`
}

// Simulate runs the configured process and returns terminal-price
// statistics. The same seed always produces the same result.
func Simulate(p SimulationParams) (SimulationResult, error) {
	if p.Spot <= 0 {
		return SimulationResult{}, fmt.Errorf("spot must be positive, got %v", p.Spot)
	}
	if p.Days <= 0 || p.Paths <= 0 {
		return SimulationResult{}, fmt.Errorf("days and paths must be positive")
	}
	if p.Model != ModelGBM && p.Model != ModelJumpDiffusion && p.Model != "" {
		return SimulationResult{}, fmt.Errorf("unknown simulation model %q", p.Model)
	}

	rng := rand.New(rand.NewSource(p.Seed))
	dt := 1.0 / TradingDaysPerYear
	drift := (p.Drift - 0.5*p.Sigma*p.Sigma) * dt
	diffusion := p.Sigma * math.Sqrt(dt)
	jumpProb := p.JumpIntensity * dt

	terminal := make([]float64, 0, p.Paths)
	for i := 0; i < (p.Paths+1)/2; i++ {
		logS := math.Log(p.Spot)
		logSAnti := logS
		for d := 0; d < p.Days; d++ {
			z := rng.NormFloat64()
			logS += drift + diffusion*z
			logSAnti += drift - diffusion*z

			if p.Model == ModelJumpDiffusion && rng.Float64() < jumpProb {
				jump := p.JumpMean + p.JumpSigma*rng.NormFloat64()
				logS += jump
				logSAnti += jump
			}
		}
		terminal = append(terminal, math.Exp(logS))
		if len(terminal) < p.Paths {
			terminal = append(terminal, math.Exp(logSAnti))
		}
	}

	return summarise(terminal), nil
}

// Asset is one instrument in a correlated simulation. Drift and Sigma are
// annualised, matching SimulationParams.
type Asset struct {
	Spot  float64
	Drift float64
	Sigma float64
}

// CorrelatedParams configures a multi-asset GBM run. Corr is the asset
// correlation matrix; the daily shocks are coupled through its Cholesky
// factor. A nil Corr simulates independent assets.
type CorrelatedParams struct {
	Assets []Asset
	Corr   [][]float64
	Days   int
	Paths  int
	Seed   int64
}

// SimulateCorrelated runs correlated price paths for a set of assets and
// returns one terminal-price summary per asset, in input order. The same
// seed always produces the same result.
func SimulateCorrelated(p CorrelatedParams) ([]SimulationResult, error) {
	n := len(p.Assets)
	if n == 0 {
		return nil, fmt.Errorf("at least one asset is required")
	}
	if p.Days <= 0 || p.Paths <= 0 {
		return nil, fmt.Errorf("days and paths must be positive")
	}
	for i, a := range p.Assets {
		if a.Spot <= 0 {
			return nil, fmt.Errorf("asset %d: spot must be positive, got %v", i, a.Spot)
		}
	}
	corr := p.Corr
	if corr == nil {
		corr = identityMatrix(n)
	}
	if len(corr) != n {
		return nil, fmt.Errorf("correlation matrix has %d rows for %d assets", len(corr), n)
	}
	chol, err := cholesky(corr)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(p.Seed))
	dt := 1.0 / TradingDaysPerYear
	drift := make([]float64, n)
	diffusion := make([]float64, n)
	for i, a := range p.Assets {
		drift[i] = (a.Drift - 0.5*a.Sigma*a.Sigma) * dt
		diffusion[i] = a.Sigma * math.Sqrt(dt)
	}

	terminal := make([][]float64, n)
	logS := make([]float64, n)
	raw := make([]float64, n)
	for path := 0; path < p.Paths; path++ {
		for i, a := range p.Assets {
			logS[i] = math.Log(a.Spot)
		}
		for d := 0; d < p.Days; d++ {
			for i := range raw {
				raw[i] = rng.NormFloat64()
			}
			// Correlated shock for asset i is the i-th row of L applied to
			// the independent draws.
			for i := 0; i < n; i++ {
				var z float64
				for j := 0; j <= i; j++ {
					z += chol[i][j] * raw[j]
				}
				logS[i] += drift[i] + diffusion[i]*z
			}
		}
		for i := range logS {
			terminal[i] = append(terminal[i], math.Exp(logS[i]))
		}
	}

	results := make([]SimulationResult, n)
	for i := range results {
		results[i] = summarise(terminal[i])
	}
	return results, nil
}

func identityMatrix(n int) [][]float64 {
	m := make([][]float64, n)
	for i := range m {
		m[i] = make([]float64, n)
		m[i][i] = 1
	}
	return m
}

// cholesky returns the lower-triangular factor of a symmetric positive
// definite matrix.
func cholesky(m [][]float64) ([][]float64, error) {
	n := len(m)
	out := make([][]float64, n)
	for i := range out {
		if len(m[i]) != n {
			return nil, fmt.Errorf("correlation matrix must be square")
		}
		out[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := m[i][j]
			for k := 0; k < j; k++ {
				sum -= out[i][k] * out[j][k]
			}
			if i == j {
				if sum <= 0 {
					return nil, fmt.Errorf("correlation matrix is not positive definite")
				}
				out[i][i] = math.Sqrt(sum)
			} else {
				out[i][j] = sum / out[j][j]
			}
		}
	}
	return out, nil
}

func summarise(terminal []float64) SimulationResult {
	sorted := append([]float64(nil), terminal...)
	sort.Float64s(sorted)
	return SimulationResult{
		Terminal: terminal,
		Mean:     mean(terminal),
		StdDev:   sampleStdDev(terminal),
		P5:       percentile(sorted, 0.05),
		P50:      percentile(sorted, 0.50),
		P95:      percentile(sorted, 0.95),
	}
}

// percentile reads a quantile from an ascending-sorted slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(q * float64(len(sorted)-1)))
	return sorted[idx]
}
