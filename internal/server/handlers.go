package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/filippobounous/fbinv/internal/analytics"
	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/models"
	"github.com/filippobounous/fbinv/internal/services/market"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)

	// Securities
	mux.HandleFunc("/api/securities", s.handleSecuritiesList)
	mux.HandleFunc("/api/securities/", s.handleSecurityGet)

	// Time series
	mux.HandleFunc("/api/timeseries/", s.routeTimeseries)

	// Analytics
	mux.HandleFunc("/api/analytics/returns/", s.handleReturns)
	mux.HandleFunc("/api/analytics/metrics/", s.handleMetrics)
	mux.HandleFunc("/api/analytics/volatility/", s.handleVolatility)
	mux.HandleFunc("/api/analytics/var/", s.handleVaR)
	mux.HandleFunc("/api/analytics/correlation", s.handleCorrelation)
	mux.HandleFunc("/api/analytics/simulate", s.handleSimulate)

	// Bulk updates
	mux.HandleFunc("/api/update", s.handleFullUpdate)
	mux.HandleFunc("/api/update/prices", s.handleUpdatePrices)
	mux.HandleFunc("/api/update/mapping", s.handleUpdateMapping)
}

// writeDomainError maps the engine's error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var merr *models.MappingError
	var cerr *models.ConfigError
	switch {
	case errors.As(err, &merr):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &cerr), models.IsUnsupported(err):
		WriteError(w, http.StatusBadRequest, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// historyOptionsFromQuery parses the common sync parameters. A nil return
// means a 400 has already been written.
func historyOptionsFromQuery(w http.ResponseWriter, r *http.Request) *market.HistoryOptions {
	q := r.URL.Query()
	opts := market.HistoryOptions{
		Frequency: models.Frequency(q.Get("frequency")),
		Provider:  q.Get("provider"),
		LocalOnly: q.Get("local_only") == "true",
	}
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse(models.DateLayout, v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid start_date: "+v)
			return nil
		}
		opts.StartDate = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse(models.DateLayout, v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid end_date: "+v)
			return nil
		}
		opts.EndDate = t
	}
	return &opts
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.app.StartupTime).String(),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"git_commit": common.GetGitCommit(),
		"build_time": common.GetBuildTime(),
	})
}

func (s *Server) handleSecuritiesList(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	secs, err := s.app.MappingStore.Securities()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"count":      len(secs),
		"securities": secs,
	})
}

func (s *Server) handleSecurityGet(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	code := PathParam(r, "/api/securities/", "")
	if code == "" {
		WriteError(w, http.StatusBadRequest, "Security code is required")
		return
	}
	sec, err := s.app.MappingStore.Resolve(code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, sec)
}

func (s *Server) routeTimeseries(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/chart") {
		s.handleChart(w, r)
		return
	}
	s.handlePriceHistory(w, r)
}

func (s *Server) handlePriceHistory(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	code := PathParam(r, "/api/timeseries/", "")
	if code == "" {
		WriteError(w, http.StatusBadRequest, "Security code is required")
		return
	}
	opts := historyOptionsFromQuery(w, r)
	if opts == nil {
		return
	}
	currency := r.URL.Query().Get("currency")

	series, err := s.app.Market.GetPriceHistoryInCurrencyByCode(r.Context(), code, currency, *opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := map[string]interface{}{
		"code":   code,
		"rows":   len(series),
		"series": series,
	}
	if currency != "" {
		resp["currency"] = currency
	}
	WriteJSON(w, http.StatusOK, resp)
}

// loadCloses fetches a close-price column for the analytics handlers.
func (s *Server) loadCloses(w http.ResponseWriter, r *http.Request, code string) ([]float64, bool) {
	opts := historyOptionsFromQuery(w, r)
	if opts == nil {
		return nil, false
	}
	series, err := s.app.Market.GetPriceHistoryByCode(r.Context(), code, *opts)
	if err != nil {
		writeDomainError(w, err)
		return nil, false
	}
	if series.Empty() {
		WriteError(w, http.StatusNotFound, "No price history for "+code)
		return nil, false
	}
	return series.Closes(), true
}

func (s *Server) handleReturns(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	code := PathParam(r, "/api/analytics/returns/", "")
	closes, ok := s.loadCloses(w, r, code)
	if !ok {
		return
	}

	kind := r.URL.Query().Get("kind")
	var values []float64
	switch kind {
	case "", "simple":
		kind = "simple"
		values = analytics.SimpleReturns(closes)
	case "log":
		values = analytics.LogReturns(closes)
	default:
		WriteError(w, http.StatusBadRequest, "Unknown returns kind: "+kind)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"code":         code,
		"kind":         kind,
		"observations": len(values),
		"values":       values,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	code := PathParam(r, "/api/analytics/metrics/", "")
	closes, ok := s.loadCloses(w, r, code)
	if !ok {
		return
	}

	riskFree := 0.0
	if v := r.URL.Query().Get("risk_free"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			riskFree = f
		}
	}

	metrics, err := analytics.ComputeMetrics(closes, riskFree)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"code":    code,
		"metrics": metrics,
	})
}

func (s *Server) handleVolatility(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	code := PathParam(r, "/api/analytics/volatility/", "")
	opts := historyOptionsFromQuery(w, r)
	if opts == nil {
		return
	}
	series, err := s.app.Market.GetPriceHistoryByCode(r.Context(), code, *opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	est := analytics.VolatilityEstimator(r.URL.Query().Get("estimator"))
	if window := r.URL.Query().Get("window"); window != "" {
		n, err := strconv.Atoi(window)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid window: "+window)
			return
		}
		values, err := analytics.RollingVolatility(series, est, n)
		if err != nil {
			WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"code":      code,
			"estimator": est,
			"window":    n,
			"values":    values,
		})
		return
	}

	v, err := analytics.Volatility(series, est)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"code":       code,
		"estimator":  est,
		"annualised": v,
	})
}

func (s *Server) handleVaR(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	code := PathParam(r, "/api/analytics/var/", "")
	closes, ok := s.loadCloses(w, r, code)
	if !ok {
		return
	}

	confidence := 0.95
	if v := r.URL.Query().Get("confidence"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "Invalid confidence: "+v)
			return
		}
		confidence = f
	}
	method := analytics.VaRMethod(r.URL.Query().Get("method"))

	value, err := analytics.ValueAtRisk(analytics.SimpleReturns(closes), confidence, method)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"code":       code,
		"confidence": confidence,
		"method":     method,
		"var":        value,
	})
}

func (s *Server) handleCorrelation(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	codes := strings.Split(r.URL.Query().Get("codes"), ",")
	if len(codes) < 2 || codes[0] == "" {
		WriteError(w, http.StatusBadRequest, "At least two codes are required")
		return
	}
	opts := historyOptionsFromQuery(w, r)
	if opts == nil {
		return
	}

	// Align on the shortest series so every column has the same sample.
	var returns [][]float64
	minLen := -1
	for _, code := range codes {
		series, err := s.app.Market.GetPriceHistoryByCode(r.Context(), code, *opts)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		rets := analytics.SimpleReturns(series.Closes())
		if len(rets) == 0 {
			WriteError(w, http.StatusNotFound, "No price history for "+code)
			return
		}
		returns = append(returns, rets)
		if minLen < 0 || len(rets) < minLen {
			minLen = len(rets)
		}
	}
	for i := range returns {
		returns[i] = returns[i][len(returns[i])-minLen:]
	}

	matrix, err := analytics.CorrelationMatrix(returns)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"codes":        codes,
		"observations": minLen,
		"matrix":       matrix,
	})
}

// simulateRequest is the body of POST /api/analytics/simulate. When a code
// is given, spot and sigma default to values derived from its history. A
// non-empty assets list selects the correlated multi-asset run instead.
type simulateRequest struct {
	Code          string  `json:"code,omitempty"`
	Model         string  `json:"model,omitempty"`
	Spot          float64 `json:"spot,omitempty"`
	Drift         float64 `json:"drift,omitempty"`
	Sigma         float64 `json:"sigma,omitempty"`
	Days          int     `json:"days"`
	Paths         int     `json:"paths"`
	Seed          int64   `json:"seed,omitempty"`
	JumpIntensity float64 `json:"jump_intensity,omitempty"`
	JumpMean      float64 `json:"jump_mean,omitempty"`
	JumpSigma     float64 `json:"jump_sigma,omitempty"`

	Assets      []simulateAsset `json:"assets,omitempty"`
	Correlation [][]float64     `json:"correlation,omitempty"`
}

type simulateAsset struct {
	Code  string  `json:"code,omitempty"`
	Spot  float64 `json:"spot,omitempty"`
	Drift float64 `json:"drift,omitempty"`
	Sigma float64 `json:"sigma,omitempty"`
}

// deriveFromHistory fills a missing spot or sigma from a code's cached
// history. A false return means an error response has been written.
func (s *Server) deriveFromHistory(w http.ResponseWriter, r *http.Request, code string, spot, sigma float64) (float64, float64, bool) {
	if code == "" || (spot != 0 && sigma != 0) {
		return spot, sigma, true
	}
	series, err := s.app.Market.GetPriceHistoryByCode(r.Context(), code, market.HistoryOptions{LocalOnly: true})
	if err != nil {
		writeDomainError(w, err)
		return 0, 0, false
	}
	if series.Empty() {
		WriteError(w, http.StatusNotFound, "No price history for "+code)
		return 0, 0, false
	}
	if spot == 0 {
		spot = series[len(series)-1].Close
	}
	if sigma == 0 {
		v, err := analytics.Volatility(series, analytics.VolCloseToClose)
		if err != nil {
			WriteError(w, http.StatusUnprocessableEntity, err.Error())
			return 0, 0, false
		}
		sigma = v
	}
	return spot, sigma, true
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var req simulateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if len(req.Assets) > 0 {
		s.simulateCorrelated(w, r, req)
		return
	}

	var ok bool
	req.Spot, req.Sigma, ok = s.deriveFromHistory(w, r, req.Code, req.Spot, req.Sigma)
	if !ok {
		return
	}

	result, err := analytics.Simulate(analytics.SimulationParams{
		Model: analytics.SimulationModel(req.Model),
		Spot:  req.Spot, Drift: req.Drift, Sigma: req.Sigma,
		Days: req.Days, Paths: req.Paths, Seed: req.Seed,
		JumpIntensity: req.JumpIntensity,
		JumpMean:      req.JumpMean,
		JumpSigma:     req.JumpSigma,
	})
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"code":   req.Code,
		"result": result,
	})
}

func (s *Server) simulateCorrelated(w http.ResponseWriter, r *http.Request, req simulateRequest) {
	assets := make([]analytics.Asset, len(req.Assets))
	codes := make([]string, len(req.Assets))
	for i, a := range req.Assets {
		spot, sigma, ok := s.deriveFromHistory(w, r, a.Code, a.Spot, a.Sigma)
		if !ok {
			return
		}
		assets[i] = analytics.Asset{Spot: spot, Drift: a.Drift, Sigma: sigma}
		codes[i] = a.Code
	}

	results, err := analytics.SimulateCorrelated(analytics.CorrelatedParams{
		Assets: assets,
		Corr:   req.Correlation,
		Days:   req.Days,
		Paths:  req.Paths,
		Seed:   req.Seed,
	})
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"codes":   codes,
		"results": results,
	})
}

// outcomeJSON is the serializable form of a sync outcome.
type outcomeJSON struct {
	Code  string `json:"code"`
	Rows  int    `json:"rows"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func outcomesToJSON(outcomes map[string]models.SyncOutcome) []outcomeJSON {
	out := make([]outcomeJSON, 0, len(outcomes))
	for _, o := range outcomes {
		oj := outcomeJSON{Code: o.Code, Rows: o.Rows, OK: o.OK()}
		if o.Err != nil {
			oj.Error = o.Err.Error()
		}
		out = append(out, oj)
	}
	return out
}

func (s *Server) handleFullUpdate(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	opts := historyOptionsFromQuery(w, r)
	if opts == nil {
		return
	}
	outcomes, err := s.app.Market.FullUpdate(r.Context(), *opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"outcomes": outcomesToJSON(outcomes)})
}

func (s *Server) handleUpdatePrices(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	opts := historyOptionsFromQuery(w, r)
	if opts == nil {
		return
	}
	outcomes, err := s.app.Market.UpdateAll(r.Context(), *opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"outcomes": outcomesToJSON(outcomes)})
}

func (s *Server) handleUpdateMapping(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	rows, err := s.app.Market.UpdateMapping(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}
