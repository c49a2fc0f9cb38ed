package server

import (
	"net/http"
	"time"

	"github.com/wcharczuk/go-chart/v2"
)

// handleChart renders GET /api/timeseries/{code}/chart as a PNG close-price
// line chart.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	code := PathParam(r, "/api/timeseries/", "/chart")
	if code == "" {
		WriteError(w, http.StatusBadRequest, "Security code is required")
		return
	}
	opts := historyOptionsFromQuery(w, r)
	if opts == nil {
		return
	}

	series, err := s.app.Market.GetPriceHistoryByCode(r.Context(), code, *opts)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(series) < 2 {
		WriteError(w, http.StatusNotFound, "Not enough price history for "+code)
		return
	}

	dates := make([]time.Time, len(series))
	closes := make([]float64, len(series))
	for i, b := range series {
		dates[i] = b.Date
		closes[i] = b.Close
	}

	graph := chart.Chart{
		Title:  code,
		Width:  1024,
		Height: 512,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeDateValueFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    code,
				XValues: dates,
				YValues: closes,
			},
		},
	}

	w.Header().Set("Content-Type", "image/png")
	if err := graph.Render(chart.PNG, w); err != nil {
		s.logger.Error().Err(err).Str("code", code).Msg("Chart render failed")
	}
}
