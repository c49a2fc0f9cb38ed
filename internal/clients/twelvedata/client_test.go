package twelvedata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filippobounous/fbinv/internal/models"
)

func testSecurity() models.Security {
	return models.Security{
		Code:           "AAA",
		Category:       models.CategoryEquity,
		TwelveDataCode: "AAA",
		EarliestDaily:  time.Date(2001, 5, 15, 0, 0, 0, 0, time.UTC),
	}
}

func dateRange(start, end string) models.DateRange {
	s, _ := time.Parse(models.DateLayout, start)
	e, _ := time.Parse(models.DateLayout, end)
	return models.DateRange{Start: s, End: e}
}

const seriesBody = `{
  "meta": {"symbol": "AAA", "interval": "1day"},
  "values": [
    {"datetime": "2024-01-03", "open": "10.5", "high": "12.0", "low": "10.0", "close": "11.5"},
    {"datetime": "2024-01-02", "open": "10.0", "high": "11.0", "low": "9.5", "close": "10.5"}
  ],
  "status": "ok"
}`

func TestEquityHistory_ParsesValues(t *testing.T) {
	var captured map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.URL.Query()
		w.Write([]byte(seriesBody))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateWindow(0, time.Minute))
	series, err := client.EquityHistory(context.Background(), testSecurity(),
		models.FrequencyDaily, dateRange("2024-01-01", "2024-01-05"))
	require.NoError(t, err)

	assert.Equal(t, "AAA", captured["symbol"][0])
	assert.Equal(t, "1day", captured["interval"][0])
	assert.Equal(t, "5000", captured["outputsize"][0])
	assert.Equal(t, "2024-01-01", captured["start_date"][0])
	assert.Equal(t, "test-key", captured["apikey"][0])

	require.Len(t, series, 2)
	assert.Equal(t, 11.5, series[0].Close)
	assert.Equal(t, 10.5, series[1].Close)
}

func TestHistory_QuotaErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code": 429, "message": "You have run out of API credits", "status": "error"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateWindow(0, time.Minute))
	_, err := client.EquityHistory(context.Background(), testSecurity(),
		models.FrequencyDaily, dateRange("2024-01-01", "2024-01-05"))
	assert.True(t, models.IsTransient(err), "quota response should be transient, got %v", err)
}

func TestHistory_MalformedValueIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"values": [{"datetime": "2024-01-02", "open": "x", "high": "1", "low": "1", "close": "1"}], "status": "ok"}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateWindow(0, time.Minute))
	_, err := client.EquityHistory(context.Background(), testSecurity(),
		models.FrequencyDaily, dateRange("2024-01-01", "2024-01-05"))
	assert.True(t, models.IsTransient(err))
}

func TestEarliestDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"datetime": "2001-05-15", "unix_time": 989884800}`))
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateWindow(0, time.Minute))
	date, err := client.EarliestDate(context.Background(), "AAA", models.FrequencyDaily)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2001, 5, 15, 0, 0, 0, 0, time.UTC), date)
}

func TestSyncRange_UsesMappingEarliestDate(t *testing.T) {
	client := NewClient("test-key")
	r, err := client.SyncRange(context.Background(), testSecurity(), models.FrequencyDaily, models.Series{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2001, 5, 15, 0, 0, 0, 0, time.UTC), r.Start)
}

func TestSyncRange_MissingEarliestDateIsTransient(t *testing.T) {
	client := NewClient("test-key")
	sec := testSecurity()
	sec.EarliestDaily = time.Time{}

	_, err := client.SyncRange(context.Background(), sec, models.FrequencyDaily, models.Series{})
	assert.True(t, models.IsTransient(err), "missing start boundary must be transient, got %v", err)
}

func TestUpdateSecurityMapping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("interval") {
		case "1day":
			w.Write([]byte(`{"datetime": "2001-05-15", "unix_time": 989884800}`))
		default:
			w.Write([]byte(`{"code": 400, "message": "no intraday data", "status": "error"}`))
		}
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateWindow(0, time.Minute))
	secs := []models.Security{
		testSecurity(),
		{Code: "NOSYM", Category: models.CategoryFund}, // no provider symbol: skipped
	}

	records, err := client.UpdateSecurityMapping(context.Background(), secs)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "AAA", records[0].Code)
	assert.Equal(t, time.Date(2001, 5, 15, 0, 0, 0, 0, time.UTC), records[0].EarliestDaily)
	assert.True(t, records[0].EarliestIntraday.IsZero())
}

func TestRateWindow_IsShared(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(seriesBody))
	}))
	defer srv.Close()

	// Budget of 3 per hour: the fourth call would block, so stay within it.
	client := NewClient("test-key", WithBaseURL(srv.URL), WithRateWindow(3, time.Hour))
	for i := 0; i < 3; i++ {
		_, err := client.EquityHistory(context.Background(), testSecurity(),
			models.FrequencyDaily, dateRange("2024-01-01", "2024-01-05"))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}
