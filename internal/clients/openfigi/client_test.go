package openfigi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filippobounous/fbinv/internal/models"
)

func TestUpdateSecurityMapping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v3/mapping", r.URL.Path)
		require.Equal(t, "secret", r.Header.Get("X-OPENFIGI-APIKEY"))

		var jobs []map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&jobs))
		require.Len(t, jobs, 2)
		assert.Equal(t, "ID_ISIN", jobs[0]["idType"])
		assert.Equal(t, "US0378331005", jobs[0]["idValue"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"data": [{"figi": "BBG000B9XRY4"}]},
			{"error": "No identifier found."}
		]`))
	}))
	defer server.Close()

	client := NewClient("secret", WithBaseURL(server.URL), WithRateLimit(1000))
	secs := []models.Security{
		{Code: "AAPL US", ISIN: "US0378331005"},
		{Code: "GHOST", ISIN: "XX0000000000"},
		{Code: "NOISIN"},
	}

	records, err := client.UpdateSecurityMapping(context.Background(), secs)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "AAPL US", records[0].Code)
	assert.Equal(t, "BBG000B9XRY4", records[0].Symbol)
}

func TestUpdateSecurityMapping_Batches(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var jobs []map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&jobs))
		require.LessOrEqual(t, len(jobs), maxJobsPerRequest)

		results := make([]map[string]any, len(jobs))
		for i := range jobs {
			results[i] = map[string]any{"data": []map[string]string{{"figi": "BBG" + jobs[i]["idValue"]}}}
		}
		json.NewEncoder(w).Encode(results)
	}))
	defer server.Close()

	client := NewClient("", WithBaseURL(server.URL), WithRateLimit(1000))
	secs := make([]models.Security, 0, 14)
	for i := 0; i < 14; i++ {
		secs = append(secs, models.Security{
			Code: string(rune('A' + i)),
			ISIN: string(rune('A'+i)) + "B1234567890",
		})
	}

	records, err := client.UpdateSecurityMapping(context.Background(), secs)
	require.NoError(t, err)
	assert.Len(t, records, 14)
	assert.Equal(t, 2, calls)
}

func TestUpdateSecurityMapping_RateLimitedIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient("", WithBaseURL(server.URL), WithRateLimit(1000))
	secs := []models.Security{{Code: "AAPL US", ISIN: "US0378331005"}}

	_, err := client.UpdateSecurityMapping(context.Background(), secs)
	require.Error(t, err)
	assert.True(t, models.IsTransient(err))
}

func TestHistoryDeclined(t *testing.T) {
	client := NewClient("")
	sec := models.Security{Code: "AAPL US", Category: models.CategoryEquity}
	r := models.DateRange{}

	_, err := client.EquityHistory(context.Background(), sec, models.FrequencyDaily, r)
	require.Error(t, err)
	assert.True(t, models.IsUnsupported(err))

	_, err = client.FundHistory(context.Background(), sec, models.FrequencyDaily, r)
	assert.True(t, models.IsUnsupported(err))
}
