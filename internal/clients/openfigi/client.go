// Package openfigi provides the OpenFIGI client. It serves no price history;
// its only job is resolving ISINs to FIGI identifiers during bulk mapping
// updates.
package openfigi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/filippobounous/fbinv/internal/clients"
	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/interfaces"
	"github.com/filippobounous/fbinv/internal/models"
)

const (
	DefaultBaseURL   = "https://api.openfigi.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 0.4 // requests per second; the keyless tier allows 25/min

	// The mapping endpoint accepts at most this many jobs per request.
	maxJobsPerRequest = 10
)

// Client implements MappingUpdater against the OpenFIGI v3 mapping API.
type Client struct {
	clients.UnsupportedProvider

	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithLogger sets the logger.
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithRateLimit sets the request rate in calls per second.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1) }
}

// NewClient creates a new OpenFIGI client. The API key is optional; without
// one the public rate tier applies.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		UnsupportedProvider: clients.UnsupportedProvider{ProviderName: models.ProviderOpenFIGI},
		baseURL:             DefaultBaseURL,
		apiKey:              apiKey,
		httpClient:          &http.Client{Timeout: DefaultTimeout},
		logger:              common.NewSilentLogger(),
		limiter:             rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type mappingJob struct {
	IDType  string `json:"idType"`
	IDValue string `json:"idValue"`
}

type mappingResult struct {
	Data []struct {
		FIGI string `json:"figi"`
	} `json:"data"`
	Error string `json:"error"`
}

// UpdateSecurityMapping resolves a FIGI for every security that carries an
// ISIN, batching requests up to the endpoint's job limit. Securities without
// an ISIN, and ISINs OpenFIGI cannot resolve, are skipped.
func (c *Client) UpdateSecurityMapping(ctx context.Context, existing []models.Security) ([]models.MappingRecord, error) {
	var candidates []models.Security
	for _, sec := range existing {
		if sec.ISIN != "" {
			candidates = append(candidates, sec)
		}
	}

	var records []models.MappingRecord
	for start := 0; start < len(candidates); start += maxJobsPerRequest {
		end := start + maxJobsPerRequest
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		results, err := c.mapBatch(ctx, batch)
		if err != nil {
			return nil, err
		}
		for i, res := range results {
			if res.Error != "" || len(res.Data) == 0 {
				c.logger.Warn().
					Str("code", batch[i].Code).
					Str("isin", batch[i].ISIN).
					Str("error", res.Error).
					Msg("No FIGI match")
				continue
			}
			records = append(records, models.MappingRecord{
				Code:   batch[i].Code,
				Symbol: res.Data[0].FIGI,
			})
		}
	}

	c.logger.Info().Int("resolved", len(records)).Int("candidates", len(candidates)).Msg("FIGI mapping updated")
	return records, nil
}

func (c *Client) mapBatch(ctx context.Context, batch []models.Security) ([]mappingResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	jobs := make([]mappingJob, len(batch))
	for i, sec := range batch {
		jobs[i] = mappingJob{IDType: "ID_ISIN", IDValue: sec.ISIN}
	}
	body, err := json.Marshal(jobs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal mapping jobs: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/mapping", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-OPENFIGI-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &models.TransientError{Provider: c.Name(), Reason: "rate limited"}
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return nil, &clients.APIError{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Endpoint:   "/v3/mapping",
			Message:    string(payload),
		}
	}

	var results []mappingResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, &models.TransientError{Provider: c.Name(), Reason: "malformed response", Err: err}
	}
	if len(results) != len(batch) {
		return nil, &models.TransientError{
			Provider: c.Name(),
			Reason:   fmt.Sprintf("expected %d mapping results, got %d", len(batch), len(results)),
		}
	}
	return results, nil
}

// Ensure Client satisfies the provider contracts.
var (
	_ interfaces.HistoryProvider = (*Client)(nil)
	_ interfaces.MappingUpdater  = (*Client)(nil)
)
