// Package alphavantage provides the Alpha Vantage provider: FX daily series
// for currency crosses and daily series for equities and ETFs. Funds are
// declined. Alpha Vantage caps request rate rather than a quota window, so
// the client throttles with a token-bucket limiter.
package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/filippobounous/fbinv/internal/clients"
	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/interfaces"
	"github.com/filippobounous/fbinv/internal/models"
)

const (
	DefaultBaseURL   = "https://www.alphavantage.co"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 1 // requests per second
)

// Client implements the HistoryProvider interface against Alpha Vantage.
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

// NewClient creates a new Alpha Vantage client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		UnsupportedProvider: clients.UnsupportedProvider{ProviderName: models.ProviderAlphaVantage},
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

// CurrencyCrossHistory retrieves FX daily prices. The endpoint returns the
// full dump, so rows outside the requested range are trimmed client-side.
func (c *Client) CurrencyCrossHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	if freq == models.FrequencyIntraday {
		return nil, &models.UnsupportedError{Provider: c.Name(), Op: "intraday currency cross price history"}
	}
	params := url.Values{}
	params.Set("function", "FX_DAILY")
	params.Set("from_symbol", sec.CurrencyVs)
	params.Set("to_symbol", sec.Currency)
	params.Set("outputsize", "full")
	return c.daily(ctx, sec.ProviderSymbol(c.Name()), "Time Series FX (Daily)", params, r)
}

// EquityHistory retrieves equity daily prices.
func (c *Client) EquityHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	if freq == models.FrequencyIntraday {
		return nil, &models.UnsupportedError{Provider: c.Name(), Op: "intraday equity price history"}
	}
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY")
	params.Set("symbol", sec.ProviderSymbol(c.Name()))
	params.Set("outputsize", "full")
	return c.daily(ctx, sec.ProviderSymbol(c.Name()), "Time Series (Daily)", params, r)
}

// ETFHistory retrieves ETF daily prices through the equity endpoint.
func (c *Client) ETFHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	return c.EquityHistory(ctx, sec, freq, r)
}

func (c *Client) daily(ctx context.Context, symbol, seriesKey string, params url.Values, r models.DateRange) (models.Series, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("datatype", "json")
	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s/query?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("symbol", symbol).Str("function", params.Get("function")).Msg("Alpha Vantage request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &clients.APIError{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Endpoint:   "/query",
			Message:    string(body),
		}
	}

	var payload map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: "malformed response", Err: err}
	}

	// Quota exhaustion arrives as 200 with a Note/Information message.
	for _, key := range []string{"Note", "Information", "Error Message"} {
		if raw, ok := payload[key]; ok {
			var msg string
			_ = json.Unmarshal(raw, &msg)
			return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: msg}
		}
	}

	raw, ok := payload[seriesKey]
	if !ok {
		return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: "empty response"}
	}

	var rows map[string]map[string]string
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: "malformed response", Err: err}
	}

	series := make(models.Series, 0, len(rows))
	for dateStr, cols := range rows {
		date, err := time.Parse(models.DateLayout, dateStr)
		if err != nil {
			continue
		}
		if date.Before(r.Start) || date.After(r.End) {
			continue
		}
		bar := models.Bar{
			Date:  date,
			Open:  parseCol(cols, "1. open"),
			High:  parseCol(cols, "2. high"),
			Low:   parseCol(cols, "3. low"),
			Close: parseCol(cols, "4. close"),
		}
		series = append(series, bar)
	}
	return models.Series{}.Merge(series), nil
}

func parseCol(cols map[string]string, key string) float64 {
	v, err := strconv.ParseFloat(cols[key], 64)
	if err != nil {
		return 0
	}
	return v
}

// Ensure Client implements HistoryProvider.
var _ interfaces.HistoryProvider = (*Client)(nil)
