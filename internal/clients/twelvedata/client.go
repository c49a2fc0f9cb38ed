// Package twelvedata provides the Twelve Data provider. The free tier caps
// both rows per call (the window planner splits ranges accordingly) and
// calls per minute (a shared fixed-window limiter serializes them).
package twelvedata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/filippobounous/fbinv/internal/clients"
	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/interfaces"
	"github.com/filippobounous/fbinv/internal/models"
	"github.com/filippobounous/fbinv/internal/ratelimit"
)

const (
	DefaultBaseURL    = "https://api.twelvedata.com"
	DefaultTimeout    = 30 * time.Second
	DefaultOutputSize = 5000

	// Free-tier quota.
	DefaultMaxRequestsPerWindow = 8
	DefaultWindowLength         = time.Minute

	// The time_series endpoint excludes the end date; pad it.
	DefaultEndBufferDays = 2
)

// Client implements the HistoryProvider interface against Twelve Data.
type Client struct {
	baseURL       string
	apiKey        string
	httpClient    *http.Client
	logger        *common.Logger
	limiter       *ratelimit.Window
	outputSize    int
	endBufferDays int
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

// WithRateWindow sets the per-window call budget. The limiter is shared by
// every call through this client, whatever the instrument.
func WithRateWindow(maxRequests int, length time.Duration) ClientOption {
	return func(c *Client) { c.limiter = ratelimit.NewWindow(maxRequests, length) }
}

// WithOutputSize sets the maximum rows per call.
func WithOutputSize(rows int) ClientOption {
	return func(c *Client) { c.outputSize = rows }
}

// WithEndBuffer sets the end-date padding in days.
func WithEndBuffer(days int) ClientOption {
	return func(c *Client) { c.endBufferDays = days }
}

// NewClient creates a new Twelve Data client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:       DefaultBaseURL,
		apiKey:        apiKey,
		httpClient:    &http.Client{Timeout: DefaultTimeout},
		logger:        common.NewSilentLogger(),
		limiter:       ratelimit.NewWindow(DefaultMaxRequestsPerWindow, DefaultWindowLength),
		outputSize:    DefaultOutputSize,
		endBufferDays: DefaultEndBufferDays,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return models.ProviderTwelveData }

// Limits reports the per-call row cap and end-date padding.
func (c *Client) Limits() interfaces.Limits {
	return interfaces.Limits{MaxRows: c.outputSize, EndBufferDays: c.endBufferDays}
}

// SyncRange requires the earliest available date cached in the provider
// mapping; without it the sync for this instrument cannot bound its start
// and fails as transient (the bulk runner records it, nothing propagates).
func (c *Client) SyncRange(_ context.Context, sec models.Security, freq models.Frequency, _ models.Series) (models.DateRange, error) {
	start := sec.EarliestDate(freq)
	if start.IsZero() {
		return models.DateRange{}, &models.TransientError{
			Provider: c.Name(),
			Symbol:   sec.ProviderSymbol(c.Name()),
			Reason:   "missing earliest-date mapping",
		}
	}
	return models.DateRange{Start: start, End: models.Yesterday(time.Now())}, nil
}

// CurrencyCrossHistory retrieves FX prices.
func (c *Client) CurrencyCrossHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	return c.timeSeries(ctx, sec.ProviderSymbol(c.Name()), freq, r)
}

// EquityHistory retrieves equity prices.
func (c *Client) EquityHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	return c.timeSeries(ctx, sec.ProviderSymbol(c.Name()), freq, r)
}

// ETFHistory retrieves ETF prices.
func (c *Client) ETFHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	return c.timeSeries(ctx, sec.ProviderSymbol(c.Name()), freq, r)
}

// FundHistory retrieves fund prices.
func (c *Client) FundHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	return c.timeSeries(ctx, sec.ProviderSymbol(c.Name()), freq, r)
}

func intervalCode(freq models.Frequency) string {
	if freq == models.FrequencyIntraday {
		return "1min"
	}
	return "1day"
}

// get performs a rate-limited GET and decodes the body into result.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	params.Set("apikey", c.apiKey)
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.logger.Debug().Str("endpoint", path).Msg("Twelve Data request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &clients.APIError{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Endpoint:   path,
			Message:    string(body),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// apiStatus is the error envelope Twelve Data embeds in 200 responses.
type apiStatus struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s apiStatus) transient(provider, symbol string) error {
	if s.Status != "error" {
		return nil
	}
	// Quota exhaustion, unknown symbols and plan restrictions all arrive
	// this way; none of them should abort a sync.
	return &models.TransientError{
		Provider: provider,
		Symbol:   symbol,
		Reason:   fmt.Sprintf("api error %d: %s", s.Code, s.Message),
	}
}

type timeSeriesResponse struct {
	apiStatus
	Values []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
	} `json:"values"`
}

func (c *Client) timeSeries(ctx context.Context, symbol string, freq models.Frequency, r models.DateRange) (models.Series, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", intervalCode(freq))
	params.Set("outputsize", strconv.Itoa(c.outputSize))
	params.Set("start_date", r.Start.Format(models.DateLayout))
	params.Set("end_date", r.End.Format(models.DateLayout))

	var resp timeSeriesResponse
	if err := c.get(ctx, "/time_series", params, &resp); err != nil {
		return nil, err
	}
	if err := resp.transient(c.Name(), symbol); err != nil {
		return nil, err
	}

	series := make(models.Series, 0, len(resp.Values))
	for _, v := range resp.Values {
		date, err := parseDatetime(v.Datetime)
		if err != nil {
			return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: "malformed response", Err: err}
		}
		bar := models.Bar{Date: date}
		if bar.Open, err = strconv.ParseFloat(v.Open, 64); err != nil {
			return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: "malformed response", Err: err}
		}
		if bar.High, err = strconv.ParseFloat(v.High, 64); err != nil {
			return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: "malformed response", Err: err}
		}
		if bar.Low, err = strconv.ParseFloat(v.Low, 64); err != nil {
			return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: "malformed response", Err: err}
		}
		if bar.Close, err = strconv.ParseFloat(v.Close, 64); err != nil {
			return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: "malformed response", Err: err}
		}
		series = append(series, bar)
	}
	return series, nil
}

// parseDatetime accepts the daily date form and the intraday form.
func parseDatetime(s string) (time.Time, error) {
	if t, err := time.Parse(models.DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad datetime %q: %w", s, err)
	}
	return t, nil
}

type earliestResponse struct {
	apiStatus
	Datetime string `json:"datetime"`
	UnixTime int64  `json:"unix_time"`
}

// EarliestDate returns the first date Twelve Data has for a symbol at a
// frequency, or the zero time when the provider reports none.
func (c *Client) EarliestDate(ctx context.Context, symbol string, freq models.Frequency) (time.Time, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", intervalCode(freq))

	var resp earliestResponse
	if err := c.get(ctx, "/earliest_timestamp", params, &resp); err != nil {
		return time.Time{}, err
	}
	if err := resp.transient(c.Name(), symbol); err != nil {
		return time.Time{}, err
	}
	if resp.UnixTime == 0 {
		return time.Time{}, nil
	}
	return models.Day(time.Unix(resp.UnixTime, 0).UTC()), nil
}

// UpdateSecurityMapping rebuilds this provider's mapping rows, discovering
// the earliest available date per symbol and frequency. Symbols the
// provider rejects are kept without dates so the sync later reports them as
// missing a start boundary rather than silently disappearing.
func (c *Client) UpdateSecurityMapping(ctx context.Context, existing []models.Security) ([]models.MappingRecord, error) {
	records := make([]models.MappingRecord, 0, len(existing))
	for _, sec := range existing {
		symbol := sec.TwelveDataCode
		if symbol == "" {
			continue
		}
		record := models.MappingRecord{Code: sec.Code, Symbol: symbol}

		if daily, err := c.EarliestDate(ctx, symbol, models.FrequencyDaily); err == nil {
			record.EarliestDaily = daily
		} else if !models.IsTransient(err) {
			return nil, err
		} else {
			c.logger.Warn().Str("symbol", symbol).Err(err).Msg("No earliest daily date")
		}

		if intraday, err := c.EarliestDate(ctx, symbol, models.FrequencyIntraday); err == nil {
			record.EarliestIntraday = intraday
		} else if !models.IsTransient(err) {
			return nil, err
		} else {
			c.logger.Warn().Str("symbol", symbol).Err(err).Msg("No earliest intraday date")
		}

		records = append(records, record)
	}
	return records, nil
}

// Ensure Client implements the provider contracts.
var (
	_ interfaces.HistoryProvider = (*Client)(nil)
	_ interfaces.EarliestDater   = (*Client)(nil)
	_ interfaces.MappingUpdater  = (*Client)(nil)
)
