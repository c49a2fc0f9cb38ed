// Package yahoo provides the Yahoo Finance chart-API provider. It is the
// default time-series provider and serves every instrument category.
package yahoo

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
)

const (
	DefaultBaseURL = "https://query1.finance.yahoo.com"
	DefaultTimeout = 30 * time.Second

	// endBufferDays pads the requested end date: the chart API treats
	// period2 as exclusive.
	endBufferDays = 2
)

// Client implements the HistoryProvider interface against Yahoo Finance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
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

// NewClient creates a new Yahoo Finance client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     common.NewSilentLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the provider name.
func (c *Client) Name() string { return models.ProviderYahooFinance }

// Limits reports no row cap; one call serves any daily range.
func (c *Client) Limits() interfaces.Limits {
	return interfaces.Limits{EndBufferDays: endBufferDays}
}

// SyncRange narrows the desired start to the cached minimum when a cache
// exists: Yahoo has already served everything before it, so only the upper
// edge can be missing.
func (c *Client) SyncRange(_ context.Context, _ models.Security, _ models.Frequency, cached models.Series) (models.DateRange, error) {
	r := models.DateRange{Start: clients.DataStartDate, End: models.Yesterday(time.Now())}
	if !cached.Empty() {
		r.Start = cached.MinDate()
	}
	return r, nil
}

// CurrencyCrossHistory retrieves FX prices.
func (c *Client) CurrencyCrossHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	return c.history(ctx, sec, freq, r)
}

// EquityHistory retrieves equity prices.
func (c *Client) EquityHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	return c.history(ctx, sec, freq, r)
}

// ETFHistory retrieves ETF prices.
func (c *Client) ETFHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	return c.history(ctx, sec, freq, r)
}

// FundHistory retrieves fund prices.
func (c *Client) FundHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	return c.history(ctx, sec, freq, r)
}

func intervalCode(freq models.Frequency) string {
	if freq == models.FrequencyIntraday {
		return "1m"
	}
	return "1d"
}

func (c *Client) history(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	symbol := sec.ProviderSymbol(c.Name())

	params := url.Values{}
	params.Set("interval", intervalCode(freq))
	params.Set("period1", strconv.FormatInt(r.Start.Unix(), 10))
	params.Set("period2", strconv.FormatInt(r.End.Unix(), 10))
	params.Set("events", "history")

	endpoint := fmt.Sprintf("/v8/finance/chart/%s", url.PathEscape(symbol))
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpoint, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "fbinv/"+common.GetVersion())

	c.logger.Debug().Str("symbol", symbol).Str("endpoint", endpoint).Msg("Yahoo Finance request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: "rate limited"}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &clients.APIError{
			Provider:   c.Name(),
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
			Message:    string(body),
		}
	}

	var chart chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&chart); err != nil {
		return nil, &models.TransientError{Provider: c.Name(), Symbol: symbol, Reason: "malformed response", Err: err}
	}

	return chart.series(c.Name(), symbol)
}

// chartResponse is the subset of the v8 chart payload the client consumes.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					High  []*float64 `json:"high"`
					Low   []*float64 `json:"low"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (r chartResponse) series(provider, symbol string) (models.Series, error) {
	if r.Chart.Error != nil {
		return nil, &models.TransientError{
			Provider: provider,
			Symbol:   symbol,
			Reason:   fmt.Sprintf("chart error %s: %s", r.Chart.Error.Code, r.Chart.Error.Description),
		}
	}
	if len(r.Chart.Result) == 0 || len(r.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, &models.TransientError{Provider: provider, Symbol: symbol, Reason: "empty chart result"}
	}

	result := r.Chart.Result[0]
	quote := result.Indicators.Quote[0]

	series := make(models.Series, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue // Yahoo pads halted sessions with nulls
		}
		bar := models.Bar{
			Date:  models.Day(time.Unix(ts, 0).UTC()),
			Close: *quote.Close[i],
		}
		if i < len(quote.Open) && quote.Open[i] != nil {
			bar.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			bar.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			bar.Low = *quote.Low[i]
		}
		series = append(series, bar)
	}
	return series, nil
}

// Ensure Client implements HistoryProvider.
var _ interfaces.HistoryProvider = (*Client)(nil)
