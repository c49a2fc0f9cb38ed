package models

import "time"

// Category is the closed set of instrument categories the engine can sync.
type Category string

const (
	CategoryCurrencyCross Category = "currency_cross"
	CategoryEquity        Category = "equity"
	CategoryETF           Category = "etf"
	CategoryFund          Category = "fund"
	CategoryComposite     Category = "composite"
	CategoryGeneric       Category = "generic"
)

// Provider names. These key the mapping-table symbol columns and the first
// path segment of every cache file.
const (
	ProviderLocal        = "local"
	ProviderYahooFinance = "yahoo_finance"
	ProviderTwelveData   = "twelve_data"
	ProviderAlphaVantage = "alpha_vantage"
	ProviderOpenFIGI     = "open_figi"
)

// Security is one tradable or trackable instrument, populated from the local
// mapping table. The sync engine reads only its category, code and provider
// symbols; the remaining attributes feed the analytics and API layers.
type Security struct {
	Code              string   `json:"code"`
	Category          Category `json:"category"`
	Name              string   `json:"name"`
	Currency          string   `json:"currency"`
	CurrencyVs        string   `json:"currency_vs,omitempty"` // crosses only: the base currency
	ReportingCurrency string   `json:"reporting_currency,omitempty"`
	Multiplier        float64  `json:"multiplier,omitempty"`
	ISIN              string   `json:"isin,omitempty"`
	FIGI              string   `json:"figi_code,omitempty"`

	YahooCode        string `json:"yahoo_finance_code,omitempty"`
	TwelveDataCode   string `json:"twelve_data_code,omitempty"`
	AlphaVantageCode string `json:"alpha_vantage_code,omitempty"`

	// Earliest available dates discovered from Twelve Data and cached in the
	// provider mapping file; zero when never discovered.
	EarliestDaily    time.Time `json:"earliest_date_daily,omitempty"`
	EarliestIntraday time.Time `json:"earliest_date_intraday,omitempty"`
}

// ProviderSymbol returns the symbol under which a provider knows this
// security: the local code for the local provider, the FIGI for OpenFIGI,
// otherwise the provider-specific code from the mapping table. Empty when
// the mapping has no symbol for that provider.
func (s Security) ProviderSymbol(provider string) string {
	switch provider {
	case ProviderLocal:
		return s.Code
	case ProviderOpenFIGI:
		return s.FIGI
	case ProviderYahooFinance:
		return s.YahooCode
	case ProviderTwelveData:
		return s.TwelveDataCode
	case ProviderAlphaVantage:
		return s.AlphaVantageCode
	default:
		return ""
	}
}

// EarliestDate returns the cached earliest available date for a frequency,
// or the zero time when unknown.
func (s Security) EarliestDate(freq Frequency) time.Time {
	if freq == FrequencyIntraday {
		return s.EarliestIntraday
	}
	return s.EarliestDaily
}
