package models

import "time"

// MappingRecord is one row of a provider's symbol-mapping file: the provider
// symbol for a local code, plus the cached earliest-available dates for
// providers that discover them.
type MappingRecord struct {
	Code             string    `json:"code"`
	Symbol           string    `json:"symbol"`
	EarliestDaily    time.Time `json:"earliest_date_daily,omitempty"`
	EarliestIntraday time.Time `json:"earliest_date_intraday,omitempty"`
}
