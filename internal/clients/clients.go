// Package clients hosts the provider adapters and the defaults they share.
// Each remote provider lives in its own subpackage; this package carries the
// pieces common to all of them.
package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/filippobounous/fbinv/internal/interfaces"
	"github.com/filippobounous/fbinv/internal/models"
)

// DataStartDate is the default lower bound for a full-history sync when a
// provider has no better idea of its earliest available date.
var DataStartDate = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// APIError is a non-OK HTTP response from a provider. Statuses the sync
// boundary does not recognize as transient propagate as hard failures.
type APIError struct {
	Provider   string
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %s (status: %d, endpoint: %s)",
		e.Provider, e.Message, e.StatusCode, e.Endpoint)
}

// UnsupportedProvider supplies the default refusal for every capability.
// Providers embed it and override only the methods they actually serve, so
// an unimplemented category is an explicit UnsupportedError rather than a
// missing lookup-table entry.
type UnsupportedProvider struct {
	ProviderName string
}

// Name returns the provider name.
func (u UnsupportedProvider) Name() string { return u.ProviderName }

// Limits reports no per-call constraints.
func (u UnsupportedProvider) Limits() interfaces.Limits { return interfaces.Limits{} }

func (u UnsupportedProvider) decline(op string) error {
	return &models.UnsupportedError{Provider: u.ProviderName, Op: op}
}

// CurrencyCrossHistory declines.
func (u UnsupportedProvider) CurrencyCrossHistory(context.Context, models.Security, models.Frequency, models.DateRange) (models.Series, error) {
	return nil, u.decline("currency cross price history")
}

// EquityHistory declines.
func (u UnsupportedProvider) EquityHistory(context.Context, models.Security, models.Frequency, models.DateRange) (models.Series, error) {
	return nil, u.decline("equity price history")
}

// ETFHistory declines.
func (u UnsupportedProvider) ETFHistory(context.Context, models.Security, models.Frequency, models.DateRange) (models.Series, error) {
	return nil, u.decline("etf price history")
}

// FundHistory declines.
func (u UnsupportedProvider) FundHistory(context.Context, models.Security, models.Frequency, models.DateRange) (models.Series, error) {
	return nil, u.decline("fund price history")
}

// SyncRange returns the default desired range: everything from the fixed
// epoch through yesterday, so an incomplete trading day is never requested.
func (u UnsupportedProvider) SyncRange(_ context.Context, _ models.Security, _ models.Frequency, _ models.Series) (models.DateRange, error) {
	return models.DateRange{Start: DataStartDate, End: models.Yesterday(time.Now())}, nil
}
