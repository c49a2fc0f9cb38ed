// Package interfaces defines the contracts between the sync engine, the
// provider clients and the storage layers.
package interfaces

import (
	"context"
	"time"

	"github.com/filippobounous/fbinv/internal/models"
)

// Limits describes a provider's per-call constraints, consumed by the window
// planner when a requested range must be split across several calls.
type Limits struct {
	// MaxRows is the most rows one call may return; zero means unbounded.
	MaxRows int
	// EndBufferDays pads the requested end date for APIs that treat the end
	// of a range as exclusive.
	EndBufferDays int
}

// HistoryProvider is implemented once per market-data provider. Dispatch is
// one typed method per instrument category; a provider declines a category
// it does not serve by returning *models.UnsupportedError (clients embed
// clients.UnsupportedProvider for that default).
type HistoryProvider interface {
	Name() string
	Limits() Limits

	CurrencyCrossHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error)
	EquityHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error)
	ETFHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error)
	FundHistory(ctx context.Context, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error)

	// SyncRange returns the desired date range for a sync given the cached
	// series. The engine's default is [epoch, yesterday]; providers narrow
	// it when they know better, and return *models.TransientError when a
	// required start boundary cannot be determined.
	SyncRange(ctx context.Context, sec models.Security, freq models.Frequency, cached models.Series) (models.DateRange, error)
}

// EarliestDater is an optional capability: discovering the first date a
// provider has data for a symbol.
type EarliestDater interface {
	EarliestDate(ctx context.Context, symbol string, freq models.Frequency) (time.Time, error)
}

// MappingUpdater is an optional capability: refreshing the provider's rows
// of the local symbol-mapping table via a bulk lookup.
type MappingUpdater interface {
	UpdateSecurityMapping(ctx context.Context, existing []models.Security) ([]models.MappingRecord, error)
}
