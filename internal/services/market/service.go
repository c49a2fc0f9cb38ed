// Package market implements the price-history synchronization engine: it
// reads the local cache, asks the configured provider for whatever the cache
// is missing, and writes the merged result back.
package market

import (
	"context"
	"fmt"
	"time"

	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/interfaces"
	"github.com/filippobounous/fbinv/internal/models"
)

// Service orchestrates cache reads, gap detection, provider fetches and
// cache writes for every known security.
type Service struct {
	logger      *common.Logger
	store       interfaces.SeriesStore
	mapping     interfaces.MappingStore
	providers   map[string]interfaces.HistoryProvider
	defaultName string
	now         func() time.Time
}

// NewService creates the sync engine. defaultProvider names the provider
// used when a request does not pick one explicitly.
func NewService(
	logger *common.Logger,
	store interfaces.SeriesStore,
	mapping interfaces.MappingStore,
	defaultProvider string,
	providers ...interfaces.HistoryProvider,
) *Service {
	byName := make(map[string]interfaces.HistoryProvider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{
		logger:      logger,
		store:       store,
		mapping:     mapping,
		providers:   byName,
		defaultName: defaultProvider,
		now:         time.Now,
	}
}

// HistoryOptions modify a single price-history request. The zero value asks
// for a daily sync against the default provider over the provider's own
// preferred range.
type HistoryOptions struct {
	Frequency models.Frequency
	Provider  string
	// LocalOnly skips synchronization and serves whatever is cached.
	LocalOnly bool
	// StartDate and EndDate override the provider's sync range when non-zero.
	StartDate time.Time
	EndDate   time.Time
}

// syncReport is the internal result of one synchronization attempt.
type syncReport struct {
	series  models.Series
	fetched int
	// warn records a degradation: the provider could not be used and the
	// cached series was served instead. Never set together with a hard error.
	warn error
}

// GetPriceHistory returns the price history for a security, synchronizing
// the local cache against the selected provider first. Provider degradations
// (quota exhaustion, declined fetches, missing symbol mappings) are logged
// and the cache is served; intraday requests and configuration or mapping
// defects are returned as errors.
func (s *Service) GetPriceHistory(ctx context.Context, sec models.Security, opts HistoryOptions) (models.Series, error) {
	rep, err := s.sync(ctx, sec, opts)
	if err != nil {
		return nil, err
	}
	return rep.series, nil
}

// GetPriceHistoryByCode resolves a code through the mapping table first.
func (s *Service) GetPriceHistoryByCode(ctx context.Context, code string, opts HistoryOptions) (models.Series, error) {
	sec, err := s.mapping.Resolve(code)
	if err != nil {
		return nil, err
	}
	return s.GetPriceHistory(ctx, sec, opts)
}

// GetPriceHistoryInCurrency returns the price history converted into another
// currency: the security's series joined date-by-date with the matching
// currency-cross series, scaled by the mapping multiplier. The cross is a
// mapping row coded {from}{to} (for example USDEUR); a table without that
// row is a MappingError. An empty or identical target currency is a plain
// history request.
func (s *Service) GetPriceHistoryInCurrency(ctx context.Context, sec models.Security, currency string, opts HistoryOptions) (models.Series, error) {
	if currency == "" || currency == sec.Currency {
		return s.GetPriceHistory(ctx, sec, opts)
	}
	cross, err := s.mapping.Resolve(sec.Currency + currency)
	if err != nil {
		return nil, err
	}
	base, err := s.GetPriceHistory(ctx, sec, opts)
	if err != nil {
		return nil, err
	}
	rates, err := s.GetPriceHistory(ctx, cross, opts)
	if err != nil {
		return nil, err
	}
	converted := base.ConvertWith(rates, sec.Multiplier)
	s.logger.Debug().
		Str("code", sec.Code).
		Str("currency", currency).
		Str("cross", cross.Code).
		Int("rows", len(converted)).
		Msg("Price history converted")
	return converted, nil
}

// GetPriceHistoryInCurrencyByCode resolves a code through the mapping table
// first.
func (s *Service) GetPriceHistoryInCurrencyByCode(ctx context.Context, code, currency string, opts HistoryOptions) (models.Series, error) {
	sec, err := s.mapping.Resolve(code)
	if err != nil {
		return nil, err
	}
	return s.GetPriceHistoryInCurrency(ctx, sec, currency, opts)
}

func (s *Service) sync(ctx context.Context, sec models.Security, opts HistoryOptions) (syncReport, error) {
	freq := opts.Frequency
	if freq == "" {
		freq = models.FrequencyDaily
	}
	// Intraday synchronization is a deliberate scope limit. It fails before
	// the cache is even read; the bulk runner records the error per outcome.
	if freq == models.FrequencyIntraday {
		return syncReport{}, &models.UnsupportedError{Op: "intraday synchronization"}
	}
	providerName := opts.Provider
	if providerName == "" {
		providerName = s.defaultName
	}

	cached, err := s.store.Read(providerName, sec, freq)
	if err != nil {
		return syncReport{}, fmt.Errorf("failed to read cache for %s: %w", sec.Code, err)
	}

	if opts.LocalOnly || providerName == models.ProviderLocal {
		return syncReport{series: cached}, nil
	}

	// Composite and generic instruments are derived locally and have no
	// remote source.
	if sec.Category == models.CategoryComposite || sec.Category == models.CategoryGeneric {
		s.logger.Debug().Str("code", sec.Code).Str("category", string(sec.Category)).Msg("Local-only category, skipping sync")
		return syncReport{series: cached}, nil
	}

	provider, ok := s.providers[providerName]
	if !ok {
		return syncReport{}, &models.ConfigError{Provider: providerName, Detail: "unknown provider"}
	}

	if sec.ProviderSymbol(providerName) == "" {
		return s.degrade(sec, cached, &models.TransientError{
			Provider: providerName,
			Symbol:   sec.Code,
			Reason:   "no provider symbol mapped",
		}), nil
	}

	want, err := provider.SyncRange(ctx, sec, freq, cached)
	if err != nil {
		if models.IsTransient(err) || models.IsUnsupported(err) {
			return s.degrade(sec, cached, err), nil
		}
		return syncReport{}, err
	}
	if !opts.StartDate.IsZero() {
		want.Start = models.Day(opts.StartDate)
	}
	if !opts.EndDate.IsZero() {
		want.End = models.Day(opts.EndDate)
	}
	if want.End.Before(want.Start) {
		return syncReport{series: cached}, nil
	}

	gap := cached.GapsIn(want)
	if !gap.LowerMissing && !gap.UpperMissing {
		s.logger.Debug().Str("code", sec.Code).Msg("Cache already covers requested range")
		return syncReport{series: cached}, nil
	}

	var fetched models.Series
	var warn error
	for _, r := range missingRanges(cached, want, gap) {
		part, err := s.fetchRange(ctx, provider, sec, freq, r)
		fetched = fetched.Merge(part)
		if err != nil {
			if models.IsTransient(err) || models.IsUnsupported(err) {
				warn = err
				break
			}
			return syncReport{}, err
		}
	}

	merged := cached.Merge(fetched)
	if len(fetched) > 0 {
		if err := s.store.Write(providerName, sec, freq, merged); err != nil {
			return syncReport{}, fmt.Errorf("failed to write cache for %s: %w", sec.Code, err)
		}
		s.logger.Info().
			Str("code", sec.Code).
			Str("provider", providerName).
			Int("fetched", len(fetched)).
			Int("total", len(merged)).
			Msg("Price history synchronized")
	}
	if warn != nil {
		s.logger.Warn().Str("code", sec.Code).Err(warn).Msg("Sync degraded, serving cache")
	}
	return syncReport{series: merged, fetched: len(fetched), warn: warn}, nil
}

// fetchRange pulls one missing range, window by window.
func (s *Service) fetchRange(ctx context.Context, provider interfaces.HistoryProvider, sec models.Security, freq models.Frequency, r models.DateRange) (models.Series, error) {
	var out models.Series
	for _, w := range planWindows(r, provider.Limits(), freq) {
		part, err := fetchCategory(ctx, provider, sec, freq, w)
		if err != nil {
			return out, err
		}
		out = out.Merge(part)
	}
	return out, nil
}

// fetchCategory dispatches one fetch to the provider method for the
// security's category. The category set is closed; anything else is a
// wiring defect.
func fetchCategory(ctx context.Context, p interfaces.HistoryProvider, sec models.Security, freq models.Frequency, w models.DateRange) (models.Series, error) {
	switch sec.Category {
	case models.CategoryCurrencyCross:
		return p.CurrencyCrossHistory(ctx, sec, freq, w)
	case models.CategoryEquity:
		return p.EquityHistory(ctx, sec, freq, w)
	case models.CategoryETF:
		return p.ETFHistory(ctx, sec, freq, w)
	case models.CategoryFund:
		return p.FundHistory(ctx, sec, freq, w)
	default:
		return nil, &models.ConfigError{
			Provider: p.Name(),
			Detail:   fmt.Sprintf("no fetch method for category %q", sec.Category),
		}
	}
}

// missingRanges converts an edge gap into the concrete date ranges to fetch.
// The cache boundary date itself is re-requested so that adjacent fetches
// always overlap by one bar and the merge closes the seam.
func missingRanges(cached models.Series, want models.DateRange, gap models.Gap) []models.DateRange {
	if cached.Empty() {
		return []models.DateRange{want}
	}
	var out []models.DateRange
	if gap.LowerMissing {
		out = append(out, models.DateRange{Start: want.Start, End: cached.MinDate()})
	}
	if gap.UpperMissing {
		out = append(out, models.DateRange{Start: cached.MaxDate(), End: want.End})
	}
	return out
}

func (s *Service) degrade(sec models.Security, cached models.Series, err error) syncReport {
	s.logger.Warn().Str("code", sec.Code).Err(err).Msg("Sync skipped, serving cache")
	return syncReport{series: cached, warn: err}
}
