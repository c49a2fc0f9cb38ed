package market

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/interfaces"
	"github.com/filippobounous/fbinv/internal/mapping"
	"github.com/filippobounous/fbinv/internal/models"
	"github.com/filippobounous/fbinv/internal/storage/seriesfs"
)

func day(s string) time.Time {
	t, err := time.Parse(models.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// bars builds one bar per calendar day over an inclusive range.
func bars(start, end string, close float64) models.Series {
	var out models.Series
	for d := day(start); !d.After(day(end)); d = d.AddDate(0, 0, 1) {
		out = append(out, models.Bar{Date: d, Open: close, High: close, Low: close, Close: close})
	}
	return out
}

// fakeProvider records every fetch window and serves synthetic bars.
type fakeProvider struct {
	name     string
	limits   interfaces.Limits
	rng      models.DateRange
	rangeErr error
	fetchErr error
	calls    []models.DateRange
}

func (f *fakeProvider) Name() string              { return f.name }
func (f *fakeProvider) Limits() interfaces.Limits { return f.limits }

func (f *fakeProvider) fetch(r models.DateRange) (models.Series, error) {
	f.calls = append(f.calls, r)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out models.Series
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, models.Bar{Date: d, Open: 2, High: 2, Low: 2, Close: 2})
	}
	return out, nil
}

func (f *fakeProvider) CurrencyCrossHistory(_ context.Context, _ models.Security, _ models.Frequency, r models.DateRange) (models.Series, error) {
	return f.fetch(r)
}
func (f *fakeProvider) EquityHistory(_ context.Context, _ models.Security, _ models.Frequency, r models.DateRange) (models.Series, error) {
	return f.fetch(r)
}
func (f *fakeProvider) ETFHistory(_ context.Context, _ models.Security, _ models.Frequency, r models.DateRange) (models.Series, error) {
	return f.fetch(r)
}
func (f *fakeProvider) FundHistory(_ context.Context, _ models.Security, _ models.Frequency, r models.DateRange) (models.Series, error) {
	return f.fetch(r)
}
func (f *fakeProvider) SyncRange(context.Context, models.Security, models.Frequency, models.Series) (models.DateRange, error) {
	return f.rng, f.rangeErr
}

var _ interfaces.HistoryProvider = (*fakeProvider)(nil)

type fixture struct {
	service  *Service
	store    *seriesfs.Store
	provider *fakeProvider
	sec      models.Security
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := common.NewSilentLogger()
	store := seriesfs.NewStore(logger, dir)
	maps := mapping.NewStore(logger, dir)
	provider := &fakeProvider{
		name: "test_provider",
		rng:  models.DateRange{Start: day("2024-01-01"), End: day("2024-01-31")},
	}
	return &fixture{
		service:  NewService(logger, store, maps, provider.name, provider),
		store:    store,
		provider: provider,
		sec:      models.Security{Code: "AAA", Category: models.CategoryEquity, YahooCode: "AAA"},
	}
}

// ProviderSymbol knows nothing about test_provider, so route through a
// category the engine resolves symbols for. The fixture security carries a
// yahoo code; give the provider the same name so the symbol resolves.
func newYahooFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.provider.name = models.ProviderYahooFinance
	f.service = NewService(common.NewSilentLogger(), f.store, nil, f.provider.name, f.provider)
	return f
}

func TestSync_EmptyCacheFetchesFullRange(t *testing.T) {
	f := newYahooFixture(t)

	series, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{})
	require.NoError(t, err)

	require.Len(t, f.provider.calls, 1)
	assert.Equal(t, day("2024-01-01"), f.provider.calls[0].Start)
	assert.Equal(t, day("2024-01-31"), f.provider.calls[0].End)
	assert.Len(t, series, 31)

	// Fetched rows must land on disk.
	cached, err := f.store.Read(f.provider.name, f.sec, models.FrequencyDaily)
	require.NoError(t, err)
	assert.Len(t, cached, 31)
}

func TestSync_GapOnBothEdges(t *testing.T) {
	f := newYahooFixture(t)
	seed := bars("2024-01-10", "2024-01-20", 1)
	require.NoError(t, f.store.Write(f.provider.name, f.sec, models.FrequencyDaily, seed))

	series, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{})
	require.NoError(t, err)

	require.Len(t, f.provider.calls, 2)
	assert.Equal(t, models.DateRange{Start: day("2024-01-01"), End: day("2024-01-10")}, f.provider.calls[0])
	assert.Equal(t, models.DateRange{Start: day("2024-01-20"), End: day("2024-01-31")}, f.provider.calls[1])

	assert.Len(t, series, 31)
	assert.Equal(t, day("2024-01-01"), series.MinDate())
	assert.Equal(t, day("2024-01-31"), series.MaxDate())
	// Boundary dates were re-fetched; the fresher bar wins.
	assert.Equal(t, 2.0, series[9].Close)
	assert.Equal(t, 1.0, series[10].Close)
}

func TestSync_NoGapMakesNoCalls(t *testing.T) {
	f := newYahooFixture(t)
	seed := bars("2024-01-01", "2024-01-31", 1)
	require.NoError(t, f.store.Write(f.provider.name, f.sec, models.FrequencyDaily, seed))

	series, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{})
	require.NoError(t, err)
	assert.Empty(t, f.provider.calls)
	assert.Len(t, series, 31)
}

func TestSync_Idempotent(t *testing.T) {
	f := newYahooFixture(t)

	_, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{})
	require.NoError(t, err)
	first, err := os.ReadFile(f.store.FilePath(f.provider.name, f.sec, models.FrequencyDaily))
	require.NoError(t, err)

	f.provider.calls = nil
	_, err = f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{})
	require.NoError(t, err)
	assert.Empty(t, f.provider.calls, "second sync must not fetch")

	second, err := os.ReadFile(f.store.FilePath(f.provider.name, f.sec, models.FrequencyDaily))
	require.NoError(t, err)
	assert.Equal(t, first, second, "cache file must be unchanged")
}

func TestSync_LocalOnlySkipsProvider(t *testing.T) {
	f := newYahooFixture(t)
	seed := bars("2024-01-10", "2024-01-12", 1)
	require.NoError(t, f.store.Write(f.provider.name, f.sec, models.FrequencyDaily, seed))

	series, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{LocalOnly: true})
	require.NoError(t, err)
	assert.Empty(t, f.provider.calls)
	assert.Len(t, series, 3)
}

func TestSync_TransientErrorServesCacheWithoutWrite(t *testing.T) {
	f := newYahooFixture(t)
	seed := bars("2024-01-10", "2024-01-20", 1)
	require.NoError(t, f.store.Write(f.provider.name, f.sec, models.FrequencyDaily, seed))
	before, err := os.ReadFile(f.store.FilePath(f.provider.name, f.sec, models.FrequencyDaily))
	require.NoError(t, err)

	f.provider.fetchErr = &models.TransientError{Provider: f.provider.name, Symbol: "AAA", Reason: "quota"}

	series, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{})
	require.NoError(t, err)
	assert.Len(t, series, 11, "cache is served unchanged")

	after, err := os.ReadFile(f.store.FilePath(f.provider.name, f.sec, models.FrequencyDaily))
	require.NoError(t, err)
	assert.Equal(t, before, after, "a degraded sync must not touch the cache file")
}

func TestSync_TransientSyncRangeServesCache(t *testing.T) {
	f := newYahooFixture(t)
	f.provider.rangeErr = &models.TransientError{Provider: f.provider.name, Symbol: "AAA", Reason: "missing earliest-date mapping"}

	series, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{})
	require.NoError(t, err)
	assert.Empty(t, series)
	assert.Empty(t, f.provider.calls)
}

func TestSync_UnknownProviderIsConfigError(t *testing.T) {
	f := newYahooFixture(t)

	_, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{Provider: "nope"})
	var cerr *models.ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestSync_IntradayFailsFast(t *testing.T) {
	f := newYahooFixture(t)
	seed := bars("2024-01-10", "2024-01-12", 1)
	require.NoError(t, f.store.Write(f.provider.name, f.sec, models.FrequencyIntraday, seed))

	_, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{Frequency: models.FrequencyIntraday})
	var uerr *models.UnsupportedError
	require.ErrorAs(t, err, &uerr)
	assert.Empty(t, f.provider.calls)

	// A cached intraday file does not soften the failure; even cache-only
	// requests decline.
	_, err = f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{Frequency: models.FrequencyIntraday, LocalOnly: true})
	require.ErrorAs(t, err, &uerr)
}

func TestSync_MissingSymbolServesCache(t *testing.T) {
	f := newYahooFixture(t)
	f.sec.YahooCode = ""

	series, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{})
	require.NoError(t, err)
	assert.Empty(t, series)
	assert.Empty(t, f.provider.calls)
}

func TestSync_LocalCategorySkipsSync(t *testing.T) {
	f := newYahooFixture(t)
	f.sec.Category = models.CategoryComposite

	_, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{})
	require.NoError(t, err)
	assert.Empty(t, f.provider.calls)
}

func TestSync_DateOverridesNarrowRange(t *testing.T) {
	f := newYahooFixture(t)

	_, err := f.service.GetPriceHistory(context.Background(), f.sec, HistoryOptions{
		StartDate: day("2024-01-05"),
		EndDate:   day("2024-01-08"),
	})
	require.NoError(t, err)
	require.Len(t, f.provider.calls, 1)
	assert.Equal(t, models.DateRange{Start: day("2024-01-05"), End: day("2024-01-08")}, f.provider.calls[0])
}

func TestFetchCategory_Dispatch(t *testing.T) {
	p := &fakeProvider{name: "p"}
	r := models.DateRange{Start: day("2024-01-02"), End: day("2024-01-02")}

	for _, cat := range []models.Category{
		models.CategoryCurrencyCross,
		models.CategoryEquity,
		models.CategoryETF,
		models.CategoryFund,
	} {
		_, err := fetchCategory(context.Background(), p, models.Security{Category: cat}, models.FrequencyDaily, r)
		require.NoError(t, err, string(cat))
	}
	assert.Len(t, p.calls, 4)

	_, err := fetchCategory(context.Background(), p, models.Security{Category: "bond"}, models.FrequencyDaily, r)
	var cerr *models.ConfigError
	require.ErrorAs(t, err, &cerr)
}

const convertMasterCSV = `code,type,name,currency,currency_vs,reporting_currency,multiplier,isin,figi_code,yahoo_finance_code,twelve_data_code,alpha_vantage_code
AAA,equity,Alpha Corp,USD,,USD,1,,,AAA,,
USDEUR,currency_cross,USD to EUR,EUR,USD,EUR,1,,,USDEUR=X,,
`

func newConvertFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := common.NewSilentLogger()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "security_mapping.csv"), []byte(convertMasterCSV), 0644))

	store := seriesfs.NewStore(logger, dir)
	maps := mapping.NewStore(logger, dir)
	provider := &fakeProvider{name: models.ProviderYahooFinance}
	return &fixture{
		service:  NewService(logger, store, maps, provider.name, provider),
		store:    store,
		provider: provider,
	}
}

func TestGetPriceHistoryInCurrency(t *testing.T) {
	f := newConvertFixture(t)
	sec := models.Security{Code: "AAA", Category: models.CategoryEquity, YahooCode: "AAA"}
	cross := models.Security{Code: "USDEUR", Category: models.CategoryCurrencyCross, YahooCode: "USDEUR=X"}
	require.NoError(t, f.store.Write(f.provider.name, sec, models.FrequencyDaily, bars("2024-01-10", "2024-01-14", 2)))
	require.NoError(t, f.store.Write(f.provider.name, cross, models.FrequencyDaily, bars("2024-01-12", "2024-01-16", 3)))

	series, err := f.service.GetPriceHistoryInCurrencyByCode(context.Background(), "AAA", "EUR", HistoryOptions{LocalOnly: true})
	require.NoError(t, err)

	// Inner join: only the three overlapping dates survive, multiplied
	// bar by bar.
	require.Len(t, series, 3)
	assert.Equal(t, day("2024-01-12"), series.MinDate())
	assert.Equal(t, day("2024-01-14"), series.MaxDate())
	for _, b := range series {
		assert.Equal(t, 6.0, b.Close)
	}
	assert.Empty(t, f.provider.calls)
}

func TestGetPriceHistoryInCurrency_SameCurrencyShortCircuits(t *testing.T) {
	f := newConvertFixture(t)
	sec := models.Security{Code: "AAA", Category: models.CategoryEquity, YahooCode: "AAA"}
	require.NoError(t, f.store.Write(f.provider.name, sec, models.FrequencyDaily, bars("2024-01-10", "2024-01-12", 2)))

	series, err := f.service.GetPriceHistoryInCurrencyByCode(context.Background(), "AAA", "USD", HistoryOptions{LocalOnly: true})
	require.NoError(t, err)
	require.Len(t, series, 3)
	assert.Equal(t, 2.0, series[0].Close)
}

func TestGetPriceHistoryInCurrency_MissingCrossIsMappingError(t *testing.T) {
	f := newConvertFixture(t)

	_, err := f.service.GetPriceHistoryInCurrencyByCode(context.Background(), "AAA", "GBP", HistoryOptions{LocalOnly: true})
	var merr *models.MappingError
	require.ErrorAs(t, err, &merr)
}

const bulkMasterCSV = `code,type,name,currency,reporting_currency,multiplier,isin,figi_code,yahoo_finance_code,twelve_data_code,alpha_vantage_code
AAA,equity,Alpha Corp,USD,USD,1,,,AAA,,
BBB,equity,Beta Corp,USD,USD,1,,,,,
`

func newBulkFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	logger := common.NewSilentLogger()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "security_mapping.csv"), []byte(bulkMasterCSV), 0644))

	store := seriesfs.NewStore(logger, dir)
	maps := mapping.NewStore(logger, dir)
	provider := &fakeProvider{
		name: models.ProviderYahooFinance,
		rng:  models.DateRange{Start: day("2024-01-01"), End: day("2024-01-05")},
	}
	return &fixture{
		service:  NewService(logger, store, maps, provider.name, provider),
		store:    store,
		provider: provider,
	}
}

func TestUpdateAll(t *testing.T) {
	f := newBulkFixture(t)

	outcomes, err := f.service.UpdateAll(context.Background(), HistoryOptions{})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	// AAA has a yahoo symbol and syncs fully.
	assert.True(t, outcomes["AAA"].OK())
	assert.Equal(t, 5, outcomes["AAA"].Rows)

	// BBB has no symbol for the provider; its degradation is captured in
	// the outcome rather than aborting the run.
	assert.False(t, outcomes["BBB"].OK())
	assert.True(t, models.IsTransient(outcomes["BBB"].Err))
}

func TestUpdateAll_IntradayRecordedPerOutcome(t *testing.T) {
	f := newBulkFixture(t)

	outcomes, err := f.service.UpdateAll(context.Background(), HistoryOptions{Frequency: models.FrequencyIntraday})
	require.NoError(t, err, "an unsupported frequency must not abort the batch")
	require.Len(t, outcomes, 2)
	for code, o := range outcomes {
		assert.False(t, o.OK(), code)
		assert.True(t, models.IsUnsupported(o.Err), code)
	}
	assert.Empty(t, f.provider.calls)
}

func TestUpdateAll_CancelledContextStops(t *testing.T) {
	f := newBulkFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.service.UpdateAll(ctx, HistoryOptions{})
	require.ErrorIs(t, err, context.Canceled)
}

// mappingProvider is a fakeProvider that also serves bulk mapping lookups.
type mappingProvider struct {
	fakeProvider
	records []models.MappingRecord
	err     error
}

func (m *mappingProvider) UpdateSecurityMapping(context.Context, []models.Security) ([]models.MappingRecord, error) {
	return m.records, m.err
}

func TestFullUpdate_IncludesMappingOutcome(t *testing.T) {
	dir := t.TempDir()
	logger := common.NewSilentLogger()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "security_mapping.csv"), []byte(bulkMasterCSV), 0644))

	store := seriesfs.NewStore(logger, dir)
	maps := mapping.NewStore(logger, dir)
	provider := &mappingProvider{
		fakeProvider: fakeProvider{
			name: models.ProviderYahooFinance,
			rng:  models.DateRange{Start: day("2024-01-01"), End: day("2024-01-05")},
		},
		records: []models.MappingRecord{{Code: "AAA", Symbol: "AAA"}},
	}
	service := NewService(logger, store, maps, provider.name, provider)

	outcomes, err := service.FullUpdate(context.Background(), HistoryOptions{})
	require.NoError(t, err)

	mo, ok := outcomes[MappingOutcomeCode]
	require.True(t, ok)
	assert.True(t, mo.OK())
	assert.Equal(t, 1, mo.Rows)

	// The refresh must have been written to the provider mapping file.
	records, err := maps.ProviderMapping(provider.name)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "AAA", records[0].Code)
}
