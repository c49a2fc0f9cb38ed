package mapping

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/models"
)

const masterCSV = `code,type,name,currency,reporting_currency,multiplier,isin,figi_code,yahoo_finance_code,twelve_data_code,alpha_vantage_code
AAA,equity,Alpha Corp,USD,USD,1,US0000000001,BBG000AAA,AAA,AAA,AAA
BBB,fund,Beta Fund,GBP,GBP,0.01,GB0000000002,,BBB.L,BBB,
EURUSD,currency_cross,Euro Dollar,USD,USD,1,,,EURUSD=X,EUR/USD,
DUP,equity,Dup One,USD,USD,1,,,,,
DUP,equity,Dup Two,USD,USD,1,,,,,
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "security_mapping.csv"), []byte(masterCSV), 0644))
	return NewStore(common.NewSilentLogger(), dir)
}

func TestSecurities(t *testing.T) {
	store := newTestStore(t)
	secs, err := store.Securities()
	require.NoError(t, err)
	require.Len(t, secs, 5)

	assert.Equal(t, "AAA", secs[0].Code)
	assert.Equal(t, models.CategoryEquity, secs[0].Category)
	assert.Equal(t, "BBG000AAA", secs[0].FIGI)
	assert.Equal(t, "US0000000001", secs[0].ISIN)
	assert.Equal(t, 0.01, secs[1].Multiplier)
	assert.Equal(t, "EUR/USD", secs[2].TwelveDataCode)
}

func TestResolve(t *testing.T) {
	store := newTestStore(t)

	sec, err := store.Resolve("BBB")
	require.NoError(t, err)
	assert.Equal(t, models.CategoryFund, sec.Category)

	_, err = store.Resolve("NOPE")
	var merr *models.MappingError
	require.ErrorAs(t, err, &merr)
	assert.Contains(t, merr.Error(), "no mapping row")

	_, err = store.Resolve("DUP")
	require.ErrorAs(t, err, &merr)
	assert.Contains(t, merr.Error(), "duplicate")
}

func TestProviderMapping_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	records := []models.MappingRecord{
		{Code: "AAA", Symbol: "AAA", EarliestDaily: time.Date(2001, 5, 15, 0, 0, 0, 0, time.UTC)},
		{Code: "BBB", Symbol: "BBB"},
	}
	require.NoError(t, store.WriteProviderMapping(models.ProviderTwelveData, records))

	out, err := store.ProviderMapping(models.ProviderTwelveData)
	require.NoError(t, err)
	assert.Equal(t, records, out)
}

func TestProviderMapping_MissingFileIsEmpty(t *testing.T) {
	store := newTestStore(t)
	out, err := store.ProviderMapping(models.ProviderOpenFIGI)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSecurities_JoinsEarliestDates(t *testing.T) {
	store := newTestStore(t)
	early := time.Date(1999, 11, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.WriteProviderMapping(models.ProviderTwelveData, []models.MappingRecord{
		{Code: "AAA", Symbol: "AAA", EarliestDaily: early},
	}))

	sec, err := store.Resolve("AAA")
	require.NoError(t, err)
	assert.Equal(t, early, sec.EarliestDaily)
	assert.True(t, sec.EarliestIntraday.IsZero())

	other, err := store.Resolve("EURUSD")
	require.NoError(t, err)
	assert.True(t, other.EarliestDaily.IsZero(), "no provider row for this symbol")
}
