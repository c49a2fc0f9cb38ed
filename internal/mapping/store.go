// Package mapping reads and writes the local security reference tables:
// the master security_mapping.csv plus one derived mapping file per remote
// provider. The sync engine consumes these tables; only the bulk
// mapping-update operation produces them.
package mapping

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/models"
)

const masterFile = "security_mapping.csv"

// Store loads securities from CSV reference tables under a base directory.
type Store struct {
	basePath string
	logger   *common.Logger
}

// NewStore returns a Store rooted at basePath.
func NewStore(logger *common.Logger, basePath string) *Store {
	return &Store{basePath: basePath, logger: logger}
}

// MasterPath returns the location of the master mapping table.
func (s *Store) MasterPath() string {
	return filepath.Join(s.basePath, masterFile)
}

// ProviderPath returns the location of a provider's mapping file.
func (s *Store) ProviderPath(provider string) string {
	return filepath.Join(s.basePath, fmt.Sprintf("security_mapping-%s.csv", provider))
}

// Securities returns every security in the master table, enriched with the
// cached earliest-available dates from the Twelve Data provider file when
// one exists.
func (s *Store) Securities() ([]models.Security, error) {
	rows, err := readTable(s.MasterPath())
	if err != nil {
		return nil, err
	}

	earliest := map[string]models.MappingRecord{}
	if records, err := s.ProviderMapping(models.ProviderTwelveData); err == nil {
		for _, r := range records {
			earliest[r.Symbol] = r
		}
	}

	secs := make([]models.Security, 0, len(rows))
	for _, row := range rows {
		sec := securityFromRow(row)
		if r, ok := earliest[sec.TwelveDataCode]; ok && sec.TwelveDataCode != "" {
			sec.EarliestDaily = r.EarliestDaily
			sec.EarliestIntraday = r.EarliestIntraday
		}
		secs = append(secs, sec)
	}
	return secs, nil
}

// Resolve returns the security for a code. Zero or more than one matching
// row means the table cannot answer unambiguously and is a MappingError.
func (s *Store) Resolve(code string) (models.Security, error) {
	secs, err := s.Securities()
	if err != nil {
		return models.Security{}, err
	}
	var matches []models.Security
	for _, sec := range secs {
		if sec.Code == code {
			matches = append(matches, sec)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return models.Security{}, &models.MappingError{Code: code, Detail: "no mapping row"}
	default:
		return models.Security{}, &models.MappingError{Code: code, Detail: "duplicate mapping rows"}
	}
}

// ProviderMapping reads a provider's mapping file. A missing file is an
// empty table, matching the cache store's read semantics.
func (s *Store) ProviderMapping(provider string) ([]models.MappingRecord, error) {
	rows, err := readTable(s.ProviderPath(provider))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	records := make([]models.MappingRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.MappingRecord{
			Code:             row["code"],
			Symbol:           row["symbol"],
			EarliestDaily:    parseDate(row["earliest_date_daily"]),
			EarliestIntraday: parseDate(row["earliest_date_intraday"]),
		})
	}
	return records, nil
}

// WriteProviderMapping replaces a provider's mapping file.
func (s *Store) WriteProviderMapping(provider string, records []models.MappingRecord) error {
	path := s.ProviderPath(provider)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.Write([]string{"code", "symbol", "earliest_date_daily", "earliest_date_intraday"}); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		row := []string{r.Code, r.Symbol, formatDate(r.EarliestDaily), formatDate(r.EarliestIntraday)}
		if err := w.Write(row); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	s.logger.Debug().Str("provider", provider).Int("rows", len(records)).Msg("Provider mapping written")
	return nil
}

// readTable loads a CSV file into header-keyed rows.
func readTable(path string) ([]map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	raw, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	header := raw[0]
	rows := make([]map[string]string, 0, len(raw)-1)
	for _, record := range raw[1:] {
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[col] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func securityFromRow(row map[string]string) models.Security {
	multiplier := 1.0
	if v, err := strconv.ParseFloat(row["multiplier"], 64); err == nil {
		multiplier = v
	}
	return models.Security{
		Code:              row["code"],
		Category:          models.Category(row["type"]),
		Name:              row["name"],
		Currency:          row["currency"],
		CurrencyVs:        row["currency_vs"],
		ReportingCurrency: row["reporting_currency"],
		Multiplier:        multiplier,
		ISIN:              row["isin"],
		FIGI:              row["figi_code"],
		YahooCode:         row["yahoo_finance_code"],
		TwelveDataCode:    row["twelve_data_code"],
		AlphaVantageCode:  row["alpha_vantage_code"],
	}
}

func parseDate(cell string) time.Time {
	if cell == "" {
		return time.Time{}
	}
	t, err := time.Parse(models.DateLayout, cell)
	if err != nil {
		return time.Time{}
	}
	return t
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(models.DateLayout)
}
