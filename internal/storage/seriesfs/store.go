// Package seriesfs implements the on-disk time-series cache. Each instrument
// gets one CSV file per (provider, series kind, category, frequency); writes
// always rewrite the full deduplicated, sorted series.
package seriesfs

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/models"
)

var header = []string{"as_of_date", "open", "high", "low", "close"}

// Store reads and writes cached price histories under a base directory.
type Store struct {
	basePath string
	logger   *common.Logger
}

// NewStore returns a Store rooted at basePath. Directories are created
// lazily on the first write.
func NewStore(logger *common.Logger, basePath string) *Store {
	return &Store{basePath: basePath, logger: logger}
}

// BasePath returns the root of the cache tree.
func (s *Store) BasePath() string { return s.basePath }

// FilePath derives the deterministic cache location for one series:
// {base}/{provider}/{seriesKind}/{category}/{symbol}-{frequency}-{seriesKind}.csv
// where symbol is the provider's symbol for the security with
// filesystem-unsafe characters stripped.
func (s *Store) FilePath(provider string, sec models.Security, freq models.Frequency) string {
	symbol := sanitizeSymbol(sec.ProviderSymbol(provider))
	kind := models.SeriesKindPriceHistory
	name := fmt.Sprintf("%s-%s-%s.csv", symbol, freq, kind)
	return filepath.Join(s.basePath, provider, kind, string(sec.Category), name)
}

func sanitizeSymbol(symbol string) string {
	r := strings.NewReplacer("/", "", "\\", "", " ", "_", "..", "")
	return r.Replace(symbol)
}

// Read loads the cached series for a security. A missing file is an empty
// series, not an error.
func (s *Store) Read(provider string, sec models.Security, freq models.Frequency) (models.Series, error) {
	path := s.FilePath(provider, sec, freq)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.Series{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return models.Series{}, nil
	}

	series := make(models.Series, 0, len(rows)-1)
	for i, row := range rows[1:] { // skip header
		bar, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+2, err)
		}
		series = append(series, bar)
	}
	return series, nil
}

// Write persists a series, creating parent directories as needed. The file
// is replaced atomically so a crashed write never leaves a torn cache. The
// series is deduplicated and sorted before writing, which makes Write
// idempotent for equivalent input.
func (s *Store) Write(provider string, sec models.Security, freq models.Frequency, series models.Series) error {
	path := s.FilePath(provider, sec, freq)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	series = models.Series{}.Merge(series)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, b := range series {
		record := []string{
			b.Date.Format(models.DateLayout),
			formatFloat(b.Open),
			formatFloat(b.High),
			formatFloat(b.Low),
			formatFloat(b.Close),
		}
		if err := w.Write(record); err != nil {
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

	s.logger.Debug().Str("path", path).Int("rows", len(series)).Msg("Series written")
	return nil
}

func parseRow(row []string) (models.Bar, error) {
	if len(row) < 5 {
		return models.Bar{}, fmt.Errorf("expected 5 columns, got %d", len(row))
	}
	date, err := parseDate(row[0])
	if err != nil {
		return models.Bar{}, err
	}
	vals := make([]float64, 4)
	for i, cell := range row[1:5] {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return models.Bar{}, fmt.Errorf("bad value %q: %w", cell, err)
		}
		vals[i] = v
	}
	return models.Bar{Date: date, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3]}, nil
}

// parseDate accepts the ISO calendar date the store writes, and tolerates a
// trailing time component left behind by older cache files.
func parseDate(cell string) (time.Time, error) {
	if len(cell) > len(models.DateLayout) {
		cell = cell[:len(models.DateLayout)]
	}
	t, err := time.Parse(models.DateLayout, cell)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad date %q: %w", cell, err)
	}
	return t, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
