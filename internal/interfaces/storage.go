package interfaces

import "github.com/filippobounous/fbinv/internal/models"

// SeriesStore is the on-disk cache of per-instrument time series.
type SeriesStore interface {
	// Read returns the cached series, or an empty series when no cache file
	// exists yet.
	Read(provider string, sec models.Security, freq models.Frequency) (models.Series, error)
	// Write replaces the cache file with the full deduplicated, sorted
	// series, creating parent directories as needed.
	Write(provider string, sec models.Security, freq models.Frequency, series models.Series) error
	// FilePath derives the deterministic cache location for one series.
	FilePath(provider string, sec models.Security, freq models.Frequency) string
}

// MappingStore is the local reference table of known securities and the
// per-provider symbol-mapping files derived from it.
type MappingStore interface {
	// Securities returns every security in the local mapping table.
	Securities() ([]models.Security, error)
	// Resolve returns the security for a code. Zero or duplicate rows are a
	// *models.MappingError.
	Resolve(code string) (models.Security, error)
	// WriteProviderMapping replaces a provider's mapping file.
	WriteProviderMapping(provider string, records []models.MappingRecord) error
	// ProviderMapping reads a provider's mapping file; missing file is an
	// empty table.
	ProviderMapping(provider string) ([]models.MappingRecord, error)
}
