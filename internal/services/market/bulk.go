package market

import (
	"context"
	"errors"
	"sort"

	"github.com/filippobounous/fbinv/internal/interfaces"
	"github.com/filippobounous/fbinv/internal/models"
)

// MappingOutcomeCode keys the mapping-refresh outcome in a full update.
const MappingOutcomeCode = "security_mapping"

// UpdateAll synchronizes every security in the mapping table and returns a
// per-code outcome. A failing security never aborts the run; its error is
// captured in the outcome. Only context cancellation stops the loop early.
func (s *Service) UpdateAll(ctx context.Context, opts HistoryOptions) (map[string]models.SyncOutcome, error) {
	secs, err := s.mapping.Securities()
	if err != nil {
		return nil, err
	}

	outcomes := make(map[string]models.SyncOutcome, len(secs))
	for _, sec := range secs {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		rep, err := s.sync(ctx, sec, opts)
		if err == nil {
			err = rep.warn
		}
		outcomes[sec.Code] = models.SyncOutcome{Code: sec.Code, Rows: len(rep.series), Err: err}
	}

	s.logger.Info().Int("securities", len(secs)).Msg("Bulk update complete")
	return outcomes, nil
}

// UpdateMapping refreshes the per-provider mapping files from every provider
// that can serve a bulk lookup. Returns the total number of records written
// and the joined errors of providers that failed.
func (s *Service) UpdateMapping(ctx context.Context) (int, error) {
	secs, err := s.mapping.Securities()
	if err != nil {
		return 0, err
	}

	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)

	var total int
	var errs []error
	for _, name := range names {
		updater, ok := s.providers[name].(interfaces.MappingUpdater)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}

		records, err := updater.UpdateSecurityMapping(ctx, secs)
		if err != nil {
			s.logger.Warn().Str("provider", name).Err(err).Msg("Mapping update failed")
			errs = append(errs, err)
			continue
		}
		if err := s.mapping.WriteProviderMapping(name, records); err != nil {
			errs = append(errs, err)
			continue
		}
		total += len(records)
		s.logger.Info().Str("provider", name).Int("rows", len(records)).Msg("Mapping updated")
	}
	return total, errors.Join(errs...)
}

// FullUpdate refreshes the symbol mappings first so newly discovered
// earliest dates feed the sync, then updates every price history. The
// mapping refresh reports under its own outcome code.
func (s *Service) FullUpdate(ctx context.Context, opts HistoryOptions) (map[string]models.SyncOutcome, error) {
	rows, mappingErr := s.UpdateMapping(ctx)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes, err := s.UpdateAll(ctx, opts)
	if err != nil {
		return outcomes, err
	}
	outcomes[MappingOutcomeCode] = models.SyncOutcome{Code: MappingOutcomeCode, Rows: rows, Err: mappingErr}
	return outcomes, nil
}
