package app

import (
	"context"
	"time"

	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/services/market"
)

// runUpdateScheduler refreshes mappings and price histories on a fixed
// interval until the context is cancelled.
func runUpdateScheduler(ctx context.Context, svc *market.Service, logger *common.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info().Dur("interval", interval).Msg("Update scheduler: started")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Update scheduler: stopped")
			return
		case <-ticker.C:
			runFullUpdate(ctx, svc, logger)
		}
	}
}

func runFullUpdate(ctx context.Context, svc *market.Service, logger *common.Logger) {
	start := time.Now()

	outcomes, err := svc.FullUpdate(ctx, market.HistoryOptions{})
	if err != nil {
		logger.Warn().Err(err).Msg("Scheduled update failed")
		return
	}

	var ok, failed int
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		} else {
			ok++
		}
	}
	logger.Info().
		Int("ok", ok).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("Scheduled update: complete")
}
