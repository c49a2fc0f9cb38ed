// Package app wires configuration, storage, provider clients and the sync
// engine into one application core shared by the server binary and tests.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/filippobounous/fbinv/internal/clients/alphavantage"
	"github.com/filippobounous/fbinv/internal/clients/local"
	"github.com/filippobounous/fbinv/internal/clients/openfigi"
	"github.com/filippobounous/fbinv/internal/clients/twelvedata"
	"github.com/filippobounous/fbinv/internal/clients/yahoo"
	"github.com/filippobounous/fbinv/internal/common"
	"github.com/filippobounous/fbinv/internal/interfaces"
	"github.com/filippobounous/fbinv/internal/mapping"
	"github.com/filippobounous/fbinv/internal/services/market"
	"github.com/filippobounous/fbinv/internal/storage/seriesfs"
)

// App holds the initialized services and clients.
type App struct {
	Config       *common.Config
	Logger       *common.Logger
	SeriesStore  interfaces.SeriesStore
	MappingStore interfaces.MappingStore
	Market       *market.Service
	StartupTime  time.Time

	schedulerCancel context.CancelFunc
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes the application from a config path. An empty path falls
// back to FBINV_CONFIG, then fbinv.toml next to the binary, then the
// development location.
func NewApp(configPath string) (*App, error) {
	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("FBINV_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "fbinv.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/fbinv.toml"
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if !filepath.IsAbs(config.Storage.BasePath) {
		config.Storage.BasePath = filepath.Join(binDir, config.Storage.BasePath)
	}

	logger := common.NewLogger(config.Logging.Level)

	return newApp(config, logger)
}

// newApp builds the application from resolved configuration.
func newApp(config *common.Config, logger *common.Logger) (*App, error) {
	seriesStore := seriesfs.NewStore(logger, config.Storage.SeriesPath())
	mappingStore := mapping.NewStore(logger, config.Storage.BasePath)

	providers := []interfaces.HistoryProvider{
		local.New(),
		yahoo.NewClient(
			yahoo.WithBaseURL(config.Providers.YahooFinance.BaseURL),
			yahoo.WithLogger(logger),
			yahoo.WithTimeout(config.Providers.YahooFinance.GetTimeout()),
		),
	}

	if key := config.Providers.TwelveData.APIKey; key != "" {
		td := config.Providers.TwelveData
		providers = append(providers, twelvedata.NewClient(key,
			twelvedata.WithBaseURL(td.BaseURL),
			twelvedata.WithLogger(logger),
			twelvedata.WithTimeout(td.GetTimeout()),
			twelvedata.WithRateWindow(td.MaxRequestsPerWindow, td.GetWindowLength()),
			twelvedata.WithOutputSize(td.OutputSize),
			twelvedata.WithEndBuffer(td.EndBufferDays),
		))
	} else {
		logger.Warn().Msg("Twelve Data API key not configured - provider unavailable")
	}

	if key := config.Providers.AlphaVantage.APIKey; key != "" {
		av := config.Providers.AlphaVantage
		providers = append(providers, alphavantage.NewClient(key,
			alphavantage.WithBaseURL(av.BaseURL),
			alphavantage.WithLogger(logger),
			alphavantage.WithTimeout(av.GetTimeout()),
			alphavantage.WithRateLimit(av.RequestsPerSecond),
		))
	} else {
		logger.Warn().Msg("Alpha Vantage API key not configured - provider unavailable")
	}

	// OpenFIGI works without a key on the public rate tier.
	of := config.Providers.OpenFIGI
	providers = append(providers, openfigi.NewClient(of.APIKey,
		openfigi.WithBaseURL(of.BaseURL),
		openfigi.WithLogger(logger),
		openfigi.WithTimeout(of.GetTimeout()),
		openfigi.WithRateLimit(of.RequestsPerSecond),
	))

	marketService := market.NewService(logger, seriesStore, mappingStore, config.Providers.Default, providers...)

	logger.Info().
		Str("base_path", config.Storage.BasePath).
		Str("default_provider", config.Providers.Default).
		Int("providers", len(providers)).
		Msg("Application initialized")

	return &App{
		Config:       config,
		Logger:       logger,
		SeriesStore:  seriesStore,
		MappingStore: mappingStore,
		Market:       marketService,
		StartupTime:  time.Now(),
	}, nil
}

// StartScheduler launches the background full-update loop when enabled.
func (a *App) StartScheduler() {
	if !a.Config.Scheduler.Enabled {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.schedulerCancel = cancel
	go runUpdateScheduler(ctx, a.Market, a.Logger, a.Config.Scheduler.GetInterval())
}

// Close stops background work.
func (a *App) Close() {
	if a.schedulerCancel != nil {
		a.schedulerCancel()
	}
}
