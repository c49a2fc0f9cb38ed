package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for fbinv. Values come from TOML files
// merged in order, then environment overrides.
type Config struct {
	Environment string          `toml:"environment"`
	Server      ServerConfig    `toml:"server"`
	Storage     StorageConfig   `toml:"storage"`
	Providers   ProvidersConfig `toml:"providers"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Logging     LoggingConfig   `toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host   string `toml:"host"`
	Port   int    `toml:"port"`
	APIKey string `toml:"api_key"` // empty disables auth
}

// StorageConfig holds filesystem layout for cached data and mapping tables.
type StorageConfig struct {
	BasePath string `toml:"base_path"` // mapping CSVs live here
	// SeriesPath is derived: {base_path}/timeseries_data
}

// SeriesPath returns the root of the time-series cache tree.
func (c *StorageConfig) SeriesPath() string {
	return c.BasePath + "/timeseries_data"
}

// ProvidersConfig groups per-provider client configuration.
type ProvidersConfig struct {
	Default      string             `toml:"default"`
	YahooFinance ProviderConfig     `toml:"yahoo_finance"`
	TwelveData   TwelveDataConfig   `toml:"twelve_data"`
	AlphaVantage AlphaVantageConfig `toml:"alpha_vantage"`
	OpenFIGI     OpenFIGIConfig     `toml:"open_figi"`
}

// ProviderConfig is the common shape for remote provider clients.
type ProviderConfig struct {
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Timeout string `toml:"timeout"`
}

// GetTimeout parses and returns the HTTP timeout duration.
func (c *ProviderConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// TwelveDataConfig adds the windowed quota of the Twelve Data free tier.
type TwelveDataConfig struct {
	ProviderConfig
	MaxRequestsPerWindow int    `toml:"max_requests_per_window"`
	WindowLength         string `toml:"window_length"`
	OutputSize           int    `toml:"output_size"`
	EndBufferDays        int    `toml:"end_buffer_days"`
}

// GetWindowLength parses and returns the rate-limit window duration.
func (c *TwelveDataConfig) GetWindowLength() time.Duration {
	d, err := time.ParseDuration(c.WindowLength)
	if err != nil {
		return time.Minute
	}
	return d
}

// AlphaVantageConfig adds the request-rate quota for Alpha Vantage.
type AlphaVantageConfig struct {
	ProviderConfig
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// OpenFIGIConfig adds the request-rate quota for OpenFIGI.
type OpenFIGIConfig struct {
	ProviderConfig
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

// SchedulerConfig controls the background full-update loop.
type SchedulerConfig struct {
	Enabled  bool   `toml:"enabled"`
	Interval string `toml:"interval"`
}

// GetInterval parses and returns the refresh interval.
func (c *SchedulerConfig) GetInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil {
		return 24 * time.Hour
	}
	return d
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// NewDefaultConfig returns a Config with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			BasePath: "data",
		},
		Providers: ProvidersConfig{
			Default: "yahoo_finance",
			YahooFinance: ProviderConfig{
				BaseURL: "https://query1.finance.yahoo.com",
				Timeout: "30s",
			},
			TwelveData: TwelveDataConfig{
				ProviderConfig: ProviderConfig{
					BaseURL: "https://api.twelvedata.com",
					Timeout: "30s",
				},
				MaxRequestsPerWindow: 8,
				WindowLength:         "1m",
				OutputSize:           5000,
				EndBufferDays:        2,
			},
			AlphaVantage: AlphaVantageConfig{
				ProviderConfig: ProviderConfig{
					BaseURL: "https://www.alphavantage.co",
					Timeout: "30s",
				},
				RequestsPerSecond: 1,
			},
			OpenFIGI: OpenFIGIConfig{
				ProviderConfig: ProviderConfig{
					BaseURL: "https://api.openfigi.com",
					Timeout: "30s",
				},
				RequestsPerSecond: 2,
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:  false,
			Interval: "24h",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides.
// Missing files are skipped; later files override earlier ones.
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)
	return config, nil
}

func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FBINV_ENV"); env != "" {
		config.Environment = env
	}
	if host := os.Getenv("FBINV_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("FBINV_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if key := os.Getenv("FBINV_API_KEY"); key != "" {
		config.Server.APIKey = key
	}
	if level := os.Getenv("FBINV_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if path := os.Getenv("FBINV_BASE_PATH"); path != "" {
		config.Storage.BasePath = path
	}
	if name := os.Getenv("FBINV_DEFAULT_PROVIDER"); name != "" {
		config.Providers.Default = name
	}
	if key := os.Getenv("TWELVE_DATA_API_KEY"); key != "" {
		config.Providers.TwelveData.APIKey = key
	}
	if key := os.Getenv("ALPHA_VANTAGE_API_KEY"); key != "" {
		config.Providers.AlphaVantage.APIKey = key
	}
	if key := os.Getenv("OPEN_FIGI_API_KEY"); key != "" {
		config.Providers.OpenFIGI.APIKey = key
	}
}
