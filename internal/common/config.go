// Package common provides shared utilities for tickersync
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration for tickersync.
// This is the operational config (paths, provider endpoint, throttling);
// the declarative per-run user configuration lives in internal/userdata.
type Config struct {
	Environment string        `toml:"environment"`
	Data        DataConfig    `toml:"data"`
	Clients     ClientsConfig `toml:"clients"`
	Updater     UpdaterConfig `toml:"updater"`
	Logging     LoggingConfig `toml:"logging"`
}

// DataConfig holds the on-disk layout of the data tree.
type DataConfig struct {
	Path         string `toml:"path"`           // root data directory
	TickersDir   string `toml:"tickers_dir"`    // ticker group + side files
	MarketDir    string `toml:"market_dir"`     // per-ticker history, one subdir per interval
	BulkDir      string `toml:"bulk_dir"`       // bulk vendor export files, one subdir per timeframe
	BulkDataDir  string `toml:"bulk_data_dir"`  // per-ticker history fed from bulk files
	UserDataFile string `toml:"user_data_file"` // declarative user configuration CSV
}

// TickersPath returns the absolute tickers directory.
func (d *DataConfig) TickersPath() string {
	return filepath.Join(d.Path, d.TickersDir)
}

// MarketPath returns the per-ticker history directory for an interval subdir.
func (d *DataConfig) MarketPath(subdir string) string {
	return filepath.Join(d.Path, d.MarketDir, subdir)
}

// BulkFilesPath returns the bulk export directory for a timeframe subdir.
func (d *DataConfig) BulkFilesPath(subdir string) string {
	return filepath.Join(d.Path, d.BulkDir, subdir)
}

// BulkDataPath returns the bulk-fed per-ticker directory for a timeframe subdir.
func (d *DataConfig) BulkDataPath(subdir string) string {
	return filepath.Join(d.Path, d.BulkDataDir, subdir)
}

// ClientsConfig holds API client configurations.
type ClientsConfig struct {
	Yahoo YahooConfig `toml:"yahoo"`
}

// YahooConfig holds the market data provider configuration.
type YahooConfig struct {
	BaseURL   string `toml:"base_url"`
	RateLimit int    `toml:"rate_limit"`
	Timeout   string `toml:"timeout"`
}

// GetTimeout parses and returns the timeout duration
func (c *YahooConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// UpdaterConfig holds throttling knobs for the incremental updater.
type UpdaterConfig struct {
	TickerDelay string `toml:"ticker_delay"` // pause between tickers
	BatchSize   int    `toml:"batch_size"`   // tickers per batch before the long pause
	BatchPause  string `toml:"batch_pause"`  // pause after each full batch
}

// GetTickerDelay parses the inter-ticker delay duration.
func (c *UpdaterConfig) GetTickerDelay() time.Duration {
	d, err := time.ParseDuration(c.TickerDelay)
	if err != nil {
		return 200 * time.Millisecond
	}
	return d
}

// GetBatchPause parses the batch pause duration.
func (c *UpdaterConfig) GetBatchPause() time.Duration {
	d, err := time.ParseDuration(c.BatchPause)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Data: DataConfig{
			Path:         "data",
			TickersDir:   "tickers",
			MarketDir:    "market_data",
			BulkDir:      "tw_files",
			BulkDataDir:  "market_data_tw",
			UserDataFile: "user_data.csv",
		},
		Clients: ClientsConfig{
			Yahoo: YahooConfig{
				BaseURL:   "https://query1.finance.yahoo.com",
				RateLimit: 5,
				Timeout:   "30s",
			},
		},
		Updater: UpdaterConfig{
			TickerDelay: "200ms",
			BatchSize:   100,
			BatchPause:  "30s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier)
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue // Skip missing files
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

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("TICKERSYNC_ENV"); env != "" {
		config.Environment = env
	}

	if path := os.Getenv("TICKERSYNC_DATA_PATH"); path != "" {
		config.Data.Path = path
	}

	if level := os.Getenv("TICKERSYNC_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if rl := os.Getenv("TICKERSYNC_RATE_LIMIT"); rl != "" {
		if n, err := strconv.Atoi(rl); err == nil && n > 0 {
			config.Clients.Yahoo.RateLimit = n
		}
	}

	if f := os.Getenv("TICKERSYNC_USER_DATA"); f != "" {
		config.Data.UserDataFile = f
	}
}

// EnsureDirectories creates the data directory tree if absent.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Data.Path,
		c.Data.TickersPath(),
	}
	for _, sub := range []string{"daily", "weekly", "monthly"} {
		dirs = append(dirs,
			c.Data.MarketPath(sub),
			c.Data.BulkFilesPath(sub),
			c.Data.BulkDataPath(sub),
		)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
