// Package app wires configuration, the provider client, and the services
// into a runnable pipeline. It is the shared core under cmd/tickersync.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/tickersync/internal/clients/yahoo"
	"github.com/bobmcallan/tickersync/internal/common"
	"github.com/bobmcallan/tickersync/internal/interfaces"
	"github.com/bobmcallan/tickersync/internal/services/marketdata"
	"github.com/bobmcallan/tickersync/internal/universe"
	"github.com/bobmcallan/tickersync/internal/userdata"
)

// App holds the initialized configuration, client, and services for one run.
type App struct {
	Config      *common.Config
	UserConfig  *userdata.UserConfig
	Logger      *common.Logger
	RunID       string
	Provider    interfaces.MarketDataProvider
	Resolver    *universe.Resolver
	Updater     *marketdata.Service
	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, logging, the data tree, and services.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	binDir := getBinaryDir()

	// Check provided path, TICKERSYNC_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("TICKERSYNC_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "tickersync.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/tickersync.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative data path to binary directory
	if config.Data.Path != "" && !filepath.IsAbs(config.Data.Path) {
		if _, err := os.Stat(config.Data.Path); os.IsNotExist(err) {
			config.Data.Path = filepath.Join(binDir, config.Data.Path)
		}
	}

	runID := uuid.New().String()[:8]
	logger := common.NewLogger(config.Logging.Level).WithRun(runID)

	if err := config.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to prepare data tree: %w", err)
	}

	userConfig := userdata.Load(filepath.Join(config.Data.Path, config.Data.UserDataFile), logger)

	resolver := universe.NewResolver(config.Data.TickersPath(), userConfig.TickerFilenames, logger)

	provider := yahoo.NewClient(
		yahoo.WithBaseURL(config.Clients.Yahoo.BaseURL),
		yahoo.WithRateLimit(config.Clients.Yahoo.RateLimit),
		yahoo.WithTimeout(config.Clients.Yahoo.GetTimeout()),
		yahoo.WithLogger(logger),
	)

	startDate, err := time.Parse("2006-01-02", userConfig.StartDate)
	if err != nil {
		logger.Warn().Str("start_date", userConfig.StartDate).Msg("Unparseable start_date, using default")
		startDate = time.Time{}
	}

	updater := marketdata.NewService(provider, logger, marketdata.Options{
		StartDate:   startDate,
		Enrich:      userConfig.FinDataEnrich,
		TickerDelay: config.Updater.GetTickerDelay(),
		BatchSize:   config.Updater.BatchSize,
		BatchPause:  config.Updater.GetBatchPause(),
	})

	return &App{
		Config:      config,
		UserConfig:  userConfig,
		Logger:      logger,
		RunID:       runID,
		Provider:    provider,
		Resolver:    resolver,
		Updater:     updater,
		StartupTime: time.Now(),
	}, nil
}
