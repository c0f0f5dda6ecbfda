package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bobmcallan/tickersync/internal/common"
	"github.com/bobmcallan/tickersync/internal/models"
	"github.com/bobmcallan/tickersync/internal/services/bulkfile"
	"github.com/bobmcallan/tickersync/internal/services/marketdata"
	"github.com/bobmcallan/tickersync/internal/storage/tickerfs"
	"github.com/bobmcallan/tickersync/internal/universe"
	"github.com/bobmcallan/tickersync/internal/userdata"
)

// Run executes the full pipeline: resolve the ticker universe, update
// per-ticker history from the provider, then reconcile bulk export files.
// Per-ticker failures are collected into side artifacts; Run fails only on
// cancellation or when no universe can be resolved at all.
func (a *App) Run(ctx context.Context) error {
	common.PrintBanner(a.Config, a.Logger)

	uni, choice, err := a.resolveUniverse()
	if err != nil {
		return err
	}

	safe := userdata.Safe(choice)
	tickersDir := a.Config.Data.TickersPath()

	combinedPath := filepath.Join(tickersDir, fmt.Sprintf("combined_tickers_%s.csv", safe))
	if err := tickerfs.WriteTickerList(combinedPath, uni.Tickers); err != nil {
		return fmt.Errorf("failed to write combined ticker list: %w", err)
	}
	a.Logger.Info().Str("file", combinedPath).Int("tickers", len(uni.Tickers)).Msg("Combined ticker list written")

	var problems []models.ProblematicTicker
	cleanBase := uni.Tickers

	if a.UserConfig.YFHistData {
		successful, intervalProblems, err := a.updateHistories(ctx, uni.Tickers)
		if err != nil {
			return err
		}
		problems = append(problems, intervalProblems...)
		cleanBase = successful
	}

	problemPath := filepath.Join(a.Config.Data.Path, a.Config.Data.MarketDir, fmt.Sprintf("problematic_tickers_%s.csv", safe))
	if err := tickerfs.WriteProblematicList(problemPath, problems); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to write problematic ticker list")
	}

	if a.UserConfig.WriteFileInfo {
		problems = append(problems, a.writeInfoArtifact(ctx, uni, safe)...)
	}

	// Clean list: tickers whose history update and info load both succeeded
	clean := marketdata.BuildCleanList(cleanBase, problems)
	cleanPath := filepath.Join(tickersDir, fmt.Sprintf("tickers_%s_clean.csv", safe))
	if err := tickerfs.WriteTickerList(cleanPath, clean); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to write clean ticker list")
	}
	a.writePortfolioCleanList(clean)

	if a.UserConfig.TWHistData {
		if err := a.reconcileBulkFiles(ctx, uni.Tickers); err != nil {
			return err
		}
	}

	a.Logger.Info().Dur("elapsed", time.Since(a.StartupTime)).Msg("Run complete")
	return nil
}

// resolveUniverse resolves the configured selector, retrying once with the
// default selector when the configured one is rejected. Returns the selector
// actually used; the parsed user configuration is never mutated.
func (a *App) resolveUniverse() (*universe.Universe, string, error) {
	opts := universe.DefaultResolveOptions()
	opts.UniverseFile = filepath.Join(a.Config.Data.TickersPath(), a.UserConfig.TWUniverseFile)

	choice := a.UserConfig.TickerChoice
	uni, err := a.Resolver.Resolve(choice, opts)
	if err == nil {
		return uni, choice, nil
	}

	var choiceErr *universe.ChoiceError
	if errors.As(err, &choiceErr) && choice != userdata.DefaultTickerChoice {
		a.Logger.Warn().Err(err).Str("default", userdata.DefaultTickerChoice).Msg("Retrying universe resolution with default selector")
		uni, err = a.Resolver.Resolve(userdata.DefaultTickerChoice, opts)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve ticker universe: %w", err)
		}
		return uni, userdata.DefaultTickerChoice, nil
	}
	return nil, "", fmt.Errorf("failed to resolve ticker universe: %w", err)
}

// writePortfolioCleanList writes the subset of the clean list that belongs
// to the portfolio group, preserving clean-list order. Skipped when no
// portfolio file exists.
func (a *App) writePortfolioCleanList(clean []string) {
	portfolio, err := a.Resolver.GroupTickers(universe.GroupPortfolio)
	if err != nil {
		a.Logger.Debug().Err(err).Msg("No portfolio group file, skipping portfolio clean list")
		return
	}

	held := make(map[string]bool, len(portfolio))
	for _, t := range portfolio {
		held[t] = true
	}
	var subset []string
	for _, t := range clean {
		if held[t] {
			subset = append(subset, t)
		}
	}

	path := filepath.Join(a.Config.Data.TickersPath(), "combined_info_tickers_clean_portfolio.csv")
	if err := tickerfs.WriteTickerList(path, subset); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to write portfolio clean list")
	}
}

// updateHistories runs the incremental updater for every enabled interval.
// Returns the tickers that succeeded in every interval, in universe order.
func (a *App) updateHistories(ctx context.Context, tickers []string) ([]string, []models.ProblematicTicker, error) {
	var intervals []models.Interval
	if a.UserConfig.YFDailyData {
		intervals = append(intervals, models.IntervalDaily)
	}
	if a.UserConfig.YFWeeklyData {
		intervals = append(intervals, models.IntervalWeekly)
	}
	if a.UserConfig.YFMonthlyData {
		intervals = append(intervals, models.IntervalMonthly)
	}

	successful := tickers
	var problems []models.ProblematicTicker
	for _, interval := range intervals {
		store, err := tickerfs.NewStore(a.Config.Data.MarketPath(interval.Subdir()), a.Logger)
		if err != nil {
			return nil, nil, err
		}
		result, err := a.Updater.UpdateAll(ctx, store, tickers, interval)
		if err != nil {
			return nil, nil, err
		}
		problems = append(problems, result.Problematic...)

		kept := make(map[string]bool, len(result.Successful))
		for _, t := range result.Successful {
			kept[t] = true
		}
		var next []string
		for _, t := range successful {
			if kept[t] {
				next = append(next, t)
			}
		}
		successful = next
	}
	return successful, problems, nil
}

// writeInfoArtifact writes per-ticker descriptive metadata, sourced from the
// vendor info (membership file, then the pre-supplied info file), otherwise
// from the provider. Returns the tickers whose info load failed.
func (a *App) writeInfoArtifact(ctx context.Context, uni *universe.Universe, safe string) []models.ProblematicTicker {
	var infos []models.TickerInfo
	var infoProblems []models.ProblematicTicker

	vendor := a.vendorInfo(uni)
	switch {
	case a.UserConfig.TickerInfoTW && len(vendor) > 0:
		for _, ticker := range uni.Tickers {
			if info, ok := vendor[ticker]; ok {
				infos = append(infos, info)
			} else {
				infoProblems = append(infoProblems, models.ProblematicTicker{Ticker: ticker, Error: "no vendor info record"})
			}
		}
		a.Logger.Info().Int("tickers", len(infos)).Int("missing", len(infoProblems)).Msg("Ticker info sourced from vendor data")
	case a.UserConfig.TickerInfoYF:
		infos, infoProblems = a.Updater.CollectInfo(ctx, uni.Tickers)
		a.Logger.Info().Int("tickers", len(infos)).Int("failed", len(infoProblems)).Msg("Ticker info collected from provider")
	default:
		return nil
	}

	infoPath := filepath.Join(a.Config.Data.TickersPath(), fmt.Sprintf("ticker_info_%s.csv", safe))
	if err := tickerfs.WriteInfoList(infoPath, infos); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to write ticker info list")
	}
	return infoProblems
}

// vendorInfo returns per-ticker vendor metadata: the membership file's rows
// when the universe was resolved from it, else the pre-supplied info file.
// Nil when the TW info source is disabled or neither source is available.
func (a *App) vendorInfo(uni *universe.Universe) map[string]models.TickerInfo {
	if !a.UserConfig.TickerInfoTW {
		return nil
	}
	if len(uni.Info) > 0 {
		return uni.Info
	}
	path := filepath.Join(a.Config.Data.TickersPath(), a.UserConfig.TickerInfoTWFile)
	loaded, err := universe.ReadInfoFile(path)
	if err != nil {
		a.Logger.Warn().Str("file", path).Err(err).Msg("Vendor info file unavailable")
		return nil
	}
	a.Logger.Info().Str("file", path).Int("tickers", len(loaded)).Msg("Loaded vendor info file")
	return loaded
}

// reconcileBulkFiles merges the latest bulk export files into the bulk-fed
// history tree, one timeframe at a time.
func (a *App) reconcileBulkFiles(ctx context.Context, tickers []string) error {
	timeframes := []bulkfile.Timeframe{
		bulkfile.TimeframeDaily,
		bulkfile.TimeframeWeekly,
		bulkfile.TimeframeMonthly,
	}

	for _, tf := range timeframes {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("bulk reconcile cancelled: %w", err)
		}

		subdir := tf.Interval().Subdir()
		store, err := tickerfs.NewStore(a.Config.Data.BulkDataPath(subdir), a.Logger)
		if err != nil {
			return err
		}

		reconciler := bulkfile.NewReconciler(a.Config.Data.BulkFilesPath(subdir), a.Logger)
		result, err := reconciler.Reconcile(store, tf, tickers)
		if err != nil {
			a.Logger.Warn().Str("timeframe", string(tf)).Err(err).Msg("Bulk reconcile failed for timeframe")
			continue
		}

		problemPath := filepath.Join(a.Config.Data.Path, a.Config.Data.BulkDataDir, fmt.Sprintf("problematic_tickers_tw_%s.csv", tf.Safe()))
		if err := tickerfs.WriteProblematicList(problemPath, result.Problematic); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to write bulk problematic ticker list")
		}
	}
	return nil
}
