// Package marketdata implements the incremental per-ticker history updater.
//
// For each ticker the updater probes the provider's latest available period,
// skips tickers already current, and otherwise fetches only the bars after
// the latest stored date, merging them into the existing table. A failing
// ticker is sidelined into the problematic list; the batch never aborts.
package marketdata

import (
	"context"
	"fmt"
	"time"

	"github.com/bobmcallan/tickersync/internal/common"
	"github.com/bobmcallan/tickersync/internal/interfaces"
	"github.com/bobmcallan/tickersync/internal/models"
	"github.com/bobmcallan/tickersync/internal/storage/tickerfs"
)

// dateLayout is the calendar-date format used in persisted tables.
const dateLayout = "2006-01-02"

// Options tunes a Service. Zero delays disable throttling, which the tests
// rely on.
type Options struct {
	// StartDate is the beginning of history for tickers with no local table.
	StartDate time.Time
	// Enrich fetches a quote snapshot per updated ticker and stamps it onto
	// the newly fetched rows.
	Enrich bool
	// TickerDelay is the pause after each provider-visiting ticker.
	TickerDelay time.Duration
	// BatchSize is the number of tickers between long pauses.
	BatchSize int
	// BatchPause is the long pause between batches.
	BatchPause time.Duration
}

// Service drives incremental history updates against one provider.
type Service struct {
	provider interfaces.MarketDataProvider
	logger   *common.Logger
	opts     Options
}

// NewService creates a new updater service.
func NewService(provider interfaces.MarketDataProvider, logger *common.Logger, opts Options) *Service {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if opts.StartDate.IsZero() {
		opts.StartDate = time.Date(2023, 11, 30, 0, 0, 0, 0, time.UTC)
	}
	return &Service{
		provider: provider,
		logger:   logger,
		opts:     opts,
	}
}

// Result summarizes one UpdateAll run.
type Result struct {
	Updated     int
	Skipped     int
	Created     int
	NoData      int
	Successful  []string
	Problematic []models.ProblematicTicker
}

// UpdateAll updates every ticker's history in store at the given interval.
// Per-ticker failures are recorded and processing continues; the returned
// error is non-nil only when the run is cancelled.
func (s *Service) UpdateAll(ctx context.Context, store interfaces.HistoryStore, tickers []string, interval models.Interval) (*Result, error) {
	result := &Result{}
	visited := 0

	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("update cancelled after %d tickers: %w", len(result.Successful), err)
		}

		outcome, err := s.updateTicker(ctx, store, ticker, interval)
		if err != nil {
			s.logger.Warn().Str("ticker", ticker).Str("interval", string(interval)).Err(err).Msg("Ticker update failed")
			result.Problematic = append(result.Problematic, models.ProblematicTicker{
				Ticker: ticker,
				Error:  err.Error(),
			})
		} else {
			switch outcome {
			case outcomeSkipped:
				result.Skipped++
			case outcomeCreated:
				result.Created++
			case outcomeNoData:
				result.NoData++
			default:
				result.Updated++
			}
			// a no-data ticker never got a local table; it is not usable
			if outcome != outcomeNoData {
				result.Successful = append(result.Successful, ticker)
			}
		}

		// Only tickers that reached the provider count against throttling
		if outcome != outcomeSkipped {
			visited++
			s.throttle(ctx, visited)
		}
	}

	s.logger.Info().
		Str("interval", string(interval)).
		Int("updated", result.Updated).
		Int("created", result.Created).
		Int("skipped", result.Skipped).
		Int("no_data", result.NoData).
		Int("problematic", len(result.Problematic)).
		Msg("History update run complete")
	return result, nil
}

type updateOutcome int

const (
	outcomeUpdated updateOutcome = iota
	outcomeSkipped
	outcomeCreated
	outcomeNoData
)

// updateTicker brings one ticker's table up to date. The currency probe runs
// before any range fetch so an already-current ticker costs one cheap call.
func (s *Service) updateTicker(ctx context.Context, store interfaces.HistoryStore, ticker string, interval models.Interval) (updateOutcome, error) {
	lastDate, hasLocal, err := store.LastDate(ticker)
	if err != nil {
		return outcomeUpdated, fmt.Errorf("failed to read local history: %w", err)
	}

	var from time.Time
	outcome := outcomeUpdated

	if hasLocal {
		localMax, err := time.Parse(dateLayout, datePart(lastDate))
		if err != nil {
			return outcomeUpdated, fmt.Errorf("unparseable local max date %q: %w", lastDate, err)
		}

		upstream, err := s.provider.LatestTradingDate(ctx, ticker, interval)
		if err != nil {
			return outcomeUpdated, fmt.Errorf("failed to probe latest trading date: %w", err)
		}
		if !localMax.Before(upstream) {
			s.logger.Debug().Str("ticker", ticker).Str("date", lastDate).Msg("Already current, skipping")
			return outcomeSkipped, nil
		}
		from = localMax.AddDate(0, 0, 1)
	} else {
		from = s.opts.StartDate
		outcome = outcomeCreated
	}

	to := time.Now().UTC().Truncate(24 * time.Hour)
	if from.After(to) {
		return outcomeSkipped, nil
	}

	bars, err := s.provider.GetHistory(ctx, ticker, interval, from, to)
	if err != nil {
		return outcomeUpdated, fmt.Errorf("failed to fetch history: %w", err)
	}
	if len(bars) == 0 {
		if !hasLocal {
			return outcomeNoData, nil
		}
		// current upstream but nothing new in range, e.g. weekend probe
		return outcomeSkipped, nil
	}

	incoming := make([]models.HistoryRow, 0, len(bars))
	for _, bar := range bars {
		row := models.NewHistoryRow(bar.Date.Format(dateLayout))
		row.Open = bar.Open
		row.High = bar.High
		row.Low = bar.Low
		row.Close = bar.Close
		row.Volume = bar.Volume
		incoming = append(incoming, row)
	}

	if s.opts.Enrich {
		if snap, err := s.provider.GetSnapshot(ctx, ticker); err != nil {
			s.logger.Warn().Str("ticker", ticker).Err(err).Msg("Snapshot enrichment failed, writing bare rows")
		} else {
			for i := range incoming {
				applySnapshot(&incoming[i], snap)
			}
		}
	}

	var existing []models.HistoryRow
	if hasLocal {
		existing, err = store.ReadHistory(ticker)
		if err != nil {
			return outcomeUpdated, fmt.Errorf("failed to read local history: %w", err)
		}
	}

	merged := tickerfs.MergeRows(existing, incoming)
	if err := store.WriteHistory(ticker, merged); err != nil {
		return outcomeUpdated, fmt.Errorf("failed to write history: %w", err)
	}

	s.logger.Debug().Str("ticker", ticker).Int("new_rows", len(incoming)).Int("total_rows", len(merged)).Msg("History updated")
	return outcome, nil
}

// applySnapshot stamps snapshot fields onto a freshly fetched row.
func applySnapshot(row *models.HistoryRow, snap *models.Snapshot) {
	row.MarketCap = snap.MarketCap
	row.FiftyTwoWeekHigh = snap.FiftyTwoWeekHigh
	row.FiftyTwoWeekLow = snap.FiftyTwoWeekLow
	row.FiftyDayAverage = snap.FiftyDayAverage
	row.TwoHundredDayAverage = snap.TwoHundredDayAverage
	row.Sector = snap.Sector
	row.Industry = snap.Industry
	row.Exchange = snap.Exchange
}

// throttle pauses between provider-visiting tickers, with a longer pause at
// batch boundaries. No-op when the delays are zero.
func (s *Service) throttle(ctx context.Context, visited int) {
	pause := s.opts.TickerDelay
	if s.opts.BatchSize > 0 && visited%s.opts.BatchSize == 0 && s.opts.BatchPause > 0 {
		pause = s.opts.BatchPause
		s.logger.Info().Int("tickers", visited).Dur("pause", pause).Msg("Batch boundary, pausing")
	}
	if pause <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(pause):
	}
}

func datePart(date string) string {
	if len(date) >= 10 {
		return date[:10]
	}
	return date
}
