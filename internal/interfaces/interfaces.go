// Package interfaces defines contracts between tickersync components
package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/tickersync/internal/models"
)

// MarketDataProvider is the upstream OHLCV and symbol-info source.
// Transient errors are returned to the caller, which routes them to the
// problematic-ticker path without aborting the batch.
type MarketDataProvider interface {
	// LatestTradingDate returns the most recent available period date for
	// the symbol. Implementations should use the cheapest possible call.
	LatestTradingDate(ctx context.Context, symbol string, interval models.Interval) (time.Time, error)

	// GetHistory returns OHLCV bars for [from, to] at the given interval,
	// in ascending date order. An empty slice is not an error.
	GetHistory(ctx context.Context, symbol string, interval models.Interval, from, to time.Time) ([]models.Bar, error)

	// GetSymbolInfo returns point-in-time descriptive fields for the symbol.
	GetSymbolInfo(ctx context.Context, symbol string) (*models.TickerInfo, error)

	// GetSnapshot returns the quote snapshot used to enrich history rows.
	// Fields the provider omits come back as Unknown.
	GetSnapshot(ctx context.Context, symbol string) (*models.Snapshot, error)
}

// HistoryStore is the per-ticker history persistence used by both the
// incremental updater and the bulk reconciler.
type HistoryStore interface {
	// LastDate returns the maximum stored date string for the ticker, or
	// ok=false when no file exists or the file is empty.
	LastDate(ticker string) (date string, ok bool, err error)

	ReadHistory(ticker string) ([]models.HistoryRow, error)
	WriteHistory(ticker string, rows []models.HistoryRow) error
	Exists(ticker string) bool
}
