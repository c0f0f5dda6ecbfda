// Package models defines data structures for tickersync
package models

import (
	"math"
	"time"
)

// Interval identifies the bar granularity of a history request.
type Interval string

const (
	IntervalDaily   Interval = "1d"
	IntervalWeekly  Interval = "1wk"
	IntervalMonthly Interval = "1mo"
)

// Subdir returns the on-disk directory name for the interval.
func (i Interval) Subdir() string {
	switch i {
	case IntervalWeekly:
		return "weekly"
	case IntervalMonthly:
		return "monthly"
	default:
		return "daily"
	}
}

// Valid reports whether the interval is one of the supported granularities.
func (i Interval) Valid() bool {
	switch i {
	case IntervalDaily, IntervalWeekly, IntervalMonthly:
		return true
	}
	return false
}

// Bar represents a single period's OHLCV data from the upstream provider.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// Unknown is the sentinel for numeric snapshot fields with no known value.
// It is distinct from zero: a market cap of 0 means "reported as zero",
// Unknown() means "never reported". Serialized as an empty CSV cell.
func Unknown() float64 {
	return math.NaN()
}

// IsUnknown reports whether v carries the Unknown sentinel.
func IsUnknown(v float64) bool {
	return math.IsNaN(v)
}

// Snapshot carries the point-in-time quote fields used to enrich history
// rows. Numeric fields are Unknown() when the provider omits them.
type Snapshot struct {
	MarketCap            float64
	FiftyTwoWeekHigh     float64
	FiftyTwoWeekLow      float64
	FiftyDayAverage      float64
	TwoHundredDayAverage float64
	Sector               string
	Industry             string
	Exchange             string
}

// NewSnapshot returns a snapshot with all numeric fields Unknown.
func NewSnapshot() Snapshot {
	return Snapshot{
		MarketCap:            Unknown(),
		FiftyTwoWeekHigh:     Unknown(),
		FiftyTwoWeekLow:      Unknown(),
		FiftyDayAverage:      Unknown(),
		TwoHundredDayAverage: Unknown(),
	}
}

// HistoryRow is one persisted row of a per-ticker history file.
// Date is kept as the stored string so an existing file's UTC-offset
// suffix convention survives read-merge-write cycles untouched.
type HistoryRow struct {
	Date   string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64

	// Point-in-time snapshot fields, Unknown() when the source had none.
	MarketCap            float64
	FiftyTwoWeekHigh     float64
	FiftyTwoWeekLow      float64
	FiftyDayAverage      float64
	TwoHundredDayAverage float64
	Sector               string
	Industry             string
	Exchange             string
}

// NewHistoryRow returns a row with all snapshot fields set to Unknown.
func NewHistoryRow(date string) HistoryRow {
	return HistoryRow{
		Date:                 date,
		MarketCap:            Unknown(),
		FiftyTwoWeekHigh:     Unknown(),
		FiftyTwoWeekLow:      Unknown(),
		FiftyDayAverage:      Unknown(),
		TwoHundredDayAverage: Unknown(),
	}
}

// DatePart returns the YYYY-MM-DD prefix of the stored date string.
// Rows may carry a time + offset suffix ("2025-09-05 00:00:00-04:00").
func (r HistoryRow) DatePart() string {
	if len(r.Date) >= 10 {
		return r.Date[:10]
	}
	return r.Date
}
