// Package bulkfile reconciles vendor bulk export files into per-ticker
// history tables. A bulk file carries one row per symbol for a single
// trading date; reconciliation appends that date to every local table that
// does not already have it.
package bulkfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/bobmcallan/tickersync/internal/common"
	"github.com/bobmcallan/tickersync/internal/interfaces"
	"github.com/bobmcallan/tickersync/internal/models"
	"github.com/bobmcallan/tickersync/internal/storage/tickerfs"
	"github.com/bobmcallan/tickersync/internal/universe"
)

// Timeframe names the bulk export granularity, as it appears in the file's
// column headers ("Open 1 day").
type Timeframe string

const (
	TimeframeDaily   Timeframe = "1 day"
	TimeframeWeekly  Timeframe = "1 week"
	TimeframeMonthly Timeframe = "1 month"
)

// Interval returns the history granularity the timeframe reconciles into.
func (t Timeframe) Interval() models.Interval {
	switch t {
	case TimeframeWeekly:
		return models.IntervalWeekly
	case TimeframeMonthly:
		return models.IntervalMonthly
	default:
		return models.IntervalDaily
	}
}

// Safe returns the timeframe with spaces replaced, for filenames.
func (t Timeframe) Safe() string {
	return strings.ReplaceAll(string(t), " ", "_")
}

const defaultSampleSize = 5

// DefaultOffset is the UTC-offset suffix stamped onto reconciled dates when
// the local table carries none to inherit.
const DefaultOffset = "-05:00"

var (
	fileDatePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})`)
	offsetPattern   = regexp.MustCompile(`([+-]\d{2}:\d{2})$`)
)

// Reconciler merges bulk export files into a history store.
type Reconciler struct {
	bulkDir    string
	logger     *common.Logger
	sampleSize int
	rng        *rand.Rand
}

// ReconcilerOption configures the reconciler
type ReconcilerOption func(*Reconciler)

// WithSampleSize sets the number of tickers sampled for the staleness check.
func WithSampleSize(n int) ReconcilerOption {
	return func(r *Reconciler) {
		r.sampleSize = n
	}
}

// WithRandSource sets the sampling source, for deterministic tests.
func WithRandSource(src rand.Source) ReconcilerOption {
	return func(r *Reconciler) {
		r.rng = rand.New(src)
	}
}

// NewReconciler creates a reconciler over a directory of bulk export files.
func NewReconciler(bulkDir string, logger *common.Logger, opts ...ReconcilerOption) *Reconciler {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	r := &Reconciler{
		bulkDir:    bulkDir,
		logger:     logger,
		sampleSize: defaultSampleSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Row is one symbol's OHLCV from a bulk export file.
type Row struct {
	Ticker string
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume int64
}

// Result summarizes one Reconcile run.
type Result struct {
	Date           string
	Files          []string
	Total          int
	Updated        int
	Current        int
	Missing        int
	SampledCurrent bool
	Problematic    []models.ProblematicTicker
}

// FindLatestFiles returns the bulk files carrying the most recent date in
// their filename, and that date. No matching files is not an error; the
// returned date is empty.
func (r *Reconciler) FindLatestFiles() (string, []string, error) {
	entries, err := os.ReadDir(r.bulkDir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, nil
		}
		return "", nil, fmt.Errorf("failed to read bulk directory %s: %w", r.bulkDir, err)
	}

	byDate := make(map[string][]string)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		m := fileDatePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		byDate[m[1]] = append(byDate[m[1]], filepath.Join(r.bulkDir, name))
	}
	if len(byDate) == 0 {
		return "", nil, nil
	}

	latest := ""
	for date := range byDate {
		if date > latest {
			latest = date
		}
	}
	files := byDate[latest]
	sort.Strings(files)
	return latest, files, nil
}

// Reconcile merges the latest bulk files for a timeframe into store. Bulk
// files may carry a superset of tracked symbols; only rows for universe
// tickers are applied. Before any file body is parsed the reconciler samples
// a handful of universe tickers; when every sampled table already carries the
// file date the whole run is skipped, parsing included. An empty universe
// also skips the run.
func (r *Reconciler) Reconcile(store interfaces.HistoryStore, timeframe Timeframe, universe []string) (*Result, error) {
	date, files, err := r.FindLatestFiles()
	if err != nil {
		return nil, err
	}
	result := &Result{Date: date, Files: files}
	if date == "" {
		r.logger.Info().Str("dir", r.bulkDir).Msg("No bulk files found, nothing to reconcile")
		return result, nil
	}
	if len(universe) == 0 {
		r.logger.Warn().Str("date", date).Msg("Empty ticker universe, skipping bulk reconcile")
		return result, nil
	}

	if r.samplesCurrent(store, universe, date) {
		result.SampledCurrent = true
		r.logger.Info().Str("date", date).Str("timeframe", string(timeframe)).Msg("Sampled tickers already carry bulk date, skipping reconcile")
		return result, nil
	}

	rows, err := r.parseFiles(files, timeframe)
	if err != nil {
		return nil, err
	}
	tracked := make(map[string]bool, len(universe))
	for _, t := range universe {
		tracked[t] = true
	}
	kept := rows[:0]
	for _, row := range rows {
		if tracked[row.Ticker] {
			kept = append(kept, row)
		}
	}
	rows = kept
	result.Total = len(rows)
	if len(rows) == 0 {
		return result, nil
	}

	for _, row := range rows {
		switch err := r.updateTicker(store, row, date); {
		case err == nil:
			result.Updated++
		case err == errAlreadyCurrent:
			result.Current++
		case err == errNoLocalTable:
			result.Missing++
		default:
			r.logger.Warn().Str("ticker", row.Ticker).Err(err).Msg("Bulk reconcile failed for ticker")
			result.Problematic = append(result.Problematic, models.ProblematicTicker{
				Ticker:    row.Ticker,
				Error:     err.Error(),
				Timeframe: string(timeframe),
			})
		}
	}

	r.logger.Info().
		Str("date", date).
		Str("timeframe", string(timeframe)).
		Int("total", result.Total).
		Int("updated", result.Updated).
		Int("current", result.Current).
		Int("missing", result.Missing).
		Int("problematic", len(result.Problematic)).
		Msg("Bulk reconcile complete")
	return result, nil
}

var (
	errAlreadyCurrent = errors.New("already current")
	errNoLocalTable   = errors.New("no local table")
)

// samplesCurrent picks up to sampleSize random universe tickers and reports
// whether every sampled local table already carries the bulk date. A sampled
// ticker that is behind, missing, or unreadable marks the run stale.
func (r *Reconciler) samplesCurrent(store interfaces.HistoryStore, tickers []string, date string) bool {
	n := r.sampleSize
	if n <= 0 || n > len(tickers) {
		n = len(tickers)
	}
	idx := r.perm(len(tickers))[:n]

	for _, i := range idx {
		last, ok, err := store.LastDate(tickers[i])
		if err != nil || !ok {
			return false
		}
		if datePart(last) < date {
			return false
		}
	}
	return true
}

func (r *Reconciler) perm(n int) []int {
	if r.rng != nil {
		return r.rng.Perm(n)
	}
	return rand.Perm(n)
}

// updateTicker appends the bulk date's row to one local table. Tables
// already carrying the date are left untouched, so re-running on the same
// file set is idempotent.
func (r *Reconciler) updateTicker(store interfaces.HistoryStore, row Row, date string) error {
	if !store.Exists(row.Ticker) {
		return errNoLocalTable
	}
	existing, err := store.ReadHistory(row.Ticker)
	if err != nil {
		return fmt.Errorf("failed to read local history: %w", err)
	}

	for _, e := range existing {
		if e.DatePart() == date {
			return errAlreadyCurrent
		}
	}

	newRow := models.NewHistoryRow(formatDate(date, existing))
	newRow.Open = row.Open
	newRow.High = row.High
	newRow.Low = row.Low
	newRow.Close = row.Close
	newRow.Volume = row.Volume

	merged := tickerfs.MergeRows(existing, []models.HistoryRow{newRow})
	if err := store.WriteHistory(row.Ticker, merged); err != nil {
		return fmt.Errorf("failed to write history: %w", err)
	}
	return nil
}

// formatDate renders the bulk date in the same convention as the existing
// table: when rows carry a time and UTC offset, the new row inherits the
// offset (falling back to DefaultOffset); bare-date tables stay bare.
func formatDate(date string, existing []models.HistoryRow) string {
	if len(existing) == 0 {
		return date
	}
	last := existing[len(existing)-1].Date
	if len(last) <= 10 {
		return date
	}
	offset := DefaultOffset
	if m := offsetPattern.FindStringSubmatch(last); m != nil {
		offset = m[1]
	}
	return date + " 00:00:00" + offset
}

// parseFiles reads every bulk file into one fleet-wide row set. When the
// same symbol appears in multiple files, the later file wins.
func (r *Reconciler) parseFiles(files []string, timeframe Timeframe) ([]Row, error) {
	var rows []Row
	index := make(map[string]int)

	for _, file := range files {
		fileRows, err := parseBulkFile(file, timeframe)
		if err != nil {
			return nil, err
		}
		for _, row := range fileRows {
			if i, ok := index[row.Ticker]; ok {
				rows[i] = row
				continue
			}
			index[row.Ticker] = len(rows)
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// parseBulkFile reads one bulk export CSV. Expected columns: Symbol plus
// "Open <timeframe>", "High <timeframe>", "Low <timeframe>", "Price" and
// "Volume <timeframe>". Symbols failing normalization are dropped.
func parseBulkFile(path string, timeframe Timeframe) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bulk file %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read bulk header of %s: %w", path, err)
	}

	col := func(names ...string) int {
		for i, h := range header {
			h = strings.ToLower(strings.TrimSpace(h))
			for _, n := range names {
				if h == strings.ToLower(n) {
					return i
				}
			}
		}
		return -1
	}

	tf := string(timeframe)
	symbolCol := col("symbol", "ticker")
	openCol := col("Open "+tf, "open")
	highCol := col("High "+tf, "high")
	lowCol := col("Low "+tf, "low")
	priceCol := col("Price", "close")
	volumeCol := col("Volume "+tf, "volume")

	if symbolCol < 0 || priceCol < 0 {
		return nil, fmt.Errorf("bulk file %s missing Symbol or Price column", path)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read bulk file %s: %w", path, err)
		}

		get := func(c int) string {
			if c >= 0 && c < len(record) {
				return strings.TrimSpace(record[c])
			}
			return ""
		}

		ticker, ok := universe.NormalizeSymbol(get(symbolCol))
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(get(priceCol), 64)
		if err != nil {
			continue
		}

		row := Row{Ticker: ticker, Close: price}
		row.Open = parseFloatOr(get(openCol), price)
		row.High = parseFloatOr(get(highCol), price)
		row.Low = parseFloatOr(get(lowCol), price)
		if v, err := strconv.ParseFloat(get(volumeCol), 64); err == nil {
			row.Volume = int64(v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseFloatOr(raw string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	return fallback
}

func datePart(date string) string {
	if len(date) >= 10 {
		return date[:10]
	}
	return date
}
