// Package tickerfs implements file-based CSV storage for per-ticker history
// tables. One file per ticker per granularity; writes are atomic via a temp
// file and rename, so a crashed run never leaves a truncated table behind.
package tickerfs

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bobmcallan/tickersync/internal/common"
	"github.com/bobmcallan/tickersync/internal/models"
)

// historyHeader is the persisted column order. Readers tolerate shorter rows
// from older files; missing snapshot cells read back as Unknown.
var historyHeader = []string{
	"Date", "Open", "High", "Low", "Close", "Volume",
	"MarketCap", "FiftyTwoWeekHigh", "FiftyTwoWeekLow",
	"FiftyDayAverage", "TwoHundredDayAverage",
	"Sector", "Industry", "Exchange",
}

// Store provides file-based CSV storage for one history directory
// (one granularity of one source).
type Store struct {
	dir    string
	logger *common.Logger
}

// NewStore opens a history store rooted at dir, creating it if needed.
func NewStore(dir string, logger *common.Logger) (*Store, error) {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history store path %s: %w", dir, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the history file path for a ticker.
func (s *Store) Path(ticker string) string {
	return filepath.Join(s.dir, sanitizeTicker(ticker)+".csv")
}

// Exists reports whether a history file exists for the ticker.
func (s *Store) Exists(ticker string) bool {
	_, err := os.Stat(s.Path(ticker))
	return err == nil
}

// LastDate returns the maximum stored date string for the ticker.
// ok=false means no file exists or the file holds no rows.
func (s *Store) LastDate(ticker string) (string, bool, error) {
	rows, err := s.ReadHistory(ticker)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	last := rows[0]
	for _, r := range rows[1:] {
		if r.DatePart() > last.DatePart() {
			last = r
		}
	}
	return last.Date, true, nil
}

// ReadHistory reads all rows of a ticker's history file. A missing file
// returns an os.IsNotExist error; malformed rows are skipped.
func (s *Store) ReadHistory(ticker string) ([]models.HistoryRow, error) {
	f, err := os.Open(s.Path(ticker))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", ticker, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	start := 0
	if strings.EqualFold(strings.TrimSpace(records[0][0]), "date") {
		start = 1
	}

	rows := make([]models.HistoryRow, 0, len(records)-start)
	for _, record := range records[start:] {
		if len(record) == 0 || strings.TrimSpace(record[0]) == "" {
			continue
		}
		row := models.NewHistoryRow(strings.TrimSpace(record[0]))
		row.Open = parseCell(record, 1)
		row.High = parseCell(record, 2)
		row.Low = parseCell(record, 3)
		row.Close = parseCell(record, 4)
		row.Volume = parseVolumeCell(record, 5)
		row.MarketCap = parseCell(record, 6)
		row.FiftyTwoWeekHigh = parseCell(record, 7)
		row.FiftyTwoWeekLow = parseCell(record, 8)
		row.FiftyDayAverage = parseCell(record, 9)
		row.TwoHundredDayAverage = parseCell(record, 10)
		row.Sector = textCell(record, 11)
		row.Industry = textCell(record, 12)
		row.Exchange = textCell(record, 13)
		rows = append(rows, row)
	}
	return rows, nil
}

// WriteHistory writes the full history table for a ticker atomically.
// Rows are written in the order given; callers sort before writing.
func (s *Store) WriteHistory(ticker string, rows []models.HistoryRow) error {
	tmpFile, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	writer := csv.NewWriter(tmpFile)
	if err := writer.Write(historyHeader); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		record := []string{
			row.Date,
			formatFloat(row.Open),
			formatFloat(row.High),
			formatFloat(row.Low),
			formatFloat(row.Close),
			strconv.FormatInt(row.Volume, 10),
			formatFloat(row.MarketCap),
			formatFloat(row.FiftyTwoWeekHigh),
			formatFloat(row.FiftyTwoWeekLow),
			formatFloat(row.FiftyDayAverage),
			formatFloat(row.TwoHundredDayAverage),
			row.Sector,
			row.Industry,
			row.Exchange,
		}
		if err := writer.Write(record); err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush history for %s: %w", ticker, err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path(ticker)); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	s.logger.Debug().Str("ticker", ticker).Int("rows", len(rows)).Msg("History written")
	return nil
}

// ListTickers returns the tickers with a history file in the store, sorted.
func (s *Store) ListTickers() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", s.dir, err)
	}
	var tickers []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".csv") && !strings.HasPrefix(name, ".tmp-") {
			tickers = append(tickers, strings.TrimSuffix(name, ".csv"))
		}
	}
	sort.Strings(tickers)
	return tickers, nil
}

// MergeRows merges incoming rows into existing ones. One row survives per
// calendar date; when both sides carry a date the incoming row wins. The
// result is sorted ascending by date. Neither input is modified.
func MergeRows(existing, incoming []models.HistoryRow) []models.HistoryRow {
	byDate := make(map[string]models.HistoryRow, len(existing)+len(incoming))
	for _, row := range existing {
		byDate[row.DatePart()] = row
	}
	for _, row := range incoming {
		byDate[row.DatePart()] = row
	}

	merged := make([]models.HistoryRow, 0, len(byDate))
	for _, row := range byDate {
		merged = append(merged, row)
	}
	// ISO date prefixes sort chronologically as strings
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].DatePart() < merged[j].DatePart()
	})
	return merged
}

// --- helpers ---

func sanitizeTicker(ticker string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(ticker)
}

// formatFloat renders a numeric cell; Unknown serializes as empty.
func formatFloat(v float64) string {
	if models.IsUnknown(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// parseCell parses a numeric cell; missing or empty cells read as Unknown.
func parseCell(record []string, col int) float64 {
	if col >= len(record) {
		return models.Unknown()
	}
	raw := strings.TrimSpace(record[col])
	if raw == "" {
		return models.Unknown()
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return models.Unknown()
	}
	return v
}

func parseVolumeCell(record []string, col int) int64 {
	if col >= len(record) {
		return 0
	}
	raw := strings.TrimSpace(record[col])
	if raw == "" {
		return 0
	}
	if v, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return v
	}
	// some sources emit volume as a float
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return int64(f)
	}
	return 0
}

func textCell(record []string, col int) string {
	if col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}
