package tickerfs

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobmcallan/tickersync/internal/models"
)

// WriteTickerList writes a one-column ticker CSV atomically.
func WriteTickerList(path string, tickers []string) error {
	records := make([][]string, 0, len(tickers)+1)
	records = append(records, []string{"Ticker"})
	for _, t := range tickers {
		records = append(records, []string{t})
	}
	return writeCSV(path, records)
}

// ReadTickerList reads the ticker column of a list CSV. Header optional.
func ReadTickerList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var tickers []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read ticker list %s: %w", path, err)
		}
		if len(record) == 0 {
			continue
		}
		t := strings.TrimSpace(record[0])
		if t == "" || strings.EqualFold(t, "ticker") || strings.EqualFold(t, "symbol") {
			continue
		}
		tickers = append(tickers, t)
	}
	return tickers, nil
}

// WriteProblematicList persists the tickers that failed during a run,
// with the error that sidelined each. Written even when empty so a clean
// run overwrites stale records from the previous one.
func WriteProblematicList(path string, problems []models.ProblematicTicker) error {
	records := make([][]string, 0, len(problems)+1)
	records = append(records, []string{"Ticker", "Error", "Timeframe"})
	for _, p := range problems {
		records = append(records, []string{p.Ticker, p.Error, p.Timeframe})
	}
	return writeCSV(path, records)
}

// WriteInfoList writes per-ticker descriptive metadata as a CSV table.
func WriteInfoList(path string, infos []models.TickerInfo) error {
	records := make([][]string, 0, len(infos)+1)
	records = append(records, []string{
		"Ticker", "Description", "Market Capitalization", "Currency",
		"Sector", "Industry", "Exchange", "Analyst Rating",
		"Upcoming Earnings Date", "Recent Earnings Date",
	})
	for _, info := range infos {
		records = append(records, []string{
			info.Ticker,
			info.Description,
			formatFloat(info.MarketCap),
			info.MarketCapCurrency,
			info.Sector,
			info.Industry,
			info.Exchange,
			info.AnalystRating,
			info.UpcomingEarningsDate,
			info.RecentEarningsDate,
		})
	}
	return writeCSV(path, records)
}

// writeCSV writes records to path atomically via a temp file in the target
// directory, creating the directory first.
func writeCSV(path string, records [][]string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	writer := csv.NewWriter(tmpFile)
	if err := writer.WriteAll(records); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
