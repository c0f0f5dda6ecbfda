package bulkfile

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tickersync/internal/common"
	"github.com/bobmcallan/tickersync/internal/models"
)

// countingStore is an in-memory HistoryStore that counts read traffic, so
// tests can assert the sampling short-circuit avoids per-ticker work.
type countingStore struct {
	tables map[string][]models.HistoryRow
	reads  int
	writes int
}

func newCountingStore() *countingStore {
	return &countingStore{tables: make(map[string][]models.HistoryRow)}
}

func (c *countingStore) LastDate(ticker string) (string, bool, error) {
	rows, ok := c.tables[ticker]
	if !ok || len(rows) == 0 {
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

func (c *countingStore) ReadHistory(ticker string) ([]models.HistoryRow, error) {
	c.reads++
	return c.tables[ticker], nil
}

func (c *countingStore) WriteHistory(ticker string, rows []models.HistoryRow) error {
	c.writes++
	c.tables[ticker] = rows
	return nil
}

func (c *countingStore) Exists(ticker string) bool {
	_, ok := c.tables[ticker]
	return ok
}

const bulkHeader = "Symbol,Open 1 day,High 1 day,Low 1 day,Price,Volume 1 day\n"

func writeBulkFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func newTestReconciler(dir string) *Reconciler {
	return NewReconciler(dir, common.NewSilentLogger(), WithRandSource(rand.NewSource(1)))
}

func TestFindLatestFiles(t *testing.T) {
	dir := t.TempDir()
	writeBulkFile(t, dir, "america_2024-01-03.csv", bulkHeader)
	writeBulkFile(t, dir, "america_2024-01-05.csv", bulkHeader)
	writeBulkFile(t, dir, "america_2024-01-05_part2.csv", bulkHeader)
	writeBulkFile(t, dir, "notes.txt", "ignored")

	r := newTestReconciler(dir)
	date, files, err := r.FindLatestFiles()
	require.NoError(t, err)
	assert.Equal(t, "2024-01-05", date)
	require.Len(t, files, 2)
	assert.Contains(t, files[0], "2024-01-05")
}

func TestFindLatestFilesEmptyDir(t *testing.T) {
	r := newTestReconciler(t.TempDir())
	date, files, err := r.FindLatestFiles()
	require.NoError(t, err)
	assert.Empty(t, date)
	assert.Empty(t, files)
}

func TestReconcileAppendsBulkDate(t *testing.T) {
	dir := t.TempDir()
	writeBulkFile(t, dir, "america_2024-01-05.csv", bulkHeader+
		"AAPL,184.1,186.0,183.0,185.6,82000000\n"+
		"MSFT,402.0,405.5,401.1,404.8,21000000\n")

	store := newCountingStore()
	store.tables["AAPL"] = []models.HistoryRow{models.NewHistoryRow("2024-01-04")}
	store.tables["MSFT"] = []models.HistoryRow{models.NewHistoryRow("2024-01-04")}

	r := newTestReconciler(dir)
	result, err := r.Reconcile(store, TimeframeDaily, []string{"AAPL", "MSFT"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Updated)
	assert.False(t, result.SampledCurrent)

	rows := store.tables["AAPL"]
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-01-05", rows[1].DatePart())
	assert.Equal(t, 185.6, rows[1].Close)
	assert.Equal(t, int64(82000000), rows[1].Volume)
}

func TestReconcileSamplingSkipsCurrentRun(t *testing.T) {
	dir := t.TempDir()
	// unbalanced quote: any attempt to parse this body errors out, so a
	// clean skip proves the sample runs before the parse
	writeBulkFile(t, dir, "america_2024-01-05.csv", bulkHeader+
		"AAPL,\"1,1,1,1,1\n")

	universe := []string{"AAPL", "MSFT", "NVDA"}
	store := newCountingStore()
	for _, ticker := range universe {
		store.tables[ticker] = []models.HistoryRow{models.NewHistoryRow("2024-01-05")}
	}

	r := newTestReconciler(dir)
	result, err := r.Reconcile(store, TimeframeDaily, universe)
	require.NoError(t, err)

	assert.True(t, result.SampledCurrent)
	assert.Equal(t, 0, result.Updated)
	assert.Equal(t, 0, store.reads, "sampled-current run must not touch per-ticker tables")
	assert.Equal(t, 0, store.writes)
}

func TestReconcileSamplingDetectsStaleTicker(t *testing.T) {
	dir := t.TempDir()
	writeBulkFile(t, dir, "america_2024-01-05.csv", bulkHeader+
		"AAPL,1,1,1,10,1\nMSFT,1,1,1,20,1\nNVDA,1,1,1,30,1\n")

	universe := []string{"AAPL", "MSFT", "NVDA"}
	store := newCountingStore()
	store.tables["AAPL"] = []models.HistoryRow{models.NewHistoryRow("2024-01-05")}
	store.tables["MSFT"] = []models.HistoryRow{models.NewHistoryRow("2024-01-05")}
	// NVDA lags one day behind the bulk date
	store.tables["NVDA"] = []models.HistoryRow{models.NewHistoryRow("2024-01-04")}

	r := newTestReconciler(dir)
	result, err := r.Reconcile(store, TimeframeDaily, universe)
	require.NoError(t, err)

	assert.False(t, result.SampledCurrent)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 2, result.Current)
}

func TestReconcileEmptyUniverseSkips(t *testing.T) {
	dir := t.TempDir()
	writeBulkFile(t, dir, "america_2024-01-05.csv", bulkHeader+"AAPL,1,1,1,10,1\n")

	store := newCountingStore()
	store.tables["AAPL"] = []models.HistoryRow{models.NewHistoryRow("2024-01-04")}

	r := newTestReconciler(dir)
	result, err := r.Reconcile(store, TimeframeDaily, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, store.writes)
	require.Len(t, store.tables["AAPL"], 1)
}

func TestReconcileIdempotentOnExactDate(t *testing.T) {
	dir := t.TempDir()
	writeBulkFile(t, dir, "america_2024-01-05.csv", bulkHeader+
		"AAPL,1,1,1,99,1\nMSFT,2,2,2,50,2\n")

	store := newCountingStore()
	// AAPL already carries the bulk date; MSFT is one day behind
	store.tables["AAPL"] = []models.HistoryRow{models.NewHistoryRow("2024-01-05")}
	store.tables["MSFT"] = []models.HistoryRow{models.NewHistoryRow("2024-01-04")}

	r := newTestReconciler(dir)
	result, err := r.Reconcile(store, TimeframeDaily, []string{"AAPL", "MSFT"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Current)
	// the already-current table kept its original row
	require.Len(t, store.tables["AAPL"], 1)
	assert.NotEqual(t, 99.0, store.tables["AAPL"][0].Close)
}

func TestReconcileInheritsOffsetSuffix(t *testing.T) {
	dir := t.TempDir()
	writeBulkFile(t, dir, "america_2024-01-05.csv", bulkHeader+"AAPL,1,1,1,10,1\nMSFT,1,1,1,20,1\n")

	store := newCountingStore()
	store.tables["AAPL"] = []models.HistoryRow{models.NewHistoryRow("2024-01-04 00:00:00-04:00")}
	store.tables["MSFT"] = []models.HistoryRow{models.NewHistoryRow("2024-01-04 00:00:00")}

	r := newTestReconciler(dir)
	_, err := r.Reconcile(store, TimeframeDaily, []string{"AAPL", "MSFT"})
	require.NoError(t, err)

	assert.Equal(t, "2024-01-05 00:00:00-04:00", store.tables["AAPL"][1].Date)
	// no offset to inherit: the default applies
	assert.Equal(t, "2024-01-05 00:00:00"+DefaultOffset, store.tables["MSFT"][1].Date)
}

func TestReconcileSkipsTickersWithoutLocalTable(t *testing.T) {
	dir := t.TempDir()
	writeBulkFile(t, dir, "america_2024-01-05.csv", bulkHeader+"AAPL,1,1,1,10,1\nGHOST,1,1,1,5,1\n")

	store := newCountingStore()
	store.tables["AAPL"] = []models.HistoryRow{models.NewHistoryRow("2024-01-04")}

	r := newTestReconciler(dir)
	result, err := r.Reconcile(store, TimeframeDaily, []string{"AAPL", "GHOST"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Missing)
	assert.False(t, store.Exists("GHOST"))
}

func TestReconcileRestrictsToUniverse(t *testing.T) {
	dir := t.TempDir()
	writeBulkFile(t, dir, "america_2024-01-05.csv", bulkHeader+
		"AAPL,1,1,1,10,1\nUNTRACKED,1,1,1,5,1\n")

	store := newCountingStore()
	store.tables["AAPL"] = []models.HistoryRow{models.NewHistoryRow("2024-01-04")}
	store.tables["UNTRACKED"] = []models.HistoryRow{models.NewHistoryRow("2024-01-04")}

	r := newTestReconciler(dir)
	result, err := r.Reconcile(store, TimeframeDaily, []string{"AAPL"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, store.tables["UNTRACKED"], 1, "out-of-universe ticker untouched")
}

func TestParseFilesLaterFileWins(t *testing.T) {
	dir := t.TempDir()
	writeBulkFile(t, dir, "america_2024-01-05_a.csv", bulkHeader+"AAPL,1,1,1,100,1\n")
	writeBulkFile(t, dir, "america_2024-01-05_b.csv", bulkHeader+"AAPL,1,1,1,200,1\n")

	r := newTestReconciler(dir)
	_, files, err := r.FindLatestFiles()
	require.NoError(t, err)

	rows, err := r.parseFiles(files, TimeframeDaily)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 200.0, rows[0].Close)
}

func TestParseBulkFileNormalizesAndFallsBack(t *testing.T) {
	dir := t.TempDir()
	writeBulkFile(t, dir, "america_2024-01-05.csv", bulkHeader+
		"BRK.B,,,,350.5,\n"+ // missing OHLV cells fall back to price
		"ABC/PR,1,1,1,9,1\n") // excluded symbol dropped

	rows, err := parseBulkFile(filepath.Join(dir, "america_2024-01-05.csv"), TimeframeDaily)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "BRK-B", rows[0].Ticker)
	assert.Equal(t, 350.5, rows[0].Open)
	assert.Equal(t, 350.5, rows[0].Close)
	assert.Equal(t, int64(0), rows[0].Volume)
}

func TestTimeframeMapping(t *testing.T) {
	assert.Equal(t, models.IntervalDaily, TimeframeDaily.Interval())
	assert.Equal(t, models.IntervalWeekly, TimeframeWeekly.Interval())
	assert.Equal(t, models.IntervalMonthly, TimeframeMonthly.Interval())
	assert.Equal(t, "1_day", TimeframeDaily.Safe())
}
