package yahoo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tickersync/internal/models"
)

const chartBody = `{
	"chart": {
		"result": [{
			"meta": {"symbol": "AAPL", "exchangeName": "NMS"},
			"timestamp": [1704153600, 1704240000, 1704326400],
			"indicators": {
				"quote": [{
					"open":   [184.1, 183.2, null],
					"high":   [186.0, 185.9, null],
					"low":    [183.0, 182.7, null],
					"close":  [185.6, 184.2, null],
					"volume": [82000000, 58000000, null]
				}]
			}
		}],
		"error": null
	}
}`

const quoteSummaryBody = `{
	"quoteSummary": {
		"result": [{
			"price": {
				"longName": "Apple Inc.",
				"currency": "USD",
				"exchangeName": "NasdaqGS",
				"marketCap": {"raw": 2900000000000}
			},
			"summaryDetail": {
				"fiftyTwoWeekHigh": {"raw": 199.6},
				"fiftyTwoWeekLow": {"raw": 164.1},
				"fiftyDayAverage": {"raw": 190.2}
			},
			"assetProfile": {"sector": "Technology", "industry": "Consumer Electronics"},
			"financialData": {"recommendationKey": "buy"}
		}],
		"error": null
	}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(
		WithBaseURL(server.URL),
		WithRateLimit(1000),
		WithTimeout(5*time.Second),
	)
}

func TestGetHistory(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, "1d", r.URL.Query().Get("interval"))
		assert.NotEmpty(t, r.URL.Query().Get("period1"))
		w.Write([]byte(chartBody))
	})

	from := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	bars, err := client.GetHistory(context.Background(), "AAPL", models.IntervalDaily, from, to)
	require.NoError(t, err)
	assert.Equal(t, "/v8/finance/chart/AAPL", gotPath)

	// third period has a null close and is dropped
	require.Len(t, bars, 2)
	assert.Equal(t, 185.6, bars[0].Close)
	assert.Equal(t, int64(82000000), bars[0].Volume)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), bars[0].Date)
}

func TestLatestTradingDate(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5d", r.URL.Query().Get("range"))
		w.Write([]byte(chartBody))
	})

	date, err := client.LatestTradingDate(context.Background(), "AAPL", models.IntervalDaily)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), date)
}

func TestGetSymbolInfo(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(quoteSummaryBody))
	})

	info, err := client.GetSymbolInfo(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", info.Description)
	assert.Equal(t, "USD", info.MarketCapCurrency)
	assert.Equal(t, "Technology", info.Sector)
	assert.Equal(t, "buy", info.AnalystRating)
	assert.Equal(t, 2.9e12, info.MarketCap)
}

func TestGetSnapshot(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(quoteSummaryBody))
	})

	snap, err := client.GetSnapshot(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 199.6, snap.FiftyTwoWeekHigh)
	assert.Equal(t, 190.2, snap.FiftyDayAverage)
	// absent in the payload
	assert.True(t, models.IsUnknown(snap.TwoHundredDayAverage))
	assert.Equal(t, "Consumer Electronics", snap.Industry)
}

func TestAPIErrorOnNon200(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
	})

	_, err := client.GetHistory(context.Background(), "AAPL", models.IntervalDaily, time.Now().AddDate(0, 0, -5), time.Now())
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestChartErrorBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart": {"result": null, "error": {"code": "Not Found", "description": "No data found, symbol may be delisted"}}}`))
	})

	_, err := client.GetHistory(context.Background(), "GONE", models.IntervalDaily, time.Now().AddDate(0, 0, -5), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delisted")
}
