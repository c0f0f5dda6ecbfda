// Package yahoo provides a client for the Yahoo Finance chart and
// quoteSummary APIs
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/tickersync/internal/common"
	"github.com/bobmcallan/tickersync/internal/interfaces"
	"github.com/bobmcallan/tickersync/internal/models"
)

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 5 // requests per second

	// Yahoo rejects Go's default User-Agent with 429s
	userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

// Client implements the MarketDataProvider interface against Yahoo Finance.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yahoo API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Yahoo API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// LatestTradingDate probes the most recent available period for a symbol
// with a short-range chart request, avoiding a full history download.
func (c *Client) LatestTradingDate(ctx context.Context, symbol string, interval models.Interval) (time.Time, error) {
	params := url.Values{}
	params.Set("interval", string(interval))
	params.Set("range", "5d")

	var resp chartResponse
	if err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), params, &resp); err != nil {
		return time.Time{}, err
	}
	result, err := resp.result(symbol)
	if err != nil {
		return time.Time{}, err
	}
	if len(result.Timestamp) == 0 {
		return time.Time{}, fmt.Errorf("no recent periods for %s", symbol)
	}
	last := result.Timestamp[len(result.Timestamp)-1]
	return time.Unix(last, 0).UTC().Truncate(24 * time.Hour), nil
}

// GetHistory retrieves OHLCV bars for [from, to] at the given interval.
// Periods with a null close (halts, partial data) are dropped.
func (c *Client) GetHistory(ctx context.Context, symbol string, interval models.Interval, from, to time.Time) ([]models.Bar, error) {
	params := url.Values{}
	params.Set("interval", string(interval))
	params.Set("period1", strconv.FormatInt(from.Unix(), 10))
	// period2 is exclusive; extend by a day so `to` itself is included
	params.Set("period2", strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10))
	params.Set("events", "div,splits")

	var resp chartResponse
	if err := c.get(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), params, &resp); err != nil {
		return nil, err
	}
	result, err := resp.result(symbol)
	if err != nil {
		return nil, err
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]models.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		closeVal, ok := floatAt(quote.Close, i)
		if !ok {
			continue
		}
		bar := models.Bar{
			Date:  time.Unix(ts, 0).UTC().Truncate(24 * time.Hour),
			Close: closeVal,
		}
		bar.Open, _ = floatAt(quote.Open, i)
		bar.High, _ = floatAt(quote.High, i)
		bar.Low, _ = floatAt(quote.Low, i)
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// GetSymbolInfo retrieves descriptive fields from the quoteSummary endpoint.
func (c *Client) GetSymbolInfo(ctx context.Context, symbol string) (*models.TickerInfo, error) {
	resp, err := c.quoteSummary(ctx, symbol)
	if err != nil {
		return nil, err
	}

	info := &models.TickerInfo{
		Ticker:            symbol,
		Symbol:            symbol,
		Description:       resp.Price.LongName,
		MarketCap:         resp.Price.MarketCap.value(),
		MarketCapCurrency: resp.Price.Currency,
		Sector:            resp.AssetProfile.Sector,
		Industry:          resp.AssetProfile.Industry,
		Exchange:          resp.Price.ExchangeName,
		AnalystRating:     resp.FinancialData.RecommendationKey,
	}
	if info.Description == "" {
		info.Description = resp.Price.ShortName
	}
	return info, nil
}

// GetSnapshot retrieves the quote snapshot used to enrich history rows.
func (c *Client) GetSnapshot(ctx context.Context, symbol string) (*models.Snapshot, error) {
	resp, err := c.quoteSummary(ctx, symbol)
	if err != nil {
		return nil, err
	}

	snap := models.NewSnapshot()
	snap.MarketCap = resp.Price.MarketCap.value()
	snap.FiftyTwoWeekHigh = resp.SummaryDetail.FiftyTwoWeekHigh.value()
	snap.FiftyTwoWeekLow = resp.SummaryDetail.FiftyTwoWeekLow.value()
	snap.FiftyDayAverage = resp.SummaryDetail.FiftyDayAverage.value()
	snap.TwoHundredDayAverage = resp.SummaryDetail.TwoHundredDayAverage.value()
	snap.Sector = resp.AssetProfile.Sector
	snap.Industry = resp.AssetProfile.Industry
	snap.Exchange = resp.Price.ExchangeName
	return &snap, nil
}

func (c *Client) quoteSummary(ctx context.Context, symbol string) (*quoteSummaryResult, error) {
	params := url.Values{}
	params.Set("modules", "price,summaryDetail,assetProfile,financialData")

	var resp quoteSummaryResponse
	if err := c.get(ctx, "/v10/finance/quoteSummary/"+url.PathEscape(symbol), params, &resp); err != nil {
		return nil, err
	}
	if resp.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("quoteSummary for %s: %s", symbol, resp.QuoteSummary.Error.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("no quoteSummary result for %s", symbol)
	}
	return &resp.QuoteSummary.Result[0], nil
}

// --- response types ---

// rawValue is Yahoo's {"raw": n, "fmt": "..."} number wrapper. Absent or
// null values read back as Unknown.
type rawValue struct {
	Raw *float64 `json:"raw"`
}

func (v rawValue) value() float64 {
	if v.Raw == nil {
		return models.Unknown()
	}
	return *v.Raw
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiErrorBody `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol       string `json:"symbol"`
		ExchangeName string `json:"exchangeName"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartQuote struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

type apiErrorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

func (r *chartResponse) result(symbol string) (*chartResult, error) {
	if r.Chart.Error != nil {
		return nil, fmt.Errorf("chart for %s: %s", symbol, r.Chart.Error.Description)
	}
	if len(r.Chart.Result) == 0 {
		return nil, fmt.Errorf("no chart result for %s", symbol)
	}
	return &r.Chart.Result[0], nil
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []quoteSummaryResult `json:"result"`
		Error  *apiErrorBody        `json:"error"`
	} `json:"quoteSummary"`
}

type quoteSummaryResult struct {
	Price struct {
		LongName     string   `json:"longName"`
		ShortName    string   `json:"shortName"`
		Currency     string   `json:"currency"`
		ExchangeName string   `json:"exchangeName"`
		MarketCap    rawValue `json:"marketCap"`
	} `json:"price"`
	SummaryDetail struct {
		FiftyTwoWeekHigh     rawValue `json:"fiftyTwoWeekHigh"`
		FiftyTwoWeekLow      rawValue `json:"fiftyTwoWeekLow"`
		FiftyDayAverage      rawValue `json:"fiftyDayAverage"`
		TwoHundredDayAverage rawValue `json:"twoHundredDayAverage"`
	} `json:"summaryDetail"`
	AssetProfile struct {
		Sector   string `json:"sector"`
		Industry string `json:"industry"`
	} `json:"assetProfile"`
	FinancialData struct {
		RecommendationKey string `json:"recommendationKey"`
	} `json:"financialData"`
}

// --- helpers ---

func floatAt(s []*float64, i int) (float64, bool) {
	if i >= len(s) || s[i] == nil {
		return 0, false
	}
	return *s[i], true
}

// Ensure Client implements MarketDataProvider
var _ interfaces.MarketDataProvider = (*Client)(nil)
