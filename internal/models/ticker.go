package models

// TickerGroup is a named, numbered collection of ticker symbols backed by
// one file. Group 0 is the full-universe superset.
type TickerGroup struct {
	ID       int
	Name     string
	Filename string
}

// TickerInfo holds point-in-time descriptive fields for one ticker,
// sourced from either the provider or a vendor info file.
type TickerInfo struct {
	Ticker               string  `json:"ticker"`
	Symbol               string  `json:"symbol"`
	Description          string  `json:"description"`
	MarketCap            float64 `json:"market_capitalization"` // Unknown() when unreported
	MarketCapCurrency    string  `json:"market_cap_currency"`
	Sector               string  `json:"sector"`
	Industry             string  `json:"industry"`
	Exchange             string  `json:"exchange"`
	AnalystRating        string  `json:"analyst_rating"`
	UpcomingEarningsDate string  `json:"upcoming_earnings_date"`
	RecentEarningsDate   string  `json:"recent_earnings_date"`
}

// ProblematicTicker records a per-ticker failure during an update run.
// Processing of the remaining tickers continues; the record is persisted
// to a side CSV at the end of the run.
type ProblematicTicker struct {
	Ticker    string
	Error     string
	Timeframe string // set by the bulk reconciler, empty for provider updates
}
