package universe

// Ticker group ids. Group 0 is the full-universe superset; groups 7 and 8
// (indexes, portfolio) are unioned into every resolved universe by default.
const (
	GroupUniverse    = 0
	GroupSP500       = 1
	GroupNasdaq100   = 2
	GroupNasdaqAll   = 3
	GroupRussell1000 = 4
	GroupSP600       = 5
	GroupETF         = 6
	GroupIndexes     = 7
	GroupPortfolio   = 8

	MinGroupID = 0
	MaxGroupID = 8
)

// DefaultGroupFilenames maps each group id to its default backing file,
// relative to the tickers directory. Overridable per-group via the user
// configuration's ticker_group_<id> metadata lines.
func DefaultGroupFilenames() map[int]string {
	return map[int]string{
		GroupUniverse:    "tradingview_universe.csv",
		GroupSP500:       "sp500_tickers.csv",
		GroupNasdaq100:   "nasdaq100_tickers.csv",
		GroupNasdaqAll:   "nasdaq_all_tickers.csv",
		GroupRussell1000: "iwm1000_tickers.csv",
		GroupSP600:       "sp600_tickers.csv",
		GroupETF:         "etf_tickers.csv",
		GroupIndexes:     "indexes_tickers.csv",
		GroupPortfolio:   "portfolio_tickers.csv",
	}
}

// groupIndexNames maps group ids to the index names found in the bulk
// membership file's comma-joined Index column. Groups without an entry
// (ETF, indexes, portfolio) are always backed by their group file.
var groupIndexNames = map[int][]string{
	GroupSP500:       {"S&P 500"},
	GroupNasdaq100:   {"NASDAQ 100"},
	GroupNasdaqAll:   {"NASDAQ Composite"},
	GroupRussell1000: {"Russell 1000"},
	GroupSP600:       {"S&P 600"},
}
