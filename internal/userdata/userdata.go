// Package userdata parses the declarative per-run user configuration file.
//
// The file is CSV with a `variable,value,description` body. Comment lines
// (`#`) are ignored, except for group metadata lines of the form
//
//	# ticker_group_3=nasdaq_all_tickers.csv
//
// which map a ticker group id to its backing filename. Parsing never fails:
// a missing file yields the defaults, unrecognized variables are ignored
// with a warning, and a malformed ticker_choice resets to the safe default.
package userdata

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/bobmcallan/tickersync/internal/common"
	"github.com/bobmcallan/tickersync/internal/universe"
)

// DefaultTickerChoice is the selector substituted for malformed choices.
const DefaultTickerChoice = "2"

// UserConfig is the immutable per-run configuration. Parsed once, passed
// explicitly into each component — there is no ambient global.
type UserConfig struct {
	TickerChoice string

	// Ticker list sources
	WebTickersDown bool
	TWTickersDown  bool

	// Historical data sources
	YFHistData    bool
	YFDailyData   bool
	YFWeeklyData  bool
	YFMonthlyData bool
	TWHistData    bool

	// Enrichment and side artifacts
	FinDataEnrich bool
	WriteFileInfo bool
	TickerInfoTW  bool
	TickerInfoYF  bool

	StartDate        string
	TWUniverseFile   string
	TickerInfoTWFile string
	UserInputPath    string

	// TickerFilenames maps group id -> backing filename, from the
	// `# ticker_group_<id>=` metadata lines. Empty entries fall back to
	// the universe package defaults.
	TickerFilenames map[int]string
}

// NewDefaultUserConfig returns the all-defaults configuration used when the
// file is missing or a value is unusable.
func NewDefaultUserConfig() *UserConfig {
	return &UserConfig{
		TickerChoice:     DefaultTickerChoice,
		WebTickersDown:   true,
		YFHistData:       true,
		YFDailyData:      true,
		TickerInfoYF:     true,
		StartDate:        "2023-11-30",
		TWUniverseFile:   "tradingview_universe.csv",
		TickerInfoTWFile: "tradingview_universe_info.csv",
		UserInputPath:    "user_input",
		TickerFilenames:  make(map[int]string),
	}
}

var groupLinePattern = regexp.MustCompile(`^#\s*ticker_group_(\d+)\s*=\s*(\S+)`)

// Load reads the user configuration from path. It always returns a usable
// configuration; problems are logged as warnings, never raised.
func Load(path string, logger *common.Logger) *UserConfig {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	cfg := NewDefaultUserConfig()

	f, err := os.Open(path)
	if err != nil {
		logger.Warn().Str("path", path).Err(err).Msg("User configuration not found, using defaults")
		return cfg
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			if m := groupLinePattern.FindStringSubmatch(line); m != nil {
				id, _ := strconv.Atoi(m[1])
				if id >= universe.MinGroupID && id <= universe.MaxGroupID {
					cfg.TickerFilenames[id] = m[2]
				} else {
					logger.Warn().Int("group", id).Msg("Ignoring ticker group mapping with out-of-range id")
				}
			}
			continue
		}

		// variable,value,description — description may itself contain commas
		parts := strings.SplitN(line, ",", 3)
		if len(parts) < 2 {
			continue
		}
		variable := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		if variable == "variable" {
			continue // header row
		}
		cfg.apply(variable, value, logger)
	}
	if err := scanner.Err(); err != nil {
		logger.Warn().Str("path", path).Err(err).Msg("Error reading user configuration, continuing with parsed values")
	}

	cfg.validateChoice(logger)
	return cfg
}

// apply sets one recognized variable, converting via its declared type.
func (c *UserConfig) apply(variable, value string, logger *common.Logger) {
	switch variable {
	case "ticker_choice":
		c.TickerChoice = value
	case "web_tickers_down":
		c.WebTickersDown = ParseBool(value)
	case "tw_tickers_down":
		c.TWTickersDown = ParseBool(value)
	case "yf_hist_data":
		c.YFHistData = ParseBool(value)
	case "yf_daily_data":
		c.YFDailyData = ParseBool(value)
	case "yf_weekly_data":
		c.YFWeeklyData = ParseBool(value)
	case "yf_monthly_data":
		c.YFMonthlyData = ParseBool(value)
	case "tw_hist_data":
		c.TWHistData = ParseBool(value)
	case "fin_data_enrich":
		c.FinDataEnrich = ParseBool(value)
	case "write_file_info":
		c.WriteFileInfo = ParseBool(value)
	case "ticker_info_tw":
		c.TickerInfoTW = ParseBool(value)
	case "ticker_info_yf":
		c.TickerInfoYF = ParseBool(value)
	case "start_date":
		if value != "" {
			c.StartDate = value
		}
	case "tw_universe_file":
		if value != "" {
			c.TWUniverseFile = value
		}
	case "ticker_info_tw_file":
		if value != "" {
			c.TickerInfoTWFile = value
		}
	case "user_input_path":
		if value != "" {
			c.UserInputPath = value
		}
	default:
		logger.Warn().Str("variable", variable).Msg("Ignoring unrecognized user configuration variable")
	}
}

// validateChoice resets a malformed ticker_choice to the safe default.
func (c *UserConfig) validateChoice(logger *common.Logger) {
	if _, err := universe.ParseSelector(c.TickerChoice); err != nil {
		logger.Warn().Str("ticker_choice", c.TickerChoice).Err(err).
			Str("default", DefaultTickerChoice).Msg("Malformed ticker_choice, resetting to default")
		c.TickerChoice = DefaultTickerChoice
	}
}

// Safe returns a selector with dashes replaced by underscores, for use in
// side-artifact filenames.
func Safe(choice string) string {
	return strings.ReplaceAll(choice, "-", "_")
}

// SafeChoice returns the configured selector in filename-safe form.
func (c *UserConfig) SafeChoice() string {
	return Safe(c.TickerChoice)
}

// ParseBool converts a declarative boolean: {true,1,yes,on} case-insensitively
// map to true, everything else to false.
func ParseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "yes", "on":
		return true
	}
	return false
}
