package universe

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobmcallan/tickersync/internal/common"
	"github.com/bobmcallan/tickersync/internal/models"
)

// ChoiceError reports an invalid ticker_choice selector. It is a
// configuration error: the resolution call fails, but the caller may
// substitute a default selector and retry.
type ChoiceError struct {
	Choice string
	Reason string
}

func (e *ChoiceError) Error() string {
	return fmt.Sprintf("invalid ticker choice %q: %s", e.Choice, e.Reason)
}

// ParseSelector parses a dash-joined universe selector ("2", "1-5-7") into
// group ids, deduplicated in selector order. Non-numeric tokens or ids
// outside [0,8] yield a ChoiceError.
func ParseSelector(choice string) ([]int, error) {
	trimmed := strings.TrimSpace(choice)
	if trimmed == "" {
		return nil, &ChoiceError{Choice: choice, Reason: "empty selector"}
	}

	var ids []int
	seen := make(map[int]bool)
	for _, token := range strings.Split(trimmed, "-") {
		token = strings.TrimSpace(token)
		id, err := strconv.Atoi(token)
		if err != nil {
			return nil, &ChoiceError{Choice: choice, Reason: fmt.Sprintf("non-numeric group id %q", token)}
		}
		if id < MinGroupID || id > MaxGroupID {
			return nil, &ChoiceError{Choice: choice, Reason: fmt.Sprintf("group id %d out of range [%d,%d]", id, MinGroupID, MaxGroupID)}
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ResolveOptions carries the resolution policy knobs. The always-union
// policy for the indexes and portfolio groups and the universe-file
// precedence are explicit here rather than re-derived per call site.
type ResolveOptions struct {
	// IncludeIndexes unions the indexes group (7) into every resolved
	// universe regardless of the selector.
	IncludeIndexes bool
	// IncludePortfolio unions the portfolio group (8) into every resolved
	// universe regardless of the selector.
	IncludePortfolio bool
	// PreferUniverseFile selects membership-column mode when UniverseFile
	// exists, overriding individual group files for groups with an index
	// mapping.
	PreferUniverseFile bool
	// UniverseFile is the path of the bulk membership file.
	UniverseFile string
}

// DefaultResolveOptions returns the policy the original pipeline applies:
// indexes and portfolio always included, universe file preferred when present.
func DefaultResolveOptions() ResolveOptions {
	return ResolveOptions{
		IncludeIndexes:     true,
		IncludePortfolio:   true,
		PreferUniverseFile: true,
	}
}

// Universe is an ordered, deduplicated list of ticker symbols, with
// per-ticker metadata retained when resolved from a membership file.
type Universe struct {
	Tickers []string
	Info    map[string]models.TickerInfo
}

// Resolver resolves ticker universes from a tickers directory.
type Resolver struct {
	tickersDir string
	filenames  map[int]string
	logger     *common.Logger
}

// NewResolver creates a resolver over tickersDir. overrides replaces the
// default backing file per group id; nil entries keep the defaults.
func NewResolver(tickersDir string, overrides map[int]string, logger *common.Logger) *Resolver {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	filenames := DefaultGroupFilenames()
	for id, name := range overrides {
		if id >= MinGroupID && id <= MaxGroupID && name != "" {
			filenames[id] = name
		}
	}
	return &Resolver{
		tickersDir: tickersDir,
		filenames:  filenames,
		logger:     logger,
	}
}

// GroupFilename returns the backing filename configured for a group id.
func (r *Resolver) GroupFilename(id int) string {
	return r.filenames[id]
}

// Resolve builds the universe for a selector. Group order follows the
// selector; within a group, file order. Duplicates keep their first-seen
// position. Missing group files are skipped with a warning; the call fails
// only when no group yields any tickers.
func (r *Resolver) Resolve(choice string, opts ResolveOptions) (*Universe, error) {
	ids, err := ParseSelector(choice)
	if err != nil {
		return nil, err
	}

	if opts.IncludeIndexes && !containsInt(ids, GroupIndexes) {
		ids = append(ids, GroupIndexes)
	}
	if opts.IncludePortfolio && !containsInt(ids, GroupPortfolio) {
		ids = append(ids, GroupPortfolio)
	}

	var membership []membershipRow
	useMembership := false
	if opts.PreferUniverseFile && opts.UniverseFile != "" {
		if _, statErr := os.Stat(opts.UniverseFile); statErr == nil {
			membership, err = readMembershipFile(opts.UniverseFile)
			if err != nil {
				r.logger.Warn().Str("file", opts.UniverseFile).Err(err).Msg("Failed to read universe file, falling back to group files")
			} else {
				useMembership = true
				r.logger.Info().Str("file", opts.UniverseFile).Int("rows", len(membership)).Msg("Using universe membership file")
			}
		}
	}

	u := &Universe{Info: make(map[string]models.TickerInfo)}
	seen := make(map[string]bool)
	usable := 0

	add := func(ticker string) {
		if !seen[ticker] {
			seen[ticker] = true
			u.Tickers = append(u.Tickers, ticker)
		}
	}

	for _, id := range ids {
		names, hasIndexNames := groupIndexNames[id]
		if useMembership && (id == GroupUniverse || hasIndexNames) {
			matched := 0
			for _, row := range membership {
				if id == GroupUniverse || row.inAnyIndex(names) {
					add(row.ticker)
					u.Info[row.ticker] = row.info
					matched++
				}
			}
			r.logger.Debug().Int("group", id).Int("tickers", matched).Msg("Resolved group from universe file")
			usable++
			continue
		}

		tickers, err := r.readGroupFile(id)
		if err != nil {
			r.logger.Warn().Int("group", id).Str("file", r.filenames[id]).Err(err).Msg("Skipping group: backing file unavailable")
			continue
		}
		for _, t := range tickers {
			add(t)
		}
		usable++
	}

	if usable == 0 {
		return nil, fmt.Errorf("no usable ticker source for choice %q", choice)
	}

	// Retain metadata only for resolved tickers
	for ticker := range u.Info {
		if !seen[ticker] {
			delete(u.Info, ticker)
		}
	}

	r.logger.Info().Str("choice", choice).Int("tickers", len(u.Tickers)).Msg("Resolved ticker universe")
	return u, nil
}

// GroupTickers reads one group's backing file directly, bypassing the
// selector. Used for group-scoped side artifacts (portfolio clean lists).
func (r *Resolver) GroupTickers(id int) ([]string, error) {
	if id < MinGroupID || id > MaxGroupID {
		return nil, &ChoiceError{Choice: strconv.Itoa(id), Reason: "group id out of range"}
	}
	return r.readGroupFile(id)
}

// readGroupFile reads the ticker column of a group's backing CSV,
// normalizing symbols and dropping excluded ones.
func (r *Resolver) readGroupFile(id int) ([]string, error) {
	name, ok := r.filenames[id]
	if !ok {
		return nil, fmt.Errorf("no backing file mapped for group %d", id)
	}
	path := filepath.Join(r.tickersDir, name)

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", name, err)
	}
	col := findColumn(header, "ticker", "symbol")
	if col < 0 {
		return nil, fmt.Errorf("no ticker column in %s", name)
	}

	var tickers []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		if col >= len(record) {
			continue
		}
		if ticker, ok := NormalizeSymbol(record[col]); ok {
			tickers = append(tickers, ticker)
		}
	}
	return tickers, nil
}

// membershipRow is one row of the bulk membership file: a ticker, the set
// of index names it belongs to, and its descriptive metadata.
type membershipRow struct {
	ticker  string
	indexes map[string]bool
	info    models.TickerInfo
}

func (m membershipRow) inAnyIndex(names []string) bool {
	for _, n := range names {
		if m.indexes[n] {
			return true
		}
	}
	return false
}

// readMembershipFile parses the bulk universe file. Rows whose symbol fails
// normalization are dropped.
func readMembershipFile(path string) ([]membershipRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read universe header: %w", err)
	}

	symbolCol := findColumn(header, "ticker", "symbol")
	if symbolCol < 0 {
		return nil, fmt.Errorf("no Symbol column in universe file")
	}
	indexCol := findColumn(header, "index")

	get := func(record []string, col int) string {
		if col >= 0 && col < len(record) {
			return strings.TrimSpace(record[col])
		}
		return ""
	}

	descCol := findColumn(header, "description")
	capCol := findColumn(header, "market capitalization", "market_cap")
	capCurCol := findColumn(header, "market capitalization - currency", "market_cap_currency")
	sectorCol := findColumn(header, "sector")
	industryCol := findColumn(header, "industry")
	exchangeCol := findColumn(header, "exchange")
	ratingCol := findColumn(header, "analyst rating", "analyst_rating")
	upcomingCol := findColumn(header, "upcoming earnings date", "upcoming_earnings_date")
	recentCol := findColumn(header, "recent earnings date", "recent_earnings_date")

	var rows []membershipRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read universe file: %w", err)
		}

		ticker, ok := NormalizeSymbol(get(record, symbolCol))
		if !ok {
			continue
		}

		indexes := make(map[string]bool)
		for _, name := range strings.Split(get(record, indexCol), ",") {
			if name = strings.TrimSpace(name); name != "" {
				indexes[name] = true
			}
		}

		marketCap := models.Unknown()
		if raw := get(record, capCol); raw != "" {
			if v, err := strconv.ParseFloat(raw, 64); err == nil {
				marketCap = v
			}
		}

		rows = append(rows, membershipRow{
			ticker:  ticker,
			indexes: indexes,
			info: models.TickerInfo{
				Ticker:               ticker,
				Symbol:               get(record, symbolCol),
				Description:          get(record, descCol),
				MarketCap:            marketCap,
				MarketCapCurrency:    get(record, capCurCol),
				Sector:               get(record, sectorCol),
				Industry:             get(record, industryCol),
				Exchange:             get(record, exchangeCol),
				AnalystRating:        get(record, ratingCol),
				UpcomingEarningsDate: get(record, upcomingCol),
				RecentEarningsDate:   get(record, recentCol),
			},
		})
	}
	return rows, nil
}

// ReadInfoFile parses a pre-supplied vendor info CSV (same column layout as
// the membership file) into per-ticker metadata keyed by normalized symbol.
func ReadInfoFile(path string) (map[string]models.TickerInfo, error) {
	rows, err := readMembershipFile(path)
	if err != nil {
		return nil, err
	}
	info := make(map[string]models.TickerInfo, len(rows))
	for _, row := range rows {
		info[row.ticker] = row.info
	}
	return info, nil
}

// findColumn returns the index of the first header matching any candidate
// name, case-insensitively, or -1.
func findColumn(header []string, names ...string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, n := range names {
			if h == n {
				return i
			}
		}
	}
	return -1
}

func containsInt(ids []int, id int) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
