package userdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobmcallan/tickersync/internal/common"
)

func writeUserData(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user_data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg := Load(filepath.Join(t.TempDir(), "absent.csv"), common.NewSilentLogger())

	assert.Equal(t, DefaultTickerChoice, cfg.TickerChoice)
	assert.True(t, cfg.YFHistData)
	assert.True(t, cfg.YFDailyData)
	assert.False(t, cfg.YFWeeklyData)
	assert.Equal(t, "2023-11-30", cfg.StartDate)
}

func TestLoadParsesVariables(t *testing.T) {
	path := writeUserData(t, `variable,value,description
ticker_choice,1-5-7,which groups to process
yf_weekly_data,true,fetch weekly bars
yf_daily_data,false,skip daily bars
fin_data_enrich,yes,enrich rows
start_date,2024-01-15,history start
tw_universe_file,universe.csv,bulk membership file
`)
	cfg := Load(path, common.NewSilentLogger())

	assert.Equal(t, "1-5-7", cfg.TickerChoice)
	assert.True(t, cfg.YFWeeklyData)
	assert.False(t, cfg.YFDailyData)
	assert.True(t, cfg.FinDataEnrich)
	assert.Equal(t, "2024-01-15", cfg.StartDate)
	assert.Equal(t, "universe.csv", cfg.TWUniverseFile)
}

func TestLoadDescriptionMayContainCommas(t *testing.T) {
	path := writeUserData(t, "ticker_choice,3,third group, the big one, really\n")
	cfg := Load(path, common.NewSilentLogger())
	assert.Equal(t, "3", cfg.TickerChoice)
}

func TestLoadGroupMappingLines(t *testing.T) {
	path := writeUserData(t, `# ticker_group_3=custom_nasdaq.csv
#ticker_group_8=my_portfolio.csv
# ticker_group_42=ignored.csv
# some unrelated comment
ticker_choice,3,
`)
	cfg := Load(path, common.NewSilentLogger())

	assert.Equal(t, "custom_nasdaq.csv", cfg.TickerFilenames[3])
	assert.Equal(t, "my_portfolio.csv", cfg.TickerFilenames[8])
	_, ok := cfg.TickerFilenames[42]
	assert.False(t, ok)
}

func TestLoadMalformedChoiceResetsToDefault(t *testing.T) {
	for _, choice := range []string{"abc", "1-9", "1--2", ""} {
		path := writeUserData(t, "ticker_choice,"+choice+",bad\n")
		cfg := Load(path, common.NewSilentLogger())
		assert.Equal(t, DefaultTickerChoice, cfg.TickerChoice, "choice %q", choice)
	}
}

func TestLoadIgnoresUnrecognizedVariables(t *testing.T) {
	path := writeUserData(t, `mystery_flag,true,no such thing
ticker_choice,4,
`)
	cfg := Load(path, common.NewSilentLogger())
	assert.Equal(t, "4", cfg.TickerChoice)
}

func TestSafeChoice(t *testing.T) {
	cfg := NewDefaultUserConfig()
	cfg.TickerChoice = "1-5-7"
	assert.Equal(t, "1_5_7", cfg.SafeChoice())
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"true", "TRUE", "1", "yes", "On"} {
		assert.True(t, ParseBool(v), v)
	}
	for _, v := range []string{"false", "0", "no", "off", "", "maybe"} {
		assert.False(t, ParseBool(v), v)
	}
}
