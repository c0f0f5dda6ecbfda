package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestConfig_Defaults(t *testing.T) {
	cfg := NewDefaultConfig()
	if cfg.Data.Path != "data" {
		t.Errorf("Data.Path default = %q, want %q", cfg.Data.Path, "data")
	}
	if cfg.Clients.Yahoo.RateLimit != 5 {
		t.Errorf("Yahoo.RateLimit default = %d, want 5", cfg.Clients.Yahoo.RateLimit)
	}
	if cfg.Updater.BatchSize != 100 {
		t.Errorf("Updater.BatchSize default = %d, want 100", cfg.Updater.BatchSize)
	}
}

func TestConfig_DataPathEnvOverride(t *testing.T) {
	t.Setenv("TICKERSYNC_DATA_PATH", "/tmp/elsewhere")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Data.Path != "/tmp/elsewhere" {
		t.Errorf("Data.Path = %q after env override, want %q", cfg.Data.Path, "/tmp/elsewhere")
	}
}

func TestConfig_RateLimitEnvOverride(t *testing.T) {
	t.Setenv("TICKERSYNC_RATE_LIMIT", "2")

	cfg := NewDefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Clients.Yahoo.RateLimit != 2 {
		t.Errorf("Yahoo.RateLimit = %d after env override, want 2", cfg.Clients.Yahoo.RateLimit)
	}
}

func TestLoadConfig_MergesFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tickersync.toml")
	content := `
environment = "production"

[data]
path = "/srv/ticker-data"

[updater]
ticker_delay = "50ms"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Environment != "production" {
		t.Errorf("Environment = %q, want %q", cfg.Environment, "production")
	}
	if cfg.Data.Path != "/srv/ticker-data" {
		t.Errorf("Data.Path = %q, want %q", cfg.Data.Path, "/srv/ticker-data")
	}
	if got := cfg.Updater.GetTickerDelay(); got != 50*time.Millisecond {
		t.Errorf("GetTickerDelay = %v, want 50ms", got)
	}
	// untouched sections keep defaults
	if cfg.Data.MarketDir != "market_data" {
		t.Errorf("Data.MarketDir = %q, want default", cfg.Data.MarketDir)
	}
}

func TestLoadConfig_SkipsMissingFiles(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("LoadConfig with missing file: %v", err)
	}
	if cfg.Data.Path != "data" {
		t.Errorf("Data.Path = %q, want default", cfg.Data.Path)
	}
}

func TestDurationFallbacks(t *testing.T) {
	u := UpdaterConfig{TickerDelay: "bogus", BatchPause: ""}
	if got := u.GetTickerDelay(); got != 200*time.Millisecond {
		t.Errorf("GetTickerDelay fallback = %v, want 200ms", got)
	}
	if got := u.GetBatchPause(); got != 30*time.Second {
		t.Errorf("GetBatchPause fallback = %v, want 30s", got)
	}
	y := YahooConfig{Timeout: "nope"}
	if got := y.GetTimeout(); got != 30*time.Second {
		t.Errorf("GetTimeout fallback = %v, want 30s", got)
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Data.Path = filepath.Join(t.TempDir(), "data")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{
		cfg.Data.TickersPath(),
		cfg.Data.MarketPath("daily"),
		cfg.Data.BulkFilesPath("weekly"),
		cfg.Data.BulkDataPath("monthly"),
	} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("directory %s not created", dir)
		}
	}
}
