package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadFromYAML(t *testing.T) {
	yamlContent := []byte(`
engine:
  binary: "/opt/freqtrade/bin/freqtrade"
  config_path: "conf/backtest.json"
  strategy_timeout: 10m
  discovery_timeout: 30s
paths:
  strategies_dir: "/data/strategies"
  results_dir: "/data/results"
backtest:
  start_date: "20230101"
  end_date: "20230630"
  default_timeframe: "1h"
  max_workers: 3
  compat_marker: "populate_entry_trend"
logging:
  level: "debug"
`)

	path := filepath.Join(t.TempDir(), "stratbatch.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	// Clear any environment overrides that might interfere.
	for _, k := range []string{"FREQTRADE_BIN", "FREQTRADE_CONFIG", "STRATEGIES_DIR", "RESULTS_DIR", "LOG_LEVEL"} {
		os.Unsetenv(k)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Engine.Binary != "/opt/freqtrade/bin/freqtrade" {
		t.Errorf("Engine.Binary = %q, want %q", cfg.Engine.Binary, "/opt/freqtrade/bin/freqtrade")
	}
	if cfg.Engine.StrategyTimeout.Std() != 10*time.Minute {
		t.Errorf("Engine.StrategyTimeout = %v, want %v", cfg.Engine.StrategyTimeout.Std(), 10*time.Minute)
	}
	if cfg.Engine.DiscoveryTimeout.Std() != 30*time.Second {
		t.Errorf("Engine.DiscoveryTimeout = %v, want %v", cfg.Engine.DiscoveryTimeout.Std(), 30*time.Second)
	}
	if cfg.Paths.StrategiesDir != "/data/strategies" {
		t.Errorf("Paths.StrategiesDir = %q, want %q", cfg.Paths.StrategiesDir, "/data/strategies")
	}
	if cfg.Backtest.StartDate != "20230101" || cfg.Backtest.EndDate != "20230630" {
		t.Errorf("Backtest window = %q-%q, want 20230101-20230630", cfg.Backtest.StartDate, cfg.Backtest.EndDate)
	}
	if cfg.Backtest.MaxWorkers != 3 {
		t.Errorf("Backtest.MaxWorkers = %d, want 3", cfg.Backtest.MaxWorkers)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}

	// Fields absent from the YAML keep their defaults.
	if cfg.Paths.StrategyExt != ".py" {
		t.Errorf("Paths.StrategyExt = %q, want default %q", cfg.Paths.StrategyExt, ".py")
	}
	if cfg.Engine.VersionTimeout.Std() != 10*time.Second {
		t.Errorf("Engine.VersionTimeout = %v, want default 10s", cfg.Engine.VersionTimeout.Std())
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	for _, k := range []string{"FREQTRADE_BIN", "FREQTRADE_CONFIG", "STRATEGIES_DIR", "RESULTS_DIR", "LOG_LEVEL"} {
		os.Unsetenv(k)
	}

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() on missing file returned error: %v", err)
	}

	if cfg.Engine.Binary != "freqtrade" {
		t.Errorf("Engine.Binary = %q, want default %q", cfg.Engine.Binary, "freqtrade")
	}
	if cfg.Backtest.DefaultTimeframe != "5m" {
		t.Errorf("Backtest.DefaultTimeframe = %q, want %q", cfg.Backtest.DefaultTimeframe, "5m")
	}
	if cfg.Backtest.MaxWorkers < 1 || cfg.Backtest.MaxWorkers > 6 {
		t.Errorf("Backtest.MaxWorkers = %d, want 1..6", cfg.Backtest.MaxWorkers)
	}
	if cfg.Backtest.CompatMarker != "populate_entry_trend" {
		t.Errorf("Backtest.CompatMarker = %q, want default", cfg.Backtest.CompatMarker)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	yamlContent := []byte(`
engine:
  binary: "yaml-freqtrade"
paths:
  results_dir: "/yaml/results"
`)

	path := filepath.Join(t.TempDir(), "stratbatch.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	os.Setenv("FREQTRADE_BIN", "env-freqtrade")
	os.Setenv("RESULTS_DIR", "/env/results")
	defer os.Unsetenv("FREQTRADE_BIN")
	defer os.Unsetenv("RESULTS_DIR")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Engine.Binary != "env-freqtrade" {
		t.Errorf("Engine.Binary = %q, want %q (env override)", cfg.Engine.Binary, "env-freqtrade")
	}
	if cfg.Paths.ResultsDir != "/env/results" {
		t.Errorf("Paths.ResultsDir = %q, want %q (env override)", cfg.Paths.ResultsDir, "/env/results")
	}
}

func TestLoadClampsWorkers(t *testing.T) {
	yamlContent := []byte(`
backtest:
  max_workers: 0
`)
	path := filepath.Join(t.TempDir(), "stratbatch.yaml")
	if err := os.WriteFile(path, yamlContent, 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Backtest.MaxWorkers != 1 {
		t.Errorf("Backtest.MaxWorkers = %d, want clamped to 1", cfg.Backtest.MaxWorkers)
	}
}
