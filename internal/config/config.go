// Package config loads the stratbatch YAML configuration and applies
// environment variable overrides.
package config

import (
	"os"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the stratbatch tools.
type Config struct {
	Engine   Engine   `yaml:"engine"`
	Paths    Paths    `yaml:"paths"`
	Backtest Backtest `yaml:"backtest"`
	Logging  Logging  `yaml:"logging"`
}

// Duration wraps time.Duration so YAML values can be written as Go duration
// strings ("5m", "30s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Engine describes how to invoke the external backtesting engine.
type Engine struct {
	Binary           string   `yaml:"binary"`
	ConfigPath       string   `yaml:"config_path"`
	StrategyTimeout  Duration `yaml:"strategy_timeout"`
	DiscoveryTimeout Duration `yaml:"discovery_timeout"`
	VersionTimeout   Duration `yaml:"version_timeout"`
}

// Paths holds filesystem layout roots.
type Paths struct {
	StrategiesDir string `yaml:"strategies_dir"`
	ResultsDir    string `yaml:"results_dir"`
	StrategyExt   string `yaml:"strategy_ext"`
}

// Backtest holds the batch run parameters. StartDate and EndDate define the
// cache-validity window: results persisted under different bounds are rerun.
type Backtest struct {
	StartDate        string `yaml:"start_date"`
	EndDate          string `yaml:"end_date"`
	DefaultTimeframe string `yaml:"default_timeframe"`
	MaxWorkers       int    `yaml:"max_workers"`
	CompatMarker     string `yaml:"compat_marker"`
}

// Logging configures the application logger.
type Logging struct {
	Level string `yaml:"level"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns a Config populated with the built-in defaults. A missing
// config file is not an error; the tools run on defaults alone.
func Default() *Config {
	return &Config{
		Engine: Engine{
			Binary:           "freqtrade",
			ConfigPath:       "user_data/config.json",
			StrategyTimeout:  Duration(5 * time.Minute),
			DiscoveryTimeout: Duration(time.Minute),
			VersionTimeout:   Duration(10 * time.Second),
		},
		Paths: Paths{
			StrategiesDir: "user_data/strategies",
			ResultsDir:    "user_data/backtest_results",
			StrategyExt:   ".py",
		},
		Backtest: Backtest{
			StartDate:        "20240101",
			EndDate:          "20241231",
			DefaultTimeframe: "5m",
			MaxWorkers:       defaultWorkers(),
			CompatMarker:     "populate_entry_trend",
		},
		Logging: Logging{Level: "info"},
	}
}

// defaultWorkers caps the pool at 6 regardless of core count; each engine
// invocation is memory-hungry.
func defaultWorkers() int {
	w := runtime.NumCPU()
	if w > 6 {
		w = 6
	}
	return w
}

// Load reads the YAML configuration file at the given path over the defaults,
// then applies environment variable overrides. If path is empty or the file
// does not exist, defaults plus overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Backtest.MaxWorkers < 1 {
		cfg.Backtest.MaxWorkers = 1
	}

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FREQTRADE_BIN"); v != "" {
		cfg.Engine.Binary = v
	}
	if v := os.Getenv("FREQTRADE_CONFIG"); v != "" {
		cfg.Engine.ConfigPath = v
	}
	if v := os.Getenv("STRATEGIES_DIR"); v != "" {
		cfg.Paths.StrategiesDir = v
	}
	if v := os.Getenv("RESULTS_DIR"); v != "" {
		cfg.Paths.ResultsDir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
