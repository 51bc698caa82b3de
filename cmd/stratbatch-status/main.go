// Status tool: shows which strategies are completed, failed, or still
// pending against the persisted results, with an optional CSV export.
//
// Usage:
//
//	go run cmd/stratbatch-status/main.go [-csv status.csv]
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"stratbatch/internal/config"
	"stratbatch/internal/discover"
	"stratbatch/internal/engine"
	"stratbatch/internal/report"
	"stratbatch/internal/results"
	"stratbatch/internal/util"
)

func main() {
	var (
		cfgPath    = flag.String("config", configPath(), "path to stratbatch YAML config")
		resultsDir = flag.String("results-dir", "", "override the results directory")
		csvOut     = flag.String("csv", "", "export status CSV to this path (empty = timestamped file in results dir)")
		exportCSV  = flag.Bool("export", false, "write the status CSV")
		topN       = flag.Int("top", 10, "completed strategies shown in the summary")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *resultsDir != "" {
		cfg.Paths.ResultsDir = *resultsDir
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	store, err := results.NewStore(cfg.Paths.ResultsDir, logger)
	if err != nil {
		log.Fatalf("failed to open results store: %v", err)
	}
	defer store.Close()

	inv := engine.NewFreqtrade(cfg.Engine.Binary, cfg.Engine.ConfigPath, logger)
	disc := discover.New(inv, store,
		cfg.Paths.StrategiesDir, cfg.Paths.StrategyExt, cfg.Backtest.CompatMarker,
		cfg.Engine.DiscoveryTimeout.Std(), logger)

	all, err := disc.Discover(context.Background(), discover.ModeAll)
	if err != nil {
		log.Fatalf("discovery error: %v", err)
	}

	successes, failures := store.CollectAll()
	entries := report.BuildStatus(all, successes, failures)

	fmt.Print(report.FormatStatus(entries, *topN))

	if *exportCSV || *csvOut != "" {
		path := *csvOut
		if path == "" {
			stamp := time.Now().Format("20060102_150405")
			path = filepath.Join(cfg.Paths.ResultsDir, "strategy_status_"+stamp+".csv")
		}
		if err := report.WriteStatusCSV(path, entries); err != nil {
			log.Fatalf("csv export error: %v", err)
		}
		logger.Info("status CSV exported", "path", path)
	}
}

func configPath() string {
	if p := os.Getenv("STRATBATCH_CONFIG"); p != "" {
		return p
	}
	return "config/stratbatch.yaml"
}
