// Strategy migration tool: rewrites v2-interface strategy files to the v3
// naming, backing up the whole strategies tree first.
//
// Usage:
//
//	go run cmd/stratbatch-update/main.go [-strategies-dir user_data/strategies]
package main

import (
	"flag"
	"log"
	"os"

	"stratbatch/internal/config"
	"stratbatch/internal/updater"
	"stratbatch/internal/util"
)

func main() {
	var (
		cfgPath       = flag.String("config", configPath(), "path to stratbatch YAML config")
		strategiesDir = flag.String("strategies-dir", "", "override the strategies directory")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *strategiesDir != "" {
		cfg.Paths.StrategiesDir = *strategiesDir
	}

	logger := util.NewLogger(cfg.Logging.Level)
	util.SetDefault(logger)

	u := updater.New(cfg.Paths.StrategiesDir, cfg.Paths.StrategyExt, logger)
	sum, err := u.UpdateAll()
	if err != nil {
		log.Fatalf("error: %v", err)
	}

	logger.Info("migration complete",
		"updated", sum.Updated,
		"unchanged", sum.Unchanged,
		"failed", sum.Failed,
		"rewrites", sum.Changes,
		"backup", u.BackupDir(),
	)
	if sum.Failed > 0 {
		os.Exit(1)
	}
}

func configPath() string {
	if p := os.Getenv("STRATBATCH_CONFIG"); p != "" {
		return p
	}
	return "config/stratbatch.yaml"
}
