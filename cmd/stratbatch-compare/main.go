// Comparison report generator: ranks persisted backtest results and writes
// CSV, parquet, summary, and top-performer reports into the results root.
//
// Usage:
//
//	go run cmd/stratbatch-compare/main.go [-top 20] [-min-return 5 -min-trades 50]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"stratbatch/internal/config"
	"stratbatch/internal/report"
	"stratbatch/internal/results"
	"stratbatch/internal/util"
)

func main() {
	var (
		cfgPath    = flag.String("config", configPath(), "path to stratbatch YAML config")
		resultsDir = flag.String("results-dir", "", "override the results directory")
		topN       = flag.Int("top", 20, "number of strategies in the top performers report")

		minReturn       = flag.Float64("min-return", 0, "minimum total profit percent")
		minTrades       = flag.Int("min-trades", 0, "minimum trade count")
		maxDrawdown     = flag.Float64("max-drawdown", 0, "maximum drawdown percent")
		minWinRate      = flag.Float64("min-win-rate", 0, "minimum win rate percent")
		minSharpe       = flag.Float64("min-sharpe", 0, "minimum Sharpe ratio")
		minProfitFactor = flag.Float64("min-profit-factor", 0, "minimum profit factor")
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

	// Only flags the user actually passed become criteria.
	var criteria report.Criteria
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "min-return":
			criteria.MinReturn = minReturn
		case "min-trades":
			criteria.MinTrades = minTrades
		case "max-drawdown":
			criteria.MaxDrawdown = maxDrawdown
		case "min-win-rate":
			criteria.MinWinRate = minWinRate
		case "min-sharpe":
			criteria.MinSharpe = minSharpe
		case "min-profit-factor":
			criteria.MinProfitFactor = minProfitFactor
		}
	})

	rp := report.NewReporter(store, logger)
	written, err := rp.Generate(*topN)
	if err != nil {
		log.Fatalf("error: %v", err)
	}
	logger.Info("reports generated", "files", len(written), "dir", cfg.Paths.ResultsDir)

	successes, _ := store.CollectAll()
	rows := report.Filter(report.Rank(successes), criteria)
	logger.Info("strategies matching criteria",
		"criteria", criteria.String(), "matched", len(rows), "total", len(successes))

	for i, r := range rows {
		if i == *topN {
			break
		}
		fmt.Printf("%2d. %-30s %7.2f%%  %5d trades  %5.1f%% win  %.2f sharpe\n",
			i+1, r.Strategy, r.TotalProfitPercent, r.TotalTrades, r.WinRate, r.SharpeRatio)
	}
}

func configPath() string {
	if p := os.Getenv("STRATBATCH_CONFIG"); p != "" {
		return p
	}
	return "config/stratbatch.yaml"
}
