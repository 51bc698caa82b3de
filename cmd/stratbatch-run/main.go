// Batch backtesting orchestrator: discovers strategies, runs them through
// the engine with a bounded worker pool, and persists per-strategy results.
//
// Usage:
//
//	go run cmd/stratbatch-run/main.go [-workers 4] [-strategies A,B] [-continuous]
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"stratbatch/internal/backtest"
	"stratbatch/internal/config"
	"stratbatch/internal/discover"
	"stratbatch/internal/domain"
	"stratbatch/internal/engine"
	"stratbatch/internal/results"
	"stratbatch/internal/scheduler"
	"stratbatch/internal/util"
)

func main() {
	var (
		cfgPath        = flag.String("config", configPath(), "path to stratbatch YAML config")
		strategies     = flag.String("strategies", "", "comma-separated strategy filter (empty = all discovered)")
		workers        = flag.Int("workers", 0, "worker pool size (0 = config default)")
		maxStrategies  = flag.Int("max-strategies", 0, "cap strategies per pass (0 = unlimited)")
		retryFailed    = flag.Bool("retry-failed", false, "re-submit previously failed strategies")
		continuous     = flag.Bool("continuous", false, "repeat passes until nothing is pending")
		compatibleOnly = flag.Bool("compatible-only", false, "only strategies containing the compatibility marker")
		successfulOnly = flag.Bool("successful-only", false, "only previously successful strategies")
		resultsDir     = flag.String("results-dir", "", "override the results directory")
		logFile        = flag.String("log-file", "", "also write logs to this file")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *resultsDir != "" {
		cfg.Paths.ResultsDir = *resultsDir
	}
	if *workers > 0 {
		cfg.Backtest.MaxWorkers = *workers
	}

	logger := util.NewLogger(cfg.Logging.Level)
	if *logFile != "" {
		logger = util.NewFileLogger(cfg.Logging.Level, *logFile)
	}
	util.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := results.NewStore(cfg.Paths.ResultsDir, logger)
	if err != nil {
		log.Fatalf("failed to open results store: %v", err)
	}
	defer store.Close()

	inv := engine.NewFreqtrade(cfg.Engine.Binary, cfg.Engine.ConfigPath, logger)

	verCtx, cancel := context.WithTimeout(ctx, cfg.Engine.VersionTimeout.Std())
	version := inv.Version(verCtx)
	cancel()
	logger.Info("engine version", "version", version)

	disc := discover.New(inv, store,
		cfg.Paths.StrategiesDir, cfg.Paths.StrategyExt, cfg.Backtest.CompatMarker,
		cfg.Engine.DiscoveryTimeout.Std(), logger)

	run := domain.RunConfig{
		StartDate:  cfg.Backtest.StartDate,
		EndDate:    cfg.Backtest.EndDate,
		ConfigPath: cfg.Engine.ConfigPath,
	}
	tf := backtest.NewTimeframeDetector(
		cfg.Paths.StrategiesDir, cfg.Paths.StrategyExt, cfg.Backtest.DefaultTimeframe)
	runner := backtest.NewRunner(inv, store, tf, run,
		cfg.Engine.StrategyTimeout.Std(), version, logger)

	mode := discover.ModeAll
	switch {
	case *compatibleOnly:
		mode = discover.ModeCompatible
	case *successfulOnly:
		mode = discover.ModePrevious
	}

	opt := scheduler.Options{
		Mode:        mode,
		Workers:     cfg.Backtest.MaxWorkers,
		BatchCap:    *maxStrategies,
		RetryFailed: *retryFailed,
		Continuous:  *continuous,
		Only:        splitList(*strategies),
	}

	sched := scheduler.New(disc, runner, store, run, opt, logger)
	sum, err := sched.Run(ctx)

	logger.Info("batch summary",
		"passes", sum.Passes,
		"succeeded", sum.Succeeded,
		"cached", sum.Cached,
		"failed", sum.Failed,
		"remaining", sum.Remaining,
	)

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		logger.Warn("interrupted, checkpoint written")
		os.Exit(130)
	default:
		log.Fatalf("error: %v", err)
	}
}

func configPath() string {
	if p := os.Getenv("STRATBATCH_CONFIG"); p != "" {
		return p
	}
	return "config/stratbatch.yaml"
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
