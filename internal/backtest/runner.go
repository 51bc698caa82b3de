// Package backtest runs a single strategy backtest end to end: cache check,
// timeframe detection, engine invocation under a hard timeout, output
// parsing, and persistence of the outcome.
package backtest

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"stratbatch/internal/domain"
	"stratbatch/internal/engine"
	"stratbatch/internal/results"
)

// failureTranscriptLimit bounds how much engine output is embedded in a
// persisted failure record. The full transcript lives next to the artifacts.
const failureTranscriptLimit = 2000

// Outcome is the result of one Run call. Exactly one of Result and Failure
// is set.
type Outcome struct {
	Strategy string
	Result   *domain.StrategyResult
	Failure  *domain.FailureRecord
	Cached   bool
}

// Runner executes individual strategy backtests. It is safe for concurrent
// use across distinct strategies; the scheduler never dispatches the same
// strategy twice within a batch.
type Runner struct {
	inv     engine.Invoker
	store   *results.Store
	tf      *TimeframeDetector
	run     domain.RunConfig
	timeout time.Duration
	version string
	log     *slog.Logger
}

// NewRunner creates a Runner. version is the engine version stamped onto
// persisted results.
func NewRunner(inv engine.Invoker, store *results.Store, tf *TimeframeDetector,
	run domain.RunConfig, timeout time.Duration, version string, log *slog.Logger) *Runner {
	return &Runner{
		inv:     inv,
		store:   store,
		tf:      tf,
		run:     run,
		timeout: timeout,
		version: version,
		log:     log.With("component", "runner"),
	}
}

// Run backtests one strategy. A valid cached result short-circuits the run
// with its stored timestamp intact. Failures are persisted and reported, not
// retried; retry policy belongs to the scheduler.
func (r *Runner) Run(ctx context.Context, strategy string) Outcome {
	if cached := r.store.Load(strategy, r.run); cached != nil {
		r.log.Info("using cached result", "strategy", strategy)
		return Outcome{Strategy: strategy, Result: cached, Cached: true}
	}

	timeframe := r.tf.Detect(strategy)

	dir, err := r.store.ArtifactDir(strategy)
	if err != nil {
		return r.fail(strategy, timeframe, "", err)
	}

	req := engine.BacktestRequest{
		Strategy:       strategy,
		Timerange:      r.run.Timerange(),
		Timeframe:      timeframe,
		ExportFilename: filepath.Join(dir, strategy+"_backtest.json"),
	}

	r.log.Info("backtesting", "strategy", strategy, "timeframe", timeframe)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.inv.Backtest(runCtx, req)

	if res.Stdout != "" {
		if terr := r.store.SaveTranscript(strategy, res.Stdout); terr != nil {
			r.log.Warn("transcript not saved", "strategy", strategy, "error", terr)
		}
	}

	if err != nil {
		return r.fail(strategy, timeframe, res.Stdout, err)
	}

	metrics := results.Parse(res.Stdout, strategy)
	result := &domain.StrategyResult{
		Metrics:       metrics,
		ExecutionTime: res.Duration,
		Timestamp:     time.Now(),
		Timeframe:     timeframe,
		Config:        r.runConfigFor(timeframe),
		EngineVersion: r.version,
		Command:       strings.Join(r.inv.CommandLine(req), " "),
	}

	if err := r.store.Save(strategy, result); err != nil {
		return r.fail(strategy, timeframe, res.Stdout, err)
	}

	r.log.Info("backtest complete",
		"strategy", strategy,
		"trades", metrics.TotalTrades,
		"profit_pct", metrics.TotalProfitPercent,
		"duration", res.Duration.Round(time.Second),
	)
	return Outcome{Strategy: strategy, Result: result}
}

func (r *Runner) runConfigFor(timeframe string) domain.RunConfig {
	cfg := r.run
	cfg.Timeframe = timeframe
	return cfg
}

// fail persists a failure record, cleans up partial artifacts, and returns
// the failed outcome.
func (r *Runner) fail(strategy, timeframe, stdout string, err error) Outcome {
	r.log.Error("backtest failed", "strategy", strategy, "error", err)

	fr := &domain.FailureRecord{
		Strategy:  strategy,
		Error:     err.Error(),
		Stdout:    tail(stdout, failureTranscriptLimit),
		Timeframe: timeframe,
		FailedAt:  time.Now(),
		Config:    r.runConfigFor(timeframe),
	}
	if serr := r.store.SaveFailure(strategy, fr); serr != nil {
		r.log.Error("failure record not saved", "strategy", strategy, "error", serr)
	}
	r.store.Cleanup(strategy)

	return Outcome{Strategy: strategy, Failure: fr}
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
