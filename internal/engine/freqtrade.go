// Package engine wraps the external backtesting engine binary. Every
// invocation runs as its own OS process under a context deadline, so a
// hung or leaking engine never takes the batch down with it.
package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// BacktestRequest holds the arguments for one backtesting invocation.
type BacktestRequest struct {
	Strategy       string
	Timerange      string // "YYYYMMDD-YYYYMMDD"
	Timeframe      string
	ExportFilename string
}

// ExecResult carries the captured output of a finished invocation. It is
// populated even when the invocation fails so the caller can persist the
// transcript.
type ExecResult struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Invoker abstracts the engine binary so the runner and scheduler can be
// exercised without it.
type Invoker interface {
	// ListStrategies returns the engine's own view of available strategies,
	// one identifier per line, log noise filtered out.
	ListStrategies(ctx context.Context) ([]string, error)

	// Version returns the engine version string, or "unknown" on any failure.
	Version(ctx context.Context) string

	// Backtest runs one strategy backtest. The context deadline is the hard
	// per-unit timeout; on expiry the process is killed.
	Backtest(ctx context.Context, req BacktestRequest) (ExecResult, error)

	// CommandLine returns the argv that Backtest would execute, for audit
	// metadata on persisted results.
	CommandLine(req BacktestRequest) []string
}

// logStampRE matches date-stamped engine log lines that leak into
// list-strategies output.
var logStampRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// Freqtrade invokes the freqtrade CLI.
type Freqtrade struct {
	binary     string
	configPath string
	log        *slog.Logger
}

var _ Invoker = (*Freqtrade)(nil)

// NewFreqtrade creates a Freqtrade invoker for the given binary and engine
// config file.
func NewFreqtrade(binary, configPath string, log *slog.Logger) *Freqtrade {
	return &Freqtrade{
		binary:     binary,
		configPath: configPath,
		log:        log.With("component", "engine"),
	}
}

// ListStrategies runs the engine's native strategy enumeration subcommand.
func (f *Freqtrade) ListStrategies(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, f.binary,
		"list-strategies", "--one-column", "--config", f.configPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("strategy listing: %w", ctx.Err())
		}
		return nil, fmt.Errorf("strategy listing: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var strategies []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		s := strings.TrimSpace(line)
		if s == "" || logStampRE.MatchString(s) {
			continue
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}

// Version returns the engine version string, best effort.
func (f *Freqtrade) Version(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, f.binary, "--version").Output()
	if err != nil {
		return "unknown"
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "unknown"
	}
	return v
}

// CommandLine returns the backtesting argv for the given request.
func (f *Freqtrade) CommandLine(req BacktestRequest) []string {
	return []string{
		f.binary, "backtesting",
		"--config", f.configPath,
		"--strategy", req.Strategy,
		"--timerange", req.Timerange,
		"--timeframe", req.Timeframe,
		"--export", "trades",
		"--export-filename", req.ExportFilename,
	}
}

// ErrTimeout marks invocations killed by their deadline so callers can
// distinguish a timeout from an engine error.
var ErrTimeout = errors.New("engine invocation timed out")

// Backtest runs one strategy backtest as a subprocess, capturing stdout and
// stderr separately. The process is hard-killed when the context expires.
func (f *Freqtrade) Backtest(ctx context.Context, req BacktestRequest) (ExecResult, error) {
	argv := f.CommandLine(req)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	f.log.Debug("invoking engine", "strategy", req.Strategy, "timeframe", req.Timeframe)

	start := time.Now()
	err := cmd.Run()
	res := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, fmt.Errorf("%w after %s", ErrTimeout, res.Duration.Round(time.Second))
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return res, fmt.Errorf("backtesting %s: %s", req.Strategy, msg)
	}
	return res, nil
}
