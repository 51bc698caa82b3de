// Package scheduler drives batches of strategy backtests through a bounded
// worker pool.
//
// Each pass runs Discover, computes the pending set from persisted state,
// dispatches pending strategies to workers, collects outcomes in completion
// order, then reconciles against a full result-store scan. The in-memory
// counters are a progress hint; the store scan is the commit point.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"stratbatch/internal/backtest"
	"stratbatch/internal/discover"
	"stratbatch/internal/domain"
	"stratbatch/internal/results"
)

const (
	// sampleEvery is how many completions pass between resource samples.
	sampleEvery = 5
	// memoryDriftWarn is the used-memory percentage-point rise over the
	// baseline that triggers a health warning. Engine processes leak.
	memoryDriftWarn = 20.0
)

// ErrNoStrategies is returned when discovery yields nothing to run.
var ErrNoStrategies = errors.New("discovery returned no strategies")

// Discoverer enumerates candidate strategies.
type Discoverer interface {
	Discover(ctx context.Context, mode discover.Mode) ([]string, error)
}

// Runner executes a single strategy backtest.
type Runner interface {
	Run(ctx context.Context, strategy string) backtest.Outcome
}

// Options configure a batch run.
type Options struct {
	Mode        discover.Mode
	Workers     int
	BatchCap    int      // max strategies per pass, 0 = unlimited
	RetryFailed bool     // re-submit previously failed strategies
	Continuous  bool     // repeat passes until the pending set drains
	Only        []string // explicit strategy filter, empty = all discovered
}

// Summary reports what a Run accomplished.
type Summary struct {
	Passes    int
	Succeeded int
	Cached    int
	Failed    int
	Remaining int
}

// BatchResult is the in-memory outcome of one dispatched pass.
type BatchResult struct {
	Results  map[string]*domain.StrategyResult
	Failures []domain.FailureRecord
	Cached   int
}

// Scheduler orchestrates discovery, dispatch, and reconciliation.
type Scheduler struct {
	disc   Discoverer
	runner Runner
	store  *results.Store
	run    domain.RunConfig
	opt    Options
	log    *slog.Logger

	memBaseline float64
	sampleMem   func() (float64, error)
	sampleCPU   func() (float64, error)
}

// New creates a Scheduler. The worker count is clamped to at least one.
func New(disc Discoverer, runner Runner, store *results.Store,
	run domain.RunConfig, opt Options, log *slog.Logger) *Scheduler {
	if opt.Workers < 1 {
		opt.Workers = 1
	}
	s := &Scheduler{
		disc:      disc,
		runner:    runner,
		store:     store,
		run:       run,
		opt:       opt,
		log:       log.With("component", "scheduler"),
		sampleMem: systemMemoryPercent,
		sampleCPU: systemCPUPercent,
	}
	if base, err := s.sampleMem(); err == nil {
		s.memBaseline = base
	}
	return s
}

func systemMemoryPercent() (float64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func systemCPUPercent() (float64, error) {
	pcts, err := cpu.Percent(0, false)
	if err != nil || len(pcts) == 0 {
		return 0, err
	}
	return pcts[0], nil
}

// ---------------------------------------------------------------------------
// Pending-set computation
// ---------------------------------------------------------------------------

// Pending computes the units still to run: all minus completed minus failed,
// preserving discovery order. With includeFailed, failed units are appended
// after the never-run ones, again in discovery order. Each identifier
// appears at most once, which is what guarantees one writer per strategy
// downstream.
func Pending(all, completed, failed []string, includeFailed bool) []string {
	done := make(map[string]struct{}, len(completed))
	for _, n := range completed {
		done[n] = struct{}{}
	}
	failedSet := make(map[string]struct{}, len(failed))
	for _, n := range failed {
		failedSet[n] = struct{}{}
	}

	var pending []string
	for _, n := range all {
		if _, ok := done[n]; ok {
			continue
		}
		if _, ok := failedSet[n]; ok {
			continue
		}
		pending = append(pending, n)
	}

	if includeFailed {
		seen := make(map[string]struct{}, len(pending))
		for _, n := range pending {
			seen[n] = struct{}{}
		}
		for _, n := range all {
			if _, failed := failedSet[n]; !failed {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			pending = append(pending, n)
		}
	}
	return pending
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Run executes passes until the pending set drains (continuous mode) or one
// pass completes. On interrupt or a batch-fatal error it stops dispatching,
// lets in-flight units finish on their own timeouts, checkpoints whatever the
// run collected, and returns. Failed units can leave behind empty artifact
// directories; those are swept when the batch ends.
func (s *Scheduler) Run(ctx context.Context) (Summary, error) {
	var sum Summary
	acc := BatchResult{Results: make(map[string]*domain.StrategyResult)}

	defer s.store.CleanupEmptyDirs()

	for {
		sum.Passes++

		all, err := s.discoverPass(ctx)
		if err != nil {
			s.checkpoint(acc)
			return sum, err
		}

		pending := s.pendingFromStore(all)
		if len(pending) == 0 {
			s.log.Info("nothing pending, batch complete", "discovered", len(all))
			sum.Remaining = 0
			return sum, nil
		}

		capped := pending
		if s.opt.BatchCap > 0 && len(capped) > s.opt.BatchCap {
			capped = capped[:s.opt.BatchCap]
			s.log.Info("applying batch cap", "pending", len(pending), "this_pass", len(capped))
		}

		br := s.RunBatch(ctx, capped)
		sum.Succeeded += len(br.Results) - br.Cached
		sum.Cached += br.Cached
		sum.Failed += len(br.Failures)
		for name, res := range br.Results {
			acc.Results[name] = res
		}
		acc.Failures = append(acc.Failures, br.Failures...)

		// Reconcile against persisted state; in-memory counters are only a
		// progress hint.
		remaining := s.pendingFromStore(all)
		sum.Remaining = len(remaining)
		s.log.Info("pass complete",
			"pass", sum.Passes,
			"succeeded", len(br.Results)-br.Cached,
			"cached", br.Cached,
			"failed", len(br.Failures),
			"remaining", len(remaining),
		)

		if ctx.Err() != nil {
			s.checkpoint(acc)
			return sum, ctx.Err()
		}
		if !s.opt.Continuous || len(remaining) == 0 {
			return sum, nil
		}
		if len(br.Results) == 0 {
			s.log.Warn("pass made no progress, stopping", "remaining", len(remaining))
			return sum, nil
		}
	}
}

func (s *Scheduler) discoverPass(ctx context.Context) ([]string, error) {
	all, err := s.disc.Discover(ctx, s.opt.Mode)
	if err != nil {
		return nil, fmt.Errorf("discovery: %w", err)
	}
	if len(s.opt.Only) > 0 {
		all = intersect(all, s.opt.Only)
	}
	if len(all) == 0 {
		return nil, ErrNoStrategies
	}
	return all, nil
}

// pendingFromStore recomputes the pending set from a full store scan. A
// persisted success under a different run configuration does not count as
// completed; artifact-only records without stored configuration do.
func (s *Scheduler) pendingFromStore(all []string) []string {
	successes, failures := s.store.CollectAll()

	var completed []string
	for name, res := range successes {
		if res.Config.StartDate == "" || s.run.Matches(res.Config) {
			completed = append(completed, name)
		}
	}
	var failed []string
	for _, fr := range failures {
		failed = append(failed, fr.Strategy)
	}
	return Pending(all, completed, failed, s.opt.RetryFailed)
}

func intersect(all, only []string) []string {
	keep := make(map[string]struct{}, len(only))
	for _, n := range only {
		keep[n] = struct{}{}
	}
	var out []string
	for _, n := range all {
		if _, ok := keep[n]; ok {
			out = append(out, n)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Dispatch and collection
// ---------------------------------------------------------------------------

// RunBatch dispatches pending strategies to the worker pool and collects
// outcomes in completion order. Cancelling ctx stops dispatch of new work;
// strategies already handed to a worker run to completion under their own
// per-unit timeouts.
func (s *Scheduler) RunBatch(ctx context.Context, pending []string) BatchResult {
	jobs := make(chan string)
	outcomes := make(chan backtest.Outcome)

	// In-flight units must survive batch cancellation; their per-unit
	// timeout is the only thing that kills them.
	runCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	for i := 0; i < s.opt.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				outcomes <- s.runner.Run(runCtx, name)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, name := range pending {
			select {
			case jobs <- name:
			case <-ctx.Done():
				s.log.Warn("interrupted, no new strategies will be dispatched")
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	br := BatchResult{Results: make(map[string]*domain.StrategyResult)}
	start := time.Now()
	completed := 0

	for out := range outcomes {
		completed++
		switch {
		case out.Failure != nil:
			br.Failures = append(br.Failures, *out.Failure)
		default:
			br.Results[out.Strategy] = out.Result
			if out.Cached {
				br.Cached++
			}
		}

		remaining := len(pending) - completed
		elapsed := time.Since(start)
		var eta time.Duration
		if completed > 0 {
			eta = time.Duration(float64(elapsed) / float64(completed) * float64(remaining))
		}
		s.log.Info("progress",
			"completed", completed,
			"total", len(pending),
			"failed", len(br.Failures),
			"eta", eta.Round(time.Second),
		)

		if completed%sampleEvery == 0 {
			s.sampleResources()
		}
	}
	return br
}

// sampleResources checks system memory and CPU and warns when memory usage
// has drifted well above the batch-start baseline.
func (s *Scheduler) sampleResources() {
	memPct, err := s.sampleMem()
	if err != nil {
		return
	}
	cpuPct, _ := s.sampleCPU()

	if memPct-s.memBaseline > memoryDriftWarn {
		s.log.Warn("memory usage well above baseline",
			"memory_pct", memPct,
			"baseline_pct", s.memBaseline,
			"cpu_pct", cpuPct,
		)
		return
	}
	s.log.Debug("resource sample", "memory_pct", memPct, "cpu_pct", cpuPct)
}

func (s *Scheduler) checkpoint(br BatchResult) {
	if len(br.Results) == 0 && len(br.Failures) == 0 {
		return
	}
	if err := s.store.Checkpoint(br.Results, br.Failures); err != nil {
		s.log.Error("checkpoint failed", "error", err)
		return
	}
	s.log.Info("checkpoint written",
		"results", len(br.Results), "failures", len(br.Failures))
}
