// Package results persists and reconciles per-strategy backtest outcomes.
//
// Two physical layouts are maintained under one results root: a per-strategy
// artifact directory (exported trade data, raw transcript, a pointer file
// naming the latest export) and a flat individual_results/ cache of
// lightweight JSON records. The flat cache is the fast path for cache-hit
// checks; the artifact directories are the richer source merged in during
// full reconciliation. A sqlite index mirrors every save for cheap queries.
package results

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"stratbatch/internal/domain"
	"stratbatch/internal/util"
)

// completeArtifactMinSize is the size below which an exported backtest file
// is considered debris rather than a completed run.
const completeArtifactMinSize = 1000

// Store reads and writes per-strategy results under a single results root.
// Different strategies may be written concurrently; the scheduler guarantees
// a single writer per strategy within a batch.
type Store struct {
	root       string
	individual string
	index      *Index
	log        *slog.Logger
}

// NewStore creates the results layout under root and opens the run index.
// An index that cannot be opened is logged and skipped; the JSON layout
// alone is authoritative.
func NewStore(root string, log *slog.Logger) (*Store, error) {
	individual := filepath.Join(root, "individual_results")
	if err := os.MkdirAll(individual, 0o755); err != nil {
		return nil, fmt.Errorf("creating results layout: %w", err)
	}

	s := &Store{
		root:       root,
		individual: individual,
		log:        log.With("component", "results"),
	}

	idx, err := OpenIndex(filepath.Join(root, "index.db"))
	if err != nil {
		s.log.Warn("run index unavailable", "error", err)
	} else {
		s.index = idx
	}
	return s, nil
}

// Close releases the run index.
func (s *Store) Close() error {
	if s.index == nil {
		return nil
	}
	return s.index.Close()
}

// Root returns the results root directory.
func (s *Store) Root() string { return s.root }

// ArtifactDir returns the per-strategy artifact directory, creating it if
// needed.
func (s *Store) ArtifactDir(strategy string) (string, error) {
	dir := filepath.Join(s.root, strategy)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating artifact dir for %s: %w", strategy, err)
	}
	return dir, nil
}

func (s *Store) resultPath(strategy string) string {
	return filepath.Join(s.individual, strategy+"_result.json")
}

func (s *Store) failurePath(strategy string) string {
	return filepath.Join(s.individual, strategy+"_failed.json")
}

// writeJSONAtomic writes v to path through a temp file and rename, so a
// concurrent reader never observes a half-written record.
func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load returns the cached result for a strategy, or nil when no record
// exists, the record is unreadable, or it was produced under a different
// run configuration. A stale record is never a cache hit.
func (s *Store) Load(strategy string, cfg domain.RunConfig) *domain.StrategyResult {
	data, err := os.ReadFile(s.resultPath(strategy))
	if err != nil {
		return nil
	}

	var res domain.StrategyResult
	if err := json.Unmarshal(data, &res); err != nil {
		s.log.Warn("unreadable cached result", "strategy", strategy, "error", err)
		return nil
	}

	if !cfg.Matches(res.Config) {
		s.log.Info("cached result uses different run configuration, will re-run",
			"strategy", strategy,
			"cached", res.Config.Timerange(),
			"active", cfg.Timerange(),
		)
		return nil
	}
	return &res
}

// persist retries the atomic write a few times; losing a finished unit's
// record to a transient filesystem error is the one unrecoverable outcome.
func (s *Store) persist(path string, v any) error {
	return util.Retry(context.Background(), 3, 50*time.Millisecond, func() error {
		return writeJSONAtomic(path, v)
	})
}

// Save persists a successful result to the flat cache and the run index.
// Any stale failure record for the strategy is removed: a strategy is never
// simultaneously succeeded and failed in persisted state.
func (s *Store) Save(strategy string, res *domain.StrategyResult) error {
	if err := s.persist(s.resultPath(strategy), res); err != nil {
		return fmt.Errorf("saving result for %s: %w", strategy, err)
	}
	os.Remove(s.failurePath(strategy))

	if s.index != nil {
		if err := s.index.RecordSuccess(res); err != nil {
			s.log.Warn("run index update failed", "strategy", strategy, "error", err)
		}
	}
	return nil
}

// SaveFailure persists a failure record, superseding any stale success
// record for the strategy.
func (s *Store) SaveFailure(strategy string, fr *domain.FailureRecord) error {
	if err := s.persist(s.failurePath(strategy), fr); err != nil {
		return fmt.Errorf("saving failure for %s: %w", strategy, err)
	}
	os.Remove(s.resultPath(strategy))

	if s.index != nil {
		if err := s.index.RecordFailure(fr); err != nil {
			s.log.Warn("run index update failed", "strategy", strategy, "error", err)
		}
	}
	return nil
}

// SaveTranscript writes the raw engine output next to the strategy's
// exported artifacts for audit.
func (s *Store) SaveTranscript(strategy, stdout string) error {
	dir, err := s.ArtifactDir(strategy)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, strategy+"_output.txt"), []byte(stdout), 0o644)
}

// ---------------------------------------------------------------------------
// Reconciliation
// ---------------------------------------------------------------------------

// CollectAll performs a full scan of persisted state and returns the
// authoritative successful and failed sets. Artifact directories are the
// preferred source; the flat cache fills in strategies without parseable
// artifacts and supplies run metadata for those with them. No strategy
// appears twice.
func (s *Store) CollectAll() (map[string]*domain.StrategyResult, []domain.FailureRecord) {
	successes := make(map[string]*domain.StrategyResult)
	var failures []domain.FailureRecord

	// 1. Richer source: per-strategy artifact directories.
	entries, err := os.ReadDir(s.root)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() || e.Name() == "individual_results" {
				continue
			}
			dir := filepath.Join(s.root, e.Name())
			m, ok := parseArtifactDir(dir, e.Name())
			if !ok {
				continue
			}
			successes[e.Name()] = &domain.StrategyResult{Metrics: m}
		}
	}

	// 2. Flat cache: fills gaps and attaches run metadata to artifact hits.
	cacheEntries, err := os.ReadDir(s.individual)
	if err != nil {
		return successes, failures
	}
	for _, e := range cacheEntries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, "_result.json"):
			strategy := strings.TrimSuffix(name, "_result.json")
			var res domain.StrategyResult
			if !s.readJSON(filepath.Join(s.individual, name), &res) {
				continue
			}
			if res.Strategy == "" {
				res.Strategy = strategy
			}
			if existing, ok := successes[strategy]; ok {
				// Artifact metrics win; cache supplies the metadata the
				// artifact layout does not carry.
				existing.Config = res.Config
				existing.Timestamp = res.Timestamp
				existing.ExecutionTime = res.ExecutionTime
				existing.Timeframe = res.Timeframe
				existing.EngineVersion = res.EngineVersion
				existing.Command = res.Command
			} else {
				successes[strategy] = &res
			}

		case strings.HasSuffix(name, "_failed.json"):
			strategy := strings.TrimSuffix(name, "_failed.json")
			if _, ok := successes[strategy]; ok {
				continue
			}
			var fr domain.FailureRecord
			if !s.readJSON(filepath.Join(s.individual, name), &fr) {
				continue
			}
			if fr.Strategy == "" {
				fr.Strategy = strategy
			}
			failures = append(failures, fr)
		}
	}

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Strategy < failures[j].Strategy
	})
	return successes, failures
}

func (s *Store) readJSON(path string, v any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.log.Warn("skipping unreadable record", "path", path, "error", err)
		return false
	}
	return true
}

// SuccessfulStrategies returns the sorted, deduplicated identifiers of every
// strategy with a persisted success, merging the artifact scan, the flat
// cache, and the run index.
func (s *Store) SuccessfulStrategies() []string {
	seen := make(map[string]struct{})

	successes, _ := s.CollectAll()
	for name := range successes {
		seen[name] = struct{}{}
	}

	if s.index != nil {
		if names, err := s.index.Successful(); err == nil {
			for _, n := range names {
				seen[n] = struct{}{}
			}
		}
	}

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ---------------------------------------------------------------------------
// Cleanup
// ---------------------------------------------------------------------------

// Cleanup removes a failed strategy's artifact directory when it holds no
// qualifying complete artifact: an empty directory, or one containing only
// sub-threshold debris. A directory with a complete export is left alone so
// a later discovery pass still sees the finished run.
func (s *Store) Cleanup(strategy string) {
	dir := filepath.Join(s.root, strategy)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	if len(entries) == 0 {
		if err := os.Remove(dir); err == nil {
			s.log.Info("removed empty directory for failed strategy", "strategy", strategy)
		}
		return
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") || !strings.Contains(name, "backtest") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.Size() > completeArtifactMinSize {
			// Qualifying complete artifact; keep the directory.
			return
		}
	}

	if err := os.RemoveAll(dir); err == nil {
		s.log.Info("removed partial artifacts for failed strategy", "strategy", strategy)
	}
}

// CleanupEmptyDirs removes leftover empty strategy directories under the
// results root.
func (s *Store) CleanupEmptyDirs() {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "individual_results" {
			continue
		}
		dir := filepath.Join(s.root, e.Name())
		sub, err := os.ReadDir(dir)
		if err != nil || len(sub) > 0 {
			continue
		}
		if os.Remove(dir) == nil {
			removed++
		}
	}
	if removed > 0 {
		s.log.Info("cleaned up empty directories", "count", removed)
	}
}

// ---------------------------------------------------------------------------
// Checkpoint
// ---------------------------------------------------------------------------

// Checkpoint writes a timestamped snapshot of in-memory results and failures
// to the results root. This is a crash-safety net for interrupts, not part
// of the normal persistence path.
func (s *Store) Checkpoint(successes map[string]*domain.StrategyResult, failures []domain.FailureRecord) error {
	stamp := time.Now().Format("20060102_150405")

	if len(successes) > 0 {
		path := filepath.Join(s.root, "intermediate_results_"+stamp+".json")
		if err := writeJSONAtomic(path, successes); err != nil {
			return fmt.Errorf("checkpointing results: %w", err)
		}
	}
	if len(failures) > 0 {
		path := filepath.Join(s.root, "failed_strategies_"+stamp+".json")
		if err := writeJSONAtomic(path, failures); err != nil {
			return fmt.Errorf("checkpointing failures: %w", err)
		}
	}
	return nil
}
