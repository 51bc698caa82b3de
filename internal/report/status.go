package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"stratbatch/internal/domain"
)

// Status classifies a strategy against persisted results.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusPending   Status = "pending"
)

// StatusEntry is one strategy's standing in the batch.
type StatusEntry struct {
	Strategy  string
	Status    Status
	ProfitPct float64
	Trades    int
	WinRate   float64
	Timerange string
	Error     string
}

// BuildStatus classifies every discovered strategy as completed, failed, or
// pending, sorted by name.
func BuildStatus(all []string, successes map[string]*domain.StrategyResult, failures []domain.FailureRecord) []StatusEntry {
	failed := make(map[string]*domain.FailureRecord, len(failures))
	for i := range failures {
		failed[failures[i].Strategy] = &failures[i]
	}

	entries := make([]StatusEntry, 0, len(all))
	for _, name := range all {
		switch {
		case successes[name] != nil:
			r := successes[name]
			entries = append(entries, StatusEntry{
				Strategy:  name,
				Status:    StatusCompleted,
				ProfitPct: r.TotalProfitPercent,
				Trades:    r.TotalTrades,
				WinRate:   r.WinRate,
				Timerange: r.Config.Timerange(),
			})
		case failed[name] != nil:
			fr := failed[name]
			entries = append(entries, StatusEntry{
				Strategy:  name,
				Status:    StatusFailed,
				Error:     fr.Error,
				Timerange: fr.Config.Timerange(),
			})
		default:
			entries = append(entries, StatusEntry{Strategy: name, Status: StatusPending})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Strategy < entries[j].Strategy
	})
	return entries
}

// FormatStatus renders a console summary: overall counts, the best completed
// strategies, failures, and a capped pending listing.
func FormatStatus(entries []StatusEntry, topN int) string {
	var completed, failed, pending []StatusEntry
	for _, e := range entries {
		switch e.Status {
		case StatusCompleted:
			completed = append(completed, e)
		case StatusFailed:
			failed = append(failed, e)
		default:
			pending = append(pending, e)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "STRATEGY STATUS\n")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "Total: %d  Completed: %d  Failed: %d  Pending: %d\n",
		len(entries), len(completed), len(failed), len(pending))

	if len(completed) > 0 {
		sort.Slice(completed, func(i, j int) bool {
			return completed[i].ProfitPct > completed[j].ProfitPct
		})
		n := topN
		if n > len(completed) {
			n = len(completed)
		}
		fmt.Fprintf(&b, "\nCOMPLETED (top %d by profit):\n", n)
		for i, e := range completed[:n] {
			fmt.Fprintf(&b, "%2d. %-30s %7.2f%%  %5d trades  %5.1f%% win\n",
				i+1, e.Strategy, e.ProfitPct, e.Trades, e.WinRate)
		}
	}

	if len(failed) > 0 {
		fmt.Fprintf(&b, "\nFAILED (%d):\n", len(failed))
		for _, e := range failed {
			err := e.Error
			if len(err) > 80 {
				err = err[:80] + "..."
			}
			fmt.Fprintf(&b, "  %-30s %s\n", e.Strategy, err)
		}
	}

	if len(pending) > 0 {
		fmt.Fprintf(&b, "\nPENDING (%d):\n", len(pending))
		limit := 20
		for i, e := range pending {
			if i == limit {
				fmt.Fprintf(&b, "  ... and %d more\n", len(pending)-limit)
				break
			}
			fmt.Fprintf(&b, "  %s\n", e.Strategy)
		}
	}
	return b.String()
}

// WriteStatusCSV exports the status entries for spreadsheet review.
func WriteStatusCSV(path string, entries []StatusEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"strategy", "status", "profit_pct", "trades", "win_rate", "timerange", "error"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, e := range entries {
		rec := []string{
			e.Strategy,
			string(e.Status),
			formatFloat(e.ProfitPct),
			strconv.Itoa(e.Trades),
			formatFloat(e.WinRate),
			e.Timerange,
			e.Error,
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
