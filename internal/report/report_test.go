package report

import (
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"stratbatch/internal/domain"
	"stratbatch/internal/results"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func result(name string, profit float64, trades int, winRate, drawdown, sharpe float64) *domain.StrategyResult {
	return &domain.StrategyResult{
		Metrics: domain.Metrics{
			Strategy:           name,
			TotalTrades:        trades,
			WinRate:            winRate,
			TotalProfitPercent: profit,
			MaxDrawdown:        drawdown,
			SharpeRatio:        sharpe,
			ProfitFactor:       1.2,
			BacktestStart:      "2024-01-01 00:00:00",
			BacktestEnd:        "2024-12-31 00:00:00",
		},
		ExecutionTime: 30 * time.Second,
		Timeframe:     "5m",
		Config:        domain.RunConfig{StartDate: "20240101", EndDate: "20241231"},
	}
}

func sampleSet() map[string]*domain.StrategyResult {
	return map[string]*domain.StrategyResult{
		"Mid":  result("Mid", 5.0, 100, 52.0, 10.0, 1.1),
		"Best": result("Best", 25.0, 300, 60.0, 8.0, 2.0),
		"Loss": result("Loss", -4.0, 50, 40.0, 22.0, -0.5),
	}
}

func TestRankOrdersByProfit(t *testing.T) {
	rows := Rank(sampleSet())
	want := []string{"Best", "Mid", "Loss"}
	for i, name := range want {
		if rows[i].Strategy != name {
			t.Errorf("rank %d = %q, want %q", i, rows[i].Strategy, name)
		}
	}
}

func TestRankStableTiebreak(t *testing.T) {
	set := map[string]*domain.StrategyResult{
		"Bravo": result("Bravo", 5.0, 10, 50, 5, 1),
		"Alpha": result("Alpha", 5.0, 10, 50, 5, 1),
	}
	rows := Rank(set)
	if rows[0].Strategy != "Alpha" || rows[1].Strategy != "Bravo" {
		t.Errorf("tied rows = [%s %s], want name order", rows[0].Strategy, rows[1].Strategy)
	}
}

func ptrF(v float64) *float64 { return &v }
func ptrI(v int) *int         { return &v }

func TestFilterCriteria(t *testing.T) {
	rows := Rank(sampleSet())

	got := Filter(rows, Criteria{MinReturn: ptrF(0), MinTrades: ptrI(60)})
	if len(got) != 2 {
		t.Fatalf("filtered = %d rows, want 2", len(got))
	}
	for _, r := range got {
		if r.TotalProfitPercent < 0 || r.TotalTrades < 60 {
			t.Errorf("%s slipped through the filter", r.Strategy)
		}
	}

	got = Filter(rows, Criteria{MaxDrawdown: ptrF(9.0)})
	if len(got) != 1 || got[0].Strategy != "Best" {
		t.Errorf("drawdown filter = %v, want only Best", names(got))
	}

	if got := Filter(rows, Criteria{}); len(got) != 3 {
		t.Errorf("empty criteria filtered to %d rows, want all 3", len(got))
	}
}

func names(rows []*domain.StrategyResult) []string {
	var out []string
	for _, r := range rows {
		out = append(out, r.Strategy)
	}
	return out
}

func TestCriteriaString(t *testing.T) {
	if got := (Criteria{}).String(); got != "none" {
		t.Errorf("String = %q, want none", got)
	}
	c := Criteria{MinReturn: ptrF(10), MinTrades: ptrI(50)}
	got := c.String()
	if !strings.Contains(got, "return >= 10.00%") || !strings.Contains(got, "trades >= 50") {
		t.Errorf("String = %q", got)
	}
}

func TestWriteCSVRoundTrip(t *testing.T) {
	rows := Rank(sampleSet())
	path := filepath.Join(t.TempDir(), "cmp.csv")
	if err := WriteCSV(path, rows); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(recs) != 4 {
		t.Fatalf("csv rows = %d, want header + 3", len(recs))
	}
	if recs[0][0] != "strategy" {
		t.Errorf("header[0] = %q", recs[0][0])
	}
	if recs[1][0] != "Best" {
		t.Errorf("first data row = %q, want Best", recs[1][0])
	}
}

func TestWriteParquetRoundTrip(t *testing.T) {
	rows := Rank(sampleSet())
	path := filepath.Join(t.TempDir(), "cmp.parquet")
	if err := WriteParquet(path, rows); err != nil {
		t.Fatalf("WriteParquet: %v", err)
	}

	recs, err := ReadParquet(path)
	if err != nil {
		t.Fatalf("ReadParquet: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("parquet rows = %d, want 3", len(recs))
	}
	if recs[0].Strategy != "Best" || recs[0].TotalProfitPct != 25.0 {
		t.Errorf("first record = %+v, want Best at 25%%", recs[0])
	}
}

func TestGenerateWritesAllReports(t *testing.T) {
	store, err := results.NewStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	for name, r := range sampleSet() {
		if err := store.Save(name, r); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.SaveFailure("Broken", &domain.FailureRecord{
		Strategy: "Broken", Error: "boom", FailedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	rp := NewReporter(store, testLogger())
	written, err := rp.Generate(2)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(written) != 5 {
		t.Fatalf("written = %v, want 5 files (csv, parquet, summary, top, failed)", written)
	}
	for _, path := range written {
		info, err := os.Stat(path)
		if err != nil {
			t.Errorf("missing report file %s: %v", path, err)
			continue
		}
		if info.Size() == 0 {
			t.Errorf("empty report file %s", path)
		}
	}

	var summary string
	for _, path := range written {
		if strings.Contains(path, "summary_report_") {
			data, _ := os.ReadFile(path)
			summary = string(data)
		}
	}
	if !strings.Contains(summary, "Successful Backtests: 3") {
		t.Errorf("summary missing success count:\n%s", summary)
	}
	if !strings.Contains(summary, "Failed Backtests: 1") {
		t.Errorf("summary missing failure count:\n%s", summary)
	}
	if !strings.Contains(summary, "Best Strategy: Best (25.00%)") {
		t.Errorf("summary missing best strategy:\n%s", summary)
	}
}

func TestGenerateNoResults(t *testing.T) {
	store, err := results.NewStore(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	rp := NewReporter(store, testLogger())
	if _, err := rp.Generate(10); err == nil {
		t.Error("Generate with no results should fail")
	}
}

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

func TestBuildStatusClassifies(t *testing.T) {
	all := []string{"Done", "Broke", "Waiting"}
	successes := map[string]*domain.StrategyResult{"Done": result("Done", 10, 100, 55, 8, 1.5)}
	failures := []domain.FailureRecord{{Strategy: "Broke", Error: "no data"}}

	entries := BuildStatus(all, successes, failures)
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	byName := make(map[string]StatusEntry)
	for _, e := range entries {
		byName[e.Strategy] = e
	}
	if byName["Done"].Status != StatusCompleted || byName["Done"].ProfitPct != 10 {
		t.Errorf("Done = %+v", byName["Done"])
	}
	if byName["Broke"].Status != StatusFailed || byName["Broke"].Error != "no data" {
		t.Errorf("Broke = %+v", byName["Broke"])
	}
	if byName["Waiting"].Status != StatusPending {
		t.Errorf("Waiting = %+v", byName["Waiting"])
	}
}

func TestFormatStatusSummary(t *testing.T) {
	entries := []StatusEntry{
		{Strategy: "Done", Status: StatusCompleted, ProfitPct: 12.5, Trades: 80, WinRate: 55},
		{Strategy: "Broke", Status: StatusFailed, Error: "boom"},
		{Strategy: "Waiting", Status: StatusPending},
	}
	out := FormatStatus(entries, 10)

	for _, want := range []string{
		"Total: 3  Completed: 1  Failed: 1  Pending: 1",
		"Done",
		"boom",
		"Waiting",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteStatusCSV(t *testing.T) {
	entries := []StatusEntry{
		{Strategy: "Done", Status: StatusCompleted, ProfitPct: 12.5, Trades: 80, WinRate: 55, Timerange: "20240101-20241231"},
		{Strategy: "Waiting", Status: StatusPending},
	}
	path := filepath.Join(t.TempDir(), "status.csv")
	if err := WriteStatusCSV(path, entries); err != nil {
		t.Fatalf("WriteStatusCSV: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("csv rows = %d, want header + 2", len(recs))
	}
	if recs[1][1] != "completed" || recs[2][1] != "pending" {
		t.Errorf("statuses = %q/%q", recs[1][1], recs[2][1])
	}
}
