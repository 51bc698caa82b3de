// Package report turns collected backtest results into comparison and status
// reports: CSV and parquet exports, a summary statistics file, a top
// performers file, and per-strategy status listings.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"stratbatch/internal/domain"
	"stratbatch/internal/results"
)

// Criteria filters comparison rows. Nil fields are not applied.
type Criteria struct {
	MinReturn       *float64
	MinTrades       *int
	MaxDrawdown     *float64
	MinWinRate      *float64
	MinSharpe       *float64
	MinProfitFactor *float64
}

// String renders the active criteria for log lines and report headers.
func (c Criteria) String() string {
	var parts []string
	if c.MinReturn != nil {
		parts = append(parts, fmt.Sprintf("return >= %.2f%%", *c.MinReturn))
	}
	if c.MinTrades != nil {
		parts = append(parts, fmt.Sprintf("trades >= %d", *c.MinTrades))
	}
	if c.MaxDrawdown != nil {
		parts = append(parts, fmt.Sprintf("max_drawdown <= %.2f%%", *c.MaxDrawdown))
	}
	if c.MinWinRate != nil {
		parts = append(parts, fmt.Sprintf("win_rate >= %.1f%%", *c.MinWinRate))
	}
	if c.MinSharpe != nil {
		parts = append(parts, fmt.Sprintf("sharpe >= %.2f", *c.MinSharpe))
	}
	if c.MinProfitFactor != nil {
		parts = append(parts, fmt.Sprintf("profit_factor >= %.2f", *c.MinProfitFactor))
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

func (c Criteria) match(r *domain.StrategyResult) bool {
	if c.MinReturn != nil && r.TotalProfitPercent < *c.MinReturn {
		return false
	}
	if c.MinTrades != nil && r.TotalTrades < *c.MinTrades {
		return false
	}
	if c.MaxDrawdown != nil && r.MaxDrawdown > *c.MaxDrawdown {
		return false
	}
	if c.MinWinRate != nil && r.WinRate < *c.MinWinRate {
		return false
	}
	if c.MinSharpe != nil && r.SharpeRatio < *c.MinSharpe {
		return false
	}
	if c.MinProfitFactor != nil && r.ProfitFactor < *c.MinProfitFactor {
		return false
	}
	return true
}

// Reporter writes comparison reports into the results root.
type Reporter struct {
	store *results.Store
	log   *slog.Logger
}

// NewReporter returns a Reporter over the given store.
func NewReporter(store *results.Store, log *slog.Logger) *Reporter {
	return &Reporter{store: store, log: log.With("component", "report")}
}

// Rank sorts results by total profit percent, best first, name as the
// tiebreak so report ordering is stable.
func Rank(successes map[string]*domain.StrategyResult) []*domain.StrategyResult {
	rows := make([]*domain.StrategyResult, 0, len(successes))
	for _, r := range successes {
		rows = append(rows, r)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalProfitPercent != rows[j].TotalProfitPercent {
			return rows[i].TotalProfitPercent > rows[j].TotalProfitPercent
		}
		return rows[i].Strategy < rows[j].Strategy
	})
	return rows
}

// Filter returns the rows matching every set criterion, preserving order.
func Filter(rows []*domain.StrategyResult, c Criteria) []*domain.StrategyResult {
	var out []*domain.StrategyResult
	for _, r := range rows {
		if c.match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Generate collects all persisted results and writes the full report set:
// detailed CSV, parquet export, summary statistics, top performers, and a
// failed strategies report when any failures exist. Returns the written file
// paths.
func (rp *Reporter) Generate(topN int) ([]string, error) {
	successes, failures := rp.store.CollectAll()
	if len(successes) == 0 {
		return nil, fmt.Errorf("no successful results to compare")
	}

	rows := Rank(successes)
	stamp := time.Now().Format("20060102_150405")
	root := rp.store.Root()
	var written []string

	csvPath := filepath.Join(root, "strategy_comparison_"+stamp+".csv")
	if err := WriteCSV(csvPath, rows); err != nil {
		return written, err
	}
	written = append(written, csvPath)
	rp.log.Info("detailed CSV report saved", "path", csvPath)

	pqPath := filepath.Join(root, "strategy_comparison_"+stamp+".parquet")
	if err := WriteParquet(pqPath, rows); err != nil {
		return written, err
	}
	written = append(written, pqPath)
	rp.log.Info("parquet export saved", "path", pqPath)

	sumPath := filepath.Join(root, "summary_report_"+stamp+".txt")
	if err := writeSummary(sumPath, rows, len(failures)); err != nil {
		return written, err
	}
	written = append(written, sumPath)
	rp.log.Info("summary report saved", "path", sumPath)

	topPath := filepath.Join(root, fmt.Sprintf("top_%d_strategies_%s.txt", topN, stamp))
	if err := writeTopPerformers(topPath, rows, topN); err != nil {
		return written, err
	}
	written = append(written, topPath)
	rp.log.Info("top performers report saved", "path", topPath)

	if len(failures) > 0 {
		failPath := filepath.Join(root, "failed_strategies_report_"+stamp+".json")
		if err := writeJSONFile(failPath, failures); err != nil {
			return written, err
		}
		written = append(written, failPath)
		rp.log.Info("failed strategies report saved", "path", failPath, "count", len(failures))
	}
	return written, nil
}

// csvHeader is the column order for CSV and parquet exports.
var csvHeader = []string{
	"strategy", "total_trades", "winning_trades", "losing_trades", "win_rate",
	"total_profit_pct", "total_profit_abs", "avg_profit", "max_drawdown",
	"sharpe_ratio", "profit_factor", "cagr", "sortino", "calmar", "sqn",
	"expectancy", "market_change", "best_pair", "worst_pair", "avg_duration",
	"backtest_start", "backtest_end", "timeframe", "execution_seconds",
}

// WriteCSV writes one row per strategy in ranked order.
func WriteCSV(path string, rows []*domain.StrategyResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.Strategy,
			strconv.Itoa(r.TotalTrades),
			strconv.Itoa(r.WinningTrades),
			strconv.Itoa(r.LosingTrades),
			formatFloat(r.WinRate),
			formatFloat(r.TotalProfitPercent),
			formatFloat(r.TotalProfitAbs),
			formatFloat(r.AvgProfit),
			formatFloat(r.MaxDrawdown),
			formatFloat(r.SharpeRatio),
			formatFloat(r.ProfitFactor),
			formatFloat(r.CAGR),
			formatFloat(r.Sortino),
			formatFloat(r.Calmar),
			formatFloat(r.SQN),
			formatFloat(r.Expectancy),
			formatFloat(r.MarketChange),
			r.BestPair,
			r.WorstPair,
			r.AvgDuration,
			r.BacktestStart,
			r.BacktestEnd,
			r.Timeframe,
			formatFloat(r.ExecutionTime.Seconds()),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ComparisonRecord is the parquet schema for one ranked strategy.
type ComparisonRecord struct {
	Strategy         string  `parquet:"strategy"`
	TotalTrades      int64   `parquet:"total_trades"`
	WinRate          float64 `parquet:"win_rate"`
	TotalProfitPct   float64 `parquet:"total_profit_pct"`
	TotalProfitAbs   float64 `parquet:"total_profit_abs"`
	MaxDrawdown      float64 `parquet:"max_drawdown"`
	SharpeRatio      float64 `parquet:"sharpe_ratio"`
	ProfitFactor     float64 `parquet:"profit_factor"`
	CAGR             float64 `parquet:"cagr"`
	Expectancy       float64 `parquet:"expectancy"`
	Timeframe        string  `parquet:"timeframe"`
	BacktestStart    string  `parquet:"backtest_start"`
	BacktestEnd      string  `parquet:"backtest_end"`
	ExecutionSeconds float64 `parquet:"execution_seconds"`
}

// WriteParquet writes the ranked rows as a parquet file for downstream
// analysis tooling.
func WriteParquet(path string, rows []*domain.StrategyResult) error {
	records := make([]ComparisonRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, ComparisonRecord{
			Strategy:         r.Strategy,
			TotalTrades:      int64(r.TotalTrades),
			WinRate:          r.WinRate,
			TotalProfitPct:   r.TotalProfitPercent,
			TotalProfitAbs:   r.TotalProfitAbs,
			MaxDrawdown:      r.MaxDrawdown,
			SharpeRatio:      r.SharpeRatio,
			ProfitFactor:     r.ProfitFactor,
			CAGR:             r.CAGR,
			Expectancy:       r.Expectancy,
			Timeframe:        r.Timeframe,
			BacktestStart:    r.BacktestStart,
			BacktestEnd:      r.BacktestEnd,
			ExecutionSeconds: r.ExecutionTime.Seconds(),
		})
	}
	return parquet.WriteFile(path, records)
}

// ReadParquet loads a comparison export back, mostly for verification.
func ReadParquet(path string) ([]ComparisonRecord, error) {
	return parquet.ReadFile[ComparisonRecord](path)
}

// writeSummary writes aggregate statistics over the ranked rows.
func writeSummary(path string, rows []*domain.StrategyResult, failedCount int) error {
	var b strings.Builder
	total := len(rows) + failedCount

	fmt.Fprintf(&b, "STRATEGY BACKTESTING SUMMARY REPORT\n")
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "Test Period: %s to %s\n", rows[0].BacktestStart, rows[0].BacktestEnd)
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().Format("2006-01-02 15:04:05"))

	fmt.Fprintf(&b, "OVERVIEW:\n")
	fmt.Fprintf(&b, "Total Strategies Tested: %d\n", total)
	fmt.Fprintf(&b, "Successful Backtests: %d\n", len(rows))
	fmt.Fprintf(&b, "Failed Backtests: %d\n", failedCount)
	fmt.Fprintf(&b, "Success Rate: %.1f%%\n\n", float64(len(rows))/float64(total)*100)

	returns := make([]float64, len(rows))
	profitable := 0
	var trades, winRate, drawdown, sharpe, pf float64
	for i, r := range rows {
		returns[i] = r.TotalProfitPercent
		if r.TotalProfitPercent > 0 {
			profitable++
		}
		trades += float64(r.TotalTrades)
		winRate += r.WinRate
		drawdown += r.MaxDrawdown
		sharpe += r.SharpeRatio
		pf += r.ProfitFactor
	}
	n := float64(len(rows))

	fmt.Fprintf(&b, "PERFORMANCE STATISTICS:\n")
	fmt.Fprintf(&b, "Best Strategy: %s (%.2f%%)\n", rows[0].Strategy, rows[0].TotalProfitPercent)
	fmt.Fprintf(&b, "Worst Strategy: %s (%.2f%%)\n", rows[len(rows)-1].Strategy, rows[len(rows)-1].TotalProfitPercent)
	fmt.Fprintf(&b, "Average Return: %.2f%%\n", mean(returns))
	fmt.Fprintf(&b, "Median Return: %.2f%%\n", median(returns))
	fmt.Fprintf(&b, "Standard Deviation: %.2f%%\n\n", stddev(returns))

	fmt.Fprintf(&b, "PROFITABLE STRATEGIES:\n")
	fmt.Fprintf(&b, "Count: %d (%.1f%%)\n\n", profitable, float64(profitable)/n*100)

	fmt.Fprintf(&b, "TRADING ACTIVITY:\n")
	fmt.Fprintf(&b, "Average Trades per Strategy: %.1f\n", trades/n)
	fmt.Fprintf(&b, "Average Win Rate: %.1f%%\n", winRate/n)
	fmt.Fprintf(&b, "Average Max Drawdown: %.2f%%\n\n", drawdown/n)

	fmt.Fprintf(&b, "RISK METRICS:\n")
	fmt.Fprintf(&b, "Average Sharpe Ratio: %.2f\n", sharpe/n)
	fmt.Fprintf(&b, "Average Profit Factor: %.2f\n", pf/n)

	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// writeTopPerformers writes the ranked head of the result set.
func writeTopPerformers(path string, rows []*domain.StrategyResult, topN int) error {
	if topN > len(rows) {
		topN = len(rows)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TOP %d PERFORMING STRATEGIES\n", topN)
	fmt.Fprintf(&b, "%s\n\n", strings.Repeat("=", 60))

	for i, r := range rows[:topN] {
		fmt.Fprintf(&b, "%2d. %s\n", i+1, r.Strategy)
		fmt.Fprintf(&b, "     Total Profit: %8.2f%%\n", r.TotalProfitPercent)
		fmt.Fprintf(&b, "     Total Trades: %8d\n", r.TotalTrades)
		fmt.Fprintf(&b, "     Win Rate:     %8.1f%%\n", r.WinRate)
		fmt.Fprintf(&b, "     Max Drawdown: %8.2f%%\n", r.MaxDrawdown)
		fmt.Fprintf(&b, "     Sharpe Ratio: %8.2f\n", r.SharpeRatio)
		fmt.Fprintf(&b, "     Timeframe:    %8s\n\n", r.Timeframe)
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

func writeJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		sum += (x - m) * (x - m)
	}
	return math.Sqrt(sum / float64(len(xs)-1))
}
