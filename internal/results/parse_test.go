package results

import (
	"testing"
)

const detailOutput = `
2024-06-01 12:00:00 - INFO - backtesting finished
│ Total trades                │ 352            │
│ Total profit %              │ 15.23%         │
│ Absolute profit             │ 152.30 USDT    │
│ Sharpe                      │ 1.87           │
│ Profit factor               │ 1.45           │
│ Best Pair                   │ BTC/USDT       │
│ Worst Pair                  │ DOGE/USDT      │
│ Max % of account underwater │ 12.50%         │
│ Market change               │ 8.00%          │
Backtested 2024-01-01 00:00:00 -> 2024-12-31 00:00:00
`

const summaryOutput = `
Result for strategy AlphaTrend
│ AlphaTrend │ 352 │ 0.45 │ 152.30 │ 15.23 │ 2:15:00 │ 352 2 303 53.6 │ 216.94 USDT 20.91% │
`

func TestParseDetailTable(t *testing.T) {
	m := Parse(detailOutput, "AlphaTrend")

	if m.Strategy != "AlphaTrend" {
		t.Errorf("Strategy = %q, want AlphaTrend", m.Strategy)
	}
	if m.TotalTrades != 352 {
		t.Errorf("TotalTrades = %d, want 352", m.TotalTrades)
	}
	if m.TotalProfitPercent != 15.23 {
		t.Errorf("TotalProfitPercent = %v, want 15.23", m.TotalProfitPercent)
	}
	if m.TotalProfitAbs != 152.30 {
		t.Errorf("TotalProfitAbs = %v, want 152.30", m.TotalProfitAbs)
	}
	if m.SharpeRatio != 1.87 {
		t.Errorf("SharpeRatio = %v, want 1.87", m.SharpeRatio)
	}
	if m.ProfitFactor != 1.45 {
		t.Errorf("ProfitFactor = %v, want 1.45", m.ProfitFactor)
	}
	if m.BestPair != "BTC/USDT" || m.WorstPair != "DOGE/USDT" {
		t.Errorf("pairs = %q/%q, want BTC/USDT / DOGE/USDT", m.BestPair, m.WorstPair)
	}
	if m.MaxDrawdown != 12.50 {
		t.Errorf("MaxDrawdown = %v, want 12.50", m.MaxDrawdown)
	}
	if m.MarketChange != 8.00 {
		t.Errorf("MarketChange = %v, want 8.00", m.MarketChange)
	}
	if m.BacktestStart != "2024-01-01 00:00:00" || m.BacktestEnd != "2024-12-31 00:00:00" {
		t.Errorf("date range = %q -> %q", m.BacktestStart, m.BacktestEnd)
	}
}

func TestParseSummaryTable(t *testing.T) {
	m := Parse(summaryOutput, "AlphaTrend")

	if m.TotalTrades != 352 {
		t.Errorf("TotalTrades = %d, want 352", m.TotalTrades)
	}
	if m.AvgProfit != 0.45 {
		t.Errorf("AvgProfit = %v, want 0.45", m.AvgProfit)
	}
	if m.TotalProfitAbs != 152.30 {
		t.Errorf("TotalProfitAbs = %v, want 152.30", m.TotalProfitAbs)
	}
	if m.TotalProfitPercent != 15.23 {
		t.Errorf("TotalProfitPercent = %v, want 15.23", m.TotalProfitPercent)
	}
	if m.AvgDuration != "2:15:00" {
		t.Errorf("AvgDuration = %q, want 2:15:00", m.AvgDuration)
	}
	if m.WinningTrades != 352 || m.LosingTrades != 303 {
		t.Errorf("win/loss = %d/%d, want 352/303", m.WinningTrades, m.LosingTrades)
	}
	if m.WinRate != 53.6 {
		t.Errorf("WinRate = %v, want 53.6", m.WinRate)
	}
}

// Equivalent numbers in either text layout must land on the same canonical
// fields.
func TestParseLayoutEquivalence(t *testing.T) {
	fromDetail := Parse(detailOutput, "AlphaTrend")
	fromSummary := Parse(summaryOutput, "AlphaTrend")

	if fromDetail.TotalTrades != fromSummary.TotalTrades {
		t.Errorf("TotalTrades differ: detail=%d summary=%d",
			fromDetail.TotalTrades, fromSummary.TotalTrades)
	}
	if fromDetail.TotalProfitPercent != fromSummary.TotalProfitPercent {
		t.Errorf("TotalProfitPercent differ: detail=%v summary=%v",
			fromDetail.TotalProfitPercent, fromSummary.TotalProfitPercent)
	}
}

// One malformed numeric field must not poison the rest of the parse.
func TestParseFieldIsolation(t *testing.T) {
	malformed := `
│ Total trades                │ 352            │
│ Total profit %              │ 15.23%         │
│ Sharpe                      │ not-a-number   │
│ Profit factor               │ 1.45           │
`
	m := Parse(malformed, "AlphaTrend")

	if m.SharpeRatio != 0 {
		t.Errorf("SharpeRatio = %v, want default 0 for malformed field", m.SharpeRatio)
	}
	if m.TotalTrades != 352 {
		t.Errorf("TotalTrades = %d, want 352 despite malformed sibling", m.TotalTrades)
	}
	if m.TotalProfitPercent != 15.23 {
		t.Errorf("TotalProfitPercent = %v, want 15.23 despite malformed sibling", m.TotalProfitPercent)
	}
	if m.ProfitFactor != 1.45 {
		t.Errorf("ProfitFactor = %v, want 1.45 despite malformed sibling", m.ProfitFactor)
	}
}

func TestParseGarbageNeverPanics(t *testing.T) {
	for _, out := range []string{"", "│││││", "no tables here", "│ Total profit % │"} {
		m := Parse(out, "X")
		if m.Strategy != "X" {
			t.Errorf("Strategy = %q, want X", m.Strategy)
		}
	}
}

func TestParseStructuredComparisonVariant(t *testing.T) {
	payload := []byte(`{
		"strategy": {"AlphaTrend": {}},
		"strategy_comparison": [{
			"trades": 352,
			"profit_total_pct": 15.23,
			"profit_total_abs": 152.30,
			"winrate": 0.536,
			"profit_factor": 1.45,
			"sharpe": 1.87,
			"max_drawdown_account": 0.125,
			"profit_mean_pct": 0.45,
			"cagr": 0.16,
			"sortino": 2.10,
			"calmar": 1.22,
			"sqn": 1.9,
			"wins": 189,
			"losses": 163,
			"duration_avg": "2:15:00"
		}],
		"backtest_start": "2024-01-01 00:00:00",
		"backtest_end": "2024-12-31 00:00:00",
		"market_change": 8.0,
		"best_pair": {"key": "BTC/USDT"},
		"worst_pair": {"key": "DOGE/USDT"}
	}`)

	m, ok := ParseStructured(payload, "AlphaTrend")
	if !ok {
		t.Fatal("ParseStructured rejected comparison-variant payload")
	}
	if m.TotalTrades != 352 {
		t.Errorf("TotalTrades = %d, want 352", m.TotalTrades)
	}
	if m.WinRate != 53.6 {
		t.Errorf("WinRate = %v, want 53.6 (converted to percent)", m.WinRate)
	}
	if m.MaxDrawdown != 12.5 {
		t.Errorf("MaxDrawdown = %v, want 12.5 (converted to percent)", m.MaxDrawdown)
	}
	if m.CAGR != 16.0 {
		t.Errorf("CAGR = %v, want 16.0 (converted to percent)", m.CAGR)
	}
	if m.WinningTrades != 189 || m.LosingTrades != 163 {
		t.Errorf("win/loss = %d/%d, want 189/163", m.WinningTrades, m.LosingTrades)
	}
	if m.BestPair != "BTC/USDT" {
		t.Errorf("BestPair = %q, want BTC/USDT", m.BestPair)
	}
}

func TestParseStructuredFlatVariant(t *testing.T) {
	payload := []byte(`{
		"strategy": {"AlphaTrend": {}},
		"total_trades": 100,
		"profit_total_pct": 7.5,
		"winrate": 0.60,
		"sharpe": 1.1,
		"max_drawdown_account": 0.08,
		"holding_avg": "4:00:00",
		"backtest_start": "2024-01-01 00:00:00",
		"backtest_end": "2024-12-31 00:00:00"
	}`)

	m, ok := ParseStructured(payload, "AlphaTrend")
	if !ok {
		t.Fatal("ParseStructured rejected flat-variant payload")
	}
	if m.TotalTrades != 100 {
		t.Errorf("TotalTrades = %d, want 100", m.TotalTrades)
	}
	if m.WinRate != 60.0 {
		t.Errorf("WinRate = %v, want 60.0", m.WinRate)
	}
	if m.WinningTrades != 60 || m.LosingTrades != 40 {
		t.Errorf("derived win/loss = %d/%d, want 60/40", m.WinningTrades, m.LosingTrades)
	}
	if m.AvgDuration != "4:00:00" {
		t.Errorf("AvgDuration = %q, want 4:00:00", m.AvgDuration)
	}
}

func TestParseStructuredRejectsUnknownShapes(t *testing.T) {
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"something_else": 1}`),
		[]byte(`{"strategy": {}, "neither": true}`),
	}
	for _, payload := range cases {
		if _, ok := ParseStructured(payload, "X"); ok {
			t.Errorf("ParseStructured accepted %q", payload)
		}
	}
}
