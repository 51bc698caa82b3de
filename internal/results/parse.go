package results

import (
	"encoding/json"
	"strconv"
	"strings"

	"stratbatch/internal/domain"
)

// The engine reports the same logical metrics in several shapes: a labeled
// detail table, a per-strategy summary table (both box-drawing text), and two
// structured JSON schemas. Each shape gets its own parser; Parse and
// ParseStructured pick parsers by sniffing the payload, and every numeric
// conversion is isolated so one malformed field never poisons the rest.

// ---------------------------------------------------------------------------
// Loose numeric helpers
// ---------------------------------------------------------------------------

// looseFloat extracts a float from strings like "-5.32%", "123.45 USDT" or
// "1.87". Returns 0 and false when no leading numeric field is present.
func looseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	fields := strings.Fields(s)
	first := strings.TrimSuffix(fields[0], "%")
	v, err := strconv.ParseFloat(first, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func looseInt(s string) (int, bool) {
	v, ok := looseFloat(s)
	if !ok {
		return 0, false
	}
	return int(v), true
}

// ---------------------------------------------------------------------------
// Text layouts
// ---------------------------------------------------------------------------

// parseDetailTable reads labeled rows of the form "│ Label │ value │ ...".
func parseDetailTable(line string, m *domain.Metrics) {
	if !strings.Contains(line, "│") {
		return
	}
	parts := strings.Split(line, "│")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 4 {
		return
	}

	label, value := parts[1], parts[2]
	switch {
	case strings.Contains(label, "Total trades"):
		if v, ok := looseInt(value); ok {
			m.TotalTrades = v
		}
	case strings.Contains(label, "Total profit %"):
		if v, ok := looseFloat(value); ok {
			m.TotalProfitPercent = v
		}
	case strings.Contains(label, "Absolute profit"):
		if v, ok := looseFloat(value); ok {
			m.TotalProfitAbs = v
		}
	case strings.Contains(label, "Sharpe"):
		if v, ok := looseFloat(value); ok {
			m.SharpeRatio = v
		}
	case strings.Contains(label, "Profit factor"):
		if v, ok := looseFloat(value); ok {
			m.ProfitFactor = v
		}
	case strings.Contains(label, "Best Pair"):
		m.BestPair = value
	case strings.Contains(label, "Worst Pair"):
		m.WorstPair = value
	case strings.Contains(label, "Max % of account underwater"),
		strings.Contains(label, "Absolute Drawdown (Account)"):
		if strings.Contains(value, "%") {
			if v, ok := looseFloat(value); ok {
				m.MaxDrawdown = v
			}
		}
	case strings.Contains(label, "Market change"):
		if v, ok := looseFloat(value); ok {
			m.MarketChange = v
		}
	}
}

// parseSummaryRow reads the final per-strategy summary table row, keyed by
// the strategy identifier:
//
//	│ Name │ Trades │ Avg Profit % │ Tot Profit USDT │ Tot Profit % │ Avg Duration │ Win Draw Loss Win% │ Drawdown │
func parseSummaryRow(line, strategy string, m *domain.Metrics) {
	if !strings.Contains(line, strategy) || !strings.Contains(line, "│") {
		return
	}
	parts := strings.Split(line, "│")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 9 || parts[1] != strategy {
		return
	}

	if v, ok := looseInt(parts[2]); ok {
		m.TotalTrades = v
	}
	if v, ok := looseFloat(parts[3]); ok {
		m.AvgProfit = v
	}
	if v, ok := looseFloat(parts[4]); ok {
		m.TotalProfitAbs = v
	}
	if v, ok := looseFloat(parts[5]); ok {
		m.TotalProfitPercent = v
	}
	m.AvgDuration = parts[6]

	// "352 2 303 53.6" = wins, draws, losses, win rate.
	if stats := strings.Fields(parts[7]); len(stats) >= 4 {
		if v, err := strconv.Atoi(stats[0]); err == nil {
			m.WinningTrades = v
		}
		if v, err := strconv.Atoi(stats[2]); err == nil {
			m.LosingTrades = v
		}
		if v, err := strconv.ParseFloat(stats[3], 64); err == nil {
			m.WinRate = v
		}
	}
}

// parseDateRange reads the "Backtested 2024-01-01 00:00:00 -> 2024-12-31
// 00:00:00" line.
func parseDateRange(line string, m *domain.Metrics) {
	if !strings.Contains(line, "Backtested") || !strings.Contains(line, "->") {
		return
	}
	after := line[strings.Index(line, "Backtested")+len("Backtested"):]
	if i := strings.Index(after, "|"); i >= 0 {
		after = after[:i]
	}
	bounds := strings.SplitN(after, "->", 2)
	if len(bounds) != 2 {
		return
	}
	m.BacktestStart = strings.TrimSpace(bounds[0])
	m.BacktestEnd = strings.TrimSpace(bounds[1])
}

// Parse extracts metrics from the engine's free-form text output. It is a
// pure function and never fails: fields it cannot read stay at their zero
// defaults.
func Parse(output, strategy string) domain.Metrics {
	m := domain.Metrics{Strategy: strategy}

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		parseDetailTable(line, &m)
		parseSummaryRow(line, strategy, &m)
		parseDateRange(line, &m)
	}
	return m
}

// ---------------------------------------------------------------------------
// Structured layouts
// ---------------------------------------------------------------------------

// comparisonEntry is one row of the "strategy_comparison" schema.
type comparisonEntry struct {
	Trades             int     `json:"trades"`
	ProfitTotalPct     float64 `json:"profit_total_pct"`
	ProfitTotalAbs     float64 `json:"profit_total_abs"`
	Winrate            float64 `json:"winrate"`
	ProfitFactor       float64 `json:"profit_factor"`
	Sharpe             float64 `json:"sharpe"`
	MaxDrawdownAccount float64 `json:"max_drawdown_account"`
	ProfitMeanPct      float64 `json:"profit_mean_pct"`
	CAGR               float64 `json:"cagr"`
	Expectancy         float64 `json:"expectancy"`
	Sortino            float64 `json:"sortino"`
	Calmar             float64 `json:"calmar"`
	SQN                float64 `json:"sqn"`
	Wins               int     `json:"wins"`
	Losses             int     `json:"losses"`
	DurationAvg        string  `json:"duration_avg"`
}

// structuredRoot covers both structured schema variants.
type structuredRoot struct {
	Strategy           json.RawMessage   `json:"strategy"`
	StrategyComparison []comparisonEntry `json:"strategy_comparison"`

	// Flat-variant fields.
	TotalTrades        *int    `json:"total_trades"`
	ProfitTotalPct     float64 `json:"profit_total_pct"`
	ProfitTotalAbs     float64 `json:"profit_total_abs"`
	Winrate            float64 `json:"winrate"`
	ProfitFactor       float64 `json:"profit_factor"`
	Sharpe             float64 `json:"sharpe"`
	MaxDrawdownAccount float64 `json:"max_drawdown_account"`
	ProfitMeanPct      float64 `json:"profit_mean_pct"`
	CAGR               float64 `json:"cagr"`
	Expectancy         float64 `json:"expectancy"`
	Sortino            float64 `json:"sortino"`
	Calmar             float64 `json:"calmar"`
	SQN                float64 `json:"sqn"`
	HoldingAvg         string  `json:"holding_avg"`

	// Shared root-level fields.
	BacktestStart string  `json:"backtest_start"`
	BacktestEnd   string  `json:"backtest_end"`
	MarketChange  float64 `json:"market_change"`
	BestPair      keyed   `json:"best_pair"`
	WorstPair     keyed   `json:"worst_pair"`
}

type keyed struct {
	Key string `json:"key"`
}

// ParseStructured extracts metrics from a structured JSON payload. The
// second return value is false when the payload matches neither schema
// variant.
func ParseStructured(data []byte, strategy string) (domain.Metrics, bool) {
	var root structuredRoot
	if err := json.Unmarshal(data, &root); err != nil {
		return domain.Metrics{}, false
	}
	if len(root.Strategy) == 0 {
		return domain.Metrics{}, false
	}

	m := domain.Metrics{Strategy: strategy}
	m.BacktestStart = root.BacktestStart
	m.BacktestEnd = root.BacktestEnd
	m.MarketChange = root.MarketChange
	m.BestPair = root.BestPair.Key
	m.WorstPair = root.WorstPair.Key

	switch {
	case len(root.StrategyComparison) > 0:
		c := root.StrategyComparison[0]
		m.TotalTrades = c.Trades
		m.TotalProfitPercent = c.ProfitTotalPct
		m.TotalProfitAbs = c.ProfitTotalAbs
		m.WinRate = c.Winrate * 100
		m.ProfitFactor = c.ProfitFactor
		m.SharpeRatio = c.Sharpe
		m.MaxDrawdown = c.MaxDrawdownAccount * 100
		m.AvgProfit = c.ProfitMeanPct
		m.CAGR = c.CAGR * 100
		m.Expectancy = c.Expectancy
		m.Sortino = c.Sortino
		m.Calmar = c.Calmar
		m.SQN = c.SQN
		m.WinningTrades = c.Wins
		m.LosingTrades = c.Losses
		m.AvgDuration = c.DurationAvg
		return m, true

	case root.TotalTrades != nil:
		m.TotalTrades = *root.TotalTrades
		m.TotalProfitPercent = root.ProfitTotalPct
		m.TotalProfitAbs = root.ProfitTotalAbs
		m.WinRate = root.Winrate * 100
		m.ProfitFactor = root.ProfitFactor
		m.SharpeRatio = root.Sharpe
		m.MaxDrawdown = root.MaxDrawdownAccount * 100
		m.AvgProfit = root.ProfitMeanPct
		m.CAGR = root.CAGR
		m.Expectancy = root.Expectancy
		m.Sortino = root.Sortino
		m.Calmar = root.Calmar
		m.SQN = root.SQN
		m.AvgDuration = root.HoldingAvg
		// Wins and losses are derived; the flat schema reports only a rate.
		m.WinningTrades = int(float64(m.TotalTrades) * root.Winrate)
		m.LosingTrades = m.TotalTrades - m.WinningTrades
		return m, true
	}

	return domain.Metrics{}, false
}
