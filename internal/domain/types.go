// Package domain defines the core types shared across the batch backtesting
// pipeline: run configurations, extracted metrics, and per-strategy results.
package domain

import "time"

// RunConfig is the parameter set that determines whether a persisted result
// is still valid for the current run. Two results computed under different
// window bounds are never interchangeable.
type RunConfig struct {
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	ConfigPath string `json:"config_path"`
	Timeframe  string `json:"timeframe,omitempty"`
}

// Matches reports whether a stored configuration is a valid cache key for the
// active one. Window bounds and engine config must agree; timeframe is
// per-strategy and deliberately excluded.
func (c RunConfig) Matches(other RunConfig) bool {
	return c.StartDate == other.StartDate &&
		c.EndDate == other.EndDate &&
		c.ConfigPath == other.ConfigPath
}

// Timerange returns the engine-facing "start-end" range string.
func (c RunConfig) Timerange() string {
	return c.StartDate + "-" + c.EndDate
}

// Metrics holds the performance numbers extracted from a single backtest.
// Every field defaults to its zero value; the parser never fails a whole
// result because one field could not be read.
type Metrics struct {
	Strategy           string  `json:"strategy"`
	TotalTrades        int     `json:"total_trades"`
	WinningTrades      int     `json:"winning_trades"`
	LosingTrades       int     `json:"losing_trades"`
	WinRate            float64 `json:"win_rate"`
	ProfitFactor       float64 `json:"profit_factor"`
	SharpeRatio        float64 `json:"sharpe_ratio"`
	MaxDrawdown        float64 `json:"max_drawdown"`
	AvgProfit          float64 `json:"avg_profit"`
	TotalProfitAbs     float64 `json:"total_profit_abs"`
	TotalProfitPercent float64 `json:"total_profit_percent"`
	AvgDuration        string  `json:"avg_duration"`
	BestPair           string  `json:"best_pair"`
	WorstPair          string  `json:"worst_pair"`
	BacktestStart      string  `json:"backtest_start"`
	BacktestEnd        string  `json:"backtest_end"`
	MarketChange       float64 `json:"market_change"`
	CAGR               float64 `json:"cagr"`
	Expectancy         float64 `json:"expectancy"`
	Sortino            float64 `json:"sortino"`
	Calmar             float64 `json:"calmar"`
	SQN                float64 `json:"sqn"`
}

// StrategyResult is the durable record of one successful backtest: metrics
// plus the metadata needed to decide cache validity on later runs.
type StrategyResult struct {
	Metrics

	ExecutionTime time.Duration `json:"execution_time_ns"`
	Timestamp     time.Time     `json:"backtest_timestamp"`
	Timeframe     string        `json:"detected_timeframe"`
	Config        RunConfig     `json:"backtest_config"`
	EngineVersion string        `json:"engine_version"`
	Command       string        `json:"command_executed"`
}

// FailureRecord is the durable record of one failed backtest attempt.
// Every failure path produces one; a failed strategy is never silently lost.
type FailureRecord struct {
	Strategy  string    `json:"strategy"`
	Error     string    `json:"error"`
	Stdout    string    `json:"stdout,omitempty"`
	Timeframe string    `json:"detected_timeframe,omitempty"`
	FailedAt  time.Time `json:"failed_timestamp"`
	Config    RunConfig `json:"backtest_config"`
}
