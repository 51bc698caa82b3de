package results

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"stratbatch/internal/domain"
)

// Index is a sqlite mirror of the flat result cache: one row per strategy,
// upserted on every save. It backs the status and comparison tools' queries
// and the previously-successful discovery mode without a full directory
// scan. The JSON layout stays authoritative; the index is rebuilt for free
// as results are re-saved.
type Index struct {
	db *sql.DB
}

const indexSchema = `
CREATE TABLE IF NOT EXISTS runs (
	strategy     TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	profit_pct   REAL NOT NULL DEFAULT 0,
	trades       INTEGER NOT NULL DEFAULT 0,
	win_rate     REAL NOT NULL DEFAULT 0,
	max_drawdown REAL NOT NULL DEFAULT 0,
	start_date   TEXT NOT NULL DEFAULT '',
	end_date     TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	recorded_at  TEXT NOT NULL DEFAULT ''
);
`

// RunRow is one indexed run record.
type RunRow struct {
	Strategy    string
	Status      string // "success" or "failed"
	ProfitPct   float64
	Trades      int
	WinRate     float64
	MaxDrawdown float64
	StartDate   string
	EndDate     string
	Error       string
	RecordedAt  string
}

// OpenIndex opens (or creates) the run index database at dbPath.
func OpenIndex(dbPath string) (*Index, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating runs table: %w", err)
	}
	return &Index{db: db}, nil
}

// Close closes the underlying database connection.
func (ix *Index) Close() error {
	return ix.db.Close()
}

const upsertRun = `
INSERT INTO runs (strategy, status, profit_pct, trades, win_rate, max_drawdown, start_date, end_date, error, recorded_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(strategy) DO UPDATE SET
	status = excluded.status,
	profit_pct = excluded.profit_pct,
	trades = excluded.trades,
	win_rate = excluded.win_rate,
	max_drawdown = excluded.max_drawdown,
	start_date = excluded.start_date,
	end_date = excluded.end_date,
	error = excluded.error,
	recorded_at = excluded.recorded_at
`

// RecordSuccess upserts a successful run.
func (ix *Index) RecordSuccess(res *domain.StrategyResult) error {
	_, err := ix.db.Exec(upsertRun,
		res.Strategy, "success",
		res.TotalProfitPercent, res.TotalTrades, res.WinRate, res.MaxDrawdown,
		res.Config.StartDate, res.Config.EndDate,
		"", res.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	)
	return err
}

// RecordFailure upserts a failed run.
func (ix *Index) RecordFailure(fr *domain.FailureRecord) error {
	_, err := ix.db.Exec(upsertRun,
		fr.Strategy, "failed",
		0.0, 0, 0.0, 0.0,
		fr.Config.StartDate, fr.Config.EndDate,
		fr.Error, fr.FailedAt.Format("2006-01-02T15:04:05Z07:00"),
	)
	return err
}

// Successful returns the strategies whose latest indexed run succeeded,
// sorted by name.
func (ix *Index) Successful() ([]string, error) {
	rows, err := ix.db.Query(`SELECT strategy FROM runs WHERE status = 'success' ORDER BY strategy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// All returns every indexed run sorted by name.
func (ix *Index) All() ([]RunRow, error) {
	rows, err := ix.db.Query(`
		SELECT strategy, status, profit_pct, trades, win_rate, max_drawdown,
		       start_date, end_date, error, recorded_at
		FROM runs ORDER BY strategy`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.Strategy, &r.Status, &r.ProfitPct, &r.Trades, &r.WinRate,
			&r.MaxDrawdown, &r.StartDate, &r.EndDate, &r.Error, &r.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
