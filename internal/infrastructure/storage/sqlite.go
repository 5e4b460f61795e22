package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vitos/crypto_market_maker/internal/domain"
)

// SQLiteStore journals strategy runs. Nothing here is read back by the engines;
// every invocation rebuilds its state from the exchange.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			position_qty REAL NOT NULL,
			avg_price REAL NOT NULL,
			realized_pnl REAL NOT NULL,
			deviation REAL NOT NULL,
			position_json TEXT NOT NULL,
			summary_json TEXT NOT NULL,
			params_json TEXT NOT NULL,
			errors_json TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol, started_at);`,
		`CREATE TABLE IF NOT EXISTS run_actions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL REFERENCES runs(id),
			type TEXT NOT NULL,
			side TEXT NOT NULL,
			order_id TEXT NOT NULL DEFAULT '',
			price REAL NOT NULL,
			quantity REAL NOT NULL,
			level INTEGER NOT NULL,
			reason TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			dry_run BOOLEAN NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_run_actions_run ON run_actions(run_id);`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to exec query %s: %w", q, err)
		}
	}
	return nil
}

// RunRepository Implementation

func (s *SQLiteStore) SaveRun(ctx context.Context, report *domain.RunReport) error {
	posJSON, err := json.Marshal(report.Position)
	if err != nil {
		return err
	}
	sumJSON, err := json.Marshal(report.Summary)
	if err != nil {
		return err
	}
	paramsJSON, err := json.Marshal(report.Params)
	if err != nil {
		return err
	}
	errs := report.Errors
	if errs == nil {
		errs = []string{}
	}
	errsJSON, err := json.Marshal(errs)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `INSERT INTO runs (symbol, started_at, finished_at, position_qty, avg_price, realized_pnl, deviation, position_json, summary_json, params_json, errors_json)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.Symbol, report.StartedAt, report.FinishedAt, report.Position.Quantity, report.Position.AveragePrice,
		report.Position.RealizedPnL, report.Params.Deviation, string(posJSON), string(sumJSON), string(paramsJSON), string(errsJSON))
	if err != nil {
		return err
	}
	runID, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, r := range report.Results {
		orderID := r.OrderID
		if orderID == "" {
			orderID = r.Action.OrderID
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_actions (run_id, type, side, order_id, price, quantity, level, reason, error, dry_run)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.Type, r.Side, orderID, r.Price, r.Quantity, r.Level, r.Reason, r.Error, r.DryRun); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	report.ID = runID
	return nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, symbol string, limit int) ([]*domain.RunReport, error) {
	query := `SELECT id, symbol, started_at, finished_at, position_json, summary_json, params_json, errors_json FROM runs WHERE symbol = ? ORDER BY id DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, symbol, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.RunReport
	for rows.Next() {
		var r domain.RunReport
		var posJSON, sumJSON, paramsJSON, errsJSON string
		if err := rows.Scan(&r.ID, &r.Symbol, &r.StartedAt, &r.FinishedAt, &posJSON, &sumJSON, &paramsJSON, &errsJSON); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(posJSON), &r.Position); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sumJSON), &r.Summary); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(paramsJSON), &r.Params); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(errsJSON), &r.Errors); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, r := range runs {
		results, err := s.listActions(ctx, r.ID, r.Symbol)
		if err != nil {
			return nil, err
		}
		r.Results = results
	}
	return runs, nil
}

func (s *SQLiteStore) listActions(ctx context.Context, runID int64, symbol string) ([]domain.ActionResult, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, side, order_id, price, quantity, level, reason, error, dry_run FROM run_actions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.ActionResult
	for rows.Next() {
		var r domain.ActionResult
		if err := rows.Scan(&r.Type, &r.Side, &r.OrderID, &r.Price, &r.Quantity, &r.Level, &r.Reason, &r.Error, &r.DryRun); err != nil {
			return nil, err
		}
		r.Action.OrderID = r.OrderID
		r.Symbol = symbol
		results = append(results, r)
	}
	return results, rows.Err()
}

var _ domain.RunRepository = (*SQLiteStore)(nil)
