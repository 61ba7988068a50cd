// Package store is the sqlite persistence layer. Every cycle, decision,
// execution and LLM call is recorded append-only for dashboards and
// post-hoc analysis.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var db *sql.DB

func Init(dataDir string) error {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "agent.db")
	var err error
	db, err = sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func GetDB() *sql.DB {
	return db
}

func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

func migrate() error {
	migrations := []string{
		// Trade lifecycle records; repaired by the history reconciler.
		`CREATE TABLE IF NOT EXISTS trades (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol TEXT NOT NULL,
			direction TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL DEFAULT 0,
			size REAL NOT NULL,
			size_usd REAL DEFAULT 0,
			leverage INTEGER DEFAULT 1,
			stop_loss_price REAL DEFAULT 0,
			take_profit_price REAL DEFAULT 0,
			pnl REAL DEFAULT 0,
			pnl_pct REAL DEFAULT 0,
			fees_usd REAL DEFAULT 0,
			duration_minutes REAL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'open',
			exit_reason TEXT DEFAULT '',
			order_id INTEGER DEFAULT 0,
			operation_id INTEGER DEFAULT 0,
			opened_at DATETIME NOT NULL,
			closed_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_status ON trades(symbol, status)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_opened ON trades(opened_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_order ON trades(order_id)`,

		// One row per orchestrator step, append-only.
		`CREATE TABLE IF NOT EXISTS bot_operations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			symbol TEXT DEFAULT '',
			operation TEXT NOT NULL,
			status TEXT NOT NULL,
			detail TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_cycle ON bot_operations(cycle_id)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_created ON bot_operations(created_at DESC)`,

		// Full LLM exchange per decision, for audit.
		`CREATE TABLE IF NOT EXISTS ai_contexts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id TEXT NOT NULL,
			phase TEXT NOT NULL,
			model TEXT NOT NULL,
			system_prompt TEXT NOT NULL,
			user_prompt TEXT NOT NULL,
			raw_response TEXT DEFAULT '',
			reasoning TEXT DEFAULT '',
			decision TEXT NOT NULL,
			fallback BOOLEAN DEFAULT 0,
			duration_ms INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_contexts_cycle ON ai_contexts(cycle_id)`,

		// Account equity over time.
		`CREATE TABLE IF NOT EXISTS account_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			balance_usd REAL NOT NULL,
			perps_balance_usd REAL DEFAULT 0,
			spot_balance_usd REAL DEFAULT 0,
			unrealized_pnl REAL DEFAULT 0,
			open_positions INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_created ON account_snapshots(created_at DESC)`,

		// Per-snapshot view of what was open at observation time.
		`CREATE TABLE IF NOT EXISTS open_positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			snapshot_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			size REAL NOT NULL,
			entry_price REAL DEFAULT 0,
			mark_price REAL DEFAULT 0,
			pnl_usd REAL DEFAULT 0,
			leverage INTEGER DEFAULT 1,
			FOREIGN KEY (snapshot_id) REFERENCES account_snapshots(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_open_positions_snapshot ON open_positions(snapshot_id)`,

		// Screener runs and the per-coin scores behind them.
		`CREATE TABLE IF NOT EXISTS coin_screenings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			screening_type TEXT NOT NULL,
			selected_coins TEXT NOT NULL,
			excluded_coins TEXT DEFAULT '[]',
			excluded_count INTEGER DEFAULT 0,
			next_rebalance DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS coin_scores_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			screening_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			score REAL NOT NULL,
			rank INTEGER NOT NULL,
			factors TEXT DEFAULT '{}',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (screening_id) REFERENCES coin_screenings(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_scores_screening ON coin_scores_history(screening_id)`,

		// Token spend per model call.
		`CREATE TABLE IF NOT EXISTS llm_usage (
			id TEXT PRIMARY KEY,
			model TEXT NOT NULL,
			operation TEXT NOT NULL,
			ticker TEXT DEFAULT '',
			cycle_id TEXT DEFAULT '',
			prompt_tokens INTEGER DEFAULT 0,
			completion_tokens INTEGER DEFAULT 0,
			total_tokens INTEGER DEFAULT 0,
			response_time_ms INTEGER DEFAULT 0,
			input_cost_usd REAL DEFAULT 0,
			output_cost_usd REAL DEFAULT 0,
			total_cost_usd REAL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_cycle ON llm_usage(cycle_id)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_created ON llm_usage(created_at DESC)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
