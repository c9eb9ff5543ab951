package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when an entity does not exist or is not owned by
// the caller.
var ErrNotFound = errors.New("not found")

// Store owns the ledger database. All persistent state — accounts, positions,
// orders, transactions, algorithms, rules, backtests — lives here.
type Store struct {
	db     *sql.DB
	logger *logrus.Entry
}

// Open creates or opens the ledger database under dataDir and applies the
// schema.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "daytrader.db")
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite serializes writers; a single connection avoids SQLITE_BUSY
	// churn under concurrent engine ticks.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, logger: logrus.WithField("component", "ledger")}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	s.logger.Infof("ledger opened at %s", dbPath)
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a single database transaction, rolling back on error
// or panic. Fill operations must go through here so that order, balance,
// position and journal writes commit or roll back together.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Errorf("rollback failed: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			display_name TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS watchlist (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, symbol),
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS trading_algorithms (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT DEFAULT '',
			is_active BOOLEAN DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS algorithm_rules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			algorithm_id TEXT NOT NULL,
			rule_type TEXT NOT NULL,
			condition_field TEXT NOT NULL,
			condition_operator TEXT NOT NULL,
			condition_value TEXT NOT NULL,
			action TEXT NOT NULL,
			order_index INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (algorithm_id) REFERENCES trading_algorithms(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS paper_accounts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL UNIQUE,
			balance NUMERIC(15,2) NOT NULL,
			initial_balance NUMERIC(15,2) NOT NULL,
			total_value NUMERIC(15,2) NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,

		`CREATE TABLE IF NOT EXISTS positions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			average_price NUMERIC(10,2) NOT NULL,
			current_price NUMERIC(10,2) DEFAULT 0,
			market_value NUMERIC(15,2) DEFAULT 0,
			unrealized_pl NUMERIC(15,2) DEFAULT 0,
			unrealized_pl_percent NUMERIC(10,2) DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (account_id, symbol),
			FOREIGN KEY (account_id) REFERENCES paper_accounts(id)
		)`,

		`CREATE TABLE IF NOT EXISTS orders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'market',
			quantity INTEGER NOT NULL,
			price NUMERIC(10,2) NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			algorithm_id TEXT,
			filled_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (account_id) REFERENCES paper_accounts(id)
		)`,

		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			account_id INTEGER NOT NULL,
			type TEXT NOT NULL,
			amount NUMERIC(15,2) NOT NULL,
			balance_after NUMERIC(15,2) NOT NULL,
			symbol TEXT,
			quantity INTEGER,
			price NUMERIC(10,2),
			order_id INTEGER,
			description TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (account_id) REFERENCES paper_accounts(id)
		)`,

		`CREATE TABLE IF NOT EXISTS backtests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			algorithm_id TEXT NOT NULL,
			symbol TEXT NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			initial_capital NUMERIC(15,2) NOT NULL,
			final_capital NUMERIC(15,2) NOT NULL,
			total_return NUMERIC(15,2) NOT NULL,
			total_return_percent NUMERIC(10,2) NOT NULL,
			total_trades INTEGER NOT NULL,
			winning_trades INTEGER NOT NULL,
			losing_trades INTEGER NOT NULL,
			win_rate REAL NOT NULL,
			max_drawdown REAL NOT NULL,
			sharpe_ratio REAL NOT NULL,
			results_json TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id),
			FOREIGN KEY (algorithm_id) REFERENCES trading_algorithms(id)
		)`,

		`CREATE TABLE IF NOT EXISTS running_algorithms (
			algorithm_id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			symbols TEXT NOT NULL,
			owner TEXT NOT NULL,
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			lease_expires DATETIME NOT NULL,
			FOREIGN KEY (algorithm_id) REFERENCES trading_algorithms(id) ON DELETE CASCADE
		)`,

		`CREATE INDEX IF NOT EXISTS idx_rules_algorithm ON algorithm_rules(algorithm_id)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_account ON orders(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id)`,
		`CREATE INDEX IF NOT EXISTS idx_backtests_algorithm ON backtests(algorithm_id)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// scanDecimal parses a NUMERIC column read back as text. Malformed values
// surface as zero; the schema only ever stores decimal.String() output.
func scanDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
