package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultInitialBalance is credited to a paper account on first access.
var DefaultInitialBalance = decimal.NewFromInt(100000)

// dbtx is satisfied by both *sql.DB and *sql.Tx so the same queries serve
// plain reads and transactional fills.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const accountColumns = `id, user_id, balance, initial_balance, total_value, created_at, updated_at`

func scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var balance, initial, total string
	err := row.Scan(&a.ID, &a.UserID, &balance, &initial, &total, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Balance = scanDecimal(balance)
	a.InitialBalance = scanDecimal(initial)
	a.TotalValue = scanDecimal(total)
	return &a, nil
}

// GetOrCreateAccount returns the user's paper account, creating it with the
// default initial balance on first access.
func (s *Store) GetOrCreateAccount(ctx context.Context, userID string) (*Account, error) {
	acct, err := getAccountByUser(ctx, s.db, userID)
	if err == nil {
		return acct, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	// ON CONFLICT keeps concurrent first accesses from racing the insert.
	initial := DefaultInitialBalance.StringFixed(2)
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO paper_accounts (user_id, balance, initial_balance, total_value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, initial, initial, initial,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Infof("created paper account for user %s", userID)
	}
	return getAccountByUser(ctx, s.db, userID)
}

func getAccountByUser(ctx context.Context, q dbtx, userID string) (*Account, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM paper_accounts WHERE user_id = ?`, userID)
	return scanAccount(row)
}

// GetAccountTx reads an account inside a fill transaction.
func GetAccountTx(ctx context.Context, tx *sql.Tx, accountID int64) (*Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM paper_accounts WHERE id = ?`, accountID)
	return scanAccount(row)
}

// UpdateBalanceTx sets the cash balance inside a fill transaction.
func UpdateBalanceTx(ctx context.Context, tx *sql.Tx, accountID int64, balance decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE paper_accounts
		SET balance = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		balance.StringFixed(2), accountID,
	)
	return err
}

// UpdateTotalValue persists the derived balance + Σ market_value figure.
func (s *Store) UpdateTotalValue(ctx context.Context, accountID int64, totalValue decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE paper_accounts
		SET total_value = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		totalValue.StringFixed(2), accountID,
	)
	return err
}

// ResetAccountTx deletes all positions and transactions for the account and
// restores the balance to the initial balance, in the caller's transaction.
func ResetAccountTx(ctx context.Context, tx *sql.Tx, accountID int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE account_id = ?`, accountID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE account_id = ?`, accountID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE paper_accounts
		SET balance = initial_balance, total_value = initial_balance, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, accountID)
	return err
}
