package ledger

import (
	"context"
	"database/sql"
)

const transactionColumns = `id, account_id, type, amount, balance_after,
	COALESCE(symbol, ''), COALESCE(quantity, 0), COALESCE(price, '0'),
	COALESCE(order_id, 0), description, created_at`

func scanTransaction(scan func(dest ...interface{}) error) (*Transaction, error) {
	var t Transaction
	var amount, balanceAfter, price string
	err := scan(&t.ID, &t.AccountID, &t.Type, &amount, &balanceAfter,
		&t.Symbol, &t.Quantity, &price, &t.OrderID, &t.Description, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Amount = scanDecimal(amount)
	t.BalanceAfter = scanDecimal(balanceAfter)
	t.Price = scanDecimal(price)
	return &t, nil
}

// InsertTransactionTx appends a journal entry inside a fill transaction.
func InsertTransactionTx(ctx context.Context, tx *sql.Tx, t *Transaction) error {
	var symbol, orderID interface{}
	if t.Symbol != "" {
		symbol = t.Symbol
	}
	if t.OrderID != 0 {
		orderID = t.OrderID
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (account_id, type, amount, balance_after, symbol, quantity, price, order_id, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AccountID, t.Type, t.Amount.StringFixed(2), t.BalanceAfter.StringFixed(2),
		symbol, t.Quantity, t.Price.StringFixed(4), orderID, t.Description,
	)
	return err
}

// ListTransactions returns the most recent journal entries for an account.
func (s *Store) ListTransactions(ctx context.Context, accountID int64, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}
