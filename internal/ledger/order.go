package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const orderColumns = `id, account_id, symbol, side, type, quantity, price,
	status, COALESCE(algorithm_id, ''), filled_at, created_at`

func scanOrder(scan func(dest ...interface{}) error) (*Order, error) {
	var o Order
	var price string
	var filledAt sql.NullTime
	err := scan(&o.ID, &o.AccountID, &o.Symbol, &o.Side, &o.Type, &o.Quantity,
		&price, &o.Status, &o.AlgorithmID, &filledAt, &o.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	o.Price = scanDecimal(price)
	if filledAt.Valid {
		t := filledAt.Time
		o.FilledAt = &t
	}
	return &o, nil
}

// InsertFilledOrderTx records a market order that filled instantly, inside a
// fill transaction. filled_at is set because status is filled.
func InsertFilledOrderTx(ctx context.Context, tx *sql.Tx, accountID int64, symbol, side string, quantity int64, price decimal.Decimal, algorithmID string) (int64, error) {
	var algo interface{}
	if algorithmID != "" {
		algo = algorithmID
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO orders (account_id, symbol, side, type, quantity, price, status, algorithm_id, filled_at)
		VALUES (?, ?, ?, 'market', ?, ?, 'filled', ?, ?)`,
		accountID, symbol, side, quantity, price.StringFixed(4), algo, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListOrders returns the most recent orders for an account.
func (s *Store) ListOrders(ctx context.Context, accountID int64, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE account_id = ? ORDER BY id DESC LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}
