package ledger

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"
)

const positionColumns = `id, account_id, symbol, quantity, average_price,
	current_price, market_value, unrealized_pl, unrealized_pl_percent,
	created_at, updated_at`

func scanPosition(scan func(dest ...interface{}) error) (*Position, error) {
	var p Position
	var avg, cur, mv, pl, plPct string
	err := scan(&p.ID, &p.AccountID, &p.Symbol, &p.Quantity, &avg,
		&cur, &mv, &pl, &plPct, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.AveragePrice = scanDecimal(avg)
	p.CurrentPrice = scanDecimal(cur)
	p.MarketValue = scanDecimal(mv)
	p.UnrealizedPL = scanDecimal(pl)
	p.UnrealizedPLPercent = scanDecimal(plPct)
	return &p, nil
}

// GetPosition returns the position for (account, symbol), or ErrNotFound.
func (s *Store) GetPosition(ctx context.Context, accountID int64, symbol string) (*Position, error) {
	return getPosition(ctx, s.db, accountID, symbol)
}

// GetPositionTx is GetPosition inside a fill transaction.
func GetPositionTx(ctx context.Context, tx *sql.Tx, accountID int64, symbol string) (*Position, error) {
	return getPosition(ctx, tx, accountID, symbol)
}

func getPosition(ctx context.Context, q dbtx, accountID int64, symbol string) (*Position, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE account_id = ? AND symbol = ?`,
		accountID, symbol)
	return scanPosition(row.Scan)
}

// ListPositions returns all positions for an account, ordered by symbol.
func (s *Store) ListPositions(ctx context.Context, accountID int64) ([]Position, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE account_id = ? ORDER BY symbol`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		p, err := scanPosition(rows.Scan)
		if err != nil {
			return nil, err
		}
		positions = append(positions, *p)
	}
	return positions, rows.Err()
}

// UpsertPositionTx inserts or replaces the (account, symbol) position inside
// a fill transaction. Callers are responsible for quantity and average-price
// arithmetic; a quantity of zero must be expressed as DeletePositionTx.
func UpsertPositionTx(ctx context.Context, tx *sql.Tx, accountID int64, symbol string, quantity int64, averagePrice decimal.Decimal) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO positions (account_id, symbol, quantity, average_price)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			quantity = excluded.quantity,
			average_price = excluded.average_price,
			updated_at = CURRENT_TIMESTAMP`,
		accountID, symbol, quantity, averagePrice.StringFixed(4),
	)
	return err
}

// DeletePositionTx removes the position row, used when a sell brings the
// quantity to exactly zero.
func DeletePositionTx(ctx context.Context, tx *sql.Tx, accountID int64, symbol string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM positions WHERE account_id = ? AND symbol = ?`, accountID, symbol)
	return err
}

// UpdateMarketValues refreshes the derived pricing fields of one position.
// Cash and quantity are untouched.
func (s *Store) UpdateMarketValues(ctx context.Context, positionID int64, currentPrice, marketValue, unrealizedPL, unrealizedPLPercent decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE positions
		SET current_price = ?, market_value = ?, unrealized_pl = ?,
			unrealized_pl_percent = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		currentPrice.StringFixed(4), marketValue.StringFixed(2),
		unrealizedPL.StringFixed(2), unrealizedPLPercent.StringFixed(4), positionID,
	)
	return err
}
