package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

const backtestColumns = `id, user_id, algorithm_id, symbol, start_date, end_date,
	initial_capital, final_capital, total_return, total_return_percent,
	total_trades, winning_trades, losing_trades, win_rate, max_drawdown,
	sharpe_ratio, created_at`

func scanBacktest(scan func(dest ...interface{}) error) (*Backtest, error) {
	var b Backtest
	var initial, final, ret, retPct string
	err := scan(&b.ID, &b.UserID, &b.AlgorithmID, &b.Symbol, &b.StartDate, &b.EndDate,
		&initial, &final, &ret, &retPct,
		&b.TotalTrades, &b.WinningTrades, &b.LosingTrades, &b.WinRate,
		&b.MaxDrawdown, &b.SharpeRatio, &b.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.InitialCapital = scanDecimal(initial)
	b.FinalCapital = scanDecimal(final)
	b.TotalReturn = scanDecimal(ret)
	b.TotalReturnPercent = scanDecimal(retPct)
	return &b, nil
}

// InsertBacktest persists a completed run. Backtests are write-once.
func (s *Store) InsertBacktest(ctx context.Context, b *Backtest) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO backtests (user_id, algorithm_id, symbol, start_date, end_date,
			initial_capital, final_capital, total_return, total_return_percent,
			total_trades, winning_trades, losing_trades, win_rate, max_drawdown,
			sharpe_ratio, results_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.UserID, b.AlgorithmID, b.Symbol, b.StartDate.UTC(), b.EndDate.UTC(),
		b.InitialCapital.StringFixed(2), b.FinalCapital.StringFixed(2),
		b.TotalReturn.StringFixed(2), b.TotalReturnPercent.StringFixed(4),
		b.TotalTrades, b.WinningTrades, b.LosingTrades, b.WinRate, b.MaxDrawdown,
		b.SharpeRatio, b.ResultsJSON,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert backtest: %w", err)
	}
	return res.LastInsertId()
}

// GetBacktest returns one run, including the results blob, if owned by user.
func (s *Store) GetBacktest(ctx context.Context, id int64, userID string) (*Backtest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+backtestColumns+` FROM backtests WHERE id = ? AND user_id = ?`, id, userID)
	b, err := scanBacktest(row.Scan)
	if err != nil {
		return nil, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(results_json, '') FROM backtests WHERE id = ?`, id).Scan(&b.ResultsJSON)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBacktests returns runs for one algorithm, newest first, without the
// results blob.
func (s *Store) ListBacktests(ctx context.Context, algorithmID, userID string) ([]Backtest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+backtestColumns+` FROM backtests WHERE algorithm_id = ? AND user_id = ? ORDER BY id DESC`,
		algorithmID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var backtests []Backtest
	for rows.Next() {
		b, err := scanBacktest(rows.Scan)
		if err != nil {
			return nil, err
		}
		backtests = append(backtests, *b)
	}
	return backtests, rows.Err()
}
