package ledger

import "context"

// AddToWatchlist records a symbol on the user's watchlist. Duplicate adds
// are ignored.
func (s *Store) AddToWatchlist(ctx context.Context, userID, symbol string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watchlist (user_id, symbol) VALUES (?, ?)
		ON CONFLICT (user_id, symbol) DO NOTHING`,
		userID, symbol,
	)
	return err
}

// ListWatchlist returns the user's watched symbols in insertion order.
func (s *Store) ListWatchlist(ctx context.Context, userID string) ([]WatchlistEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, symbol, created_at FROM watchlist WHERE user_id = ? ORDER BY id`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []WatchlistEntry
	for rows.Next() {
		var e WatchlistEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Symbol, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RemoveFromWatchlist deletes one watched symbol.
func (s *Store) RemoveFromWatchlist(ctx context.Context, userID, symbol string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE user_id = ? AND symbol = ?`, userID, symbol)
	return err
}
