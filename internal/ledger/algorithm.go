package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

const algorithmColumns = `id, user_id, name, description, is_active, created_at, updated_at`

func scanAlgorithm(scan func(dest ...interface{}) error) (*Algorithm, error) {
	var a Algorithm
	err := scan(&a.ID, &a.UserID, &a.Name, &a.Description, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAlgorithm inserts a new algorithm for the user and returns it.
func (s *Store) CreateAlgorithm(ctx context.Context, userID, name, description string) (*Algorithm, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trading_algorithms (id, user_id, name, description, is_active)
		VALUES (?, ?, ?, ?, 0)`,
		id, userID, name, description,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create algorithm: %w", err)
	}
	return s.GetAlgorithm(ctx, id, userID)
}

// GetAlgorithm returns the algorithm if it exists and belongs to the user.
func (s *Store) GetAlgorithm(ctx context.Context, id, userID string) (*Algorithm, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+algorithmColumns+` FROM trading_algorithms WHERE id = ? AND user_id = ?`,
		id, userID)
	return scanAlgorithm(row.Scan)
}

// ListAlgorithms returns the user's algorithms, newest first.
func (s *Store) ListAlgorithms(ctx context.Context, userID string) ([]Algorithm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+algorithmColumns+` FROM trading_algorithms WHERE user_id = ? ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var algos []Algorithm
	for rows.Next() {
		a, err := scanAlgorithm(rows.Scan)
		if err != nil {
			return nil, err
		}
		algos = append(algos, *a)
	}
	return algos, rows.Err()
}

// UpdateAlgorithm changes name and description.
func (s *Store) UpdateAlgorithm(ctx context.Context, id, userID, name, description string) (*Algorithm, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trading_algorithms
		SET name = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		name, description, id, userID,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetAlgorithm(ctx, id, userID)
}

// ToggleAlgorithm flips is_active and returns the updated row.
func (s *Store) ToggleAlgorithm(ctx context.Context, id, userID string) (*Algorithm, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE trading_algorithms
		SET is_active = NOT is_active, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetAlgorithm(ctx, id, userID)
}

// DeleteAlgorithm removes the algorithm; its rules cascade-delete.
func (s *Store) DeleteAlgorithm(ctx context.Context, id, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM trading_algorithms WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
