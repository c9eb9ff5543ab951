package ledger

import (
	"context"
	"database/sql"
)

// EnsureUser inserts the user row if it does not exist. The API layer calls
// this when a bearer token for an unseen subject arrives; registration itself
// lives outside this service.
func (s *Store) EnsureUser(ctx context.Context, id, email string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email) VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING`,
		id, email,
	)
	return err
}

// GetUser returns a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
