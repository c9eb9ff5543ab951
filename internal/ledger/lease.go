package ledger

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrLeaseHeld is returned when another owner holds a live lease on the
// algorithm.
var ErrLeaseHeld = errors.New("lease held")

// RunLease is one row of the running_algorithms table: which replica is
// executing an algorithm and until when its claim is valid.
type RunLease struct {
	AlgorithmID  string    `json:"algorithm_id"`
	UserID       string    `json:"user_id"`
	Symbols      []string  `json:"symbols"`
	Owner        string    `json:"owner"`
	StartedAt    time.Time `json:"started_at"`
	LeaseExpires time.Time `json:"lease_expires"`
}

// AcquireRunLease claims an algorithm for owner until expires. A live lease
// held by a different owner fails with ErrLeaseHeld; an expired one is taken
// over.
func (s *Store) AcquireRunLease(ctx context.Context, algorithmID, userID string, symbols []string, owner string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO running_algorithms (algorithm_id, user_id, symbols, owner, lease_expires)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (algorithm_id) DO UPDATE SET
			user_id = excluded.user_id,
			symbols = excluded.symbols,
			owner = excluded.owner,
			started_at = CURRENT_TIMESTAMP,
			lease_expires = excluded.lease_expires
		WHERE running_algorithms.owner = excluded.owner
			OR running_algorithms.lease_expires < ?`,
		algorithmID, userID, strings.Join(symbols, ","), owner,
		expires.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLeaseHeld
	}
	return nil
}

// RenewRunLease extends the owner's claim.
func (s *Store) RenewRunLease(ctx context.Context, algorithmID, owner string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE running_algorithms SET lease_expires = ? WHERE algorithm_id = ? AND owner = ?`,
		expires.UTC(), algorithmID, owner)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseRunLease drops the claim. Releasing a lease that is absent or held
// elsewhere is a no-op.
func (s *Store) ReleaseRunLease(ctx context.Context, algorithmID, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM running_algorithms WHERE algorithm_id = ? AND owner = ?`,
		algorithmID, owner)
	return err
}

// ListRunLeases returns all unexpired leases.
func (s *Store) ListRunLeases(ctx context.Context) ([]RunLease, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT algorithm_id, user_id, symbols, owner, started_at, lease_expires
		FROM running_algorithms WHERE lease_expires >= ? ORDER BY started_at`,
		time.Now().UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var leases []RunLease
	for rows.Next() {
		var l RunLease
		var symbols string
		if err := rows.Scan(&l.AlgorithmID, &l.UserID, &symbols, &l.Owner, &l.StartedAt, &l.LeaseExpires); err != nil {
			return nil, err
		}
		if symbols != "" {
			l.Symbols = strings.Split(symbols, ",")
		}
		leases = append(leases, l)
	}
	return leases, rows.Err()
}
