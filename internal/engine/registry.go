package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tconn93/Day-trader/internal/ledger"
)

// ErrAlreadyRunning is returned when an algorithm is started twice.
var ErrAlreadyRunning = errors.New("algorithm already running")

// Running describes one live algorithm registration.
type Running struct {
	AlgorithmID string    `json:"algorithm_id"`
	UserID      string    `json:"user_id"`
	Symbols     []string  `json:"symbols"`
	StartedAt   time.Time `json:"started_at"`
	LastCheck   time.Time `json:"last_check,omitempty"`
}

// Registry tracks which algorithms are live. The in-memory implementation
// covers single-process deployments; the store-backed one coordinates
// replicas through leased database rows.
type Registry interface {
	Acquire(ctx context.Context, run Running) error
	Touch(ctx context.Context, algorithmID string) error
	Release(ctx context.Context, algorithmID string) error
	List(ctx context.Context) ([]Running, error)
}

// InMemoryRegistry is a mutex-guarded map of running algorithms.
type InMemoryRegistry struct {
	mu   sync.RWMutex
	runs map[string]Running
}

func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{runs: make(map[string]Running)}
}

func (r *InMemoryRegistry) Acquire(_ context.Context, run Running) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.runs[run.AlgorithmID]; ok {
		return ErrAlreadyRunning
	}
	run.StartedAt = time.Now().UTC()
	r.runs[run.AlgorithmID] = run
	return nil
}

func (r *InMemoryRegistry) Touch(_ context.Context, algorithmID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[algorithmID]
	if !ok {
		return ledger.ErrNotFound
	}
	run.LastCheck = time.Now().UTC()
	r.runs[algorithmID] = run
	return nil
}

func (r *InMemoryRegistry) Release(_ context.Context, algorithmID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.runs, algorithmID)
	return nil
}

func (r *InMemoryRegistry) List(_ context.Context) ([]Running, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Running, 0, len(r.runs))
	for _, run := range r.runs {
		out = append(out, run)
	}
	return out, nil
}

// leaseTTL bounds how long a crashed replica keeps an algorithm claimed.
const leaseTTL = 5 * time.Minute

// StoreRegistry registers runs as leased rows so that replicas sharing one
// database never double-run an algorithm. Leases are renewed on every tick
// via Touch and expire on their own after a crash.
type StoreRegistry struct {
	store *ledger.Store
	owner string
}

func NewStoreRegistry(store *ledger.Store, owner string) *StoreRegistry {
	return &StoreRegistry{store: store, owner: owner}
}

func (r *StoreRegistry) Acquire(ctx context.Context, run Running) error {
	err := r.store.AcquireRunLease(ctx, run.AlgorithmID, run.UserID, run.Symbols,
		r.owner, time.Now().UTC().Add(leaseTTL))
	if errors.Is(err, ledger.ErrLeaseHeld) {
		return ErrAlreadyRunning
	}
	return err
}

func (r *StoreRegistry) Touch(ctx context.Context, algorithmID string) error {
	return r.store.RenewRunLease(ctx, algorithmID, r.owner, time.Now().UTC().Add(leaseTTL))
}

func (r *StoreRegistry) Release(ctx context.Context, algorithmID string) error {
	return r.store.ReleaseRunLease(ctx, algorithmID, r.owner)
}

func (r *StoreRegistry) List(ctx context.Context) ([]Running, error) {
	leases, err := r.store.ListRunLeases(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Running, 0, len(leases))
	for _, l := range leases {
		out = append(out, Running{
			AlgorithmID: l.AlgorithmID,
			UserID:      l.UserID,
			Symbols:     l.Symbols,
			StartedAt:   l.StartedAt,
		})
	}
	return out, nil
}
