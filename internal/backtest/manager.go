package backtest

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/tconn93/Day-trader/internal/ledger"
)

// Manager bounds how many backtests run at once so a burst of submissions
// cannot starve the live engine of CPU or database throughput.
type Manager struct {
	engine *Engine
	sem    *semaphore.Weighted
}

func NewManager(engine *Engine, maxConcurrent int64) *Manager {
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	return &Manager{
		engine: engine,
		sem:    semaphore.NewWeighted(maxConcurrent),
	}
}

// Submit runs the backtest, waiting for a worker slot. The ctx deadline
// bounds both the wait and the run.
func (m *Manager) Submit(ctx context.Context, req Request) (*ledger.Backtest, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer m.sem.Release(1)
	return m.engine.Run(ctx, req)
}
