// Package engine runs active algorithms on a periodic cadence: each
// started algorithm gets its own ticker goroutine that pulls quotes,
// evaluates the algorithm's rules in order, and submits resulting fills
// to the bookkeeper.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tconn93/Day-trader/internal/ledger"
	"github.com/tconn93/Day-trader/internal/marketdata"
	"github.com/tconn93/Day-trader/internal/marketdata/indicator"
	"github.com/tconn93/Day-trader/internal/portfolio"
	"github.com/tconn93/Day-trader/internal/rules"
)

var (
	ErrNotActive = errors.New("algorithm is not active")
	ErrNoRules   = errors.New("algorithm has no rules")
)

const defaultInterval = 60 * time.Second

type task struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine owns the live execution loops.
type Engine struct {
	store         *ledger.Store
	md            marketdata.Provider
	book          *portfolio.Bookkeeper
	registry      Registry
	interval      time.Duration
	defaultSymbol string
	logger        *logrus.Entry

	mu    sync.Mutex
	tasks map[string]*task
}

func New(store *ledger.Store, md marketdata.Provider, book *portfolio.Bookkeeper, registry Registry, interval time.Duration, defaultSymbol string) *Engine {
	if interval <= 0 {
		interval = defaultInterval
	}
	if defaultSymbol == "" {
		defaultSymbol = "SPY"
	}
	return &Engine{
		store:         store,
		md:            md,
		book:          book,
		registry:      registry,
		interval:      interval,
		defaultSymbol: defaultSymbol,
		logger:        logrus.WithField("component", "engine"),
		tasks:         make(map[string]*task),
	}
}

// Start validates the algorithm and begins its periodic evaluation. The
// first evaluation runs immediately rather than waiting one interval.
func (e *Engine) Start(ctx context.Context, algorithmID, userID string, symbols []string) error {
	algo, err := e.store.GetAlgorithm(ctx, algorithmID, userID)
	if err != nil {
		return err
	}
	if !algo.IsActive {
		return ErrNotActive
	}
	algoRules, err := e.store.ListRules(ctx, algorithmID)
	if err != nil {
		return err
	}
	if len(algoRules) == 0 {
		return ErrNoRules
	}

	if len(symbols) == 0 {
		symbols = []string{e.defaultSymbol}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t := &task{cancel: cancel, done: make(chan struct{})}

	// Reserve the local slot before going to the registry so a duplicate
	// Start never refreshes a lease it is about to be refused.
	e.mu.Lock()
	if _, ok := e.tasks[algorithmID]; ok {
		e.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	e.tasks[algorithmID] = t
	e.mu.Unlock()

	if err := e.registry.Acquire(ctx, Running{
		AlgorithmID: algorithmID,
		UserID:      userID,
		Symbols:     symbols,
	}); err != nil {
		e.mu.Lock()
		delete(e.tasks, algorithmID)
		e.mu.Unlock()
		cancel()
		return err
	}

	go e.run(runCtx, t, algorithmID, userID, symbols)

	e.logger.Infof("started algorithm %s for user %s on %v", algorithmID, userID, symbols)
	return nil
}

// Stop cancels the algorithm's loop and releases its registration. An
// in-flight evaluation is allowed to finish. Stopping an algorithm that is
// not running is a no-op.
func (e *Engine) Stop(ctx context.Context, algorithmID string) error {
	e.mu.Lock()
	t, ok := e.tasks[algorithmID]
	delete(e.tasks, algorithmID)
	e.mu.Unlock()

	if ok {
		t.cancel()
		<-t.done
	}
	if err := e.registry.Release(ctx, algorithmID); err != nil {
		return err
	}
	if ok {
		e.logger.Infof("stopped algorithm %s", algorithmID)
	}
	return nil
}

// Running returns the currently registered algorithms.
func (e *Engine) Running(ctx context.Context) ([]Running, error) {
	return e.registry.List(ctx)
}

// Shutdown stops all algorithms and waits for in-flight evaluations, up to
// the deadline on ctx.
func (e *Engine) Shutdown(ctx context.Context) {
	e.mu.Lock()
	ids := make([]string, 0, len(e.tasks))
	for id := range e.tasks {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, id := range ids {
			if err := e.Stop(ctx, id); err != nil {
				e.logger.Errorf("stop %s during shutdown: %v", id, err)
			}
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.logger.Warn("shutdown deadline reached with evaluations in flight")
	}
}

func (e *Engine) run(ctx context.Context, t *task, algorithmID, userID string, symbols []string) {
	defer close(t.done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	e.safeEvaluate(ctx, algorithmID, userID, symbols)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.safeEvaluate(ctx, algorithmID, userID, symbols)
		}
	}
}

// safeEvaluate shields the ticker loop: no error or panic from one tick may
// kill the task.
func (e *Engine) safeEvaluate(ctx context.Context, algorithmID, userID string, symbols []string) {
	defer func() {
		if p := recover(); p != nil {
			e.logger.Errorf("panic in evaluation of %s: %v\n%s", algorithmID, p, debug.Stack())
		}
	}()

	if err := e.evaluateOnce(ctx, algorithmID, userID, symbols); err != nil {
		e.logger.Errorf("evaluation of %s: %v", algorithmID, err)
	}
	if err := e.registry.Touch(ctx, algorithmID); err != nil && !errors.Is(err, ledger.ErrNotFound) {
		e.logger.Warnf("lease renewal for %s: %v", algorithmID, err)
	}
}

func (e *Engine) evaluateOnce(ctx context.Context, algorithmID, userID string, symbols []string) error {
	quotes := e.md.GetMultipleQuotes(ctx, symbols)
	if len(quotes) == 0 {
		return fmt.Errorf("no quotes this tick for %v", symbols)
	}

	algoRules, err := e.store.ListRules(ctx, algorithmID)
	if err != nil {
		return err
	}

	account, err := e.store.GetOrCreateAccount(ctx, userID)
	if err != nil {
		return err
	}

	for _, symbol := range symbols {
		quote, ok := quotes[symbol]
		if !ok {
			continue
		}
		indicators := e.indicatorsFor(ctx, symbol)

		for i := range algoRules {
			rule := &algoRules[i]

			// Re-read balance and position so this rule observes fills
			// made by earlier rules in the same tick.
			account, err = e.store.GetOrCreateAccount(ctx, userID)
			if err != nil {
				return err
			}
			position, err := e.store.GetPosition(ctx, account.ID, symbol)
			if err != nil && !errors.Is(err, ledger.ErrNotFound) {
				return err
			}

			mctx := &rules.Context{
				Symbol:        symbol,
				Price:         quote.Price,
				Open:          quote.Open,
				High:          quote.High,
				Low:           quote.Low,
				Volume:        quote.Volume,
				Change:        quote.Change,
				ChangePercent: quote.ChangePercent,
				Balance:       account.Balance,
				Position:      position,
				Indicators:    indicators,
			}

			if !rules.Evaluate(rule, mctx) {
				continue
			}

			intent, err := rules.Execute(rule.Action, mctx)
			if err != nil {
				e.logger.Warnf("rule %d of %s: %v", rule.ID, algorithmID, err)
				continue
			}
			if intent.Quantity == 0 {
				continue
			}

			switch intent.Side {
			case ledger.SideBuy:
				err = e.book.ApplyBuy(ctx, account.ID, symbol, intent.Quantity, quote.Price, algorithmID)
			case ledger.SideSell:
				err = e.book.ApplySell(ctx, account.ID, symbol, intent.Quantity, quote.Price, algorithmID)
			}
			if err != nil {
				// Insufficient funds or shares this tick is routine.
				e.logger.Warnf("fill from rule %d of %s: %v", rule.ID, algorithmID, err)
			}
		}
	}
	return nil
}

// indicatorsFor computes the rolling indicator set from daily history.
// Missing history simply yields no indicators for the tick.
func (e *Engine) indicatorsFor(ctx context.Context, symbol string) map[string]float64 {
	bars, err := e.md.GetHistorical(ctx, symbol, "3mo", "1d")
	if err != nil || len(bars) == 0 {
		return nil
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	out := make(map[string]float64, 3)
	if len(closes) >= 20 {
		out["sma_20"] = indicator.Last(indicator.SMA(closes, 20))
	}
	if len(closes) >= 50 {
		out["sma_50"] = indicator.Last(indicator.SMA(closes, 50))
	}
	if len(closes) >= 15 {
		out["rsi"] = indicator.Last(indicator.RSI(closes, 14))
	}
	return out
}
