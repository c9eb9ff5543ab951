// Package portfolio applies fills to the ledger. Every fill runs as one
// database transaction and fills against the same account are serialized
// by a per-account lock, so the balance_after chain in the transaction
// journal is always consistent.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/tconn93/Day-trader/internal/ledger"
	"github.com/tconn93/Day-trader/internal/marketdata"
	"github.com/tconn93/Day-trader/pkg/bus"
)

var (
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrInsufficientShares = errors.New("insufficient shares")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
)

// Bookkeeper mutates the ledger on behalf of both engines and the manual
// order endpoint.
type Bookkeeper struct {
	store  *ledger.Store
	bus    *bus.Publisher
	logger *logrus.Entry

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewBookkeeper(store *ledger.Store, publisher *bus.Publisher) *Bookkeeper {
	return &Bookkeeper{
		store:  store,
		bus:    publisher,
		logger: logrus.WithField("component", "portfolio"),
		locks:  make(map[int64]*sync.Mutex),
	}
}

// accountLock returns the mutex for accountID, creating it on first use.
// Locks are never removed; the set of active accounts is small.
func (b *Bookkeeper) accountLock(accountID int64) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[accountID]
	if !ok {
		l = &sync.Mutex{}
		b.locks[accountID] = l
	}
	return l
}

// ApplyBuy fills a buy of qty shares at price. The order, cash debit,
// position upsert, and journal entry commit atomically or not at all.
func (b *Bookkeeper) ApplyBuy(ctx context.Context, accountID int64, symbol string, qty int64, price decimal.Decimal, algorithmID string) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	l := b.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	cost := price.Mul(decimal.NewFromInt(qty))
	var orderID int64

	err := b.store.WithTx(ctx, func(tx *sql.Tx) error {
		account, err := ledger.GetAccountTx(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if account.Balance.LessThan(cost) {
			return fmt.Errorf("%w: need %s, have %s", ErrInsufficientFunds, cost.StringFixed(2), account.Balance.StringFixed(2))
		}

		orderID, err = ledger.InsertFilledOrderTx(ctx, tx, accountID, symbol, ledger.SideBuy, qty, price, algorithmID)
		if err != nil {
			return err
		}

		balanceAfter := account.Balance.Sub(cost)
		if err := ledger.UpdateBalanceTx(ctx, tx, accountID, balanceAfter); err != nil {
			return err
		}

		pos, err := ledger.GetPositionTx(ctx, tx, accountID, symbol)
		newQty := qty
		avg := price
		switch {
		case err == nil:
			// Weighted-average cost basis across the old and new lots.
			oldCost := pos.AveragePrice.Mul(decimal.NewFromInt(pos.Quantity))
			newQty = pos.Quantity + qty
			avg = oldCost.Add(cost).Div(decimal.NewFromInt(newQty))
		case errors.Is(err, ledger.ErrNotFound):
		default:
			return err
		}
		if err := ledger.UpsertPositionTx(ctx, tx, accountID, symbol, newQty, avg); err != nil {
			return err
		}

		return ledger.InsertTransactionTx(ctx, tx, &ledger.Transaction{
			AccountID:    accountID,
			Type:         ledger.TxnBuy,
			Amount:       cost.Neg(),
			BalanceAfter: balanceAfter,
			Symbol:       symbol,
			Quantity:     qty,
			Price:        price,
			OrderID:      orderID,
			Description:  fmt.Sprintf("Buy %d %s @ %s", qty, symbol, price.StringFixed(2)),
		})
	})
	if err != nil {
		return err
	}

	b.logger.Infof("filled buy %d %s @ %s for account %d", qty, symbol, price.StringFixed(2), accountID)
	b.bus.PublishFill(bus.FillEvent{
		AccountID:   fmt.Sprint(accountID),
		OrderID:     orderID,
		Symbol:      symbol,
		Side:        ledger.SideBuy,
		Quantity:    qty,
		Price:       price.StringFixed(4),
		AlgorithmID: algorithmID,
		FilledAt:    time.Now().UTC(),
	})
	return nil
}

// ApplySell fills a sell of qty shares at price. The average price of the
// remaining position is preserved; a position sold to zero is deleted.
func (b *Bookkeeper) ApplySell(ctx context.Context, accountID int64, symbol string, qty int64, price decimal.Decimal, algorithmID string) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}

	l := b.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	proceeds := price.Mul(decimal.NewFromInt(qty))
	var orderID int64

	err := b.store.WithTx(ctx, func(tx *sql.Tx) error {
		pos, err := ledger.GetPositionTx(ctx, tx, accountID, symbol)
		if errors.Is(err, ledger.ErrNotFound) {
			return fmt.Errorf("%w: no position in %s", ErrInsufficientShares, symbol)
		}
		if err != nil {
			return err
		}
		if pos.Quantity < qty {
			return fmt.Errorf("%w: have %d, selling %d", ErrInsufficientShares, pos.Quantity, qty)
		}

		account, err := ledger.GetAccountTx(ctx, tx, accountID)
		if err != nil {
			return err
		}

		orderID, err = ledger.InsertFilledOrderTx(ctx, tx, accountID, symbol, ledger.SideSell, qty, price, algorithmID)
		if err != nil {
			return err
		}

		balanceAfter := account.Balance.Add(proceeds)
		if err := ledger.UpdateBalanceTx(ctx, tx, accountID, balanceAfter); err != nil {
			return err
		}

		remaining := pos.Quantity - qty
		if remaining == 0 {
			if err := ledger.DeletePositionTx(ctx, tx, accountID, symbol); err != nil {
				return err
			}
		} else {
			if err := ledger.UpsertPositionTx(ctx, tx, accountID, symbol, remaining, pos.AveragePrice); err != nil {
				return err
			}
		}

		return ledger.InsertTransactionTx(ctx, tx, &ledger.Transaction{
			AccountID:    accountID,
			Type:         ledger.TxnSell,
			Amount:       proceeds,
			BalanceAfter: balanceAfter,
			Symbol:       symbol,
			Quantity:     qty,
			Price:        price,
			OrderID:      orderID,
			Description:  fmt.Sprintf("Sell %d %s @ %s", qty, symbol, price.StringFixed(2)),
		})
	})
	if err != nil {
		return err
	}

	b.logger.Infof("filled sell %d %s @ %s for account %d", qty, symbol, price.StringFixed(2), accountID)
	b.bus.PublishFill(bus.FillEvent{
		AccountID:   fmt.Sprint(accountID),
		OrderID:     orderID,
		Symbol:      symbol,
		Side:        ledger.SideSell,
		Quantity:    qty,
		Price:       price.StringFixed(4),
		AlgorithmID: algorithmID,
		FilledAt:    time.Now().UTC(),
	})
	return nil
}

// RecomputeMarketValues refreshes the derived per-position fields from
// current quotes and the account total_value. Cash and quantities are
// untouched.
func (b *Bookkeeper) RecomputeMarketValues(ctx context.Context, account *ledger.Account, md marketdata.Provider) ([]ledger.Position, error) {
	positions, err := b.store.ListPositions(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		symbols = append(symbols, p.Symbol)
	}
	quotes := md.GetMultipleQuotes(ctx, symbols)

	total := account.Balance
	for i := range positions {
		p := &positions[i]
		q, ok := quotes[p.Symbol]
		if !ok {
			// No quote this round; keep the stored values.
			total = total.Add(p.MarketValue)
			continue
		}
		qty := decimal.NewFromInt(p.Quantity)
		p.CurrentPrice = q.Price
		p.MarketValue = q.Price.Mul(qty)
		p.UnrealizedPL = q.Price.Sub(p.AveragePrice).Mul(qty)
		if !p.AveragePrice.IsZero() {
			p.UnrealizedPLPercent = q.Price.Sub(p.AveragePrice).Div(p.AveragePrice).Mul(decimal.NewFromInt(100))
		}
		if err := b.store.UpdateMarketValues(ctx, p.ID, p.CurrentPrice, p.MarketValue, p.UnrealizedPL, p.UnrealizedPLPercent); err != nil {
			return nil, err
		}
		total = total.Add(p.MarketValue)
	}

	if err := b.store.UpdateTotalValue(ctx, account.ID, total); err != nil {
		return nil, err
	}
	account.TotalValue = total
	return positions, nil
}

// Reset wipes positions and transactions and restores the initial balance.
func (b *Bookkeeper) Reset(ctx context.Context, accountID int64) error {
	l := b.accountLock(accountID)
	l.Lock()
	defer l.Unlock()

	return b.store.WithTx(ctx, func(tx *sql.Tx) error {
		return ledger.ResetAccountTx(ctx, tx, accountID)
	})
}
