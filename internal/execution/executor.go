// Package execution validates and fills orders against price snapshots.
package execution

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/market"
	"github.com/tuanle/tickersim/internal/types"
)

// BalanceView exposes the funds and position state the executor checks.
// The session's ledger satisfies it. The executor never reads global
// mutable state directly, which keeps it independently testable.
type BalanceView interface {
	Cash() decimal.Decimal
	PositionQuantity(symbol string) decimal.Decimal
}

// Executor fills orders at the snapshot price: a single atomic fill with
// no slippage and no partial fills. It is stateless; validation reads
// only the caller-supplied snapshot and balance view.
type Executor struct{}

// NewExecutor creates an executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Execute validates the order and fills it against the snapshot price.
// Preconditions are checked in a fixed order, each producing a distinct
// rejection error; a rejection has no side effects.
func (e *Executor) Execute(order types.Order, snap *market.Snapshot, view BalanceView) (types.Trade, error) {
	if !order.Quantity.IsPositive() {
		return types.Trade{}, fmt.Errorf("%w: %s", types.ErrInvalidQuantity, order.Quantity)
	}

	price, ok := snap.Price(order.Symbol)
	if !ok {
		return types.Trade{}, fmt.Errorf("%w: %s", types.ErrUnknownSymbol, order.Symbol)
	}

	total := order.Quantity.Mul(price)

	switch order.Side {
	case types.SideBuy:
		if view.Cash().LessThan(total) {
			return types.Trade{}, fmt.Errorf("%w: need %s, have %s",
				types.ErrInsufficientFunds, total.Round(2), view.Cash().Round(2))
		}
	case types.SideSell:
		if view.PositionQuantity(order.Symbol).LessThan(order.Quantity) {
			return types.Trade{}, fmt.Errorf("%w: requested %s, held %s",
				types.ErrInsufficientPosition, order.Quantity, view.PositionQuantity(order.Symbol))
		}
	default:
		return types.Trade{}, fmt.Errorf("%w: %d", types.ErrInvalidSide, order.Side)
	}

	return types.Trade{
		ID:         uuid.New().String(),
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   order.Quantity,
		Price:      price,
		Total:      total.Round(2),
		Status:     types.TradeStatusFilled,
		ExecutedAt: time.Now(),
	}, nil
}
