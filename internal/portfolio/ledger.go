// Package portfolio tracks one session's cash balance and positions.
package portfolio

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/types"
)

// positionEpsilon is the quantity below which a position is considered
// fully closed and removed, avoiding floating-point residue.
var positionEpsilon = decimal.New(1, -6) // 1e-6

// Position is a session's current holding in one instrument.
type Position struct {
	Symbol   string
	Quantity decimal.Decimal
	AvgCost  decimal.Decimal
}

// PositionView is a position enriched with mark-to-market figures for
// display. Not part of the ledger invariants.
type PositionView struct {
	Position
	MarketValue  decimal.Decimal
	UnrealizedPL decimal.Decimal
}

// PriceFunc resolves the latest known price for a symbol. The second
// return reports whether the instrument is known.
type PriceFunc func(symbol string) (decimal.Decimal, bool)

// Ledger is a session's complete holdings plus cash balance. It is
// mutated only by applying trades, one at a time, in the order received.
// A Ledger is owned by exactly one session; the mutex guards concurrent
// reads from transport handlers against trade application.
type Ledger struct {
	mu        sync.RWMutex
	cash      decimal.Decimal
	positions map[string]*Position
}

// NewLedger creates a ledger with the given starting cash.
func NewLedger(startingCash decimal.Decimal) *Ledger {
	return &Ledger{
		cash:      startingCash,
		positions: make(map[string]*Position),
	}
}

// Apply mutates the ledger with one filled trade. Trades must be applied
// in the order the session issued them.
func (l *Ledger) Apply(trade types.Trade) {
	if trade.Status != types.TradeStatusFilled {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	switch trade.Side {
	case types.SideBuy:
		l.applyBuy(trade)
	case types.SideSell:
		l.applySell(trade)
	}
}

// applyBuy recomputes the weighted-average cost basis. Caller holds mu.
func (l *Ledger) applyBuy(trade types.Trade) {
	pos, ok := l.positions[trade.Symbol]
	if !ok {
		pos = &Position{Symbol: trade.Symbol}
		l.positions[trade.Symbol] = pos
	}

	totalCost := pos.Quantity.Mul(pos.AvgCost).Add(trade.Quantity.Mul(trade.Price))
	newQty := pos.Quantity.Add(trade.Quantity)

	pos.Quantity = newQty
	if newQty.IsZero() {
		pos.AvgCost = decimal.Zero
	} else {
		pos.AvgCost = totalCost.Div(newQty)
	}

	l.cash = l.cash.Sub(trade.Total)
}

// applySell reduces the position, removing it entirely once the quantity
// decays to the epsilon threshold. Caller holds mu.
func (l *Ledger) applySell(trade types.Trade) {
	pos, ok := l.positions[trade.Symbol]
	if !ok {
		// Executor gating prevents this; a sell with no position is a no-op
		// on the holdings but the cash credit still applies.
		l.cash = l.cash.Add(trade.Total)
		return
	}

	pos.Quantity = pos.Quantity.Sub(trade.Quantity)
	if pos.Quantity.LessThanOrEqual(positionEpsilon) {
		delete(l.positions, trade.Symbol)
	}

	l.cash = l.cash.Add(trade.Total)
}

// Cash returns the current cash balance.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// PositionQuantity returns the held quantity for a symbol, zero if none.
func (l *Ledger) PositionQuantity(symbol string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return decimal.Zero
	}
	return pos.Quantity
}

// Position returns a copy of the position for a symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all held positions, sorted by symbol.
func (l *Ledger) Positions() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Position, 0, len(l.positions))
	for _, pos := range l.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// View marks all positions to market using the supplied price lookup.
// When an instrument is unknown the average cost is used as a fallback,
// giving zero unrealized P&L for that position.
func (l *Ledger) View(prices PriceFunc) []PositionView {
	positions := l.Positions()

	views := make([]PositionView, 0, len(positions))
	for _, pos := range positions {
		price := pos.AvgCost
		if prices != nil {
			if p, ok := prices(pos.Symbol); ok {
				price = p
			}
		}

		marketValue := pos.Quantity.Mul(price)
		costBasis := pos.Quantity.Mul(pos.AvgCost)

		views = append(views, PositionView{
			Position:     pos,
			MarketValue:  marketValue,
			UnrealizedPL: marketValue.Sub(costBasis),
		})
	}
	return views
}

// Equity returns cash plus the market value of all positions.
func (l *Ledger) Equity(prices PriceFunc) decimal.Decimal {
	equity := l.Cash()
	for _, v := range l.View(prices) {
		equity = equity.Add(v.MarketValue)
	}
	return equity
}
