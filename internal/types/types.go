// Package types defines shared types used across the exchange.
package types

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseSide parses a wire-format side string.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(s) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return SideBuy, fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

// TradeStatus represents the state of a trade.
type TradeStatus int

const (
	TradeStatusFilled TradeStatus = iota
	TradeStatusRejected
)

func (s TradeStatus) String() string {
	switch s {
	case TradeStatusFilled:
		return "FILLED"
	case TradeStatusRejected:
		return "REJECTED"
	default:
		return "UNKNOWN"
	}
}

// Order is a request to buy or sell an instrument at the current price.
// Orders are transient: submitted by one session, consumed exactly once.
type Order struct {
	Symbol   string
	Side     Side
	Quantity decimal.Decimal
}

// Trade is the result of filling an Order against a price snapshot.
// Immutable once created.
type Trade struct {
	ID         string
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Total      decimal.Decimal // Quantity * Price, rounded to 2 decimals
	Status     TradeStatus
	ExecutedAt time.Time
}

// PricePoint is one entry in an instrument's price history.
type PricePoint struct {
	Time  string
	Price decimal.Decimal
}
