// Package persistence journals trades and equity snapshots to SQLite.
// The journal is an audit trail, not a recovery source: writes are
// best-effort and a journal failure never fails an order.
package persistence

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/types"
)

// TradeRecord is one journaled fill.
type TradeRecord struct {
	ID         string
	SessionID  string
	Symbol     string
	Side       types.Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Total      decimal.Decimal
	ExecutedAt time.Time
}

// NewTradeRecord builds a record from a session's filled trade.
func NewTradeRecord(sessionID string, trade types.Trade) TradeRecord {
	return TradeRecord{
		ID:         trade.ID,
		SessionID:  sessionID,
		Symbol:     trade.Symbol,
		Side:       trade.Side,
		Quantity:   trade.Quantity,
		Price:      trade.Price,
		Total:      trade.Total,
		ExecutedAt: trade.ExecutedAt,
	}
}

// EquitySnapshot is a session's account state at a point in time.
type EquitySnapshot struct {
	ID            int64
	SessionID     string
	Cash          decimal.Decimal
	Equity        decimal.Decimal
	OpenPositions int
	TakenAt       time.Time
}

// Repository defines the persistence interface.
type Repository interface {
	SaveTrade(ctx context.Context, record TradeRecord) error
	TradesBySession(ctx context.Context, sessionID string, limit int) ([]TradeRecord, error)
	SaveEquitySnapshot(ctx context.Context, snapshot EquitySnapshot) error
	LatestEquitySnapshot(ctx context.Context, sessionID string) (*EquitySnapshot, error)
	Close() error
}
