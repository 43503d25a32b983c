// Package server exposes the exchange over websocket and HTTP.
package server

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/market"
	"github.com/tuanle/tickersim/internal/portfolio"
	"github.com/tuanle/tickersim/internal/types"
)

// Wire event names.
const (
	EventSessionStart      = "session_start"
	EventMarketUpdate      = "market_update"
	EventPlaceOrder        = "place_order"
	EventTradeConfirmation = "trade_confirmation"
	EventOrderRejected     = "order_rejected"
)

// Envelope frames every websocket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// encodeEvent marshals a payload into a framed message.
func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// SessionStart is sent once when a client connects.
type SessionStart struct {
	SessionID string `json:"session_id"`
	Cash      string `json:"cash"`
}

// PricePointPayload is one history entry on the wire.
type PricePointPayload struct {
	Time  string  `json:"time"`
	Price float64 `json:"price"`
}

// InstrumentPayload is one instrument in a market update.
type InstrumentPayload struct {
	Price   float64             `json:"price"`
	History []PricePointPayload `json:"history"`
}

// MarketUpdate is the full snapshot payload, keyed by symbol.
type MarketUpdate map[string]InstrumentPayload

// newMarketUpdate converts a snapshot for the wire. Prices travel as JSON
// numbers; precision is a display concern at this boundary.
func newMarketUpdate(snap *market.Snapshot) MarketUpdate {
	update := make(MarketUpdate, len(snap.Instruments))
	for symbol, inst := range snap.Instruments {
		history := make([]PricePointPayload, len(inst.History))
		for i, p := range inst.History {
			history[i] = PricePointPayload{
				Time:  p.Time,
				Price: p.Price.InexactFloat64(),
			}
		}
		update[symbol] = InstrumentPayload{
			Price:   inst.Price.InexactFloat64(),
			History: history,
		}
	}
	return update
}

// OrderRequest is the client's place_order payload.
type OrderRequest struct {
	Symbol   string  `json:"symbol"`
	Type     string  `json:"type"`
	Quantity float64 `json:"quantity"`
}

// ToOrder converts the request to a domain order. Non-finite quantities
// are rejected here because they cannot be represented as decimals.
func (r OrderRequest) ToOrder() (types.Order, error) {
	if math.IsNaN(r.Quantity) || math.IsInf(r.Quantity, 0) {
		return types.Order{}, fmt.Errorf("%w: not a finite number", types.ErrInvalidQuantity)
	}

	side, err := types.ParseSide(r.Type)
	if err != nil {
		return types.Order{}, err
	}

	return types.Order{
		Symbol:   r.Symbol,
		Side:     side,
		Quantity: decimal.NewFromFloat(r.Quantity),
	}, nil
}

// TradeConfirmation is sent to the ordering session on a fill. Price and
// total are 2-decimal strings.
type TradeConfirmation struct {
	Symbol   string  `json:"symbol"`
	Type     string  `json:"type"`
	Quantity float64 `json:"quantity"`
	Price    string  `json:"price"`
	Total    string  `json:"total"`
	Status   string  `json:"status"`
}

func newTradeConfirmation(trade types.Trade) TradeConfirmation {
	return TradeConfirmation{
		Symbol:   trade.Symbol,
		Type:     trade.Side.String(),
		Quantity: trade.Quantity.InexactFloat64(),
		Price:    trade.Price.StringFixed(2),
		Total:    trade.Total.StringFixed(2),
		Status:   trade.Status.String(),
	}
}

// OrderRejection is sent to the ordering session when validation fails.
// The server always answers an order, fill or rejection.
type OrderRejection struct {
	Symbol   string  `json:"symbol"`
	Type     string  `json:"type"`
	Quantity float64 `json:"quantity"`
	Reason   string  `json:"reason"`
}

func newOrderRejection(req OrderRequest, err error) OrderRejection {
	return OrderRejection{
		Symbol:   req.Symbol,
		Type:     req.Type,
		Quantity: req.Quantity,
		Reason:   types.RejectReason(err),
	}
}

// PositionPayload is one mark-to-market position in the portfolio view.
type PositionPayload struct {
	Symbol       string `json:"symbol"`
	Quantity     string `json:"quantity"`
	AvgCost      string `json:"avg_cost"`
	MarketValue  string `json:"market_value"`
	UnrealizedPL string `json:"unrealized_pl"`
}

// PortfolioResponse is the REST portfolio payload.
type PortfolioResponse struct {
	SessionID string            `json:"session_id"`
	Cash      string            `json:"cash"`
	Positions []PositionPayload `json:"positions"`
}

func newPortfolioResponse(sessionID string, cash decimal.Decimal, views []portfolio.PositionView) PortfolioResponse {
	positions := make([]PositionPayload, len(views))
	for i, v := range views {
		positions[i] = PositionPayload{
			Symbol:       v.Symbol,
			Quantity:     v.Quantity.String(),
			AvgCost:      v.AvgCost.StringFixed(2),
			MarketValue:  v.MarketValue.StringFixed(2),
			UnrealizedPL: v.UnrealizedPL.StringFixed(2),
		}
	}
	return PortfolioResponse{
		SessionID: sessionID,
		Cash:      cash.StringFixed(2),
		Positions: positions,
	}
}
