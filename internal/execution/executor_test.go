package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/market"
	"github.com/tuanle/tickersim/internal/portfolio"
	"github.com/tuanle/tickersim/internal/types"
)

func snapshotWith(symbol, price string) *market.Snapshot {
	sim := market.NewSimulator(market.Config{
		HistoryWindow: 20,
		TickInterval:  time.Second,
		Instruments: []market.InstrumentConfig{
			{Symbol: symbol, Price: decimal.RequireFromString(price), Volatility: decimal.Zero},
		},
		Seed: 1,
	}, nil)
	return sim.Tick(time.Now())
}

func TestExecutor_FillsBuyAtSnapshotPrice(t *testing.T) {
	exec := NewExecutor()
	ledger := portfolio.NewLedger(decimal.NewFromInt(10000))
	snap := snapshotWith("TSLA", "100.00")

	trade, err := exec.Execute(types.Order{
		Symbol:   "TSLA",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(10),
	}, snap, ledger)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if trade.Status != types.TradeStatusFilled {
		t.Errorf("status = %v, want FILLED", trade.Status)
	}
	if !trade.Price.Equal(decimal.RequireFromString("100.00")) {
		t.Errorf("fill price = %s, want 100.00", trade.Price)
	}
	if !trade.Total.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("total = %s, want 1000.00", trade.Total)
	}
	if trade.ID == "" {
		t.Error("trade ID should be set")
	}
}

func TestExecutor_TotalRoundedToTwoDecimals(t *testing.T) {
	exec := NewExecutor()
	ledger := portfolio.NewLedger(decimal.NewFromInt(10000))
	snap := snapshotWith("TSLA", "33.335")

	trade, err := exec.Execute(types.Order{
		Symbol:   "TSLA",
		Side:     types.SideBuy,
		Quantity: decimal.RequireFromString("3"),
	}, snap, ledger)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// 3 * 33.335 = 100.005 -> 100.01
	if !trade.Total.Equal(decimal.RequireFromString("100.01")) {
		t.Errorf("total = %s, want 100.01", trade.Total)
	}
}

func TestExecutor_RejectsInvalidQuantity(t *testing.T) {
	exec := NewExecutor()
	ledger := portfolio.NewLedger(decimal.NewFromInt(10000))
	snap := snapshotWith("TSLA", "100.00")

	for _, qty := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-5)} {
		_, err := exec.Execute(types.Order{
			Symbol:   "TSLA",
			Side:     types.SideBuy,
			Quantity: qty,
		}, snap, ledger)
		if !errors.Is(err, types.ErrInvalidQuantity) {
			t.Errorf("quantity %s: error = %v, want ErrInvalidQuantity", qty, err)
		}
	}
}

func TestExecutor_RejectsUnknownSymbol(t *testing.T) {
	exec := NewExecutor()
	ledger := portfolio.NewLedger(decimal.NewFromInt(10000))
	snap := snapshotWith("TSLA", "100.00")

	_, err := exec.Execute(types.Order{
		Symbol:   "NOPE",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(1),
	}, snap, ledger)
	if !errors.Is(err, types.ErrUnknownSymbol) {
		t.Errorf("error = %v, want ErrUnknownSymbol", err)
	}
}

func TestExecutor_RejectsInsufficientFunds(t *testing.T) {
	exec := NewExecutor()
	ledger := portfolio.NewLedger(decimal.NewFromInt(500))
	snap := snapshotWith("TSLA", "100.00")

	_, err := exec.Execute(types.Order{
		Symbol:   "TSLA",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(10),
	}, snap, ledger)
	if !errors.Is(err, types.ErrInsufficientFunds) {
		t.Errorf("error = %v, want ErrInsufficientFunds", err)
	}

	// Rejection must not touch the ledger.
	if !ledger.Cash().Equal(decimal.NewFromInt(500)) {
		t.Errorf("cash = %s, want 500 after rejection", ledger.Cash())
	}
	if len(ledger.Positions()) != 0 {
		t.Error("rejection created a position")
	}
}

func TestExecutor_RejectsInsufficientPosition(t *testing.T) {
	exec := NewExecutor()
	ledger := portfolio.NewLedger(decimal.NewFromInt(10000))
	snap := snapshotWith("TSLA", "100.00")

	// Hold 5, try to sell 10.
	buy, err := exec.Execute(types.Order{
		Symbol:   "TSLA",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(5),
	}, snap, ledger)
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	ledger.Apply(buy)
	cashBefore := ledger.Cash()

	_, err = exec.Execute(types.Order{
		Symbol:   "TSLA",
		Side:     types.SideSell,
		Quantity: decimal.NewFromInt(10),
	}, snap, ledger)
	if !errors.Is(err, types.ErrInsufficientPosition) {
		t.Errorf("error = %v, want ErrInsufficientPosition", err)
	}

	if !ledger.Cash().Equal(cashBefore) {
		t.Errorf("cash changed after rejection: %s -> %s", cashBefore, ledger.Cash())
	}
	if !ledger.PositionQuantity("TSLA").Equal(decimal.NewFromInt(5)) {
		t.Errorf("position = %s, want 5 after rejection", ledger.PositionQuantity("TSLA"))
	}
}

func TestExecutor_ExactFundsAccepted(t *testing.T) {
	exec := NewExecutor()
	ledger := portfolio.NewLedger(decimal.NewFromInt(1000))
	snap := snapshotWith("TSLA", "100.00")

	_, err := exec.Execute(types.Order{
		Symbol:   "TSLA",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(10),
	}, snap, ledger)
	if err != nil {
		t.Errorf("order costing exactly the cash balance should fill, got %v", err)
	}
}

func TestExecutor_FractionalQuantity(t *testing.T) {
	exec := NewExecutor()
	ledger := portfolio.NewLedger(decimal.NewFromInt(10000))
	snap := snapshotWith("BTC", "45000.00")

	trade, err := exec.Execute(types.Order{
		Symbol:   "BTC",
		Side:     types.SideBuy,
		Quantity: decimal.RequireFromString("0.1"),
	}, snap, ledger)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !trade.Total.Equal(decimal.RequireFromString("4500.00")) {
		t.Errorf("total = %s, want 4500.00", trade.Total)
	}
}
