package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/market"
	"github.com/tuanle/tickersim/internal/persistence"
	"github.com/tuanle/tickersim/internal/session"
	"github.com/tuanle/tickersim/internal/types"
)

// mockRepo records journal calls in memory.
type mockRepo struct {
	mu        sync.Mutex
	trades    []persistence.TradeRecord
	snapshots []persistence.EquitySnapshot
	failSave  bool
}

func (m *mockRepo) SaveTrade(ctx context.Context, record persistence.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("journal unavailable")
	}
	m.trades = append(m.trades, record)
	return nil
}

func (m *mockRepo) TradesBySession(ctx context.Context, sessionID string, limit int) ([]persistence.TradeRecord, error) {
	return nil, nil
}

func (m *mockRepo) SaveEquitySnapshot(ctx context.Context, snapshot persistence.EquitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, snapshot)
	return nil
}

func (m *mockRepo) LatestEquitySnapshot(ctx context.Context, sessionID string) (*persistence.EquitySnapshot, error) {
	return nil, nil
}

func (m *mockRepo) Close() error { return nil }

// mockBroadcaster counts snapshot fan-outs.
type mockBroadcaster struct {
	mu    sync.Mutex
	snaps []*market.Snapshot
}

func (m *mockBroadcaster) BroadcastSnapshot(snap *market.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
}

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

func testEngine(t *testing.T, repo persistence.Repository) *Engine {
	t.Helper()

	sim := market.NewSimulator(market.Config{
		HistoryWindow: 20,
		TickInterval:  5 * time.Millisecond,
		Instruments: []market.InstrumentConfig{
			{Symbol: "X", Price: decimal.RequireFromString("100.00"), Volatility: decimal.Zero},
		},
		Seed: 7,
	}, nil)

	return New(Config{
		Session: session.Config{
			StartingCash:    decimal.NewFromInt(10000),
			OrdersPerSecond: 0,
		},
	}, sim, repo, nil)
}

func TestEngine_EndToEndScenario(t *testing.T) {
	e := testEngine(t, nil)
	ctx := context.Background()

	// One tick: zero volatility keeps the price at 100.00.
	snap := e.sim.Tick(time.Now())
	price, _ := snap.Price("X")
	if !price.Equal(decimal.RequireFromString("100.00")) {
		t.Fatalf("price after tick = %s, want 100.00", price)
	}
	if len(snap.Instruments["X"].History) != 1 {
		t.Fatalf("history length = %d, want 1", len(snap.Instruments["X"].History))
	}

	sess, first := e.Attach()
	if first == nil {
		t.Fatal("Attach should return the current snapshot")
	}
	if !sess.Ledger().Cash().Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("starting cash = %s, want 10000", sess.Ledger().Cash())
	}

	// BUY 10 @ 100.00
	buy, err := e.PlaceOrder(ctx, sess, types.Order{
		Symbol:   "X",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}
	if !buy.Total.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("buy total = %s, want 1000.00", buy.Total)
	}
	if !sess.Ledger().Cash().Equal(decimal.NewFromInt(9000)) {
		t.Errorf("cash after buy = %s, want 9000", sess.Ledger().Cash())
	}
	pos, ok := sess.Ledger().Position("X")
	if !ok {
		t.Fatal("expected position after buy")
	}
	if !pos.Quantity.Equal(decimal.NewFromInt(10)) || !pos.AvgCost.Equal(decimal.NewFromInt(100)) {
		t.Errorf("position = {%s, %s}, want {10, 100}", pos.Quantity, pos.AvgCost)
	}

	// SELL 10 @ 100.00
	sell, err := e.PlaceOrder(ctx, sess, types.Order{
		Symbol:   "X",
		Side:     types.SideSell,
		Quantity: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("sell failed: %v", err)
	}
	if !sell.Total.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("sell total = %s, want 1000.00", sell.Total)
	}
	if !sess.Ledger().Cash().Equal(decimal.NewFromInt(10000)) {
		t.Errorf("cash after round trip = %s, want 10000", sess.Ledger().Cash())
	}
	if _, ok := sess.Ledger().Position("X"); ok {
		t.Error("position should be removed after full sell")
	}
}

func TestEngine_RejectionLeavesLedgerUntouched(t *testing.T) {
	e := testEngine(t, nil)
	sess, _ := e.Attach()

	_, err := e.PlaceOrder(context.Background(), sess, types.Order{
		Symbol:   "NOPE",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(1),
	})
	if !errors.Is(err, types.ErrUnknownSymbol) {
		t.Fatalf("error = %v, want ErrUnknownSymbol", err)
	}

	if !sess.Ledger().Cash().Equal(decimal.NewFromInt(10000)) {
		t.Errorf("cash = %s, want 10000", sess.Ledger().Cash())
	}
}

func TestEngine_RateLimitedOrderRejected(t *testing.T) {
	sim := market.NewSimulator(market.Config{
		HistoryWindow: 20,
		TickInterval:  time.Second,
		Instruments: []market.InstrumentConfig{
			{Symbol: "X", Price: decimal.NewFromInt(100), Volatility: decimal.Zero},
		},
		Seed: 7,
	}, nil)
	e := New(Config{
		Session: session.Config{
			StartingCash:    decimal.NewFromInt(10000),
			OrdersPerSecond: 1,
		},
	}, sim, nil, nil)

	sess, _ := e.Attach()
	order := types.Order{Symbol: "X", Side: types.SideBuy, Quantity: decimal.NewFromInt(1)}

	if _, err := e.PlaceOrder(context.Background(), sess, order); err != nil {
		t.Fatalf("first order failed: %v", err)
	}

	_, err := e.PlaceOrder(context.Background(), sess, order)
	if !errors.Is(err, types.ErrRateLimited) {
		t.Fatalf("error = %v, want ErrRateLimited", err)
	}

	// Only the first order touched the ledger.
	if !sess.Ledger().PositionQuantity("X").Equal(decimal.NewFromInt(1)) {
		t.Errorf("position = %s, want 1", sess.Ledger().PositionQuantity("X"))
	}
}

func TestEngine_SessionsAreIndependent(t *testing.T) {
	e := testEngine(t, nil)
	ctx := context.Background()

	a, _ := e.Attach()
	b, _ := e.Attach()

	_, err := e.PlaceOrder(ctx, a, types.Order{
		Symbol:   "X",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(10),
	})
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	if !b.Ledger().Cash().Equal(decimal.NewFromInt(10000)) {
		t.Errorf("session b cash = %s, want untouched 10000", b.Ledger().Cash())
	}
	if !b.Ledger().PositionQuantity("X").IsZero() {
		t.Error("session b acquired a position from session a's order")
	}
}

func TestEngine_JournalsTrades(t *testing.T) {
	repo := &mockRepo{}
	e := testEngine(t, repo)
	sess, _ := e.Attach()

	_, err := e.PlaceOrder(context.Background(), sess, types.Order{
		Symbol:   "X",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(2),
	})
	if err != nil {
		t.Fatalf("buy failed: %v", err)
	}

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.trades) != 1 {
		t.Fatalf("journaled trades = %d, want 1", len(repo.trades))
	}
	if repo.trades[0].SessionID != sess.ID() {
		t.Errorf("journaled session = %s, want %s", repo.trades[0].SessionID, sess.ID())
	}
}

func TestEngine_JournalFailureDoesNotFailOrder(t *testing.T) {
	repo := &mockRepo{failSave: true}
	e := testEngine(t, repo)
	sess, _ := e.Attach()

	trade, err := e.PlaceOrder(context.Background(), sess, types.Order{
		Symbol:   "X",
		Side:     types.SideBuy,
		Quantity: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("order failed on journal error: %v", err)
	}
	if trade.Status != types.TradeStatusFilled {
		t.Errorf("status = %v, want FILLED", trade.Status)
	}
}

func TestEngine_DetachJournalsEquity(t *testing.T) {
	repo := &mockRepo{}
	e := testEngine(t, repo)
	sess, _ := e.Attach()

	e.Detach(sess)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	if len(repo.snapshots) != 1 {
		t.Fatalf("equity snapshots = %d, want 1", len(repo.snapshots))
	}
	if !repo.snapshots[0].Cash.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("snapshot cash = %s, want 10000", repo.snapshots[0].Cash)
	}
}

func TestEngine_StartBroadcastsTicks(t *testing.T) {
	e := testEngine(t, nil)
	b := &mockBroadcaster{}
	e.SetBroadcaster(b)

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.After(2 * time.Second)
	for b.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("no snapshot broadcast")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	if err := e.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if e.IsRunning() {
		t.Error("engine still reports running after Stop")
	}
}

func TestEngine_StartTwiceFails(t *testing.T) {
	e := testEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := e.Start(ctx); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	if err := e.Start(ctx); err == nil {
		t.Error("second Start() should fail")
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), time.Second)
	defer stopCancel()
	_ = e.Stop(stopCtx)
}
