// Package engine wires the simulator, sessions and executor together.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/execution"
	"github.com/tuanle/tickersim/internal/market"
	"github.com/tuanle/tickersim/internal/metrics"
	"github.com/tuanle/tickersim/internal/persistence"
	"github.com/tuanle/tickersim/internal/portfolio"
	"github.com/tuanle/tickersim/internal/session"
	"github.com/tuanle/tickersim/internal/types"
)

// Broadcaster fans a snapshot out to all connected sessions. The websocket
// hub implements it; the engine never talks to connections directly.
type Broadcaster interface {
	BroadcastSnapshot(snap *market.Snapshot)
}

// Config holds engine configuration.
type Config struct {
	Session session.Config
}

// Engine coordinates the market simulator, the order executor and the
// per-session ledgers. Order handling for one session is strictly
// sequential; sessions are independent of each other.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	sim      *market.Simulator
	exec     *execution.Executor
	sessions *session.Registry
	repo     persistence.Repository // optional
	recorder *metrics.Recorder

	mu          sync.RWMutex
	running     bool
	broadcaster Broadcaster

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates an engine. repo may be nil to disable the trade journal.
func New(cfg Config, sim *market.Simulator, repo persistence.Repository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		cfg:      cfg,
		logger:   logger,
		sim:      sim,
		exec:     execution.NewExecutor(),
		sessions: session.NewRegistry(),
		repo:     repo,
		recorder: metrics.NewRecorder(),
		done:     make(chan struct{}),
	}
}

// SetBroadcaster installs the snapshot fan-out target.
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.broadcaster = b
}

// Start runs the simulation loop until the context is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return fmt.Errorf("engine already running")
	}
	e.running = true
	e.mu.Unlock()

	e.logger.Info("engine starting", "instruments", len(e.sim.Symbols()))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.sim.Run(ctx, e.publish)
	}()

	return nil
}

// publish records tick metrics and fans the snapshot out.
func (e *Engine) publish(snap *market.Snapshot) {
	timer := metrics.NewTimer()

	for symbol, inst := range snap.Instruments {
		e.recorder.RecordPrice(symbol, inst.Price)
	}

	e.mu.RLock()
	b := e.broadcaster
	e.mu.RUnlock()

	if b != nil {
		b.BroadcastSnapshot(snap)
	}

	e.recorder.RecordTick(timer.Elapsed())
}

// Attach creates a session for a newly connected client and returns it
// together with the current snapshot, which the transport sends
// immediately on connection.
func (e *Engine) Attach() (*session.Session, *market.Snapshot) {
	sess := session.New(e.cfg.Session)
	e.sessions.Add(sess)
	e.recorder.RecordSessions(e.sessions.Len())

	e.logger.Info("session attached",
		"session_id", sess.ID(),
		"starting_cash", e.cfg.Session.StartingCash,
		"connected", e.sessions.Len(),
	)

	return sess, e.sim.Snapshot()
}

// Detach removes a disconnected session. Its ledger is discarded; state
// does not survive reconnection.
func (e *Engine) Detach(sess *session.Session) {
	if sess == nil {
		return
	}

	e.journalEquity(sess)
	e.sessions.Remove(sess.ID())
	e.recorder.RecordSessions(e.sessions.Len())

	e.logger.Info("session detached",
		"session_id", sess.ID(),
		"connected", e.sessions.Len(),
	)
}

// Session looks up a connected session by ID.
func (e *Engine) Session(id string) (*session.Session, bool) {
	return e.sessions.Get(id)
}

// Snapshot returns the current market snapshot.
func (e *Engine) Snapshot() *market.Snapshot {
	return e.sim.Snapshot()
}

// PlaceOrder validates and fills one order for a session. The fill is
// applied to the session's ledger before returning, so a client that
// submits sequentially always sees its own fills reflected. A rejection
// mutates nothing and is returned as a tagged error; the transport must
// always answer the client, fill or rejection.
func (e *Engine) PlaceOrder(ctx context.Context, sess *session.Session, order types.Order) (types.Trade, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveOrder()

	sess.LockOrders()
	defer sess.UnlockOrders()

	if !sess.AllowOrder() {
		e.recorder.RecordOrder(order.Symbol, order.Side.String(), "rejected")
		e.recorder.RecordRejection(types.RejectReason(types.ErrRateLimited))
		return types.Trade{}, fmt.Errorf("session %s: %w", sess.ID(), types.ErrRateLimited)
	}

	trade, err := e.exec.Execute(order, e.sim.Snapshot(), sess.Ledger())
	if err != nil {
		e.recorder.RecordOrder(order.Symbol, order.Side.String(), "rejected")
		e.recorder.RecordRejection(types.RejectReason(err))

		e.logger.Info("order rejected",
			"session_id", sess.ID(),
			"symbol", order.Symbol,
			"side", order.Side,
			"quantity", order.Quantity,
			"reason", types.RejectReason(err),
		)
		return types.Trade{}, err
	}

	sess.Ledger().Apply(trade)

	e.recorder.RecordOrder(trade.Symbol, trade.Side.String(), "filled")
	e.recorder.RecordTrade(trade.Symbol, trade.Side.String())

	e.logger.Info("order filled",
		"session_id", sess.ID(),
		"trade_id", trade.ID,
		"symbol", trade.Symbol,
		"side", trade.Side,
		"quantity", trade.Quantity,
		"price", trade.Price.StringFixed(2),
		"total", trade.Total.StringFixed(2),
	)

	e.journalTrade(ctx, sess.ID(), trade)

	return trade, nil
}

// journalTrade writes a fill to the audit journal. Best effort: failures
// are logged and never fail the order.
func (e *Engine) journalTrade(ctx context.Context, sessionID string, trade types.Trade) {
	if e.repo == nil {
		return
	}

	if err := e.repo.SaveTrade(ctx, persistence.NewTradeRecord(sessionID, trade)); err != nil {
		e.logger.Warn("failed to journal trade",
			"trade_id", trade.ID,
			"err", err,
		)
	}
}

// journalEquity snapshots a session's account state, marked to the
// current market.
func (e *Engine) journalEquity(sess *session.Session) {
	if e.repo == nil {
		return
	}

	snap := e.sim.Snapshot()
	prices := portfolio.PriceFunc(func(symbol string) (decimal.Decimal, bool) {
		return snap.Price(symbol)
	})

	record := persistence.EquitySnapshot{
		SessionID:     sess.ID(),
		Cash:          sess.Ledger().Cash(),
		Equity:        sess.Ledger().Equity(prices),
		OpenPositions: len(sess.Ledger().Positions()),
		TakenAt:       time.Now(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := e.repo.SaveEquitySnapshot(ctx, record); err != nil {
		e.logger.Warn("failed to journal equity snapshot",
			"session_id", sess.ID(),
			"err", err,
		)
	}
}

// PortfolioView marks a session's positions to the current market.
func (e *Engine) PortfolioView(sess *session.Session) []portfolio.PositionView {
	snap := e.sim.Snapshot()
	return sess.Ledger().View(func(symbol string) (decimal.Decimal, bool) {
		return snap.Price(symbol)
	})
}

// Stop waits for the simulation loop to exit.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown: %w", ctx.Err())
	}

	e.logger.Info("engine stopped")
	return nil
}

// IsRunning returns true if the engine is running.
func (e *Engine) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
