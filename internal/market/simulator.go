package market

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/types"
)

// priceFloor is the minimum price an instrument can reach. The stochastic
// step is clamped here so prices stay strictly positive.
var priceFloor = decimal.RequireFromString("0.01")

// InstrumentConfig seeds one simulated instrument.
type InstrumentConfig struct {
	Symbol     string
	Price      decimal.Decimal
	Volatility decimal.Decimal // non-negative, constant for the session
}

// instrument is the live mutable state for one symbol. Owned exclusively
// by the Simulator; consumers only ever see snapshots.
type instrument struct {
	symbol     string
	price      decimal.Decimal
	volatility decimal.Decimal
	series     *PriceSeries
}

// InstrumentSnapshot is the read-only view of one instrument at a tick.
type InstrumentSnapshot struct {
	Price   decimal.Decimal
	History []types.PricePoint
}

// Snapshot is an immutable view of all instrument prices and histories
// taken at one simulation tick. Never mutated after creation; safe to hand
// to multiple consumers concurrently.
type Snapshot struct {
	Time        string
	Instruments map[string]InstrumentSnapshot
}

// Price returns the snapshot price for a symbol.
func (s *Snapshot) Price(symbol string) (decimal.Decimal, bool) {
	inst, ok := s.Instruments[symbol]
	return inst.Price, ok
}

// Config holds simulator configuration.
type Config struct {
	HistoryWindow int
	TickInterval  time.Duration
	Instruments   []InstrumentConfig
	Seed          int64 // 0 means seed from the clock
}

// DefaultConfig returns the reference market setup.
func DefaultConfig() Config {
	return Config{
		HistoryWindow: 20,
		TickInterval:  2 * time.Second,
		Instruments: []InstrumentConfig{
			{Symbol: "TSLA", Price: decimal.RequireFromString("200.00"), Volatility: decimal.RequireFromString("1.2")},
			{Symbol: "AAPL", Price: decimal.RequireFromString("150.00"), Volatility: decimal.RequireFromString("0.8")},
			{Symbol: "BTC", Price: decimal.RequireFromString("45000.00"), Volatility: decimal.RequireFromString("50.0")},
			{Symbol: "ETH", Price: decimal.RequireFromString("3000.00"), Volatility: decimal.RequireFromString("15.0")},
			{Symbol: "GOOGL", Price: decimal.RequireFromString("2800.00"), Volatility: decimal.RequireFromString("2.5")},
		},
	}
}

// Simulator owns the instrument table and advances every price by one
// stochastic step per tick. All external reads go through immutable
// snapshots, never live instrument state.
type Simulator struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.RWMutex
	rng         *rand.Rand
	instruments map[string]*instrument
	last        *Snapshot
}

// NewSimulator creates a simulator from seeded instruments. The initial
// snapshot has the starting prices and empty histories.
func NewSimulator(cfg Config, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 20
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Simulator{
		cfg:         cfg,
		logger:      logger,
		rng:         rand.New(rand.NewSource(seed)),
		instruments: make(map[string]*instrument, len(cfg.Instruments)),
	}

	for _, ic := range cfg.Instruments {
		price := ic.Price
		if price.LessThan(priceFloor) {
			price = priceFloor
		}
		s.instruments[ic.Symbol] = &instrument{
			symbol:     ic.Symbol,
			price:      price,
			volatility: ic.Volatility,
			series:     NewPriceSeries(cfg.HistoryWindow),
		}
	}

	s.last = s.buildSnapshot(time.Now())
	return s
}

// Tick advances every instrument's price by one stochastic step and
// returns the new snapshot. It cannot fail; it is pure arithmetic over
// in-memory state. All instruments in one tick share one timestamp label.
func (s *Simulator) Tick(now time.Time) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	label := now.Format("15:04:05")

	for _, inst := range s.instruments {
		// Uniform step in [-0.5, 0.5) scaled by the volatility coefficient.
		u := s.rng.Float64() - 0.5
		delta := decimal.NewFromFloat(u).Mul(inst.volatility)

		inst.price = inst.price.Add(delta)
		if inst.price.LessThan(priceFloor) {
			inst.price = priceFloor
		}

		inst.series.Append(types.PricePoint{Time: label, Price: inst.price})
	}

	s.last = s.buildSnapshot(now)
	return s.last
}

// Snapshot returns the most recent snapshot. Two calls without an
// intervening tick return identical data.
func (s *Simulator) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Symbols returns the configured instrument symbols.
func (s *Simulator) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]string, 0, len(s.instruments))
	for sym := range s.instruments {
		symbols = append(symbols, sym)
	}
	return symbols
}

// buildSnapshot assembles a fresh immutable snapshot. Caller must hold mu.
func (s *Simulator) buildSnapshot(now time.Time) *Snapshot {
	snap := &Snapshot{
		Time:        now.Format("15:04:05"),
		Instruments: make(map[string]InstrumentSnapshot, len(s.instruments)),
	}
	for sym, inst := range s.instruments {
		snap.Instruments[sym] = InstrumentSnapshot{
			Price:   inst.price,
			History: inst.series.Points(),
		}
	}
	return snap
}

// Run drives the tick loop on a fixed period until the context is
// cancelled. Ticks never overlap: each tick completes and is published
// before the next timer fire is consumed, so an overrun delays the next
// tick rather than running it concurrently.
func (s *Simulator) Run(ctx context.Context, publish func(*Snapshot)) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.logger.Info("market simulator started",
		"instruments", len(s.instruments),
		"interval", s.cfg.TickInterval,
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("market simulator stopped")
			return
		case now := <-ticker.C:
			snap := s.Tick(now)
			if publish != nil {
				publish(snap)
			}
		}
	}
}
