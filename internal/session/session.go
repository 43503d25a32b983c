// Package session tracks connected traders and their ledgers.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tuanle/tickersim/internal/portfolio"
	"golang.org/x/time/rate"
)

// Session is one connected trader: a private ledger plus order pacing.
// Orders from one session are applied strictly in submission order; the
// mutex ensures at most one order is in flight per session.
type Session struct {
	id      string
	ledger  *portfolio.Ledger
	limiter *rate.Limiter

	orderMu sync.Mutex
}

// Config holds per-session settings.
type Config struct {
	StartingCash    decimal.Decimal
	OrdersPerSecond float64 // 0 disables rate limiting
}

// DefaultConfig returns the reference session settings.
func DefaultConfig() Config {
	return Config{
		StartingCash:    decimal.NewFromInt(10000),
		OrdersPerSecond: 10,
	}
}

// New creates a session with a fresh ledger.
func New(cfg Config) *Session {
	var limiter *rate.Limiter
	if cfg.OrdersPerSecond > 0 {
		burst := int(cfg.OrdersPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.OrdersPerSecond), burst)
	}

	return &Session{
		id:      uuid.New().String(),
		ledger:  portfolio.NewLedger(cfg.StartingCash),
		limiter: limiter,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Ledger returns the session's ledger.
func (s *Session) Ledger() *portfolio.Ledger {
	return s.ledger
}

// AllowOrder reports whether the session is within its submission rate.
func (s *Session) AllowOrder() bool {
	if s.limiter == nil {
		return true
	}
	return s.limiter.Allow()
}

// LockOrders serializes order handling for this session.
func (s *Session) LockOrders() {
	s.orderMu.Lock()
}

// UnlockOrders releases the order serialization lock.
func (s *Session) UnlockOrders() {
	s.orderMu.Unlock()
}

// Registry is the set of currently connected sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add registers a session.
func (r *Registry) Add(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.id] = s
}

// Remove unregisters a session by ID.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Get returns a session by ID.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of connected sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
