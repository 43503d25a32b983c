package session

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNew_AssignsUniqueIDs(t *testing.T) {
	cfg := DefaultConfig()
	a := New(cfg)
	b := New(cfg)

	if a.ID() == "" {
		t.Fatal("session ID should not be empty")
	}
	if a.ID() == b.ID() {
		t.Error("two sessions share an ID")
	}
}

func TestNew_LedgerStartsWithConfiguredCash(t *testing.T) {
	s := New(Config{StartingCash: decimal.NewFromInt(5000)})

	if !s.Ledger().Cash().Equal(decimal.NewFromInt(5000)) {
		t.Errorf("starting cash = %s, want 5000", s.Ledger().Cash())
	}
}

func TestSession_AllowOrderRateLimit(t *testing.T) {
	s := New(Config{
		StartingCash:    decimal.NewFromInt(10000),
		OrdersPerSecond: 2,
	})

	// Burst of 2 allowed, third immediately after must be limited.
	if !s.AllowOrder() {
		t.Error("first order should be allowed")
	}
	if !s.AllowOrder() {
		t.Error("second order should be allowed")
	}
	if s.AllowOrder() {
		t.Error("third immediate order should be rate limited")
	}
}

func TestSession_AllowOrderUnlimitedWhenDisabled(t *testing.T) {
	s := New(Config{StartingCash: decimal.NewFromInt(10000), OrdersPerSecond: 0})

	for i := 0; i < 100; i++ {
		if !s.AllowOrder() {
			t.Fatal("disabled limiter rejected an order")
		}
	}
}

func TestRegistry_AddRemove(t *testing.T) {
	r := NewRegistry()
	s := New(DefaultConfig())

	r.Add(s)
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	got, ok := r.Get(s.ID())
	if !ok || got != s {
		t.Error("Get() did not return the registered session")
	}

	r.Remove(s.ID())
	if r.Len() != 0 {
		t.Errorf("Len() after Remove = %d, want 0", r.Len())
	}
	if _, ok := r.Get(s.ID()); ok {
		t.Error("Get() found a removed session")
	}
}
