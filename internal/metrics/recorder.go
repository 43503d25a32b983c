package metrics

import (
	"time"

	"github.com/shopspring/decimal"
)

// Recorder provides methods for recording metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordTick records one completed simulation tick.
func (r *Recorder) RecordTick(duration time.Duration) {
	TicksTotal.Inc()
	TickDuration.Observe(duration.Seconds())
}

// RecordPrice records the latest price for an instrument.
func (r *Recorder) RecordPrice(symbol string, price decimal.Decimal) {
	InstrumentPrice.WithLabelValues(symbol).Set(price.InexactFloat64())
}

// RecordSessions records the connected session count.
func (r *Recorder) RecordSessions(count int) {
	SessionsConnected.Set(float64(count))
}

// RecordOrder records an order outcome.
func (r *Recorder) RecordOrder(symbol, side, status string) {
	OrdersTotal.WithLabelValues(symbol, side, status).Inc()
}

// RecordRejection records a rejected order by reason.
func (r *Recorder) RecordRejection(reason string) {
	OrderRejections.WithLabelValues(reason).Inc()
}

// RecordTrade records a filled trade.
func (r *Recorder) RecordTrade(symbol, side string) {
	TradesTotal.WithLabelValues(symbol, side).Inc()
}

// Timer is a helper for measuring latency.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveOrder observes the elapsed time as order latency.
func (t *Timer) ObserveOrder() {
	OrderLatency.Observe(t.Elapsed().Seconds())
}
