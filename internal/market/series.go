// Package market simulates synthetic prices for a fixed set of instruments.
package market

import "github.com/tuanle/tickersim/internal/types"

// PriceSeries is a bounded FIFO history of past prices for one instrument.
// Once the window is full, appending evicts the oldest entry.
type PriceSeries struct {
	window int
	points []types.PricePoint
}

// NewPriceSeries creates a series holding at most window points.
func NewPriceSeries(window int) *PriceSeries {
	if window <= 0 {
		window = 1
	}
	return &PriceSeries{
		window: window,
		points: make([]types.PricePoint, 0, window),
	}
}

// Append adds a point, evicting the oldest entry if the window is exceeded.
func (s *PriceSeries) Append(p types.PricePoint) {
	s.points = append(s.points, p)
	if len(s.points) > s.window {
		s.points = s.points[1:]
	}
}

// Points returns a copy of the history, oldest first.
func (s *PriceSeries) Points() []types.PricePoint {
	out := make([]types.PricePoint, len(s.points))
	copy(out, s.points)
	return out
}

// Len returns the number of stored points.
func (s *PriceSeries) Len() int {
	return len(s.points)
}

// Window returns the maximum number of stored points.
func (s *PriceSeries) Window() int {
	return s.window
}
