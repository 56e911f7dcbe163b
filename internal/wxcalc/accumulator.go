package wxcalc

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/chrissnell/vantaged/internal/types"
)

type sample struct {
	at    time.Time
	value float64
}

// Accumulator keeps the samples of a trailing time window.
type Accumulator struct {
	mu      sync.Mutex
	window  time.Duration
	samples []sample
}

// NewAccumulator returns an accumulator spanning window.
func NewAccumulator(window time.Duration) *Accumulator {
	return &Accumulator{window: window}
}

// Add appends a sample and ages out everything older than the window,
// measured from the newest sample. Null samples are ignored.
func (a *Accumulator) Add(at time.Time, v float64) {
	if types.IsNull(v) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.samples = append(a.samples, sample{at: at, value: v})
	newest := at
	for _, s := range a.samples {
		if s.at.After(newest) {
			newest = s.at
		}
	}
	cutoff := newest.Add(-a.window)
	kept := a.samples[:0]
	for _, s := range a.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	a.samples = kept
}

// Len returns the number of samples held.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.samples)
}

// Values returns a copy of the held samples in insertion order.
func (a *Accumulator) Values() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	values := make([]float64, len(a.samples))
	for i, s := range a.samples {
		values[i] = s.value
	}
	return values
}

// Mean returns the mean of the held samples, or Null when empty.
func (a *Accumulator) Mean() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.samples) == 0 {
		return null
	}
	values := make([]float64, len(a.samples))
	for i, s := range a.samples {
		values[i] = s.value
	}
	return stat.Mean(values, nil)
}
