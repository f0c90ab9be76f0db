package utils

import (
	"math"
	"slices"
	"sync"
	"time"
)

// LatencyTracker keeps a sliding window of the most recent durations.
type LatencyTracker struct {
	mu      sync.Mutex
	window  []time.Duration
	next    int
	filled  bool
	samples int
}

// NewLatencyTracker creates a tracker whose window holds size samples.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 512
	}
	return &LatencyTracker{window: make([]time.Duration, size)}
}

// Observe records a duration, overwriting the oldest sample once the window is full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.window[l.next] = d
	l.next = (l.next + 1) % len(l.window)
	if l.next == 0 {
		l.filled = true
	}
	l.samples++
}

// Percentile returns the nearest-rank percentile (0-100) of the window, or zero when empty.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.Lock()
	sorted := slices.Clone(l.current())
	l.mu.Unlock()

	if len(sorted) == 0 {
		return 0
	}
	slices.Sort(sorted)
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	return sorted[max(rank-1, 0)]
}

// Count returns the number of samples currently in the window.
func (l *LatencyTracker) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.current())
}

// Total returns the number of samples ever observed.
func (l *LatencyTracker) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.samples
}

func (l *LatencyTracker) current() []time.Duration {
	if l.filled {
		return l.window
	}
	return l.window[:l.next]
}
