package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(10)
	for _, ms := range []int{50, 10, 40, 20, 30} {
		tracker.Observe(time.Duration(ms) * time.Millisecond)
	}

	require.Equal(t, 5, tracker.Count())
	require.Equal(t, 50*time.Millisecond, tracker.Percentile(95))
	require.Equal(t, 30*time.Millisecond, tracker.Percentile(50))
	require.Equal(t, 10*time.Millisecond, tracker.Percentile(0))
	require.Equal(t, 50*time.Millisecond, tracker.Percentile(100))
}

func TestLatencyTrackerSlidingWindow(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for i := 1; i <= 10; i++ {
		tracker.Observe(time.Duration(i) * time.Millisecond)
	}
	require.Equal(t, 3, tracker.Count())
	require.Equal(t, 10, tracker.Total())
	require.Equal(t, 8*time.Millisecond, tracker.Percentile(0))
	require.Equal(t, 10*time.Millisecond, tracker.Percentile(100))
}

func TestLatencyTrackerEmpty(t *testing.T) {
	require.Zero(t, NewLatencyTracker(0).Percentile(95))
}
