package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGoroutineSchedulerRunsAllTasks(t *testing.T) {
	s := NewGoroutineScheduler(2, nil)
	var count atomic.Int32
	for i := 0; i < 10; i++ {
		s.Go("count", func(context.Context) { count.Add(1) })
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Wait(ctx))
	require.Equal(t, int32(10), count.Load())
}

func TestGoroutineSchedulerBoundsConcurrency(t *testing.T) {
	s := NewGoroutineScheduler(1, nil)
	var running, peak atomic.Int32
	for i := 0; i < 5; i++ {
		s.Go("bounded", func(context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		})
	}
	require.NoError(t, s.Wait(context.Background()))
	require.Equal(t, int32(1), peak.Load())
}

func TestGoroutineSchedulerRecoversPanics(t *testing.T) {
	s := NewGoroutineScheduler(0, nil)
	s.Go("boom", func(context.Context) { panic("boom") })
	require.NoError(t, s.Wait(context.Background()))
}

func TestGoroutineSchedulerWaitHonoursContext(t *testing.T) {
	s := NewGoroutineScheduler(0, nil)
	release := make(chan struct{})
	s.Go("blocked", func(context.Context) { <-release })
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)
	close(release)
	require.NoError(t, s.Wait(context.Background()))
}
