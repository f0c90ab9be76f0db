package engine

import (
	"context"
	"log/slog"
	"sync"
)

// Scheduler detaches work from the request that produced it.
type Scheduler interface {
	Go(name string, task func(ctx context.Context))
}

// GoroutineScheduler runs tasks on goroutines bounded by a semaphore. Tasks receive a
// background context so they outlive the originating request.
type GoroutineScheduler struct {
	logger *slog.Logger
	sem    chan struct{}
	wg     sync.WaitGroup
}

// NewGoroutineScheduler constructs a scheduler. maxConcurrent <= 0 means unbounded.
func NewGoroutineScheduler(maxConcurrent int, logger *slog.Logger) *GoroutineScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &GoroutineScheduler{logger: logger}
	if maxConcurrent > 0 {
		s.sem = make(chan struct{}, maxConcurrent)
	}
	return s
}

// Go runs task asynchronously. A panicking task is logged and does not take the process down.
func (s *GoroutineScheduler) Go(name string, task func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.sem != nil {
			s.sem <- struct{}{}
			defer func() { <-s.sem }()
		}
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled task panicked", slog.String("task", name), slog.Any("panic", r))
			}
		}()
		task(context.Background())
	}()
}

// Wait blocks until every scheduled task returned or ctx is done.
func (s *GoroutineScheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// InlineScheduler runs tasks synchronously on the caller's goroutine.
type InlineScheduler struct{}

// Go runs task immediately.
func (InlineScheduler) Go(_ string, task func(ctx context.Context)) {
	task(context.Background())
}
