package task

import (
	"context"
)

// Scheduler is the cooperative run permit shared by every task in one
// engine. Exactly one task holds the permit at a time; a task must hold
// it while executing and release it across every blocking point. The
// permit is an explicit object rather than ambient state so embedders can
// run several independent engines side by side.
type Scheduler struct {
	permit chan struct{}
}

func NewScheduler() *Scheduler {
	s := &Scheduler{permit: make(chan struct{}, 1)}
	s.permit <- struct{}{}
	return s
}

// Acquire blocks until the caller may run.
func (s *Scheduler) Acquire(ctx context.Context) error {
	select {
	case <-s.permit:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release hands the permit to whichever blocked task wins it next.
func (s *Scheduler) Release() {
	select {
	case s.permit <- struct{}{}:
	default:
		panic("scheduler: release without matching acquire")
	}
}

// Yield gives every other runnable task a chance to take the permit
// before the caller continues.
func (s *Scheduler) Yield(ctx context.Context) error {
	s.Release()
	return s.Acquire(ctx)
}
