package task

import (
	"context"
	"sync"

	"github.com/wippyai/canon-abi/errors"
)

// WaitableSet multiplexes many waitables behind one blocking wait. Ready
// members queue in the order their events were posted; delivery order
// among simultaneously ready members is not part of the contract.
type WaitableSet struct {
	mu      sync.Mutex
	members map[*Waitable]struct{}
	ready   []*Waitable
	wake    chan struct{}
	waiting int
	dropped bool
}

func NewWaitableSet() *WaitableSet {
	return &WaitableSet{
		members: make(map[*Waitable]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Join moves w into this set, leaving any previous set. A pending event
// carries over.
func (s *WaitableSet) Join(w *Waitable) error {
	s.mu.Lock()
	if s.dropped {
		s.mu.Unlock()
		return errors.State(errors.PhaseWait, "join on dropped waitable set")
	}
	s.mu.Unlock()

	w.Leave()

	w.mu.Lock()
	w.set = s
	hasPending := w.pending != EventNone
	w.mu.Unlock()

	s.mu.Lock()
	s.members[w] = struct{}{}
	s.mu.Unlock()

	if hasPending {
		s.notify(w)
	}
	return nil
}

func (s *WaitableSet) notify(w *Waitable) {
	s.mu.Lock()
	for _, r := range s.ready {
		if r == w {
			s.mu.Unlock()
			return
		}
	}
	s.ready = append(s.ready, w)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *WaitableSet) remove(w *Waitable) {
	s.mu.Lock()
	delete(s.members, w)
	for i, r := range s.ready {
		if r == w {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
}

// Poll delivers a ready member's event, or reports none without blocking.
func (s *WaitableSet) Poll() (Event, bool) {
	for {
		s.mu.Lock()
		if len(s.ready) == 0 {
			s.mu.Unlock()
			return Event{}, false
		}
		w := s.ready[0]
		s.ready = s.ready[1:]
		s.mu.Unlock()

		if ev, ok := w.deliver(); ok {
			return ev, true
		}
		// the event was consumed elsewhere; try the next ready member
	}
}

// Wait blocks until a member has a pending event and delivers it. The
// scheduler permit is released while parked. Wait is a cancellable
// blocking point: a latched cancellation request on t is delivered here
// as a task-cancelled event.
func (s *WaitableSet) Wait(ctx context.Context, t *Task) (Event, error) {
	s.mu.Lock()
	s.waiting++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.waiting--
		s.mu.Unlock()
	}()

	for {
		if ev, ok := s.Poll(); ok {
			return ev, nil
		}
		if t != nil && t.takeCancelRequest() {
			return Event{Code: EventTaskCancelled}, nil
		}

		var cancel <-chan struct{}
		if t != nil {
			cancel = t.cancelCh
		}
		if err := blockOn(ctx, t, s.wake, cancel); err != nil {
			return Event{}, err
		}
	}
}

// Drop destroys the set. A set that still has members, or that another
// task is blocked on, cannot be dropped.
func (s *WaitableSet) Drop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.members) > 0 {
		return errors.State(errors.PhaseWait, "drop of waitable set with %d members", len(s.members))
	}
	if s.waiting > 0 {
		return errors.State(errors.PhaseWait, "drop of waitable set with %d waiters", s.waiting)
	}
	s.dropped = true
	return nil
}

// blockOn parks the calling task until one of the wake sources fires,
// releasing the scheduler permit for the duration.
func blockOn(ctx context.Context, t *Task, wake <-chan struct{}, cancel <-chan struct{}) error {
	var sched *Scheduler
	if t != nil {
		t.noteBlocked()
		sched = t.sched
	}
	if sched != nil {
		sched.Release()
	}
	var err error
	select {
	case <-wake:
	case <-cancel:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if sched != nil {
		if aerr := sched.Acquire(ctx); aerr != nil && err == nil {
			err = aerr
		}
	}
	return err
}
