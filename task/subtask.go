package task

import (
	"sync"

	"github.com/wippyai/canon-abi/errors"
)

// SubtaskState is the caller-visible lifecycle of one call to an import.
type SubtaskState uint8

const (
	StateStarting SubtaskState = iota
	StateStarted
	StateReturned
	StateCancelledBeforeStarted
	StateCancelledBeforeReturned
)

func (s SubtaskState) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateStarted:
		return "started"
	case StateReturned:
		return "returned"
	case StateCancelledBeforeStarted:
		return "cancelled-before-started"
	case StateCancelledBeforeReturned:
		return "cancelled-before-returned"
	}
	return "unknown"
}

// Terminal reports whether the state is one of the three resolved states.
func (s SubtaskState) Terminal() bool {
	return s == StateReturned || s == StateCancelledBeforeStarted || s == StateCancelledBeforeReturned
}

// Subtask is the caller-side bookkeeping for one call to an import. Every
// state transition posts an event through the subtask's waitable; the
// event payload carries the state at delivery time.
type Subtask struct {
	mu       sync.Mutex
	caller   *Task
	callee   *Task
	state    SubtaskState
	lends    []func()
	results  []any
	resolved bool
	dropped  bool

	waitable *Waitable
}

// NewSubtask opens a subtask under caller. The caller cannot exit until
// the subtask resolves.
func NewSubtask(caller *Task) *Subtask {
	s := &Subtask{caller: caller}
	s.waitable = NewWaitable(s)
	if caller != nil {
		caller.subtaskOpened()
	}
	return s
}

// Waitable exposes the subtask as a member for waitable sets.
func (s *Subtask) Waitable() *Waitable { return s.waitable }

func (s *Subtask) State() SubtaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// BuildEvent implements EventSource: the payload reflects the state when
// the event is delivered, not when it was posted.
func (s *Subtask) BuildEvent(code EventCode) Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Event{Code: code, P1: uint32(s.state)}
}

// RegisterLend implements resource.Lender. Releases run when the subtask
// resolves, restoring every lender's lend count.
func (s *Subtask) RegisterLend(release func()) {
	s.mu.Lock()
	s.lends = append(s.lends, release)
	s.mu.Unlock()
}

// Bind attaches the callee task once the call is admitted.
func (s *Subtask) Bind(callee *Task) {
	s.mu.Lock()
	s.callee = callee
	s.mu.Unlock()
}

// MarkStarted transitions STARTING to STARTED and notifies the caller.
func (s *Subtask) MarkStarted() error {
	s.mu.Lock()
	if s.state != StateStarting {
		s.mu.Unlock()
		return errors.State(errors.PhaseTask, "start transition from %s", s.state)
	}
	s.state = StateStarted
	s.mu.Unlock()
	s.waitable.Post(EventSubtask)
	return nil
}

// MarkReturned records the callee's result and resolves the subtask.
func (s *Subtask) MarkReturned(vals []any) error {
	s.mu.Lock()
	if s.state != StateStarting && s.state != StateStarted {
		s.mu.Unlock()
		return errors.State(errors.PhaseTask, "return transition from %s", s.state)
	}
	s.state = StateReturned
	s.results = vals
	s.mu.Unlock()
	s.resolve()
	s.waitable.Post(EventSubtask)
	return nil
}

// MarkCancelled resolves the subtask through one of the two cancellation
// terminals. Before a start the arguments were never delivered; after it,
// no results exist but every lend is released either way.
func (s *Subtask) MarkCancelled() error {
	s.mu.Lock()
	switch s.state {
	case StateStarting:
		s.state = StateCancelledBeforeStarted
	case StateStarted:
		s.state = StateCancelledBeforeReturned
	default:
		s.mu.Unlock()
		return errors.State(errors.PhaseTask, "cancel transition from %s", s.state)
	}
	s.mu.Unlock()
	s.resolve()
	s.waitable.Post(EventSubtask)
	return nil
}

// resolve releases every lend exactly once and closes the caller's open
// subtask slot.
func (s *Subtask) resolve() {
	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return
	}
	s.resolved = true
	lends := s.lends
	s.lends = nil
	caller := s.caller
	s.mu.Unlock()

	for _, release := range lends {
		release()
	}
	if caller != nil {
		caller.subtaskResolved()
	}
}

// Resolved reports whether the subtask reached a terminal state.
func (s *Subtask) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// Results returns the values recorded by MarkReturned.
func (s *Subtask) Results() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results
}

// Cancel requests cooperative cancellation of the callee. A started
// callee observes it at its next cancellable blocking point; a callee
// that never blocks cancellably resolves normally. Cancelling a call
// still gated on admission is handled by the engine through ErrCancelled.
func (s *Subtask) Cancel() {
	s.mu.Lock()
	callee := s.callee
	s.mu.Unlock()
	if callee != nil {
		callee.RequestCancel()
	}
}

// Drop discards a resolved subtask. Dropping an unresolved subtask traps:
// the caller must wait for resolution first.
func (s *Subtask) Drop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dropped {
		return errors.State(errors.PhaseTask, "subtask already dropped")
	}
	if !s.resolved {
		return errors.State(errors.PhaseTask, "drop of unresolved subtask in state %s", s.state)
	}
	s.dropped = true
	s.waitable.Leave()
	return nil
}
