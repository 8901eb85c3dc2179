package task

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/canon-abi/errors"
)

// ErrCancelled aborts admission of a call whose cancellation was
// requested before it started.
var ErrCancelled = errors.State(errors.PhaseTask, "call cancelled before start")

// ContextSlots is the number of per-call scratch storage slots.
const ContextSlots = 2

// Task is the callee-side bookkeeping for one entered call. It lives from
// admission until Exit and owns the call's scratch storage, borrow
// accounting, and cancellation latch.
type Task struct {
	inst   *Instance
	caller *Task
	sched  *Scheduler
	sync   bool

	mu           sync.Mutex
	storage      [ContextSlots]uint32
	openSubtasks int
	borrows      int
	returned     bool
	exited       bool
	cancelReq    bool
	cancelSeen   bool
	cancelCh     chan struct{}
	blockedOnce  bool

	// OnReturn receives the returned values exactly once. Set by the
	// engine before the callee runs.
	OnReturn func(vals []any)

	// OnFirstBlock fires the first time this task parks at a blocking
	// point. The engine uses it to resolve the lazy fork of
	// asynchronously bound calls.
	OnFirstBlock func()
}

// New creates the task for a call into inst without admitting it. The
// split from Enter lets a caller cancel a call that is still queued on
// the admission gate.
func New(inst *Instance, caller *Task, sync bool) *Task {
	return &Task{
		inst:     inst,
		caller:   caller,
		sched:    inst.sched,
		sync:     sync,
		cancelCh: make(chan struct{}, 1),
	}
}

// Enter admits the task into its instance. It applies the reentrance
// guard (walking the caller chain for the instance), then the
// backpressure gate. The calling goroutine must hold the scheduler
// permit; it is released while the task is queued.
func (t *Task) Enter(ctx context.Context) error {
	for c := t.caller; c != nil; c = c.caller {
		if c.inst == t.inst {
			return errors.Reentrance("instance %q is already on the caller chain", t.inst.name)
		}
	}
	if err := t.inst.admit(ctx, t); err != nil {
		return err
	}
	t.inst.entered(t.sync)
	Logger().Debug("task entered",
		zap.String("instance", t.inst.name),
		zap.Bool("sync", t.sync))
	return nil
}

// Enter is the one-step form of New followed by Task.Enter.
func Enter(ctx context.Context, inst *Instance, caller *Task, sync bool) (*Task, error) {
	t := New(inst, caller, sync)
	if err := t.Enter(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Task) Instance() *Instance { return t.inst }
func (t *Task) Caller() *Task       { return t.caller }
func (t *Task) Sync() bool          { return t.sync }

// ContextGet reads a scratch storage slot. Slots start zeroed.
func (t *Task) ContextGet(slot uint32) (uint32, error) {
	if slot >= ContextSlots {
		return 0, errors.State(errors.PhaseTask, "context slot %d out of range", slot)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.storage[slot], nil
}

// ContextSet writes a scratch storage slot.
func (t *Task) ContextSet(slot, v uint32) error {
	if slot >= ContextSlots {
		return errors.State(errors.PhaseTask, "context slot %d out of range", slot)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.storage[slot] = v
	return nil
}

// BorrowLowered and BorrowDropped implement resource.BorrowScope: every
// borrow handle lowered into this call must be dropped before Return.
func (t *Task) BorrowLowered() {
	t.mu.Lock()
	t.borrows++
	t.mu.Unlock()
}

func (t *Task) BorrowDropped() {
	t.mu.Lock()
	t.borrows--
	t.mu.Unlock()
}

func (t *Task) subtaskOpened() {
	t.mu.Lock()
	t.openSubtasks++
	t.mu.Unlock()
}

func (t *Task) subtaskResolved() {
	t.mu.Lock()
	t.openSubtasks--
	t.mu.Unlock()
}

// OpenSubtasks is the number of unresolved calls this task has made.
func (t *Task) OpenSubtasks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.openSubtasks
}

// Return delivers the call's result. It traps on a second delivery and
// while borrow handles lowered into this call are still live.
func (t *Task) Return(vals []any) error {
	t.mu.Lock()
	if t.returned {
		t.mu.Unlock()
		return errors.State(errors.PhaseTask, "task already returned")
	}
	if t.borrows > 0 {
		t.mu.Unlock()
		return errors.BorrowViolation(errors.PhaseTask, "return with %d live borrow handles", t.borrows)
	}
	t.returned = true
	deliver := t.OnReturn
	t.mu.Unlock()

	if deliver != nil {
		deliver(vals)
	}
	return nil
}

// Returned reports whether the deferred return has been delivered.
func (t *Task) Returned() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.returned
}

// Exit reclaims the task. Every subtask must have resolved and the return
// must have been delivered (or the cancellation acknowledged).
func (t *Task) Exit() error {
	t.mu.Lock()
	if t.exited {
		t.mu.Unlock()
		return errors.State(errors.PhaseTask, "task already exited")
	}
	if t.openSubtasks > 0 {
		t.mu.Unlock()
		return errors.State(errors.PhaseTask, "exit with %d open subtasks", t.openSubtasks)
	}
	if !t.returned {
		t.mu.Unlock()
		return errors.State(errors.PhaseTask, "exit before return")
	}
	t.exited = true
	t.mu.Unlock()

	t.inst.exited(t.sync)
	Logger().Debug("task exited", zap.String("instance", t.inst.name))
	return nil
}

// CancelExit acknowledges a delivered cancellation request: the task
// exits without producing a result. Borrow and subtask obligations still
// hold.
func (t *Task) CancelExit() error {
	t.mu.Lock()
	if t.returned || t.exited {
		t.mu.Unlock()
		return errors.State(errors.PhaseTask, "cancel-exit after return or exit")
	}
	if t.borrows > 0 {
		t.mu.Unlock()
		return errors.BorrowViolation(errors.PhaseTask, "cancel-exit with %d live borrow handles", t.borrows)
	}
	if t.openSubtasks > 0 {
		t.mu.Unlock()
		return errors.State(errors.PhaseTask, "cancel-exit with %d open subtasks", t.openSubtasks)
	}
	t.returned = true
	t.exited = true
	t.mu.Unlock()

	t.inst.exited(t.sync)
	return nil
}

// Exited reports whether the task has left the instance gate.
func (t *Task) Exited() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exited
}

// Kill abandons the task after a trap, releasing the instance gate
// without enforcing return or borrow obligations. The trap has already
// made the call unusable; Kill only keeps the gate from wedging.
func (t *Task) Kill() {
	t.mu.Lock()
	if t.exited {
		t.mu.Unlock()
		return
	}
	t.returned = true
	t.exited = true
	t.mu.Unlock()
	t.inst.exited(t.sync)
}

// RequestCancel latches a cooperative cancellation request. It is
// delivered at the task's next cancellable blocking point; a task that
// never blocks cancellably never observes it.
func (t *Task) RequestCancel() {
	t.mu.Lock()
	already := t.cancelReq
	t.cancelReq = true
	t.mu.Unlock()
	if already {
		return
	}
	select {
	case t.cancelCh <- struct{}{}:
	default:
	}
}

// takeCancelRequest consumes the latch.
func (t *Task) takeCancelRequest() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.cancelReq {
		return false
	}
	t.cancelReq = false
	t.cancelSeen = true
	return true
}

// CancelRequested peeks at the latch without consuming it.
func (t *Task) CancelRequested() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelReq
}

// CancelDelivered reports whether a cancellation request has reached the
// task at a cancellable blocking point.
func (t *Task) CancelDelivered() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cancelSeen
}

// Yield cooperatively gives up the scheduler permit. The cancellable
// variant reports a latched cancellation request instead of resuming.
func (t *Task) Yield(ctx context.Context) error {
	t.noteBlocked()
	return t.sched.Yield(ctx)
}

// YieldCancellable is Yield as a cancellable blocking point. It returns
// true when a cancellation request was delivered.
func (t *Task) YieldCancellable(ctx context.Context) (bool, error) {
	t.noteBlocked()
	if err := t.sched.Yield(ctx); err != nil {
		return false, err
	}
	return t.takeCancelRequest(), nil
}

// noteBlocked fires OnFirstBlock exactly once.
func (t *Task) noteBlocked() {
	t.mu.Lock()
	first := !t.blockedOnce
	t.blockedOnce = true
	fn := t.OnFirstBlock
	t.mu.Unlock()
	if first && fn != nil {
		fn()
	}
}
