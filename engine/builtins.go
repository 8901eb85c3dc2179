package engine

import (
	"context"

	"github.com/wippyai/canon-abi/codec"
	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/task"
)

// Call is the live state of one lifted export invocation. It reaches the
// core function through its context so built-ins can act on the running
// task and lift or lower against the callee's memory.
type Call struct {
	task *task.Task
	inst *Instance
	def  *FuncDef
	cx   *codec.Context
}

type callKey struct{}

func withCall(ctx context.Context, c *Call) context.Context {
	return context.WithValue(ctx, callKey{}, c)
}

// CurrentCall returns the call state for built-ins invoked from inside a
// lifted export, or nil outside one.
func CurrentCall(ctx context.Context) *Call {
	c, _ := ctx.Value(callKey{}).(*Call)
	return c
}

func (c *Call) Task() *task.Task      { return c.task }
func (c *Call) Instance() *Instance   { return c.inst }
func (c *Call) Codec() *codec.Context { return c.cx }

// TaskReturn is the task.return built-in: lift the result values off the
// flat stack and resolve the call. Asynchronous exports must call it
// before exiting.
func (c *Call) TaskReturn(flat []uint64) error {
	var vals []any
	if len(c.def.Results) > 0 {
		var err error
		vals, err = c.cx.LiftFlatValues(c.def.Results, flat, codec.MaxFlatParams)
		if err != nil {
			return err
		}
	}
	return c.task.Return(vals)
}

// TaskCancel acknowledges a delivered cancellation request: the task
// exits without producing a result. Borrow and subtask obligations still
// hold.
func (c *Call) TaskCancel() error {
	if !c.task.CancelDelivered() && !c.task.CancelRequested() {
		return errors.State(errors.PhaseTask, "task.cancel without a pending cancellation request")
	}
	return c.task.CancelExit()
}

// ContextGet reads one scratch slot. Slots are zero at call start.
func (c *Call) ContextGet(slot uint32) (uint32, error) {
	return c.task.ContextGet(slot)
}

// ContextSet writes one scratch slot.
func (c *Call) ContextSet(slot, v uint32) error {
	return c.task.ContextSet(slot, v)
}

// Yield hands the permit to any other runnable task.
func (c *Call) Yield(ctx context.Context) error {
	return c.task.Yield(ctx)
}

// YieldCancellable yields and reports a delivered cancellation request.
func (c *Call) YieldCancellable(ctx context.Context) (bool, error) {
	return c.task.YieldCancellable(ctx)
}

// Wait blocks on a waitable set until a member has an event.
func (c *Call) Wait(ctx context.Context, setIdx uint32) (task.Event, error) {
	return c.inst.WaitableSetWait(ctx, c.task, setIdx)
}

// Poll reports a ready event from a waitable set without blocking.
func (c *Call) Poll(setIdx uint32) (task.Event, bool, error) {
	return c.inst.WaitableSetPoll(setIdx)
}
