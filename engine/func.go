package engine

import (
	"context"
	stderrors "errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/canon-abi/codec"
	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/task"
	"github.com/wippyai/canon-abi/types"
)

// CoreFunc is a callable core function in wazero's stack convention:
// flat params occupy the head of the stack and flat results are written
// back starting at index zero.
type CoreFunc func(ctx context.Context, stack []uint64) error

// FuncDef describes one imported or exported function: its name and the
// type descriptors of its params and results, as produced by the
// external front end.
type FuncDef struct {
	Name    string
	Params  []*types.Type
	Results []*types.Type
}

// LiftedFunc wraps a callee export as a host-callable function over
// abstract values.
type LiftedFunc struct {
	def  *FuncDef
	inst *Instance
	opts *codec.Options
	fn   CoreFunc
}

// Lift wraps an export of this instance. The options bundle is the
// callee's: its memory, reallocator, string encoding and binding mode.
func (i *Instance) Lift(def *FuncDef, opts *codec.Options, fn CoreFunc) *LiftedFunc {
	return &LiftedFunc{def: def, inst: i, opts: opts, fn: fn}
}

func (f *LiftedFunc) Def() *FuncDef { return f.def }

// Call invokes the export with abstract arguments, blocking until it
// resolves. It must be invoked holding the scheduler permit; caller may
// be nil for host-initiated calls.
func (f *LiftedFunc) Call(ctx context.Context, caller *task.Task, args []any) ([]any, error) {
	return f.call(ctx, caller, nil, args, nil)
}

func (f *LiftedFunc) call(ctx context.Context, caller *task.Task, sub *task.Subtask, args []any, onFirstBlock func()) ([]any, error) {
	t := task.New(f.inst.task, caller, f.opts.Sync)
	t.OnFirstBlock = onFirstBlock
	if sub != nil {
		sub.Bind(t)
	}
	if err := t.Enter(ctx); err != nil {
		if sub != nil && stderrors.Is(err, task.ErrCancelled) {
			markCancelled(sub)
		}
		return nil, err
	}
	if sub != nil {
		if err := sub.MarkStarted(); err != nil {
			t.Kill()
			return nil, err
		}
	}

	maxP, maxR := codec.MaxFlatParams, codec.MaxFlatResults
	if !f.opts.Sync {
		maxP, maxR = codec.MaxFlatAsyncParams, codec.MaxFlatAsyncResults
	}

	cx := codec.NewContext(f.opts, &handleScope{inst: f.inst, borrower: t})

	var results []any
	returned := false
	t.OnReturn = func(vals []any) {
		results = vals
		returned = true
	}

	call := &Call{task: t, inst: f.inst, def: f.def, cx: cx}
	ctx = withCall(ctx, call)

	params, err := cx.LowerFlatValues(f.def.Params, args, maxP)
	if err != nil {
		f.abandon(t, sub)
		return nil, err
	}

	_, flatResults := codec.LiftSignature(f.def.Params, f.def.Results, f.opts.Sync)
	stack := make([]uint64, maxInt(len(params), len(flatResults)))
	copy(stack, params)

	if err := f.fn(ctx, stack); err != nil {
		f.abandon(t, sub)
		return nil, err
	}

	if f.opts.Sync && !returned {
		// synchronous exports report results on the stack
		var vals []any
		if len(f.def.Results) > 0 {
			vals, err = cx.LiftFlatValues(f.def.Results, stack[:len(flatResults)], maxR)
			if err != nil {
				f.abandon(t, sub)
				return nil, err
			}
		}
		if err := t.Return(vals); err != nil {
			f.abandon(t, sub)
			return nil, err
		}
	}

	switch {
	case returned:
		if sub != nil {
			if err := sub.MarkReturned(results); err != nil {
				f.abandon(t, sub)
				return nil, err
			}
		}
		if f.opts.PostReturn != nil {
			f.opts.PostReturn()
		}
		if err := t.Exit(); err != nil {
			f.abandon(t, sub)
			return nil, err
		}
		return results, nil
	case t.Returned():
		// cancel-exit: the callee acknowledged cancellation and left
		// without a result
		if sub != nil {
			markCancelled(sub)
		}
		return nil, nil
	default:
		f.abandon(t, sub)
		return nil, errors.State(errors.PhaseTask, "export %s exited without returning", f.def.Name)
	}
}

// abandon unwinds a trapped call: the gate is released and the subtask
// resolved so the caller's lends restore and its exit is not blocked.
func (f *LiftedFunc) abandon(t *task.Task, sub *task.Subtask) {
	t.Kill()
	if sub != nil {
		markCancelled(sub)
	}
}

func markCancelled(sub *task.Subtask) {
	if sub.Resolved() {
		return
	}
	if err := sub.MarkCancelled(); err != nil {
		Logger().Warn("subtask cancellation mark failed", zap.Error(err))
	}
}

// LoweredFunc adapts a lifted function for calls out of a caller
// instance's flat world.
type LoweredFunc struct {
	target *LiftedFunc
	caller *Instance
	opts   *codec.Options
}

// Lower wraps an import of this instance targeting a lifted export. The
// options bundle is the caller's; its binding mode decides whether Call
// blocks until resolution or yields a subtask at the callee's first
// block.
func (i *Instance) Lower(target *LiftedFunc, opts *codec.Options) *LoweredFunc {
	return &LoweredFunc{target: target, caller: i, opts: opts}
}

// Call invokes the import from the caller's running task, with the flat
// stack laid out by the lowered core signature. A synchronous binding
// returns with the results in place and a zero status. An asynchronous
// binding returns a packed word: the subtask's waitable index shifted
// left four bits, or'd with its state; an eagerly resolved call packs
// index zero.
func (f *LoweredFunc) Call(ctx context.Context, t *task.Task, stack []uint64) (uint32, error) {
	def := f.target.def
	sub := task.NewSubtask(t)
	cx := codec.NewContext(f.opts, &handleScope{inst: f.caller, lender: sub, borrower: t})

	paramWords, hasRetptr := f.stackLayout()
	args, err := cx.LiftFlatValues(def.Params, stack[:paramWords], f.maxParams())
	if err != nil {
		markCancelled(sub)
		return 0, err
	}
	var retptr uint32
	if hasRetptr {
		retptr = uint32(stack[paramWords])
	}

	if f.opts.Sync {
		return 0, f.callSync(ctx, t, sub, cx, args, stack, retptr, hasRetptr)
	}
	return f.callAsync(ctx, t, sub, cx, args, retptr)
}

func (f *LoweredFunc) callSync(ctx context.Context, t *task.Task, sub *task.Subtask, cx *codec.Context, args []any, stack []uint64, retptr uint32, hasRetptr bool) error {
	def := f.target.def

	f.caller.task.EnterSyncImport()
	results, err := f.target.call(ctx, t, sub, args, nil)
	f.caller.task.ExitSyncImport()
	if err != nil {
		return err
	}
	if sub.State() != task.StateReturned {
		// acknowledged cancellation: no results to lower
		return sub.Drop()
	}

	if len(def.Results) > 0 {
		if hasRetptr {
			if err := cx.StoreValuesTo(def.Results, results, retptr); err != nil {
				return err
			}
		} else {
			words, err := cx.LowerFlatValues(def.Results, results, codec.MaxFlatResults)
			if err != nil {
				return err
			}
			copy(stack, words)
		}
	}
	return sub.Drop()
}

func (f *LoweredFunc) callAsync(ctx context.Context, t *task.Task, sub *task.Subtask, cx *codec.Context, args []any, retptr uint32) (uint32, error) {
	def := f.target.def
	sched := f.caller.eng.sched

	forked := make(chan struct{})
	done := make(chan struct{})
	var callErr error
	var detached atomic.Bool

	// The callee runs on its own goroutine but the permit keeps execution
	// cooperative: it starts only once the caller blocks below, and
	// control returns to the caller at the callee's first block.
	go func() {
		defer close(done)
		if err := sched.Acquire(ctx); err != nil {
			callErr = err
			markCancelled(sub)
			return
		}
		defer sched.Release()
		results, err := f.target.call(ctx, t, sub, args, func() { close(forked) })
		if err != nil {
			callErr = err
			if detached.Load() {
				// the caller has moved on; nobody will read callErr
				f.caller.eng.trap(err)
			}
			return
		}
		if len(def.Results) > 0 && sub.State() == task.StateReturned {
			if err := cx.StoreValuesTo(def.Results, results, retptr); err != nil {
				f.caller.eng.trap(err)
			}
		}
	}()

	sched.Release()
	select {
	case <-done:
	case <-forked:
	case <-ctx.Done():
		_ = sched.Acquire(context.Background())
		return 0, ctx.Err()
	}
	if err := sched.Acquire(ctx); err != nil {
		return 0, err
	}

	select {
	case <-done:
		if callErr != nil {
			return 0, callErr
		}
		return packSubtask(0, sub.State()), nil
	default:
	}

	detached.Store(true)
	idx, err := f.caller.task.AddWaitable(sub.Waitable())
	if err != nil {
		return 0, err
	}
	return packSubtask(idx, sub.State()), nil
}

// stackLayout reports how many words of the lowered core signature carry
// params and whether a return pointer follows them.
func (f *LoweredFunc) stackLayout() (paramWords int, hasRetptr bool) {
	def := f.target.def
	flatParams, flatResults := codec.LowerSignature(def.Params, def.Results, f.opts.Sync)
	hasRetptr = len(flatResults) == 0 && len(def.Results) > 0
	paramWords = len(flatParams)
	if hasRetptr {
		paramWords--
	}
	return paramWords, hasRetptr
}

func (f *LoweredFunc) maxParams() int {
	if f.opts.Sync {
		return codec.MaxFlatParams
	}
	return codec.MaxFlatAsyncParams
}

func packSubtask(idx uint32, st task.SubtaskState) uint32 {
	return idx<<4 | uint32(st)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
