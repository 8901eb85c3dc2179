package engine

import (
	"context"
	"sync"

	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/resource"
	"github.com/wippyai/canon-abi/table"
	"github.com/wippyai/canon-abi/task"
	"github.com/wippyai/canon-abi/types"
)

// Instance binds one component instance's state: the task-engine gate and
// handle tables plus the engine-level tables the canonical built-ins
// operate on. Entities the guest refers to by waitable index (subtasks,
// stream and future ends) all live in one table; the entity is recovered
// from the waitable's source.
type Instance struct {
	eng  *Engine
	task *task.Instance

	mu       sync.Mutex
	resTypes map[*types.ResourceID]*resource.Type
	errctxs  *table.Table[*ErrorContext]
}

func (e *Engine) NewInstance(name string) *Instance {
	return &Instance{
		eng:      e,
		task:     task.NewInstance(name, e.sched),
		resTypes: make(map[*types.ResourceID]*resource.Type),
		errctxs:  table.New[*ErrorContext](errors.PhaseResource),
	}
}

func (i *Instance) Name() string          { return i.task.Name() }
func (i *Instance) Tasks() *task.Instance { return i.task }

// RegisterResource makes a resource type's handles liftable and
// lowerable against this instance's tables.
func (i *Instance) RegisterResource(rt *resource.Type) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.resTypes[rt.ID] = rt
}

func (i *Instance) resourceTable(t *types.Type) (*resource.Table, error) {
	i.mu.Lock()
	rt := i.resTypes[t.Resource]
	i.mu.Unlock()
	if rt == nil {
		return nil, errors.State(errors.PhaseResource, "resource type %s not registered with instance %s", t.String(), i.Name())
	}
	return i.task.ResourceTable(rt), nil
}

// BackpressureSet is the backpressure.set built-in.
func (i *Instance) BackpressureSet(on bool) {
	i.task.SetBackpressure(on)
}

// ResourceNew is the resource.new built-in: wrap a representation value
// in a fresh owning handle.
func (i *Instance) ResourceNew(rt *resource.Type, rep uint32) (uint32, error) {
	return i.task.ResourceTable(rt).New(rep)
}

// ResourceRep is the resource.rep built-in.
func (i *Instance) ResourceRep(rt *resource.Type, idx uint32) (uint32, error) {
	return i.task.ResourceTable(rt).Rep(idx)
}

// ResourceDrop is the resource.drop built-in. Dropping an owning handle
// runs the destructor.
func (i *Instance) ResourceDrop(rt *resource.Type, idx uint32) error {
	return i.task.ResourceTable(rt).Drop(idx)
}

// WaitableSetNew is the waitable-set.new built-in.
func (i *Instance) WaitableSetNew() (uint32, error) {
	return i.task.WaitableSets.Add(task.NewWaitableSet())
}

// WaitableSetDrop traps while the set still has members or waiters.
func (i *Instance) WaitableSetDrop(idx uint32) error {
	set, err := i.task.WaitableSets.Get(idx)
	if err != nil {
		return err
	}
	if err := set.Drop(); err != nil {
		return err
	}
	_, err = i.task.WaitableSets.Remove(idx)
	return err
}

// WaitableJoin moves a waitable into the set, or out of any set when
// setIdx is zero.
func (i *Instance) WaitableJoin(waitableIdx, setIdx uint32) error {
	w, err := i.task.Waitables.Get(waitableIdx)
	if err != nil {
		return err
	}
	if setIdx == 0 {
		w.Leave()
		return nil
	}
	set, err := i.task.WaitableSets.Get(setIdx)
	if err != nil {
		return err
	}
	return set.Join(w)
}

// WaitableSetWait blocks the running task until a member has an event,
// delivering a latched cancellation request ahead of member events.
func (i *Instance) WaitableSetWait(ctx context.Context, t *task.Task, idx uint32) (task.Event, error) {
	set, err := i.task.WaitableSets.Get(idx)
	if err != nil {
		return task.Event{}, err
	}
	return set.Wait(ctx, t)
}

// WaitableSetPoll reports a ready event without blocking.
func (i *Instance) WaitableSetPoll(idx uint32) (task.Event, bool, error) {
	set, err := i.task.WaitableSets.Get(idx)
	if err != nil {
		return task.Event{}, false, err
	}
	ev, ok := set.Poll()
	return ev, ok, nil
}

// SubtaskCancel is the subtask.cancel built-in: forward a cooperative
// cancellation request to the callee behind the subtask.
func (i *Instance) SubtaskCancel(idx uint32) (task.SubtaskState, error) {
	sub, err := i.subtask(idx)
	if err != nil {
		return 0, err
	}
	sub.Cancel()
	return sub.State(), nil
}

// SubtaskDrop is the subtask.drop built-in. It traps unless the subtask
// has resolved.
func (i *Instance) SubtaskDrop(idx uint32) error {
	sub, err := i.subtask(idx)
	if err != nil {
		return err
	}
	if err := sub.Drop(); err != nil {
		return err
	}
	return i.task.DropWaitable(idx)
}

func (i *Instance) subtask(idx uint32) (*task.Subtask, error) {
	w, err := i.task.Waitables.Get(idx)
	if err != nil {
		return nil, err
	}
	sub, ok := w.Source().(*task.Subtask)
	if !ok {
		return nil, errors.New(errors.PhaseTask, errors.KindBadHandle).
			Value(idx).Detail("waitable is not a subtask").Build()
	}
	return sub, nil
}
