package task

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/resource"
	"github.com/wippyai/canon-abi/table"
)

// Instance is the per-component-instance state the engine guards: handle
// tables, waitable tables, the backpressure flag, and the admission gate.
// Only the task currently running as this instance touches the tables.
type Instance struct {
	name  string
	sched *Scheduler

	mu             sync.Mutex
	backpressure   bool
	inSyncExport   bool
	inSyncImport   bool
	releasing      bool
	gate           []*gateWaiter
	resourceTables map[*resource.Type]*resource.Table

	// Waitables and waitable sets the guest refers to by index.
	Waitables    *table.Table[*Waitable]
	WaitableSets *table.Table[*WaitableSet]
}

type gateWaiter struct {
	sync  bool
	ready chan struct{}
}

func NewInstance(name string, sched *Scheduler) *Instance {
	return &Instance{
		name:           name,
		sched:          sched,
		resourceTables: make(map[*resource.Type]*resource.Table),
		Waitables:      table.New[*Waitable](errors.PhaseWait),
		WaitableSets:   table.New[*WaitableSet](errors.PhaseWait),
	}
}

func (i *Instance) Name() string          { return i.name }
func (i *Instance) Scheduler() *Scheduler { return i.sched }

// ResourceTable returns the instance's handle table for res, creating it
// on first use.
func (i *Instance) ResourceTable(res *resource.Type) *resource.Table {
	i.mu.Lock()
	defer i.mu.Unlock()
	t, ok := i.resourceTables[res]
	if !ok {
		t = resource.NewTable(res)
		i.resourceTables[res] = t
	}
	return t
}

// SetBackpressure asserts or clears explicit backpressure. Clearing it
// releases at most one gated call.
func (i *Instance) SetBackpressure(on bool) {
	i.mu.Lock()
	i.backpressure = on
	i.mu.Unlock()
	if !on {
		i.wakeGate()
	}
	Logger().Debug("backpressure set",
		zap.String("instance", i.name),
		zap.Bool("on", on))
}

func (i *Instance) Backpressure() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.backpressure
}

// mayEnter is the admission predicate, checked under i.mu.
func (i *Instance) mayEnter(sync bool) bool {
	if i.backpressure || i.inSyncExport {
		return false
	}
	if i.inSyncImport && sync {
		return false
	}
	return true
}

// admit blocks until the call may start. Gated calls queue FIFO and are
// released one at a time; the released call must confirm entry via
// entered before the next is released. A cancellation latched on t while
// still queued aborts admission with ErrCancelled.
func (i *Instance) admit(ctx context.Context, t *Task) error {
	i.mu.Lock()
	if len(i.gate) == 0 && !i.releasing && i.mayEnter(t.sync) {
		i.releasing = true
		i.mu.Unlock()
		return nil
	}
	w := &gateWaiter{sync: t.sync, ready: make(chan struct{}, 1)}
	i.gate = append(i.gate, w)
	i.mu.Unlock()

	for {
		if err := blockOn(ctx, t, w.ready, t.cancelCh); err != nil {
			i.dequeue(w)
			return err
		}
		if t.takeCancelRequest() {
			i.dequeue(w)
			return ErrCancelled
		}

		i.mu.Lock()
		if !i.releasing && len(i.gate) > 0 && i.gate[0] == w && i.mayEnter(t.sync) {
			i.gate = i.gate[1:]
			i.releasing = true
			i.mu.Unlock()
			return nil
		}
		i.mu.Unlock()
	}
}

func (i *Instance) dequeue(w *gateWaiter) {
	i.mu.Lock()
	for idx, g := range i.gate {
		if g == w {
			i.gate = append(i.gate[:idx], i.gate[idx+1:]...)
			break
		}
	}
	i.mu.Unlock()
	i.wakeGate()
}

// entered marks the admitted call as running, opening the gate for the
// next queued call (subject to mayEnter).
func (i *Instance) entered(sync bool) {
	i.mu.Lock()
	i.releasing = false
	if sync {
		i.inSyncExport = true
	}
	i.mu.Unlock()
	i.wakeGate()
}

func (i *Instance) exited(sync bool) {
	i.mu.Lock()
	if sync {
		i.inSyncExport = false
	}
	i.mu.Unlock()
	i.wakeGate()
}

// EnterSyncImport brackets a synchronous import call made by code running
// as this instance.
func (i *Instance) EnterSyncImport() {
	i.mu.Lock()
	i.inSyncImport = true
	i.mu.Unlock()
}

func (i *Instance) ExitSyncImport() {
	i.mu.Lock()
	i.inSyncImport = false
	i.mu.Unlock()
	i.wakeGate()
}

// wakeGate pokes the head waiter if it could be admissible now.
func (i *Instance) wakeGate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.releasing || len(i.gate) == 0 {
		return
	}
	if !i.mayEnter(i.gate[0].sync) {
		return
	}
	select {
	case i.gate[0].ready <- struct{}{}:
	default:
	}
}

// GateDepth is the number of calls queued on the admission gate.
func (i *Instance) GateDepth() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.gate)
}

// AddWaitable registers w in the instance's waitable table and stamps its
// index.
func (i *Instance) AddWaitable(w *Waitable) (uint32, error) {
	idx, err := i.Waitables.Add(w)
	if err != nil {
		return 0, err
	}
	w.SetIndex(idx)
	return idx, nil
}

// DropWaitable removes w from its set and from the table.
func (i *Instance) DropWaitable(idx uint32) error {
	w, err := i.Waitables.Remove(idx)
	if err != nil {
		return err
	}
	w.Leave()
	return nil
}
