package task

import (
	"context"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// waitGateDepth spins until n calls are queued on the gate.
func waitGateDepth(t *testing.T, inst *Instance, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for inst.GateDepth() != n {
		if time.Now().After(deadline) {
			t.Fatalf("gate depth never reached %d (at %d)", n, inst.GateDepth())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestBackpressureQueuesFIFO(t *testing.T) {
	sched := NewScheduler()
	inst := NewInstance("srv", sched)
	inst.SetBackpressure(true)

	const n = 4
	var mu sync.Mutex
	var order []int

	ctx := context.Background()
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		if err := sched.Acquire(ctx); err != nil {
			t.Fatal(err)
		}
		g.Go(func() error {
			tk, err := Enter(ctx, inst, nil, true)
			if err != nil {
				return err
			}
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			if err := tk.Return(nil); err != nil {
				return err
			}
			if err := tk.Exit(); err != nil {
				return err
			}
			sched.Release()
			return nil
		})
		// each goroutine parks in the gate (releasing the permit)
		// before the next is launched, pinning queue order
		waitGateDepth(t, inst, i+1)
	}

	inst.SetBackpressure(false)
	if err := g.Wait(); err != nil {
		t.Fatalf("queued call failed: %v", err)
	}

	for i := 0; i < n; i++ {
		if order[i] != i {
			t.Fatalf("start order = %v, want FIFO", order)
		}
	}
}

func TestSyncCallBlocksNextAdmission(t *testing.T) {
	sched := NewScheduler()
	inst := NewInstance("srv", sched)
	ctx := context.Background()

	if err := sched.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	first, err := Enter(ctx, inst, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	// park the first call, as if blocked on external work
	sched.Release()

	// a second sync call must queue while the first is mid-call
	started := make(chan struct{})
	go func() {
		if err := sched.Acquire(ctx); err != nil {
			t.Error(err)
			return
		}
		second, err := Enter(ctx, inst, nil, true)
		if err != nil {
			t.Error(err)
			return
		}
		close(started)
		_ = second.Return(nil)
		_ = second.Exit()
		sched.Release()
	}()

	waitGateDepth(t, inst, 1)
	select {
	case <-started:
		t.Fatal("second sync call started during first")
	default:
	}

	if err := sched.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := first.Return(nil); err != nil {
		t.Fatal(err)
	}
	if err := first.Exit(); err != nil {
		t.Fatal(err)
	}
	sched.Release()

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("second call never started after first exited")
	}
}

func TestAsyncCallsAdmitConcurrently(t *testing.T) {
	inst := NewInstance("srv", NewScheduler())
	ctx := context.Background()

	a, err := Enter(ctx, inst, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Enter(ctx, inst, nil, false)
	if err != nil {
		t.Fatalf("second async call should admit immediately: %v", err)
	}
	for _, tk := range []*Task{a, b} {
		if err := tk.Return(nil); err != nil {
			t.Fatal(err)
		}
		if err := tk.Exit(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestCancelWhileQueued(t *testing.T) {
	sched := NewScheduler()
	inst := NewInstance("srv", sched)
	inst.SetBackpressure(true)
	ctx := context.Background()

	tk := New(inst, nil, true)
	entered := make(chan error, 1)
	if err := sched.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	go func() {
		entered <- tk.Enter(ctx)
		sched.Release()
	}()

	waitGateDepth(t, inst, 1)
	tk.RequestCancel()

	select {
	case err := <-entered:
		if err != ErrCancelled {
			t.Fatalf("Enter = %v, want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("queued call never aborted")
	}
	if inst.GateDepth() != 0 {
		t.Fatalf("gate depth = %d after cancellation", inst.GateDepth())
	}
}
