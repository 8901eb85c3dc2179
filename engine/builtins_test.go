package engine

import (
	"testing"

	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/resource"
)

func TestResourceBuiltins(t *testing.T) {
	e := New(DefaultConfig())
	inst := e.NewInstance("test")

	var destroyed []uint32
	rt := resource.NewType("file", func(rep uint32) error {
		destroyed = append(destroyed, rep)
		return nil
	})
	inst.RegisterResource(rt)

	idx, err := inst.ResourceNew(rt, 17)
	if err != nil {
		t.Fatal(err)
	}
	rep, err := inst.ResourceRep(rt, idx)
	if err != nil {
		t.Fatal(err)
	}
	if rep != 17 {
		t.Fatalf("rep = %d, want 17", rep)
	}

	if err := inst.ResourceDrop(rt, idx); err != nil {
		t.Fatal(err)
	}
	if len(destroyed) != 1 || destroyed[0] != 17 {
		t.Fatalf("destructor calls = %v", destroyed)
	}
	_, err = inst.ResourceRep(rt, idx)
	assertTrapKind(t, err, errors.KindBadHandle)
}

func TestErrorContextRetention(t *testing.T) {
	tests := []struct {
		name   string
		retain bool
		want   string
	}{
		{"retained", true, "disk full"},
		{"discarded", false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := New(Config{RetainDebugMessages: tc.retain})
			inst := e.NewInstance("test")

			idx, err := inst.ErrorContextNew("disk full")
			if err != nil {
				t.Fatal(err)
			}
			msg, err := inst.ErrorContextDebugMessage(idx)
			if err != nil {
				t.Fatal(err)
			}
			if msg != tc.want {
				t.Fatalf("debug message = %q, want %q", msg, tc.want)
			}
			if err := inst.ErrorContextDrop(idx); err != nil {
				t.Fatal(err)
			}
			_, err = inst.ErrorContextDebugMessage(idx)
			assertTrapKind(t, err, errors.KindBadHandle)
		})
	}
}

func TestWaitableSetBuiltins(t *testing.T) {
	e := New(DefaultConfig())
	inst := e.NewInstance("test")

	setIdx, err := inst.WaitableSetNew()
	if err != nil {
		t.Fatal(err)
	}

	readIdx, writeIdx, err := inst.StreamNew(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := inst.WaitableJoin(readIdx, setIdx); err != nil {
		t.Fatal(err)
	}

	// drop with a member traps
	assertTrapKind(t, inst.WaitableSetDrop(setIdx), errors.KindState)

	if err := inst.WaitableJoin(readIdx, 0); err != nil {
		t.Fatal(err)
	}
	if err := inst.WaitableSetDrop(setIdx); err != nil {
		t.Fatalf("drop after leave: %v", err)
	}

	// joining into a dropped set traps
	assertTrapKind(t, inst.WaitableJoin(writeIdx, setIdx), errors.KindBadHandle)
}

func TestSubtaskBuiltinsRejectWrongEntity(t *testing.T) {
	e := New(DefaultConfig())
	inst := e.NewInstance("test")

	readIdx, _, err := inst.StreamNew(nil)
	if err != nil {
		t.Fatal(err)
	}
	_, err = inst.SubtaskCancel(readIdx)
	assertTrapKind(t, err, errors.KindBadHandle)
	assertTrapKind(t, inst.SubtaskDrop(readIdx), errors.KindBadHandle)
}
