package table

import (
	"testing"

	"github.com/wippyai/canon-abi/errors"
)

func TestAddGetRemove(t *testing.T) {
	tbl := New[string](errors.PhaseResource)

	idx, err := tbl.Add("a")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if idx != 1 {
		t.Fatalf("first index = %d, want 1 (slot 0 reserved)", idx)
	}

	v, err := tbl.Get(idx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v != "a" {
		t.Fatalf("Get = %q, want a", v)
	}

	v, err = tbl.Remove(idx)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if v != "a" {
		t.Fatalf("Remove = %q, want a", v)
	}
	if _, err := tbl.Get(idx); err == nil {
		t.Fatal("Get after Remove should trap")
	}
	if tbl.Len() != 0 {
		t.Fatalf("Len = %d, want 0", tbl.Len())
	}
}

func TestZeroIndexNeverValid(t *testing.T) {
	tbl := New[int](errors.PhaseResource)
	if _, err := tbl.Get(0); err == nil {
		t.Fatal("Get(0) should trap")
	}
	if _, err := tbl.Remove(0); err == nil {
		t.Fatal("Remove(0) should trap")
	}
	trap := &errors.Trap{}
	_, err := tbl.Get(0)
	if !errorsAs(err, &trap) || trap.Kind != errors.KindBadHandle {
		t.Fatalf("trap kind = %v, want bad_handle", err)
	}
}

func TestFreeListReuse(t *testing.T) {
	tbl := New[int](errors.PhaseResource)
	var idxs []uint32
	for i := 0; i < 4; i++ {
		idx, err := tbl.Add(i)
		if err != nil {
			t.Fatal(err)
		}
		idxs = append(idxs, idx)
	}

	// free two slots, most recent free wins on reuse
	if _, err := tbl.Remove(idxs[1]); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Remove(idxs[3]); err != nil {
		t.Fatal(err)
	}

	idx, err := tbl.Add(40)
	if err != nil {
		t.Fatal(err)
	}
	if idx != idxs[3] {
		t.Fatalf("reused index = %d, want %d", idx, idxs[3])
	}
	idx, err = tbl.Add(41)
	if err != nil {
		t.Fatal(err)
	}
	if idx != idxs[1] {
		t.Fatalf("reused index = %d, want %d", idx, idxs[1])
	}
}

func TestSet(t *testing.T) {
	tbl := New[int](errors.PhaseResource)
	idx, err := tbl.Add(1)
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.Set(idx, 2); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, err := tbl.Get(idx)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2 {
		t.Fatalf("Get = %d, want 2", v)
	}
	if err := tbl.Set(99, 1); err == nil {
		t.Fatal("Set on dead slot should trap")
	}
}

func TestEach(t *testing.T) {
	tbl := New[int](errors.PhaseResource)
	for i := 0; i < 3; i++ {
		if _, err := tbl.Add(i * 10); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := tbl.Remove(2); err != nil {
		t.Fatal(err)
	}

	var got []int
	tbl.Each(func(idx uint32, v int) bool {
		got = append(got, v)
		return true
	})
	if len(got) != 2 || got[0] != 0 || got[1] != 20 {
		t.Fatalf("Each visited %v", got)
	}
}

func errorsAs(err error, target **errors.Trap) bool {
	t, ok := err.(*errors.Trap)
	if ok {
		*target = t
	}
	return ok
}
