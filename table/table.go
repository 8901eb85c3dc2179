// Package table provides the dense index table backing every per-instance
// handle space: resource handles, waitables, and error contexts. Indices
// are dense and small so guests can use them directly; slot 0 is reserved
// so a zero index is never valid.
package table

import (
	"sync"

	"github.com/wippyai/canon-abi/errors"
)

// MaxLen caps the number of live entries in one table.
const MaxLen = 1<<28 - 1

type entry[T any] struct {
	value T
	live  bool
}

// Table is a dense slot table with free-list reuse. Freed slots are
// recycled most recent first, so indices stay small and reuse is
// deterministic.
type Table[T any] struct {
	mu      sync.Mutex
	entries []entry[T]
	free    []uint32
	phase   errors.Phase
}

// New creates an empty table. Traps raised by the table carry phase.
func New[T any](phase errors.Phase) *Table[T] {
	return &Table[T]{
		entries: make([]entry[T], 1, 64), // slot 0 reserved
		phase:   phase,
	}
}

// Add stores v and returns its index.
func (t *Table[T]) Add(v T) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		t.entries[idx] = entry[T]{value: v, live: true}
		return idx, nil
	}
	if len(t.entries) > MaxLen {
		return 0, errors.New(t.phase, errors.KindTableFull).
			Detail("table is at capacity (%d entries)", MaxLen).Build()
	}
	t.entries = append(t.entries, entry[T]{value: v, live: true})
	return uint32(len(t.entries) - 1), nil
}

// Get returns the value at idx.
func (t *Table[T]) Get(idx uint32) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(idx)
}

func (t *Table[T]) get(idx uint32) (T, error) {
	if idx == 0 || int(idx) >= len(t.entries) || !t.entries[idx].live {
		var zero T
		return zero, errors.BadHandle(t.phase, idx)
	}
	return t.entries[idx].value, nil
}

// Set replaces the value at idx.
func (t *Table[T]) Set(idx uint32, v T) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.get(idx); err != nil {
		return err
	}
	t.entries[idx].value = v
	return nil
}

// Remove frees the slot at idx and returns its value.
func (t *Table[T]) Remove(idx uint32) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, err := t.get(idx)
	if err != nil {
		return v, err
	}
	var zero T
	t.entries[idx] = entry[T]{value: zero}
	t.free = append(t.free, idx)
	return v, nil
}

// Len is the number of live entries.
func (t *Table[T]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries) - 1 - len(t.free)
}

// Each calls fn for every live entry until fn returns false.
func (t *Table[T]) Each(fn func(idx uint32, v T) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := 1; i < len(t.entries); i++ {
		if t.entries[i].live {
			if !fn(uint32(i), t.entries[i].value) {
				return
			}
		}
	}
}
