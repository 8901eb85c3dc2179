package channel

import (
	"github.com/wippyai/canon-abi/errors"
)

// WriteBuffer is a caller-owned source of elements for a write.
type WriteBuffer interface {
	// Remaining is the number of elements not yet taken.
	Remaining() uint32
	// Take removes the next n elements. n never exceeds Remaining.
	Take(n uint32) ([]any, error)
}

// ReadBuffer is a caller-owned sink of elements for a read.
type ReadBuffer interface {
	// Remaining is the free capacity in elements.
	Remaining() uint32
	// Put appends elements. len(vals) never exceeds Remaining.
	Put(vals []any) error
}

// SliceWriteBuffer feeds a write from a host slice.
type SliceWriteBuffer struct {
	vals []any
}

func NewSliceWriteBuffer(vals []any) *SliceWriteBuffer {
	return &SliceWriteBuffer{vals: vals}
}

func (b *SliceWriteBuffer) Remaining() uint32 {
	return uint32(len(b.vals))
}

func (b *SliceWriteBuffer) Take(n uint32) ([]any, error) {
	if n > uint32(len(b.vals)) {
		return nil, errors.State(errors.PhaseStream, "take of %d exceeds %d remaining", n, len(b.vals))
	}
	out := b.vals[:n]
	b.vals = b.vals[n:]
	return out, nil
}

// SliceReadBuffer collects a read into a host slice with fixed capacity.
type SliceReadBuffer struct {
	vals []any
	cap  uint32
}

func NewSliceReadBuffer(capacity uint32) *SliceReadBuffer {
	return &SliceReadBuffer{cap: capacity}
}

func (b *SliceReadBuffer) Remaining() uint32 {
	return b.cap - uint32(len(b.vals))
}

func (b *SliceReadBuffer) Put(vals []any) error {
	if uint32(len(vals)) > b.Remaining() {
		return errors.State(errors.PhaseStream, "put of %d exceeds %d remaining", len(vals), b.Remaining())
	}
	b.vals = append(b.vals, vals...)
	return nil
}

// Values are the elements received so far.
func (b *SliceReadBuffer) Values() []any {
	return b.vals
}
