package engine

import (
	"github.com/wippyai/canon-abi/channel"
	"github.com/wippyai/canon-abi/codec"
	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/types"
)

// StreamNew is the stream.new built-in: both ends enter this instance's
// waitable table.
func (i *Instance) StreamNew(elem *types.Type) (readIdx, writeIdx uint32, err error) {
	r, w := channel.NewStream(elem)
	return i.addEnds(r, w)
}

// FutureNew is the future.new built-in.
func (i *Instance) FutureNew(elem *types.Type) (readIdx, writeIdx uint32, err error) {
	r, w := channel.NewFuture(elem)
	return i.addEnds(r, w)
}

func (i *Instance) addEnds(r *channel.ReadEnd, w *channel.WriteEnd) (uint32, uint32, error) {
	readIdx, err := i.task.AddWaitable(r.Waitable())
	if err != nil {
		return 0, 0, err
	}
	writeIdx, err := i.task.AddWaitable(w.Waitable())
	if err != nil {
		return 0, 0, err
	}
	return readIdx, writeIdx, nil
}

// StreamRead is the stream.read built-in: read up to count elements into
// guest memory at ptr. A Blocked result completes later through the
// end's waitable.
func (i *Instance) StreamRead(cx *codec.Context, idx uint32, ptr, count uint32) (channel.Result, error) {
	end, err := i.readEnd(idx)
	if err != nil {
		return channel.Result{}, err
	}
	return end.Read(newGuestReadBuffer(cx, end.Elem(), ptr, count))
}

// StreamWrite is the stream.write built-in: write up to count elements
// from guest memory at ptr.
func (i *Instance) StreamWrite(cx *codec.Context, idx uint32, ptr, count uint32) (channel.Result, error) {
	end, err := i.writeEnd(idx)
	if err != nil {
		return channel.Result{}, err
	}
	return end.Write(newGuestWriteBuffer(cx, end.Elem(), ptr, count))
}

// StreamCancelRead is the stream.cancel-read built-in. Rendezvous state
// is engine-owned, so cancellation resolves immediately with the
// progress so far.
func (i *Instance) StreamCancelRead(idx uint32) (channel.Result, error) {
	end, err := i.readEnd(idx)
	if err != nil {
		return channel.Result{}, err
	}
	return end.CancelRead()
}

// StreamCancelWrite is the stream.cancel-write built-in.
func (i *Instance) StreamCancelWrite(idx uint32) (channel.Result, error) {
	end, err := i.writeEnd(idx)
	if err != nil {
		return channel.Result{}, err
	}
	return end.CancelWrite()
}

// StreamCloseReadable drops the readable end from the waitable table and
// closes it.
func (i *Instance) StreamCloseReadable(idx uint32) error {
	end, err := i.readEnd(idx)
	if err != nil {
		return err
	}
	if err := end.Close(); err != nil {
		return err
	}
	return i.task.DropWaitable(idx)
}

// StreamCloseWritable closes the writable end, attaching an optional
// error context delivered to the reader with closure.
func (i *Instance) StreamCloseWritable(idx uint32, errCtxIdx uint32) error {
	end, err := i.writeEnd(idx)
	if err != nil {
		return err
	}
	var errCtx any
	if errCtxIdx != 0 {
		ec, err := i.errctxs.Get(errCtxIdx)
		if err != nil {
			return err
		}
		errCtx = ec
	}
	if err := end.Close(errCtx); err != nil {
		return err
	}
	return i.task.DropWaitable(idx)
}

// FutureRead is the future.read built-in. Ends are recovered from the
// waitable table untyped, so the stream implementations serve both
// shapes; a future read has capacity for exactly one element.
func (i *Instance) FutureRead(cx *codec.Context, idx uint32, ptr uint32) (channel.Result, error) {
	return i.StreamRead(cx, idx, ptr, 1)
}

// FutureWrite is the future.write built-in.
func (i *Instance) FutureWrite(cx *codec.Context, idx uint32, ptr uint32) (channel.Result, error) {
	return i.StreamWrite(cx, idx, ptr, 1)
}

// FutureCancelRead is the future.cancel-read built-in.
func (i *Instance) FutureCancelRead(idx uint32) (channel.Result, error) {
	return i.StreamCancelRead(idx)
}

// FutureCancelWrite is the future.cancel-write built-in.
func (i *Instance) FutureCancelWrite(idx uint32) (channel.Result, error) {
	return i.StreamCancelWrite(idx)
}

// FutureCloseReadable is the future.close-readable built-in.
func (i *Instance) FutureCloseReadable(idx uint32) error {
	return i.StreamCloseReadable(idx)
}

// FutureCloseWritable is the future.close-writable built-in.
func (i *Instance) FutureCloseWritable(idx uint32, errCtxIdx uint32) error {
	return i.StreamCloseWritable(idx, errCtxIdx)
}

func (i *Instance) readEnd(idx uint32) (*channel.ReadEnd, error) {
	w, err := i.task.Waitables.Get(idx)
	if err != nil {
		return nil, err
	}
	end, ok := w.Source().(*channel.ReadEnd)
	if !ok {
		return nil, errors.New(errors.PhaseStream, errors.KindBadHandle).
			Value(idx).Detail("waitable is not a readable end").Build()
	}
	return end, nil
}

func (i *Instance) writeEnd(idx uint32) (*channel.WriteEnd, error) {
	w, err := i.task.Waitables.Get(idx)
	if err != nil {
		return nil, err
	}
	end, ok := w.Source().(*channel.WriteEnd)
	if !ok {
		return nil, errors.New(errors.PhaseStream, errors.KindBadHandle).
			Value(idx).Detail("waitable is not a writable end").Build()
	}
	return end, nil
}

// guestReadBuffer is the target of a stream read: a guest memory region
// that elements are lowered into one at a time. It stays valid after the
// built-in returns so a blocked read can fill when the write arrives.
type guestReadBuffer struct {
	cx     *codec.Context
	elem   *types.Type
	ptr    uint32
	count  uint32
	filled uint32
}

func newGuestReadBuffer(cx *codec.Context, elem *types.Type, ptr, count uint32) *guestReadBuffer {
	return &guestReadBuffer{cx: cx, elem: elem, ptr: ptr, count: count}
}

func (b *guestReadBuffer) Remaining() uint32 {
	return b.count - b.filled
}

func (b *guestReadBuffer) Put(vals []any) error {
	if uint32(len(vals)) > b.Remaining() {
		return errors.Overflow(errors.PhaseStream, "put of %d elements into %d remaining", len(vals), b.Remaining())
	}
	if b.elem == nil {
		b.filled += uint32(len(vals))
		return nil
	}
	size := codec.Size(b.elem)
	for _, v := range vals {
		if err := b.cx.Store(b.elem, v, b.ptr+b.filled*size); err != nil {
			return err
		}
		b.filled++
	}
	return nil
}

// guestWriteBuffer is the source of a stream write: elements are lifted
// out of guest memory as the counterpart drains them.
type guestWriteBuffer struct {
	cx    *codec.Context
	elem  *types.Type
	ptr   uint32
	count uint32
	taken uint32
}

func newGuestWriteBuffer(cx *codec.Context, elem *types.Type, ptr, count uint32) *guestWriteBuffer {
	return &guestWriteBuffer{cx: cx, elem: elem, ptr: ptr, count: count}
}

func (b *guestWriteBuffer) Remaining() uint32 {
	return b.count - b.taken
}

func (b *guestWriteBuffer) Take(n uint32) ([]any, error) {
	if n > b.Remaining() {
		return nil, errors.Overflow(errors.PhaseStream, "take of %d elements from %d remaining", n, b.Remaining())
	}
	out := make([]any, n)
	if b.elem == nil {
		b.taken += n
		return out, nil
	}
	size := codec.Size(b.elem)
	for k := range out {
		v, err := b.cx.Load(b.elem, b.ptr+b.taken*size)
		if err != nil {
			return nil, err
		}
		out[k] = v
		b.taken++
	}
	return out, nil
}
