package channel

import (
	"sync"

	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/task"
	"github.com/wippyai/canon-abi/types"
)

// Result reports the outcome of a read or write submission.
type Result struct {
	// Count is the number of elements transferred so far by this
	// operation, including progress made while it was pending.
	Count uint32
	// Blocked means the operation registered its buffer and will report
	// completion through the end's waitable. Count may be nonzero
	// alongside Blocked when a partial transfer happened at submission.
	Blocked bool
	// Closed means the counterpart end is closed and no further progress
	// is possible.
	Closed bool
	// ErrCtx is the diagnostic context the closing side attached, if any.
	ErrCtx any
	// Cancelled means the operation was withdrawn by cancel before
	// completing.
	Cancelled bool
}

// shared is the rendezvous state co-owned by the two ends. It is
// destroyed only when both ends are closed.
type shared struct {
	mu     sync.Mutex
	elem   *types.Type
	future bool

	pendingRead  *pendingOp
	pendingWrite *pendingOp

	readClosed  bool
	writeClosed bool
	closeCtx    any // from the write end
	delivered   bool

	readEnd  *ReadEnd
	writeEnd *WriteEnd
}

type pendingOp struct {
	rbuf     ReadBuffer
	wbuf     WriteBuffer
	progress uint32
}

// ReadEnd is the readable end of a stream or future.
type ReadEnd struct {
	sh       *shared
	waitable *task.Waitable
	mu       sync.Mutex
	last     Result
}

// WriteEnd is the writable end of a stream or future.
type WriteEnd struct {
	sh       *shared
	waitable *task.Waitable
	mu       sync.Mutex
	last     Result
}

// NewStream creates an unbuffered stream of elem and returns its two
// ends.
func NewStream(elem *types.Type) (*ReadEnd, *WriteEnd) {
	return newChannel(elem, false)
}

// NewFuture creates a future of elem: a channel that closes itself after
// one successful element transfer.
func NewFuture(elem *types.Type) (*ReadEnd, *WriteEnd) {
	return newChannel(elem, true)
}

func newChannel(elem *types.Type, future bool) (*ReadEnd, *WriteEnd) {
	sh := &shared{elem: elem, future: future}
	r := &ReadEnd{sh: sh}
	w := &WriteEnd{sh: sh}
	r.waitable = task.NewWaitable(r)
	w.waitable = task.NewWaitable(w)
	sh.readEnd = r
	sh.writeEnd = w
	return r, w
}

func (r *ReadEnd) Elem() *types.Type  { return r.sh.elem }
func (w *WriteEnd) Elem() *types.Type { return w.sh.elem }
func (r *ReadEnd) Future() bool       { return r.sh.future }
func (w *WriteEnd) Future() bool      { return w.sh.future }

// Waitable reports blocked-operation completions for this end.
func (r *ReadEnd) Waitable() *task.Waitable  { return r.waitable }
func (w *WriteEnd) Waitable() *task.Waitable { return w.waitable }

// BuildEvent implements task.EventSource: P1 carries the transfer count,
// P2 the closed flag.
func (r *ReadEnd) BuildEvent(code task.EventCode) task.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return buildEvent(code, r.last)
}

func (w *WriteEnd) BuildEvent(code task.EventCode) task.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	return buildEvent(code, w.last)
}

func buildEvent(code task.EventCode, res Result) task.Event {
	ev := task.Event{Code: code, P1: res.Count}
	if res.Closed {
		ev.P2 = 1
	}
	return ev
}

func (r *ReadEnd) readEventCode() task.EventCode {
	if r.sh.future {
		return task.EventFutureRead
	}
	return task.EventStreamRead
}

func (w *WriteEnd) writeEventCode() task.EventCode {
	if w.sh.future {
		return task.EventFutureWrite
	}
	return task.EventStreamWrite
}

// Read submits buf. It never blocks: either elements transfer from a
// pending write immediately, closure is reported, or the buffer is
// registered and a later completion arrives through the waitable.
func (r *ReadEnd) Read(buf ReadBuffer) (Result, error) {
	sh := r.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.readClosed {
		return Result{}, errors.State(errors.PhaseStream, "read on closed readable end")
	}
	if sh.pendingRead != nil {
		return Result{}, errors.New(errors.PhaseStream, errors.KindChannelBusy).
			Detail("a read is already pending on this channel").Build()
	}

	// zero-length reads complete without rendezvous
	if buf.Remaining() == 0 {
		return Result{Count: 0}, nil
	}

	if w := sh.pendingWrite; w != nil {
		n, err := sh.copyLocked(buf, w.wbuf)
		if err != nil {
			return Result{}, err
		}
		if w.wbuf.Remaining() == 0 {
			sh.pendingWrite = nil
			sh.completeWriteLocked(Result{Count: w.progress + n})
		} else {
			w.progress += n
		}
		if sh.future && n > 0 {
			sh.autoCloseLocked()
			return Result{Count: n}, nil
		}
		if buf.Remaining() == 0 {
			return Result{Count: n}, nil
		}
		// surplus read capacity stays pending; the count so far is
		// reported now and again cumulatively at completion
		sh.pendingRead = &pendingOp{rbuf: buf, progress: n}
		return Result{Count: n, Blocked: true}, nil
	}

	if sh.writeClosed {
		return Result{Closed: true, ErrCtx: sh.closeCtx}, nil
	}

	sh.pendingRead = &pendingOp{rbuf: buf}
	return Result{Blocked: true}, nil
}

// Write submits buf, symmetric to Read.
func (w *WriteEnd) Write(buf WriteBuffer) (Result, error) {
	sh := w.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if sh.writeClosed {
		return Result{}, errors.State(errors.PhaseStream, "write on closed writable end")
	}
	if sh.pendingWrite != nil {
		return Result{}, errors.New(errors.PhaseStream, errors.KindChannelBusy).
			Detail("a write is already pending on this channel").Build()
	}
	if sh.future && sh.delivered {
		return Result{Closed: true}, nil
	}

	if buf.Remaining() == 0 {
		return Result{Count: 0}, nil
	}
	if sh.future && buf.Remaining() > 1 {
		return Result{}, errors.State(errors.PhaseStream, "future write of more than one element")
	}

	if r := sh.pendingRead; r != nil {
		n, err := sh.copyLocked(r.rbuf, buf)
		if err != nil {
			return Result{}, err
		}
		if r.rbuf.Remaining() == 0 {
			sh.pendingRead = nil
			sh.completeReadLocked(Result{Count: r.progress + n})
		} else {
			r.progress += n
		}
		if sh.future && n > 0 {
			sh.autoCloseLocked()
			return Result{Count: n}, nil
		}
		if buf.Remaining() == 0 {
			return Result{Count: n}, nil
		}
		// surplus write elements stay pending, symmetric to Read
		sh.pendingWrite = &pendingOp{wbuf: buf, progress: n}
		return Result{Count: n, Blocked: true}, nil
	}

	if sh.readClosed {
		return Result{Closed: true}, nil
	}

	sh.pendingWrite = &pendingOp{wbuf: buf}
	return Result{Blocked: true}, nil
}

// copyLocked moves min(read capacity, write remaining) elements directly
// between the two buffers.
func (sh *shared) copyLocked(rbuf ReadBuffer, wbuf WriteBuffer) (uint32, error) {
	n := rbuf.Remaining()
	if m := wbuf.Remaining(); m < n {
		n = m
	}
	if sh.future && n > 1 {
		n = 1
	}
	vals, err := wbuf.Take(n)
	if err != nil {
		return 0, err
	}
	if err := rbuf.Put(vals); err != nil {
		return 0, err
	}
	if sh.future && n > 0 {
		sh.delivered = true
	}
	return n, nil
}

// completeReadLocked resolves the read end's blocked operation and posts
// its completion event.
func (sh *shared) completeReadLocked(res Result) {
	if end := sh.readEnd; end != nil {
		end.complete(res)
	}
}

func (sh *shared) completeWriteLocked(res Result) {
	if end := sh.writeEnd; end != nil {
		end.complete(res)
	}
}

// autoCloseLocked closes both ends after a future's single transfer.
func (sh *shared) autoCloseLocked() {
	sh.readClosed = true
	sh.writeClosed = true
}

// CancelRead withdraws a pending read. The channel is wholly implemented
// here, so cancellation is always immediate.
func (r *ReadEnd) CancelRead() (Result, error) {
	sh := r.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()
	op := sh.pendingRead
	if op == nil {
		return Result{}, errors.State(errors.PhaseStream, "cancel-read with no pending read")
	}
	sh.pendingRead = nil
	return Result{Count: op.progress, Cancelled: true}, nil
}

// CancelWrite withdraws a pending write.
func (w *WriteEnd) CancelWrite() (Result, error) {
	sh := w.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()
	op := sh.pendingWrite
	if op == nil {
		return Result{}, errors.State(errors.PhaseStream, "cancel-write with no pending write")
	}
	sh.pendingWrite = nil
	return Result{Count: op.progress, Cancelled: true}, nil
}

// Close closes the readable end. A pending write on the other side
// completes with closure.
func (r *ReadEnd) Close() error {
	sh := r.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.readClosed {
		return errors.State(errors.PhaseStream, "readable end already closed")
	}
	sh.readClosed = true
	if op := sh.pendingWrite; op != nil {
		sh.pendingWrite = nil
		sh.completeWriteLocked(Result{Count: op.progress, Closed: true})
	}
	return nil
}

// Close closes the writable end, optionally attaching a diagnostic
// context delivered to the reader with closure.
func (w *WriteEnd) Close(errCtx any) error {
	sh := w.sh
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.writeClosed {
		return errors.State(errors.PhaseStream, "writable end already closed")
	}
	sh.writeClosed = true
	sh.closeCtx = errCtx
	if op := sh.pendingRead; op != nil {
		sh.pendingRead = nil
		sh.completeReadLocked(Result{Count: op.progress, Closed: true, ErrCtx: errCtx})
	}
	return nil
}

// Closed reports whether this end has been closed.
func (r *ReadEnd) Closed() bool {
	r.sh.mu.Lock()
	defer r.sh.mu.Unlock()
	return r.sh.readClosed
}

func (w *WriteEnd) Closed() bool {
	w.sh.mu.Lock()
	defer w.sh.mu.Unlock()
	return w.sh.writeClosed
}

func (r *ReadEnd) complete(res Result) {
	r.mu.Lock()
	r.last = res
	r.mu.Unlock()
	r.waitable.Post(r.readEventCode())
}

func (w *WriteEnd) complete(res Result) {
	w.mu.Lock()
	w.last = res
	w.mu.Unlock()
	w.waitable.Post(w.writeEventCode())
}

// Last is the most recent completion reported through the waitable.
func (r *ReadEnd) Last() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (w *WriteEnd) Last() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
