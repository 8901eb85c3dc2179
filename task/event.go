package task

import (
	"sync"
)

// EventCode tags a pending event descriptor.
type EventCode uint8

const (
	EventNone EventCode = iota
	EventSubtask
	EventStreamRead
	EventStreamWrite
	EventFutureRead
	EventFutureWrite
	EventTaskCancelled
)

func (c EventCode) String() string {
	switch c {
	case EventNone:
		return "none"
	case EventSubtask:
		return "subtask"
	case EventStreamRead:
		return "stream-read"
	case EventStreamWrite:
		return "stream-write"
	case EventFutureRead:
		return "future-read"
	case EventFutureWrite:
		return "future-write"
	case EventTaskCancelled:
		return "task-cancelled"
	}
	return "unknown"
}

// Event is what a wait or poll returns: the code, the index of the
// waitable that produced it, and two payload words whose meaning depends
// on the code.
type Event struct {
	Code   EventCode
	Index  uint32
	P1, P2 uint32
}

// EventSource computes an event's payload at delivery time, so the event
// reflects state when it is observed rather than when it was posted.
type EventSource interface {
	BuildEvent(code EventCode) Event
}

// Waitable is one pending-event slot. At most one event is pending at a
// time; posting again before delivery just re-arms the same slot. A
// waitable belongs to at most one set.
type Waitable struct {
	mu      sync.Mutex
	index   uint32
	set     *WaitableSet
	pending EventCode
	source  EventSource
}

// NewWaitable creates a waitable whose event payloads are computed by
// source at delivery time. A nil source delivers bare codes.
func NewWaitable(source EventSource) *Waitable {
	return &Waitable{source: source}
}

// Source returns the entity behind this waitable, the same value passed
// to NewWaitable. Index namespaces that store waitables recover the
// subtask or channel end through it.
func (w *Waitable) Source() EventSource {
	return w.source
}

// SetIndex records the waitable's table index, included in every
// delivered event.
func (w *Waitable) SetIndex(idx uint32) {
	w.mu.Lock()
	w.index = idx
	w.mu.Unlock()
}

func (w *Waitable) Index() uint32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.index
}

// Post arms the pending-event slot and notifies the containing set.
func (w *Waitable) Post(code EventCode) {
	w.mu.Lock()
	w.pending = code
	set := w.set
	w.mu.Unlock()
	if set != nil {
		set.notify(w)
	}
}

// HasPending reports whether an event is waiting for delivery.
func (w *Waitable) HasPending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending != EventNone
}

// deliver disarms the slot and materializes the event.
func (w *Waitable) deliver() (Event, bool) {
	w.mu.Lock()
	code := w.pending
	w.pending = EventNone
	idx := w.index
	source := w.source
	w.mu.Unlock()

	if code == EventNone {
		return Event{}, false
	}
	ev := Event{Code: code}
	if source != nil {
		ev = source.BuildEvent(code)
	}
	ev.Index = idx
	return ev, true
}

// Leave removes the waitable from its current set, if any.
func (w *Waitable) Leave() {
	w.mu.Lock()
	set := w.set
	w.set = nil
	w.mu.Unlock()
	if set != nil {
		set.remove(w)
	}
}
