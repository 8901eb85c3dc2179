// Package task implements the call-lifecycle engine: tasks, subtasks,
// admission, waitables, and cooperative scheduling.
//
// A Task is created on the callee side when a call enters a component
// instance. Entry is gated twice: the reentrance guard walks the caller
// chain and traps if the instance already appears on it, and the
// backpressure gate queues the call while the instance cannot admit it.
// Gated calls start FIFO, one at a time.
//
// A Subtask is the caller-side view of one call to an import. It moves
// through STARTING, STARTED and RETURNED, or resolves through one of the
// two cancellation terminals. Resolution always releases the handles the
// caller lent into the call, so a caller never observes a resolved
// subtask with its lend counts still raised.
//
// Scheduling is cooperative around a single run permit per engine
// (Scheduler). A task holds the permit while executing and releases it at
// every blocking point: waiting on a waitable set, queueing for
// admission, parking in a channel rendezvous, or an explicit yield.
// Cancellation is a latch delivered only at cancellable blocking points;
// a callee that never parks at one simply never observes the request.
package task
