// Package engine exposes the canonical built-in surface: the operations
// a component instance's core code calls to cross the component boundary.
//
// # Architecture
//
// The engine package provides three main types:
//
//	Engine      - Owns the cooperative scheduler shared by its instances
//	Instance    - Per-instance tables, gate state and table built-ins
//	Call        - The live state of one export invocation
//
// # Call Flow
//
//  1. Instance.Lift wraps a callee export as a LiftedFunc over abstract
//     values.
//  2. Instance.Lower adapts a LiftedFunc for calls out of a caller's
//     flat world, producing a LoweredFunc.
//  3. LoweredFunc.Call lifts the arguments from the caller, enters a
//     task on the callee (reentrance check, backpressure gate), lowers
//     them into the callee and runs its core function.
//  4. Results flow back the opposite way: lifted from the callee,
//     lowered into the caller directly or through a return pointer.
//
// A synchronous binding blocks the caller until the callee resolves. An
// asynchronous binding returns control at the callee's first block,
// handing back a subtask whose progress is observed through waitable
// sets.
//
// # Built-ins
//
// Instance methods cover the table-scoped built-ins: resource new/rep/
// drop, waitable-set new/join/wait/poll/drop, subtask cancel/drop,
// stream and future new/read/write/cancel/close, and error-context
// new/debug-message/drop. Call methods cover the task-scoped ones:
// task.return, task.cancel, yield, and the context scratch slots. Core
// functions reach their Call through CurrentCall on the invocation
// context.
//
// All guest code invoked through the engine runs while holding the
// engine's scheduler permit; blocking operations release it and
// reacquire it on wake, so execution within an engine is cooperative
// and single-threaded even though callees run on their own goroutines.
package engine
