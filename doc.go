// Package canonabi is the Canonical ABI core engine: it converts abstract
// component-model values (records, variants, lists, strings, handles,
// stream/future ends) to and from flat core-word and linear-memory
// representations, and coordinates the concurrent, cancellable, backpressured
// call trees that cross component boundaries.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	canon-abi/           Root package with core Memory and Allocator interfaces
//	├── engine/          Canonical built-in surface (lift/lower, task.return,
//	│                    waitable-set, stream/future and error-context ops)
//	├── codec/           Value Codec: layout, flatten, load/store, lift/lower
//	├── types/           Type Descriptor model and WIT bridge
//	├── task/            Task/Subtask engine, scheduler, waitable multiplexer
//	├── channel/         Stream/future rendezvous engine
//	├── resource/        Own/borrow handle accounting
//	├── table/           Generic dense handle table
//	└── errors/          Structured trap/error types
//
// # Trust Boundary
//
// Type descriptors arrive fully resolved from an external front end (binary
// decoder or IDL compiler); this engine never parses containers or IDL text.
// Likewise, core functions are handed in as callables. All I/O flows through
// the abstract buffer and channel interfaces.
//
// # Failure Model
//
// There are exactly two failure classes. Invariant violations are traps:
// structured *errors.Error values that abort the violating call and propagate
// to the embedder uncaught. Business failures travel as ok/error result
// values, which this engine marshals but never interprets. Cancellation is a
// third, cooperative termination path, not an error.
//
// # Thread Safety
//
// Each component instance executes single-threaded cooperative code under an
// explicit scheduler lock. Independently scheduled execution contexts only
// interact through the task engine's primitives, so the invariants hold under
// true parallelism as well.
package canonabi
