// Package errors provides the structured trap type for the canon-abi engine.
//
// Traps are categorized by Phase (where the violation occurred) and Kind
// (violation category). A Trap carries rich context: value path, descriptor
// name, offending value, and cause chain. Traps are unrecoverable aborts of
// the enclosing call; the engine never catches them.
//
// Use the Builder for structured trap construction:
//
//	err := errors.New(errors.PhaseLower, errors.KindTypeMismatch).
//		Path("point", "x").
//		Type("u32").
//		Detail("cannot lower string as integer").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseLoad, addr, length)
//	err := errors.InvalidDiscriminant(errors.PhaseLift, path, disc, numCases)
//
// All traps implement the standard error interface and support errors.Is/As.
package errors
