// Package resource implements handle tables for resource types.
//
// Every instance owns one table per resource type it can hold handles to.
// A handle is a small dense index into that table; the table entry records
// the 32-bit representation, whether the handle owns the resource, and how
// many borrows are currently lent out of it.
//
// Ownership moves with own handles: lifting an own handle removes it from
// the source table, lowering adds it to the destination table, and at any
// moment exactly one table (or one in-transit abstract value) is
// responsible for the representation. Borrows never move ownership; they
// are scoped to a single call and accounted on both sides, as lends on
// the source handle and as live borrow handles on the receiving call.
package resource
