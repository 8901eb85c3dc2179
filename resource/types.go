package resource

import (
	"github.com/wippyai/canon-abi/types"
)

// Type describes one resource type owned by an instance. Identity is the
// pointer itself; two instances exporting a resource with the same name
// still have distinct types.
type Type struct {
	ID *types.ResourceID

	// Dtor runs against the representation when the last own handle is
	// dropped. Nil means no destructor.
	Dtor func(rep uint32) error
}

func NewType(name string, dtor func(rep uint32) error) *Type {
	return &Type{ID: &types.ResourceID{Name: name}, Dtor: dtor}
}

// Own is the abstract value of an own handle in transit between
// instances. Whoever holds it is responsible for the representation.
type Own struct {
	Res *Type
	Rep uint32
}

// Borrow is the abstract value of a borrow handle in transit. The lender
// keeps ownership; the borrow is only valid for the duration of the
// borrowing call.
type Borrow struct {
	Res *Type
	Rep uint32
}

// Lender tracks lends created while lifting borrows for one call. The
// release funcs run when the call settles.
type Lender interface {
	RegisterLend(release func())
}

// BorrowScope tracks borrow handles lowered into an instance for one
// call. Every lowered borrow must be dropped before the call settles.
type BorrowScope interface {
	BorrowLowered()
	BorrowDropped()
}
