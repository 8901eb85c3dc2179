package resource

import (
	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/table"
)

// handle is one table slot: a representation plus ownership state.
type handle struct {
	rep   uint32
	own   bool
	lends uint32 // live borrows lifted from this own handle

	// scope is set on borrow entries so dropping them settles the
	// lowering call's accounting.
	scope BorrowScope
}

// Table is the per-instance handle table for one resource type.
type Table struct {
	res   *Type
	slots *table.Table[*handle]
}

func NewTable(res *Type) *Table {
	return &Table{
		res:   res,
		slots: table.New[*handle](errors.PhaseResource),
	}
}

func (t *Table) Resource() *Type { return t.res }

// New creates a fresh own handle for rep. This backs the resource.new
// built-in.
func (t *Table) New(rep uint32) (uint32, error) {
	return t.slots.Add(&handle{rep: rep, own: true})
}

// Rep returns the representation behind an own handle. This backs the
// resource.rep built-in.
func (t *Table) Rep(idx uint32) (uint32, error) {
	h, err := t.slots.Get(idx)
	if err != nil {
		return 0, err
	}
	if !h.own {
		return 0, errors.BorrowViolation(errors.PhaseResource, "resource.rep on borrow handle %d", idx)
	}
	return h.rep, nil
}

// LiftOwn removes an own handle from the table, transferring ownership to
// the abstract value. A lent-out handle cannot move.
func (t *Table) LiftOwn(idx uint32) (Own, error) {
	h, err := t.slots.Get(idx)
	if err != nil {
		return Own{}, err
	}
	if !h.own {
		return Own{}, errors.BorrowViolation(errors.PhaseResource, "own lift of borrow handle %d", idx)
	}
	if h.lends > 0 {
		return Own{}, errors.BorrowViolation(errors.PhaseResource, "own handle %d has %d outstanding lends", idx, h.lends)
	}
	if _, err := t.slots.Remove(idx); err != nil {
		return Own{}, err
	}
	return Own{Res: t.res, Rep: h.rep}, nil
}

// LowerOwn stores an abstract own value as a handle in this table.
func (t *Table) LowerOwn(v Own) (uint32, error) {
	if v.Res != t.res {
		return 0, errors.New(errors.PhaseResource, errors.KindTypeMismatch).
			Detail("own of %q lowered into table of %q", v.Res.ID.Name, t.res.ID.Name).Build()
	}
	return t.slots.Add(&handle{rep: v.Rep, own: true})
}

// LiftBorrow reads a handle without taking ownership. Lifting from an own
// handle records a lend with the current call; the lend releases when the
// call settles.
func (t *Table) LiftBorrow(idx uint32, lender Lender) (Borrow, error) {
	h, err := t.slots.Get(idx)
	if err != nil {
		return Borrow{}, err
	}
	if h.own {
		h.lends++
		lender.RegisterLend(func() { h.lends-- })
	}
	return Borrow{Res: t.res, Rep: h.rep}, nil
}

// LowerBorrow stores an abstract borrow value as a borrow handle. The
// receiving call's scope must see the handle dropped before it settles.
func (t *Table) LowerBorrow(v Borrow, scope BorrowScope) (uint32, error) {
	if v.Res != t.res {
		return 0, errors.New(errors.PhaseResource, errors.KindTypeMismatch).
			Detail("borrow of %q lowered into table of %q", v.Res.ID.Name, t.res.ID.Name).Build()
	}
	idx, err := t.slots.Add(&handle{rep: v.Rep, scope: scope})
	if err != nil {
		return 0, err
	}
	if scope != nil {
		scope.BorrowLowered()
	}
	return idx, nil
}

// Drop removes a handle. Dropping the own handle runs the destructor;
// dropping a borrow handle settles the scope accounting. This backs the
// resource.drop built-in.
func (t *Table) Drop(idx uint32) error {
	h, err := t.slots.Get(idx)
	if err != nil {
		return err
	}
	if h.own && h.lends > 0 {
		return errors.BorrowViolation(errors.PhaseResource, "drop of own handle %d with %d outstanding lends", idx, h.lends)
	}
	if _, err := t.slots.Remove(idx); err != nil {
		return err
	}
	if h.own {
		if t.res.Dtor != nil {
			if err := t.res.Dtor(h.rep); err != nil {
				return errors.Wrap(errors.PhaseResource, errors.KindState, err, "destructor for handle %d", idx)
			}
		}
		return nil
	}
	if h.scope != nil {
		h.scope.BorrowDropped()
	}
	return nil
}

// Len is the number of live handles.
func (t *Table) Len() int { return t.slots.Len() }
