package engine

import (
	"github.com/wippyai/canon-abi/channel"
	"github.com/wippyai/canon-abi/codec"
	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/resource"
	"github.com/wippyai/canon-abi/types"
)

// handleScope resolves handle descriptors against one instance's tables
// for the duration of a single lift or lower. lender is set when lifting
// call arguments out of the caller, so borrows taken there restore when
// the subtask resolves. borrower is set when lowering into a live call.
type handleScope struct {
	inst     *Instance
	lender   resource.Lender
	borrower resource.BorrowScope
}

var _ codec.HandleScope = (*handleScope)(nil)

func (s *handleScope) LiftHandle(t *types.Type, index uint32) (any, error) {
	switch t.Kind {
	case types.KindOwn:
		tbl, err := s.inst.resourceTable(t)
		if err != nil {
			return nil, err
		}
		return tbl.LiftOwn(index)
	case types.KindBorrow:
		if s.lender == nil {
			return nil, errors.State(errors.PhaseLift, "borrow handle outside call arguments")
		}
		tbl, err := s.inst.resourceTable(t)
		if err != nil {
			return nil, err
		}
		return tbl.LiftBorrow(index, s.lender)
	case types.KindStream, types.KindFuture:
		return s.inst.takeEnd(t, index)
	case types.KindErrorContext:
		return s.inst.errctxs.Get(index)
	}
	return nil, errors.Unsupported(errors.PhaseLift, t.Kind.String())
}

func (s *handleScope) LowerHandle(t *types.Type, v any) (uint32, error) {
	switch t.Kind {
	case types.KindOwn:
		own, ok := v.(resource.Own)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseLower, nil, t.String(), v)
		}
		tbl, err := s.inst.resourceTable(t)
		if err != nil {
			return 0, err
		}
		return tbl.LowerOwn(own)
	case types.KindBorrow:
		if s.borrower == nil {
			return 0, errors.State(errors.PhaseLower, "borrow handle outside a live call")
		}
		borrow, ok := v.(resource.Borrow)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseLower, nil, t.String(), v)
		}
		tbl, err := s.inst.resourceTable(t)
		if err != nil {
			return 0, err
		}
		return tbl.LowerBorrow(borrow, s.borrower)
	case types.KindStream, types.KindFuture:
		return s.inst.addEnd(t, v)
	case types.KindErrorContext:
		ec, ok := v.(*ErrorContext)
		if !ok {
			return 0, errors.TypeMismatch(errors.PhaseLower, nil, t.String(), v)
		}
		return s.inst.errctxs.Add(ec)
	}
	return 0, errors.Unsupported(errors.PhaseLower, t.Kind.String())
}

// takeEnd removes a stream or future end from the waitable table and
// returns it as an abstract value. Transferring an end moves it; the
// source instance can no longer operate on it.
func (i *Instance) takeEnd(t *types.Type, index uint32) (any, error) {
	w, err := i.task.Waitables.Get(index)
	if err != nil {
		return nil, err
	}
	var end any
	switch src := w.Source().(type) {
	case *channel.ReadEnd:
		if err := checkEnd(t, src.Elem(), src.Future()); err != nil {
			return nil, err
		}
		end = src
	case *channel.WriteEnd:
		if err := checkEnd(t, src.Elem(), src.Future()); err != nil {
			return nil, err
		}
		end = src
	default:
		return nil, errors.New(errors.PhaseLift, errors.KindBadHandle).
			Value(index).Detail("waitable is not a stream or future end").Build()
	}
	if err := i.task.DropWaitable(index); err != nil {
		return nil, err
	}
	return end, nil
}

// addEnd enters a transferred end into the receiving instance's waitable
// table.
func (i *Instance) addEnd(t *types.Type, v any) (uint32, error) {
	switch end := v.(type) {
	case *channel.ReadEnd:
		if err := checkEnd(t, end.Elem(), end.Future()); err != nil {
			return 0, err
		}
		return i.task.AddWaitable(end.Waitable())
	case *channel.WriteEnd:
		if err := checkEnd(t, end.Elem(), end.Future()); err != nil {
			return 0, err
		}
		return i.task.AddWaitable(end.Waitable())
	}
	return 0, errors.TypeMismatch(errors.PhaseLower, nil, t.String(), v)
}

func checkEnd(t *types.Type, elem *types.Type, future bool) error {
	if future != (t.Kind == types.KindFuture) {
		return errors.TypeMismatch(errors.PhaseLift, nil, t.String(), "wrong channel mode")
	}
	if t.Elem != nil && elem != nil && t.Elem != elem {
		return errors.TypeMismatch(errors.PhaseLift, nil, t.String(), elem.String())
	}
	return nil
}
