package codec

import (
	"math"

	"github.com/wippyai/canon-abi/codec/internal/abi"
	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/types"
)

// Store writes an abstract value of type t into guest memory at offset.
// offset must satisfy the type's alignment. Variable-size payloads
// (strings, lists) allocate through the context's allocator.
func (cx *Context) Store(t *types.Type, v any, offset uint32) error {
	return cx.store(t, v, offset, nil)
}

func (cx *Context) store(t *types.Type, v any, offset uint32, path []string) error {
	t = types.Despecialize(t)
	if align := Alignment(t); offset%align != 0 {
		return errors.Misaligned(errors.PhaseStore, offset, align)
	}

	mem := cx.memory()
	switch t.Kind {
	case types.KindBool:
		b, err := asBool(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		var byteVal uint8
		if b {
			byteVal = 1
		}
		return wrapStore(mem.WriteU8(offset, byteVal), offset)
	case types.KindU8:
		n, err := asU8(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU8(offset, n), offset)
	case types.KindS8:
		n, err := asS8(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU8(offset, uint8(n)), offset)
	case types.KindU16:
		n, err := asU16(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU16(offset, n), offset)
	case types.KindS16:
		n, err := asS16(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU16(offset, uint16(n)), offset)
	case types.KindU32:
		n, err := asU32(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU32(offset, n), offset)
	case types.KindS32:
		n, err := asS32(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU32(offset, uint32(n)), offset)
	case types.KindU64:
		n, err := asU64(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU64(offset, n), offset)
	case types.KindS64:
		n, err := asS64(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU64(offset, uint64(n)), offset)
	case types.KindF32:
		f, err := asF32(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU32(offset, abi.CanonicalizeF32(math.Float32bits(f))), offset)
	case types.KindF64:
		f, err := asF64(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU64(offset, abi.CanonicalizeF64(math.Float64bits(f))), offset)
	case types.KindChar:
		r, err := asChar(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		if !abi.ValidateChar(r) {
			return errors.InvalidChar(errors.PhaseStore, uint32(r))
		}
		return wrapStore(mem.WriteU32(offset, uint32(r)), offset)
	case types.KindString:
		ptr, packed, err := cx.storeString(v, path)
		if err != nil {
			return err
		}
		if err := mem.WriteU32(offset, ptr); err != nil {
			return wrapStore(err, offset)
		}
		return wrapStore(mem.WriteU32(offset+4, packed), offset+4)
	case types.KindList:
		ptr, length, err := cx.storeList(t.Elem, v, path)
		if err != nil {
			return err
		}
		if err := mem.WriteU32(offset, ptr); err != nil {
			return wrapStore(err, offset)
		}
		return wrapStore(mem.WriteU32(offset+4, length), offset+4)
	case types.KindRecord:
		fields, err := asRecord(errors.PhaseStore, path, v)
		if err != nil {
			return err
		}
		fieldOffset := uint32(0)
		for _, f := range t.Fields {
			fv, ok := fields[f.Name]
			if !ok {
				return errors.TypeMismatch(errors.PhaseStore, append(path, f.Name), "field "+f.Name, v)
			}
			fieldOffset = abi.AlignTo(fieldOffset, Alignment(f.Type))
			if err := cx.store(f.Type, fv, offset+fieldOffset, append(path, f.Name)); err != nil {
				return err
			}
			fieldOffset += Size(f.Type)
		}
		return nil
	case types.KindVariant:
		return cx.storeVariant(t, v, offset, path)
	case types.KindFlags:
		return cx.storeFlags(t, v, offset, path)
	case types.KindOwn, types.KindBorrow, types.KindStream, types.KindFuture, types.KindErrorContext:
		idx, err := cx.lowerHandle(t, v, path)
		if err != nil {
			return err
		}
		return wrapStore(mem.WriteU32(offset, idx), offset)
	}
	return errors.Unsupported(errors.PhaseStore, t.Kind.String())
}

func wrapStore(err error, offset uint32) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(errors.PhaseStore, errors.KindOutOfBounds, err, "write at %d", offset)
}

// storeList allocates space for the elements and writes them in place,
// returning the guest pointer and element count.
func (cx *Context) storeList(elem *types.Type, v any, path []string) (ptr, length uint32, err error) {
	items, err := asList(errors.PhaseStore, path, v)
	if err != nil {
		return 0, 0, err
	}
	if len(items) > abi.MaxListLength {
		return 0, 0, errors.Overflow(errors.PhaseStore, "list length %d exceeds limit", len(items))
	}
	length = uint32(len(items))
	elemSize := Size(elem)
	elemAlign := Alignment(elem)
	byteLen, ok := abi.SafeMulU32(length, elemSize)
	if !ok {
		return 0, 0, errors.Overflow(errors.PhaseStore, "list byte length overflows")
	}
	if byteLen == 0 {
		// zero-size allocation still yields an aligned pointer
		ptr, err = cx.alloc(0, elemAlign)
		return ptr, length, err
	}
	ptr, err = cx.alloc(byteLen, elemAlign)
	if err != nil {
		return 0, 0, err
	}
	for i, item := range items {
		if err := cx.store(elem, item, ptr+uint32(i)*elemSize, path); err != nil {
			return 0, 0, err
		}
	}
	return ptr, length, nil
}

func (cx *Context) storeVariant(t *types.Type, v any, offset uint32, path []string) error {
	c, err := asVariant(errors.PhaseStore, path, v)
	if err != nil {
		return err
	}
	disc := -1
	for i, tc := range t.Cases {
		if tc.Name == c.Case {
			disc = i
			break
		}
	}
	if disc < 0 {
		return errors.TypeMismatch(errors.PhaseStore, path, "case of "+t.String(), c.Case)
	}

	mem := cx.memory()
	switch abi.DiscriminantSize(len(t.Cases)) {
	case 1:
		err = mem.WriteU8(offset, uint8(disc))
	case 2:
		err = mem.WriteU16(offset, uint16(disc))
	default:
		err = mem.WriteU32(offset, uint32(disc))
	}
	if err != nil {
		return wrapStore(err, offset)
	}

	caseType := t.Cases[disc].Type
	if caseType == nil {
		return nil
	}
	return cx.store(caseType, c.Payload, offset+variantPayloadOffset(t), append(path, c.Case))
}

func (cx *Context) storeFlags(t *types.Type, v any, offset uint32, path []string) error {
	set, err := asFlags(errors.PhaseStore, path, v)
	if err != nil {
		return err
	}
	for name := range set {
		if !hasLabel(t.Labels, name) {
			return errors.TypeMismatch(errors.PhaseStore, path, "flag of "+t.String(), name)
		}
	}

	mem := cx.memory()
	size := flagsSize(len(t.Labels), false)
	switch size {
	case 0:
		return nil
	case 1:
		return wrapStore(mem.WriteU8(offset, uint8(packFlags(set, t.Labels, 0))), offset)
	case 2:
		return wrapStore(mem.WriteU16(offset, uint16(packFlags(set, t.Labels, 0))), offset)
	default:
		for group := uint32(0); group < size/4; group++ {
			if err := mem.WriteU32(offset+group*4, packFlags(set, t.Labels, int(group)*32)); err != nil {
				return wrapStore(err, offset+group*4)
			}
		}
		return nil
	}
}

// packFlags builds one 32-bit group from the label window starting at base.
func packFlags(set map[string]bool, labels []string, base int) uint32 {
	var bits uint32
	for i := 0; i < 32 && base+i < len(labels); i++ {
		if set[labels[base+i]] {
			bits |= 1 << i
		}
	}
	return bits
}

func hasLabel(labels []string, name string) bool {
	for _, l := range labels {
		if l == name {
			return true
		}
	}
	return false
}

func (cx *Context) lowerHandle(t *types.Type, v any, path []string) (uint32, error) {
	if cx.Scope == nil {
		return 0, errors.State(errors.PhaseLower, "no handle scope for %s", t.Kind)
	}
	return cx.Scope.LowerHandle(t, v)
}

// alloc requests guest memory through the call-site allocator.
func (cx *Context) alloc(size, align uint32) (uint32, error) {
	if size > abi.MaxAlloc {
		return 0, errors.Overflow(errors.PhaseStore, "allocation of %d bytes exceeds limit", size)
	}
	if cx.Opts.Realloc == nil {
		return 0, errors.AllocationFailed(errors.PhaseStore, size, align, nil)
	}
	ptr, err := cx.Opts.Realloc.Alloc(size, align)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseStore, size, align, err)
	}
	if ptr%align != 0 {
		return 0, errors.Misaligned(errors.PhaseStore, ptr, align)
	}
	return ptr, nil
}
