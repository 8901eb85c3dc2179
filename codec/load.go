package codec

import (
	"math"

	"github.com/wippyai/canon-abi/codec/internal/abi"
	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/types"
)

// Load reads an abstract value of type t from guest memory at offset.
// offset must satisfy the type's alignment.
func (cx *Context) Load(t *types.Type, offset uint32) (any, error) {
	return cx.load(t, offset, nil)
}

func (cx *Context) load(t *types.Type, offset uint32, path []string) (any, error) {
	t = types.Despecialize(t)
	if align := Alignment(t); offset%align != 0 {
		return nil, errors.Misaligned(errors.PhaseLoad, offset, align)
	}

	mem := cx.memory()
	switch t.Kind {
	case types.KindBool:
		b, err := mem.ReadU8(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "bool at %d", offset)
		}
		return b != 0, nil
	case types.KindU8:
		v, err := mem.ReadU8(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "u8 at %d", offset)
		}
		return v, nil
	case types.KindS8:
		v, err := mem.ReadU8(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "s8 at %d", offset)
		}
		return int8(v), nil
	case types.KindU16:
		v, err := mem.ReadU16(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "u16 at %d", offset)
		}
		return v, nil
	case types.KindS16:
		v, err := mem.ReadU16(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "s16 at %d", offset)
		}
		return int16(v), nil
	case types.KindU32:
		v, err := mem.ReadU32(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "u32 at %d", offset)
		}
		return v, nil
	case types.KindS32:
		v, err := mem.ReadU32(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "s32 at %d", offset)
		}
		return int32(v), nil
	case types.KindU64:
		v, err := mem.ReadU64(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "u64 at %d", offset)
		}
		return v, nil
	case types.KindS64:
		v, err := mem.ReadU64(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "s64 at %d", offset)
		}
		return int64(v), nil
	case types.KindF32:
		bits, err := mem.ReadU32(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "f32 at %d", offset)
		}
		return math.Float32frombits(abi.CanonicalizeF32(bits)), nil
	case types.KindF64:
		bits, err := mem.ReadU64(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "f64 at %d", offset)
		}
		return math.Float64frombits(abi.CanonicalizeF64(bits)), nil
	case types.KindChar:
		v, err := mem.ReadU32(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "char at %d", offset)
		}
		if !abi.ValidateChar(rune(v)) {
			return nil, errors.InvalidChar(errors.PhaseLoad, v)
		}
		return rune(v), nil
	case types.KindString:
		ptr, err := mem.ReadU32(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "string ptr at %d", offset)
		}
		packed, err := mem.ReadU32(offset + 4)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "string len at %d", offset+4)
		}
		return cx.loadString(ptr, packed)
	case types.KindList:
		ptr, err := mem.ReadU32(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "list ptr at %d", offset)
		}
		length, err := mem.ReadU32(offset + 4)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "list len at %d", offset+4)
		}
		return cx.loadList(t.Elem, ptr, length, path)
	case types.KindRecord:
		out := make(map[string]any, len(t.Fields))
		fieldOffset := uint32(0)
		for _, f := range t.Fields {
			fieldOffset = abi.AlignTo(fieldOffset, Alignment(f.Type))
			v, err := cx.load(f.Type, offset+fieldOffset, append(path, f.Name))
			if err != nil {
				return nil, err
			}
			out[f.Name] = v
			fieldOffset += Size(f.Type)
		}
		return out, nil
	case types.KindVariant:
		return cx.loadVariant(t, offset, path)
	case types.KindFlags:
		return cx.loadFlags(t, offset)
	case types.KindOwn, types.KindBorrow, types.KindStream, types.KindFuture, types.KindErrorContext:
		idx, err := mem.ReadU32(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "handle at %d", offset)
		}
		return cx.liftHandle(t, idx, path)
	}
	return nil, errors.Unsupported(errors.PhaseLoad, t.Kind.String())
}

func (cx *Context) loadList(elem *types.Type, ptr, length uint32, path []string) ([]any, error) {
	if length > abi.MaxListLength {
		return nil, errors.Overflow(errors.PhaseLoad, "list length %d exceeds limit", length)
	}
	elemSize := Size(elem)
	elemAlign := Alignment(elem)
	if ptr%elemAlign != 0 {
		return nil, errors.Misaligned(errors.PhaseLoad, ptr, elemAlign)
	}
	byteLen, ok := abi.SafeMulU32(length, elemSize)
	if !ok {
		return nil, errors.Overflow(errors.PhaseLoad, "list byte length overflows")
	}
	if _, ok := abi.SafeAddU32(ptr, byteLen); !ok {
		return nil, errors.OutOfBounds(errors.PhaseLoad, ptr, byteLen)
	}
	out := make([]any, length)
	for i := uint32(0); i < length; i++ {
		v, err := cx.load(elem, ptr+i*elemSize, path)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (cx *Context) loadVariant(t *types.Type, offset uint32, path []string) (Variant, error) {
	mem := cx.memory()
	discSize := abi.DiscriminantSize(len(t.Cases))
	var disc uint32
	var err error
	switch discSize {
	case 1:
		var b uint8
		b, err = mem.ReadU8(offset)
		disc = uint32(b)
	case 2:
		var h uint16
		h, err = mem.ReadU16(offset)
		disc = uint32(h)
	default:
		disc, err = mem.ReadU32(offset)
	}
	if err != nil {
		return Variant{}, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "discriminant at %d", offset)
	}
	if int(disc) >= len(t.Cases) {
		return Variant{}, errors.InvalidDiscriminant(errors.PhaseLoad, path, disc, len(t.Cases))
	}
	c := t.Cases[disc]
	if c.Type == nil {
		return Variant{Case: c.Name}, nil
	}
	payload, err := cx.load(c.Type, offset+variantPayloadOffset(t), append(path, c.Name))
	if err != nil {
		return Variant{}, err
	}
	return Variant{Case: c.Name, Payload: payload}, nil
}

func (cx *Context) loadFlags(t *types.Type, offset uint32) (map[string]bool, error) {
	mem := cx.memory()
	out := make(map[string]bool, len(t.Labels))
	size := flagsSize(len(t.Labels), false)
	switch size {
	case 0:
		return out, nil
	case 1:
		b, err := mem.ReadU8(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "flags at %d", offset)
		}
		unpackFlags(out, t.Labels, 0, uint32(b))
	case 2:
		h, err := mem.ReadU16(offset)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "flags at %d", offset)
		}
		unpackFlags(out, t.Labels, 0, uint32(h))
	default:
		for group := uint32(0); group < size/4; group++ {
			w, err := mem.ReadU32(offset + group*4)
			if err != nil {
				return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "flags at %d", offset+group*4)
			}
			unpackFlags(out, t.Labels, int(group)*32, w)
		}
	}
	return out, nil
}

// unpackFlags fills out from one 32-bit group starting at label index base.
func unpackFlags(out map[string]bool, labels []string, base int, bits uint32) {
	for i := 0; i < 32 && base+i < len(labels); i++ {
		out[labels[base+i]] = bits&(1<<i) != 0
	}
}

func (cx *Context) liftHandle(t *types.Type, idx uint32, path []string) (any, error) {
	if cx.Scope == nil {
		return nil, errors.State(errors.PhaseLift, "no handle scope for %s", t.Kind)
	}
	v, err := cx.Scope.LiftHandle(t, idx)
	if err != nil {
		return nil, err
	}
	return v, nil
}
