package codec

import (
	"math"

	"github.com/wippyai/canon-abi/codec/internal/abi"
	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/types"
)

// Flat values travel as raw 64-bit words, one per core value. Floats ride
// as their bit patterns, so a payload slot joined to a wider kind needs no
// extra coercion when lifting or lowering.

// LiftFlat reads one abstract value of type t from flat, returning the
// number of words consumed. Variants always consume their full flat width
// regardless of which case is present.
func (cx *Context) LiftFlat(t *types.Type, flat []uint64) (any, int, error) {
	return cx.liftFlat(t, flat, nil)
}

func (cx *Context) liftFlat(t *types.Type, flat []uint64, path []string) (any, int, error) {
	t = types.Despecialize(t)
	need := FlatCount(t)
	if len(flat) < need {
		return nil, 0, errors.State(errors.PhaseLift, "flat underflow: need %d words, have %d", need, len(flat))
	}

	switch t.Kind {
	case types.KindBool:
		return flat[0] != 0, 1, nil
	case types.KindU8:
		return uint8(flat[0]), 1, nil
	case types.KindS8:
		return int8(flat[0]), 1, nil
	case types.KindU16:
		return uint16(flat[0]), 1, nil
	case types.KindS16:
		return int16(flat[0]), 1, nil
	case types.KindU32:
		return uint32(flat[0]), 1, nil
	case types.KindS32:
		return int32(flat[0]), 1, nil
	case types.KindU64:
		return flat[0], 1, nil
	case types.KindS64:
		return int64(flat[0]), 1, nil
	case types.KindF32:
		return math.Float32frombits(abi.CanonicalizeF32(uint32(flat[0]))), 1, nil
	case types.KindF64:
		return math.Float64frombits(abi.CanonicalizeF64(flat[0])), 1, nil
	case types.KindChar:
		r := rune(uint32(flat[0]))
		if !abi.ValidateChar(r) {
			return nil, 0, errors.InvalidChar(errors.PhaseLift, uint32(flat[0]))
		}
		return r, 1, nil
	case types.KindString:
		s, err := cx.loadString(uint32(flat[0]), uint32(flat[1]))
		if err != nil {
			return nil, 0, err
		}
		return s, 2, nil
	case types.KindList:
		l, err := cx.loadList(t.Elem, uint32(flat[0]), uint32(flat[1]), path)
		if err != nil {
			return nil, 0, err
		}
		return l, 2, nil
	case types.KindRecord:
		out := make(map[string]any, len(t.Fields))
		consumed := 0
		for _, f := range t.Fields {
			v, n, err := cx.liftFlat(f.Type, flat[consumed:], append(path, f.Name))
			if err != nil {
				return nil, 0, err
			}
			out[f.Name] = v
			consumed += n
		}
		return out, consumed, nil
	case types.KindVariant:
		disc := uint32(flat[0])
		if int(disc) >= len(t.Cases) {
			return nil, 0, errors.InvalidDiscriminant(errors.PhaseLift, path, disc, len(t.Cases))
		}
		c := t.Cases[disc]
		if c.Type == nil {
			return Variant{Case: c.Name}, need, nil
		}
		payload, _, err := cx.liftFlat(c.Type, flat[1:], append(path, c.Name))
		if err != nil {
			return nil, 0, err
		}
		return Variant{Case: c.Name, Payload: payload}, need, nil
	case types.KindFlags:
		out := make(map[string]bool, len(t.Labels))
		for g := 0; g < need; g++ {
			unpackFlags(out, t.Labels, g*32, uint32(flat[g]))
		}
		return out, need, nil
	case types.KindOwn, types.KindBorrow, types.KindStream, types.KindFuture, types.KindErrorContext:
		v, err := cx.liftHandle(t, uint32(flat[0]), path)
		if err != nil {
			return nil, 0, err
		}
		return v, 1, nil
	}
	return nil, 0, errors.Unsupported(errors.PhaseLift, t.Kind.String())
}

// LowerFlat appends the flat words of v to dst. Unused variant payload
// slots are zero filled so every case occupies the full flat width.
func (cx *Context) LowerFlat(t *types.Type, v any, dst []uint64) ([]uint64, error) {
	return cx.lowerFlat(t, v, dst, nil)
}

func (cx *Context) lowerFlat(t *types.Type, v any, dst []uint64, path []string) ([]uint64, error) {
	t = types.Despecialize(t)
	switch t.Kind {
	case types.KindBool:
		b, err := asBool(errors.PhaseLower, path, v)
		if err != nil {
			return nil, err
		}
		if b {
			return append(dst, 1), nil
		}
		return append(dst, 0), nil
	case types.KindU8:
		n, err := asU8(errors.PhaseLower, path, v)
		return append(dst, uint64(n)), err
	case types.KindS8:
		n, err := asS8(errors.PhaseLower, path, v)
		return append(dst, uint64(uint32(int32(n)))), err
	case types.KindU16:
		n, err := asU16(errors.PhaseLower, path, v)
		return append(dst, uint64(n)), err
	case types.KindS16:
		n, err := asS16(errors.PhaseLower, path, v)
		return append(dst, uint64(uint32(int32(n)))), err
	case types.KindU32:
		n, err := asU32(errors.PhaseLower, path, v)
		return append(dst, uint64(n)), err
	case types.KindS32:
		n, err := asS32(errors.PhaseLower, path, v)
		return append(dst, uint64(uint32(n))), err
	case types.KindU64:
		n, err := asU64(errors.PhaseLower, path, v)
		return append(dst, n), err
	case types.KindS64:
		n, err := asS64(errors.PhaseLower, path, v)
		return append(dst, uint64(n)), err
	case types.KindF32:
		f, err := asF32(errors.PhaseLower, path, v)
		return append(dst, uint64(abi.CanonicalizeF32(math.Float32bits(f)))), err
	case types.KindF64:
		f, err := asF64(errors.PhaseLower, path, v)
		return append(dst, abi.CanonicalizeF64(math.Float64bits(f))), err
	case types.KindChar:
		r, err := asChar(errors.PhaseLower, path, v)
		if err != nil {
			return nil, err
		}
		if !abi.ValidateChar(r) {
			return nil, errors.InvalidChar(errors.PhaseLower, uint32(r))
		}
		return append(dst, uint64(uint32(r))), nil
	case types.KindString:
		ptr, packed, err := cx.storeString(v, path)
		if err != nil {
			return nil, err
		}
		return append(dst, uint64(ptr), uint64(packed)), nil
	case types.KindList:
		ptr, length, err := cx.storeList(t.Elem, v, path)
		if err != nil {
			return nil, err
		}
		return append(dst, uint64(ptr), uint64(length)), nil
	case types.KindRecord:
		fields, err := asRecord(errors.PhaseLower, path, v)
		if err != nil {
			return nil, err
		}
		for _, f := range t.Fields {
			fv, ok := fields[f.Name]
			if !ok {
				return nil, errors.TypeMismatch(errors.PhaseLower, append(path, f.Name), "field "+f.Name, v)
			}
			dst, err = cx.lowerFlat(f.Type, fv, dst, append(path, f.Name))
			if err != nil {
				return nil, err
			}
		}
		return dst, nil
	case types.KindVariant:
		c, err := asVariant(errors.PhaseLower, path, v)
		if err != nil {
			return nil, err
		}
		disc := -1
		for i, tc := range t.Cases {
			if tc.Name == c.Case {
				disc = i
				break
			}
		}
		if disc < 0 {
			return nil, errors.TypeMismatch(errors.PhaseLower, path, "case of "+t.String(), c.Case)
		}
		width := FlatCount(t)
		start := len(dst)
		dst = append(dst, uint64(disc))
		if ct := t.Cases[disc].Type; ct != nil {
			dst, err = cx.lowerFlat(ct, c.Payload, dst, append(path, c.Case))
			if err != nil {
				return nil, err
			}
		}
		for len(dst)-start < width {
			dst = append(dst, 0)
		}
		return dst, nil
	case types.KindFlags:
		set, err := asFlags(errors.PhaseLower, path, v)
		if err != nil {
			return nil, err
		}
		for name := range set {
			if !hasLabel(t.Labels, name) {
				return nil, errors.TypeMismatch(errors.PhaseLower, path, "flag of "+t.String(), name)
			}
		}
		for g := 0; g < FlatCount(t); g++ {
			dst = append(dst, uint64(packFlags(set, t.Labels, g*32)))
		}
		return dst, nil
	case types.KindOwn, types.KindBorrow, types.KindStream, types.KindFuture, types.KindErrorContext:
		idx, err := cx.lowerHandle(t, v, path)
		if err != nil {
			return nil, err
		}
		return append(dst, uint64(idx)), nil
	}
	return nil, errors.Unsupported(errors.PhaseLower, t.Kind.String())
}

// LiftFlatValues lifts a value list from a flat word sequence. When the
// combined flat width exceeds maxFlat the words hold a single pointer to a
// memory tuple instead.
func (cx *Context) LiftFlatValues(ts []*types.Type, flat []uint64, maxFlat int) ([]any, error) {
	total := 0
	for _, t := range ts {
		total += FlatCount(t)
	}
	if total > maxFlat {
		if len(flat) < 1 {
			return nil, errors.State(errors.PhaseLift, "missing spill pointer")
		}
		return cx.LoadValuesFrom(ts, uint32(flat[0]))
	}
	out := make([]any, len(ts))
	pos := 0
	for i, t := range ts {
		v, n, err := cx.LiftFlat(t, flat[pos:])
		if err != nil {
			return nil, err
		}
		out[i] = v
		pos += n
	}
	return out, nil
}

// LowerFlatValues lowers a value list to flat words. When the combined
// flat width exceeds maxFlat the values are spilled to a freshly allocated
// memory tuple and a single pointer word is returned.
func (cx *Context) LowerFlatValues(ts []*types.Type, vs []any, maxFlat int) ([]uint64, error) {
	if len(ts) != len(vs) {
		return nil, errors.State(errors.PhaseLower, "value count %d does not match type count %d", len(vs), len(ts))
	}
	total := 0
	for _, t := range ts {
		total += FlatCount(t)
	}
	if total > maxFlat {
		tuple := types.Tuple(ts...)
		ptr, err := cx.alloc(Size(tuple), Alignment(tuple))
		if err != nil {
			return nil, err
		}
		if err := cx.StoreValuesTo(ts, vs, ptr); err != nil {
			return nil, err
		}
		return []uint64{uint64(ptr)}, nil
	}
	var flat []uint64
	var err error
	for i, t := range ts {
		flat, err = cx.LowerFlat(t, vs[i], flat)
		if err != nil {
			return nil, err
		}
	}
	return flat, nil
}

// LoadValuesFrom reads a value list laid out as a tuple at ptr.
func (cx *Context) LoadValuesFrom(ts []*types.Type, ptr uint32) ([]any, error) {
	tuple := types.Despecialize(types.Tuple(ts...))
	if align := Alignment(tuple); ptr%align != 0 {
		return nil, errors.Misaligned(errors.PhaseLoad, ptr, align)
	}
	out := make([]any, len(ts))
	offset := uint32(0)
	for i, t := range ts {
		offset = abi.AlignTo(offset, Alignment(t))
		v, err := cx.load(t, ptr+offset, nil)
		if err != nil {
			return nil, err
		}
		out[i] = v
		offset += Size(t)
	}
	return out, nil
}

// StoreValuesTo writes a value list as a tuple at ptr.
func (cx *Context) StoreValuesTo(ts []*types.Type, vs []any, ptr uint32) error {
	tuple := types.Despecialize(types.Tuple(ts...))
	if align := Alignment(tuple); ptr%align != 0 {
		return errors.Misaligned(errors.PhaseStore, ptr, align)
	}
	offset := uint32(0)
	for i, t := range ts {
		offset = abi.AlignTo(offset, Alignment(t))
		if err := cx.store(t, vs[i], ptr+offset, nil); err != nil {
			return err
		}
		offset += Size(t)
	}
	return nil
}
