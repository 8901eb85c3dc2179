package codec

import (
	"github.com/wippyai/canon-abi/codec/internal/abi"
	"github.com/wippyai/canon-abi/types"
)

// Alignment computes the byte alignment of a descriptor's memory layout.
func Alignment(t *types.Type) uint32 {
	t = types.Despecialize(t)
	switch t.Kind {
	case types.KindBool, types.KindU8, types.KindS8:
		return 1
	case types.KindU16, types.KindS16:
		return 2
	case types.KindU32, types.KindS32, types.KindF32, types.KindChar:
		return 4
	case types.KindU64, types.KindS64, types.KindF64:
		return 8
	case types.KindString, types.KindList:
		return 4 // [ptr: u32, len: u32]
	case types.KindRecord:
		maxAlign := uint32(1)
		for _, f := range t.Fields {
			if a := Alignment(f.Type); a > maxAlign {
				maxAlign = a
			}
		}
		return maxAlign
	case types.KindVariant:
		maxAlign := abi.DiscriminantSize(len(t.Cases))
		for _, c := range t.Cases {
			if c.Type != nil {
				if a := Alignment(c.Type); a > maxAlign {
					maxAlign = a
				}
			}
		}
		return maxAlign
	case types.KindFlags:
		return flagsSize(len(t.Labels), true)
	case types.KindOwn, types.KindBorrow, types.KindStream, types.KindFuture, types.KindErrorContext:
		return 4
	default:
		return 1
	}
}

// Size computes the byte footprint of a descriptor's memory layout.
func Size(t *types.Type) uint32 {
	t = types.Despecialize(t)
	switch t.Kind {
	case types.KindBool, types.KindU8, types.KindS8:
		return 1
	case types.KindU16, types.KindS16:
		return 2
	case types.KindU32, types.KindS32, types.KindF32, types.KindChar:
		return 4
	case types.KindU64, types.KindS64, types.KindF64:
		return 8
	case types.KindString, types.KindList:
		return 8
	case types.KindRecord:
		offset := uint32(0)
		for _, f := range t.Fields {
			offset = abi.AlignTo(offset, Alignment(f.Type))
			offset += Size(f.Type)
		}
		if len(t.Fields) == 0 {
			return 0
		}
		return abi.AlignTo(offset, Alignment(t))
	case types.KindVariant:
		maxAlign := Alignment(t)
		maxCase := uint32(0)
		for _, c := range t.Cases {
			if c.Type != nil {
				if s := Size(c.Type); s > maxCase {
					maxCase = s
				}
			}
		}
		discSize := abi.DiscriminantSize(len(t.Cases))
		return abi.AlignTo(abi.AlignTo(discSize, maxAlign)+maxCase, maxAlign)
	case types.KindFlags:
		return flagsSize(len(t.Labels), false)
	case types.KindOwn, types.KindBorrow, types.KindStream, types.KindFuture, types.KindErrorContext:
		return 4
	default:
		return 0
	}
}

// flagsSize returns the flags footprint; beyond 32 labels the layout falls
// back to 32-bit groups (alignment stays 4).
func flagsSize(n int, wantAlign bool) uint32 {
	switch {
	case n == 0:
		if wantAlign {
			return 1
		}
		return 0
	case n <= 8:
		return 1
	case n <= 16:
		return 2
	case n <= 32:
		return 4
	default:
		if wantAlign {
			return 4
		}
		return uint32((n + 31) / 32 * 4)
	}
}

// variantPayloadOffset is where a variant's payload starts, relative to the
// start of the variant.
func variantPayloadOffset(t *types.Type) uint32 {
	return abi.AlignTo(abi.DiscriminantSize(len(t.Cases)), Alignment(t))
}
