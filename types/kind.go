package types

type Kind uint8

const (
	KindBool Kind = iota
	KindU8
	KindS8
	KindU16
	KindS16
	KindU32
	KindS32
	KindU64
	KindS64
	KindF32
	KindF64
	KindChar
	KindString
	KindErrorContext
	KindList
	KindRecord
	KindVariant
	KindFlags
	KindOwn
	KindBorrow
	KindStream
	KindFuture

	// Specialized kinds; Despecialize rewrites these to their fundamental
	// record/variant form.
	KindTuple
	KindEnum
	KindOption
	KindResult
)

var kindNames = [...]string{
	KindBool:         "bool",
	KindU8:           "u8",
	KindS8:           "s8",
	KindU16:          "u16",
	KindS16:          "s16",
	KindU32:          "u32",
	KindS32:          "s32",
	KindU64:          "u64",
	KindS64:          "s64",
	KindF32:          "f32",
	KindF64:          "f64",
	KindChar:         "char",
	KindString:       "string",
	KindErrorContext: "error-context",
	KindList:         "list",
	KindRecord:       "record",
	KindVariant:      "variant",
	KindFlags:        "flags",
	KindOwn:          "own",
	KindBorrow:       "borrow",
	KindStream:       "stream",
	KindFuture:       "future",
	KindTuple:        "tuple",
	KindEnum:         "enum",
	KindOption:       "option",
	KindResult:       "result",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func (k Kind) IsPrimitive() bool {
	return k <= KindChar
}

// IsSpecialized reports whether the kind is sugar over record/variant.
func (k Kind) IsSpecialized() bool {
	return k >= KindTuple
}

// IsHandle reports whether values of this kind live in a handle table.
func (k Kind) IsHandle() bool {
	switch k {
	case KindOwn, KindBorrow, KindStream, KindFuture, KindErrorContext:
		return true
	default:
		return false
	}
}
