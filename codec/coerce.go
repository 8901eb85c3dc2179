package codec

import (
	"math"

	"github.com/wippyai/canon-abi/errors"
)

// Coercions from abstract values to concrete Go carriers. Exact types are
// accepted directly; untyped-friendly carriers (int, int64, uint64,
// float64) are accepted with range checks so host callers do not need to
// pre-convert every literal.

func asBool(phase errors.Phase, path []string, v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, errors.TypeMismatch(phase, path, "bool", v)
}

func asU8(phase errors.Phase, path []string, v any) (uint8, error) {
	n, err := asUint(phase, path, v, math.MaxUint8, "u8")
	return uint8(n), err
}

func asU16(phase errors.Phase, path []string, v any) (uint16, error) {
	n, err := asUint(phase, path, v, math.MaxUint16, "u16")
	return uint16(n), err
}

func asU32(phase errors.Phase, path []string, v any) (uint32, error) {
	n, err := asUint(phase, path, v, math.MaxUint32, "u32")
	return uint32(n), err
}

func asU64(phase errors.Phase, path []string, v any) (uint64, error) {
	return asUint(phase, path, v, math.MaxUint64, "u64")
}

func asUint(phase errors.Phase, path []string, v any, max uint64, want string) (uint64, error) {
	var n uint64
	switch x := v.(type) {
	case uint8:
		n = uint64(x)
	case uint16:
		n = uint64(x)
	case uint32:
		n = uint64(x)
	case uint64:
		n = x
	case uint:
		n = uint64(x)
	case int:
		if x < 0 {
			return 0, errors.TypeMismatch(phase, path, want, v)
		}
		n = uint64(x)
	case int64:
		if x < 0 {
			return 0, errors.TypeMismatch(phase, path, want, v)
		}
		n = uint64(x)
	default:
		return 0, errors.TypeMismatch(phase, path, want, v)
	}
	if n > max {
		return 0, errors.TypeMismatch(phase, path, want, v)
	}
	return n, nil
}

func asS8(phase errors.Phase, path []string, v any) (int8, error) {
	n, err := asInt(phase, path, v, math.MinInt8, math.MaxInt8, "s8")
	return int8(n), err
}

func asS16(phase errors.Phase, path []string, v any) (int16, error) {
	n, err := asInt(phase, path, v, math.MinInt16, math.MaxInt16, "s16")
	return int16(n), err
}

func asS32(phase errors.Phase, path []string, v any) (int32, error) {
	n, err := asInt(phase, path, v, math.MinInt32, math.MaxInt32, "s32")
	return int32(n), err
}

func asS64(phase errors.Phase, path []string, v any) (int64, error) {
	return asInt(phase, path, v, math.MinInt64, math.MaxInt64, "s64")
}

func asInt(phase errors.Phase, path []string, v any, min, max int64, want string) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int8:
		n = int64(x)
	case int16:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case int:
		n = int64(x)
	case uint64:
		if x > math.MaxInt64 {
			return 0, errors.TypeMismatch(phase, path, want, v)
		}
		n = int64(x)
	default:
		return 0, errors.TypeMismatch(phase, path, want, v)
	}
	if n < min || n > max {
		return 0, errors.TypeMismatch(phase, path, want, v)
	}
	return n, nil
}

func asF32(phase errors.Phase, path []string, v any) (float32, error) {
	switch x := v.(type) {
	case float32:
		return x, nil
	case float64:
		return float32(x), nil
	default:
		return 0, errors.TypeMismatch(phase, path, "f32", v)
	}
}

func asF64(phase errors.Phase, path []string, v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	default:
		return 0, errors.TypeMismatch(phase, path, "f64", v)
	}
}

func asChar(phase errors.Phase, path []string, v any) (rune, error) {
	switch x := v.(type) {
	case rune:
		return x, nil
	default:
		return 0, errors.TypeMismatch(phase, path, "char", v)
	}
}

func asRecord(phase errors.Phase, path []string, v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	return nil, errors.TypeMismatch(phase, path, "record", v)
}

func asList(phase errors.Phase, path []string, v any) ([]any, error) {
	if l, ok := v.([]any); ok {
		return l, nil
	}
	return nil, errors.TypeMismatch(phase, path, "list", v)
}

func asVariant(phase errors.Phase, path []string, v any) (Variant, error) {
	if c, ok := v.(Variant); ok {
		return c, nil
	}
	return Variant{}, errors.TypeMismatch(phase, path, "variant", v)
}

func asFlags(phase errors.Phase, path []string, v any) (map[string]bool, error) {
	if f, ok := v.(map[string]bool); ok {
		return f, nil
	}
	return nil, errors.TypeMismatch(phase, path, "flags", v)
}
