package codec

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/canon-abi/types"
)

// CoreValType is a core machine-word kind.
type CoreValType = api.ValueType

// Canonical ABI flattening limits. Signatures exceeding a cap spill to
// memory behind a single i32 pointer.
const (
	MaxFlatParams  = 16
	MaxFlatResults = 1

	// Asynchronous bindings carry a lower cap.
	MaxFlatAsyncParams  = 1
	MaxFlatAsyncResults = 0
)

// FlattenType maps a descriptor to its core word kinds. The result is a
// pure function of the type graph alone.
func FlattenType(t *types.Type) []CoreValType {
	t = types.Despecialize(t)
	switch t.Kind {
	case types.KindBool, types.KindU8, types.KindS8, types.KindU16, types.KindS16,
		types.KindU32, types.KindS32, types.KindChar:
		return []CoreValType{api.ValueTypeI32}
	case types.KindU64, types.KindS64:
		return []CoreValType{api.ValueTypeI64}
	case types.KindF32:
		return []CoreValType{api.ValueTypeF32}
	case types.KindF64:
		return []CoreValType{api.ValueTypeF64}
	case types.KindString, types.KindList:
		return []CoreValType{api.ValueTypeI32, api.ValueTypeI32} // ptr, len
	case types.KindRecord:
		var flat []CoreValType
		for _, f := range t.Fields {
			flat = append(flat, FlattenType(f.Type)...)
		}
		return flat
	case types.KindVariant:
		payload := flattenVariantPayload(t)
		return append([]CoreValType{api.ValueTypeI32}, payload...)
	case types.KindFlags:
		// zero-label flags carry no information: no memory bytes, no
		// flat words
		n := (len(t.Labels) + 31) / 32
		flat := make([]CoreValType, n)
		for i := range flat {
			flat[i] = api.ValueTypeI32
		}
		return flat
	case types.KindOwn, types.KindBorrow, types.KindStream, types.KindFuture, types.KindErrorContext:
		return []CoreValType{api.ValueTypeI32}
	default:
		return nil
	}
}

// flattenVariantPayload computes the joined payload word kinds across all
// cases: at each position the shared slot takes the joined kind.
func flattenVariantPayload(t *types.Type) []CoreValType {
	var payload []CoreValType
	for _, c := range t.Cases {
		if c.Type == nil {
			continue
		}
		caseFlat := FlattenType(c.Type)
		for i, ft := range caseFlat {
			if i < len(payload) {
				payload[i] = joinTypes(payload[i], ft)
			} else {
				payload = append(payload, ft)
			}
		}
	}
	return payload
}

// joinTypes unions two core word kinds sharing a variant payload slot.
func joinTypes(a, b CoreValType) CoreValType {
	if a == b {
		return a
	}
	// 32-bit kinds share an i32 slot
	if (a == api.ValueTypeI32 && b == api.ValueTypeF32) ||
		(a == api.ValueTypeF32 && b == api.ValueTypeI32) {
		return api.ValueTypeI32
	}
	// Different sizes require i64
	return api.ValueTypeI64
}

// FlattenTypes flattens a descriptor list.
func FlattenTypes(ts []*types.Type) []CoreValType {
	var flat []CoreValType
	for _, t := range ts {
		flat = append(flat, FlattenType(t)...)
	}
	return flat
}

// FlatCount is len(FlattenType(t)) without building the slice.
func FlatCount(t *types.Type) int {
	t = types.Despecialize(t)
	switch t.Kind {
	case types.KindString, types.KindList:
		return 2
	case types.KindRecord:
		n := 0
		for _, f := range t.Fields {
			n += FlatCount(f.Type)
		}
		return n
	case types.KindVariant:
		maxPayload := 0
		for _, c := range t.Cases {
			if c.Type != nil {
				if n := FlatCount(c.Type); n > maxPayload {
					maxPayload = n
				}
			}
		}
		return 1 + maxPayload
	case types.KindFlags:
		return (len(t.Labels) + 31) / 32
	default:
		return 1
	}
}

// LowerSignature computes the flat core signature from the caller's
// perspective: spilled params collapse to one i32 pointer and spilled
// results append an i32 return pointer to the params.
func LowerSignature(params, results []*types.Type, sync bool) (flatParams, flatResults []CoreValType) {
	maxParams, maxResults := MaxFlatParams, MaxFlatResults
	if !sync {
		maxParams, maxResults = MaxFlatAsyncParams, MaxFlatAsyncResults
	}

	flatParams = FlattenTypes(params)
	if len(flatParams) > maxParams {
		flatParams = []CoreValType{api.ValueTypeI32}
	}

	flatResults = FlattenTypes(results)
	if len(flatResults) > maxResults {
		flatParams = append(flatParams, api.ValueTypeI32)
		flatResults = nil
	}
	return flatParams, flatResults
}

// LiftSignature computes the flat core signature from the callee's
// perspective: spilled results are returned as a single i32 pointer.
func LiftSignature(params, results []*types.Type, sync bool) (flatParams, flatResults []CoreValType) {
	maxParams, maxResults := MaxFlatParams, MaxFlatResults
	if !sync {
		maxParams, maxResults = MaxFlatAsyncParams, MaxFlatAsyncResults
	}

	flatParams = FlattenTypes(params)
	if len(flatParams) > maxParams {
		flatParams = []CoreValType{api.ValueTypeI32}
	}

	flatResults = FlattenTypes(results)
	if len(flatResults) > maxResults {
		flatResults = []CoreValType{api.ValueTypeI32}
	}
	return flatParams, flatResults
}
