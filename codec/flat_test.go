package codec

import (
	"math"
	"reflect"
	"testing"

	"github.com/wippyai/canon-abi/errors"
	"github.com/wippyai/canon-abi/types"
)

func TestFlatRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		typ  *types.Type
		val  any
	}{
		{"bool", types.Bool, true},
		{"u8", types.U8, uint8(255)},
		{"s8", types.S8, int8(-1)},
		{"s32", types.S32, int32(-7)},
		{"u64", types.U64, uint64(1) << 40},
		{"s64", types.S64, int64(-1)},
		{"f32", types.F32, float32(1.5)},
		{"f64", types.F64, -0.25},
		{"char", types.Char, 'é'},
		{"record", types.Record(
			types.Field{Name: "n", Type: types.U32},
			types.Field{Name: "f", Type: types.F64},
		), map[string]any{"n": uint32(9), "f": 1.0}},
		{"option none", types.Option(types.F32), None},
		{"option some", types.Option(types.F32), Some(float32(2.5))},
		{"flags", types.Flags("a", "b"), map[string]bool{"a": true, "b": false}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cx, _ := newTestContext(UTF8)
			flat, err := cx.LowerFlat(tc.typ, tc.val, nil)
			if err != nil {
				t.Fatalf("LowerFlat: %v", err)
			}
			if len(flat) != FlatCount(tc.typ) {
				t.Fatalf("flat width = %d, want %d", len(flat), FlatCount(tc.typ))
			}
			got, consumed, err := cx.LiftFlat(tc.typ, flat)
			if err != nil {
				t.Fatalf("LiftFlat: %v", err)
			}
			if consumed != len(flat) {
				t.Fatalf("consumed = %d, want %d", consumed, len(flat))
			}
			if !reflect.DeepEqual(got, tc.val) {
				t.Fatalf("round trip = %#v, want %#v", got, tc.val)
			}
		})
	}
}

func TestFlatSignedRepresentation(t *testing.T) {
	cx, _ := newTestContext(UTF8)
	flat, err := cx.LowerFlat(types.S8, int8(-1), nil)
	if err != nil {
		t.Fatal(err)
	}
	// negative values occupy the low 32 bits two's complement
	if flat[0] != 0xffffffff {
		t.Fatalf("flat = %#x, want 0xffffffff", flat[0])
	}
}

func TestFlatVariantPadding(t *testing.T) {
	v := types.Variant(
		types.Case{Name: "big", Type: types.Tuple(types.U32, types.U32, types.U32)},
		types.Case{Name: "small", Type: types.U32},
	)
	cx, _ := newTestContext(UTF8)
	flat, err := cx.LowerFlat(v, Variant{Case: "small", Payload: uint32(5)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint64{1, 5, 0, 0}
	if !reflect.DeepEqual(flat, want) {
		t.Fatalf("flat = %v, want %v", flat, want)
	}

	got, consumed, err := cx.LiftFlat(v, flat)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != 4 {
		t.Fatalf("consumed = %d, want full width 4", consumed)
	}
	if !reflect.DeepEqual(got, Variant{Case: "small", Payload: uint32(5)}) {
		t.Fatalf("got %#v", got)
	}
}

func TestFlatJoinedFloatPayload(t *testing.T) {
	// an f32 payload travels as bits through the joined slot
	v := types.Variant(
		types.Case{Name: "i", Type: types.U32},
		types.Case{Name: "f", Type: types.F32},
	)
	cx, _ := newTestContext(UTF8)
	flat, err := cx.LowerFlat(v, Variant{Case: "f", Payload: float32(1.5)}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if uint32(flat[1]) != math.Float32bits(1.5) {
		t.Fatalf("payload bits = %#x", flat[1])
	}
	got, _, err := cx.LiftFlat(v, flat)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, Variant{Case: "f", Payload: float32(1.5)}) {
		t.Fatalf("got %#v", got)
	}
}

func TestFlatStringIndirection(t *testing.T) {
	cx, _ := newTestContext(UTF8)
	flat, err := cx.LowerFlat(types.String, "hi", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 2 {
		t.Fatalf("flat width = %d, want 2", len(flat))
	}
	got, _, err := cx.LiftFlat(types.String, flat)
	if err != nil {
		t.Fatal(err)
	}
	if got.(LiftedString).Value != "hi" {
		t.Fatalf("got %#v", got)
	}
}

func TestFlatUnderflow(t *testing.T) {
	cx, _ := newTestContext(UTF8)
	_, _, err := cx.LiftFlat(types.U64, nil)
	assertKind(t, err, errors.KindState)
}

func TestFlatValuesSpill(t *testing.T) {
	many := make([]*types.Type, 17)
	vals := make([]any, 17)
	for i := range many {
		many[i] = types.U32
		vals[i] = uint32(i)
	}

	cx, _ := newTestContext(UTF8)
	flat, err := cx.LowerFlatValues(many, vals, MaxFlatParams)
	if err != nil {
		t.Fatalf("LowerFlatValues: %v", err)
	}
	if len(flat) != 1 {
		t.Fatalf("flat = %v, want single spill pointer", flat)
	}

	got, err := cx.LiftFlatValues(many, flat, MaxFlatParams)
	if err != nil {
		t.Fatalf("LiftFlatValues: %v", err)
	}
	if !reflect.DeepEqual(got, vals) {
		t.Fatalf("got %v, want %v", got, vals)
	}
}

func TestFlatValuesDirect(t *testing.T) {
	ts := []*types.Type{types.U32, types.F64, types.Bool}
	vals := []any{uint32(1), 2.5, true}

	cx, _ := newTestContext(UTF8)
	flat, err := cx.LowerFlatValues(ts, vals, MaxFlatParams)
	if err != nil {
		t.Fatal(err)
	}
	if len(flat) != 3 {
		t.Fatalf("flat width = %d, want 3", len(flat))
	}
	got, err := cx.LiftFlatValues(ts, flat, MaxFlatParams)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, vals) {
		t.Fatalf("got %v, want %v", got, vals)
	}
}
