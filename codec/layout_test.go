package codec

import (
	"testing"

	"github.com/wippyai/canon-abi/types"
)

func TestLayout(t *testing.T) {
	point := types.Record(
		types.Field{Name: "x", Type: types.S32},
		types.Field{Name: "y", Type: types.S32},
	)
	mixed := types.Record(
		types.Field{Name: "a", Type: types.U8},
		types.Field{Name: "b", Type: types.U32},
		types.Field{Name: "c", Type: types.U8},
	)

	tests := []struct {
		name  string
		typ   *types.Type
		size  uint32
		align uint32
	}{
		{"bool", types.Bool, 1, 1},
		{"u8", types.U8, 1, 1},
		{"s16", types.S16, 2, 2},
		{"u32", types.U32, 4, 4},
		{"u64", types.U64, 8, 8},
		{"f32", types.F32, 4, 4},
		{"f64", types.F64, 8, 8},
		{"char", types.Char, 4, 4},
		{"string", types.String, 8, 4},
		{"list", types.List(types.U64), 8, 4},
		{"point", point, 8, 4},
		{"mixed padding", mixed, 12, 4},
		{"empty record", types.Record(), 0, 1},
		{"tuple despecializes", types.Tuple(types.U8, types.U32), 8, 4},
		{"enum small", types.Enum("a", "b", "c"), 1, 1},
		{"option u32", types.Option(types.U32), 8, 4},
		{"option u8", types.Option(types.U8), 2, 1},
		{"result u64 or string", types.Result(types.U64, types.String), 16, 8},
		{"variant unit cases", types.Variant(
			types.Case{Name: "a"},
			types.Case{Name: "b"},
		), 1, 1},
		{"flags 0", types.Flags(), 0, 1},
		{"flags 1", types.Flags("a"), 1, 1},
		{"flags 8", types.Flags(labels(8)...), 1, 1},
		{"flags 9", types.Flags(labels(9)...), 2, 2},
		{"flags 17", types.Flags(labels(17)...), 4, 4},
		{"flags 33", types.Flags(labels(33)...), 8, 4},
		{"flags 65", types.Flags(labels(65)...), 12, 4},
		{"own handle", types.Own(&types.ResourceID{Name: "file"}), 4, 4},
		{"future", types.Future(types.U32), 4, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Size(tc.typ); got != tc.size {
				t.Fatalf("Size = %d, want %d", got, tc.size)
			}
			if got := Alignment(tc.typ); got != tc.align {
				t.Fatalf("Alignment = %d, want %d", got, tc.align)
			}
		})
	}
}

func TestDiscriminantWidth(t *testing.T) {
	cases := make([]types.Case, 257)
	for i := range cases {
		cases[i] = types.Case{Name: label(i)}
	}
	small := types.Variant(cases[:256]...)
	if got := Size(small); got != 1 {
		t.Fatalf("256-case variant size = %d, want 1", got)
	}
	big := types.Variant(cases...)
	if got := Size(big); got != 2 {
		t.Fatalf("257-case variant size = %d, want 2", got)
	}
}

func TestVariantPayloadOffset(t *testing.T) {
	v := types.Variant(
		types.Case{Name: "none"},
		types.Case{Name: "some", Type: types.U64},
	)
	if got := variantPayloadOffset(v); got != 8 {
		t.Fatalf("payload offset = %d, want 8", got)
	}
	small := types.Variant(
		types.Case{Name: "a", Type: types.U8},
		types.Case{Name: "b"},
	)
	if got := variantPayloadOffset(small); got != 1 {
		t.Fatalf("payload offset = %d, want 1", got)
	}
}

func labels(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = label(i)
	}
	return out
}

func label(i int) string {
	return "f" + string(rune('a'+i%26)) + string(rune('a'+(i/26)%26))
}
