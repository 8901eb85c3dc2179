package types

import (
	"testing"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/canon-abi/errors"
)

func TestFromWITPrimitives(t *testing.T) {
	tests := []struct {
		witType wit.Type
		want    *Type
	}{
		{wit.Bool{}, Bool},
		{wit.U8{}, U8},
		{wit.S8{}, S8},
		{wit.U16{}, U16},
		{wit.S16{}, S16},
		{wit.U32{}, U32},
		{wit.S32{}, S32},
		{wit.U64{}, U64},
		{wit.S64{}, S64},
		{wit.F32{}, F32},
		{wit.F64{}, F64},
		{wit.Char{}, Char},
		{wit.String{}, String},
	}
	for _, tc := range tests {
		got, err := FromWIT(tc.witType)
		if err != nil {
			t.Fatalf("FromWIT(%T): %v", tc.witType, err)
		}
		if got != tc.want {
			t.Fatalf("FromWIT(%T) = %s, want the shared %s descriptor", tc.witType, got.Kind, tc.want.Kind)
		}
	}
}

func TestFromWITComposites(t *testing.T) {
	t.Run("record", func(t *testing.T) {
		td := &wit.TypeDef{
			Kind: &wit.Record{
				Fields: []wit.Field{
					{Name: "a", Type: wit.U32{}},
					{Name: "b", Type: wit.String{}},
				},
			},
		}
		got := mustConvert(t, td)
		if got.Kind != KindRecord || len(got.Fields) != 2 {
			t.Fatalf("got %s with %d fields", got.Kind, len(got.Fields))
		}
		if got.Fields[0].Name != "a" || got.Fields[0].Type != U32 {
			t.Fatalf("field 0 = %+v", got.Fields[0])
		}
		if got.Fields[1].Name != "b" || got.Fields[1].Type != String {
			t.Fatalf("field 1 = %+v", got.Fields[1])
		}
	})

	t.Run("variant", func(t *testing.T) {
		td := &wit.TypeDef{
			Kind: &wit.Variant{
				Cases: []wit.Case{
					{Name: "none"},
					{Name: "value", Type: wit.F64{}},
				},
			},
		}
		got := mustConvert(t, td)
		if got.Kind != KindVariant || len(got.Cases) != 2 {
			t.Fatalf("got %s with %d cases", got.Kind, len(got.Cases))
		}
		if got.Cases[0].Name != "none" || got.Cases[0].Type != nil {
			t.Fatalf("case 0 = %+v", got.Cases[0])
		}
		if got.Cases[1].Name != "value" || got.Cases[1].Type != F64 {
			t.Fatalf("case 1 = %+v", got.Cases[1])
		}
	})

	t.Run("enum", func(t *testing.T) {
		td := &wit.TypeDef{
			Kind: &wit.Enum{Cases: []wit.EnumCase{{Name: "x"}, {Name: "y"}}},
		}
		got := mustConvert(t, td)
		if got.Kind != KindEnum || len(got.Cases) != 2 || got.Cases[1].Name != "y" {
			t.Fatalf("got %s cases %+v", got.Kind, got.Cases)
		}
	})

	t.Run("flags", func(t *testing.T) {
		td := &wit.TypeDef{
			Kind: &wit.Flags{Flags: []wit.Flag{{Name: "read"}, {Name: "write"}}},
		}
		got := mustConvert(t, td)
		if got.Kind != KindFlags || len(got.Labels) != 2 || got.Labels[0] != "read" {
			t.Fatalf("got %s labels %v", got.Kind, got.Labels)
		}
	})

	t.Run("list", func(t *testing.T) {
		td := &wit.TypeDef{Kind: &wit.List{Type: wit.U8{}}}
		got := mustConvert(t, td)
		if got.Kind != KindList || got.Elem != U8 {
			t.Fatalf("got %s elem %v", got.Kind, got.Elem)
		}
	})

	t.Run("option", func(t *testing.T) {
		td := &wit.TypeDef{Kind: &wit.Option{Type: wit.U32{}}}
		got := mustConvert(t, td)
		if got.Kind != KindOption || got.Elem != U32 {
			t.Fatalf("got %s elem %v", got.Kind, got.Elem)
		}
	})

	t.Run("result", func(t *testing.T) {
		td := &wit.TypeDef{Kind: &wit.Result{OK: wit.U64{}}}
		got := mustConvert(t, td)
		if got.Kind != KindResult || got.OK != U64 || got.Err != nil {
			t.Fatalf("got %s ok %v err %v", got.Kind, got.OK, got.Err)
		}
	})

	t.Run("tuple", func(t *testing.T) {
		td := &wit.TypeDef{
			Kind: &wit.Tuple{Types: []wit.Type{wit.U32{}, wit.String{}}},
		}
		got := mustConvert(t, td)
		if got.Kind != KindTuple || len(got.Fields) != 2 {
			t.Fatalf("got %s with %d fields", got.Kind, len(got.Fields))
		}
		if got.Fields[1].Name != "1" || got.Fields[1].Type != String {
			t.Fatalf("field 1 = %+v", got.Fields[1])
		}
	})

	t.Run("alias chain", func(t *testing.T) {
		inner := &wit.TypeDef{Kind: &wit.List{Type: wit.Char{}}}
		alias := &wit.TypeDef{Kind: inner}
		got := mustConvert(t, alias)
		if got.Kind != KindList || got.Elem != Char {
			t.Fatalf("got %s elem %v", got.Kind, got.Elem)
		}
	})
}

func TestFromWITResourceIdentity(t *testing.T) {
	name := "file"
	res := &wit.TypeDef{Name: &name, Kind: &wit.Resource{}}
	own := &wit.TypeDef{Kind: &wit.Own{Type: res}}
	borrow := &wit.TypeDef{Kind: &wit.Borrow{Type: res}}

	c := NewWITConverter()
	o, err := c.Convert(own)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Convert(borrow)
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != KindOwn || b.Kind != KindBorrow {
		t.Fatalf("kinds = %s, %s", o.Kind, b.Kind)
	}
	// the same resource TypeDef maps to one identity token
	if o.Resource != b.Resource {
		t.Fatal("own and borrow of one resource diverged")
	}

	// a fresh converter mints a fresh identity
	o2, err := NewWITConverter().Convert(own)
	if err != nil {
		t.Fatal(err)
	}
	if o2.Resource == o.Resource {
		t.Fatal("separate converters shared a resource identity")
	}
}

func TestFromWITSharedNodesConvertOnce(t *testing.T) {
	point := &wit.TypeDef{
		Kind: &wit.Record{
			Fields: []wit.Field{
				{Name: "x", Type: wit.S32{}},
				{Name: "y", Type: wit.S32{}},
			},
		},
	}
	pair := &wit.TypeDef{Kind: &wit.Tuple{Types: []wit.Type{point, point}}}

	got := mustConvert(t, pair)
	if got.Fields[0].Type != got.Fields[1].Type {
		t.Fatal("shared wit node converted to two descriptors")
	}
}

func TestFromWITUnsupportedKind(t *testing.T) {
	// a bare resource is only valid behind own/borrow
	_, err := FromWIT(&wit.TypeDef{Kind: &wit.Resource{}})
	if err == nil {
		t.Fatal("expected error")
	}
	trap, ok := err.(*errors.Trap)
	if !ok || trap.Kind != errors.KindUnsupported {
		t.Fatalf("err = %v", err)
	}
}

func mustConvert(t *testing.T, w wit.Type) *Type {
	t.Helper()
	got, err := FromWIT(w)
	if err != nil {
		t.Fatalf("FromWIT: %v", err)
	}
	return got
}
