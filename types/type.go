package types

import "strings"

// ResourceID is the identity token of a resource type. Two handle
// descriptors refer to the same resource type iff they hold the same
// pointer.
type ResourceID struct {
	Name string
}

// Type is an immutable type descriptor: a closed tagged union over the
// component-model value kinds. Descriptors are produced by an external
// front end (see FromWIT) or by the constructors below, and are never
// mutated after construction.
type Type struct {
	Kind     Kind
	Elem     *Type       // list, option, stream, future element (nil stream/future elem allowed)
	OK       *Type       // result ok payload (nil for unit)
	Err      *Type       // result err payload (nil for unit)
	Fields   []Field     // record, tuple
	Cases    []Case      // variant, enum (enum cases carry no payload)
	Labels   []string    // flags
	Resource *ResourceID // own, borrow
}

type Field struct {
	Name string
	Type *Type
}

type Case struct {
	Name string
	Type *Type // nil for unit cases
}

// Shared primitive descriptors.
var (
	Bool         = &Type{Kind: KindBool}
	U8           = &Type{Kind: KindU8}
	S8           = &Type{Kind: KindS8}
	U16          = &Type{Kind: KindU16}
	S16          = &Type{Kind: KindS16}
	U32          = &Type{Kind: KindU32}
	S32          = &Type{Kind: KindS32}
	U64          = &Type{Kind: KindU64}
	S64          = &Type{Kind: KindS64}
	F32          = &Type{Kind: KindF32}
	F64          = &Type{Kind: KindF64}
	Char         = &Type{Kind: KindChar}
	String       = &Type{Kind: KindString}
	ErrorContext = &Type{Kind: KindErrorContext}
)

func List(elem *Type) *Type {
	return &Type{Kind: KindList, Elem: elem}
}

func Record(fields ...Field) *Type {
	return &Type{Kind: KindRecord, Fields: fields}
}

func Variant(cases ...Case) *Type {
	return &Type{Kind: KindVariant, Cases: cases}
}

func Tuple(elems ...*Type) *Type {
	return &Type{Kind: KindTuple, Fields: tupleFields(elems)}
}

func Enum(labels ...string) *Type {
	cases := make([]Case, len(labels))
	for i, l := range labels {
		cases[i] = Case{Name: l}
	}
	return &Type{Kind: KindEnum, Cases: cases}
}

func Option(elem *Type) *Type {
	return &Type{Kind: KindOption, Elem: elem}
}

func Result(ok, err *Type) *Type {
	return &Type{Kind: KindResult, OK: ok, Err: err}
}

func Flags(labels ...string) *Type {
	return &Type{Kind: KindFlags, Labels: labels}
}

func Own(id *ResourceID) *Type {
	return &Type{Kind: KindOwn, Resource: id}
}

func Borrow(id *ResourceID) *Type {
	return &Type{Kind: KindBorrow, Resource: id}
}

func Stream(elem *Type) *Type {
	return &Type{Kind: KindStream, Elem: elem}
}

func Future(elem *Type) *Type {
	return &Type{Kind: KindFuture, Elem: elem}
}

func tupleFields(elems []*Type) []Field {
	fields := make([]Field, len(elems))
	for i, e := range elems {
		fields[i] = Field{Name: itoa(i), Type: e}
	}
	return fields
}

// itoa avoids strconv for the small tuple indices that occur in practice.
func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}

func (t *Type) String() string {
	if t == nil {
		return "unit"
	}
	switch t.Kind {
	case KindList:
		return "list<" + t.Elem.String() + ">"
	case KindOption:
		return "option<" + t.Elem.String() + ">"
	case KindStream, KindFuture:
		if t.Elem == nil {
			return t.Kind.String()
		}
		return t.Kind.String() + "<" + t.Elem.String() + ">"
	case KindOwn, KindBorrow:
		name := ""
		if t.Resource != nil {
			name = t.Resource.Name
		}
		return t.Kind.String() + "<" + name + ">"
	case KindRecord, KindTuple:
		var b strings.Builder
		b.WriteString(t.Kind.String())
		b.WriteByte('{')
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(f.Name)
		}
		b.WriteByte('}')
		return b.String()
	default:
		return t.Kind.String()
	}
}

// Despecialize expands sugar descriptors into their fundamental
// record/variant form. It is pure and idempotent on fundamental kinds.
func Despecialize(t *Type) *Type {
	switch t.Kind {
	case KindTuple:
		return &Type{Kind: KindRecord, Fields: t.Fields}
	case KindEnum:
		return &Type{Kind: KindVariant, Cases: t.Cases}
	case KindOption:
		return &Type{Kind: KindVariant, Cases: []Case{
			{Name: "none"},
			{Name: "some", Type: t.Elem},
		}}
	case KindResult:
		return &Type{Kind: KindVariant, Cases: []Case{
			{Name: "ok", Type: t.OK},
			{Name: "error", Type: t.Err},
		}}
	default:
		return t
	}
}
