package types

import (
	"go.bytecodealliance.org/wit"

	"github.com/wippyai/canon-abi/errors"
)

// WITConverter translates resolved wit type graphs into engine descriptors.
// Conversion is cached per *wit.TypeDef so shared nodes stay shared, and
// each named resource TypeDef maps to exactly one ResourceID, preserving
// pointer identity across own/borrow references.
type WITConverter struct {
	cache     map[*wit.TypeDef]*Type
	resources map[*wit.TypeDef]*ResourceID
}

func NewWITConverter() *WITConverter {
	return &WITConverter{
		cache:     make(map[*wit.TypeDef]*Type),
		resources: make(map[*wit.TypeDef]*ResourceID),
	}
}

// FromWIT converts a single wit type with a fresh converter. Use a shared
// WITConverter when handle identity must hold across several conversions.
func FromWIT(t wit.Type) (*Type, error) {
	return NewWITConverter().Convert(t)
}

func (c *WITConverter) Convert(t wit.Type) (*Type, error) {
	switch v := t.(type) {
	case wit.Bool:
		return Bool, nil
	case wit.U8:
		return U8, nil
	case wit.S8:
		return S8, nil
	case wit.U16:
		return U16, nil
	case wit.S16:
		return S16, nil
	case wit.U32:
		return U32, nil
	case wit.S32:
		return S32, nil
	case wit.U64:
		return U64, nil
	case wit.S64:
		return S64, nil
	case wit.F32:
		return F32, nil
	case wit.F64:
		return F64, nil
	case wit.Char:
		return Char, nil
	case wit.String:
		return String, nil
	case *wit.TypeDef:
		return c.convertTypeDef(v)
	default:
		return nil, errors.Unsupported(errors.PhaseFlatten, "wit type")
	}
}

func (c *WITConverter) convertTypeDef(td *wit.TypeDef) (*Type, error) {
	if cached, ok := c.cache[td]; ok {
		return cached, nil
	}

	var (
		out *Type
		err error
	)

	switch kind := td.Kind.(type) {
	case *wit.Record:
		fields := make([]Field, len(kind.Fields))
		for i, f := range kind.Fields {
			ft, ferr := c.Convert(f.Type)
			if ferr != nil {
				return nil, ferr
			}
			fields[i] = Field{Name: f.Name, Type: ft}
		}
		out = Record(fields...)

	case *wit.Variant:
		cases := make([]Case, len(kind.Cases))
		for i, vc := range kind.Cases {
			var ct *Type
			if vc.Type != nil {
				ct, err = c.Convert(vc.Type)
				if err != nil {
					return nil, err
				}
			}
			cases[i] = Case{Name: vc.Name, Type: ct}
		}
		out = Variant(cases...)

	case *wit.Enum:
		labels := make([]string, len(kind.Cases))
		for i, ec := range kind.Cases {
			labels[i] = ec.Name
		}
		out = Enum(labels...)

	case *wit.List:
		elem, lerr := c.Convert(kind.Type)
		if lerr != nil {
			return nil, lerr
		}
		out = List(elem)

	case *wit.Option:
		elem, oerr := c.Convert(kind.Type)
		if oerr != nil {
			return nil, oerr
		}
		out = Option(elem)

	case *wit.Result:
		var ok, errT *Type
		if kind.OK != nil {
			ok, err = c.Convert(kind.OK)
			if err != nil {
				return nil, err
			}
		}
		if kind.Err != nil {
			errT, err = c.Convert(kind.Err)
			if err != nil {
				return nil, err
			}
		}
		out = Result(ok, errT)

	case *wit.Tuple:
		elems := make([]*Type, len(kind.Types))
		for i, et := range kind.Types {
			elems[i], err = c.Convert(et)
			if err != nil {
				return nil, err
			}
		}
		out = Tuple(elems...)

	case *wit.Flags:
		labels := make([]string, len(kind.Flags))
		for i, fl := range kind.Flags {
			labels[i] = fl.Name
		}
		out = Flags(labels...)

	case *wit.Own:
		out = Own(c.resourceID(kind.Type))

	case *wit.Borrow:
		out = Borrow(c.resourceID(kind.Type))

	case wit.Type:
		return c.Convert(kind)

	default:
		return nil, errors.Unsupported(errors.PhaseFlatten, "wit typedef kind")
	}

	c.cache[td] = out
	return out, nil
}

func (c *WITConverter) resourceID(td *wit.TypeDef) *ResourceID {
	if td == nil {
		return &ResourceID{}
	}
	if id, ok := c.resources[td]; ok {
		return id
	}
	id := &ResourceID{}
	c.resources[td] = id
	return id
}
