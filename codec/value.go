package codec

// Variant is the abstract value of a variant (and, after despecialization,
// of enum/option/result) descriptors. Payload is nil for unit cases.
type Variant struct {
	Case    string
	Payload any
}

// Some wraps v as the despecialized option "some" case.
func Some(v any) Variant {
	return Variant{Case: "some", Payload: v}
}

// None is the despecialized option "none" case.
var None = Variant{Case: "none"}

// OK wraps v as the despecialized result "ok" case.
func OK(v any) Variant {
	return Variant{Case: "ok", Payload: v}
}

// Err wraps v as the despecialized result "error" case.
func Err(v any) Variant {
	return Variant{Case: "error", Payload: v}
}
