// Package codec converts abstract component-model values to and from their
// Canonical ABI representations: tightly packed linear-memory layouts and
// short flat core-word sequences.
//
// # Abstract Values
//
// Values are dynamically shaped Go values mirroring their descriptor:
//
//	Descriptor      Go shape
//	───────────────────────────────
//	bool            bool
//	u8..s64         uint8..int64
//	f32/f64         float32/float64
//	char            rune
//	string          string or *LiftedString
//	list<T>         []any
//	record          map[string]any
//	variant         Variant{Case, Payload}
//	flags           map[string]bool
//	own/borrow      opaque (via HandleScope)
//	stream/future   opaque (via HandleScope)
//	error-context   opaque (via HandleScope)
//
// Specialized descriptors (tuple, enum, option, result) are despecialized to
// record/variant form before any layout or transfer decision, so their
// values use the fundamental shapes.
//
// # Memory Layout
//
//	Type            Size      Alignment
//	─────────────────────────────────────
//	bool, u8, s8    1         1
//	u16, s16        2         2
//	u32, s32, f32   4         4
//	u64, s64, f64   8         8
//	char            4         4
//	string, list    8 (p+l)   4
//	record          sum       max field align
//	variant         disc+max  max(disc, cases)
//	flags           1/2/4,4n  per bit count
//	handles         4         4
//
// # Flattening
//
// Small signatures travel as core words (i32/i64/f32/f64 per wazero
// api.ValueType). Synchronous calls cap at MaxFlatParams (16) and
// MaxFlatResults (1); asynchronous calls at MaxFlatAsyncParams (1) and
// MaxFlatAsyncResults (0). Beyond a cap the values spill to memory behind a
// single i32 pointer. When two variant cases flatten to different word kinds
// at one position, the slot takes the joined (wider/integer) kind and the
// narrower case is bit-reinterpreted in place.
//
// # Failure Model
//
// Every violation is a trap (*errors.Trap): out-of-bounds or misaligned
// access, out-of-range discriminants, malformed string bytes, invalid chars,
// handle invariant violations. There is no partial-failure mode.
package codec
