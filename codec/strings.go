package codec

import (
	"encoding/binary"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/wippyai/canon-abi/codec/internal/abi"
	"github.com/wippyai/canon-abi/errors"
)

// UTF16Tag marks the packed code-unit count of a latin1+utf16 string as
// UTF-16. The low 31 bits carry the unit count.
const UTF16Tag uint32 = 1 << 31

// LiftedString is a string value that remembers how the source guest
// encoded it. Keeping the source shape lets a later store pick the
// canonical transcoding path for the (source, destination) encoding pair,
// so re-lowering is byte-identical to what a measure-then-copy transcoder
// would produce.
type LiftedString struct {
	Value     string
	Encoding  Encoding // call-site encoding of the lifting side
	Tagged    bool     // UTF16Tag was set (latin1+utf16 sources only)
	CodeUnits uint32   // source code-unit count, untagged
}

func (s LiftedString) String() string { return s.Value }

// simpleEncoding collapses the call-site encoding to the concrete layout
// the bytes actually had.
func (s LiftedString) simpleEncoding() Encoding {
	if s.Encoding == Latin1UTF16 {
		if s.Tagged {
			return UTF16
		}
		return Latin1
	}
	return s.Encoding
}

// Latin1 is only ever a simple (resolved) encoding, never a call-site one.
const Latin1 Encoding = 0xff

// loadString decodes a guest string given its pointer and packed code-unit
// count, per the call-site encoding.
func (cx *Context) loadString(ptr, packed uint32) (LiftedString, error) {
	switch cx.Opts.Encoding {
	case UTF8:
		if packed > abi.MaxStringSize {
			return LiftedString{}, errors.Overflow(errors.PhaseLoad, "string byte length %d exceeds limit", packed)
		}
		data, err := cx.readBytes(ptr, packed, 1)
		if err != nil {
			return LiftedString{}, err
		}
		if !utf8.Valid(data) {
			return LiftedString{}, errors.InvalidUTF8(errors.PhaseLoad, data)
		}
		return LiftedString{Value: string(data), Encoding: UTF8, CodeUnits: packed}, nil

	case UTF16:
		return cx.loadUTF16(ptr, packed, UTF16, false)

	case Latin1UTF16:
		if packed&UTF16Tag != 0 {
			return cx.loadUTF16(ptr, packed&^UTF16Tag, Latin1UTF16, true)
		}
		if packed > abi.MaxStringSize {
			return LiftedString{}, errors.Overflow(errors.PhaseLoad, "string byte length %d exceeds limit", packed)
		}
		data, err := cx.readBytes(ptr, packed, 2)
		if err != nil {
			return LiftedString{}, err
		}
		runes := make([]rune, len(data))
		for i, b := range data {
			runes[i] = charmap.ISO8859_1.DecodeByte(b)
		}
		return LiftedString{Value: string(runes), Encoding: Latin1UTF16, CodeUnits: packed}, nil
	}
	return LiftedString{}, errors.Unsupported(errors.PhaseLoad, "string encoding "+cx.Opts.Encoding.String())
}

func (cx *Context) loadUTF16(ptr, units uint32, enc Encoding, tagged bool) (LiftedString, error) {
	byteLen, ok := abi.SafeMulU32(units, 2)
	if !ok || byteLen > abi.MaxStringSize {
		return LiftedString{}, errors.Overflow(errors.PhaseLoad, "string byte length exceeds limit")
	}
	data, err := cx.readBytes(ptr, byteLen, 2)
	if err != nil {
		return LiftedString{}, err
	}
	s, err := decodeUTF16LE(data)
	if err != nil {
		return LiftedString{}, err
	}
	return LiftedString{Value: s, Encoding: enc, Tagged: tagged, CodeUnits: units}, nil
}

func (cx *Context) readBytes(ptr, length, align uint32) ([]byte, error) {
	if ptr%align != 0 {
		return nil, errors.Misaligned(errors.PhaseLoad, ptr, align)
	}
	data, err := cx.memory().Read(ptr, length)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindOutOfBounds, err, "string bytes at %d", ptr)
	}
	return data, nil
}

// decodeUTF16LE rejects unpaired surrogates.
func decodeUTF16LE(data []byte) (string, error) {
	units := make([]uint16, len(data)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(data[2*i:])
	}
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u >= 0xD800 && u <= 0xDBFF:
			if i+1 >= len(units) || units[i+1] < 0xDC00 || units[i+1] > 0xDFFF {
				return "", errors.New(errors.PhaseLoad, errors.KindInvalidUTF16).
					Detail("unpaired high surrogate 0x%04x at unit %d", u, i).Build()
			}
			i++
		case u >= 0xDC00 && u <= 0xDFFF:
			return "", errors.New(errors.PhaseLoad, errors.KindInvalidUTF16).
				Detail("unpaired low surrogate 0x%04x at unit %d", u, i).Build()
		}
	}
	return string(utf16.Decode(units)), nil
}

func encodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:], u)
	}
	return out
}

// asLifted normalizes a string value: plain Go strings count as UTF-8
// sources.
func asLifted(phase errors.Phase, path []string, v any) (LiftedString, error) {
	switch x := v.(type) {
	case LiftedString:
		return x, nil
	case string:
		return LiftedString{Value: x, Encoding: UTF8, CodeUnits: uint32(len(x))}, nil
	default:
		return LiftedString{}, errors.TypeMismatch(phase, path, "string", v)
	}
}

// storeString encodes a string into fresh guest memory and returns the
// pointer and packed code-unit count. The transcoding path depends on the
// (source, destination) encoding pair; paths that cannot size the output
// up front allocate optimistically and resize through the guest
// reallocator, so the final pointer and bytes match a measure-then-copy
// transcoder exactly.
func (cx *Context) storeString(v any, path []string) (ptr, packed uint32, err error) {
	s, err := asLifted(errors.PhaseStore, path, v)
	if err != nil {
		return 0, 0, err
	}
	src := s.simpleEncoding()

	switch cx.Opts.Encoding {
	case UTF8:
		switch src {
		case UTF8:
			ptr, err = cx.storeRaw([]byte(s.Value), 1)
			return ptr, uint32(len(s.Value)), err
		case UTF16:
			return cx.storeToUTF8(s.Value, s.CodeUnits, 3*s.CodeUnits)
		default: // Latin1
			return cx.storeToUTF8(s.Value, s.CodeUnits, 2*s.CodeUnits)
		}

	case UTF16:
		switch src {
		case UTF8:
			return cx.storeUTF8ToUTF16(s.Value, s.CodeUnits)
		default: // UTF16 or Latin1: unit counts carry over one to one
			encoded := encodeUTF16LE(s.Value)
			ptr, err = cx.storeRaw(encoded, 2)
			return ptr, uint32(len(encoded) / 2), err
		}

	case Latin1UTF16:
		switch s.Encoding {
		case Latin1UTF16:
			if s.Tagged {
				return cx.storeProbablyUTF16(s.Value, s.CodeUnits)
			}
			// latin1 to latin1 copies byte for byte
			encoded := make([]byte, 0, len(s.Value))
			for _, r := range s.Value {
				b, ok := charmap.ISO8859_1.EncodeRune(r)
				if !ok {
					return 0, 0, errors.New(errors.PhaseStore, errors.KindInvalidLatin1).
						Detail("code point %U not representable in latin1", r).Build()
				}
				encoded = append(encoded, b)
			}
			ptr, err = cx.storeRaw(encoded, 2)
			return ptr, uint32(len(encoded)), err
		default:
			return cx.storeToLatin1OrUTF16(s.Value, s.CodeUnits)
		}
	}
	return 0, 0, errors.Unsupported(errors.PhaseStore, "string encoding "+cx.Opts.Encoding.String())
}

// storeRaw allocates exactly len(data) bytes and writes them.
func (cx *Context) storeRaw(data []byte, align uint32) (uint32, error) {
	if uint64(len(data)) > abi.MaxStringSize {
		return 0, errors.Overflow(errors.PhaseStore, "string byte length %d exceeds limit", len(data))
	}
	ptr, err := cx.alloc(uint32(len(data)), align)
	if err != nil {
		return 0, err
	}
	if len(data) > 0 {
		if err := cx.memory().Write(ptr, data); err != nil {
			return 0, wrapStore(err, ptr)
		}
	}
	return ptr, nil
}

// storeToUTF8 writes the UTF-8 bytes of s with an optimistic allocation of
// srcUnits bytes: grow to worstCase when the encoding overflows, shrink to
// the exact length afterwards.
func (cx *Context) storeToUTF8(s string, srcUnits, worstCase uint32) (ptr, packed uint32, err error) {
	encoded := []byte(s)
	if uint64(len(encoded)) > abi.MaxStringSize {
		return 0, 0, errors.Overflow(errors.PhaseStore, "string byte length %d exceeds limit", len(encoded))
	}
	ptr, err = cx.alloc(srcUnits, 1)
	if err != nil {
		return 0, 0, err
	}
	first := uint32(len(encoded))
	if first > srcUnits {
		first = srcUnits
	}
	if first > 0 {
		if err := cx.memory().Write(ptr, encoded[:first]); err != nil {
			return 0, 0, wrapStore(err, ptr)
		}
	}
	if uint32(len(encoded)) > srcUnits {
		if worstCase > abi.MaxStringSize {
			return 0, 0, errors.Overflow(errors.PhaseStore, "string worst case %d exceeds limit", worstCase)
		}
		ptr, err = cx.realloc(ptr, srcUnits, 1, worstCase)
		if err != nil {
			return 0, 0, err
		}
		if err := cx.memory().Write(ptr+srcUnits, encoded[srcUnits:]); err != nil {
			return 0, 0, wrapStore(err, ptr+srcUnits)
		}
		if worstCase > uint32(len(encoded)) {
			ptr, err = cx.realloc(ptr, worstCase, 1, uint32(len(encoded)))
			if err != nil {
				return 0, 0, err
			}
		}
	}
	return ptr, uint32(len(encoded)), nil
}

// storeUTF8ToUTF16 allocates the two-bytes-per-unit worst case up front
// and shrinks once the exact length is known.
func (cx *Context) storeUTF8ToUTF16(s string, srcUnits uint32) (ptr, packed uint32, err error) {
	worstCase, ok := abi.SafeMulU32(srcUnits, 2)
	if !ok || worstCase > abi.MaxStringSize {
		return 0, 0, errors.Overflow(errors.PhaseStore, "string worst case exceeds limit")
	}
	ptr, err = cx.alloc(worstCase, 2)
	if err != nil {
		return 0, 0, err
	}
	encoded := encodeUTF16LE(s)
	if len(encoded) > 0 {
		if err := cx.memory().Write(ptr, encoded); err != nil {
			return 0, 0, wrapStore(err, ptr)
		}
	}
	if uint32(len(encoded)) < worstCase {
		ptr, err = cx.realloc(ptr, worstCase, 2, uint32(len(encoded)))
		if err != nil {
			return 0, 0, err
		}
	}
	return ptr, uint32(len(encoded) / 2), nil
}

// storeToLatin1OrUTF16 tries latin1 first: it writes bytes until it meets
// a code point above 0xFF, then widens the allocation to UTF-16 and
// rewrites. The untagged return means latin1; UTF16Tag marks the UTF-16
// fallback.
func (cx *Context) storeToLatin1OrUTF16(s string, srcUnits uint32) (ptr, packed uint32, err error) {
	if srcUnits > abi.MaxStringSize {
		return 0, 0, errors.Overflow(errors.PhaseStore, "string byte length %d exceeds limit", srcUnits)
	}
	ptr, err = cx.alloc(srcUnits, 2)
	if err != nil {
		return 0, 0, err
	}
	mem := cx.memory()
	written := uint32(0)
	for _, r := range s {
		if b, ok := charmap.ISO8859_1.EncodeRune(r); ok {
			if err := mem.WriteU8(ptr+written, b); err != nil {
				return 0, 0, wrapStore(err, ptr+written)
			}
			written++
			continue
		}
		// widen to UTF-16
		worstCase, ok := abi.SafeMulU32(srcUnits, 2)
		if !ok || worstCase > abi.MaxStringSize {
			return 0, 0, errors.Overflow(errors.PhaseStore, "string worst case exceeds limit")
		}
		ptr, err = cx.realloc(ptr, srcUnits, 2, worstCase)
		if err != nil {
			return 0, 0, err
		}
		encoded := encodeUTF16LE(s)
		if err := mem.Write(ptr, encoded); err != nil {
			return 0, 0, wrapStore(err, ptr)
		}
		if worstCase > uint32(len(encoded)) {
			ptr, err = cx.realloc(ptr, worstCase, 2, uint32(len(encoded)))
			if err != nil {
				return 0, 0, err
			}
		}
		return ptr, uint32(len(encoded)/2) | UTF16Tag, nil
	}
	if written < srcUnits {
		ptr, err = cx.realloc(ptr, srcUnits, 2, written)
		if err != nil {
			return 0, 0, err
		}
	}
	return ptr, written, nil
}

// storeProbablyUTF16 starts from the UTF-16 layout the tagged source had
// and compacts to latin1 in place when every code point fits a byte.
func (cx *Context) storeProbablyUTF16(s string, srcUnits uint32) (ptr, packed uint32, err error) {
	byteLen, ok := abi.SafeMulU32(srcUnits, 2)
	if !ok || byteLen > abi.MaxStringSize {
		return 0, 0, errors.Overflow(errors.PhaseStore, "string byte length exceeds limit")
	}
	ptr, err = cx.alloc(byteLen, 2)
	if err != nil {
		return 0, 0, err
	}
	mem := cx.memory()
	encoded := encodeUTF16LE(s)
	if len(encoded) > 0 {
		if err := mem.Write(ptr, encoded); err != nil {
			return 0, 0, wrapStore(err, ptr)
		}
	}
	for _, r := range s {
		if r >= 0x100 {
			return ptr, uint32(len(encoded)/2) | UTF16Tag, nil
		}
	}
	latin1Len := uint32(len(encoded) / 2)
	for i := uint32(0); i < latin1Len; i++ {
		if err := mem.WriteU8(ptr+i, encoded[2*i]); err != nil {
			return 0, 0, wrapStore(err, ptr+i)
		}
	}
	ptr, err = cx.realloc(ptr, byteLen, 2, latin1Len)
	if err != nil {
		return 0, 0, err
	}
	return ptr, latin1Len, nil
}

func (cx *Context) realloc(ptr, oldSize, align, newSize uint32) (uint32, error) {
	if cx.Opts.Realloc == nil {
		return 0, errors.AllocationFailed(errors.PhaseStore, newSize, align, nil)
	}
	newPtr, err := cx.Opts.Realloc.Realloc(ptr, oldSize, align, newSize)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseStore, newSize, align, err)
	}
	if newPtr%align != 0 {
		return 0, errors.Misaligned(errors.PhaseStore, newPtr, align)
	}
	return newPtr, nil
}
