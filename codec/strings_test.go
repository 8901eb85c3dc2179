package codec

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/wippyai/canon-abi/errors"
)

// putString writes raw string bytes into memory and returns a context
// whose call site uses enc.
func putString(t *testing.T, enc Encoding, data []byte) (*Context, uint32) {
	t.Helper()
	cx, mem := newTestContext(enc)
	ptr := uint32(64)
	if err := mem.Write(ptr, data); err != nil {
		t.Fatal(err)
	}
	return cx, ptr
}

func utf16Bytes(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 2*len(units))
	for i, u := range units {
		binary.LittleEndian.PutUint16(out[2*i:], u)
	}
	return out
}

func TestLoadStringUTF8(t *testing.T) {
	cx, ptr := putString(t, UTF8, []byte("héllo"))
	s, err := cx.loadString(ptr, 6)
	if err != nil {
		t.Fatalf("loadString: %v", err)
	}
	if s.Value != "héllo" || s.Encoding != UTF8 || s.CodeUnits != 6 {
		t.Fatalf("got %+v", s)
	}
}

func TestLoadStringUTF8Invalid(t *testing.T) {
	cx, ptr := putString(t, UTF8, []byte{0xff, 0xfe})
	_, err := cx.loadString(ptr, 2)
	assertKind(t, err, errors.KindInvalidUTF8)
}

func TestLoadStringUTF16(t *testing.T) {
	data := utf16Bytes("hé\U0001F600")
	cx, ptr := putString(t, UTF16, data)
	s, err := cx.loadString(ptr, uint32(len(data)/2))
	if err != nil {
		t.Fatalf("loadString: %v", err)
	}
	if s.Value != "hé\U0001F600" {
		t.Fatalf("value = %q", s.Value)
	}
	if s.CodeUnits != 4 {
		t.Fatalf("code units = %d, want 4", s.CodeUnits)
	}
}

func TestLoadStringUTF16LoneSurrogate(t *testing.T) {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, 0xD800)
	cx, ptr := putString(t, UTF16, data)
	_, err := cx.loadString(ptr, 1)
	assertKind(t, err, errors.KindInvalidUTF16)
}

func TestLoadStringUTF16Misaligned(t *testing.T) {
	cx, _ := newTestContext(UTF16)
	_, err := cx.loadString(65, 1)
	assertKind(t, err, errors.KindMisaligned)
}

func TestLoadStringLatin1(t *testing.T) {
	cx, ptr := putString(t, Latin1UTF16, []byte{'h', 0xe9})
	s, err := cx.loadString(ptr, 2)
	if err != nil {
		t.Fatalf("loadString: %v", err)
	}
	if s.Value != "hé" {
		t.Fatalf("value = %q, want hé", s.Value)
	}
	if s.Tagged {
		t.Fatal("latin1 load must not be tagged")
	}
}

func TestLoadStringLatin1UTF16Tagged(t *testing.T) {
	data := utf16Bytes("世界")
	cx, ptr := putString(t, Latin1UTF16, data)
	s, err := cx.loadString(ptr, 2|UTF16Tag)
	if err != nil {
		t.Fatalf("loadString: %v", err)
	}
	if s.Value != "世界" || !s.Tagged || s.CodeUnits != 2 {
		t.Fatalf("got %+v", s)
	}
}

func TestStoreStringUTF8ToUTF8(t *testing.T) {
	cx, _ := newTestContext(UTF8)
	ptr, packed, err := cx.storeString("hé", nil)
	if err != nil {
		t.Fatalf("storeString: %v", err)
	}
	if packed != 3 {
		t.Fatalf("packed = %d, want 3 bytes", packed)
	}
	data, err := cx.memory().Read(ptr, packed)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hé" {
		t.Fatalf("bytes = % x", data)
	}
}

func TestStoreStringUTF16ToUTF8Grows(t *testing.T) {
	// 2 UTF-16 units become 6 UTF-8 bytes, overflowing the optimistic
	// one-byte-per-unit allocation
	src := LiftedString{Value: "世界", Encoding: UTF16, CodeUnits: 2}
	cx, _ := newTestContext(UTF8)
	ptr, packed, err := cx.storeString(src, nil)
	if err != nil {
		t.Fatalf("storeString: %v", err)
	}
	if packed != 6 {
		t.Fatalf("packed = %d, want 6", packed)
	}
	data, err := cx.memory().Read(ptr, packed)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "世界" {
		t.Fatalf("bytes = % x", data)
	}
}

func TestStoreStringUTF8ToUTF16Shrinks(t *testing.T) {
	// ASCII input: the two-bytes-per-byte worst case halves on shrink
	src := LiftedString{Value: "hello", Encoding: UTF8, CodeUnits: 5}
	cx, _ := newTestContext(UTF16)
	ptr, packed, err := cx.storeString(src, nil)
	if err != nil {
		t.Fatalf("storeString: %v", err)
	}
	if packed != 5 {
		t.Fatalf("packed = %d, want 5 units", packed)
	}
	data, err := cx.memory().Read(ptr, 2*packed)
	if err != nil {
		t.Fatal(err)
	}
	want := utf16Bytes("hello")
	if string(data) != string(want) {
		t.Fatalf("bytes = % x, want % x", data, want)
	}
}

func TestStoreStringToLatin1Compact(t *testing.T) {
	// all code points fit a byte: stays latin1, untagged
	cx, _ := newTestContext(Latin1UTF16)
	ptr, packed, err := cx.storeString("hé", nil)
	if err != nil {
		t.Fatalf("storeString: %v", err)
	}
	if packed&UTF16Tag != 0 {
		t.Fatal("latin1 output must be untagged")
	}
	if packed != 2 {
		t.Fatalf("packed = %d, want 2", packed)
	}
	data, err := cx.memory().Read(ptr, packed)
	if err != nil {
		t.Fatal(err)
	}
	if data[0] != 'h' || data[1] != 0xe9 {
		t.Fatalf("bytes = % x", data)
	}
}

func TestStoreStringToLatin1FallsBackToUTF16(t *testing.T) {
	cx, _ := newTestContext(Latin1UTF16)
	ptr, packed, err := cx.storeString("h世", nil)
	if err != nil {
		t.Fatalf("storeString: %v", err)
	}
	if packed&UTF16Tag == 0 {
		t.Fatal("expected UTF-16 tag after widening")
	}
	units := packed &^ UTF16Tag
	if units != 2 {
		t.Fatalf("units = %d, want 2", units)
	}
	data, err := cx.memory().Read(ptr, 2*units)
	if err != nil {
		t.Fatal(err)
	}
	want := utf16Bytes("h世")
	if string(data) != string(want) {
		t.Fatalf("bytes = % x, want % x", data, want)
	}
}

func TestStoreProbablyUTF16Compacts(t *testing.T) {
	// a tagged source whose code points all fit latin1 compacts in place
	src := LiftedString{Value: "abc", Encoding: Latin1UTF16, Tagged: true, CodeUnits: 3}
	cx, _ := newTestContext(Latin1UTF16)
	ptr, packed, err := cx.storeString(src, nil)
	if err != nil {
		t.Fatalf("storeString: %v", err)
	}
	if packed != 3 {
		t.Fatalf("packed = %d, want 3 untagged", packed)
	}
	data, err := cx.memory().Read(ptr, packed)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "abc" {
		t.Fatalf("bytes = %q", data)
	}
}

func TestStoreProbablyUTF16StaysWide(t *testing.T) {
	src := LiftedString{Value: "世界", Encoding: Latin1UTF16, Tagged: true, CodeUnits: 2}
	cx, _ := newTestContext(Latin1UTF16)
	_, packed, err := cx.storeString(src, nil)
	if err != nil {
		t.Fatalf("storeString: %v", err)
	}
	if packed&UTF16Tag == 0 {
		t.Fatal("expected tagged result")
	}
	if packed&^UTF16Tag != 2 {
		t.Fatalf("units = %d, want 2", packed&^UTF16Tag)
	}
}

func TestStringCrossEncodingRoundTrip(t *testing.T) {
	// lift from a UTF-16 guest, lower into a UTF-8 guest, lift again
	data := utf16Bytes("hé \U0001F600")
	srcCx, ptr := putString(t, UTF16, data)
	s, err := srcCx.loadString(ptr, uint32(len(data)/2))
	if err != nil {
		t.Fatalf("lift: %v", err)
	}

	dstCx, _ := newTestContext(UTF8)
	outPtr, outPacked, err := dstCx.storeString(s, nil)
	if err != nil {
		t.Fatalf("lower: %v", err)
	}
	back, err := dstCx.loadString(outPtr, outPacked)
	if err != nil {
		t.Fatalf("relift: %v", err)
	}
	if back.Value != s.Value {
		t.Fatalf("round trip %q -> %q", s.Value, back.Value)
	}
}
