package codec

import (
	"encoding/binary"
	"fmt"
)

// guestMemory is a fixed-size linear memory for tests.
type guestMemory struct {
	data []byte
}

func newGuestMemory(size uint32) *guestMemory {
	return &guestMemory{data: make([]byte, size)}
}

func (m *guestMemory) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return fmt.Errorf("memory access [%d, %d) out of bounds (size %d)", offset, offset+length, len(m.data))
	}
	return nil
}

func (m *guestMemory) Read(offset, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, m.data[offset:offset+length])
	return out, nil
}

func (m *guestMemory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *guestMemory) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.data[offset], nil
}

func (m *guestMemory) ReadU16(offset uint32) (uint16, error) {
	if err := m.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *guestMemory) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *guestMemory) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *guestMemory) WriteU8(offset uint32, v uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.data[offset] = v
	return nil
}

func (m *guestMemory) WriteU16(offset uint32, v uint16) error {
	if err := m.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[offset:], v)
	return nil
}

func (m *guestMemory) WriteU32(offset uint32, v uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[offset:], v)
	return nil
}

func (m *guestMemory) WriteU64(offset uint32, v uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[offset:], v)
	return nil
}

// bumpAlloc is a bump allocator over a guestMemory. Shrinks happen in
// place; grows move to a fresh region and copy.
type bumpAlloc struct {
	mem  *guestMemory
	next uint32
}

func newBumpAlloc(mem *guestMemory, start uint32) *bumpAlloc {
	return &bumpAlloc{mem: mem, next: start}
}

func (a *bumpAlloc) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	ptr := (a.next + align - 1) &^ (align - 1)
	if uint64(ptr)+uint64(size) > uint64(len(a.mem.data)) {
		return 0, fmt.Errorf("alloc of %d bytes exceeds memory", size)
	}
	a.next = ptr + size
	return ptr, nil
}

func (a *bumpAlloc) Realloc(ptr, oldSize, align, newSize uint32) (uint32, error) {
	if ptr == 0 && oldSize == 0 {
		return a.Alloc(newSize, align)
	}
	if newSize <= oldSize {
		return ptr, nil
	}
	newPtr, err := a.Alloc(newSize, align)
	if err != nil {
		return 0, err
	}
	copy(a.mem.data[newPtr:newPtr+oldSize], a.mem.data[ptr:ptr+oldSize])
	return newPtr, nil
}

func (a *bumpAlloc) Free(ptr, size, align uint32) {}

// newTestContext builds a context over a fresh 64 KiB memory with a bump
// allocator starting past a scratch region.
func newTestContext(enc Encoding) (*Context, *guestMemory) {
	mem := newGuestMemory(1 << 16)
	alloc := newBumpAlloc(mem, 4096)
	cx := NewContext(&Options{Encoding: enc, Memory: mem, Realloc: alloc, Sync: true}, nil)
	return cx, mem
}
