package canonabi

import (
	"encoding/binary"
	"fmt"
)

// ByteMemory is a host-backed linear memory: a fixed-size byte slice with
// bounds-checked little-endian accessors. Embedders without a live wasm
// module use it to host one side of a call; tests use it as a stand-in
// guest.
type ByteMemory struct {
	data []byte
}

func NewByteMemory(size uint32) *ByteMemory {
	return &ByteMemory{data: make([]byte, size)}
}

var _ Memory = (*ByteMemory)(nil)
var _ MemorySizer = (*ByteMemory)(nil)

func (m *ByteMemory) Size() uint32 { return uint32(len(m.data)) }

// Bytes exposes the backing slice for direct inspection.
func (m *ByteMemory) Bytes() []byte { return m.data }

func (m *ByteMemory) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.data)) {
		return fmt.Errorf("memory access [%d, %d) out of bounds (size %d)", offset, offset+length, len(m.data))
	}
	return nil
}

func (m *ByteMemory) Read(offset, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	return m.data[offset : offset+length], nil
}

func (m *ByteMemory) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.data[offset:], data)
	return nil
}

func (m *ByteMemory) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.data[offset], nil
}

func (m *ByteMemory) ReadU16(offset uint32) (uint16, error) {
	if err := m.check(offset, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[offset:]), nil
}

func (m *ByteMemory) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[offset:]), nil
}

func (m *ByteMemory) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[offset:]), nil
}

func (m *ByteMemory) WriteU8(offset uint32, value uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.data[offset] = value
	return nil
}

func (m *ByteMemory) WriteU16(offset uint32, value uint16) error {
	if err := m.check(offset, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[offset:], value)
	return nil
}

func (m *ByteMemory) WriteU32(offset uint32, value uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[offset:], value)
	return nil
}

func (m *ByteMemory) WriteU64(offset uint32, value uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[offset:], value)
	return nil
}

// BumpAllocator carves allocations out of a ByteMemory from a watermark
// that only moves forward. Realloc grows by copying; shrinking and
// freeing reuse nothing. It mirrors the allocation pattern of a guest
// cabi_realloc for hosts that have no guest.
type BumpAllocator struct {
	mem  *ByteMemory
	next uint32
}

func NewBumpAllocator(mem *ByteMemory, base uint32) *BumpAllocator {
	return &BumpAllocator{mem: mem, next: base}
}

var _ Allocator = (*BumpAllocator)(nil)

func (a *BumpAllocator) Alloc(size, align uint32) (uint32, error) {
	if align == 0 {
		align = 1
	}
	ptr := (a.next + align - 1) &^ (align - 1)
	if uint64(ptr)+uint64(size) > uint64(a.mem.Size()) {
		return 0, fmt.Errorf("out of memory: need %d bytes at %d (size %d)", size, ptr, a.mem.Size())
	}
	a.next = ptr + size
	return ptr, nil
}

func (a *BumpAllocator) Realloc(ptr, oldSize, align, newSize uint32) (uint32, error) {
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

func (a *BumpAllocator) Free(ptr, size, align uint32) {}
