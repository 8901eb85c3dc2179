package engine

import (
	"encoding/binary"
	"testing"

	canonabi "github.com/wippyai/canon-abi"
	"github.com/wippyai/canon-abi/codec"
	"github.com/wippyai/canon-abi/errors"
)

// side is one component instance with its own linear memory and
// allocator, standing in for a live guest.
type side struct {
	inst  *Instance
	mem   *canonabi.ByteMemory
	alloc *canonabi.BumpAllocator
	opts  *codec.Options
}

func newSide(e *Engine, name string, sync bool) *side {
	mem := canonabi.NewByteMemory(1 << 16)
	alloc := canonabi.NewBumpAllocator(mem, 4096)
	return &side{
		inst:  e.NewInstance(name),
		mem:   mem,
		alloc: alloc,
		opts: &codec.Options{
			Encoding: codec.UTF8,
			Memory:   mem,
			Realloc:  alloc,
			Sync:     sync,
		},
	}
}

// putString writes UTF-8 bytes into the side's memory and returns ptr/len.
func (s *side) putString(t *testing.T, v string) (uint32, uint32) {
	t.Helper()
	ptr, err := s.alloc.Alloc(uint32(len(v)), 1)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if err := s.mem.Write(ptr, []byte(v)); err != nil {
		t.Fatalf("write: %v", err)
	}
	return ptr, uint32(len(v))
}

func (s *side) readString(t *testing.T, ptr, length uint32) string {
	t.Helper()
	data, err := s.mem.Read(ptr, length)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(data)
}

func (s *side) u32At(t *testing.T, offset uint32) uint32 {
	t.Helper()
	v, err := s.mem.ReadU32(offset)
	if err != nil {
		t.Fatalf("read u32: %v", err)
	}
	return v
}

// storeGuestString emulates a guest building a string result: the bytes
// and a (ptr, len) tuple both allocated through the side's reallocator.
func (s *side) storeGuestString(t *testing.T, v string) uint32 {
	t.Helper()
	ptr, length := s.putString(t, v)
	tuple, err := s.alloc.Alloc(8, 4)
	if err != nil {
		t.Fatalf("alloc tuple: %v", err)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:], ptr)
	binary.LittleEndian.PutUint32(buf[4:], length)
	if err := s.mem.Write(tuple, buf[:]); err != nil {
		t.Fatalf("write tuple: %v", err)
	}
	return tuple
}

func assertTrapKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatal("expected trap, got nil")
	}
	trap, ok := err.(*errors.Trap)
	if !ok {
		t.Fatalf("expected *errors.Trap, got %T: %v", err, err)
	}
	if trap.Kind != kind {
		t.Fatalf("trap kind = %s, want %s", trap.Kind, kind)
	}
}
