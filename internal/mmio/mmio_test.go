package mmio

import (
	"testing"
	"unsafe"
)

func TestRegister32Bits(t *testing.T) {
	var r Register32
	r.Set(0x0000_00F0)
	r.SetBits(0x1)
	if got := r.Get(); got != 0xF1 {
		t.Fatalf("SetBits: got 0x%X", got)
	}
	r.ClearBits(0x10)
	if got := r.Get(); got != 0xE1 {
		t.Fatalf("ClearBits: got 0x%X", got)
	}
	if !r.HasBits(0x80) || r.HasBits(0x10) {
		t.Fatalf("HasBits mismatch for 0x%X", r.Get())
	}
	r.ReplaceBits(0x5, 0x7, 8)
	if got := r.Get(); got != 0x5E1 {
		t.Fatalf("ReplaceBits: got 0x%X", got)
	}
	// value wider than mask is truncated
	r.ReplaceBits(0xF, 0x7, 8)
	if got := r.Get(); got != 0x7E1 {
		t.Fatalf("ReplaceBits truncate: got 0x%X", got)
	}
}

func TestFieldHelpers(t *testing.T) {
	w := uint32(0)
	w = SetField(w, 16, 4, uint8(0xA))
	w = SetField(w, 0, 16, uint16(0xBEEF))
	w = SetBit(w, 31, true)
	if w != 0x800A_BEEF {
		t.Fatalf("composed word 0x%08X", w)
	}
	if got := Field[uint8](w, 16, 4); got != 0xA {
		t.Fatalf("Field dlc = %d", got)
	}
	if got := Field[uint16](w, 0, 16); got != 0xBEEF {
		t.Fatalf("Field ts = 0x%X", got)
	}
	if !Bit(w, 31) || Bit(w, 30) {
		t.Fatalf("Bit mismatch")
	}
	if got := Field[uint32](0xFFFF_FFFF, 0, 32); got != 0xFFFF_FFFF {
		t.Fatalf("full width field = 0x%X", got)
	}
	// overflow bits of v are dropped
	if got := SetField(0, 4, 2, uint8(0xFF)); got != 0x30 {
		t.Fatalf("SetField overflow = 0x%X", got)
	}
	if got := SetBit(0xFF, 0, false); got != 0xFE {
		t.Fatalf("SetBit clear = 0x%X", got)
	}
}

func TestWordCopies(t *testing.T) {
	shared := make([]uint32, 4)
	src := [3]uint32{1, 2, 3}
	StoreWords(unsafe.Pointer(&shared[1]), unsafe.Pointer(&src), 3)
	if shared[0] != 0 || shared[1] != 1 || shared[3] != 3 {
		t.Fatalf("StoreWords wrote %v", shared)
	}
	var dst [3]uint32
	LoadWords(unsafe.Pointer(&dst), unsafe.Pointer(&shared[1]), 3)
	if dst != src {
		t.Fatalf("LoadWords got %v", dst)
	}
	ZeroWords(unsafe.Pointer(&shared[0]), 4)
	for i, v := range shared {
		if v != 0 {
			t.Fatalf("word %d not zeroed: %d", i, v)
		}
	}
}

type guard struct{ calls []string }

func (g *guard) ClearEndinit() { g.calls = append(g.calls, "clear") }
func (g *guard) SetEndinit()   { g.calls = append(g.calls, "set") }

func TestWithoutEndinit(t *testing.T) {
	g := &guard{}
	WithoutEndinit(g, func() { g.calls = append(g.calls, "body") })
	if len(g.calls) != 3 || g.calls[0] != "clear" || g.calls[1] != "body" || g.calls[2] != "set" {
		t.Fatalf("unexpected order %v", g.calls)
	}
	ran := false
	WithoutEndinit(nil, func() { ran = true })
	if !ran {
		t.Fatalf("nil guard did not run body")
	}
}
