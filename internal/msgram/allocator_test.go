package msgram

import (
	"errors"
	"testing"
	"unsafe"
)

type threeWords struct{ a, b, c uint32 }

type wide struct {
	a uint64
	b uint32
	c uint32
}

func filledRegion(words int) ([]uint32, Region) {
	mem := make([]uint32, words)
	for i := range mem {
		mem[i] = 0xFFFF_FFFF
	}
	return mem, HostRegion(mem)
}

type extent struct{ start, end uintptr }

func TestTakeAlignedDisjointZeroed(t *testing.T) {
	mem, r := filledRegion(256)
	a := NewAllocator(r)

	var got []extent
	b1 := MustTake[threeWords](a, 3)
	got = append(got, extent{b1.Offset(), b1.Offset() + uintptr(b1.Len())*b1.ElementSize()})
	b2 := MustTake[wide](a, 2)
	got = append(got, extent{b2.Offset(), b2.Offset() + uintptr(b2.Len())*b2.ElementSize()})
	b3 := MustTake[uint32](a, 5)
	got = append(got, extent{b3.Offset(), b3.Offset() + uintptr(b3.Len())*b3.ElementSize()})

	if (r.Addr()+b2.Offset())%unsafe.Alignof(wide{}) != 0 {
		t.Fatalf("wide buffer misaligned at offset %d", b2.Offset())
	}
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			if got[i].start < got[j].end && got[j].start < got[i].end {
				t.Fatalf("buffers %d and %d overlap: %v %v", i, j, got[i], got[j])
			}
		}
	}
	if a.Used() != got[2].end {
		t.Fatalf("used=%d want %d", a.Used(), got[2].end)
	}
	for _, e := range got {
		for off := e.start; off < e.end; off += 4 {
			if mem[off/4] != 0 {
				t.Fatalf("word at offset %d not zeroed", off)
			}
		}
	}
	// untouched memory past the last allocation keeps its contents
	if mem[a.Used()/4] != 0xFFFF_FFFF {
		t.Fatalf("memory past allocation was modified")
	}
}

func TestTakeOutOfMemoryLeavesStateUnchanged(t *testing.T) {
	_, r := filledRegion(16) // 64 bytes
	a := NewAllocator(r)
	if _, err := Take[threeWords](a, 4); err != nil { // 48 bytes
		t.Fatalf("first take: %v", err)
	}
	before := a.Used()
	if _, err := Take[threeWords](a, 2); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}
	if a.Used() != before {
		t.Fatalf("failed take moved free offset %d -> %d", before, a.Used())
	}
	if _, err := Take[uint32](a, 4); err != nil {
		t.Fatalf("exact fit should succeed: %v", err)
	}
	if a.Remaining() != 0 {
		t.Fatalf("remaining=%d", a.Remaining())
	}
}

func TestPlanOverflow(t *testing.T) {
	max := ^uintptr(0)
	cases := []struct {
		name                            string
		addr, free, limit, align, bytes uintptr
	}{
		{"address wraps", max - 3, 8, 64, 4, 4},
		{"padding plus size wraps", 4, 0, max, 8, max},
		{"exceeds region", 0, 60, 64, 4, 8},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, _, err := plan(c.addr, c.free, c.limit, c.align, c.bytes); !errors.Is(err, ErrOutOfMemory) {
				t.Fatalf("expected ErrOutOfMemory, got %v", err)
			}
		})
	}
	off, next, err := plan(0x1004, 0, 64, 8, 16)
	if err != nil || off != 4 || next != 20 {
		t.Fatalf("plan padding: off=%d next=%d err=%v", off, next, err)
	}
}

func TestTakeCountLimit(t *testing.T) {
	_, r := filledRegion(1024)
	a := NewAllocator(r)
	if _, err := Take[uint32](a, MaxElements); err != nil {
		t.Fatalf("max elements: %v", err)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for count above limit")
		}
	}()
	_, _ = Take[uint32](a, MaxElements+1)
}

func TestMustTakePanicsOnExhaustion(t *testing.T) {
	_, r := filledRegion(2)
	a := NewAllocator(r)
	defer func() {
		err, ok := recover().(error)
		if !ok || !errors.Is(err, ErrOutOfMemory) {
			t.Fatalf("expected ErrOutOfMemory panic, got %v", err)
		}
	}()
	MustTake[threeWords](a, 1)
}

func TestBufferLoadStore(t *testing.T) {
	mem, r := filledRegion(32)
	a := NewAllocator(r)
	b := MustTake[threeWords](a, 2)
	b.Store(1, threeWords{1, 2, 3})
	if got := b.Load(1); got != (threeWords{1, 2, 3}) {
		t.Fatalf("Load(1) = %+v", got)
	}
	if got := b.Load(0); got != (threeWords{}) {
		t.Fatalf("Load(0) = %+v", got)
	}
	base := b.Offset() / 4
	if mem[base+3] != 1 || mem[base+5] != 3 {
		t.Fatalf("raw memory %v", mem[base:base+6])
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected index panic")
		}
	}()
	b.Load(2)
}

func TestBufferClaimOnce(t *testing.T) {
	_, r := filledRegion(8)
	b := MustTake[uint32](NewAllocator(r), 1)
	if err := b.Claim(); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := b.Claim(); !errors.Is(err, ErrBufferClaimed) {
		t.Fatalf("second claim: %v", err)
	}
}
