// Package msgram partitions the CAN controller's message RAM into typed,
// aligned buffers shared between the CPU and the controller.
//
// Allocation is a monotonic bump over a single region: buffers are carved out
// once during bring-up and never released.
package msgram

import (
	"errors"
	"fmt"
	"math/bits"
	"unsafe"

	"github.com/kstaniek/go-mcmcan/internal/mmio"
)

var (
	ErrOutOfMemory   = errors.New("msgram: out of memory")
	ErrBufferClaimed = errors.New("msgram: buffer already handed off")
)

// MaxElements is the largest element count a single buffer may hold.
const MaxElements = 32

// Region is a contiguous window of message RAM.
type Region struct {
	base unsafe.Pointer
	addr uintptr
	size uintptr
}

// NewRegion describes the hardware window of size bytes at physical address addr.
func NewRegion(addr, size uintptr) Region {
	return Region{base: unsafe.Pointer(addr), addr: addr, size: size}
}

// HostRegion backs a region with ordinary memory, as used by the simulator.
func HostRegion(words []uint32) Region {
	if len(words) == 0 {
		return Region{}
	}
	p := unsafe.Pointer(&words[0])
	return Region{base: p, addr: uintptr(p), size: uintptr(len(words)) * mmio.WordSize}
}

// Size returns the region size in bytes.
func (r Region) Size() uintptr { return r.size }

// Addr returns the physical start address.
func (r Region) Addr() uintptr { return r.addr }

// Allocator hands out buffers from a Region. It is the region's only owner.
type Allocator struct {
	region Region
	free   uintptr
}

// NewAllocator creates an allocator over the whole of r.
func NewAllocator(r Region) *Allocator { return &Allocator{region: r} }

// Used returns the number of bytes consumed, padding included.
func (a *Allocator) Used() uintptr { return a.free }

// Remaining returns the number of bytes not yet handed out.
func (a *Allocator) Remaining() uintptr { return a.region.size - a.free }

// Size returns the managed region size.
func (a *Allocator) Size() uintptr { return a.region.size }

func (a *Allocator) String() string {
	return fmt.Sprintf("msgram %d/%d bytes used", a.free, a.region.size)
}

// Take reserves n zeroed elements of T, aligned to T's alignment.
//
// It panics if n exceeds MaxElements or if T is not a whole number of words,
// both being configuration bugs. Exhaustion returns ErrOutOfMemory and leaves
// the allocator untouched.
func Take[T any](a *Allocator, n int) (*Buffer[T], error) {
	if n < 0 || n > MaxElements {
		panic(fmt.Sprintf("msgram: element count %d outside 0..%d", n, MaxElements))
	}
	var zero T
	size, align := unsafe.Sizeof(zero), unsafe.Alignof(zero)
	if size == 0 || size%mmio.WordSize != 0 {
		panic(fmt.Sprintf("msgram: element size %d is not a multiple of %d", size, mmio.WordSize))
	}
	hi, total := bits.Mul(uint(size), uint(n))
	if hi != 0 {
		return nil, ErrOutOfMemory
	}
	off, next, err := plan(a.region.addr, a.free, a.region.size, align, uintptr(total))
	if err != nil {
		return nil, fmt.Errorf("%w: %d x %d bytes with %d remaining", err, n, size, a.Remaining())
	}
	b := &Buffer[T]{ptr: unsafe.Add(a.region.base, off), offset: off, n: n}
	mmio.ZeroWords(b.ptr, uintptr(total)/mmio.WordSize)
	a.free = next
	return b, nil
}

// MustTake is Take for bring-up code that treats exhaustion as fatal.
func MustTake[T any](a *Allocator, n int) *Buffer[T] {
	b, err := Take[T](a, n)
	if err != nil {
		panic(err)
	}
	return b
}

// plan computes the offset of the next allocation and the new free offset.
func plan(addr, free, limit, align, bytes uintptr) (off, next uintptr, err error) {
	cur, carry := bits.Add(uint(addr), uint(free), 0)
	if carry != 0 {
		return 0, 0, ErrOutOfMemory
	}
	pad := (align - uintptr(cur)%align) % align
	ext, carry := bits.Add(uint(pad), uint(bytes), 0)
	if carry != 0 {
		return 0, 0, ErrOutOfMemory
	}
	end, carry := bits.Add(uint(free), ext, 0)
	if carry != 0 || uintptr(end) > limit {
		return 0, 0, ErrOutOfMemory
	}
	return free + pad, uintptr(end), nil
}
