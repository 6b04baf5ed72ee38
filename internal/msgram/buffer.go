package msgram

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/kstaniek/go-mcmcan/internal/mmio"
)

// Buffer is a fixed run of elements of T inside message RAM.
// Elements are copied in and out with word-wide volatile accesses only.
type Buffer[T any] struct {
	ptr     unsafe.Pointer
	offset  uintptr
	n       int
	claimed atomic.Bool
}

// Offset returns the byte offset of the first element from the region start.
func (b *Buffer[T]) Offset() uintptr { return b.offset }

// Len returns the element count.
func (b *Buffer[T]) Len() int { return b.n }

// ElementSize returns the size of one element in bytes.
func (b *Buffer[T]) ElementSize() uintptr {
	var zero T
	return unsafe.Sizeof(zero)
}

// Load reads element i.
func (b *Buffer[T]) Load(i int) T {
	var v T
	mmio.LoadWords(unsafe.Pointer(&v), b.slot(i), b.words())
	return v
}

// Store writes element i.
func (b *Buffer[T]) Store(i int, v T) {
	mmio.StoreWords(b.slot(i), unsafe.Pointer(&v), b.words())
}

// Claim records the hand-off of b to its consuming engine. Only the first
// claim succeeds.
func (b *Buffer[T]) Claim() error {
	if !b.claimed.CompareAndSwap(false, true) {
		return ErrBufferClaimed
	}
	return nil
}

func (b *Buffer[T]) words() uintptr { return b.ElementSize() / mmio.WordSize }

func (b *Buffer[T]) slot(i int) unsafe.Pointer {
	if uint(i) >= uint(b.n) {
		panic(fmt.Sprintf("msgram: index %d out of range [0:%d]", i, b.n))
	}
	return unsafe.Add(b.ptr, uintptr(i)*b.ElementSize())
}
