package mmio

import (
	"sync/atomic"
	"unsafe"
)

// WordSize is the access width tolerated by peripheral memories.
const WordSize = 4

// LoadWords copies n words from shared memory at src into dst, one volatile
// 32-bit load per word.
func LoadWords(dst, src unsafe.Pointer, n uintptr) {
	for i := uintptr(0); i < n; i++ {
		v := atomic.LoadUint32((*uint32)(unsafe.Add(src, i*WordSize)))
		*(*uint32)(unsafe.Add(dst, i*WordSize)) = v
	}
}

// StoreWords copies n words from src into shared memory at dst, one volatile
// 32-bit store per word.
func StoreWords(dst, src unsafe.Pointer, n uintptr) {
	for i := uintptr(0); i < n; i++ {
		v := *(*uint32)(unsafe.Add(src, i*WordSize))
		atomic.StoreUint32((*uint32)(unsafe.Add(dst, i*WordSize)), v)
	}
}

// ZeroWords clears n words of shared memory at dst.
func ZeroWords(dst unsafe.Pointer, n uintptr) {
	for i := uintptr(0); i < n; i++ {
		atomic.StoreUint32((*uint32)(unsafe.Add(dst, i*WordSize)), 0)
	}
}
