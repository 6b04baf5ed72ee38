//go:build tc37x

package mcmcan

import (
	"unsafe"

	"github.com/kstaniek/go-mcmcan/internal/msgram"
)

// CAN0 register and message RAM windows (TC3xx user manual, MCMCAN chapter).
const (
	can0Base    = 0xF0208000
	can0RAMBase = 0xF0200000
	can0RAMSize = 0x8000
)

// CAN0 returns the CAN0 register block.
func CAN0() *ModuleRegs { return (*ModuleRegs)(unsafe.Pointer(uintptr(can0Base))) }

// CAN0RAM returns the CAN0 message RAM window.
func CAN0RAM() msgram.Region { return msgram.NewRegion(can0RAMBase, can0RAMSize) }
