//go:build tc37x

package port

import "unsafe"

const (
	p15Base = 0xF003AF00
	p20Base = 0xF003B400
)

// P15 returns the port 15 register block.
func P15() *Regs { return (*Regs)(unsafe.Pointer(uintptr(p15Base))) }

// P20 returns the port 20 register block.
func P20() *Regs { return (*Regs)(unsafe.Pointer(uintptr(p20Base))) }
