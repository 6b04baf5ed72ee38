// Package port configures TC37x general purpose I/O ports for the CAN pins.
package port

import (
	"github.com/kstaniek/go-mcmcan/internal/mmio"
)

// Regs is one port's register block.
type Regs struct {
	OUT   mmio.Register32 // 0x00
	OMR   mmio.Register32 // 0x04
	ID    mmio.Register32 // 0x08
	_     uint32
	IOCR  [4]mmio.Register32 // 0x10 IOCR0, IOCR4, IOCR8, IOCR12
	_     uint32
	IN    mmio.Register32 // 0x24
	_     [6]uint32
	PDR   [2]mmio.Register32 // 0x40 PDR0, PDR1
	_     [2]uint32
	ESR   mmio.Register32 // 0x50
	_     [3]uint32
	PDISC mmio.Register32 // 0x60
	PCSR  mmio.Register32 // 0x64
}

// Pin control codes (IOCR.PCx).
const (
	InputPullUp     = 0b00010
	PushPullAlt     = 0b10000
	iocrPCPos       = 3
	iocrPCWidth     = 5
	pdrPDWidth      = 3
	pinsPerIOCR     = 4
	pinsPerPDR      = 8
	iocrFieldStride = 8
	pdrFieldStride  = 4
)

// SetMode writes the IOCR pin control field of pin.
func (r *Regs) SetMode(pin, pc uint8) {
	pos := iocrPCPos + iocrFieldStride*(pin%pinsPerIOCR)
	r.IOCR[pin/pinsPerIOCR].ReplaceBits(uint32(pc), 1<<iocrPCWidth-1, pos)
}

// Mode reads the IOCR pin control field of pin.
func (r *Regs) Mode(pin uint8) uint8 {
	pos := iocrPCPos + iocrFieldStride*(pin%pinsPerIOCR)
	return mmio.Field[uint8](r.IOCR[pin/pinsPerIOCR].Get(), uint(pos), iocrPCWidth)
}

// SetDriver writes the PDR pad driver field of pin.
func (r *Regs) SetDriver(pin, pd uint8) {
	pos := pdrFieldStride * (pin % pinsPerPDR)
	r.PDR[pin/pinsPerPDR].ReplaceBits(uint32(pd), 1<<pdrPDWidth-1, pos)
}

// Driver reads the PDR pad driver field of pin.
func (r *Regs) Driver(pin uint8) uint8 {
	pos := pdrFieldStride * (pin % pinsPerPDR)
	return mmio.Field[uint8](r.PDR[pin/pinsPerPDR].Get(), uint(pos), pdrPDWidth)
}
