// Package frame defines the message RAM element layouts of the M_CAN
// controller: transmit buffer elements and receive FIFO elements.
//
// Elements are generic over the payload buffer so one definition serves every
// element size the controller supports.
package frame

import (
	"fmt"
	"unsafe"
)

// Payload buffers for each supported element data field size.
type (
	Data8  [8]byte
	Data12 [12]byte
	Data16 [16]byte
	Data20 [20]byte
	Data24 [24]byte
	Data32 [32]byte
	Data48 [48]byte
	Data64 [64]byte
)

// Payload is the set of element data field sizes.
type Payload interface {
	Data8 | Data12 | Data16 | Data20 | Data24 | Data32 | Data48 | Data64
}

// SizeCode is the 3-bit data field size code used by RXESC and TXESC.
type SizeCode uint8

const (
	Size8 SizeCode = iota
	Size12
	Size16
	Size20
	Size24
	Size32
	Size48
	Size64
)

var sizeBytes = [...]int{8, 12, 16, 20, 24, 32, 48, 64}

// DataBytes returns the data field size in bytes.
func (c SizeCode) DataBytes() int { return sizeBytes[c&7] }

// ElementWords returns the size of an element in 32-bit words, header included.
func (c SizeCode) ElementWords() int { return HeaderWords + c.DataBytes()/4 }

func (c SizeCode) String() string { return fmt.Sprintf("%dB", c.DataBytes()) }

// CodeOf returns the size code matching payload type P.
func CodeOf[P Payload]() SizeCode {
	var p P
	n := int(unsafe.Sizeof(p))
	for c, b := range sizeBytes {
		if b == n {
			return SizeCode(c)
		}
	}
	panic(fmt.Sprintf("frame: no size code for %d byte payload", n))
}

func bytesOf[P Payload](p *P) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}
