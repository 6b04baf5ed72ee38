package frame

import (
	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/mmio"
)

// HeaderWords is the number of header words preceding the data field.
const HeaderWords = 2

// Element header bit positions (M_CAN message RAM, T0/T1 and R0/R1).
const (
	IDPos         = 0
	IDWidth       = 29
	StandardShift = 18
	RTRBit        = 29
	XTDBit        = 30
	ESIBit        = 31

	TimestampPos   = 0
	TimestampWidth = 16
	DLCPos         = 16
	DLCWidth       = 4
	BRSBit         = 20
	FDFBit         = 21
	EFCBit         = 23
	MarkerPos      = 24
	MarkerWidth    = 8
	FIDXPos        = 24
	FIDXWidth      = 7
	ANMFBit        = 31
)

// EncodeID returns t0 with the identifier field and XTD flag set for id.
func EncodeID(t0 uint32, id can.ID) uint32 {
	v := id.Value()
	if !id.Extended() {
		v = (v & can.CAN_SFF_MASK) << StandardShift
	}
	t0 = mmio.SetField(t0, IDPos, IDWidth, v)
	return mmio.SetBit(t0, XTDBit, id.Extended())
}

// DecodeID extracts the identifier from t0.
func DecodeID(t0 uint32) can.ID {
	v := mmio.Field[uint32](t0, IDPos, IDWidth)
	if mmio.Bit(t0, XTDBit) {
		return can.ExtendedID(v)
	}
	return can.StandardID(uint16(v >> StandardShift))
}

func dataLen(t1 uint32, capacity int) int {
	n := int(mmio.Field[uint8](t1, DLCPos, DLCWidth))
	if n > can.MaxDataLen {
		n = can.MaxDataLen
	}
	if n > capacity {
		n = capacity
	}
	return n
}
