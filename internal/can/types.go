// Package can holds the bus-level CAN types shared by the driver, the
// simulator and the bridge backends.
package can

import (
	"errors"
	"fmt"
)

// SocketCAN flag bits for can_id (same values as <linux/can.h>)
const (
	CAN_EFF_FLAG = 0x80000000
	CAN_RTR_FLAG = 0x40000000
	CAN_ERR_FLAG = 0x20000000
	CAN_SFF_MASK = 0x7FF
	CAN_EFF_MASK = 0x1FFFFFFF
)

// MaxDataLen is the classic CAN payload limit.
const MaxDataLen = 8

var (
	ErrInvalidID    = errors.New("can: identifier out of range")
	ErrDataTooLong  = errors.New("can: payload longer than 8 bytes")
	ErrNotDataFrame = errors.New("can: error frame")
)

// ID is a CAN identifier in standard (11-bit) or extended (29-bit) form.
type ID struct {
	value    uint32
	extended bool
}

// StandardID returns an 11-bit identifier.
func StandardID(id uint16) ID { return ID{value: uint32(id)} }

// ExtendedID returns a 29-bit identifier.
func ExtendedID(id uint32) ID { return ID{value: id, extended: true} }

// Extended reports whether id is in 29-bit form.
func (id ID) Extended() bool { return id.extended }

// Value returns the raw identifier bits.
func (id ID) Value() uint32 { return id.value }

// Validate checks the identifier fits its form.
func (id ID) Validate() error {
	limit := uint32(CAN_SFF_MASK)
	if id.extended {
		limit = CAN_EFF_MASK
	}
	if id.value > limit {
		return fmt.Errorf("%w: %s", ErrInvalidID, id)
	}
	return nil
}

func (id ID) String() string {
	if id.extended {
		return fmt.Sprintf("Extended(0x%08X)", id.value)
	}
	return fmt.Sprintf("Standard(0x%03X)", id.value)
}

// Frame is a classic CAN frame in SocketCAN form: CANID carries EFF/RTR/ERR
// flags in its upper bits and only the first Len bytes of Data are valid.
type Frame struct {
	CANID uint32
	Len   uint8
	Data  [MaxDataLen]byte
}

// NewFrame builds a data frame.
func NewFrame(id ID, data []byte) (Frame, error) {
	var f Frame
	if err := id.Validate(); err != nil {
		return f, err
	}
	if len(data) > MaxDataLen {
		return f, ErrDataTooLong
	}
	f.CANID = id.value
	if id.extended {
		f.CANID |= CAN_EFF_FLAG
	}
	f.Len = uint8(len(data))
	copy(f.Data[:], data)
	return f, nil
}

// ID returns the logical identifier without flag bits.
func (f Frame) ID() ID {
	if f.CANID&CAN_EFF_FLAG != 0 {
		return ExtendedID(f.CANID & CAN_EFF_MASK)
	}
	return StandardID(uint16(f.CANID & CAN_SFF_MASK))
}

// Remote reports whether the RTR flag is set.
func (f Frame) Remote() bool { return f.CANID&CAN_RTR_FLAG != 0 }

// Payload returns the valid data bytes.
func (f *Frame) Payload() []byte {
	n := f.Len
	if n > MaxDataLen {
		n = MaxDataLen
	}
	return f.Data[:n]
}

func (f Frame) String() string {
	return fmt.Sprintf("%s [%d] % X", f.ID(), f.Len, f.Payload())
}

// Validate checks f can be put on the bus.
func (f Frame) Validate() error {
	if f.CANID&CAN_ERR_FLAG != 0 {
		return ErrNotDataFrame
	}
	if f.Len > MaxDataLen {
		return ErrDataTooLong
	}
	if f.CANID&CAN_EFF_FLAG == 0 && f.CANID&^(CAN_RTR_FLAG) > CAN_SFF_MASK {
		return fmt.Errorf("%w: 0x%X", ErrInvalidID, f.CANID)
	}
	return nil
}
