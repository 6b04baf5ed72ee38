package socketcan

import (
	"encoding/binary"
	"fmt"

	"github.com/kstaniek/go-mcmcan/internal/can"
)

// frameSize is the size of struct can_frame (classic CAN MTU).
const frameSize = 16

// struct can_frame (linux/can.h), host byte order:
//
//	can_id  u32   [0:4]  (includes EFF/RTR/ERR flags)
//	can_dlc u8    [4]
//	pad     3B    [5:8]
//	data    [8]   [8:16]
func unmarshalFrame(buf []byte, fr *can.Frame) error {
	if len(buf) != frameSize {
		return fmt.Errorf("short read: %d", len(buf))
	}
	dlc := buf[4]
	if dlc > can.MaxDataLen {
		dlc = can.MaxDataLen
	}
	fr.CANID = binary.NativeEndian.Uint32(buf[0:4])
	fr.Len = dlc
	fr.Data = [can.MaxDataLen]byte{}
	copy(fr.Data[:], buf[8:8+dlc])
	return nil
}

func marshalFrame(buf *[frameSize]byte, fr can.Frame) {
	binary.NativeEndian.PutUint32(buf[0:4], fr.CANID)
	buf[4] = fr.Len
	copy(buf[8:], fr.Payload())
}

// Filter passes frames whose id matches ID under Mask, as CAN_RAW_FILTER.
type Filter struct {
	ID   uint32
	Mask uint32
}

// ExactFilter matches exactly id in its standard or extended form.
func ExactFilter(id can.ID) Filter {
	if id.Extended() {
		return Filter{ID: id.Value() | can.CAN_EFF_FLAG, Mask: can.CAN_EFF_MASK | can.CAN_EFF_FLAG | can.CAN_RTR_FLAG}
	}
	return Filter{ID: id.Value(), Mask: can.CAN_SFF_MASK | can.CAN_EFF_FLAG | can.CAN_RTR_FLAG}
}

// Match reports whether the kernel would pass canID through f.
func (f Filter) Match(canID uint32) bool { return canID&f.Mask == f.ID&f.Mask }
