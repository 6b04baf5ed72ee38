package frame

import (
	"fmt"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/mmio"
)

// Rx is a receive FIFO element as written by the controller.
type Rx[P Payload] struct {
	r0   uint32
	r1   uint32
	data P
}

func (f *Rx[P]) ID() can.ID { return DecodeID(f.r0) }

// Data returns the first DLC bytes of the payload.
func (f *Rx[P]) Data() []byte {
	buf := bytesOf(&f.data)
	return buf[:dataLen(f.r1, len(buf))]
}

func (f *Rx[P]) DLC() uint8          { return mmio.Field[uint8](f.r1, DLCPos, DLCWidth) }
func (f *Rx[P]) Remote() bool        { return mmio.Bit(f.r0, RTRBit) }
func (f *Rx[P]) ErrorPassive() bool  { return mmio.Bit(f.r0, ESIBit) }
func (f *Rx[P]) BitrateSwitch() bool { return mmio.Bit(f.r1, BRSBit) }
func (f *Rx[P]) FDFormat() bool      { return mmio.Bit(f.r1, FDFBit) }
func (f *Rx[P]) Timestamp() uint16   { return mmio.Field[uint16](f.r1, TimestampPos, TimestampWidth) }
func (f *Rx[P]) FilterIndex() uint8  { return mmio.Field[uint8](f.r1, FIDXPos, FIDXWidth) }

// AcceptedNonMatching reports whether the frame matched no filter element.
func (f *Rx[P]) AcceptedNonMatching() bool { return mmio.Bit(f.r1, ANMFBit) }

func (f *Rx[P]) String() string {
	return fmt.Sprintf("rx %s [%d] % X ts=%d", f.ID(), f.DLC(), f.Data(), f.Timestamp())
}
