package frame

import (
	"errors"
	"fmt"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/mmio"
)

var ErrPayloadTooLarge = errors.New("frame: payload longer than 8 bytes")

// Tx is a transmit buffer element.
type Tx[P Payload] struct {
	t0   uint32
	t1   uint32
	data P
}

// NewTx builds a data frame element.
func NewTx[P Payload](id can.ID, data []byte) (Tx[P], error) {
	var f Tx[P]
	f.SetID(id)
	if err := f.SetData(data); err != nil {
		return Tx[P]{}, err
	}
	return f, nil
}

// SetID stores id; bits beyond the identifier width are dropped.
func (f *Tx[P]) SetID(id can.ID) { f.t0 = EncodeID(f.t0, id) }

// ID decodes the identifier.
func (f *Tx[P]) ID() can.ID { return DecodeID(f.t0) }

// SetData copies b into the payload and sets the DLC to len(b).
func (f *Tx[P]) SetData(b []byte) error {
	if len(b) > can.MaxDataLen {
		return fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(b))
	}
	copy(bytesOf(&f.data), b)
	f.t1 = mmio.SetField(f.t1, DLCPos, DLCWidth, uint8(len(b)))
	return nil
}

// Data returns the first DLC bytes of the payload.
func (f *Tx[P]) Data() []byte {
	buf := bytesOf(&f.data)
	return buf[:dataLen(f.t1, len(buf))]
}

// DLC returns the raw data length code.
func (f *Tx[P]) DLC() uint8 { return mmio.Field[uint8](f.t1, DLCPos, DLCWidth) }

func (f *Tx[P]) SetRemote(on bool) { f.t0 = mmio.SetBit(f.t0, RTRBit, on) }
func (f *Tx[P]) Remote() bool      { return mmio.Bit(f.t0, RTRBit) }

func (f *Tx[P]) SetBitrateSwitch(on bool) { f.t1 = mmio.SetBit(f.t1, BRSBit, on) }
func (f *Tx[P]) BitrateSwitch() bool      { return mmio.Bit(f.t1, BRSBit) }

func (f *Tx[P]) SetFDFormat(on bool) { f.t1 = mmio.SetBit(f.t1, FDFBit, on) }
func (f *Tx[P]) FDFormat() bool      { return mmio.Bit(f.t1, FDFBit) }

// SetEventFIFO requests a TX event FIFO entry for this frame.
func (f *Tx[P]) SetEventFIFO(on bool) { f.t1 = mmio.SetBit(f.t1, EFCBit, on) }
func (f *Tx[P]) EventFIFO() bool      { return mmio.Bit(f.t1, EFCBit) }

// SetMarker sets the message marker copied into the TX event FIFO.
func (f *Tx[P]) SetMarker(mm uint8) { f.t1 = mmio.SetField(f.t1, MarkerPos, MarkerWidth, mm) }
func (f *Tx[P]) Marker() uint8      { return mmio.Field[uint8](f.t1, MarkerPos, MarkerWidth) }

func (f *Tx[P]) String() string {
	return fmt.Sprintf("tx %s [%d] % X", f.ID(), f.DLC(), f.Data())
}
