package mcmcan

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-mcmcan/internal/frame"
	"github.com/kstaniek/go-mcmcan/internal/mmio"
	"github.com/kstaniek/go-mcmcan/internal/msgram"
)

// NoRx marks a node without a receive engine.
type NoRx struct{}

// RxFifo0 drains the node's receive FIFO 0.
type RxFifo0[P frame.Payload] struct {
	regs *NodeRegs
	buf  *msgram.Buffer[frame.Rx[P]]
	log  *slog.Logger
}

// SetRxFifo0 places FIFO 0 in buf, in blocking mode, and routes every frame
// not matched by a filter into it.
func SetRxFifo0[C, T any, P frame.Payload](n *Node[C, T, NoRx], buf *msgram.Buffer[frame.Rx[P]]) (*Node[C, T, *RxFifo0[P]], error) {
	c := n.state()
	if err := buf.Claim(); err != nil {
		return nil, fmt.Errorf("rx fifo0: %w", err)
	}
	n.c = nil
	r := c.regs
	r.RXESC.ReplaceBits(uint32(frame.CodeOf[P]()), 1<<RXESC_F0DS_WIDTH-1, RXESC_F0DS_POS)

	v := r.RXF0C.Get()
	v = mmio.SetField(v, RXF0C_F0SA_POS, RXF0C_F0SA_WIDTH, uint32(buf.Offset()>>2))
	v = mmio.SetField(v, RXF0C_F0S_POS, RXF0C_F0S_WIDTH, uint32(buf.Len()))
	v = mmio.SetField(v, RXF0C_F0WM_POS, RXF0C_F0WM_WIDTH, uint32(0))
	r.RXF0C.Set(v &^ RXF0C_F0OM)

	g := r.GFC.Get()
	g = mmio.SetField(g, GFC_ANFS_POS, GFC_ANF_WIDTH, uint32(GFC_ANF_FIFO0))
	g = mmio.SetField(g, GFC_ANFE_POS, GFC_ANF_WIDTH, uint32(GFC_ANF_FIFO0))
	r.GFC.Set(g)

	c.log.Debug("rx_fifo0_configured", "offset", buf.Offset(), "elements", buf.Len(), "size", frame.CodeOf[P]())
	rx := &RxFifo0[P]{regs: r, buf: buf, log: c.log}
	return &Node[C, T, *RxFifo0[P]]{c: c, tx: n.tx, rx: rx}, nil
}

// Len returns the FIFO capacity.
func (f *RxFifo0[P]) Len() int { return f.buf.Len() }

// FillLevel returns the number of frames waiting.
func (f *RxFifo0[P]) FillLevel() int {
	return int(mmio.Field[uint8](f.regs.RXF0S.Get(), RXF0S_F0FL_POS, RXF0S_F0FL_WIDTH))
}

// MessageLost reports whether a frame was discarded because the FIFO was full.
func (f *RxFifo0[P]) MessageLost() bool { return f.regs.RXF0S.HasBits(RXF0S_RF0L) }

// TryReceive pops the oldest frame. It returns false without touching the
// FIFO when it is empty.
//
// A get index outside the configured FIFO means the hardware and the driver
// disagree on the layout; it panics with ErrConfigurationInvariant.
func (f *RxFifo0[P]) TryReceive() (frame.Rx[P], bool) {
	if f.FillLevel() == 0 {
		return frame.Rx[P]{}, false
	}
	gi := mmio.Field[uint8](f.regs.RXF0S.Get(), RXF0S_F0GI_POS, RXF0S_F0GI_WIDTH)
	if int(gi) >= f.buf.Len() {
		panic(fmt.Errorf("%w: fifo0 get index %d with %d elements", ErrConfigurationInvariant, gi, f.buf.Len()))
	}
	fr := f.buf.Load(int(gi))
	mmio.Sync()
	f.regs.RXF0A.Set(uint32(gi))
	f.log.Debug("rx_fifo0_receive", "index", gi)
	return fr, true
}
