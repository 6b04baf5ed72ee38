package mcmcan

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-mcmcan/internal/frame"
	"github.com/kstaniek/go-mcmcan/internal/mmio"
	"github.com/kstaniek/go-mcmcan/internal/msgram"
)

// maxDedicatedTx is the exclusive upper bound on dedicated TX buffers.
const maxDedicatedTx = 32

// NoTx marks a node without a transmit engine.
type NoTx struct{}

// TxDedicated sends frames from dedicated transmit buffers.
type TxDedicated[P frame.Payload] struct {
	regs *NodeRegs
	buf  *msgram.Buffer[frame.Tx[P]]
	held uint32
	gen  [maxDedicatedTx]uint32
	log  *slog.Logger
}

// SetTx places the dedicated transmit buffers in buf. It panics if buf holds
// 32 or more elements.
func SetTx[C, R any, P frame.Payload](n *Node[C, NoTx, R], buf *msgram.Buffer[frame.Tx[P]]) (*Node[C, *TxDedicated[P], R], error) {
	c := n.state()
	if buf.Len() >= maxDedicatedTx {
		panic(fmt.Sprintf("mcmcan: %d dedicated tx buffers, at most %d supported", buf.Len(), maxDedicatedTx-1))
	}
	if err := buf.Claim(); err != nil {
		return nil, fmt.Errorf("tx buffers: %w", err)
	}
	n.c = nil
	r := c.regs
	r.TXESC.ReplaceBits(uint32(frame.CodeOf[P]()), 1<<TXESC_TBDS_WIDTH-1, TXESC_TBDS_POS)

	v := r.TXBC.Get()
	v = mmio.SetField(v, TXBC_TBSA_POS, TXBC_TBSA_WIDTH, uint32(buf.Offset()>>2))
	v = mmio.SetField(v, TXBC_NDTB_POS, TXBC_NDTB_WIDTH, uint32(buf.Len()))
	v = mmio.SetField(v, TXBC_TFQS_POS, TXBC_TFQS_WIDTH, uint32(0))
	r.TXBC.Set(v)

	c.log.Debug("tx_buffers_configured", "offset", buf.Offset(), "elements", buf.Len(), "size", frame.CodeOf[P]())
	tx := &TxDedicated[P]{regs: r, buf: buf, log: c.log}
	return &Node[C, *TxDedicated[P], R]{c: c, tx: tx, rx: n.rx}, nil
}

// Len returns the number of dedicated buffers.
func (t *TxDedicated[P]) Len() int { return t.buf.Len() }

// Pending returns the mask of buffers with a transmission requested or in
// progress.
func (t *TxDedicated[P]) Pending() uint32 { return t.regs.TXBRP.Get() | t.regs.TXBAR.Get() }

// AcquireTransmitBuffer returns the lowest buffer that is neither pending
// nor already held by the caller, or false if there is none.
func (t *TxDedicated[P]) AcquireTransmitBuffer() (*TransmitBuffer[P], bool) {
	busy := t.Pending() | t.held
	for i := 0; i < t.buf.Len(); i++ {
		bit := uint32(1) << i
		if busy&bit == 0 {
			t.held |= bit
			return &TransmitBuffer[P]{handle[P]{tx: t, index: uint8(i), gen: t.gen[i]}}, true
		}
	}
	return nil, false
}

// WithTransmitBuffer acquires a buffer and hands it to fn. It reports whether
// a buffer was available. Whatever fn leaves unsent is released when it
// returns, and its handles become invalid.
func (t *TxDedicated[P]) WithTransmitBuffer(fn func(*TransmitBuffer[P])) bool {
	b, ok := t.AcquireTransmitBuffer()
	if !ok {
		return false
	}
	defer func() {
		if t.gen[b.index] == b.gen {
			t.log.Debug("tx_buffer_abandoned", "index", b.index)
			t.drop(b.index)
		}
	}()
	fn(b)
	return true
}

// Transmit writes f into a free buffer and requests its transmission.
func (t *TxDedicated[P]) Transmit(f frame.Tx[P]) bool {
	b, ok := t.AcquireTransmitBuffer()
	if !ok {
		return false
	}
	b.SetFrame(f).Send()
	return true
}

// drop ends the CPU's hold on buffer i and invalidates its handles.
func (t *TxDedicated[P]) drop(i uint8) {
	t.held &^= uint32(1) << i
	t.gen[i]++
}

// handle refers to one hold of a buffer. It is stale once the hold ended.
type handle[P frame.Payload] struct {
	tx    *TxDedicated[P]
	index uint8
	gen   uint32
}

func (h *handle[P]) live() bool { return h.tx != nil && h.tx.gen[h.index] == h.gen }

func (h *handle[P]) owner() *TxDedicated[P] {
	if !h.live() {
		panic(ErrStateConsumed)
	}
	return h.tx
}

// Index returns the buffer index.
func (h *handle[P]) Index() int { return int(h.index) }

// Release gives the buffer back without sending. It does nothing on a
// handle already sent or released.
func (h *handle[P]) Release() {
	if h.live() {
		h.tx.drop(h.index)
	}
	h.tx = nil
}

// TransmitBuffer is an acquired, not yet written transmit buffer.
type TransmitBuffer[P frame.Payload] struct{ handle[P] }

// SetFrame writes f into the buffer and returns its ready phase.
func (b *TransmitBuffer[P]) SetFrame(f frame.Tx[P]) *ReadyBuffer[P] {
	tx := b.owner()
	h := b.handle
	b.tx = nil
	tx.buf.Store(int(h.index), f)
	mmio.Sync()
	return &ReadyBuffer[P]{h}
}

// ReadyBuffer is a written transmit buffer awaiting its request.
type ReadyBuffer[P frame.Payload] struct{ handle[P] }

// Send requests transmission of the buffer.
func (b *ReadyBuffer[P]) Send() {
	tx := b.owner()
	b.tx = nil
	tx.regs.TXBAR.SetBits(uint32(1) << b.index)
	tx.drop(b.index)
	tx.log.Debug("tx_request", "index", b.index)
}
