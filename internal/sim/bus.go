package sim

import (
	"encoding/binary"
	"sync/atomic"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/frame"
	"github.com/kstaniek/go-mcmcan/internal/mcmcan"
	"github.com/kstaniek/go-mcmcan/internal/mmio"
)

// Error counter thresholds (ISO 11898-1).
const (
	warningLimit = 96
	passiveLimit = 128
	tecAckStep   = 8
)

// element is a frame on the wire: header words and payload words.
type element struct {
	t0, t1 uint32
	data   []uint32
}

func (e element) toFrame() can.Frame {
	var f can.Frame
	id := frame.DecodeID(e.t0)
	f.CANID = id.Value()
	if id.Extended() {
		f.CANID |= can.CAN_EFF_FLAG
	}
	if mmio.Bit(e.t0, frame.RTRBit) {
		f.CANID |= can.CAN_RTR_FLAG
	}
	n := mmio.Field[uint8](e.t1, frame.DLCPos, frame.DLCWidth)
	if n > can.MaxDataLen {
		n = can.MaxDataLen
	}
	f.Len = n
	var raw [8]byte
	for i := 0; i < len(e.data) && i < 2; i++ {
		binary.NativeEndian.PutUint32(raw[i*4:], e.data[i])
	}
	copy(f.Data[:], raw[:n])
	return f
}

// readTx loads dedicated TX buffer idx of node id.
func (p *Peripheral) readTx(id mcmcan.NodeID, idx int) (element, bool) {
	n := &p.Regs.Node[id]
	txbc := n.TXBC.Get()
	if idx >= int(mmio.Field[uint8](txbc, mcmcan.TXBC_NDTB_POS, mcmcan.TXBC_NDTB_WIDTH)) {
		return element{}, false
	}
	code := frame.SizeCode(mmio.Field[uint8](n.TXESC.Get(), mcmcan.TXESC_TBDS_POS, mcmcan.TXESC_TBDS_WIDTH))
	words := uintptr(code.ElementWords())
	base := uintptr(mmio.Field[uint32](txbc, mcmcan.TXBC_TBSA_POS, mcmcan.TXBC_TBSA_WIDTH)) + uintptr(idx)*words
	e := element{
		t0:   atomic.LoadUint32(p.ram(base)),
		t1:   atomic.LoadUint32(p.ram(base + 1)),
		data: make([]uint32, words-frame.HeaderWords),
	}
	for i := range e.data {
		e.data[i] = atomic.LoadUint32(p.ram(base + frame.HeaderWords + uintptr(i)))
	}
	return e, true
}

// receivers lists the running nodes other than id sharing its bus and bit
// timing.
func (p *Peripheral) receivers(id mcmcan.NodeID) []mcmcan.NodeID {
	bus := p.BusOf(id)
	nbtp := p.Regs.Node[id].NBTP.Get()
	var out []mcmcan.NodeID
	for i := range p.Regs.Node {
		r := mcmcan.NodeID(i)
		if r == id || !p.running[i] || p.BusOf(r) != bus {
			continue
		}
		if p.Regs.Node[i].NBTP.Get() != nbtp {
			continue
		}
		out = append(out, r)
	}
	return out
}

// transmit sends the pending buffers of node id, lowest index first, and
// stops at the first frame nobody acknowledges.
func (p *Peripheral) transmit(id mcmcan.NodeID) {
	n := &p.Regs.Node[id]
	for idx := 0; idx < 32; idx++ {
		bit := uint32(1) << idx
		if !n.TXBRP.HasBits(bit) {
			continue
		}
		if n.PSR.HasBits(mcmcan.PSR_BO) {
			return
		}
		e, ok := p.readTx(id, idx)
		if !ok {
			n.TXBRP.ClearBits(bit)
			continue
		}
		rx := p.receivers(id)
		onExternal := p.BusOf(id) == External
		acked := len(rx) > 0 || (onExternal && p.extAck != nil && p.extAck())
		if !acked {
			p.ackError(id)
			return
		}
		for _, r := range rx {
			p.deliver(r, e)
		}
		if onExternal && len(p.taps) > 0 {
			f := e.toFrame()
			for _, tap := range p.taps {
				tap(f)
			}
		}
		n.TXBRP.ClearBits(bit)
		n.TXBTO.SetBits(bit)
		n.IR.SetBits(mcmcan.IR_TC)
		p.stats[id].Transmitted++
		p.txSuccess(id)
	}
}

// deliver stores e in FIFO 0 of node id, honoring the global filter.
func (p *Peripheral) deliver(id mcmcan.NodeID, e element) {
	n := &p.Regs.Node[id]
	p.rxSuccess(id)
	c := n.RXF0C.Get()
	size := int(mmio.Field[uint8](c, mcmcan.RXF0C_F0S_POS, mcmcan.RXF0C_F0S_WIDTH))
	if size == 0 {
		return
	}
	anfPos := uint(mcmcan.GFC_ANFS_POS)
	if mmio.Bit(e.t0, frame.XTDBit) {
		anfPos = mcmcan.GFC_ANFE_POS
	}
	if mmio.Field[uint8](n.GFC.Get(), anfPos, mcmcan.GFC_ANF_WIDTH) != mcmcan.GFC_ANF_FIFO0 {
		p.stats[id].Rejected++
		return
	}
	s := n.RXF0S.Get()
	fill := int(mmio.Field[uint8](s, mcmcan.RXF0S_F0FL_POS, mcmcan.RXF0S_F0FL_WIDTH))
	if fill >= size {
		n.RXF0S.SetBits(mcmcan.RXF0S_RF0L)
		n.IR.SetBits(mcmcan.IR_RF0L)
		p.stats[id].Lost++
		return
	}
	put := int(mmio.Field[uint8](s, mcmcan.RXF0S_F0PI_POS, mcmcan.RXF0S_F0PI_WIDTH))
	code := frame.SizeCode(mmio.Field[uint8](n.RXESC.Get(), mcmcan.RXESC_F0DS_POS, mcmcan.RXESC_F0DS_WIDTH))
	words := uintptr(code.ElementWords())
	base := uintptr(mmio.Field[uint32](c, mcmcan.RXF0C_F0SA_POS, mcmcan.RXF0C_F0SA_WIDTH)) + uintptr(put)*words

	r0 := e.t0
	r1 := uint32(p.clock) | e.t1&(0xF<<frame.DLCPos|1<<frame.BRSBit|1<<frame.FDFBit) | 1<<frame.ANMFBit
	atomic.StoreUint32(p.ram(base), r0)
	atomic.StoreUint32(p.ram(base+1), r1)
	for i := uintptr(0); i < words-frame.HeaderWords; i++ {
		var v uint32
		if int(i) < len(e.data) {
			v = e.data[i]
		}
		atomic.StoreUint32(p.ram(base+frame.HeaderWords+i), v)
	}

	fill++
	put = (put + 1) % size
	s = mmio.SetField(s, mcmcan.RXF0S_F0FL_POS, mcmcan.RXF0S_F0FL_WIDTH, uint32(fill))
	s = mmio.SetField(s, mcmcan.RXF0S_F0PI_POS, mcmcan.RXF0S_F0PI_WIDTH, uint32(put))
	if fill == size {
		s |= mcmcan.RXF0S_F0F
	}
	n.RXF0S.Set(s)
	n.IR.SetBits(mcmcan.IR_RF0N)
	if fill == size {
		n.IR.SetBits(mcmcan.IR_RF0F)
	}
	p.stats[id].Received++
}

// consumeAck applies an RXF0A write: every element up to and including the
// acknowledged index is released.
func (p *Peripheral) consumeAck(id mcmcan.NodeID) {
	n := &p.Regs.Node[id]
	a := n.RXF0A.Get()
	if a == AckIdle {
		return
	}
	n.RXF0A.Set(AckIdle)
	p.stats[id].Acks++
	size := int(mmio.Field[uint8](n.RXF0C.Get(), mcmcan.RXF0C_F0S_POS, mcmcan.RXF0C_F0S_WIDTH))
	s := n.RXF0S.Get()
	fill := int(mmio.Field[uint8](s, mcmcan.RXF0S_F0FL_POS, mcmcan.RXF0S_F0FL_WIDTH))
	if size == 0 || fill == 0 {
		return
	}
	idx := int(mmio.Field[uint8](a, mcmcan.RXF0A_F0AI_POS, mcmcan.RXF0A_F0AI_WIDTH))
	get := int(mmio.Field[uint8](s, mcmcan.RXF0S_F0GI_POS, mcmcan.RXF0S_F0GI_WIDTH))
	if idx >= size {
		return
	}
	released := (idx-get+size)%size + 1
	if released > fill {
		released = fill
	}
	fill -= released
	get = (get + released) % size
	s = mmio.SetField(s, mcmcan.RXF0S_F0FL_POS, mcmcan.RXF0S_F0FL_WIDTH, uint32(fill))
	s = mmio.SetField(s, mcmcan.RXF0S_F0GI_POS, mcmcan.RXF0S_F0GI_WIDTH, uint32(get))
	n.RXF0S.Set(s &^ mcmcan.RXF0S_F0F)
}

func (p *Peripheral) ackError(id mcmcan.NodeID) {
	n := &p.Regs.Node[id]
	p.stats[id].AckErrors++
	ecr := n.ECR.Get()
	tec := int(mmio.Field[uint8](ecr, mcmcan.ECR_TEC_POS, mcmcan.ECR_TEC_WIDTH))
	// an error passive transmitter does not count acknowledge errors
	if !n.PSR.HasBits(mcmcan.PSR_EP) {
		tec += tecAckStep
	}
	if tec > 255 {
		tec = 255
		n.PSR.SetBits(mcmcan.PSR_BO)
		n.IR.SetBits(mcmcan.IR_BO)
		n.CCCR.SetBits(mcmcan.CCCR_INIT)
	}
	n.ECR.Set(mmio.SetField(ecr, mcmcan.ECR_TEC_POS, mcmcan.ECR_TEC_WIDTH, uint32(tec)))
	p.setLEC(id, mcmcan.AckError, mcmcan.Transmitter)
	p.updateStatus(id)
}

func (p *Peripheral) txSuccess(id mcmcan.NodeID) {
	n := &p.Regs.Node[id]
	ecr := n.ECR.Get()
	if tec := mmio.Field[uint32](ecr, mcmcan.ECR_TEC_POS, mcmcan.ECR_TEC_WIDTH); tec > 0 {
		n.ECR.Set(mmio.SetField(ecr, mcmcan.ECR_TEC_POS, mcmcan.ECR_TEC_WIDTH, tec-1))
	}
	p.setLEC(id, mcmcan.NoError, mcmcan.Idle)
	p.updateStatus(id)
}

func (p *Peripheral) rxSuccess(id mcmcan.NodeID) {
	n := &p.Regs.Node[id]
	ecr := n.ECR.Get()
	if rec := mmio.Field[uint32](ecr, mcmcan.ECR_REC_POS, mcmcan.ECR_REC_WIDTH); rec > 0 {
		n.ECR.Set(mmio.SetField(ecr, mcmcan.ECR_REC_POS, mcmcan.ECR_REC_WIDTH, rec-1))
	}
	p.setLEC(id, mcmcan.NoError, mcmcan.Idle)
	p.updateStatus(id)
}

func (p *Peripheral) setLEC(id mcmcan.NodeID, lec mcmcan.LastError, act mcmcan.Activity) {
	psr := &p.Regs.Node[id].PSR
	v := psr.Get()
	v = mmio.SetField(v, mcmcan.PSR_LEC_POS, mcmcan.PSR_LEC_WIDTH, uint8(lec))
	v = mmio.SetField(v, mcmcan.PSR_ACT_POS, mcmcan.PSR_ACT_WIDTH, uint8(act))
	psr.Set(v)
}

// updateStatus derives the warning and passive flags from the counters.
func (p *Peripheral) updateStatus(id mcmcan.NodeID) {
	n := &p.Regs.Node[id]
	ecr := n.ECR.Get()
	tec := int(mmio.Field[uint8](ecr, mcmcan.ECR_TEC_POS, mcmcan.ECR_TEC_WIDTH))
	rec := int(mmio.Field[uint8](ecr, mcmcan.ECR_REC_POS, mcmcan.ECR_REC_WIDTH))
	if ecr&mcmcan.ECR_RP != 0 {
		rec = passiveLimit
	}
	psr := n.PSR.Get()
	ew := tec >= warningLimit || rec >= warningLimit
	ep := tec >= passiveLimit || rec >= passiveLimit
	if ew && psr&mcmcan.PSR_EW == 0 {
		n.IR.SetBits(mcmcan.IR_EW)
	}
	if ep && psr&mcmcan.PSR_EP == 0 {
		n.IR.SetBits(mcmcan.IR_EP)
	}
	psr &^= mcmcan.PSR_EW | mcmcan.PSR_EP
	if ew {
		psr |= mcmcan.PSR_EW
	}
	if ep {
		psr |= mcmcan.PSR_EP
	}
	n.PSR.Set(psr)
}
