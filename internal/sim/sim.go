// Package sim models the MCMCAN register file, its message RAM and the two
// buses a node can be attached to, so the driver can run unmodified on a host.
//
// The model is stepped explicitly. Between steps register writes from the
// driver are plain memory stores; Step applies their effects: requested
// transmissions go out, receivers' FIFOs fill, acknowledges are consumed and
// error counters move.
package sim

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/frame"
	"github.com/kstaniek/go-mcmcan/internal/mcmcan"
	"github.com/kstaniek/go-mcmcan/internal/mmio"
	"github.com/kstaniek/go-mcmcan/internal/msgram"
	"github.com/kstaniek/go-mcmcan/internal/port"
)

// RAMSize matches the CAN0 message RAM.
const RAMSize = 0x8000

// AckIdle is held in RXF0A while no acknowledge is outstanding.
const AckIdle = 0xFFFF_FFFF

// Bus identifies the medium a node transmits on.
type Bus uint8

const (
	External Bus = iota
	Internal
)

func (b Bus) String() string {
	if b == Internal {
		return "internal"
	}
	return "external"
}

// NodeStats counts simulated bus events for one node.
type NodeStats struct {
	Transmitted uint64
	Received    uint64
	Lost        uint64
	Rejected    uint64
	AckErrors   uint64
	Acks        uint64
}

// Peripheral is a simulated MCMCAN module with its ports.
type Peripheral struct {
	Regs *mcmcan.ModuleRegs
	RAM  []uint32
	P15  *port.Regs
	P20  *port.Regs

	taps    []func(can.Frame)
	extAck  func() bool
	clock   uint16
	running [mcmcan.NodeCount]bool
	stats   [mcmcan.NodeCount]NodeStats
}

// New returns a peripheral in its reset state.
func New() *Peripheral {
	p := &Peripheral{
		Regs: new(mcmcan.ModuleRegs),
		RAM:  make([]uint32, RAMSize/mmio.WordSize),
		P15:  new(port.Regs),
		P20:  new(port.Regs),
	}
	p.Reset()
	return p
}

// Reset restores reset values: module clock disabled, every node in INIT.
func (p *Peripheral) Reset() {
	*p.Regs = mcmcan.ModuleRegs{}
	p.Regs.CLC.Set(mcmcan.CLC_DISR | mcmcan.CLC_DISS)
	for i := range p.Regs.Node {
		n := &p.Regs.Node[i]
		n.CCCR.Set(mcmcan.CCCR_INIT)
		n.RXF0A.Set(AckIdle)
		p.running[i] = false
		p.stats[i] = NodeStats{}
	}
	for i := range p.RAM {
		atomic.StoreUint32(&p.RAM[i], 0)
	}
}

// Region returns the message RAM for the driver's allocator.
func (p *Peripheral) Region() msgram.Region { return msgram.HostRegion(p.RAM) }

// Node returns the register block of node id.
func (p *Peripheral) Node(id mcmcan.NodeID) *mcmcan.NodeRegs { return &p.Regs.Node[id] }

// Stats returns the counters of node id.
func (p *Peripheral) Stats(id mcmcan.NodeID) NodeStats { return p.stats[id] }

// BusOf reports which bus node id is attached to.
func (p *Peripheral) BusOf(id mcmcan.NodeID) Bus {
	if p.Regs.Node[id].NPCR.HasBits(mcmcan.NPCR_LBM) {
		return Internal
	}
	return External
}

// Running reports whether node id has left configuration mode.
func (p *Peripheral) Running(id mcmcan.NodeID) bool { return p.running[id] }

// Tap registers an observer of frames successfully sent on the external bus.
func (p *Peripheral) Tap(fn func(can.Frame)) { p.taps = append(p.taps, fn) }

// SetExternalAck installs the check for a device outside the simulation that
// acknowledges external bus frames. Without one, only simulated nodes do.
func (p *Peripheral) SetExternalAck(fn func() bool) { p.extAck = fn }

// Settle applies the immediate effects of register writes: clock gating,
// INIT transitions and FIFO acknowledges. It is suitable as the driver's idle
// function during setup waits and must run between two receives from the
// same FIFO.
func (p *Peripheral) Settle() {
	clc := &p.Regs.CLC
	if clc.HasBits(mcmcan.CLC_DISR) {
		clc.SetBits(mcmcan.CLC_DISS)
	} else {
		clc.ClearBits(mcmcan.CLC_DISS)
	}
	for i := range p.Regs.Node {
		n := &p.Regs.Node[i]
		init := n.CCCR.HasBits(mcmcan.CCCR_INIT)
		if !init {
			n.CCCR.ClearBits(mcmcan.CCCR_CCE)
		}
		switch {
		case init && p.running[i]:
			p.running[i] = false
			n.TXBRP.Set(0)
			n.TXBAR.Set(0)
		case !init && !p.running[i]:
			p.running[i] = true
			n.RXF0S.Set(0)
			n.RXF0A.Set(AckIdle)
			n.PSR.Set(uint32(mcmcan.Idle) << mcmcan.PSR_ACT_POS)
		}
		if p.running[i] {
			p.consumeAck(mcmcan.NodeID(i))
		}
	}
}

// Step advances the model by one bus cycle: register writes settle, then
// every running node transmits its requested buffers.
func (p *Peripheral) Step() {
	p.Settle()
	p.clock++
	for i := range p.Regs.Node {
		if !p.running[i] {
			continue
		}
		n := &p.Regs.Node[i]
		if req := n.TXBAR.Get(); req != 0 {
			n.TXBRP.SetBits(req)
			n.TXBAR.Set(0)
		}
		p.transmit(mcmcan.NodeID(i))
	}
}

// Run steps the model n times.
func (p *Peripheral) Run(n int) {
	for i := 0; i < n; i++ {
		p.Step()
	}
}

// Inject puts f on the external bus. It reports whether any node received it.
func (p *Peripheral) Inject(f can.Frame) bool {
	t0 := frame.EncodeID(0, f.ID())
	t0 = mmio.SetBit(t0, frame.RTRBit, f.Remote())
	t1 := mmio.SetField(0, frame.DLCPos, frame.DLCWidth, f.Len)
	var data [2]uint32
	var raw [8]byte
	copy(raw[:], f.Payload())
	data[0] = binary.NativeEndian.Uint32(raw[0:4])
	data[1] = binary.NativeEndian.Uint32(raw[4:8])
	e := element{t0: t0, t1: t1, data: data[:]}
	acked := false
	for i := range p.Regs.Node {
		id := mcmcan.NodeID(i)
		if p.running[i] && p.BusOf(id) == External {
			p.deliver(id, e)
			acked = true
		}
	}
	return acked
}

func (p *Peripheral) ram(word uintptr) *uint32 {
	if word >= uintptr(len(p.RAM)) {
		panic(fmt.Sprintf("sim: message RAM word %d outside %d", word, len(p.RAM)))
	}
	return &p.RAM[word]
}
