package port

import "github.com/kstaniek/go-mcmcan/internal/mmio"

// CANPin is an RX/TX pin pair on one port routed to a CAN node.
type CANPin struct {
	Port     *Regs
	Rx, Tx   uint8
	RxDriver uint8
	TxDriver uint8
	TxAlt    uint8
	Sel      uint8
	Guard    mmio.Endinit
}

// Configure sets RX as input with pull-up and TX as push-pull output on the
// CAN alternate function.
func (p CANPin) Configure() {
	mmio.WithoutEndinit(p.Guard, func() {
		p.Port.SetMode(p.Rx, InputPullUp)
		p.Port.SetDriver(p.Rx, p.RxDriver)
		p.Port.SetMode(p.Tx, PushPullAlt+p.TxAlt)
		p.Port.SetDriver(p.Tx, p.TxDriver)
	})
}

// RxSel returns the node's receive input select code.
func (p CANPin) RxSel() uint8 { return p.Sel }

// Node0P20 is CAN0 node 0 on P20.7 (RXDB) and P20.8.
func Node0P20(p20 *Regs, g mmio.Endinit) CANPin {
	return CANPin{Port: p20, Rx: 7, Tx: 8, RxDriver: 0, TxDriver: 1, TxAlt: 5, Sel: 0b001, Guard: g}
}

// Node1P15 is CAN0 node 1 on P15.3 (RXDA) and P15.2.
func Node1P15(p15 *Regs, g mmio.Endinit) CANPin {
	return CANPin{Port: p15, Rx: 3, Tx: 2, RxDriver: 0, TxDriver: 0, TxAlt: 5, Sel: 0, Guard: g}
}
