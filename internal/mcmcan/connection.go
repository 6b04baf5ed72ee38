package mcmcan

// Pin is a board-provided RX/TX pin pair for one node.
type Pin interface {
	// Configure sets up the port electrical mode of both pins.
	Configure()
	// RxSel is the NPCR.RXSEL code routing the RX pin to the node.
	RxSel() uint8
}

// Connection states.
type (
	NoPins     struct{}
	Pins       struct{}
	NoLoopback struct{}
	Loopback   struct{}
)

// Connection tags a node with its pin state P and internal bus state L.
type Connection[P, L any] struct{}

// Disconnected is the connection state of a freshly taken node.
type Disconnected = Connection[NoPins, NoLoopback]

// Connected is satisfied by pins, internal loopback, or both.
type Connected interface {
	Connection[Pins, NoLoopback] | Connection[NoPins, Loopback] | Connection[Pins, Loopback]
}

// SetPins configures pin and routes it to the node.
func SetPins[L, T, R any](n *Node[Connection[NoPins, L], T, R], pin Pin) *Node[Connection[Pins, L], T, R] {
	c := n.consume()
	pin.Configure()
	c.regs.NPCR.ReplaceBits(uint32(pin.RxSel()), 1<<NPCR_RXSEL_WIDTH-1, NPCR_RXSEL_POS)
	c.log.Debug("node_pins_set", "rxsel", pin.RxSel())
	return &Node[Connection[Pins, L], T, R]{c: c, tx: n.tx, rx: n.rx}
}

// ConnectInternalLoopback attaches the node to the module's internal bus.
func ConnectInternalLoopback[P, T, R any](n *Node[Connection[P, NoLoopback], T, R]) *Node[Connection[P, Loopback], T, R] {
	c := n.consume()
	c.regs.NPCR.SetBits(NPCR_LBM)
	c.log.Debug("node_loopback_connected")
	return &Node[Connection[P, Loopback], T, R]{c: c, tx: n.tx, rx: n.rx}
}
