package mcmcan

import (
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-mcmcan/internal/mmio"
	"github.com/kstaniek/go-mcmcan/internal/timing"
)

// core is the state shared by every typed view of one node.
type core struct {
	id   NodeID
	regs *NodeRegs
	mod  *Module
	log  *slog.Logger
}

// claim puts the node into configuration mode, first leaving it if a previous
// run left INIT set.
func (c *core) claim() error {
	if c.regs.CCCR.HasBits(CCCR_INIT) {
		c.log.Warn("node_init_already_set", "action", "reset")
		if err := c.leaveConfig(); err != nil {
			return err
		}
	}
	return c.enterConfig()
}

// enterConfig sets INIT then CCE, each until it reads back set.
func (c *core) enterConfig() error {
	cccr := &c.regs.CCCR
	if err := c.mod.wait("CCCR.INIT set", func() bool {
		if cccr.HasBits(CCCR_INIT) {
			return true
		}
		cccr.SetBits(CCCR_INIT)
		return false
	}); err != nil {
		return err
	}
	return c.mod.wait("CCCR.CCE set", func() bool {
		if cccr.HasBits(CCCR_CCE) {
			return true
		}
		cccr.SetBits(CCCR_CCE)
		return false
	})
}

// leaveConfig clears CCE then INIT, each until it reads back clear.
func (c *core) leaveConfig() error {
	cccr := &c.regs.CCCR
	if err := c.mod.wait("CCCR.CCE clear", func() bool {
		cccr.ClearBits(CCCR_CCE)
		return !cccr.HasBits(CCCR_CCE)
	}); err != nil {
		return err
	}
	return c.mod.wait("CCCR.INIT clear", func() bool {
		cccr.ClearBits(CCCR_INIT)
		return !cccr.HasBits(CCCR_INIT)
	})
}

// Node is a node in configuration mode. C tracks its connection, T and R the
// attached transmit and receive engines.
//
// Values are single use: a transition returns a new Node and any later call
// on the old one panics with ErrStateConsumed.
type Node[C, T, R any] struct {
	c  *core
	tx T
	rx R
}

func (n *Node[C, T, R]) state() *core {
	if n == nil || n.c == nil {
		panic(ErrStateConsumed)
	}
	return n.c
}

func (n *Node[C, T, R]) consume() *core {
	c := n.state()
	n.c = nil
	return c
}

// ID returns the node index.
func (n *Node[C, T, R]) ID() NodeID { return n.state().id }

// SetBitrate programs the nominal bit timing.
func (n *Node[C, T, R]) SetBitrate(b timing.Bitrate) error {
	c := n.state()
	if err := b.Validate(); err != nil {
		return err
	}
	v := c.regs.NBTP.Get()
	v = mmio.SetField(v, NBTP_NSJW_POS, NBTP_NSJW_WIDTH, b.SyncJumpWidth-1)
	v = mmio.SetField(v, NBTP_NTSEG1_POS, NBTP_NTSEG1_WIDTH, b.TSeg1-1)
	v = mmio.SetField(v, NBTP_NTSEG2_POS, NBTP_NTSEG2_WIDTH, b.TSeg2-1)
	v = mmio.SetField(v, NBTP_NBRP_POS, NBTP_NBRP_WIDTH, b.Prescaler-1)
	c.regs.NBTP.Set(v)
	c.log.Debug("node_bitrate", "timing", b.String())
	return nil
}

// Finalize leaves configuration mode. It only accepts connected nodes. On a
// setup failure n stays valid.
func Finalize[C Connected, T, R any](n *Node[C, T, R]) (*Running[T, R], error) {
	c := n.state()
	if err := c.leaveConfig(); err != nil {
		return nil, fmt.Errorf("finalize %s: %w", c.id, err)
	}
	n.c = nil
	c.log.Info("node_running")
	return &Running[T, R]{c: c, tx: n.tx, rx: n.rx}, nil
}

// Running is a node taking part in bus traffic.
type Running[T, R any] struct {
	c  *core
	tx T
	rx R
}

// ID returns the node index.
func (r *Running[T, R]) ID() NodeID { return r.c.id }

// TX returns the transmit engine.
func (r *Running[T, R]) TX() T { return r.tx }

// RX returns the receive engine.
func (r *Running[T, R]) RX() R { return r.rx }
