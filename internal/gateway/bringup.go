package gateway

import (
	"fmt"

	"github.com/kstaniek/go-mcmcan/internal/board"
	"github.com/kstaniek/go-mcmcan/internal/frame"
	"github.com/kstaniek/go-mcmcan/internal/mcmcan"
	"github.com/kstaniek/go-mcmcan/internal/msgram"
	"github.com/kstaniek/go-mcmcan/internal/port"
	"github.com/kstaniek/go-mcmcan/internal/sim"
	"github.com/kstaniek/go-mcmcan/internal/timing"
)

type (
	txEngine interface {
		Len() int
		Pending() uint32
		Transmit(frame.Tx[frame.Data8]) bool
	}
	rxEngine interface {
		Len() int
		FillLevel() int
		MessageLost() bool
		TryReceive() (frame.Rx[frame.Data8], bool)
	}
)

// node is a running node seen through its optional engines.
type node struct {
	cfg    board.Node
	id     mcmcan.NodeID
	tx     txEngine
	rx     rxEngine
	status func() mcmcan.ErrorState
	layout []board.Allocation

	lost      bool
	es        mcmcan.ErrorState // last sample; reading PSR clears its error code
	state     int
	heartbeat uint32
	ticks     int
	received  uint64
	sent      uint64
	busy      uint64
}

// bringUp takes node cfg.ID from m and runs it through the configuration
// states the profile asks for.
func bringUp(m *mcmcan.Module, p *sim.Peripheral, cfg board.Node) (*node, error) {
	id := mcmcan.NodeID(cfg.ID)
	n, err := m.Node(id)
	if err != nil {
		return nil, err
	}
	br, err := timing.FromFrequency(cfg.BitrateKbps)
	if err != nil {
		return nil, err
	}
	if err := n.SetBitrate(br); err != nil {
		return nil, err
	}
	switch cfg.Connection {
	case board.ConnLoopback:
		return attach(m, mcmcan.ConnectInternalLoopback(n), cfg)
	case board.ConnPins:
		return attach(m, mcmcan.SetPins(n, pinFor(p, id)), cfg)
	case board.ConnBoth:
		return attach(m, mcmcan.ConnectInternalLoopback(mcmcan.SetPins(n, pinFor(p, id))), cfg)
	}
	return nil, fmt.Errorf("%s: connection %q", id, cfg.Connection)
}

func pinFor(p *sim.Peripheral, id mcmcan.NodeID) mcmcan.Pin {
	if id == mcmcan.Node0 {
		return port.Node0P20(p.P20, nil)
	}
	return port.Node1P15(p.P15, nil)
}

// attach allocates the node's buffers, TX first, and finalizes it.
func attach[C mcmcan.Connected](m *mcmcan.Module, n *mcmcan.Node[C, mcmcan.NoTx, mcmcan.NoRx], cfg board.Node) (*node, error) {
	out := &node{cfg: cfg, id: n.ID()}
	var txb *msgram.Buffer[frame.Tx[frame.Data8]]
	var rxb *msgram.Buffer[frame.Rx[frame.Data8]]
	var err error
	if cfg.TxBuffers > 0 {
		if txb, err = msgram.Take[frame.Tx[frame.Data8]](m.Memory(), cfg.TxBuffers); err != nil {
			return nil, fmt.Errorf("%s tx buffers: %w", out.id, err)
		}
		out.layout = append(out.layout, allocation(cfg.ID, "tx", txb.Offset(), txb.Len(), txb.ElementSize()))
	}
	if cfg.RxFifo > 0 {
		if rxb, err = msgram.Take[frame.Rx[frame.Data8]](m.Memory(), cfg.RxFifo); err != nil {
			return nil, fmt.Errorf("%s rx fifo: %w", out.id, err)
		}
		out.layout = append(out.layout, allocation(cfg.ID, "rx_fifo0", rxb.Offset(), rxb.Len(), rxb.ElementSize()))
	}

	switch {
	case txb != nil && rxb != nil:
		withTx, err := mcmcan.SetTx(n, txb)
		if err != nil {
			return nil, err
		}
		withRx, err := mcmcan.SetRxFifo0(withTx, rxb)
		if err != nil {
			return nil, err
		}
		r, err := mcmcan.Finalize(withRx)
		if err != nil {
			return nil, err
		}
		out.tx, out.rx, out.status = r.TX(), r.RX(), r.ErrorState
	case txb != nil:
		withTx, err := mcmcan.SetTx(n, txb)
		if err != nil {
			return nil, err
		}
		r, err := mcmcan.Finalize(withTx)
		if err != nil {
			return nil, err
		}
		out.tx, out.status = r.TX(), r.ErrorState
	case rxb != nil:
		withRx, err := mcmcan.SetRxFifo0(n, rxb)
		if err != nil {
			return nil, err
		}
		r, err := mcmcan.Finalize(withRx)
		if err != nil {
			return nil, err
		}
		out.rx, out.status = r.RX(), r.ErrorState
	default:
		r, err := mcmcan.Finalize(n)
		if err != nil {
			return nil, err
		}
		out.status = r.ErrorState
	}
	return out, nil
}

func allocation(node int, kind string, off uintptr, n int, size uintptr) board.Allocation {
	return board.Allocation{Node: node, Kind: kind, Offset: off, Elements: n, Bytes: size * uintptr(n)}
}
