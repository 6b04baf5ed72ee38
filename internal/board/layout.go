package board

import (
	"fmt"

	"github.com/kstaniek/go-mcmcan/internal/frame"
	"github.com/kstaniek/go-mcmcan/internal/mmio"
	"github.com/kstaniek/go-mcmcan/internal/msgram"
)

// Allocation is one buffer placed in message RAM.
type Allocation struct {
	Node     int     `json:"node"`
	Kind     string  `json:"kind"` // "tx" or "rx_fifo0"
	Offset   uintptr `json:"offset"`
	Elements int     `json:"elements"`
	Bytes    uintptr `json:"bytes"`
}

func (a Allocation) String() string {
	return fmt.Sprintf("node%d %-8s offset=0x%04X elements=%-2d bytes=%d", a.Node, a.Kind, a.Offset, a.Elements, a.Bytes)
}

// Plan places every node's buffers in a message RAM of ramSize bytes in
// bring-up order: per node, TX buffers then RX FIFO 0.
func (p Profile) Plan(ramSize uintptr) ([]Allocation, error) {
	a := msgram.NewAllocator(msgram.HostRegion(make([]uint32, ramSize/mmio.WordSize)))
	var out []Allocation
	for _, n := range p.Nodes {
		if n.TxBuffers > 0 {
			b, err := msgram.Take[frame.Tx[frame.Data8]](a, n.TxBuffers)
			if err != nil {
				return out, fmt.Errorf("node %d tx: %w", n.ID, err)
			}
			out = append(out, Allocation{Node: n.ID, Kind: "tx", Offset: b.Offset(), Elements: b.Len(), Bytes: b.ElementSize() * uintptr(b.Len())})
		}
		if n.RxFifo > 0 {
			b, err := msgram.Take[frame.Rx[frame.Data8]](a, n.RxFifo)
			if err != nil {
				return out, fmt.Errorf("node %d rx: %w", n.ID, err)
			}
			out = append(out, Allocation{Node: n.ID, Kind: "rx_fifo0", Offset: b.Offset(), Elements: b.Len(), Bytes: b.ElementSize() * uintptr(b.Len())})
		}
	}
	return out, nil
}
