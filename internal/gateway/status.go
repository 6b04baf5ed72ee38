package gateway

import (
	"github.com/kstaniek/go-mcmcan/internal/board"
	"github.com/kstaniek/go-mcmcan/internal/mcmcan"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
)

var stateNames = map[int]string{
	metrics.BusActive:  "active",
	metrics.BusWarning: "warning",
	metrics.BusPassive: "error_passive",
	metrics.BusOff:     "bus_off",
}

func busState(es mcmcan.ErrorState) int {
	switch {
	case es.Protocol.BusOff:
		return metrics.BusOff
	case es.Protocol.ErrorPassive:
		return metrics.BusPassive
	case es.Protocol.Warning:
		return metrics.BusWarning
	}
	return metrics.BusActive
}

// NodeStatus is the last sampled state of one node.
type NodeStatus struct {
	ID          int              `json:"id"`
	Role        board.Role       `json:"role"`
	Connection  board.Connection `json:"connection"`
	Bus         string           `json:"bus"`
	BitrateKbps uint32           `json:"bitrate_kbps"`
	RxFifo      int              `json:"rx_fifo"`
	TxBuffers   int              `json:"tx_buffers"`
	FillLevel   int              `json:"fill_level"`
	TxPending   uint32           `json:"tx_pending"`
	MessageLost bool             `json:"message_lost"`
	TEC         uint8            `json:"tec"`
	REC         uint8            `json:"rec"`
	State       string           `json:"state"`
	Activity    string           `json:"activity"`
	LastError   string           `json:"last_error"`
	Received    uint64           `json:"received"`
	Sent        uint64           `json:"sent"`
	TxBusy      uint64           `json:"tx_busy"`
}

// Status is a point-in-time view of the gateway.
type Status struct {
	Profile   string       `json:"profile"`
	Running   bool         `json:"running"`
	Ticks     uint64       `json:"ticks"`
	Bridged   bool         `json:"bridged"`
	Backend   string       `json:"backend,omitempty"`
	Backlog   int          `json:"backlog"`
	MsgRAM    MsgRAM       `json:"msgram"`
	Nodes     []NodeStatus `json:"nodes"`
	HubClient int          `json:"hub_clients"`
}

// MsgRAM summarizes message RAM usage in bytes.
type MsgRAM struct {
	Used uintptr `json:"used"`
	Size uintptr `json:"size"`
}

// snapshot runs on the poll goroutine.
func (g *Gateway) snapshot() {
	s := Status{
		Profile: g.cfg.Profile.Name,
		Ticks:   g.ticks,
		Bridged: g.bridged,
		Backlog: len(g.backlog),
		MsgRAM:  MsgRAM{Used: g.mod.Memory().Used(), Size: g.mod.Memory().Size()},
		Nodes:   make([]NodeStatus, 0, len(g.nodes)),
	}
	for _, n := range g.nodes {
		es := n.es
		ns := NodeStatus{
			ID:          n.cfg.ID,
			Role:        n.cfg.Role,
			Connection:  n.cfg.Connection,
			Bus:         g.sim.BusOf(n.id).String(),
			BitrateKbps: n.cfg.BitrateKbps,
			RxFifo:      n.cfg.RxFifo,
			TxBuffers:   n.cfg.TxBuffers,
			MessageLost: n.lost,
			TEC:         es.TransmitErrors,
			REC:         es.ReceiveErrors,
			State:       stateNames[busState(es)],
			Activity:    es.Protocol.Activity.String(),
			LastError:   es.Protocol.LastError.String(),
			Received:    n.received,
			Sent:        n.sent,
			TxBusy:      n.busy,
		}
		if n.rx != nil {
			ns.FillLevel = n.rx.FillLevel()
		}
		if n.tx != nil {
			ns.TxPending = n.tx.Pending()
		}
		s.Nodes = append(s.Nodes, ns)
	}
	g.mu.Lock()
	g.status = s
	g.mu.Unlock()
}

// Status returns the state sampled at the end of the last tick.
func (g *Gateway) Status() Status {
	g.mu.RLock()
	s := g.status
	g.mu.RUnlock()
	s.Nodes = append([]NodeStatus(nil), s.Nodes...)
	s.Running = g.Ready()
	s.HubClient = g.hub.Count()
	if ref := g.backend.Load(); ref != nil {
		s.Backend = ref.name
	}
	return s
}

// Layout lists the message RAM allocations made at bring-up.
func (g *Gateway) Layout() []board.Allocation {
	var out []board.Allocation
	for _, n := range g.nodes {
		out = append(out, n.layout...)
	}
	return out
}
