// Package gateway runs MCMCAN nodes on the simulated peripheral and bridges
// them to clients and to an external backend.
//
// All driver and simulator calls happen on the goroutine running Run. Other
// goroutines reach it through Submit, the backend pump and Status.
package gateway

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-mcmcan/internal/board"
	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/frame"
	"github.com/kstaniek/go-mcmcan/internal/hub"
	"github.com/kstaniek/go-mcmcan/internal/logging"
	"github.com/kstaniek/go-mcmcan/internal/mcmcan"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
	"github.com/kstaniek/go-mcmcan/internal/sim"
	"github.com/kstaniek/go-mcmcan/internal/transport"
)

var (
	ErrQueueFull     = errors.New("gateway: transmit queue full")
	ErrNoGatewayNode = errors.New("gateway: profile has no gateway node")
)

// Defaults for Config fields left zero.
const (
	DefaultTick         = 10 * time.Millisecond
	DefaultStepsPerTick = 4
	DefaultQueue        = 256
)

// Sources of an Event.
const (
	SourceNode = "node" // read from a node's RX FIFO
	SourceBus  = "bus"  // seen on the external bus
)

// Event is a frame observed by the gateway.
type Event struct {
	Time   time.Time
	Source string
	Node   int // -1 for the external bus
	Frame  can.Frame
}

type origin uint8

const (
	fromClient origin = iota
	fromBackend
)

type inbound struct {
	frame can.Frame
	from  origin
}

// Config configures a Gateway.
type Config struct {
	Profile      board.Profile
	Tick         time.Duration
	StepsPerTick int
	Queue        int
	Hub          *hub.Hub[Event]
	Logger       *slog.Logger
}

// Gateway owns a simulated peripheral and the nodes brought up on it.
type Gateway struct {
	cfg     Config
	log     *slog.Logger
	sim     *sim.Peripheral
	mod     *mcmcan.Module
	nodes   []*node
	gw      *node
	bridged bool
	hub     *hub.Hub[Event]

	in      chan inbound
	backlog []can.Frame
	backend atomic.Pointer[backendRef]
	running atomic.Bool
	ticks   uint64

	mu     sync.RWMutex
	status Status
}

type backendRef struct {
	name string
	sink transport.FrameSink
}

// New brings up every node of cfg.Profile on a fresh simulated peripheral.
func New(cfg Config) (*Gateway, error) {
	if err := cfg.Profile.Validate(); err != nil {
		return nil, err
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.StepsPerTick <= 0 {
		cfg.StepsPerTick = DefaultStepsPerTick
	}
	if cfg.Queue <= 0 {
		cfg.Queue = DefaultQueue
	}
	if cfg.Hub == nil {
		cfg.Hub = hub.New[Event]()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.L()
	}
	p := sim.New()
	mod, err := mcmcan.New(p.Regs, p.Region(), mcmcan.WithIdle(p.Settle), mcmcan.WithLogger(cfg.Logger))
	if err != nil {
		return nil, err
	}
	g := &Gateway{
		cfg: cfg,
		log: cfg.Logger,
		sim: p,
		mod: mod,
		hub: cfg.Hub,
		in:  make(chan inbound, cfg.Queue),
	}
	for _, nc := range cfg.Profile.Nodes {
		n, err := bringUp(mod, p, nc)
		if err != nil {
			return nil, fmt.Errorf("bring up node %d: %w", nc.ID, err)
		}
		g.nodes = append(g.nodes, n)
		if nc.Role == board.RoleGateway {
			g.gw = n
			g.bridged = nc.Connection != board.ConnPins
		}
	}
	p.Tap(g.onBus)
	// a backend shares the external bus only when the gateway node is on pins
	p.SetExternalAck(func() bool { return !g.bridged && g.backend.Load() != nil })
	// let the nodes leave INIT before the first tick
	p.Settle()
	for _, n := range g.nodes {
		g.sample(n)
	}
	metrics.SetMsgRAM(mod.Memory().Used(), mod.Memory().Size())
	g.log.Info("gateway_ready", "profile", cfg.Profile.Name, "nodes", len(g.nodes), "msgram", mod.Memory().String())
	g.snapshot()
	return g, nil
}

// Hub returns the event fan-out.
func (g *Gateway) Hub() *hub.Hub[Event] { return g.hub }

// Ready reports whether the poll loop is running.
func (g *Gateway) Ready() bool { return g.running.Load() }

// Submit queues f for transmission on the gateway node.
func (g *Gateway) Submit(f can.Frame) error {
	if g.gw == nil || g.gw.tx == nil {
		return ErrNoGatewayNode
	}
	if err := f.Validate(); err != nil {
		return err
	}
	return g.enqueue(inbound{frame: f, from: fromClient})
}

func (g *Gateway) enqueue(in inbound) error {
	select {
	case g.in <- in:
		return nil
	default:
		metrics.IncError(metrics.ErrTxQueueFull)
		return ErrQueueFull
	}
}

// Run polls the nodes every tick until ctx ends.
func (g *Gateway) Run(ctx context.Context) error {
	g.running.Store(true)
	defer g.running.Store(false)
	t := time.NewTicker(g.cfg.Tick)
	defer t.Stop()
	g.log.Info("gateway_run", "tick", g.cfg.Tick, "steps", g.cfg.StepsPerTick)
	for {
		select {
		case <-ctx.Done():
			g.log.Info("gateway_stop", "ticks", g.ticks)
			return ctx.Err()
		case <-t.C:
			g.Tick()
		}
	}
}

// Tick runs one poll cycle: queued frames are transmitted, heartbeats sent,
// the bus stepped, FIFOs drained and error states sampled. Run calls it; tests
// may drive it directly instead of Run.
func (g *Gateway) Tick() {
	g.ticks++
	g.drainInbound()
	g.sendHeartbeats()
	for i := 0; i < g.cfg.StepsPerTick; i++ {
		g.sim.Step()
	}
	for _, n := range g.nodes {
		g.drainRx(n)
		g.sample(n)
	}
	g.snapshot()
}

func (g *Gateway) drainInbound() {
	for {
		select {
		case in := <-g.in:
			if in.from == fromBackend && !g.bridged {
				if !g.sim.Inject(in.frame) {
					g.log.Debug("bus_inject_unacknowledged", "frame", in.frame.String())
				}
				g.publish(SourceBus, -1, in.frame)
				continue
			}
			if g.gw == nil || g.gw.tx == nil {
				continue
			}
			g.backlog = append(g.backlog, in.frame)
		default:
			g.flushBacklog()
			return
		}
	}
}

// flushBacklog transmits queued client frames in order while buffers are free.
func (g *Gateway) flushBacklog() {
	sent := 0
	for _, f := range g.backlog {
		if !g.transmit(g.gw, f) {
			break
		}
		sent++
	}
	g.backlog = g.backlog[sent:]
	if len(g.backlog) > g.cfg.Queue {
		drop := len(g.backlog) - g.cfg.Queue
		g.log.Warn("gateway_backlog_drop", "frames", drop)
		g.backlog = g.backlog[drop:]
	}
}

func (g *Gateway) transmit(n *node, f can.Frame) bool {
	tx, err := frame.NewTx[frame.Data8](f.ID(), f.Payload())
	if err != nil {
		g.log.Warn("gateway_frame_invalid", "frame", f.String(), "error", err)
		return true
	}
	tx.SetRemote(f.Remote())
	if !n.tx.Transmit(tx) {
		n.busy++
		metrics.IncNodeTxBusy(n.cfg.ID)
		return false
	}
	n.sent++
	metrics.IncNodeTx(n.cfg.ID)
	return true
}

func (g *Gateway) sendHeartbeats() {
	for _, n := range g.nodes {
		if n.cfg.Role != board.RoleHeartbeat {
			continue
		}
		n.ticks++
		if n.ticks < n.cfg.HeartbeatEvery {
			continue
		}
		n.ticks = 0
		var data [4]byte
		binary.BigEndian.PutUint32(data[:], n.heartbeat)
		f, err := can.NewFrame(n.cfg.Heartbeat(), data[:])
		if err != nil {
			continue
		}
		if g.transmit(n, f) {
			n.heartbeat++
		}
	}
}

func (g *Gateway) drainRx(n *node) {
	if n.rx == nil {
		return
	}
	for {
		rx, ok := n.rx.TryReceive()
		if !ok {
			break
		}
		// the acknowledge takes effect before the next read
		g.sim.Settle()
		f := toFrame(&rx)
		n.received++
		metrics.IncNodeRx(n.cfg.ID)
		g.publish(SourceNode, n.cfg.ID, f)
		if n == g.gw && g.bridged {
			g.toBackend(f)
		}
	}
	if lost := n.rx.MessageLost(); lost != n.lost {
		n.lost = lost
		if lost {
			metrics.IncFifoOverrun(n.cfg.ID)
			g.log.Warn("rx_fifo0_overrun", "node", n.cfg.ID, "size", n.rx.Len())
		}
	}
}

// sample reads the error state of n once and keeps it for the snapshot.
func (g *Gateway) sample(n *node) {
	es := n.status()
	n.es = es
	st := busState(es)
	fill := 0
	if n.rx != nil {
		fill = n.rx.FillLevel()
	}
	metrics.SetNodeStatus(n.cfg.ID, fill, es.TransmitErrors, es.ReceiveErrors, st)
	if st != n.state {
		lvl := slog.LevelWarn
		if st == metrics.BusActive {
			lvl = slog.LevelInfo
		}
		g.log.Log(context.Background(), lvl, "node_error_state", "node", n.cfg.ID, "from", stateNames[n.state], "to", stateNames[st], "state", es.String())
		n.state = st
	}
}

// onBus runs inside Step for frames sent on the external bus.
func (g *Gateway) onBus(f can.Frame) {
	g.publish(SourceBus, -1, f)
	if !g.bridged {
		g.toBackend(f)
	}
}

func (g *Gateway) toBackend(f can.Frame) {
	ref := g.backend.Load()
	if ref == nil {
		return
	}
	if err := ref.sink.SendFrame(f); err != nil {
		g.log.Debug("backend_send_dropped", "backend", ref.name, "error", err)
	}
}

func (g *Gateway) publish(source string, node int, f can.Frame) {
	g.hub.Broadcast(Event{Time: time.Now(), Source: source, Node: node, Frame: f})
}

func toFrame(rx *frame.Rx[frame.Data8]) can.Frame {
	f, err := can.NewFrame(rx.ID(), rx.Data())
	if err != nil {
		return can.Frame{}
	}
	if rx.Remote() {
		f.CANID |= can.CAN_RTR_FLAG
		f.Len = rx.DLC()
		if f.Len > can.MaxDataLen {
			f.Len = can.MaxDataLen
		}
	}
	return f
}
