// Package mcmcan drives the MCMCAN controller (Bosch M_CAN nodes) of the
// AURIX TC37x.
//
// A Module is claimed once from its register block and message RAM. Nodes
// taken from it start in configuration mode and move through typed states:
// connection (pins and/or internal loopback), buffer assignment (dedicated TX
// buffers, RX FIFO0) and finally Running, where frames are exchanged by
// polling. Every transition consumes the value it was called with.
package mcmcan

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/kstaniek/go-mcmcan/internal/logging"
	"github.com/kstaniek/go-mcmcan/internal/mmio"
	"github.com/kstaniek/go-mcmcan/internal/msgram"
)

// DefaultPollLimit bounds every setup wait.
const DefaultPollLimit = 1_000_000

// NodeID selects one of the module's nodes.
type NodeID uint8

const (
	Node0 NodeID = iota
	Node1
	Node2
	Node3
)

func (id NodeID) String() string { return fmt.Sprintf("node%d", uint8(id)) }

var (
	claimMu sync.Mutex
	claimed = map[*ModuleRegs]struct{}{}
)

// Module is a claimed MCMCAN instance.
type Module struct {
	regs  *ModuleRegs
	mem   *msgram.Allocator
	log   *slog.Logger
	guard mmio.Endinit
	idle  func()
	polls int
	taken uint8
}

// Option configures a Module.
type Option func(*Module)

// WithLogger sets the logger used by the module and its nodes.
func WithLogger(l *slog.Logger) Option { return func(m *Module) { m.log = l } }

// WithEndinit sets the guard used around ENDINIT-protected writes.
func WithEndinit(g mmio.Endinit) Option { return func(m *Module) { m.guard = g } }

// WithIdle sets a function run between polls of a setup wait.
func WithIdle(fn func()) Option { return func(m *Module) { m.idle = fn } }

// WithPollLimit bounds setup waits to n polls.
func WithPollLimit(n int) Option {
	return func(m *Module) {
		if n > 0 {
			m.polls = n
		}
	}
}

// New claims the module at regs and enables its kernel clock. ram is the
// module's message RAM; the returned Module owns its only allocator.
//
// Each register block can be claimed once per process.
func New(regs *ModuleRegs, ram msgram.Region, opts ...Option) (*Module, error) {
	claimMu.Lock()
	defer claimMu.Unlock()
	if _, ok := claimed[regs]; ok {
		return nil, ErrModuleClaimed
	}
	m := &Module{
		regs:  regs,
		mem:   msgram.NewAllocator(ram),
		log:   logging.L(),
		polls: DefaultPollLimit,
	}
	for _, o := range opts {
		o(m)
	}
	mmio.WithoutEndinit(m.guard, func() { regs.CLC.ClearBits(CLC_DISR) })
	if err := m.wait("CLC.DISS clear", func() bool { return !regs.CLC.HasBits(CLC_DISS) }); err != nil {
		return nil, err
	}
	claimed[regs] = struct{}{}
	m.log.Info("mcmcan_enabled", "ram_size", ram.Size())
	return m, nil
}

// Memory returns the message RAM allocator.
func (m *Module) Memory() *msgram.Allocator { return m.mem }

// Node0 takes node 0.
func (m *Module) Node0() (*Node[Disconnected, NoTx, NoRx], error) { return m.Node(Node0) }

// Node1 takes node 1.
func (m *Module) Node1() (*Node[Disconnected, NoTx, NoRx], error) { return m.Node(Node1) }

// Node enables the clock source of node id and returns it in configuration
// mode. A node can be taken once.
func (m *Module) Node(id NodeID) (*Node[Disconnected, NoTx, NoRx], error) {
	if id >= NodeCount {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNode, id)
	}
	if m.taken&(1<<id) != 0 {
		return nil, fmt.Errorf("%w: %s", ErrNodeTaken, id)
	}
	if err := m.enableClockSource(id); err != nil {
		return nil, err
	}
	c := &core{id: id, regs: &m.regs.Node[id], mod: m, log: m.log.With("node", uint8(id))}
	if err := c.claim(); err != nil {
		return nil, err
	}
	m.taken |= 1 << id
	return &Node[Disconnected, NoTx, NoRx]{c: c}, nil
}

func (m *Module) enableClockSource(id NodeID) error {
	mcr := &m.regs.MCR
	pos := uint8(id) * MCR_CLKSEL_WIDTH
	m.log.Debug("mcmcan_clock_enable", "node", uint8(id))

	mcr.SetBits(MCR_CI | MCR_CCCE)
	if err := m.wait("MCR unlock", func() bool {
		return mcr.Get()&(MCR_CI|MCR_CCCE) == MCR_CI|MCR_CCCE
	}); err != nil {
		return err
	}
	mcr.ReplaceBits(MCR_CLKSEL_BOTH, 1<<MCR_CLKSEL_WIDTH-1, pos)
	mcr.ClearBits(MCR_CI | MCR_CCCE)
	if err := m.wait("MCR lock", func() bool { return mcr.Get()&(MCR_CI|MCR_CCCE) == 0 }); err != nil {
		return err
	}
	if sel := mmio.Field[uint8](mcr.Get(), uint(pos), MCR_CLKSEL_WIDTH); sel != MCR_CLKSEL_BOTH {
		return fmt.Errorf("%w: %s clock select reads 0b%02b", ErrSetupFailed, id, sel)
	}
	return nil
}

// wait polls cond up to the poll limit.
func (m *Module) wait(what string, cond func() bool) error {
	for i := 0; i < m.polls; i++ {
		if cond() {
			return nil
		}
		if m.idle != nil {
			m.idle()
		}
	}
	return fmt.Errorf("%w: %s", ErrSetupFailed, what)
}
