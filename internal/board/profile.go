// Package board describes which MCMCAN nodes a bridge brings up and how: bit
// rate, connection, buffer sizes and role.
package board

import (
	"errors"
	"fmt"
	"os"

	"github.com/Masterminds/semver"
	"gopkg.in/yaml.v2"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/timing"
)

// SchemaVersion is written by Default; SchemaConstraint is what Parse accepts.
const (
	SchemaVersion    = "1.0.0"
	SchemaConstraint = ">= 1.0, < 2.0"
)

// Limits of one node's buffers.
const (
	MaxRxFifo    = 32
	MaxTxBuffers = 31
	NodeCount    = 4
)

var (
	ErrUnsupportedVersion = errors.New("board: unsupported profile version")
	ErrInvalidProfile     = errors.New("board: invalid profile")
)

type Connection string

const (
	ConnPins     Connection = "pins"
	ConnLoopback Connection = "loopback"
	ConnBoth     Connection = "both"
)

type Role string

const (
	RoleGateway   Role = "gateway"
	RoleHeartbeat Role = "heartbeat"
	RoleIdle      Role = "idle"
)

// Node is one node's bring-up description.
type Node struct {
	ID                int        `yaml:"id" json:"id"`
	BitrateKbps       uint32     `yaml:"bitrate_kbps" json:"bitrate_kbps"`
	Connection        Connection `yaml:"connection" json:"connection"`
	RxFifo            int        `yaml:"rx_fifo" json:"rx_fifo"`
	TxBuffers         int        `yaml:"tx_buffers" json:"tx_buffers"`
	Role              Role       `yaml:"role" json:"role"`
	HeartbeatID       uint32     `yaml:"heartbeat_id,omitempty" json:"heartbeat_id,omitempty"`
	HeartbeatExtended bool       `yaml:"heartbeat_extended,omitempty" json:"heartbeat_extended,omitempty"`
	// HeartbeatEvery is the heartbeat period in poll ticks.
	HeartbeatEvery int `yaml:"heartbeat_every,omitempty" json:"heartbeat_every,omitempty"`
}

// Heartbeat returns the identifier heartbeat frames are sent with.
func (n Node) Heartbeat() can.ID {
	if n.HeartbeatExtended {
		return can.ExtendedID(n.HeartbeatID)
	}
	return can.StandardID(uint16(n.HeartbeatID))
}

// Profile is a board description.
type Profile struct {
	Version string `yaml:"version" json:"version"`
	Name    string `yaml:"name,omitempty" json:"name,omitempty"`
	Nodes   []Node `yaml:"nodes" json:"nodes"`
}

// Default is node 0 as gateway and node 1 sending heartbeats, both on the
// internal loopback bus at 500 kbit/s.
func Default() Profile {
	return Profile{
		Version: SchemaVersion,
		Name:    "loopback-pair",
		Nodes: []Node{
			{ID: 0, BitrateKbps: 500, Connection: ConnLoopback, RxFifo: 8, TxBuffers: 4, Role: RoleGateway},
			{ID: 1, BitrateKbps: 500, Connection: ConnLoopback, RxFifo: 4, TxBuffers: 2, Role: RoleHeartbeat,
				HeartbeatID: 0x700, HeartbeatEvery: 100},
		},
	}
}

// Parse decodes a YAML profile strictly and validates it.
func Parse(b []byte) (Profile, error) {
	var p Profile
	if err := yaml.UnmarshalStrict(b, &p); err != nil {
		return Profile{}, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// Load reads and parses the profile at path.
func Load(path string) (Profile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	return Parse(b)
}

// Marshal renders p as YAML.
func (p Profile) Marshal() ([]byte, error) { return yaml.Marshal(p) }

func checkVersion(s string) error {
	v, err := semver.NewVersion(s)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrUnsupportedVersion, s, err)
	}
	c, err := semver.NewConstraint(SchemaConstraint)
	if err != nil {
		return err
	}
	if !c.Check(v) {
		return fmt.Errorf("%w: %s, require %s", ErrUnsupportedVersion, s, SchemaConstraint)
	}
	return nil
}

// Validate checks the version and every node.
func (p Profile) Validate() error {
	if err := checkVersion(p.Version); err != nil {
		return err
	}
	if len(p.Nodes) == 0 {
		return fmt.Errorf("%w: no nodes", ErrInvalidProfile)
	}
	var seen [NodeCount]bool
	gateways := 0
	for _, n := range p.Nodes {
		if err := n.validate(); err != nil {
			return fmt.Errorf("%w: node %d: %v", ErrInvalidProfile, n.ID, err)
		}
		if seen[n.ID] {
			return fmt.Errorf("%w: node %d listed twice", ErrInvalidProfile, n.ID)
		}
		seen[n.ID] = true
		if n.Role == RoleGateway {
			gateways++
		}
	}
	if gateways > 1 {
		return fmt.Errorf("%w: %d gateway nodes, at most one", ErrInvalidProfile, gateways)
	}
	return nil
}

func (n Node) validate() error {
	if n.ID < 0 || n.ID >= NodeCount {
		return fmt.Errorf("id outside 0..%d", NodeCount-1)
	}
	if _, err := timing.FromFrequency(n.BitrateKbps); err != nil {
		return err
	}
	switch n.Connection {
	case ConnLoopback:
	case ConnPins, ConnBoth:
		if n.ID > 1 {
			return errors.New("pins are only wired for nodes 0 and 1")
		}
	default:
		return fmt.Errorf("connection %q", n.Connection)
	}
	if n.RxFifo < 0 || n.RxFifo > MaxRxFifo {
		return fmt.Errorf("rx_fifo %d outside 0..%d", n.RxFifo, MaxRxFifo)
	}
	if n.TxBuffers < 0 || n.TxBuffers > MaxTxBuffers {
		return fmt.Errorf("tx_buffers %d outside 0..%d", n.TxBuffers, MaxTxBuffers)
	}
	switch n.Role {
	case RoleGateway:
		if n.RxFifo == 0 || n.TxBuffers == 0 {
			return errors.New("gateway needs rx_fifo and tx_buffers")
		}
	case RoleHeartbeat:
		if n.TxBuffers == 0 || n.HeartbeatEvery <= 0 {
			return errors.New("heartbeat needs tx_buffers and heartbeat_every")
		}
		if !n.HeartbeatExtended && n.HeartbeatID > can.CAN_SFF_MASK {
			return can.ErrInvalidID
		}
		if err := n.Heartbeat().Validate(); err != nil {
			return err
		}
	case RoleIdle:
	default:
		return fmt.Errorf("role %q", n.Role)
	}
	return nil
}
