package board

import (
	"errors"
	"strings"
	"testing"

	"github.com/kstaniek/go-mcmcan/internal/msgram"
)

const sample = `
version: 1.2.0
name: bench
nodes:
  - id: 0
    bitrate_kbps: 500
    connection: both
    rx_fifo: 16
    tx_buffers: 8
    role: gateway
  - id: 2
    bitrate_kbps: 50
    connection: loopback
    rx_fifo: 0
    tx_buffers: 1
    role: heartbeat
    heartbeat_id: 0x1ABCDE
    heartbeat_extended: true
    heartbeat_every: 10
`

func TestParseSample(t *testing.T) {
	p, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "bench" || len(p.Nodes) != 2 || p.Nodes[1].HeartbeatID != 0x1ABCDE {
		t.Fatalf("profile %+v", p)
	}
	if !p.Nodes[1].Heartbeat().Extended() {
		t.Fatalf("heartbeat id not extended")
	}
}

func TestDefaultRoundTrip(t *testing.T) {
	b, err := Default().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	p, err := Parse(b)
	if err != nil {
		t.Fatalf("default does not parse: %v\n%s", err, b)
	}
	if len(p.Nodes) != 2 || p.Nodes[0].Role != RoleGateway {
		t.Fatalf("profile %+v", p)
	}
}

func TestParseRejects(t *testing.T) {
	cases := []struct {
		name string
		edit func(string) string
		err  error
	}{
		{"major version", func(s string) string { return strings.Replace(s, "1.2.0", "2.0.0", 1) }, ErrUnsupportedVersion},
		{"not semver", func(s string) string { return strings.Replace(s, "1.2.0", "latest", 1) }, ErrUnsupportedVersion},
		{"unknown field", func(s string) string { return s + "extra: 1\n" }, ErrInvalidProfile},
		{"bitrate", func(s string) string { return strings.Replace(s, "bitrate_kbps: 50\n", "bitrate_kbps: 125\n", 1) }, ErrInvalidProfile},
		{"pins on node 2", func(s string) string { return strings.Replace(s, "connection: loopback", "connection: pins", 1) }, ErrInvalidProfile},
		{"duplicate id", func(s string) string { return strings.Replace(s, "id: 2", "id: 0", 1) }, ErrInvalidProfile},
		{"fifo too deep", func(s string) string { return strings.Replace(s, "rx_fifo: 16", "rx_fifo: 33", 1) }, ErrInvalidProfile},
		{"32 tx buffers", func(s string) string { return strings.Replace(s, "tx_buffers: 8", "tx_buffers: 32", 1) }, ErrInvalidProfile},
		{"heartbeat period", func(s string) string { return strings.Replace(s, "heartbeat_every: 10", "heartbeat_every: 0", 1) }, ErrInvalidProfile},
		{"role", func(s string) string { return strings.Replace(s, "role: heartbeat", "role: spy", 1) }, ErrInvalidProfile},
		{"standard id too wide", func(s string) string {
			return strings.Replace(s, "heartbeat_extended: true", "heartbeat_extended: false", 1)
		}, ErrInvalidProfile},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := Parse([]byte(c.edit(sample))); !errors.Is(err, c.err) {
				t.Fatalf("err = %v, want %v", err, c.err)
			}
		})
	}
}

func TestPlanIsDisjointAndOrdered(t *testing.T) {
	p, _ := Parse([]byte(sample))
	plan, err := p.Plan(0x8000)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 3 {
		t.Fatalf("plan %v", plan)
	}
	var end uintptr
	for _, a := range plan {
		if a.Offset < end || a.Offset%4 != 0 {
			t.Fatalf("overlap or misaligned at %s", a)
		}
		end = a.Offset + a.Bytes
	}
	// 8 tx + 16 rx elements of 16 bytes each, then 1 tx
	if plan[0].Kind != "tx" || plan[1].Offset != 8*16 || plan[2].Offset != 24*16 {
		t.Fatalf("plan %v", plan)
	}
	if _, err := p.Plan(64); !errors.Is(err, msgram.ErrOutOfMemory) {
		t.Fatalf("tiny ram: %v", err)
	}
}
