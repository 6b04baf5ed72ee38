package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-mcmcan/internal/board"
	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/logging"
	"github.com/kstaniek/go-mcmcan/internal/serial"
	"github.com/kstaniek/go-mcmcan/internal/socketcan"
	"github.com/kstaniek/go-mcmcan/internal/transport"
)

func testLogger() *slog.Logger { return logging.Discard() }

// fakeSerialPort returns one SLCAN line then read timeouts.
type fakeSerialPort struct {
	mu     sync.Mutex
	data   []byte
	writes []byte
}

func (f *fakeSerialPort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func (f *fakeSerialPort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, p...)
	return len(p), nil
}

func (f *fakeSerialPort) Close() error { return nil }

func TestSerialBackendOpener(t *testing.T) {
	fp := &fakeSerialPort{data: []byte("t1232ABCD\r")}
	old := openSerialPort
	var gotDev string
	var gotBaud int
	openSerialPort = func(name string, baud int, _ time.Duration) (serial.Port, error) {
		gotDev, gotBaud = name, baud
		return fp, nil
	}
	t.Cleanup(func() { openSerialPort = old })

	c := defaultConfig()
	c.backend = "serial"
	c.serialDev = "/dev/fake"
	p := board.Default()
	p.Nodes[0].BitrateKbps = 50
	var logs bytes.Buffer
	l := logging.New("text", slog.LevelInfo, &logs)
	prev := logging.L()
	logging.Set(l)
	t.Cleanup(func() { logging.Set(prev) })
	open, err := backendOpener(&c, p, l)
	if err != nil || open == nil {
		t.Fatalf("backendOpener: %v", err)
	}
	be, err := open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer be.Close()
	if n := strings.Count(logs.String(), "serial_open"); n != 1 {
		t.Fatalf("serial_open logged %d times", n)
	}
	if gotDev != "/dev/fake" || gotBaud != 115200 {
		t.Fatalf("opened %s at %d", gotDev, gotBaud)
	}
	fp.mu.Lock()
	opened := string(fp.writes)
	fp.mu.Unlock()
	if opened != "C\rS2\rO\r" {
		t.Fatalf("open sequence %q, want 50 kbit/s", opened)
	}
	var fr can.Frame
	if err := be.ReadFrame(&fr); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if fr.ID() != can.StandardID(0x123) || fr.Len != 2 || fr.Data[0] != 0xAB {
		t.Fatalf("frame %s", fr)
	}
	if err := be.ReadFrame(&fr); !transport.IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestSerialBackendOpenError(t *testing.T) {
	old := openSerialPort
	openSerialPort = func(string, int, time.Duration) (serial.Port, error) { return nil, errors.New("busy") }
	t.Cleanup(func() { openSerialPort = old })
	c := defaultConfig()
	c.backend = "serial"
	open, _ := backendOpener(&c, board.Default(), testLogger())
	if _, err := open(context.Background()); err == nil {
		t.Fatal("expected open error")
	}
}

type fakeSocketDev struct {
	mu     sync.Mutex
	frames []can.Frame
	closed bool
}

func (d *fakeSocketDev) ReadFrame(fr *can.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.frames) == 0 {
		return io.EOF
	}
	*fr = d.frames[0]
	d.frames = d.frames[1:]
	return nil
}

func (d *fakeSocketDev) WriteFrame(can.Frame) error { return nil }
func (d *fakeSocketDev) Close() error               { d.mu.Lock(); d.closed = true; d.mu.Unlock(); return nil }

func TestSocketCANBackendOpener(t *testing.T) {
	want, _ := can.NewFrame(can.ExtendedID(0x18FF00AA), []byte{1})
	dev := &fakeSocketDev{frames: []can.Frame{want}}
	old := openSocketCAN
	var opts socketcan.Options
	openSocketCAN = func(iface string, o socketcan.Options) (socketcan.Dev, error) {
		opts = o
		return dev, nil
	}
	t.Cleanup(func() { openSocketCAN = old })

	c := defaultConfig()
	c.backend = "socketcan"
	open, err := backendOpener(&c, board.Default(), testLogger())
	if err != nil {
		t.Fatalf("backendOpener: %v", err)
	}
	be, err := open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if opts.ReadTimeout != c.canReadTO {
		t.Fatalf("read timeout %v", opts.ReadTimeout)
	}
	var fr can.Frame
	if err := be.ReadFrame(&fr); err != nil || fr != want {
		t.Fatalf("ReadFrame %s %v", fr, err)
	}
	_ = be.Close()
	if !dev.closed {
		t.Fatal("device not closed")
	}
}

func TestBackendOpenerNoneAndUnknown(t *testing.T) {
	c := defaultConfig()
	if open, err := backendOpener(&c, board.Default(), testLogger()); err != nil || open != nil {
		t.Fatalf("none: %v %v", open, err)
	}
	c.backend = "usb"
	if _, err := backendOpener(&c, board.Default(), testLogger()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestBusBitrate(t *testing.T) {
	p := board.Default()
	p.Nodes[0].BitrateKbps = 50
	if got := busBitrate(p); got != 50 {
		t.Fatalf("gateway bitrate %d", got)
	}
	p.Nodes = p.Nodes[1:]
	if got := busBitrate(p); got != 500 {
		t.Fatalf("first node bitrate %d", got)
	}
}
