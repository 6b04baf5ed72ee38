package socketcan

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-mcmcan/internal/can"
)

func TestWireRoundTrip(t *testing.T) {
	in, _ := can.NewFrame(can.ExtendedID(0x18DAF110), []byte{1, 2, 3, 4, 5})
	var buf [frameSize]byte
	marshalFrame(&buf, in)
	var out can.Frame
	if err := unmarshalFrame(buf[:], &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("got %v want %v", out, in)
	}
	if err := unmarshalFrame(buf[:8], &out); err == nil {
		t.Fatalf("accepted short read")
	}
	buf[4] = 15
	if err := unmarshalFrame(buf[:], &out); err != nil || out.Len != can.MaxDataLen {
		t.Fatalf("dlc not clamped: len=%d err=%v", out.Len, err)
	}
}

func TestExactFilter(t *testing.T) {
	std := ExactFilter(can.StandardID(0x123))
	ext := ExactFilter(can.ExtendedID(0x123))
	if !std.Match(0x123) || std.Match(0x123|can.CAN_EFF_FLAG) || std.Match(0x124) {
		t.Fatalf("standard filter %+v", std)
	}
	if !ext.Match(0x123|can.CAN_EFF_FLAG) || ext.Match(0x123) {
		t.Fatalf("extended filter %+v", ext)
	}
}

type fakeDev struct {
	mu      sync.Mutex
	written []can.Frame
	reads   []can.Frame
	err     error
	closed  bool
}

func (d *fakeDev) ReadFrame(fr *can.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.reads) == 0 {
		return d.err
	}
	*fr = d.reads[0]
	d.reads = d.reads[1:]
	return nil
}

func (d *fakeDev) WriteFrame(fr can.Frame) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.written = append(d.written, fr)
	return nil
}

func (d *fakeDev) Close() error { d.closed = true; return nil }

func (d *fakeDev) count() int { d.mu.Lock(); defer d.mu.Unlock(); return len(d.written) }

func TestLinkReadWrite(t *testing.T) {
	errGone := errors.New("gone")
	dev := &fakeDev{reads: []can.Frame{{CANID: 7, Len: 1}}, err: errGone}
	l := NewLink(context.Background(), dev, 4)
	var fr can.Frame
	if err := l.ReadFrame(&fr); err != nil || fr.CANID != 7 {
		t.Fatalf("read %v %v", fr, err)
	}
	if err := l.ReadFrame(&fr); !errors.Is(err, errGone) {
		t.Fatalf("err = %v", err)
	}
	if err := l.SendFrame(can.Frame{CANID: 9}); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for dev.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if dev.count() != 1 {
		t.Fatalf("written %d", dev.count())
	}
	_ = l.Close()
	if !dev.closed {
		t.Fatalf("device not closed")
	}
}
