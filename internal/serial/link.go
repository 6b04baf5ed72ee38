package serial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/logging"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
)

// ErrReadTimeout is returned by ReadFrame when the port read timed out
// without a complete frame. It reports Timeout() true.
var ErrReadTimeout error = readTimeout{}

type readTimeout struct{}

func (readTimeout) Error() string { return "serial: read timeout" }
func (readTimeout) Timeout() bool { return true }

// Link is an opened SLCAN adapter: frames are read by ReadFrame on the
// caller's goroutine and written through a TXWriter.
type Link struct {
	port    Port
	codec   Codec
	buf     bytes.Buffer
	pending []can.Frame
	chunk   []byte
	tx      *TXWriter
}

// NewLink sends the open sequence for kbps on sp and starts its writer.
func NewLink(ctx context.Context, sp Port, kbps uint32, txBuf int) (*Link, error) {
	cmds, err := OpenCommands(kbps)
	if err != nil {
		return nil, err
	}
	if _, err := sp.Write(cmds); err != nil {
		return nil, fmt.Errorf("slcan open: %w", err)
	}
	logging.L().Info("serial_open", "kbps", kbps)
	return &Link{
		port:  sp,
		chunk: make([]byte, 256),
		tx:    NewTXWriter(ctx, sp, Codec{}, txBuf),
	}, nil
}

// ReadFrame blocks until a complete frame arrives or the port fails.
func (l *Link) ReadFrame(f *can.Frame) error {
	for len(l.pending) == 0 {
		n, err := l.port.Read(l.chunk)
		if n > 0 {
			l.buf.Write(l.chunk[:n])
			_ = l.codec.DecodeStream(&l.buf, func(fr can.Frame) { l.pending = append(l.pending, fr) })
		}
		if errors.Is(err, io.EOF) {
			// tarm reports an expired read timeout as EOF
			return ErrReadTimeout
		}
		if err != nil {
			metrics.IncError(metrics.ErrSerialRead)
			return err
		}
	}
	*f = l.pending[0]
	l.pending = l.pending[1:]
	metrics.IncBackendRx()
	return nil
}

// SendFrame queues f for the adapter.
func (l *Link) SendFrame(f can.Frame) error { return l.tx.SendFrame(f) }

// Close stops the writer, closes the channel on the adapter and the port.
func (l *Link) Close() error {
	l.tx.Close()
	_, _ = l.port.Write([]byte{'C', '\r'})
	return l.port.Close()
}
