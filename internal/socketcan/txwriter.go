package socketcan

import (
	"context"
	"errors"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
	"github.com/kstaniek/go-mcmcan/internal/transport"
)

var ErrTxOverflow = errors.New("socketcan: tx queue full")

// Dev is the minimal interface needed by Link and TXWriter.
// Implemented by *Device in production and by fakes in tests.
type Dev interface {
	ReadFrame(*can.Frame) error
	WriteFrame(can.Frame) error
	Close() error
}

// TXWriter writes frames to the device from one goroutine.
type TXWriter struct {
	q *transport.AsyncTx[can.Frame]
}

// NewTXWriter queues up to size frames for dev.
func NewTXWriter(ctx context.Context, dev Dev, size int) *TXWriter {
	q := transport.NewAsyncTx(ctx, transport.TxConfig[can.Frame]{
		Size:      size,
		Write:     dev.WriteFrame,
		OnError:   func(can.Frame, error) { metrics.IncError(metrics.ErrSocketCANWrite) },
		OnWritten: func(can.Frame) { metrics.IncBackendTx() },
		OnDrop:    func(can.Frame) { metrics.IncError(metrics.ErrSocketCANOver) },
		Overflow:  ErrTxOverflow,
	})
	return &TXWriter{q: q}
}

// SendFrame queues f. It returns ErrTxOverflow when the queue is full.
func (w *TXWriter) SendFrame(f can.Frame) error { return w.q.Send(f) }

// Stats reports the writer's counters.
func (w *TXWriter) Stats() transport.TxStats { return w.q.Stats() }

// Close flushes queued frames and stops the writer.
func (w *TXWriter) Close() { w.q.Close() }

// Link pairs a device with its writer.
type Link struct {
	dev Dev
	tx  *TXWriter
}

// NewLink starts a writer for dev.
func NewLink(ctx context.Context, dev Dev, txBuf int) *Link {
	return &Link{dev: dev, tx: NewTXWriter(ctx, dev, txBuf)}
}

// ReadFrame reads one frame from the device.
func (l *Link) ReadFrame(fr *can.Frame) error {
	if err := l.dev.ReadFrame(fr); err != nil {
		if !transport.IsTimeout(err) {
			metrics.IncError(metrics.ErrSocketCANRead)
		}
		return err
	}
	metrics.IncBackendRx()
	return nil
}

// SendFrame queues fr for the device.
func (l *Link) SendFrame(fr can.Frame) error { return l.tx.SendFrame(fr) }

// Close stops the writer and closes the device.
func (l *Link) Close() error {
	l.tx.Close()
	return l.dev.Close()
}
