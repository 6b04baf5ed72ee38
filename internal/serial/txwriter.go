package serial

import (
	"context"
	"errors"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/logging"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
	"github.com/kstaniek/go-mcmcan/internal/transport"
)

var ErrTxOverflow = errors.New("serial: tx queue full")

// TXWriter encodes frames as SLCAN commands and writes them to the adapter
// from one goroutine.
type TXWriter struct {
	q *transport.AsyncTx[can.Frame]
}

// NewTXWriter queues up to size frames for sp.
func NewTXWriter(ctx context.Context, sp Port, codec Codec, size int) *TXWriter {
	q := transport.NewAsyncTx(ctx, transport.TxConfig[can.Frame]{
		Size: size,
		Write: func(f can.Frame) error {
			_, err := sp.Write(codec.Encode(f))
			return err
		},
		OnError: func(f can.Frame, err error) {
			metrics.IncError(metrics.ErrSerialWrite)
			logging.L().Error("slcan_write_error", "frame", f.String(), "error", err)
		},
		OnWritten: func(can.Frame) { metrics.IncBackendTx() },
		OnDrop:    func(can.Frame) { metrics.IncError(metrics.ErrSerialOverflow) },
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
