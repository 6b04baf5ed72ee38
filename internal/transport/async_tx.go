package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrAsyncTxClosed is returned by Send after Close.
var ErrAsyncTxClosed = errors.New("transport: async tx closed")

// TxConfig describes how an AsyncTx writes its items.
type TxConfig[T any] struct {
	// Size is the queue capacity.
	Size int
	// Write puts one item on the wire.
	Write func(T) error
	// OnError sees items Write failed on. The item is not retried.
	OnError func(T, error)
	// OnWritten sees items written successfully.
	OnWritten func(T)
	// OnDrop sees items rejected by a full queue.
	OnDrop func(T)
	// Overflow is returned from Send when the queue is full. Nil drops
	// silently.
	Overflow error
}

// TxStats counts what an AsyncTx did with its items.
type TxStats struct {
	Written uint64
	Failed  uint64
	Dropped uint64
	Queued  int
}

// AsyncTx writes items of T in order from a single goroutine so a backend's
// port has one writer. Send never blocks.
type AsyncTx[T any] struct {
	cfg  TxConfig[T]
	ctx  context.Context
	ch   chan T
	done chan struct{}

	mu     sync.Mutex
	closed atomic.Bool

	written, failed, dropped atomic.Uint64
}

// NewAsyncTx starts the writer goroutine. It stops when ctx ends or after
// Close has flushed the queue.
func NewAsyncTx[T any](ctx context.Context, cfg TxConfig[T]) *AsyncTx[T] {
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	a := &AsyncTx[T]{
		cfg:  cfg,
		ctx:  ctx,
		ch:   make(chan T, cfg.Size),
		done: make(chan struct{}),
	}
	go a.loop()
	return a
}

func (a *AsyncTx[T]) loop() {
	defer close(a.done)
	for {
		select {
		case <-a.ctx.Done():
			return
		case v, ok := <-a.ch:
			if !ok || a.ctx.Err() != nil {
				return
			}
			a.write(v)
		}
	}
}

func (a *AsyncTx[T]) write(v T) {
	if err := a.cfg.Write(v); err != nil {
		a.failed.Add(1)
		if a.cfg.OnError != nil {
			a.cfg.OnError(v, err)
		}
		return
	}
	a.written.Add(1)
	if a.cfg.OnWritten != nil {
		a.cfg.OnWritten(v)
	}
}

// Send queues v. With the queue full v is dropped and cfg.Overflow returned.
func (a *AsyncTx[T]) Send(v T) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed.Load() {
		return ErrAsyncTxClosed
	}
	select {
	case a.ch <- v:
		return nil
	default:
	}
	a.dropped.Add(1)
	if a.cfg.OnDrop != nil {
		a.cfg.OnDrop(v)
	}
	return a.cfg.Overflow
}

// Stats returns the counters and the current queue depth.
func (a *AsyncTx[T]) Stats() TxStats {
	return TxStats{
		Written: a.written.Load(),
		Failed:  a.failed.Load(),
		Dropped: a.dropped.Load(),
		Queued:  len(a.ch),
	}
}

// Close rejects further sends, writes what is already queued and waits for
// the writer to exit. A cancelled context skips the flush.
func (a *AsyncTx[T]) Close() {
	a.mu.Lock()
	if a.closed.Swap(true) {
		a.mu.Unlock()
		<-a.done
		return
	}
	close(a.ch)
	a.mu.Unlock()
	<-a.done
}
