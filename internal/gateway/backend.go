package gateway

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/kstaniek/go-mcmcan/internal/can"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
	"github.com/kstaniek/go-mcmcan/internal/transport"
)

// Opener opens a backend. It is called again after the backend fails.
type Opener func(ctx context.Context) (transport.Backend, error)

// Reconnect bounds used by RunBackend.
var (
	backendInitialInterval = 200 * time.Millisecond
	backendMaxInterval     = 5 * time.Second
)

func newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = backendInitialInterval
	b.MaxInterval = backendMaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}

// RunBackend keeps a backend attached until ctx ends. Frames read from it are
// queued for the bus and bus frames are written to it. A failed open or read
// reopens the backend after an exponential delay.
func (g *Gateway) RunBackend(ctx context.Context, name string, open Opener) error {
	op := func() error {
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		be, err := open(ctx)
		if err != nil {
			metrics.IncError(metrics.ErrBackendOpen)
			return err
		}
		err = g.pump(ctx, name, be)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, d time.Duration) {
		metrics.IncBackendReconnect()
		g.log.Warn("backend_retry", "backend", name, "error", err, "in", d)
	}
	err := backoff.RetryNotify(op, newBackoff(ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (g *Gateway) pump(ctx context.Context, name string, be transport.Backend) error {
	g.backend.Store(&backendRef{name: name, sink: be})
	g.log.Info("backend_attached", "backend", name, "bridged", g.bridged)
	stop := context.AfterFunc(ctx, func() { _ = be.Close() })
	defer func() {
		stop()
		g.backend.Store(nil)
		_ = be.Close()
		g.log.Info("backend_detached", "backend", name)
	}()
	var f can.Frame
	for {
		err := be.ReadFrame(&f)
		switch {
		case err == nil:
		case transport.IsTimeout(err):
			continue
		case errors.Is(err, io.EOF):
			return errors.New("backend closed")
		default:
			return err
		}
		if err := f.Validate(); err != nil {
			metrics.IncMalformed()
			continue
		}
		if err := g.enqueue(inbound{frame: f, from: fromBackend}); err != nil {
			g.log.Debug("backend_frame_dropped", "backend", name, "frame", f.String())
		}
	}
}
