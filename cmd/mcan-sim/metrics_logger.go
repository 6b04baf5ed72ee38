package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-mcmcan/internal/metrics"
)

func sum(v [metrics.MaxNodes]uint64) uint64 {
	var t uint64
	for _, x := range v {
		t += x
	}
	return t
}

// logMetricsDelta logs the traffic since prev and returns the new baseline.
func logMetricsDelta(l *slog.Logger, prev metrics.Snapshot, every time.Duration) metrics.Snapshot {
	cur := metrics.Snap()
	l.Info("metrics_interval",
		"interval", every,
		"node_rx", sum(cur.NodeRx)-sum(prev.NodeRx),
		"node_tx", sum(cur.NodeTx)-sum(prev.NodeTx),
		"tx_busy", sum(cur.NodeTxBusy)-sum(prev.NodeTxBusy),
		"overruns", sum(cur.Overruns)-sum(prev.Overruns),
		"backend_rx", cur.BackendRx-prev.BackendRx,
		"backend_tx", cur.BackendTx-prev.BackendTx,
		"ws_rx", cur.WSRx-prev.WSRx,
		"ws_tx", cur.WSTx-prev.WSTx,
		"hub_drops", cur.HubDrops-prev.HubDrops,
		"errors", cur.Errors-prev.Errors,
		"reconnects", cur.Reconnects,
		"ws_clients", cur.HubClients,
		"msgram_used", cur.MsgRAMUsed,
	)
	return cur
}

// startMetricsLogger logs per-interval traffic until ctx ends. interval <= 0
// disables it.
func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		prev := metrics.Snap()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				prev = logMetricsDelta(l, prev, interval)
			}
		}
	}()
}
