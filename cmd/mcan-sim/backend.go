package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kstaniek/go-mcmcan/internal/board"
	"github.com/kstaniek/go-mcmcan/internal/gateway"
	"github.com/kstaniek/go-mcmcan/internal/serial"
	"github.com/kstaniek/go-mcmcan/internal/socketcan"
	"github.com/kstaniek/go-mcmcan/internal/transport"
)

// txQueueSize is the capacity of a backend's async TX queue.
const txQueueSize = 1024

// Hooks for tests.
var (
	openSerialPort = serial.Open
	openSocketCAN  = func(iface string, o socketcan.Options) (socketcan.Dev, error) {
		return socketcan.Open(iface, o)
	}
)

// busBitrate is the speed the external adapter is opened at: the gateway
// node's, or the first node's when the profile has no gateway.
func busBitrate(p board.Profile) uint32 {
	for _, n := range p.Nodes {
		if n.Role == board.RoleGateway {
			return n.BitrateKbps
		}
	}
	if len(p.Nodes) > 0 {
		return p.Nodes[0].BitrateKbps
	}
	return 500
}

// backendOpener returns the opener for cfg.backend, or nil for "none".
func backendOpener(cfg *appConfig, p board.Profile, l *slog.Logger) (gateway.Opener, error) {
	switch cfg.backend {
	case "none":
		return nil, nil
	case "serial":
		kbps := busBitrate(p)
		return func(ctx context.Context) (transport.Backend, error) {
			sp, err := openSerialPort(cfg.serialDev, cfg.baud, cfg.serialReadTO)
			if err != nil {
				return nil, fmt.Errorf("open serial: %w", err)
			}
			link, err := serial.NewLink(ctx, sp, kbps, txQueueSize)
			if err != nil {
				_ = sp.Close()
				return nil, err
			}
			return link, nil
		}, nil
	case "socketcan":
		return func(ctx context.Context) (transport.Backend, error) {
			dev, err := openSocketCAN(cfg.canIf, socketcan.Options{ReadTimeout: cfg.canReadTO})
			if err != nil {
				return nil, fmt.Errorf("open socketcan: %w", err)
			}
			l.Info("socketcan_open", "if", cfg.canIf)
			return socketcan.NewLink(ctx, dev, txQueueSize), nil
		}, nil
	}
	return nil, fmt.Errorf("unknown backend %q (use none|serial|socketcan)", cfg.backend)
}
