package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/grandcat/zeroconf"

	"github.com/kstaniek/go-mcmcan/internal/board"
)

const mdnsServiceType = "_mcan-sim._tcp"

// mdnsInstance is the advertised instance name.
func mdnsInstance(cfg *appConfig) string {
	if cfg.mdnsName != "" {
		return cfg.mdnsName
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return "mcan-sim-" + host
}

// mdnsText describes the simulation in TXT records so browsers can pick an
// instance without querying the API.
func mdnsText(cfg *appConfig, p board.Profile) []string {
	txt := []string{
		"path=/api",
		"ws=/ws",
		"backend=" + cfg.backend,
		"profile=" + p.Name,
		"nodes=" + strconv.Itoa(len(p.Nodes)),
		"version=" + version,
	}
	for _, n := range p.Nodes {
		if n.Role == board.RoleGateway {
			txt = append(txt, fmt.Sprintf("gateway=%d", n.ID), fmt.Sprintf("kbps=%d", n.BitrateKbps))
		}
	}
	return txt
}

// startMDNS registers the API with zeroconf until ctx ends or the returned
// stop function runs. Disabled, it returns a no-op.
func startMDNS(ctx context.Context, cfg *appConfig, p board.Profile, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	svc, err := zeroconf.Register(mdnsInstance(cfg), mdnsServiceType, "local.", port, mdnsText(cfg, p), nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	stop := context.AfterFunc(ctx, svc.Shutdown)
	return func() {
		if stop() {
			svc.Shutdown()
		}
	}, nil
}
