package main

import (
	"log/slog"

	"github.com/kstaniek/go-mcmcan/internal/gateway"
	"github.com/kstaniek/go-mcmcan/internal/hub"
)

func initHub(cfg *appConfig, l *slog.Logger) *hub.Hub[gateway.Event] {
	h := hub.New[gateway.Event]()
	h.OutBufSize = cfg.hubBuffer
	h.MaxClients = cfg.maxClients
	policy, ok := hub.ParsePolicy(cfg.hubPolicy)
	if !ok {
		l.Warn("unknown_hub_policy", "policy", cfg.hubPolicy, "used", "drop")
	}
	h.Policy = policy
	l.Info("hub_config", "policy", cfg.hubPolicy, "buffer", h.OutBufSize, "max_clients", h.MaxClients)
	return h
}
