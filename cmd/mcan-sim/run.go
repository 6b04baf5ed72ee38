package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-mcmcan/internal/api"
	"github.com/kstaniek/go-mcmcan/internal/gateway"
	"github.com/kstaniek/go-mcmcan/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulated nodes and serve the API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyEnvOverrides(&cfg, cmd.Flags().Changed); err != nil {
			return err
		}
		if err := cfg.validate(); err != nil {
			return fmt.Errorf("configuration error: %w", err)
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, &cfg)
	},
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&cfg.listenAddr, "listen", cfg.listenAddr, "HTTP API listen address")
	f.StringVar(&cfg.metricsAddr, "metrics-addr", cfg.metricsAddr, "Separate metrics listen address; empty serves /metrics on the API")
	f.DurationVar(&cfg.tick, "tick", cfg.tick, "Poll interval")
	f.IntVar(&cfg.steps, "steps", cfg.steps, "Bus steps per poll")
	f.IntVar(&cfg.queue, "queue", cfg.queue, "Inbound frame queue size")
	f.StringVar(&cfg.backend, "backend", cfg.backend, "External bus: none|serial|socketcan")
	f.StringVar(&cfg.serialDev, "serial", cfg.serialDev, "SLCAN serial device")
	f.IntVar(&cfg.baud, "baud", cfg.baud, "Serial baud rate")
	f.DurationVar(&cfg.serialReadTO, "serial-read-timeout", cfg.serialReadTO, "Serial read timeout")
	f.StringVar(&cfg.canIf, "can-if", cfg.canIf, "SocketCAN interface")
	f.DurationVar(&cfg.canReadTO, "can-read-timeout", cfg.canReadTO, "SocketCAN read timeout")
	f.IntVar(&cfg.hubBuffer, "hub-buffer", cfg.hubBuffer, "Per-client event buffer")
	f.StringVar(&cfg.hubPolicy, "hub-policy", cfg.hubPolicy, "Backpressure policy: drop|kick")
	f.IntVar(&cfg.maxClients, "max-clients", cfg.maxClients, "Maximum websocket clients (0 = unlimited)")
	f.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", cfg.logMetricsEvery, "If >0, periodically log metrics counters")
	f.BoolVar(&cfg.mdnsEnable, "mdns-enable", cfg.mdnsEnable, "Advertise the API over mDNS")
	f.StringVar(&cfg.mdnsName, "mdns-name", cfg.mdnsName, "mDNS instance name (default mcan-sim-<hostname>)")
}

func run(ctx context.Context, cfg *appConfig) error {
	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	prof, err := loadProfile(cfg.profilePath)
	if err != nil {
		return err
	}
	h := initHub(cfg, l)
	gw, err := gateway.New(gateway.Config{
		Profile:      prof,
		Tick:         cfg.tick,
		StepsPerTick: cfg.steps,
		Queue:        cfg.queue,
		Hub:          h,
		Logger:       l,
	})
	if err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	open, err := backendOpener(cfg, prof, l)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = gw.Run(ctx)
	}()
	if open != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gw.RunBackend(ctx, cfg.backend, open); err != nil {
				l.Error("backend_error", "backend", cfg.backend, "error", err)
			}
		}()
	}

	metrics.InitBuildInfo(version, commit, date)
	metrics.SetReadinessFunc(func() bool { return gw.Ready() && ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		srv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}

	ln, err := net.Listen("tcp", cfg.listenAddr)
	if err != nil {
		cancel()
		wg.Wait()
		return fmt.Errorf("listen: %w", err)
	}
	a := api.New(gw, api.WithLogger(l), api.WithProfile(prof), api.WithMetrics(cfg.metricsAddr == ""))
	httpSrv := &http.Server{Handler: a.Router(), ReadHeaderTimeout: 5 * time.Second}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http_server_error", "error", err)
			cancel()
		}
	}()
	l.Info("http_listen", "addr", ln.Addr().String())

	port := ln.Addr().(*net.TCPAddr).Port
	cleanupMDNS, err := startMDNS(ctx, cfg, prof, port)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
	} else if cfg.mdnsEnable {
		l.Info("mdns_started", "service", mdnsServiceType, "name", mdnsInstance(cfg), "port", port)
		defer cleanupMDNS()
	}

	<-ctx.Done()
	l.Info("shutdown")
	sctx, scancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer scancel()
	_ = httpSrv.Shutdown(sctx)
	wg.Wait()
	return nil
}
