package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env"

	"github.com/kstaniek/go-mcmcan/internal/hub"
	"github.com/kstaniek/go-mcmcan/internal/logging"
)

type appConfig struct {
	profilePath     string
	logFormat       string
	logLevel        string
	listenAddr      string
	metricsAddr     string
	tick            time.Duration
	steps           int
	queue           int
	backend         string
	serialDev       string
	baud            int
	serialReadTO    time.Duration
	canIf           string
	canReadTO       time.Duration
	hubBuffer       int
	hubPolicy       string
	maxClients      int
	logMetricsEvery time.Duration
	mdnsEnable      bool
	mdnsName        string
}

func defaultConfig() appConfig {
	return appConfig{
		logFormat:    "text",
		logLevel:     "info",
		listenAddr:   ":8080",
		tick:         10 * time.Millisecond,
		steps:        4,
		queue:        256,
		backend:      "none",
		serialDev:    "/dev/ttyACM0",
		baud:         115200,
		serialReadTO: 50 * time.Millisecond,
		canIf:        "can0",
		canReadTO:    200 * time.Millisecond,
		hubBuffer:    256,
		hubPolicy:    "drop",
	}
}

// envConfig mirrors appConfig for MCAN_SIM_* variables. Durations are kept as
// strings and parsed with time.ParseDuration.
type envConfig struct {
	Profile         string `env:"MCAN_SIM_PROFILE"`
	LogFormat       string `env:"MCAN_SIM_LOG_FORMAT"`
	LogLevel        string `env:"MCAN_SIM_LOG_LEVEL"`
	Listen          string `env:"MCAN_SIM_LISTEN"`
	Metrics         string `env:"MCAN_SIM_METRICS"`
	Tick            string `env:"MCAN_SIM_TICK"`
	Steps           int    `env:"MCAN_SIM_STEPS"`
	Queue           int    `env:"MCAN_SIM_QUEUE"`
	Backend         string `env:"MCAN_SIM_BACKEND"`
	Serial          string `env:"MCAN_SIM_SERIAL"`
	Baud            int    `env:"MCAN_SIM_BAUD"`
	SerialReadTO    string `env:"MCAN_SIM_SERIAL_READ_TIMEOUT"`
	CANIf           string `env:"MCAN_SIM_CAN_IF"`
	CANReadTO       string `env:"MCAN_SIM_CAN_READ_TIMEOUT"`
	HubBuffer       int    `env:"MCAN_SIM_HUB_BUFFER"`
	HubPolicy       string `env:"MCAN_SIM_HUB_POLICY"`
	MaxClients      int    `env:"MCAN_SIM_MAX_CLIENTS"`
	LogMetricsEvery string `env:"MCAN_SIM_LOG_METRICS_INTERVAL"`
	MDNSEnable      bool   `env:"MCAN_SIM_MDNS_ENABLE"`
	MDNSName        string `env:"MCAN_SIM_MDNS_NAME"`
}

// applyEnvOverrides copies MCAN_SIM_* values into c unless the matching flag
// was set on the command line.
func applyEnvOverrides(c *appConfig, changed func(flag string) bool) error {
	e := envConfig{
		Profile:         c.profilePath,
		LogFormat:       c.logFormat,
		LogLevel:        c.logLevel,
		Listen:          c.listenAddr,
		Metrics:         c.metricsAddr,
		Tick:            c.tick.String(),
		Steps:           c.steps,
		Queue:           c.queue,
		Backend:         c.backend,
		Serial:          c.serialDev,
		Baud:            c.baud,
		SerialReadTO:    c.serialReadTO.String(),
		CANIf:           c.canIf,
		CANReadTO:       c.canReadTO.String(),
		HubBuffer:       c.hubBuffer,
		HubPolicy:       c.hubPolicy,
		MaxClients:      c.maxClients,
		LogMetricsEvery: c.logMetricsEvery.String(),
		MDNSEnable:      c.mdnsEnable,
		MDNSName:        c.mdnsName,
	}
	if err := env.Parse(&e); err != nil {
		return fmt.Errorf("environment: %w", err)
	}
	var firstErr error
	str := func(flag string, dst *string, v string) {
		if !changed(flag) {
			*dst = v
		}
	}
	num := func(flag string, dst *int, v int) {
		if !changed(flag) {
			*dst = v
		}
	}
	dur := func(flag string, dst *time.Duration, v string) {
		if changed(flag) {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("invalid %s: %w", flag, err)
			}
			return
		}
		*dst = d
	}
	str("profile", &c.profilePath, e.Profile)
	str("log-format", &c.logFormat, e.LogFormat)
	str("log-level", &c.logLevel, e.LogLevel)
	str("listen", &c.listenAddr, e.Listen)
	str("metrics-addr", &c.metricsAddr, e.Metrics)
	dur("tick", &c.tick, e.Tick)
	num("steps", &c.steps, e.Steps)
	num("queue", &c.queue, e.Queue)
	str("backend", &c.backend, e.Backend)
	str("serial", &c.serialDev, e.Serial)
	num("baud", &c.baud, e.Baud)
	dur("serial-read-timeout", &c.serialReadTO, e.SerialReadTO)
	str("can-if", &c.canIf, e.CANIf)
	dur("can-read-timeout", &c.canReadTO, e.CANReadTO)
	num("hub-buffer", &c.hubBuffer, e.HubBuffer)
	str("hub-policy", &c.hubPolicy, e.HubPolicy)
	num("max-clients", &c.maxClients, e.MaxClients)
	dur("log-metrics-interval", &c.logMetricsEvery, e.LogMetricsEvery)
	if !changed("mdns-enable") {
		c.mdnsEnable = e.MDNSEnable
	}
	str("mdns-name", &c.mdnsName, e.MDNSName)
	return firstErr
}

// validate checks values and ranges without opening devices or listeners.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	if _, err := logging.ParseLevel(c.logLevel); err != nil {
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.backend {
	case "none", "serial", "socketcan":
	default:
		return fmt.Errorf("invalid backend: %s", c.backend)
	}
	if _, ok := hub.ParsePolicy(c.hubPolicy); !ok {
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	switch {
	case c.tick <= 0:
		return fmt.Errorf("tick must be > 0")
	case c.steps <= 0:
		return fmt.Errorf("steps must be > 0 (got %d)", c.steps)
	case c.queue <= 0:
		return fmt.Errorf("queue must be > 0 (got %d)", c.queue)
	case c.hubBuffer <= 0:
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	case c.baud <= 0:
		return fmt.Errorf("baud must be > 0 (got %d)", c.baud)
	case c.serialReadTO <= 0:
		return fmt.Errorf("serial-read-timeout must be > 0")
	case c.canReadTO <= 0:
		return fmt.Errorf("can-read-timeout must be > 0")
	case c.maxClients < 0:
		return fmt.Errorf("max-clients must be >= 0")
	case c.logMetricsEvery < 0:
		return fmt.Errorf("log-metrics-interval must be >= 0")
	}
	return nil
}
