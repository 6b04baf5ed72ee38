package main

import (
	"strings"
	"testing"
	"time"
)

func noneChanged(string) bool { return false }

func TestApplyEnvOverrides_Basic(t *testing.T) {
	c := defaultConfig()
	t.Setenv("MCAN_SIM_BAUD", "230400")
	t.Setenv("MCAN_SIM_MDNS_ENABLE", "true")
	t.Setenv("MCAN_SIM_SERIAL_READ_TIMEOUT", "100ms")
	t.Setenv("MCAN_SIM_LOG_METRICS_INTERVAL", "5s")
	t.Setenv("MCAN_SIM_BACKEND", "serial")
	if err := applyEnvOverrides(&c, noneChanged); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.baud != 230400 {
		t.Fatalf("expected baud override, got %d", c.baud)
	}
	if !c.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if c.serialReadTO != 100*time.Millisecond {
		t.Fatalf("expected serialReadTO 100ms got %v", c.serialReadTO)
	}
	if c.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", c.logMetricsEvery)
	}
	if c.backend != "serial" {
		t.Fatalf("expected backend serial got %s", c.backend)
	}
	// untouched values keep their defaults
	if c.listenAddr != ":8080" || c.tick != 10*time.Millisecond || c.steps != 4 {
		t.Fatalf("defaults changed: %+v", c)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	c := defaultConfig()
	c.baud = 9600
	t.Setenv("MCAN_SIM_BAUD", "230400")
	t.Setenv("MCAN_SIM_LISTEN", ":9999")
	changed := func(name string) bool { return name == "baud" }
	if err := applyEnvOverrides(&c, changed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.baud != 9600 {
		t.Fatalf("flag should win, got %d", c.baud)
	}
	if c.listenAddr != ":9999" {
		t.Fatalf("env should apply to unset flag, got %s", c.listenAddr)
	}
}

func TestApplyEnvOverrides_Invalid(t *testing.T) {
	c := defaultConfig()
	t.Setenv("MCAN_SIM_TICK", "soon")
	err := applyEnvOverrides(&c, noneChanged)
	if err == nil || !strings.Contains(err.Error(), "tick") {
		t.Fatalf("expected tick error, got %v", err)
	}

	c = defaultConfig()
	t.Setenv("MCAN_SIM_TICK", "")
	t.Setenv("MCAN_SIM_STEPS", "many")
	if err := applyEnvOverrides(&c, noneChanged); err == nil {
		t.Fatal("expected error for non-numeric steps")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*appConfig)
		want string
	}{
		{"defaults", func(*appConfig) {}, ""},
		{"log format", func(c *appConfig) { c.logFormat = "xml" }, "log-format"},
		{"log level", func(c *appConfig) { c.logLevel = "loud" }, "log-level"},
		{"backend", func(c *appConfig) { c.backend = "usb" }, "backend"},
		{"policy", func(c *appConfig) { c.hubPolicy = "block" }, "hub-policy"},
		{"tick", func(c *appConfig) { c.tick = 0 }, "tick"},
		{"steps", func(c *appConfig) { c.steps = -1 }, "steps"},
		{"hub buffer", func(c *appConfig) { c.hubBuffer = 0 }, "hub-buffer"},
		{"max clients", func(c *appConfig) { c.maxClients = -1 }, "max-clients"},
		{"can timeout", func(c *appConfig) { c.canReadTO = 0 }, "can-read-timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := defaultConfig()
			tc.mod(&c)
			err := c.validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %v, want mention of %q", err, tc.want)
			}
		})
	}
}
