package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"debug": slog.LevelDebug, "INFO": slog.LevelInfo, "warn": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("accepted unknown level")
	}
}

func TestSetupInstallsGlobal(t *testing.T) {
	prev := L()
	defer Set(prev)
	var buf bytes.Buffer
	l, err := Setup("json", "debug", &buf)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	Set(nil)
	if L() != l {
		t.Fatalf("global logger not installed")
	}
	L().Debug("node_running", "node", 1)
	if s := buf.String(); !strings.Contains(s, `"node":1`) || !strings.Contains(s, "node_running") {
		t.Fatalf("log line %q", s)
	}
}

func TestSetupRejects(t *testing.T) {
	if _, err := Setup("xml", "info", nil); err == nil {
		t.Fatalf("accepted unknown format")
	}
	if _, err := Setup("text", "loud", nil); err == nil {
		t.Fatalf("accepted unknown level")
	}
}
