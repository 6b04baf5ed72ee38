package main

import (
	"log/slog"
	"os"

	"github.com/kstaniek/go-mcmcan/internal/logging"
)

// setupLogger installs the global logger. validate has already checked the
// format and level, so a failure falls back to text at info.
func setupLogger(format, level string) *slog.Logger {
	l, err := logging.Setup(format, level, os.Stderr)
	if err != nil {
		l, _ = logging.Setup("text", "info", os.Stderr)
		l.Warn("logger_fallback", "error", err)
	}
	l = l.With("app", "mcan-sim")
	logging.Set(l)
	return l
}
