package main

import (
	"github.com/spf13/cobra"

	"github.com/kstaniek/go-mcmcan/internal/board"
)

var (
	cfg = defaultConfig()

	rootCmd = &cobra.Command{
		Use:           "mcan-sim",
		Short:         "Simulated MCMCAN nodes with a CAN bridge",
		Long:          "mcan-sim brings up MCMCAN nodes on a simulated peripheral, bridges them to an SLCAN or SocketCAN bus and serves their state over HTTP.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfg.profilePath, "profile", cfg.profilePath, "Board profile YAML (empty uses the built-in profile)")
	pf.StringVar(&cfg.logFormat, "log-format", cfg.logFormat, "Log format: text|json")
	pf.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "Log level: debug|info|warn|error")

	rootCmd.AddCommand(runCmd, bitrateCmd, layoutCmd, versionCmd)
}

// loadProfile reads path, or returns the built-in profile when path is empty.
func loadProfile(path string) (board.Profile, error) {
	if path == "" {
		return board.Default(), nil
	}
	return board.Load(path)
}
