package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-mcmcan/internal/timing"
)

var bitrateCmd = &cobra.Command{
	Use:   "bitrate [kbps...]",
	Short: "Print bit timing for bus speeds",
	Long:  "Print the nominal bit timing used for each bus speed. Without arguments every supported speed is listed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var speeds []uint32
		for _, a := range args {
			v, err := strconv.ParseUint(a, 10, 32)
			if err != nil {
				return fmt.Errorf("bitrate %q: %w", a, err)
			}
			speeds = append(speeds, uint32(v))
		}
		if len(speeds) == 0 {
			speeds = timing.Supported()
		}
		out := cmd.OutOrStdout()
		for _, kbps := range speeds {
			b, err := timing.FromFrequency(kbps)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%4d kbit/s  %s\n", kbps, b)
		}
		return nil
	},
}
