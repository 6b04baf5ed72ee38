package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kstaniek/go-mcmcan/internal/sim"
)

var printProfile bool

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print the message RAM plan of a profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyEnvOverrides(&cfg, cmd.Flags().Changed); err != nil {
			return err
		}
		prof, err := loadProfile(cfg.profilePath)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if printProfile {
			b, err := prof.Marshal()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s---\n", b)
		}
		plan, err := prof.Plan(sim.RAMSize)
		if err != nil {
			return err
		}
		var used uintptr
		for _, a := range plan {
			fmt.Fprintln(out, a)
			if end := a.Offset + a.Bytes; end > used {
				used = end
			}
		}
		fmt.Fprintf(out, "used %d of %d bytes\n", used, sim.RAMSize)
		return nil
	},
}

func init() {
	layoutCmd.Flags().BoolVar(&printProfile, "print-profile", false, "Print the profile as YAML before the plan")
}
