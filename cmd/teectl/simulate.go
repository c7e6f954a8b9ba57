package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/rhombus-tech/POC4/core"
	"github.com/rhombus-tech/POC4/tee"
)

var simulatePlatform string

// simulateCmd is a controller for ProcessBackend, e.g.
//
//	backend: process:/usr/local/bin/teectl
//	args: [simulate, --platform, sev]
var simulateCmd = &cobra.Command{
	Use:       "simulate <execute|attestations|health>",
	Short:     "Answer one controller command with a simulated backend",
	Hidden:    true,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{tee.ProcessExecute, tee.ProcessAttestations, tee.ProcessHealth},
	RunE: func(cmd *cobra.Command, args []string) error {
		platform, err := core.ParsePlatform(simulatePlatform)
		if err != nil {
			return err
		}
		sim, err := tee.NewSimulatedBackend(platform)
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		return tee.ServeProcess(context.Background(), sim, args[0], os.Stdin, os.Stdout)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePlatform, "platform", "sgx", "simulated platform (sgx|sev)")
}
