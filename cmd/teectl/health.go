package main

import (
	"github.com/ava-labs/hypersdk/utils"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rhombus-tech/POC4/core"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the configured regions and backends",
	RunE: func(*cobra.Command, []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		n := newNode(cfg, log)
		defer func() {
			if err := n.Close(); err != nil {
				log.Warn("failed to close resources", zap.Error(err))
			}
		}()

		if len(cfg.Client.Regions) > 0 {
			client, err := n.regionClient()
			if err != nil {
				return err
			}
			if _, err := client.HealthCheck(ctx); err != nil {
				utils.Outf("{{red}}regions unhealthy:{{/}} %v\n", err)
				return err
			}
			utils.Outf("{{green}}regions healthy:{{/}} %d\n", len(cfg.Client.Regions))
		}

		if err := n.openExecutor(); err != nil {
			return err
		}
		if err := n.executor.HealthCheck(ctx); err != nil {
			utils.Outf("{{red}}backends unhealthy:{{/}} %v\n", err)
			return err
		}
		utils.Outf("{{green}}backends healthy{{/}}\n")
		return nil
	},
}

var attestCmd = &cobra.Command{
	Use:   "attest",
	Short: "Fetch and validate the current attestation of each backend",
	RunE: func(*cobra.Command, []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, cancel := signalContext()
		defer cancel()

		n := newNode(cfg, log)
		defer func() {
			if err := n.Close(); err != nil {
				log.Warn("failed to close resources", zap.Error(err))
			}
		}()
		if err := n.openExecutor(); err != nil {
			return err
		}
		v, err := n.buildVerifier()
		if err != nil {
			return err
		}

		primary, secondary, err := n.executor.GetAttestations(ctx)
		if err != nil {
			return err
		}
		for _, att := range []struct {
			side string
			a    *core.TEEAttestation
		}{{"primary", &primary}, {"secondary", &secondary}} {
			utils.Outf("{{cyan}}%s %s attestation:{{/}}\n", att.side, att.a.Platform)
			utils.Outf("  enclave id:  %x\n", att.a.EnclaveID)
			utils.Outf("  measurement: %x\n", att.a.Measurement)
			utils.Outf("  timestamp:   %s\n", att.a.Timestamp)
			if err := v.Validate(ctx, att.a); err != nil {
				utils.Outf("  {{red}}invalid:{{/}} %v\n", err)
				continue
			}
			utils.Outf("  {{green}}valid{{/}}\n")
		}
		return nil
	},
}
