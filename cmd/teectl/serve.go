package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rhombus-tech/POC4/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the accumulator and paired executor HTTP API",
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

		if err := n.openAccumulator(ctx); err != nil {
			return err
		}
		if err := n.openExecutor(); err != nil {
			return err
		}
		if err := n.executor.HealthCheck(ctx); err != nil {
			log.Warn("backends not healthy at startup", zap.Error(err))
		}

		return api.NewServer(cfg.Listen, n.accumulator, n.executor, log).Run(ctx)
	},
}
