package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rhombus-tech/POC4/api"
	"github.com/rhombus-tech/POC4/core"
	"github.com/rhombus-tech/POC4/regions"
	"github.com/rhombus-tech/POC4/tee"
)

var (
	backendPlatform   string
	backendGRPCAddr   string
	backendHTTPAddr   string
	backendToken      string
	backendController string
	healthInterval    time.Duration
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Serve a single TEE backend over gRPC and HTTP",
	Long: `Serve a single TEE backend. The gRPC listener speaks tee.v1.TeeBackend
with grpc.health.v1; the HTTP listener serves /execute, /attestations and
/health for region clients. Without --controller the backend is simulated.`,
	RunE: func(*cobra.Command, []string) error {
		if backendGRPCAddr == "" && backendHTTPAddr == "" {
			return fmt.Errorf("%w: set --grpc and/or --http", core.ErrConfiguration)
		}
		platform, err := core.ParsePlatform(backendPlatform)
		if err != nil {
			return err
		}
		log, err := newLogger("backend-"+platform.String(), logLevel)
		if err != nil {
			return err
		}

		var backend core.Backend
		if backendController != "" {
			backend, err = tee.NewProcessBackend(platform, backendController, nil, nil)
		} else {
			var sim *tee.SimulatedBackend
			sim, err = tee.NewSimulatedBackend(platform)
			if err == nil {
				pub := sim.PublicKey()
				log.Info("simulated backend key", zap.Binary("publicKey", pub[:]))
			}
			backend = sim
		}
		if err != nil {
			return err
		}

		token := backendToken
		if token == "" {
			token = os.Getenv(regions.EnvAuthToken)
		}

		ctx, cancel := signalContext()
		defer cancel()
		g, gctx := errgroup.WithContext(ctx)

		if backendGRPCAddr != "" {
			lis, err := net.Listen("tcp", backendGRPCAddr)
			if err != nil {
				return err
			}
			srv := tee.NewServer(backend, log)
			srv.StartHealthChecks(gctx, healthInterval)
			g.Go(func() error {
				return srv.Serve(lis)
			})
			g.Go(func() error {
				<-gctx.Done()
				srv.Stop()
				return nil
			})
		}
		if backendHTTPAddr != "" {
			g.Go(func() error {
				return api.NewBackendServer(backendHTTPAddr, backend, token, log).Run(gctx)
			})
		}
		return g.Wait()
	},
}

func init() {
	backendCmd.Flags().StringVar(&backendPlatform, "platform", "sgx", "backend platform (sgx|sev)")
	backendCmd.Flags().StringVar(&backendGRPCAddr, "grpc", "", "gRPC listen address")
	backendCmd.Flags().StringVar(&backendHTTPAddr, "http", "", "HTTP listen address")
	backendCmd.Flags().StringVar(&backendToken, "token", "", "bearer token required on HTTP routes (default $"+regions.EnvAuthToken+")")
	backendCmd.Flags().StringVar(&backendController, "controller", "", "external controller executable")
	backendCmd.Flags().DurationVar(&healthInterval, "health-interval", 10*time.Second, "gRPC health refresh interval")
}
