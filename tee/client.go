package tee

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/backoff"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rhombus-tech/POC4/core"
)

var _ core.Backend = (*GRPCBackend)(nil)

// GRPCBackend is a core.Backend served by a remote Server.
type GRPCBackend struct {
	log      logging.Logger
	platform core.PlatformType
	target   string
	conn     *grpc.ClientConn
	health   healthpb.HealthClient
}

// DialBackend creates a lazy connection to target. connectTimeout bounds
// each connection attempt; per-call deadlines come from the caller's ctx.
func DialBackend(
	target string,
	platform core.PlatformType,
	connectTimeout time.Duration,
	log logging.Logger,
	opts ...grpc.DialOption,
) (*GRPCBackend, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, core.ErrUnknownPlatform)
	}
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(jsonCodecName)),
		grpc.WithConnectParams(grpc.ConnectParams{
			Backoff:           backoff.DefaultConfig,
			MinConnectTimeout: connectTimeout,
		}),
	}
	conn, err := grpc.NewClient(target, append(dialOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s backend at %s: %w", platform, target, err)
	}
	return &GRPCBackend{
		log:      log,
		platform: platform,
		target:   target,
		conn:     conn,
		health:   healthpb.NewHealthClient(conn),
	}, nil
}

func (g *GRPCBackend) Platform() core.PlatformType {
	return g.platform
}

func (g *GRPCBackend) Execute(ctx context.Context, payload *core.ExecutionPayload) (*core.ExecutionResult, error) {
	out := new(core.ExecutionResult)
	if err := g.conn.Invoke(ctx, executeMethod, payload, out); err != nil {
		return nil, fromStatus(err)
	}
	return out, nil
}

func (g *GRPCBackend) Attestations(ctx context.Context) ([]core.TEEAttestation, error) {
	out := new(AttestationsResponse)
	if err := g.conn.Invoke(ctx, attestationsMethod, &AttestationsRequest{}, out); err != nil {
		return nil, fromStatus(err)
	}
	return out.Attestations, nil
}

func (g *GRPCBackend) HealthCheck(ctx context.Context) (bool, error) {
	resp, err := g.health.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		return false, fromStatus(err)
	}
	healthy := resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	if !healthy {
		g.log.Debug("backend not serving",
			zap.String("target", g.target),
			zap.Stringer("status", resp.GetStatus()),
		)
	}
	return healthy, nil
}

func (g *GRPCBackend) Close() error {
	return g.conn.Close()
}

// CloseAll closes every closer and reports all failures together.
func CloseAll(closers ...io.Closer) error {
	var errs []error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
