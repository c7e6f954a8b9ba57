package tee

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/rhombus-tech/POC4/core"
)

// Server exposes one core.Backend over gRPC together with the standard
// health service.
type Server struct {
	log     logging.Logger
	backend core.Backend
	grpc    *grpc.Server
	health  *health.Server
}

func NewServer(backend core.Backend, log logging.Logger, opts ...grpc.ServerOption) *Server {
	s := &Server{
		log:     log,
		backend: backend,
		grpc:    grpc.NewServer(opts...),
		health:  health.NewServer(),
	}
	s.grpc.RegisterService(&backendServiceDesc, &backendService{backend: backend, log: log})
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// RefreshHealth asks the backend for its health and publishes the answer.
func (s *Server) RefreshHealth(ctx context.Context) bool {
	healthy, err := s.backend.HealthCheck(ctx)
	if err != nil {
		s.log.Warn("backend health check failed", zap.Error(err))
		healthy = false
	}
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if healthy {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
	return healthy
}

// StartHealthChecks refreshes health every interval until ctx is done.
func (s *Server) StartHealthChecks(ctx context.Context, interval time.Duration) {
	s.RefreshHealth(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.RefreshHealth(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (s *Server) Serve(lis net.Listener) error {
	s.log.Info("serving backend",
		zap.Stringer("platform", s.backend.Platform()),
		zap.Stringer("addr", lis.Addr()),
	)
	return s.grpc.Serve(lis)
}

func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

type backendService struct {
	backend core.Backend
	log     logging.Logger
}

func (b *backendService) Execute(ctx context.Context, payload *core.ExecutionPayload) (*core.ExecutionResult, error) {
	res, err := b.backend.Execute(ctx, payload)
	if err != nil {
		b.log.Debug("execute failed", zap.String("job", payload.ID), zap.Error(err))
		return nil, toStatus(err)
	}
	return res, nil
}

func (b *backendService) Attestations(ctx context.Context, _ *AttestationsRequest) (*AttestationsResponse, error) {
	atts, err := b.backend.Attestations(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &AttestationsResponse{Attestations: atts}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, core.ErrNetwork), errors.Is(err, core.ErrBackendUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUnknownFunction):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, core.ErrAttestation):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus maps a gRPC failure back onto the error taxonomy. Only
// transport-level codes become retryable network errors.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %w", core.ErrNetwork, err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return fmt.Errorf("%w: %w", core.ErrNetwork, err)
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %w", core.ErrAttestation, err)
	default:
		return fmt.Errorf("%w: %w", core.ErrExecution, err)
	}
}
