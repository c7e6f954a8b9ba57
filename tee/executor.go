package tee

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rhombus-tech/POC4/core"
)

const (
	sidePrimary   = "primary"
	sideSecondary = "secondary"
)

// PairedExecutor runs every job on two backends rooted in different
// platforms and only returns a result both sides agree on and attest to.
type PairedExecutor struct {
	log       logging.Logger
	primary   core.Backend
	secondary core.Backend
	validator core.AttestationValidator

	membership core.MembershipVerifier
	executor   core.ExecutorID

	timeout time.Duration
	sem     *semaphore.Weighted
}

type Option func(*PairedExecutor)

func WithBackendTimeout(timeout time.Duration) Option {
	return func(e *PairedExecutor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

// WithMaxConcurrent caps paired executions in flight. Callers over the cap
// wait for a slot or their context.
func WithMaxConcurrent(n int64) Option {
	return func(e *PairedExecutor) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(n)
		}
	}
}

// WithMembership additionally requires both attestations to belong to
// executor in the given accumulator.
func WithMembership(m core.MembershipVerifier, executor core.ExecutorID) Option {
	return func(e *PairedExecutor) {
		e.membership = m
		e.executor = executor
	}
}

// WithConfig applies the timeout and concurrency settings of cfg.
func WithConfig(cfg Config) Option {
	return func(e *PairedExecutor) {
		WithBackendTimeout(cfg.BackendTimeout)(e)
		WithMaxConcurrent(cfg.MaxConcurrent)(e)
	}
}

func NewPairedExecutor(
	primary, secondary core.Backend,
	validator core.AttestationValidator,
	log logging.Logger,
	opts ...Option,
) (*PairedExecutor, error) {
	if primary == nil || secondary == nil || validator == nil {
		return nil, ErrNilBackend
	}
	if primary.Platform() == secondary.Platform() {
		return nil, fmt.Errorf("%w: both are %s", ErrSamePlatform, primary.Platform())
	}
	e := &PairedExecutor{
		log:       log,
		primary:   primary,
		secondary: secondary,
		validator: validator,
		timeout:   DefaultConfig().BackendTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Execute fans payload out to both backends and joins on both results.
// Any backend failure, disagreement, or rejected attestation fails the
// whole call; no partial result is ever returned.
func (e *PairedExecutor) Execute(ctx context.Context, payload *core.ExecutionPayload) (*core.PairedExecutionResult, error) {
	if payload == nil {
		executions.WithLabelValues(outcome(ErrInvalidInput)).Inc()
		return nil, fmt.Errorf("%w: nil payload", ErrInvalidInput)
	}
	start := time.Now()
	result, err := e.execute(ctx, payload)
	executions.WithLabelValues(outcome(err)).Inc()
	executionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		e.log.Debug("paired execution failed",
			zap.String("job", payload.ID),
			zap.Error(err),
		)
	}
	return result, err
}

func (e *PairedExecutor) execute(ctx context.Context, payload *core.ExecutionPayload) (*core.PairedExecutionResult, error) {
	if e.sem != nil {
		if err := e.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer e.sem.Release(1)
	}

	var primaryRes, secondaryRes *core.ExecutionResult
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := e.executeOn(gctx, e.primary, payload)
		if err != nil {
			return unavailable(sidePrimary, e.primary, err)
		}
		primaryRes = res
		return nil
	})
	g.Go(func() error {
		res, err := e.executeOn(gctx, e.secondary, payload)
		if err != nil {
			return unavailable(sideSecondary, e.secondary, err)
		}
		secondaryRes = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !primaryRes.SameOutput(secondaryRes) {
		e.log.Warn("paired backends disagree on output",
			zap.String("job", payload.ID),
			zap.Int("primaryLen", len(primaryRes.Output)),
			zap.Int("secondaryLen", len(secondaryRes.Output)),
		)
		return nil, fmt.Errorf("%w: job %s", core.ErrResultMismatch, payload.ID)
	}
	if !primaryRes.SameState(secondaryRes) {
		e.log.Warn("paired backends disagree on state",
			zap.String("job", payload.ID),
			zap.Binary("primary", primaryRes.StateHash),
			zap.Binary("secondary", secondaryRes.StateHash),
		)
		return nil, fmt.Errorf("%w: job %s", core.ErrStateMismatch, payload.ID)
	}

	primaryAtt, err := e.checkAttestation(ctx, sidePrimary, e.primary, primaryRes)
	if err != nil {
		return nil, err
	}
	secondaryAtt, err := e.checkAttestation(ctx, sideSecondary, e.secondary, secondaryRes)
	if err != nil {
		return nil, err
	}

	if e.membership != nil {
		ok, err := e.membership.Verify(ctx, e.executor, primaryAtt, secondaryAtt)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotMember, err)
		}
		if !ok {
			return nil, ErrNotMember
		}
	}

	return &core.PairedExecutionResult{
		Primary:   *primaryRes,
		Secondary: *secondaryRes,
	}, nil
}

func (e *PairedExecutor) executeOn(ctx context.Context, b core.Backend, payload *core.ExecutionPayload) (*core.ExecutionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := b.Execute(ctx, payload)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fmt.Errorf("%w: empty result", core.ErrExecution)
	}
	return res, nil
}

func (e *PairedExecutor) checkAttestation(
	ctx context.Context,
	side string,
	b core.Backend,
	res *core.ExecutionResult,
) (*core.TEEAttestation, error) {
	att, ok := res.Attestation()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingAttestation, side)
	}
	if att.Platform != b.Platform() {
		return nil, fmt.Errorf("%w: %s backend is %s, attestation is %s", ErrPlatformMismatch, side, b.Platform(), att.Platform)
	}
	if err := e.validator.Validate(ctx, att); err != nil {
		return nil, fmt.Errorf("%s attestation: %w", side, err)
	}
	return att, nil
}

// GetAttestations fetches the current attestation of each backend
// concurrently. The pair is returned unvalidated.
func (e *PairedExecutor) GetAttestations(ctx context.Context) (core.TEEAttestation, core.TEEAttestation, error) {
	var primaryAtt, secondaryAtt core.TEEAttestation
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		att, err := e.attestationOf(gctx, sidePrimary, e.primary)
		primaryAtt = att
		return err
	})
	g.Go(func() error {
		att, err := e.attestationOf(gctx, sideSecondary, e.secondary)
		secondaryAtt = att
		return err
	})
	if err := g.Wait(); err != nil {
		return core.TEEAttestation{}, core.TEEAttestation{}, err
	}
	return primaryAtt, secondaryAtt, nil
}

func (e *PairedExecutor) attestationOf(ctx context.Context, side string, b core.Backend) (core.TEEAttestation, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	atts, err := b.Attestations(ctx)
	if err != nil {
		return core.TEEAttestation{}, unavailable(side, b, err)
	}
	if len(atts) == 0 {
		return core.TEEAttestation{}, fmt.Errorf("%w: %s", ErrMissingAttestation, side)
	}
	return atts[0], nil
}

// HealthCheck succeeds only when both backends report healthy.
func (e *PairedExecutor) HealthCheck(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range []struct {
		side string
		b    core.Backend
	}{{sidePrimary, e.primary}, {sideSecondary, e.secondary}} {
		s := s
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(gctx, e.timeout)
			defer cancel()

			healthy, err := s.b.HealthCheck(ctx)
			if err != nil {
				return unavailable(s.side, s.b, err)
			}
			if !healthy {
				return fmt.Errorf("%w: %s %s reports unhealthy", core.ErrBackendUnavailable, s.side, s.b.Platform())
			}
			return nil
		})
	}
	return g.Wait()
}

func unavailable(side string, b core.Backend, err error) error {
	return fmt.Errorf("%w: %s %s: %w", core.ErrBackendUnavailable, side, b.Platform(), err)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrBackendUnavailable):
		return "unavailable"
	case errors.Is(err, core.ErrResultMismatch):
		return "result_mismatch"
	case errors.Is(err, core.ErrStateMismatch):
		return "state_mismatch"
	case errors.Is(err, core.ErrAttestation):
		return "attestation"
	default:
		return "error"
	}
}
