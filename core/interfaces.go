package core

import (
	"context"
)

// Backend is one trusted-execution environment able to run a payload and
// attest to it. Implementations are resolved once at construction.
type Backend interface {
	Platform() PlatformType
	Execute(ctx context.Context, payload *ExecutionPayload) (*ExecutionResult, error)
	Attestations(ctx context.Context) ([]TEEAttestation, error)
	HealthCheck(ctx context.Context) (bool, error)
}

// AttestationValidator checks a single attestation in isolation.
type AttestationValidator interface {
	Validate(ctx context.Context, attestation *TEEAttestation) error
}

// MembershipVerifier checks that a pair of attestations belongs to an
// executor registered in the accumulator.
type MembershipVerifier interface {
	Verify(ctx context.Context, executor ExecutorID, a, b *TEEAttestation) (bool, error)
}
