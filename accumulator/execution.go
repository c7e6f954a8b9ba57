package accumulator

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/rhombus-tech/POC4/core"
)

// Tolerances between the two sides of a paired execution.
const (
	MaxTimeDiff        = time.Second
	MaxMemoryDiff      = 1 << 20
	MaxInstructionDiff = 1000
)

type VerificationResult struct {
	Verified       bool                `json:"verified"`
	ResultHash     Hash                `json:"result_hash"`
	SGXAttestation core.TEEAttestation `json:"sgx_attestation"`
	SEVAttestation core.TEEAttestation `json:"sev_attestation"`
}

// VerifyExecution checks that an SGX and an SEV execution of the same job
// agree, ran with comparable cost, and were produced by the registered
// executor.
func (a *Accumulator) VerifyExecution(
	ctx context.Context,
	executor core.ExecutorID,
	sgx, sev *core.ExecutionResult,
) (*VerificationResult, error) {
	if !sgx.SameOutput(sev) {
		return nil, core.ErrResultMismatch
	}
	if err := verifyStats(&sgx.Stats, &sev.Stats); err != nil {
		return nil, err
	}

	sgxAtt, ok := sgx.Attestation()
	if !ok {
		return nil, fmt.Errorf("%w: sgx", ErrMissingAttestation)
	}
	sevAtt, ok := sev.Attestation()
	if !ok {
		return nil, fmt.Errorf("%w: sev", ErrMissingAttestation)
	}
	if _, err := a.Verify(ctx, executor, sgxAtt, sevAtt); err != nil {
		return nil, err
	}

	if !sgx.SameState(sev) {
		return nil, core.ErrStateMismatch
	}

	return &VerificationResult{
		Verified:       true,
		ResultHash:     sha256.Sum256(sgx.Output),
		SGXAttestation: *sgxAtt,
		SEVAttestation: *sevAtt,
	}, nil
}

func verifyStats(a, b *core.ExecutionStats) error {
	if absDiff(uint64(a.ExecutionTime), uint64(b.ExecutionTime)) > uint64(MaxTimeDiff) {
		return fmt.Errorf("%w: %s vs %s", ErrTimingMismatch, a.ExecutionTime, b.ExecutionTime)
	}
	if absDiff(a.MemoryUsed, b.MemoryUsed) > MaxMemoryDiff {
		return fmt.Errorf("%w: memory %d vs %d", ErrResourceMismatch, a.MemoryUsed, b.MemoryUsed)
	}
	if a.InstructionsExecuted != 0 && b.InstructionsExecuted != 0 &&
		absDiff(a.InstructionsExecuted, b.InstructionsExecuted) > MaxInstructionDiff {
		return fmt.Errorf("%w: instructions %d vs %d", ErrResourceMismatch, a.InstructionsExecuted, b.InstructionsExecuted)
	}
	return nil
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
