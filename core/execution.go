package core

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/ava-labs/hypersdk/codec"
	"github.com/google/uuid"
)

// ExecutorID identifies a registered executor. It shares the hypersdk
// address layout so executor IDs can be derived from chain addresses.
type ExecutorID codec.Address

var EmptyExecutorID = ExecutorID(codec.EmptyAddress)

func ExecutorIDFromBytes(b []byte) (ExecutorID, error) {
	var id ExecutorID
	if len(b) != codec.AddressLen {
		return id, fmt.Errorf("%w: length %d, want %d", ErrInvalidExecutor, len(b), codec.AddressLen)
	}
	copy(id[:], b)
	return id, nil
}

func ParseExecutorID(s string) (ExecutorID, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return EmptyExecutorID, fmt.Errorf("%w: %v", ErrInvalidExecutor, err)
	}
	return ExecutorIDFromBytes(b)
}

func (id ExecutorID) String() string {
	return hex.EncodeToString(id[:])
}

func (id ExecutorID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ExecutorID) UnmarshalText(b []byte) error {
	parsed, err := ParseExecutorID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id ExecutorID) Marshal(p *codec.Packer) {
	p.PackFixedBytes(id[:])
}

func (id *ExecutorID) Unmarshal(p *codec.Packer) {
	// UnpackFixedBytes copies into dest, so it must already be sized.
	b := id[:]
	p.UnpackFixedBytes(codec.AddressLen, &b)
}

type ExecutionPayload struct {
	ID            string `json:"id"`
	Function      string `json:"function"`
	Input         []byte `json:"input"`
	ExpectedHash  []byte `json:"expected_hash,omitempty"`
	DetailedProof bool   `json:"detailed_proof,omitempty"`
}

// NewExecutionPayload assigns a fresh job ID.
func NewExecutionPayload(function string, input []byte) *ExecutionPayload {
	return &ExecutionPayload{
		ID:       uuid.NewString(),
		Function: function,
		Input:    input,
	}
}

type ExecutionStats struct {
	ExecutionTime time.Duration `json:"execution_time"`
	MemoryUsed    uint64        `json:"memory_used"`
	SyscallCount  uint64        `json:"syscall_count"`
	// zero when the backend does not count instructions
	InstructionsExecuted uint64 `json:"instructions_executed,omitempty"`
}

type ExecutionResult struct {
	Output       []byte           `json:"output"`
	StateHash    []byte           `json:"state_hash"`
	Stats        ExecutionStats   `json:"stats"`
	Attestations []TEEAttestation `json:"attestations"`
}

// Attestation returns the attestation the backend produced for this result.
func (r *ExecutionResult) Attestation() (*TEEAttestation, bool) {
	if len(r.Attestations) == 0 {
		return nil, false
	}
	return &r.Attestations[0], true
}

func (r *ExecutionResult) SameOutput(other *ExecutionResult) bool {
	return bytes.Equal(r.Output, other.Output)
}

func (r *ExecutionResult) SameState(other *ExecutionResult) bool {
	return bytes.Equal(r.StateHash, other.StateHash)
}

// PairedExecutionResult is only ever built once both sides agree and are attested.
type PairedExecutionResult struct {
	Primary   ExecutionResult `json:"primary"`
	Secondary ExecutionResult `json:"secondary"`
}
