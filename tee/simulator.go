package tee

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ava-labs/avalanchego/utils/timer/mockable"
	"github.com/ava-labs/hypersdk/crypto/ed25519"
	"github.com/zeebo/blake3"

	"github.com/rhombus-tech/POC4/core"
	"github.com/rhombus-tech/POC4/verifier"
)

const FunctionAdd = "add"

var _ core.Backend = (*SimulatedBackend)(nil)

// SimulatedBackend runs the fixed "add" job in-process and signs its
// attestations with an ed25519 key. It stands in for real hardware in
// local deployments and tests; its attestations prove nothing about
// hardware isolation.
type SimulatedBackend struct {
	platform    core.PlatformType
	enclaveID   []byte
	measurement []byte
	key         ed25519.PrivateKey
	clock       *mockable.Clock
	healthy     atomic.Bool
}

type SimulatedOption func(*SimulatedBackend)

func WithSimulatedClock(clock *mockable.Clock) SimulatedOption {
	return func(s *SimulatedBackend) {
		s.clock = clock
	}
}

// WithSimulatedKey pins the signing key so verifiers can trust it.
func WithSimulatedKey(key ed25519.PrivateKey) SimulatedOption {
	return func(s *SimulatedBackend) {
		s.key = key
	}
}

func NewSimulatedBackend(platform core.PlatformType, opts ...SimulatedOption) (*SimulatedBackend, error) {
	if !platform.Valid() {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, core.ErrUnknownPlatform)
	}
	s := &SimulatedBackend{
		platform:    platform,
		enclaveID:   []byte("simulated-" + platform.String()),
		measurement: simulatedMeasurement(platform),
		clock:       &mockable.Clock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.key == (ed25519.PrivateKey{}) {
		key, err := ed25519.GeneratePrivateKey()
		if err != nil {
			return nil, err
		}
		s.key = key
	}
	s.healthy.Store(true)
	return s, nil
}

// simulatedMeasurement derives a stable measurement of the platform's size.
func simulatedMeasurement(platform core.PlatformType) []byte {
	h := blake3.New()
	_, _ = h.Write([]byte("simulated-enclave/" + platform.String()))
	out := make([]byte, platform.MeasurementSize())
	_, _ = h.Digest().Read(out)
	return out
}

func (s *SimulatedBackend) Platform() core.PlatformType {
	return s.platform
}

func (s *SimulatedBackend) PublicKey() ed25519.PublicKey {
	return s.key.PublicKey()
}

func (s *SimulatedBackend) Measurement() []byte {
	return bytes.Clone(s.measurement)
}

func (s *SimulatedBackend) SetHealthy(healthy bool) {
	s.healthy.Store(healthy)
}

func (s *SimulatedBackend) Execute(ctx context.Context, payload *core.ExecutionPayload) (*core.ExecutionResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if payload.Function != "" && payload.Function != FunctionAdd {
		return nil, fmt.Errorf("%w: %q", ErrUnknownFunction, payload.Function)
	}

	start := time.Now()
	sum, err := add(payload.Input)
	if err != nil {
		return nil, err
	}
	output := binary.LittleEndian.AppendUint64(nil, sum)

	h := blake3.New()
	_, _ = h.Write([]byte(payload.Function))
	_, _ = h.Write(payload.Input)
	_, _ = h.Write(output)
	stateHash := h.Sum(nil)

	return &core.ExecutionResult{
		Output:    output,
		StateHash: stateHash,
		Stats: core.ExecutionStats{
			ExecutionTime: time.Since(start),
			MemoryUsed:    uint64(len(payload.Input) + len(output)),
		},
		Attestations: []core.TEEAttestation{s.attest(output)},
	}, nil
}

func (s *SimulatedBackend) Attestations(ctx context.Context) ([]core.TEEAttestation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []core.TEEAttestation{s.attest(nil)}, nil
}

func (s *SimulatedBackend) HealthCheck(context.Context) (bool, error) {
	return s.healthy.Load(), nil
}

func (s *SimulatedBackend) attest(data []byte) core.TEEAttestation {
	att := core.TEEAttestation{
		Platform:    s.platform,
		EnclaveID:   bytes.Clone(s.enclaveID),
		Measurement: bytes.Clone(s.measurement),
		Timestamp:   s.clock.Time().Truncate(time.Second).UTC(),
		Data:        data,
		Report:      s.report(),
	}
	verifier.SignEd25519(s.key, &att)
	return att
}

func (s *SimulatedBackend) report() core.PlatformReport {
	switch s.platform {
	case core.PlatformTypeSGX:
		r := &core.SGXReport{}
		copy(r.MrEnclave[:], s.measurement)
		pub := s.key.PublicKey()
		r.MrSigner = blake3.Sum256(pub[:])
		return r
	default:
		r := &core.SEVReport{}
		copy(r.Measurement[:], s.measurement)
		copy(r.LaunchDigest[:], s.measurement)
		return r
	}
}

// add parses "code,a,b": everything up to the first comma names the code
// and the remainder must be exactly two 32-bit integers.
func add(input []byte) (uint64, error) {
	_, params, ok := strings.Cut(string(input), ",")
	if !ok {
		return 0, fmt.Errorf("%w: expected code,a,b", ErrInvalidInput)
	}
	parts := strings.Split(params, ",")
	if len(parts) != 2 {
		return 0, fmt.Errorf("%w: expected 2 parameters, got %d", ErrInvalidInput, len(parts))
	}
	a, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	b, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	// 32-bit wrapping add, then sign extension into the 64-bit result
	return uint64(int64(int32(a) + int32(b))), nil
}
