package tee

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/database/memdb"
	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/ava-labs/avalanchego/utils/timer/mockable"
	"github.com/ava-labs/hypersdk/crypto/ed25519"
	"github.com/stretchr/testify/require"

	"github.com/rhombus-tech/POC4/accumulator"
	"github.com/rhombus-tech/POC4/core"
	"github.com/rhombus-tech/POC4/store"
	"github.com/rhombus-tech/POC4/verifier"
)

var testNow = time.Unix(1_700_000_000, 0).UTC()

func testClock() *mockable.Clock {
	clock := &mockable.Clock{}
	clock.Set(testNow)
	return clock
}

type fakeBackend struct {
	platform    core.PlatformType
	output      []byte
	stateHash   []byte
	attestation *core.TEEAttestation
	err         error
	delay       time.Duration
	healthy     bool
	block       chan struct{}
}

func newFakeBackend(platform core.PlatformType, output string) *fakeBackend {
	return &fakeBackend{
		platform:  platform,
		output:    []byte(output),
		stateHash: []byte("state"),
		attestation: &core.TEEAttestation{
			Platform:    platform,
			EnclaveID:   []byte("fake"),
			Measurement: bytes.Repeat([]byte{0x5a}, platform.MeasurementSize()),
			Signature:   bytes.Repeat([]byte{0x01}, platform.SignatureSize()),
			Timestamp:   testNow,
		},
		healthy: true,
	}
}

func (f *fakeBackend) Platform() core.PlatformType {
	return f.platform
}

func (f *fakeBackend) Execute(ctx context.Context, _ *core.ExecutionPayload) (*core.ExecutionResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	res := &core.ExecutionResult{
		Output:    f.output,
		StateHash: f.stateHash,
	}
	if f.attestation != nil {
		res.Attestations = []core.TEEAttestation{*f.attestation}
	}
	return res, nil
}

func (f *fakeBackend) Attestations(context.Context) ([]core.TEEAttestation, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.attestation == nil {
		return nil, nil
	}
	return []core.TEEAttestation{*f.attestation}, nil
}

func (f *fakeBackend) HealthCheck(context.Context) (bool, error) {
	return f.healthy, nil
}

func newTestExecutor(t *testing.T, primary, secondary core.Backend, opts ...Option) *PairedExecutor {
	t.Helper()
	v := verifier.New(logging.NoLog{}, verifier.WithClock(testClock()))
	e, err := NewPairedExecutor(primary, secondary, v, logging.NoLog{}, opts...)
	require.NoError(t, err)
	return e
}

func TestNewPairedExecutorRejectsSamePlatform(t *testing.T) {
	require := require.New(t)
	v := verifier.New(logging.NoLog{})

	_, err := NewPairedExecutor(newFakeBackend(core.PlatformTypeSGX, "1"), newFakeBackend(core.PlatformTypeSGX, "1"), v, logging.NoLog{})
	require.ErrorIs(err, ErrSamePlatform)
	require.ErrorIs(err, core.ErrConfiguration)

	_, err = NewPairedExecutor(nil, newFakeBackend(core.PlatformTypeSEV, "1"), v, logging.NoLog{})
	require.ErrorIs(err, ErrNilBackend)
}

func TestExecuteAgreement(t *testing.T) {
	require := require.New(t)

	e := newTestExecutor(t, newFakeBackend(core.PlatformTypeSGX, "3"), newFakeBackend(core.PlatformTypeSEV, "3"))
	res, err := e.Execute(context.Background(), core.NewExecutionPayload(FunctionAdd, []byte("c,1,2")))
	require.NoError(err)
	require.Equal([]byte("3"), res.Primary.Output)
	require.Equal([]byte("3"), res.Secondary.Output)
	require.Equal(core.PlatformTypeSGX, res.Primary.Attestations[0].Platform)
	require.Equal(core.PlatformTypeSEV, res.Secondary.Attestations[0].Platform)
}

func TestExecuteNilPayload(t *testing.T) {
	require := require.New(t)

	primary := newFakeBackend(core.PlatformTypeSGX, "3")
	primary.err = errors.New("must not be called")
	e := newTestExecutor(t, primary, newFakeBackend(core.PlatformTypeSEV, "3"))

	res, err := e.Execute(context.Background(), nil)
	require.ErrorIs(err, ErrInvalidInput)
	require.NotErrorIs(err, core.ErrBackendUnavailable)
	require.Nil(res)
}

func TestExecuteFailures(t *testing.T) {
	backendErr := errors.New("enclave crashed")

	tests := []struct {
		name      string
		configure func(primary, secondary *fakeBackend)
		err       error
	}{
		{
			name: "outputs differ",
			configure: func(_, secondary *fakeBackend) {
				secondary.output = []byte("4")
			},
			err: core.ErrResultMismatch,
		},
		{
			name: "state differs",
			configure: func(_, secondary *fakeBackend) {
				secondary.stateHash = []byte("other")
			},
			err: core.ErrStateMismatch,
		},
		{
			name: "primary errors",
			configure: func(primary, _ *fakeBackend) {
				primary.err = backendErr
			},
			err: core.ErrBackendUnavailable,
		},
		{
			name: "secondary errors",
			configure: func(_, secondary *fakeBackend) {
				secondary.err = backendErr
			},
			err: backendErr,
		},
		{
			name: "secondary attestation expired",
			configure: func(_, secondary *fakeBackend) {
				secondary.attestation.Timestamp = testNow.Add(-2 * time.Hour)
			},
			err: verifier.ErrExpired,
		},
		{
			name: "primary attestation wrong size",
			configure: func(primary, _ *fakeBackend) {
				primary.attestation.Signature = []byte{1}
			},
			err: verifier.ErrSignatureLength,
		},
		{
			name: "missing attestation",
			configure: func(primary, _ *fakeBackend) {
				primary.attestation = nil
			},
			err: ErrMissingAttestation,
		},
		{
			name: "attestation from the other platform",
			configure: func(primary, secondary *fakeBackend) {
				a := *secondary.attestation
				primary.attestation = &a
			},
			err: ErrPlatformMismatch,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := newFakeBackend(core.PlatformTypeSGX, "3")
			secondary := newFakeBackend(core.PlatformTypeSEV, "3")
			tt.configure(primary, secondary)

			e := newTestExecutor(t, primary, secondary)
			res, err := e.Execute(context.Background(), core.NewExecutionPayload(FunctionAdd, nil))
			require.ErrorIs(t, err, tt.err)
			require.Nil(t, res)
		})
	}
}

func TestExecuteAttestationFailureIsNotMismatch(t *testing.T) {
	require := require.New(t)

	secondary := newFakeBackend(core.PlatformTypeSEV, "3")
	secondary.attestation.Measurement = make([]byte, core.SEVMeasurementSize)
	e := newTestExecutor(t, newFakeBackend(core.PlatformTypeSGX, "3"), secondary)

	_, err := e.Execute(context.Background(), core.NewExecutionPayload(FunctionAdd, nil))
	require.ErrorIs(err, core.ErrAttestation)
	require.NotErrorIs(err, core.ErrResultMismatch)
	require.NotErrorIs(err, core.ErrBackendUnavailable)
}

func TestExecuteBackendTimeout(t *testing.T) {
	require := require.New(t)

	slow := newFakeBackend(core.PlatformTypeSEV, "3")
	slow.delay = time.Minute
	e := newTestExecutor(t, newFakeBackend(core.PlatformTypeSGX, "3"), slow, WithBackendTimeout(20*time.Millisecond))

	start := time.Now()
	_, err := e.Execute(context.Background(), core.NewExecutionPayload(FunctionAdd, nil))
	require.ErrorIs(err, core.ErrBackendUnavailable)
	require.ErrorIs(err, context.DeadlineExceeded)
	require.Less(time.Since(start), 10*time.Second)
}

func TestExecuteFailureReleasesCounterpart(t *testing.T) {
	require := require.New(t)

	failing := newFakeBackend(core.PlatformTypeSGX, "3")
	failing.err = errors.New("boom")
	blocked := newFakeBackend(core.PlatformTypeSEV, "3")
	blocked.block = make(chan struct{})
	e := newTestExecutor(t, failing, blocked)

	_, err := e.Execute(context.Background(), core.NewExecutionPayload(FunctionAdd, nil))
	require.ErrorIs(err, core.ErrBackendUnavailable)
}

func TestExecuteMaxConcurrent(t *testing.T) {
	require := require.New(t)

	primary := newFakeBackend(core.PlatformTypeSGX, "3")
	primary.block = make(chan struct{})
	e := newTestExecutor(t, primary, newFakeBackend(core.PlatformTypeSEV, "3"), WithMaxConcurrent(1))

	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(context.Background(), core.NewExecutionPayload(FunctionAdd, nil))
		done <- err
	}()

	// wait until the first call holds the only slot
	require.Eventually(func() bool {
		if !e.sem.TryAcquire(1) {
			return true
		}
		e.sem.Release(1)
		return false
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Execute(ctx, core.NewExecutionPayload(FunctionAdd, nil))
	require.ErrorIs(err, context.DeadlineExceeded)

	close(primary.block)
	require.NoError(<-done)
}

func TestGetAttestations(t *testing.T) {
	require := require.New(t)

	primary := newFakeBackend(core.PlatformTypeSGX, "3")
	secondary := newFakeBackend(core.PlatformTypeSEV, "3")
	// no validation happens here
	secondary.attestation.Timestamp = testNow.Add(-48 * time.Hour)
	e := newTestExecutor(t, primary, secondary)

	a, b, err := e.GetAttestations(context.Background())
	require.NoError(err)
	require.Equal(core.PlatformTypeSGX, a.Platform)
	require.Equal(core.PlatformTypeSEV, b.Platform)

	secondary.err = errors.New("down")
	_, _, err = e.GetAttestations(context.Background())
	require.ErrorIs(err, core.ErrBackendUnavailable)
}

func TestHealthCheck(t *testing.T) {
	require := require.New(t)

	primary := newFakeBackend(core.PlatformTypeSGX, "3")
	secondary := newFakeBackend(core.PlatformTypeSEV, "3")
	e := newTestExecutor(t, primary, secondary)
	require.NoError(e.HealthCheck(context.Background()))

	secondary.healthy = false
	require.ErrorIs(e.HealthCheck(context.Background()), core.ErrBackendUnavailable)
}

func TestExecuteSimulatedWithMembership(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	clock := testClock()

	sgxKey, err := ed25519.GeneratePrivateKey()
	require.NoError(err)
	sevKey, err := ed25519.GeneratePrivateKey()
	require.NoError(err)
	sgx, err := NewSimulatedBackend(core.PlatformTypeSGX, WithSimulatedClock(clock), WithSimulatedKey(sgxKey))
	require.NoError(err)
	sev, err := NewSimulatedBackend(core.PlatformTypeSEV, WithSimulatedClock(clock), WithSimulatedKey(sevKey))
	require.NoError(err)

	acc, err := accumulator.New(store.NewAvalanche(memdb.New()), logging.NoLog{}, accumulator.WithClock(clock))
	require.NoError(err)
	require.NoError(acc.Init(ctx, accumulator.DefaultParams()))

	var executor core.ExecutorID
	executor[0] = 1
	for _, b := range []*SimulatedBackend{sgx, sev} {
		atts, err := b.Attestations(ctx)
		require.NoError(err)
		require.NoError(acc.Register(ctx, executor, &atts[0]))
	}

	v := verifier.New(logging.NoLog{},
		verifier.WithClock(clock),
		verifier.WithSignatureVerifier(&verifier.Ed25519Verifier{
			Keys: map[core.PlatformType]ed25519.PublicKey{
				core.PlatformTypeSGX: sgx.PublicKey(),
				core.PlatformTypeSEV: sev.PublicKey(),
			},
		}),
	)
	e, err := NewPairedExecutor(sgx, sev, v, logging.NoLog{}, WithMembership(acc, executor))
	require.NoError(err)

	res, err := e.Execute(ctx, core.NewExecutionPayload(FunctionAdd, []byte("code,1,2")))
	require.NoError(err)
	require.Equal([]byte{3, 0, 0, 0, 0, 0, 0, 0}, res.Primary.Output)

	var stranger core.ExecutorID
	stranger[0] = 2
	e, err = NewPairedExecutor(sgx, sev, v, logging.NoLog{}, WithMembership(acc, stranger))
	require.NoError(err)
	_, err = e.Execute(ctx, core.NewExecutionPayload(FunctionAdd, []byte("code,1,2")))
	require.ErrorIs(err, ErrNotMember)
	require.ErrorIs(err, accumulator.ErrNotRegistered)
}
