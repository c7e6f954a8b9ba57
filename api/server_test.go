package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
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
	"github.com/rhombus-tech/POC4/tee"
	"github.com/rhombus-tech/POC4/verifier"
)

var testNow = time.Unix(1_700_000_000, 0).UTC()

type testEnv struct {
	server *Server
	acc    *accumulator.Accumulator
	sgx    *tee.SimulatedBackend
	sev    *tee.SimulatedBackend
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	require := require.New(t)

	clock := &mockable.Clock{}
	clock.Set(testNow)

	acc, err := accumulator.New(store.NewAvalanche(memdb.New()), logging.NoLog{}, accumulator.WithClock(clock))
	require.NoError(err)

	sgx, err := tee.NewSimulatedBackend(core.PlatformTypeSGX, tee.WithSimulatedClock(clock))
	require.NoError(err)
	sev, err := tee.NewSimulatedBackend(core.PlatformTypeSEV, tee.WithSimulatedClock(clock))
	require.NoError(err)

	executor := newExecutor(t, clock, sgx, sev)
	return &testEnv{
		server: NewServer(":0", acc, executor, logging.NoLog{}),
		acc:    acc,
		sgx:    sgx,
		sev:    sev,
	}
}

func newExecutor(t *testing.T, clock *mockable.Clock, primary, secondary core.Backend) *tee.PairedExecutor {
	t.Helper()
	keys := map[core.PlatformType]ed25519.PublicKey{}
	for _, b := range []core.Backend{primary, secondary} {
		if sim, ok := b.(*tee.SimulatedBackend); ok {
			keys[sim.Platform()] = sim.PublicKey()
		}
	}
	v := verifier.New(logging.NoLog{},
		verifier.WithClock(clock),
		verifier.WithSignatureVerifier(&verifier.Ed25519Verifier{
			Keys:     keys,
			Fallback: verifier.StructuralSignatureVerifier{},
		}),
	)
	executor, err := tee.NewPairedExecutor(primary, secondary, v, logging.NoLog{})
	require.NoError(t, err)
	return executor
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	h := env.server.Router()

	rec := do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	env.sev.SetHealthy(false)
	rec = do(t, h, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "unhealthy", decode[healthResponse](t, rec).Status)
}

func TestAccumulatorFlow(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	h := env.server.Router()
	ctx := context.Background()

	rec := do(t, h, http.MethodGet, "/v1/accumulator", nil)
	require.Equal(http.StatusOK, rec.Code)
	require.False(decode[stateResponse](t, rec).Initialized)

	sgxAtts, err := env.sgx.Attestations(ctx)
	require.NoError(err)
	sevAtts, err := env.sev.Attestations(ctx)
	require.NoError(err)

	var executor core.ExecutorID
	executor[0] = 0x01
	executor[1] = 0x42

	rec = do(t, h, http.MethodPost, "/v1/accumulator/attestations", registerRequest{Executor: executor, Attestation: sgxAtts[0]})
	require.Equal(http.StatusPreconditionFailed, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/accumulator/init", `{"max_size": 10}`)
	require.Equal(http.StatusCreated, rec.Code)
	state := decode[stateResponse](t, rec)
	require.True(state.Initialized)
	require.Equal(uint64(10), state.State.Params.MaxSize)
	require.Equal(uint64(2), state.State.Params.MinAttestations)

	rec = do(t, h, http.MethodPost, "/v1/accumulator/init", `{}`)
	require.Equal(http.StatusPreconditionFailed, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/accumulator/attestations", registerRequest{Executor: executor, Attestation: sgxAtts[0]})
	require.Equal(http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/v1/accumulator/attestations", registerRequest{Executor: executor, Attestation: sevAtts[0]})
	require.Equal(http.StatusCreated, rec.Code)
	require.Equal(uint64(2), decode[stateResponse](t, rec).State.Size)

	rec = do(t, h, http.MethodPost, "/v1/accumulator/verify", verifyRequest{Executor: executor, First: sgxAtts[0], Second: sevAtts[0]})
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	require.True(decode[verifyResponse](t, rec).Verified)

	tampered := sevAtts[0]
	tampered.Measurement = append([]byte(nil), tampered.Measurement...)
	tampered.Measurement[0] ^= 0xff
	rec = do(t, h, http.MethodPost, "/v1/accumulator/verify", verifyRequest{Executor: executor, First: sgxAtts[0], Second: tampered})
	require.Equal(http.StatusUnprocessableEntity, rec.Code)
	require.Contains(rec.Body.String(), "measurement mismatch")

	rec = do(t, h, http.MethodGet, "/v1/accumulator/executors/"+executor.String(), nil)
	require.Equal(http.StatusOK, rec.Code)
	got := decode[executorResponse](t, rec)
	require.Equal(uint64(2), got.Record.AttestationCount)
	require.Equal(executor, got.Record.Executor)
	require.NotNil(got.Witness)
	require.Equal(executor, got.Witness.Element.Executor)
	require.Len(got.Attestations, 2)
	require.Equal(sgxAtts[0].Measurement, got.Attestations[0].Measurement)
	require.IsType(&core.SGXReport{}, got.Attestations[0].Report)
	require.Equal(sevAtts[0].Measurement, got.Attestations[1].Measurement)
	require.IsType(&core.SEVReport{}, got.Attestations[1].Report)

	var stranger core.ExecutorID
	stranger[0] = 0x02
	rec = do(t, h, http.MethodGet, "/v1/accumulator/executors/"+stranger.String(), nil)
	require.Equal(http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/accumulator/executors/not-hex", nil)
	require.Equal(http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/accumulator/verify", `{"executor": 1`)
	require.Equal(http.StatusBadRequest, rec.Code)
}

func TestAccumulatorFull(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	h := env.server.Router()

	rec := do(t, h, http.MethodPost, "/v1/accumulator/init", `{"max_size": 1}`)
	require.Equal(http.StatusCreated, rec.Code)

	atts, err := env.sgx.Attestations(context.Background())
	require.NoError(err)
	var executor core.ExecutorID
	executor[0] = 0x01

	rec = do(t, h, http.MethodPost, "/v1/accumulator/attestations", registerRequest{Executor: executor, Attestation: atts[0]})
	require.Equal(http.StatusCreated, rec.Code)
	rec = do(t, h, http.MethodPost, "/v1/accumulator/attestations", registerRequest{Executor: executor, Attestation: atts[0]})
	require.Equal(http.StatusInsufficientStorage, rec.Code)
}

func TestVerifyExecutionRoute(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	h := env.server.Router()
	ctx := context.Background()

	require.NoError(env.acc.Init(ctx, accumulator.DefaultParams()))
	var executor core.ExecutorID
	executor[0] = 0x07

	payload := core.NewExecutionPayload(tee.FunctionAdd, []byte("code,1,2"))
	sgxRes, err := env.sgx.Execute(ctx, payload)
	require.NoError(err)
	sevRes, err := env.sev.Execute(ctx, payload)
	require.NoError(err)
	require.NoError(env.acc.Register(ctx, executor, &sgxRes.Attestations[0]))
	require.NoError(env.acc.Register(ctx, executor, &sevRes.Attestations[0]))

	rec := do(t, h, http.MethodPost, "/v1/accumulator/executions/verify", verifyExecutionRequest{Executor: executor, SGX: *sgxRes, SEV: *sevRes})
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	require.True(decode[accumulator.VerificationResult](t, rec).Verified)

	sevRes.Output = []byte{4}
	rec = do(t, h, http.MethodPost, "/v1/accumulator/executions/verify", verifyExecutionRequest{Executor: executor, SGX: *sgxRes, SEV: *sevRes})
	require.Equal(http.StatusConflict, rec.Code)
}

func TestExecuteRoute(t *testing.T) {
	require := require.New(t)
	env := newTestEnv(t)
	h := env.server.Router()

	rec := do(t, h, http.MethodPost, "/v1/execute", executeRequest{Function: tee.FunctionAdd, Input: []byte("code,1,2")})
	require.Equal(http.StatusOK, rec.Code, rec.Body.String())
	res := decode[core.PairedExecutionResult](t, rec)
	require.Equal([]byte{3, 0, 0, 0, 0, 0, 0, 0}, res.Primary.Output)
	require.Equal(res.Primary.Output, res.Secondary.Output)
	require.Equal(core.PlatformTypeSEV, res.Secondary.Attestations[0].Platform)

	rec = do(t, h, http.MethodPost, "/v1/execute", executeRequest{Function: tee.FunctionAdd, Input: []byte("garbage")})
	require.Equal(http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/v1/attestations", nil)
	require.Equal(http.StatusOK, rec.Code)
	atts := decode[attestationsResponse](t, rec)
	require.Equal(core.PlatformTypeSGX, atts.Primary.Platform)
	require.Equal(core.PlatformTypeSEV, atts.Secondary.Platform)

	rec = do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(http.StatusOK, rec.Code)
	require.True(strings.Contains(rec.Body.String(), "tee_http_requests_total"))
}

// divergentBackend returns a different output than its inner backend.
type divergentBackend struct {
	*tee.SimulatedBackend
}

func (d divergentBackend) Execute(ctx context.Context, payload *core.ExecutionPayload) (*core.ExecutionResult, error) {
	res, err := d.SimulatedBackend.Execute(ctx, payload)
	if err != nil {
		return nil, err
	}
	res.Output[0]++
	return res, nil
}

func TestExecuteMismatchIsConflict(t *testing.T) {
	require := require.New(t)

	clock := &mockable.Clock{}
	clock.Set(testNow)
	sgx, err := tee.NewSimulatedBackend(core.PlatformTypeSGX, tee.WithSimulatedClock(clock))
	require.NoError(err)
	sev, err := tee.NewSimulatedBackend(core.PlatformTypeSEV, tee.WithSimulatedClock(clock))
	require.NoError(err)

	executor := newExecutor(t, clock, sgx, divergentBackend{sev})
	h := NewServer(":0", nil, executor, logging.NoLog{}).Router()

	rec := do(t, h, http.MethodPost, "/v1/execute", executeRequest{Function: tee.FunctionAdd, Input: []byte("code,1,2")})
	require.Equal(http.StatusConflict, rec.Code)
	require.Contains(rec.Body.String(), "result mismatch")

	rec = do(t, h, http.MethodGet, "/v1/accumulator", nil)
	require.Equal(http.StatusNotFound, rec.Code)
}
