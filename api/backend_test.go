package api

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"github.com/stretchr/testify/require"

	"github.com/rhombus-tech/POC4/core"
	"github.com/rhombus-tech/POC4/regions"
	"github.com/rhombus-tech/POC4/tee"
)

func newRegionClient(t *testing.T, token string, rs ...regions.Region) *regions.Client {
	t.Helper()
	cfg := regions.DefaultConfig()
	cfg.AuthToken = token
	cfg.InitialRetryDelay = time.Millisecond
	cfg.MaxRetryDelay = 2 * time.Millisecond
	cfg.Regions = rs
	c, err := regions.NewClient(cfg, logging.NoLog{})
	require.NoError(t, err)
	return c
}

func TestBackendServerWithRegionClient(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()

	sim, err := tee.NewSimulatedBackend(core.PlatformTypeSGX)
	require.NoError(err)
	srv := httptest.NewServer(NewBackendServer(":0", sim, "s3cret", logging.NoLog{}).Router())
	defer srv.Close()

	client := newRegionClient(t, "s3cret", regions.Region{ID: "local", Endpoint: srv.URL, Platform: "sgx"})
	backend, err := client.Backend("local")
	require.NoError(err)

	res, err := backend.Execute(ctx, core.NewExecutionPayload(tee.FunctionAdd, []byte("code,5,6")))
	require.NoError(err)
	require.Equal(uint64(11), binary.LittleEndian.Uint64(res.Output))
	require.IsType(&core.SGXReport{}, res.Attestations[0].Report)

	atts, err := backend.Attestations(ctx)
	require.NoError(err)
	require.Len(atts, 1)
	require.Equal(sim.Measurement(), atts[0].Measurement)

	healthy, err := client.HealthCheck(ctx)
	require.NoError(err)
	require.True(healthy)

	_, err = backend.Execute(ctx, core.NewExecutionPayload(tee.FunctionAdd, []byte("nope")))
	require.ErrorIs(err, regions.ErrRejected)
	require.ErrorContains(err, "status 400")

	sim.SetHealthy(false)
	healthy, err = client.HealthCheck(ctx)
	require.False(healthy)
	require.ErrorIs(err, regions.ErrUnhealthy)
}

func TestBackendServerAuth(t *testing.T) {
	require := require.New(t)

	sim, err := tee.NewSimulatedBackend(core.PlatformTypeSEV)
	require.NoError(err)
	h := NewBackendServer(":0", sim, "s3cret", logging.NoLog{}).Router()

	rec := do(t, h, http.MethodGet, "/attestations", nil)
	require.Equal(http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/attestations", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/attestations", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(http.StatusOK, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrResultMismatch, http.StatusConflict},
		{core.ErrStateMismatch, http.StatusConflict},
		{core.ErrBackendUnavailable, http.StatusServiceUnavailable},
		{core.ErrAttestation, http.StatusUnprocessableEntity},
		{core.ErrConfiguration, http.StatusBadRequest},
		{core.ErrInitialization, http.StatusPreconditionFailed},
		{core.ErrRegion, http.StatusBadGateway},
		{tee.ErrInvalidInput, http.StatusBadRequest},
		{context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			require.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
