package config

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ava-labs/hypersdk/crypto/ed25519"
	"github.com/stretchr/testify/require"

	"github.com/rhombus-tech/POC4/core"
	"github.com/rhombus-tech/POC4/regions"
	"github.com/rhombus-tech/POC4/tee"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Client.MaxRetries)
	require.Equal(t, 100*time.Millisecond, cfg.Client.InitialRetryDelay)
	require.Equal(t, 5*time.Second, cfg.Client.MaxRetryDelay)
	require.Equal(t, 10*time.Second, cfg.Client.ConnectTimeout)
	require.Equal(t, 30*time.Second, cfg.Client.RequestTimeout)
}

func TestLoad(t *testing.T) {
	require := require.New(t)

	key, err := ed25519.GeneratePrivateKey()
	require.NoError(err)
	pub := key.PublicKey()

	path := writeConfig(t, `
listen: ":9090"
store:
  backend: pebble
  path: /var/lib/tee
accumulator:
  init_on_start: true
  params:
    max_size: 50
    max_witness_age: 24h
    min_attestations: 2
verifier:
  max_age: 30m
  ed25519_keys:
    sgx: "`+hex.EncodeToString(pub[:])+`"
executor:
  backend_timeout: 5s
  max_concurrent: 4
  primary:
    platform: sgx
    backend: grpc://127.0.0.1:9001
    retry: true
  secondary:
    backend: region:eu-west-1
client:
  auth_token: token
  max_retries: 5
  initial_retry_delay: 50ms
  max_retry_delay: 2s
  connect_timeout: 1s
  request_timeout: 10s
  regions:
    - id: eu-west-1
      endpoint: https://eu.example.com
      platform: sev
`)
	t.Setenv(regions.EnvRequestTimeoutMS, "20000")

	cfg, err := Load(path)
	require.NoError(err)
	require.Equal(":9090", cfg.Listen)
	require.Equal("pebble", cfg.Store.Backend)
	require.True(cfg.Accumulator.InitOnStart)
	require.Equal(uint64(50), cfg.Accumulator.Params.MaxSize)
	require.Equal(24*time.Hour, cfg.Accumulator.Params.MaxWitnessAge)
	require.Equal(30*time.Minute, cfg.Verifier.MaxAge)
	require.Equal(5*time.Second, cfg.Executor.BackendTimeout)
	require.Equal(int64(4), cfg.Executor.MaxConcurrent)
	require.Equal(20*time.Second, cfg.Client.RequestTimeout)

	keys, err := cfg.Verifier.Keys()
	require.NoError(err)
	require.Equal(pub, keys[core.PlatformTypeSGX])

	kind, target := cfg.Executor.Primary.Kind()
	require.Equal(KindGRPC, kind)
	require.Equal("127.0.0.1:9001", target)
	require.True(cfg.Executor.Primary.Retry)

	platform, err := cfg.Executor.Secondary.PlatformType(cfg.Client)
	require.NoError(err)
	require.Equal(core.PlatformTypeSEV, platform)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
	}{
		{
			name: "unknown field",
			body: "listen: \":1\"\nbogus: true\n",
			err:  core.ErrConfiguration,
		},
		{
			name: "connect above request",
			body: "client:\n  connect_timeout: 1m\n",
			err:  regions.ErrInvalidConfig,
		},
		{
			name: "zero retries",
			body: "client:\n  max_retries: 0\n",
			err:  core.ErrConfiguration,
		},
		{
			name: "same platform",
			body: "executor:\n  secondary:\n    platform: sgx\n    backend: simulated\n",
			err:  tee.ErrSamePlatform,
		},
		{
			name: "unknown region",
			body: "executor:\n  secondary:\n    platform: sev\n    backend: region:nowhere\n",
			err:  regions.ErrUnknownRegion,
		},
		{
			name: "unknown backend kind",
			body: "executor:\n  secondary:\n    platform: sev\n    backend: carrier-pigeon\n",
			err:  core.ErrConfiguration,
		},
		{
			name: "pebble without path",
			body: "store:\n  backend: pebble\n",
			err:  core.ErrConfiguration,
		},
		{
			name: "bad key",
			body: "verifier:\n  ed25519_keys:\n    sev: abcd\n",
			err:  core.ErrConfiguration,
		},
		{
			name: "empty accumulator",
			body: "accumulator:\n  params:\n    max_size: 0\n",
			err:  core.ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.ErrorIs(t, err, tt.err)
		})
	}
}
