package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ava-labs/hypersdk/crypto/ed25519"
	"gopkg.in/yaml.v2"

	"github.com/rhombus-tech/POC4/accumulator"
	"github.com/rhombus-tech/POC4/core"
	"github.com/rhombus-tech/POC4/regions"
	"github.com/rhombus-tech/POC4/store"
	"github.com/rhombus-tech/POC4/tee"
	"github.com/rhombus-tech/POC4/verifier"
)

// Backend kinds accepted in BackendConfig.Backend.
const (
	KindGRPC      = "grpc"
	KindRegion    = "region"
	KindSimulated = "simulated"
	KindProcess   = "process"
)

type Config struct {
	Listen      string            `yaml:"listen"`
	LogLevel    string            `yaml:"log_level"`
	Store       store.Config      `yaml:"store"`
	Accumulator AccumulatorConfig `yaml:"accumulator"`
	Verifier    VerifierConfig    `yaml:"verifier"`
	Executor    ExecutorConfig    `yaml:"executor"`
	Client      regions.Config    `yaml:"client"`
}

type AccumulatorConfig struct {
	// InitOnStart initializes an empty accumulator with Params at startup.
	InitOnStart bool               `yaml:"init_on_start"`
	Params      accumulator.Params `yaml:"params"`
}

type VerifierConfig struct {
	MaxAge time.Duration `yaml:"max_age"`
	// Ed25519Keys maps a platform name to a hex encoded public key.
	Ed25519Keys map[string]string `yaml:"ed25519_keys"`
	// StructuralFallback accepts signatures of platforms without a key
	// after structural checks only.
	StructuralFallback bool `yaml:"structural_fallback"`
}

type ExecutorConfig struct {
	tee.Config `yaml:",inline"`
	Primary    BackendConfig `yaml:"primary"`
	Secondary  BackendConfig `yaml:"secondary"`
}

// BackendConfig names one side of the pair. Backend is one of
// "grpc://host:port", "region:<id>", "simulated" or "process:<path>".
type BackendConfig struct {
	Platform string   `yaml:"platform"`
	Backend  string   `yaml:"backend"`
	Args     []string `yaml:"args"`
	// Retry wraps the backend with the client retry policy.
	Retry bool `yaml:"retry"`
}

func Default() *Config {
	return &Config{
		Listen:   ":8080",
		LogLevel: "info",
		Store: store.Config{
			Backend: store.BackendMemory,
		},
		Accumulator: AccumulatorConfig{
			Params: accumulator.DefaultParams(),
		},
		Verifier: VerifierConfig{
			MaxAge: verifier.DefaultMaxAge,
		},
		Executor: ExecutorConfig{
			Config:    tee.DefaultConfig(),
			Primary:   BackendConfig{Platform: "sgx", Backend: KindSimulated},
			Secondary: BackendConfig{Platform: "sev", Backend: KindSimulated},
		},
		Client: regions.DefaultConfig(),
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.UnmarshalStrict(b, cfg); err != nil {
			return nil, fmt.Errorf("%w: failed to parse %s: %w", core.ErrConfiguration, path, err)
		}
	}
	if err := cfg.Client.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.resolveRegionPlatforms()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case store.BackendMemory, store.BackendPebble:
	default:
		return fmt.Errorf("%w: %w: %q", core.ErrConfiguration, store.ErrUnknownBackend, c.Store.Backend)
	}
	if c.Store.Backend == store.BackendPebble && c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is required for pebble", core.ErrConfiguration)
	}
	if err := c.Accumulator.Params.Validate(); err != nil {
		return err
	}
	if c.Verifier.MaxAge <= 0 {
		return fmt.Errorf("%w: verifier.max_age must be positive", core.ErrConfiguration)
	}
	if _, err := c.Verifier.Keys(); err != nil {
		return err
	}
	if err := c.Executor.Config.Validate(); err != nil {
		return err
	}
	if err := c.Client.Validate(); err != nil {
		return err
	}

	primary, err := c.Executor.Primary.validate(c.Client)
	if err != nil {
		return fmt.Errorf("executor.primary: %w", err)
	}
	secondary, err := c.Executor.Secondary.validate(c.Client)
	if err != nil {
		return fmt.Errorf("executor.secondary: %w", err)
	}
	if primary == secondary {
		return fmt.Errorf("%w: both backends are %s", tee.ErrSamePlatform, primary)
	}
	return nil
}

// resolveRegionPlatforms copies a side's platform onto the region it
// names when the region itself does not declare one.
func (c *Config) resolveRegionPlatforms() {
	for _, side := range []BackendConfig{c.Executor.Primary, c.Executor.Secondary} {
		kind, target := side.Kind()
		if kind != KindRegion || side.Platform == "" {
			continue
		}
		for i := range c.Client.Regions {
			if c.Client.Regions[i].ID == target && c.Client.Regions[i].Platform == "" {
				c.Client.Regions[i].Platform = side.Platform
			}
		}
	}
}

// Keys decodes the configured ed25519 trust roots.
func (v VerifierConfig) Keys() (map[core.PlatformType]ed25519.PublicKey, error) {
	keys := make(map[core.PlatformType]ed25519.PublicKey, len(v.Ed25519Keys))
	for name, encoded := range v.Ed25519Keys {
		platform, err := core.ParsePlatform(name)
		if err != nil {
			return nil, fmt.Errorf("%w: verifier.ed25519_keys: %w", core.ErrConfiguration, err)
		}
		b, err := hex.DecodeString(strings.TrimPrefix(encoded, "0x"))
		if err != nil || len(b) != ed25519.PublicKeyLen {
			return nil, fmt.Errorf("%w: verifier.ed25519_keys.%s: want %d hex bytes", core.ErrConfiguration, name, ed25519.PublicKeyLen)
		}
		var key ed25519.PublicKey
		copy(key[:], b)
		keys[platform] = key
	}
	return keys, nil
}

// Kind splits Backend into its kind and target.
func (b BackendConfig) Kind() (string, string) {
	if target, ok := strings.CutPrefix(b.Backend, "grpc://"); ok {
		return KindGRPC, target
	}
	kind, target, _ := strings.Cut(b.Backend, ":")
	return kind, target
}

// PlatformType resolves the side's platform. Region backends may omit it
// and inherit the region's.
func (b BackendConfig) PlatformType(client regions.Config) (core.PlatformType, error) {
	kind, target := b.Kind()
	if b.Platform == "" && kind == KindRegion {
		for _, r := range client.Regions {
			if r.ID == target {
				return r.PlatformType()
			}
		}
	}
	return core.ParsePlatform(b.Platform)
}

func (b BackendConfig) validate(client regions.Config) (core.PlatformType, error) {
	platform, err := b.PlatformType(client)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	kind, target := b.Kind()
	switch kind {
	case KindSimulated:
	case KindGRPC, KindProcess:
		if target == "" {
			return 0, fmt.Errorf("%w: %s backend needs a target", core.ErrConfiguration, kind)
		}
	case KindRegion:
		found := false
		for _, r := range client.Regions {
			if r.ID == target {
				found = true
				if rp, err := r.PlatformType(); r.Platform != "" && (err != nil || rp != platform) {
					return 0, fmt.Errorf("%w: region %s is %s, not %s", core.ErrConfiguration, r.ID, r.Platform, platform)
				}
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %w: %q", core.ErrConfiguration, regions.ErrUnknownRegion, target)
		}
	default:
		return 0, fmt.Errorf("%w: unknown backend %q", core.ErrConfiguration, b.Backend)
	}
	return platform, nil
}
