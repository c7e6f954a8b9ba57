package regions

import (
	"fmt"
	"strconv"
	"time"

	"github.com/rhombus-tech/POC4/core"
)

// Upper bounds accepted by Validate.
const (
	MaxRetriesLimit     = 10
	MaxRetryDelayLimit  = 30 * time.Second
	RequestTimeoutLimit = 5 * time.Minute
)

// Environment overrides applied by ApplyEnv.
const (
	EnvRequestTimeoutMS = "TEE_REQUEST_TIMEOUT_MS"
	EnvConnectTimeoutMS = "TEE_CONNECT_TIMEOUT_MS"
	EnvAuthToken        = "TEE_AUTH_TOKEN"
)

// Region is one remote execution endpoint.
type Region struct {
	ID       string `yaml:"id" json:"id"`
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// AuthToken overrides Config.AuthToken for this region.
	AuthToken string `yaml:"auth_token" json:"-"`
	// Platform is "sgx" or "sev" when the region fronts a single backend.
	Platform string `yaml:"platform" json:"platform,omitempty"`
}

// PlatformType resolves the configured platform.
func (r Region) PlatformType() (core.PlatformType, error) {
	return core.ParsePlatform(r.Platform)
}

type Config struct {
	AuthToken         string        `yaml:"auth_token"`
	Regions           []Region      `yaml:"regions"`
	MaxRetries        int           `yaml:"max_retries"`
	InitialRetryDelay time.Duration `yaml:"initial_retry_delay"`
	MaxRetryDelay     time.Duration `yaml:"max_retry_delay"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialRetryDelay: 100 * time.Millisecond,
		MaxRetryDelay:     5 * time.Second,
		ConnectTimeout:    10 * time.Second,
		RequestTimeout:    30 * time.Second,
	}
}

// ApplyEnv overrides timeouts and the auth token from the environment.
// lookup is usually os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvRequestTimeoutMS); ok {
		ms, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvRequestTimeoutMS, err)
		}
		c.RequestTimeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := lookup(EnvConnectTimeoutMS); ok {
		ms, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, EnvConnectTimeoutMS, err)
		}
		c.ConnectTimeout = time.Duration(ms) * time.Millisecond
	}
	if v, ok := lookup(EnvAuthToken); ok {
		c.AuthToken = v
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.MaxRetries <= 0 || c.MaxRetries > MaxRetriesLimit:
		return fmt.Errorf("%w: max_retries must be in (0, %d], got %d", ErrInvalidConfig, MaxRetriesLimit, c.MaxRetries)
	case c.InitialRetryDelay <= 0:
		return fmt.Errorf("%w: initial_retry_delay must be positive", ErrInvalidConfig)
	case c.InitialRetryDelay > c.MaxRetryDelay:
		return fmt.Errorf("%w: initial_retry_delay %s exceeds max_retry_delay %s", ErrInvalidConfig, c.InitialRetryDelay, c.MaxRetryDelay)
	case c.MaxRetryDelay > MaxRetryDelayLimit:
		return fmt.Errorf("%w: max_retry_delay %s exceeds %s", ErrInvalidConfig, c.MaxRetryDelay, MaxRetryDelayLimit)
	case c.ConnectTimeout <= 0:
		return fmt.Errorf("%w: connect_timeout must be positive", ErrInvalidConfig)
	case c.ConnectTimeout > c.RequestTimeout:
		return fmt.Errorf("%w: connect_timeout %s exceeds request_timeout %s", ErrInvalidConfig, c.ConnectTimeout, c.RequestTimeout)
	case c.RequestTimeout > RequestTimeoutLimit:
		return fmt.Errorf("%w: request_timeout %s exceeds %s", ErrInvalidConfig, c.RequestTimeout, RequestTimeoutLimit)
	}

	seen := make(map[string]struct{}, len(c.Regions))
	for i, r := range c.Regions {
		if r.ID == "" {
			return fmt.Errorf("%w: region %d has no id", ErrInvalidConfig, i)
		}
		if _, ok := seen[r.ID]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateRegion, r.ID)
		}
		seen[r.ID] = struct{}{}
		if r.Platform != "" {
			if _, err := r.PlatformType(); err != nil {
				return fmt.Errorf("%w: region %s: %w", ErrInvalidConfig, r.ID, err)
			}
		}
	}
	return nil
}

// token returns the bearer token for r, falling back to the client-wide one.
func (c Config) token(r Region) string {
	if r.AuthToken != "" {
		return r.AuthToken
	}
	return c.AuthToken
}
