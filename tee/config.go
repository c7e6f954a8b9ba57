package tee

import (
	"fmt"
	"time"

	"github.com/rhombus-tech/POC4/core"
)

type Config struct {
	// BackendTimeout bounds each side of a paired call independently.
	BackendTimeout time.Duration `yaml:"backend_timeout"`
	// MaxConcurrent caps paired executions in flight; 0 means unlimited.
	MaxConcurrent int64 `yaml:"max_concurrent"`
	// ExecutorID is checked against the accumulator when membership is enabled.
	ExecutorID string `yaml:"executor_id"`
}

func DefaultConfig() Config {
	return Config{
		BackendTimeout: 30 * time.Second,
		MaxConcurrent:  16,
	}
}

func (c Config) Validate() error {
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("%w: backend_timeout must be positive", core.ErrConfiguration)
	}
	if c.MaxConcurrent < 0 {
		return fmt.Errorf("%w: max_concurrent must not be negative", core.ErrConfiguration)
	}
	if c.ExecutorID != "" {
		if _, err := core.ParseExecutorID(c.ExecutorID); err != nil {
			return fmt.Errorf("%w: %w", core.ErrConfiguration, err)
		}
	}
	return nil
}
