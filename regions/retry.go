package regions

import (
	"context"
	"fmt"
	"time"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"

	"github.com/rhombus-tech/POC4/core"
)

// Retrier runs one logical call with sequential attempts. Only
// core.ErrNetwork failures are retried.
type Retrier struct {
	log          logging.Logger
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
}

func NewRetrier(cfg Config, log logging.Logger) *Retrier {
	return &Retrier{
		log:          log,
		maxRetries:   cfg.MaxRetries,
		initialDelay: cfg.InitialRetryDelay,
		maxDelay:     cfg.MaxRetryDelay,
	}
}

// Delay is the wait before retry n (0-based): initial * 2^n, capped at max.
func (r *Retrier) Delay(n int) time.Duration {
	d := r.initialDelay
	for i := 0; i < n; i++ {
		if d >= r.maxDelay/2 {
			return r.maxDelay
		}
		d *= 2
	}
	return min(d, r.maxDelay)
}

// Do calls op until it succeeds, fails terminally, ctx ends, or
// maxRetries retries have been spent. label names the target in logs
// and metrics.
func (r *Retrier) Do(ctx context.Context, label string, op func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return fmt.Errorf("%w: %w", err, ctxErr)
			}
			return ctxErr
		}

		err = op(ctx)
		if err == nil || !core.Retryable(err) {
			return err
		}
		if attempt >= r.maxRetries {
			return fmt.Errorf("giving up after %d attempts: %w", attempt+1, err)
		}

		delay := r.Delay(attempt)
		retries.WithLabelValues(label).Inc()
		r.log.Debug("retrying",
			zap.String("target", label),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", err, ctx.Err())
		}
	}
}
