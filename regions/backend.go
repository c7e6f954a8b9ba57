package regions

import (
	"context"
	"errors"
	"fmt"

	"github.com/rhombus-tech/POC4/core"
)

var (
	_ core.Backend = (*RegionBackend)(nil)
	_ core.Backend = (*RetryingBackend)(nil)
)

// RegionBackend exposes one region as a core.Backend.
type RegionBackend struct {
	client   *Client
	regionID string
	platform core.PlatformType
}

// Backend builds a RegionBackend; the region must declare its platform.
func (c *Client) Backend(regionID string) (*RegionBackend, error) {
	region, err := c.router.Lookup(regionID)
	if err != nil {
		return nil, err
	}
	platform, err := region.PlatformType()
	if err != nil {
		return nil, fmt.Errorf("%w: region %s: %w", ErrInvalidConfig, regionID, err)
	}
	return &RegionBackend{
		client:   c,
		regionID: regionID,
		platform: platform,
	}, nil
}

func (b *RegionBackend) Platform() core.PlatformType {
	return b.platform
}

func (b *RegionBackend) Execute(ctx context.Context, payload *core.ExecutionPayload) (*core.ExecutionResult, error) {
	return b.client.Execute(ctx, b.regionID, payload)
}

func (b *RegionBackend) Attestations(ctx context.Context) ([]core.TEEAttestation, error) {
	return b.client.Attestations(ctx, b.regionID)
}

// HealthCheck reports an unhealthy region as false; lookup and
// configuration problems are returned as errors.
func (b *RegionBackend) HealthCheck(ctx context.Context) (bool, error) {
	err := b.client.RegionHealth(ctx, b.regionID)
	if errors.Is(err, ErrUnhealthy) {
		return false, nil
	}
	return err == nil, err
}

// RetryingBackend applies a Retrier to every call of the wrapped backend.
type RetryingBackend struct {
	backend core.Backend
	retrier *Retrier
	label   string
}

func NewRetryingBackend(backend core.Backend, retrier *Retrier) *RetryingBackend {
	return &RetryingBackend{
		backend: backend,
		retrier: retrier,
		label:   backend.Platform().String(),
	}
}

func (r *RetryingBackend) Platform() core.PlatformType {
	return r.backend.Platform()
}

func (r *RetryingBackend) Execute(ctx context.Context, payload *core.ExecutionPayload) (*core.ExecutionResult, error) {
	var result *core.ExecutionResult
	err := r.retrier.Do(ctx, r.label, func(ctx context.Context) error {
		var err error
		result, err = r.backend.Execute(ctx, payload)
		return err
	})
	return result, err
}

func (r *RetryingBackend) Attestations(ctx context.Context) ([]core.TEEAttestation, error) {
	var atts []core.TEEAttestation
	err := r.retrier.Do(ctx, r.label, func(ctx context.Context) error {
		var err error
		atts, err = r.backend.Attestations(ctx)
		return err
	})
	return atts, err
}

// HealthCheck is not retried; a probe should report what it sees.
func (r *RetryingBackend) HealthCheck(ctx context.Context) (bool, error) {
	return r.backend.HealthCheck(ctx)
}
