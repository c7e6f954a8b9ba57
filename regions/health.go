package regions

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/rhombus-tech/POC4/core"
)

// HealthCheck walks the regions in configuration order and returns the
// first failure without checking the rest.
func (c *Client) HealthCheck(ctx context.Context) (bool, error) {
	for _, region := range c.router.Regions() {
		if err := c.checkRegion(ctx, region); err != nil {
			c.log.Warn("region health check failed",
				zap.String("region", region.ID),
				zap.Error(err),
			)
			return false, err
		}
	}
	return true, nil
}

// RegionHealth checks a single region.
func (c *Client) RegionHealth(ctx context.Context, regionID string) error {
	region, err := c.router.Lookup(regionID)
	if err != nil {
		return err
	}
	return c.checkRegion(ctx, region)
}

func (c *Client) checkRegion(ctx context.Context, region Region) error {
	if region.Endpoint == "" {
		return fmt.Errorf("%w: %s", ErrMissingEndpoint, region.ID)
	}
	token := c.cfg.token(region)
	if token == "" {
		return fmt.Errorf("%w: %s", ErrMissingAuth, region.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL(region, "/health"), nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", core.ErrRegion, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	requests.WithLabelValues(region.ID, "health", outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUnhealthy, region.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: status %d", ErrUnhealthy, region.ID, resp.StatusCode)
	}
	return nil
}
