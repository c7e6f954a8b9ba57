package regions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/ava-labs/avalanchego/utils/logging"
	"go.uber.org/zap"

	"github.com/rhombus-tech/POC4/core"
)

const (
	maxResponseSize = 16 << 20
	maxErrorBody    = 4 << 10
)

// Client talks to remote regions over HTTP JSON. Every call goes through
// the Retrier.
type Client struct {
	log     logging.Logger
	cfg     Config
	router  *Router
	retrier *Retrier
	http    *http.Client
}

// NewClient validates cfg before building any transport.
func NewClient(cfg Config, log logging.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	router, err := NewRouter(cfg.Regions)
	if err != nil {
		return nil, err
	}

	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout

	return &Client{
		log:     log,
		cfg:     cfg,
		router:  router,
		retrier: NewRetrier(cfg, log),
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
	}, nil
}

// Execute runs payload in the given region.
func (c *Client) Execute(ctx context.Context, regionID string, payload *core.ExecutionPayload) (*core.ExecutionResult, error) {
	region, err := c.router.Lookup(regionID)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	var result core.ExecutionResult
	err = c.retrier.Do(ctx, region.ID, func(ctx context.Context) error {
		result = core.ExecutionResult{}
		return c.call(ctx, region, http.MethodPost, "/execute", body, &result)
	})
	requests.WithLabelValues(region.ID, "execute", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Attestations fetches the current attestations of a region.
func (c *Client) Attestations(ctx context.Context, regionID string) ([]core.TEEAttestation, error) {
	region, err := c.router.Lookup(regionID)
	if err != nil {
		return nil, err
	}

	var atts []core.TEEAttestation
	err = c.retrier.Do(ctx, region.ID, func(ctx context.Context) error {
		atts = nil
		return c.call(ctx, region, http.MethodGet, "/attestations", nil, &atts)
	})
	requests.WithLabelValues(region.ID, "attestations", outcome(err)).Inc()
	if err != nil {
		return nil, err
	}
	return atts, nil
}

func (c *Client) call(ctx context.Context, region Region, method, path string, body []byte, out any) error {
	if region.Endpoint == "" {
		return fmt.Errorf("%w: %s", ErrMissingEndpoint, region.ID)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpointURL(region, path), reader)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %w", core.ErrRegion, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.cfg.token(region); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", core.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		c.log.Debug("region request failed",
			zap.String("region", region.ID),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return err
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %w", core.ErrRegion, path, err)
	}
	return nil
}

// checkStatus maps 5xx and 429 to the retryable network family and any
// other non-2xx to a terminal rejection.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg := readError(resp.Body)
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %s", core.ErrNetwork, resp.StatusCode, msg)
	}
	return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, msg)
}

func readError(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(b))
}

func endpointURL(region Region, path string) string {
	return strings.TrimRight(region.Endpoint, "/") + path
}
