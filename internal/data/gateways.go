package data

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/dev-protocol/ar-io-node/internal/logging"
	"github.com/dev-protocol/ar-io-node/internal/metrics"
)

// GatewaysSource fetches whole objects from a list of trusted gateways,
// trying each in order. Per-gateway requests are retried with backoff;
// once every gateway is exhausted the last error surfaces to the chain.
type GatewaysSource struct {
	gateways    []string
	client      *http.Client
	maxAttempts uint64
}

// NewGatewaysSource creates a source over the given gateway base URLs.
// maxAttempts below 1 is treated as 1 (a single attempt, no retries).
func NewGatewaysSource(gateways []string, maxAttempts int) *GatewaysSource {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &GatewaysSource{
		gateways: gateways,
		client: &http.Client{
			Timeout: 60 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// A gateway may 302 an unresolved id to a search page;
				// only direct payload responses count as success.
				return http.ErrUseLastResponse
			},
		},
		maxAttempts: uint64(maxAttempts),
	}
}

// GetData fetches /raw/<id> from the first gateway that answers 200.
func (g *GatewaysSource) GetData(ctx context.Context, id string) (*Result, error) {
	var lastErr error
	for _, gateway := range g.gateways {
		res, err := g.fetch(ctx, gateway, id)
		if err != nil {
			lastErr = err
			metrics.RecordDataSourceRequest("trusted-gateways", false)
			logging.Debug("gateway fetch failed",
				zap.String("gateway", gateway),
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		metrics.RecordDataSourceRequest("trusted-gateways", true)
		return res, nil
	}
	return nil, fmt.Errorf("all gateways failed for %s: %w", id, lastErr)
}

func (g *GatewaysSource) fetch(ctx context.Context, gateway, id string) (*Result, error) {
	url := fmt.Sprintf("%s/raw/%s", gateway, id)

	operation := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := g.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			err := fmt.Errorf("unexpected status %d", resp.StatusCode)
			if resp.StatusCode == http.StatusNotFound {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	}

	resp, err := backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), g.maxAttempts-1), ctx))
	if err != nil {
		return nil, err
	}

	return &Result{
		Stream:     resp.Body,
		Size:       resp.ContentLength,
		Verified:   false,
		Cached:     false,
		SourceType: "trusted-gateways",
	}, nil
}
