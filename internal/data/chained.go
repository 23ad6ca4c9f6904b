package data

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dev-protocol/ar-io-node/internal/logging"
)

// ChainedSource tries each source in order and returns the first
// success. A source succeeds once it returns a stream; any failure falls
// through immediately to the next source without retrying. Nothing is
// cached here — write-back is an explicit, separate concern.
type ChainedSource struct {
	sources []Source
}

// NewChainedSource composes sources in fixed priority order.
func NewChainedSource(sources ...Source) *ChainedSource {
	return &ChainedSource{sources: sources}
}

// GetData returns the first successful result. If every source fails,
// the last observed error is returned, or ErrNoDataSource when no source
// produced error detail.
func (c *ChainedSource) GetData(ctx context.Context, id string) (*Result, error) {
	var lastErr error
	for _, src := range c.sources {
		res, err := src.GetData(ctx, id)
		if err != nil {
			lastErr = err
			logging.Debug("data source failed, trying next",
				zap.String("id", id),
				zap.Error(err))
			continue
		}
		return res, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("get data %s: %w", id, lastErr)
	}
	return nil, fmt.Errorf("get data %s: %w", id, ErrNoDataSource)
}
