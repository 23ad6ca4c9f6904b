package data

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dev-protocol/ar-io-node/internal/models"
)

// TxMetaSource resolves the weave placement of a transaction's data:
// its data root and the absolute offset range its chunks occupy.
type TxMetaSource interface {
	// TxOffset returns the absolute offset of the last byte of the
	// transaction data and the data size.
	TxOffset(ctx context.Context, id string) (endOffset, size int64, err error)
	// TxDataRoot returns the transaction's 32-byte data root.
	TxDataRoot(ctx context.Context, id string) ([]byte, error)
}

// OriginClient answers transaction metadata queries against an origin
// node's HTTP API.
type OriginClient struct {
	baseURL     string
	client      *http.Client
	maxAttempts uint64
}

// NewOriginClient creates a client for the given origin base URL.
// maxAttempts below 1 is treated as 1 (a single attempt, no retries).
func NewOriginClient(baseURL string, maxAttempts int) *OriginClient {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &OriginClient{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		maxAttempts: uint64(maxAttempts),
	}
}

func (o *OriginClient) get(ctx context.Context, path string) ([]byte, error) {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+path, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := o.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			err := fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
			if resp.StatusCode == http.StatusNotFound {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return io.ReadAll(resp.Body)
	}
	return backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), o.maxAttempts-1), ctx))
}

// TxOffset queries /tx/<id>/offset. The origin encodes both numbers as
// decimal strings.
func (o *OriginClient) TxOffset(ctx context.Context, id string) (int64, int64, error) {
	body, err := o.get(ctx, "/tx/"+id+"/offset")
	if err != nil {
		return 0, 0, fmt.Errorf("tx offset %s: %w", id, err)
	}
	var out struct {
		Size   string `json:"size"`
		Offset string `json:"offset"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, 0, fmt.Errorf("tx offset %s: decode: %w", id, err)
	}
	endOffset, err := strconv.ParseInt(out.Offset, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("tx offset %s: parse offset: %w", id, err)
	}
	size, err := strconv.ParseInt(out.Size, 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("tx offset %s: parse size: %w", id, err)
	}
	return endOffset, size, nil
}

// TxDataRoot queries /tx/<id>/data_root.
func (o *OriginClient) TxDataRoot(ctx context.Context, id string) ([]byte, error) {
	body, err := o.get(ctx, "/tx/"+id+"/data_root")
	if err != nil {
		return nil, fmt.Errorf("tx data root %s: %w", id, err)
	}
	root, err := models.DecodeID(string(body))
	if err != nil {
		return nil, fmt.Errorf("tx data root %s: %w", id, err)
	}
	return root, nil
}
