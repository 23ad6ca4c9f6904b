package chunks

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// HTTPChunkClient fetches chunks from an origin node's /chunk endpoint.
// Transient failures are retried with exponential backoff; the final
// error is returned to the caller for fallback handling.
type HTTPChunkClient struct {
	baseURL     string
	client      *http.Client
	maxAttempts uint64
}

// NewHTTPChunkClient creates a client for the given origin base URL.
// maxAttempts below 1 is treated as 1 (a single attempt, no retries).
func NewHTTPChunkClient(baseURL string, maxAttempts int) *HTTPChunkClient {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &HTTPChunkClient{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: 30 * time.Second},
		maxAttempts: uint64(maxAttempts),
	}
}

// chunkResponse is the origin's JSON chunk encoding. All byte fields are
// base64url without padding.
type chunkResponse struct {
	Chunk    string `json:"chunk"`
	DataPath string `json:"data_path"`
	TxPath   string `json:"tx_path"`
}

// ChunkByAny fetches the chunk at the given absolute offset. The
// dataRoot and relativeOffset identify the chunk for the caller; the
// origin addresses only by absolute offset.
func (c *HTTPChunkClient) ChunkByAny(ctx context.Context, absoluteOffset int64, dataRoot []byte, relativeOffset int64) (*Chunk, error) {
	url := fmt.Sprintf("%s/chunk/%d", c.baseURL, absoluteOffset)

	operation := func() (*Chunk, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			io.Copy(io.Discard, resp.Body)
			err := fmt.Errorf("chunk %d: unexpected status %d", absoluteOffset, resp.StatusCode)
			if resp.StatusCode == http.StatusNotFound {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		var cr chunkResponse
		if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
			return nil, fmt.Errorf("chunk %d: decode response: %w", absoluteOffset, err)
		}
		payload, err := base64.RawURLEncoding.DecodeString(cr.Chunk)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("chunk %d: decode chunk bytes: %w", absoluteOffset, err))
		}
		dataPath, err := base64.RawURLEncoding.DecodeString(cr.DataPath)
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("chunk %d: decode data path: %w", absoluteOffset, err))
		}
		return &Chunk{
			DataRoot: dataRoot,
			DataPath: dataPath,
			Chunk:    payload,
		}, nil
	}

	return backoff.RetryWithData(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxAttempts-1), ctx))
}
