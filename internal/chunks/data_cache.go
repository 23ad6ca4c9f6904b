package chunks

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/dev-protocol/ar-io-node/internal/logging"
	"github.com/dev-protocol/ar-io-node/internal/metrics"
	"github.com/dev-protocol/ar-io-node/internal/models"
)

// FSChunkDataCache is an on-disk cache for chunk payload bytes, keyed by
// (dataRoot, relativeOffset), with an upstream chunk source as fallback.
//
// Cache faults never propagate: a read error degrades to a miss and a
// write error is logged and ignored, so a broken cache can slow the read
// path but never break it. Only upstream errors are returned to callers.
type FSChunkDataCache struct {
	baseDir  string
	upstream ChunkByAnySource
}

// NewFSChunkDataCache creates a cache rooted at baseDir.
func NewFSChunkDataCache(baseDir string, upstream ChunkByAnySource) *FSChunkDataCache {
	return &FSChunkDataCache{baseDir: baseDir, upstream: upstream}
}

func (c *FSChunkDataCache) chunkDir(dataRoot []byte) string {
	return filepath.Join(c.baseDir, "data", models.EncodeID(dataRoot))
}

func (c *FSChunkDataCache) chunkPath(dataRoot []byte, relativeOffset int64) string {
	return filepath.Join(c.chunkDir(dataRoot), strconv.FormatInt(relativeOffset, 10))
}

// Has reports whether the chunk is cached. Probe errors read as false.
func (c *FSChunkDataCache) Has(dataRoot []byte, relativeOffset int64) bool {
	_, err := os.Stat(c.chunkPath(dataRoot, relativeOffset))
	return err == nil
}

// Get returns the cached payload bytes, or nil when absent. Read faults
// are logged and reported as absent so callers fall through to upstream.
func (c *FSChunkDataCache) Get(dataRoot []byte, relativeOffset int64) []byte {
	path := c.chunkPath(dataRoot, relativeOffset)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Error("chunk cache read failed",
				zap.String("dataRoot", models.EncodeID(dataRoot)),
				zap.Int64("relativeOffset", relativeOffset),
				zap.Error(err))
			metrics.RecordChunkCacheOp("data", "error")
		}
		return nil
	}
	return data
}

// Set writes the payload bytes for (dataRoot, relativeOffset). Best
// effort: failures are logged and swallowed. Writes are idempotent since
// the key is derived from content.
func (c *FSChunkDataCache) Set(data []byte, dataRoot []byte, relativeOffset int64) {
	dir := c.chunkDir(dataRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Error("chunk cache mkdir failed", zap.String("dir", dir), zap.Error(err))
		return
	}
	path := c.chunkPath(dataRoot, relativeOffset)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		logging.Error("chunk cache write failed",
			zap.String("dataRoot", models.EncodeID(dataRoot)),
			zap.Int64("relativeOffset", relativeOffset),
			zap.Error(err))
	}
}

// ChunkDataByAny returns a stream over the chunk payload: cached bytes on
// a hit, upstream bytes on a miss. It does not write fetched bytes back;
// write-back is the caller's explicit decision via Set.
func (c *FSChunkDataCache) ChunkDataByAny(ctx context.Context, absoluteOffset int64, dataRoot []byte, relativeOffset int64) (io.ReadCloser, error) {
	if data := c.Get(dataRoot, relativeOffset); data != nil {
		metrics.RecordChunkCacheOp("data", "hit")
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	metrics.RecordChunkCacheOp("data", "miss")

	chunk, err := c.upstream.ChunkByAny(ctx, absoluteOffset, dataRoot, relativeOffset)
	if err != nil {
		logging.Error("chunk fetch failed",
			zap.Int64("absoluteOffset", absoluteOffset),
			zap.String("dataRoot", models.EncodeID(dataRoot)),
			zap.Int64("relativeOffset", relativeOffset),
			zap.Error(err))
		return nil, fmt.Errorf("fetch chunk at offset %d: %w", absoluteOffset, err)
	}
	return io.NopCloser(bytes.NewReader(chunk.Chunk)), nil
}
