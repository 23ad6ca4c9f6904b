package chunks

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/dev-protocol/ar-io-node/internal/logging"
	"github.com/dev-protocol/ar-io-node/internal/metrics"
	"github.com/dev-protocol/ar-io-node/internal/models"
)

// FSChunkMetadataCache is the metadata counterpart of FSChunkDataCache.
// Records are stored as CBOR maps with field names preserved; metadata is
// small and requested in volume, so the compact binary encoding matters
// more here than for payloads.
//
// Unlike the data cache's read path, a miss does not degrade: the full
// chunk is fetched upstream and a complete metadata record is
// reconstructed from it before returning.
type FSChunkMetadataCache struct {
	baseDir  string
	upstream ChunkByAnySource
}

// NewFSChunkMetadataCache creates a metadata cache rooted at baseDir.
func NewFSChunkMetadataCache(baseDir string, upstream ChunkByAnySource) *FSChunkMetadataCache {
	return &FSChunkMetadataCache{baseDir: baseDir, upstream: upstream}
}

func (c *FSChunkMetadataCache) metadataDir(dataRoot []byte) string {
	return filepath.Join(c.baseDir, "metadata", models.EncodeID(dataRoot))
}

func (c *FSChunkMetadataCache) metadataPath(dataRoot []byte, relativeOffset int64) string {
	return filepath.Join(c.metadataDir(dataRoot), strconv.FormatInt(relativeOffset, 10))
}

// Has reports whether metadata is cached. Probe errors read as false.
func (c *FSChunkMetadataCache) Has(dataRoot []byte, relativeOffset int64) bool {
	_, err := os.Stat(c.metadataPath(dataRoot, relativeOffset))
	return err == nil
}

// Get returns the cached metadata record, or nil when absent. Read and
// decode faults are logged and reported as absent.
func (c *FSChunkMetadataCache) Get(dataRoot []byte, relativeOffset int64) *Metadata {
	path := c.metadataPath(dataRoot, relativeOffset)
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logging.Error("chunk metadata cache read failed",
				zap.String("dataRoot", models.EncodeID(dataRoot)),
				zap.Int64("relativeOffset", relativeOffset),
				zap.Error(err))
			metrics.RecordChunkCacheOp("metadata", "error")
		}
		return nil
	}
	var md Metadata
	if err := cbor.Unmarshal(raw, &md); err != nil {
		logging.Error("chunk metadata decode failed",
			zap.String("dataRoot", models.EncodeID(dataRoot)),
			zap.Int64("relativeOffset", relativeOffset),
			zap.Error(err))
		metrics.RecordChunkCacheOp("metadata", "error")
		return nil
	}
	return &md
}

// Set writes a metadata record. Best effort: failures are logged and
// swallowed. Content-addressed keys make concurrent writes of the same
// record safe without locking.
func (c *FSChunkMetadataCache) Set(md *Metadata) {
	raw, err := cbor.Marshal(md)
	if err != nil {
		logging.Error("chunk metadata encode failed",
			zap.String("dataRoot", models.EncodeID(md.DataRoot)),
			zap.Error(err))
		return
	}
	dir := c.metadataDir(md.DataRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logging.Error("chunk metadata cache mkdir failed", zap.String("dir", dir), zap.Error(err))
		return
	}
	path := c.metadataPath(md.DataRoot, md.Offset)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		logging.Error("chunk metadata cache write failed",
			zap.String("dataRoot", models.EncodeID(md.DataRoot)),
			zap.Int64("relativeOffset", md.Offset),
			zap.Error(err))
	}
}

// ChunkMetadataByAny returns the cached record on a hit; on a miss it
// fetches the full chunk upstream and derives the record from it.
func (c *FSChunkMetadataCache) ChunkMetadataByAny(ctx context.Context, absoluteOffset int64, dataRoot []byte, relativeOffset int64) (*Metadata, error) {
	if md := c.Get(dataRoot, relativeOffset); md != nil {
		metrics.RecordChunkCacheOp("metadata", "hit")
		return md, nil
	}
	metrics.RecordChunkCacheOp("metadata", "miss")

	chunk, err := c.upstream.ChunkByAny(ctx, absoluteOffset, dataRoot, relativeOffset)
	if err != nil {
		logging.Error("chunk fetch for metadata failed",
			zap.Int64("absoluteOffset", absoluteOffset),
			zap.String("dataRoot", models.EncodeID(dataRoot)),
			zap.Int64("relativeOffset", relativeOffset),
			zap.Error(err))
		return nil, fmt.Errorf("fetch chunk at offset %d: %w", absoluteOffset, err)
	}

	hash := sha256.Sum256(chunk.Chunk)
	return &Metadata{
		DataRoot: dataRoot,
		Offset:   relativeOffset,
		DataSize: int64(len(chunk.Chunk)),
		DataPath: chunk.DataPath,
		Hash:     hash[:],
	}, nil
}
