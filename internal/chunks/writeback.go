package chunks

import (
	"context"
	"crypto/sha256"
)

// CachingChunkSource wraps an upstream chunk source and populates the
// data and metadata caches on every successful fetch. The caches never
// write back on their own read paths (concurrent readers would race);
// this wrapper is the one explicit write-back caller.
type CachingChunkSource struct {
	upstream ChunkByAnySource
	data     *FSChunkDataCache
	metadata *FSChunkMetadataCache
}

// NewCachingChunkSource creates the write-back wrapper.
func NewCachingChunkSource(upstream ChunkByAnySource, data *FSChunkDataCache, metadata *FSChunkMetadataCache) *CachingChunkSource {
	return &CachingChunkSource{upstream: upstream, data: data, metadata: metadata}
}

// ChunkByAny fetches from upstream and caches the result. Cache writes
// are best-effort; a failed write never fails the fetch.
func (c *CachingChunkSource) ChunkByAny(ctx context.Context, absoluteOffset int64, dataRoot []byte, relativeOffset int64) (*Chunk, error) {
	chunk, err := c.upstream.ChunkByAny(ctx, absoluteOffset, dataRoot, relativeOffset)
	if err != nil {
		return nil, err
	}

	if !c.data.Has(dataRoot, relativeOffset) {
		c.data.Set(chunk.Chunk, dataRoot, relativeOffset)
	}
	if !c.metadata.Has(dataRoot, relativeOffset) {
		hash := sha256.Sum256(chunk.Chunk)
		c.metadata.Set(&Metadata{
			DataRoot: dataRoot,
			Offset:   relativeOffset,
			DataSize: int64(len(chunk.Chunk)),
			DataPath: chunk.DataPath,
			Hash:     hash[:],
		})
	}
	return chunk, nil
}
