// Package chunks provides content-addressed chunk retrieval with local
// read-through caches in front of an upstream chunk source.
//
// Chunks are addressed two ways: upstream sources use the absolute weave
// offset, while the caches key by (dataRoot, relativeOffset) so cached
// bytes stay valid regardless of where the transaction lands in the weave.
package chunks

import (
	"context"
	"io"
)

// Chunk is one slice of a transaction's data together with its Merkle
// inclusion proof.
type Chunk struct {
	DataRoot []byte
	// TxSize is the full size of the transaction data the chunk belongs to.
	TxSize int64
	// DataPath is the Merkle proof from the data root to the chunk.
	DataPath []byte
	Chunk    []byte
}

// Metadata describes one chunk without carrying its payload.
type Metadata struct {
	DataRoot []byte `cbor:"data_root"`
	// Offset is the chunk's offset relative to the start of the
	// transaction data.
	Offset   int64  `cbor:"offset"`
	DataSize int64  `cbor:"data_size"`
	DataPath []byte `cbor:"data_path"`
	Hash     []byte `cbor:"hash"`
}

// ChunkByAnySource fetches a full chunk (payload plus proof) by absolute
// or relative offset.
type ChunkByAnySource interface {
	ChunkByAny(ctx context.Context, absoluteOffset int64, dataRoot []byte, relativeOffset int64) (*Chunk, error)
}

// ChunkDataByAnySource fetches just the payload bytes of a chunk.
type ChunkDataByAnySource interface {
	ChunkDataByAny(ctx context.Context, absoluteOffset int64, dataRoot []byte, relativeOffset int64) (io.ReadCloser, error)
}

// ChunkMetadataByAnySource fetches just the metadata of a chunk.
type ChunkMetadataByAnySource interface {
	ChunkMetadataByAny(ctx context.Context, absoluteOffset int64, dataRoot []byte, relativeOffset int64) (*Metadata, error)
}
