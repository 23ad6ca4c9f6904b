package chunks

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/dev-protocol/ar-io-node/internal/models"
)

// fakeChunkSource returns canned chunks and counts fetches.
type fakeChunkSource struct {
	chunks map[int64]*Chunk // keyed by absolute offset
	err    error
	calls  int
}

func (f *fakeChunkSource) ChunkByAny(ctx context.Context, absoluteOffset int64, dataRoot []byte, relativeOffset int64) (*Chunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	chunk, ok := f.chunks[absoluteOffset]
	if !ok {
		return nil, fmt.Errorf("no chunk at offset %d", absoluteOffset)
	}
	return chunk, nil
}

func testDataRoot(t *testing.T) []byte {
	t.Helper()
	root := sha256.Sum256([]byte("data root"))
	return root[:]
}

func TestChunkDataCacheSetGetIdempotent(t *testing.T) {
	cache := NewFSChunkDataCache(t.TempDir(), &fakeChunkSource{})
	root := testDataRoot(t)
	data := []byte("chunk payload bytes")

	cache.Set(data, root, 0)
	cache.Set(data, root, 0) // identical rewrite is a no-op in effect

	got := cache.Get(root, 0)
	if !bytes.Equal(got, data) {
		t.Fatalf("expected %q, got %q", data, got)
	}
	if !cache.Has(root, 0) {
		t.Error("expected Has to report true after Set")
	}
}

func TestChunkDataCacheMissReturnsNil(t *testing.T) {
	cache := NewFSChunkDataCache(t.TempDir(), &fakeChunkSource{})
	root := testDataRoot(t)

	if got := cache.Get(root, 0); got != nil {
		t.Errorf("expected nil on miss, got %q", got)
	}
	if cache.Has(root, 0) {
		t.Error("expected Has false on miss")
	}
}

func TestChunkDataCacheReadFaultReadsAsMiss(t *testing.T) {
	dir := t.TempDir()
	cache := NewFSChunkDataCache(dir, &fakeChunkSource{})
	root := testDataRoot(t)

	// A directory where the chunk file should be forces a read error
	// that is not os.ErrNotExist.
	path := filepath.Join(dir, "data", models.EncodeID(root), strconv.Itoa(0))
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatal(err)
	}

	if got := cache.Get(root, 0); got != nil {
		t.Errorf("expected nil on read fault, got %q", got)
	}
}

func TestChunkDataByAnyColdCallsUpstreamOnce(t *testing.T) {
	root := testDataRoot(t)
	payload := []byte("upstream chunk")
	upstream := &fakeChunkSource{chunks: map[int64]*Chunk{
		100: {DataRoot: root, Chunk: payload, DataPath: []byte("proof")},
	}}
	cache := NewFSChunkDataCache(t.TempDir(), upstream)

	rc, err := cache.ChunkDataByAny(context.Background(), 100, root, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()

	if !bytes.Equal(got, payload) {
		t.Errorf("expected %q, got %q", payload, got)
	}
	if upstream.calls != 1 {
		t.Errorf("expected exactly 1 upstream call, got %d", upstream.calls)
	}
	// The read path does not write back.
	if cache.Has(root, 0) {
		t.Error("expected no implicit write-back on miss")
	}
}

func TestChunkDataByAnyWarmSkipsUpstream(t *testing.T) {
	root := testDataRoot(t)
	payload := []byte("cached chunk")
	upstream := &fakeChunkSource{}
	cache := NewFSChunkDataCache(t.TempDir(), upstream)
	cache.Set(payload, root, 0)

	rc, err := cache.ChunkDataByAny(context.Background(), 100, root, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := io.ReadAll(rc)
	rc.Close()

	if !bytes.Equal(got, payload) {
		t.Errorf("expected %q, got %q", payload, got)
	}
	if upstream.calls != 0 {
		t.Errorf("expected 0 upstream calls on warm cache, got %d", upstream.calls)
	}
}

func TestChunkDataByAnyUpstreamErrorPropagates(t *testing.T) {
	wantErr := errors.New("origin unreachable")
	cache := NewFSChunkDataCache(t.TempDir(), &fakeChunkSource{err: wantErr})

	_, err := cache.ChunkDataByAny(context.Background(), 100, testDataRoot(t), 0)
	if !errors.Is(err, wantErr) {
		t.Errorf("expected upstream error, got %v", err)
	}
}

func TestChunkMetadataCacheRoundTrip(t *testing.T) {
	cache := NewFSChunkMetadataCache(t.TempDir(), &fakeChunkSource{})
	root := testDataRoot(t)
	md := &Metadata{
		DataRoot: root,
		Offset:   262144,
		DataSize: 262144,
		DataPath: []byte("merkle proof bytes"),
		Hash:     bytes.Repeat([]byte{7}, 32),
	}

	cache.Set(md)
	got := cache.Get(root, 262144)
	if got == nil {
		t.Fatal("expected cached metadata")
	}
	if !bytes.Equal(got.DataRoot, md.DataRoot) ||
		got.Offset != md.Offset ||
		got.DataSize != md.DataSize ||
		!bytes.Equal(got.DataPath, md.DataPath) ||
		!bytes.Equal(got.Hash, md.Hash) {
		t.Errorf("metadata round trip mismatch: got %+v want %+v", got, md)
	}
}

func TestChunkMetadataByAnyDerivesFromUpstream(t *testing.T) {
	root := testDataRoot(t)
	payload := []byte("full chunk payload")
	upstream := &fakeChunkSource{chunks: map[int64]*Chunk{
		50: {DataRoot: root, Chunk: payload, DataPath: []byte("proof")},
	}}
	cache := NewFSChunkMetadataCache(t.TempDir(), upstream)

	md, err := cache.ChunkMetadataByAny(context.Background(), 50, root, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if md.DataSize != int64(len(payload)) {
		t.Errorf("expected data size %d, got %d", len(payload), md.DataSize)
	}
	if !bytes.Equal(md.DataPath, []byte("proof")) {
		t.Errorf("expected proof bytes, got %q", md.DataPath)
	}
	wantHash := sha256.Sum256(payload)
	if !bytes.Equal(md.Hash, wantHash[:]) {
		t.Error("expected hash of chunk payload")
	}
	if md.Offset != 10 {
		t.Errorf("expected relative offset 10, got %d", md.Offset)
	}
}

func TestCachingChunkSourcePopulatesBothCaches(t *testing.T) {
	dir := t.TempDir()
	root := testDataRoot(t)
	payload := []byte("write-back payload")
	upstream := &fakeChunkSource{chunks: map[int64]*Chunk{
		200: {DataRoot: root, Chunk: payload, DataPath: []byte("proof")},
	}}
	dataCache := NewFSChunkDataCache(dir, upstream)
	metadataCache := NewFSChunkMetadataCache(dir, upstream)
	caching := NewCachingChunkSource(upstream, dataCache, metadataCache)

	chunk, err := caching.ChunkByAny(context.Background(), 200, root, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(chunk.Chunk, payload) {
		t.Errorf("expected %q, got %q", payload, chunk.Chunk)
	}

	if got := dataCache.Get(root, 0); !bytes.Equal(got, payload) {
		t.Errorf("expected payload in data cache, got %q", got)
	}
	md := metadataCache.Get(root, 0)
	if md == nil {
		t.Fatal("expected metadata in metadata cache")
	}
	if md.DataSize != int64(len(payload)) {
		t.Errorf("expected data size %d, got %d", len(payload), md.DataSize)
	}
}
