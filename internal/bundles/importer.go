package bundles

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/dev-protocol/ar-io-node/internal/data"
	"github.com/dev-protocol/ar-io-node/internal/logging"
	"github.com/dev-protocol/ar-io-node/internal/metrics"
	"github.com/dev-protocol/ar-io-node/internal/queue"
)

// BundleRecord identifies a bundle to import: its content identifier
// and its position within the block that carried it.
type BundleRecord struct {
	ID    string
	Index int
}

// UnbundlerQueue is the downstream admission point for downloaded
// bundle payloads.
type UnbundlerQueue interface {
	QueueItem(task UnbundleTask, prioritized bool) bool
}

// Importer downloads bundle payloads on a bounded worker pool and hands
// the streams to the unbundler, preserving the priority flag across the
// hop. Download failures are logged and never forwarded.
type Importer struct {
	pool      *queue.Pool[BundleRecord]
	source    data.Source
	unbundler UnbundlerQueue
}

// NewImporter creates an importer with the given pool geometry.
func NewImporter(workers, maxQueueSize int, source data.Source, unbundler UnbundlerQueue) *Importer {
	imp := &Importer{source: source, unbundler: unbundler}
	imp.pool = queue.NewPool("import", workers, maxQueueSize, imp.download)
	return imp
}

// QueueItem admits a bundle for import. Non-prioritized admissions are
// dropped when the queue is full (background backpressure, not an
// error); prioritized admissions always succeed.
func (imp *Importer) QueueItem(record BundleRecord, prioritized bool) bool {
	return imp.pool.Push(record, prioritized)
}

// Start launches the workers.
func (imp *Importer) Start(ctx context.Context) {
	imp.pool.Start(ctx)
}

// Stop waits for in-flight downloads to finish.
func (imp *Importer) Stop() {
	imp.pool.Stop()
}

// QueueDepth returns the number of bundles waiting to be downloaded.
func (imp *Importer) QueueDepth() int {
	return imp.pool.Depth()
}

// download fetches the bundle's full byte stream and forwards it to the
// unbundler with the priority flag unchanged. A fetch error propagates
// without touching the unbundler; no retry happens here — background
// sweeps re-queue on their own schedule.
func (imp *Importer) download(ctx context.Context, record BundleRecord, prioritized bool) error {
	res, err := imp.source.GetData(ctx, record.ID)
	if err != nil {
		metrics.RecordBundleImport("error")
		return fmt.Errorf("download bundle %s: %w", record.ID, err)
	}

	task := UnbundleTask{
		ID:     record.ID,
		Index:  record.Index,
		Stream: res.Stream,
		Size:   res.Size,
	}
	if !imp.unbundler.QueueItem(task, prioritized) {
		// Dropped by the unbundler's admission policy; the stream is
		// ours to release.
		res.Stream.Close()
		metrics.RecordBundleImport("dropped")
		logging.Debug("unbundle queue full, bundle dropped",
			zap.String("id", record.ID))
		return nil
	}

	metrics.RecordBundleImport("success")
	logging.Debug("bundle dispatched for unbundling",
		zap.String("id", record.ID),
		zap.Bool("prioritized", prioritized),
		zap.Int64("size", res.Size))
	return nil
}
