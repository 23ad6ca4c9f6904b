package bundles

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/dev-protocol/ar-io-node/internal/logging"
	"github.com/dev-protocol/ar-io-node/internal/metrics"
	"github.com/dev-protocol/ar-io-node/internal/models"
	"github.com/dev-protocol/ar-io-node/internal/queue"
)

// ItemSink consumes emitted data items. The unbundler calls OnItem
// sequentially per bundle, so a sink observing items of one bundle sees
// them in ascending index order.
type ItemSink interface {
	OnItem(ctx context.Context, item *models.DataItem)
}

// UnbundleTask is one queued bundle payload awaiting parsing. The task
// owns the stream; the worker closes it.
type UnbundleTask struct {
	ID     string
	Index  int
	Stream io.ReadCloser
	Size   int64
}

// Unbundler parses bundle payloads into data items on a bounded worker
// pool, filters them, and emits accepted items in index order.
type Unbundler struct {
	pool   *queue.Pool[UnbundleTask]
	filter Filter
	sink   ItemSink
}

// NewUnbundler creates an unbundler with the given pool geometry.
func NewUnbundler(workers, maxQueueSize int, filter Filter, sink ItemSink) *Unbundler {
	u := &Unbundler{filter: filter, sink: sink}
	u.pool = queue.NewPool("unbundle", workers, maxQueueSize, u.unbundle)
	return u
}

// QueueItem admits a bundle payload for unbundling. Non-prioritized
// admissions are dropped when the queue is full; the caller keeps
// ownership of the stream in that case.
func (u *Unbundler) QueueItem(task UnbundleTask, prioritized bool) bool {
	return u.pool.Push(task, prioritized)
}

// Start launches the workers.
func (u *Unbundler) Start(ctx context.Context) {
	u.pool.Start(ctx)
}

// Stop waits for in-flight parses to finish.
func (u *Unbundler) Stop() {
	u.pool.Stop()
}

// QueueDepth returns the number of bundles waiting to be parsed.
func (u *Unbundler) QueueDepth() int {
	return u.pool.Depth()
}

// unbundle parses one bundle payload and emits accepted items. A parse
// failure fails the whole task: nothing is emitted for a malformed
// bundle, even items already parsed.
func (u *Unbundler) unbundle(ctx context.Context, task UnbundleTask, prioritized bool) error {
	defer task.Stream.Close()

	items, err := ParseStream(task.Stream, task.Size)
	if err != nil {
		metrics.RecordBundleUnbundled("error")
		return fmt.Errorf("parse bundle %s: %w", task.ID, err)
	}

	matched := 0
	for i := range items {
		item := &items[i]
		if !u.filter.Match(item) {
			metrics.RecordDataItem("skipped")
			continue
		}
		metrics.RecordDataItem("matched")
		matched++
		u.sink.OnItem(ctx, &models.DataItem{
			ID:            item.ID,
			Index:         item.Index,
			ParentID:      task.ID,
			Offset:        item.Offset,
			Size:          item.Size,
			Tags:          item.Tags,
			OwnerAddress:  item.OwnerAddress,
			SignatureType: item.SignatureType,
		})
	}

	metrics.RecordBundleUnbundled("success")
	logging.Info("bundle unbundled",
		zap.String("id", task.ID),
		zap.Bool("prioritized", prioritized),
		zap.Int("items", len(items)),
		zap.Int("matched", matched))
	return nil
}
