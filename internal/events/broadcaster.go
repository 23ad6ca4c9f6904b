// Package events fans unbundled data items out to subscribers (the
// external indexer among them) over explicitly subscribed, bounded
// channels.
package events

import (
	"context"
	"sync"

	"github.com/dev-protocol/ar-io-node/internal/metrics"
	"github.com/dev-protocol/ar-io-node/internal/models"
)

// subscriberBuffer is the per-subscriber channel capacity.
const subscriberBuffer = 64

// Broadcaster manages subscribers and publishes data-item events. It
// implements bundles.ItemSink, so emission order per bundle follows the
// unbundler's index order.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan models.DataItem]struct{}
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan models.DataItem]struct{}),
	}
}

// Subscribe adds a new subscriber and returns its event channel.
// The caller must call Unsubscribe when done.
func (b *Broadcaster) Subscribe() chan models.DataItem {
	ch := make(chan models.DataItem, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	metrics.SetItemEventSubscribers(b.Count())
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan models.DataItem) {
	b.mu.Lock()
	delete(b.subscribers, ch)
	close(ch)
	b.mu.Unlock()
	metrics.SetItemEventSubscribers(b.Count())
}

// OnItem publishes an item to all subscribers. Non-blocking: items are
// dropped for subscribers whose buffers are full, so a slow consumer
// never stalls the unbundler.
func (b *Broadcaster) OnItem(_ context.Context, item *models.DataItem) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subscribers {
		select {
		case ch <- *item:
		default:
			metrics.RecordItemEventDropped()
		}
	}
}

// Count returns the current number of subscribers.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
