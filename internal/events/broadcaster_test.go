package events

import (
	"context"
	"testing"
	"time"

	"github.com/dev-protocol/ar-io-node/internal/models"
)

func TestBroadcasterSubscribeUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	ch1 := b.Subscribe()
	ch2 := b.Subscribe()

	if b.Count() != 2 {
		t.Fatalf("expected 2 subscribers, got %d", b.Count())
	}

	b.Unsubscribe(ch1)
	if b.Count() != 1 {
		t.Fatalf("expected 1 subscriber after unsubscribe, got %d", b.Count())
	}

	b.Unsubscribe(ch2)
	if b.Count() != 0 {
		t.Fatalf("expected 0 subscribers, got %d", b.Count())
	}
}

func TestBroadcasterDeliversInOrder(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	for i := 0; i < 5; i++ {
		b.OnItem(context.Background(), &models.DataItem{ParentID: "bundle", Index: i})
	}

	for i := 0; i < 5; i++ {
		select {
		case item := <-ch:
			if item.Index != i {
				t.Fatalf("expected index %d, got %d", i, item.Index)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for item")
		}
	}
}

func TestBroadcasterMultipleSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch1 := b.Subscribe()
	ch2 := b.Subscribe()
	defer b.Unsubscribe(ch1)
	defer b.Unsubscribe(ch2)

	b.OnItem(context.Background(), &models.DataItem{ID: "shared-item"})

	for i, ch := range []chan models.DataItem{ch1, ch2} {
		select {
		case item := <-ch:
			if item.ID != "shared-item" {
				t.Errorf("subscriber %d: expected shared-item, got %s", i, item.ID)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d: timed out", i)
		}
	}
}

func TestBroadcasterDropsForSlowConsumer(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	// Fill the buffer and keep publishing; the overflow must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.OnItem(context.Background(), &models.DataItem{Index: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on slow consumer")
	}

	if len(ch) != subscriberBuffer {
		t.Errorf("expected a full buffer of %d, got %d", subscriberBuffer, len(ch))
	}
}
