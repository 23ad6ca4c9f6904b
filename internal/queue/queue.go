// Package queue implements a bounded FIFO work queue drained by a fixed
// pool of workers.
//
// Admission is where priority applies: when the queue is at capacity a
// non-prioritized entry is silently dropped, while a prioritized entry is
// admitted unconditionally, transiently pushing the queue past its nominal
// bound. Dequeue order is FIFO for every admitted entry; priority never
// reorders the queue.
package queue

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/dev-protocol/ar-io-node/internal/logging"
	"github.com/dev-protocol/ar-io-node/internal/metrics"
)

// Handler processes one dequeued entry. A returned error is logged and
// the entry is counted as failed; it is never retried by the pool and
// never stops the workers.
type Handler[T any] func(ctx context.Context, payload T, prioritized bool) error

type entry[T any] struct {
	payload     T
	prioritized bool
}

// Pool is a bounded FIFO queue with a fixed number of workers.
type Pool[T any] struct {
	name    string
	maxSize int
	workers int
	handler Handler[T]

	mu      sync.Mutex
	cond    *sync.Cond
	entries []entry[T]
	stopped bool
	wg      sync.WaitGroup
}

// NewPool creates a pool. Workers do not run until Start is called.
func NewPool[T any](name string, workers, maxSize int, handler Handler[T]) *Pool[T] {
	p := &Pool[T]{
		name:    name,
		maxSize: maxSize,
		workers: workers,
		handler: handler,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Push admits one entry. It never blocks on I/O: the entry is either
// placed or dropped before Push returns. The return value reports
// whether the entry was admitted.
func (p *Pool[T]) Push(payload T, prioritized bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return false
	}
	if !prioritized && len(p.entries) >= p.maxSize {
		metrics.RecordQueueAdmission(p.name, "dropped")
		logging.Debug("queue full, dropping entry", zap.String("queue", p.name))
		return false
	}

	outcome := "admitted"
	if prioritized && len(p.entries) >= p.maxSize {
		outcome = "forced"
	}
	p.entries = append(p.entries, entry[T]{payload: payload, prioritized: prioritized})
	metrics.RecordQueueAdmission(p.name, outcome)
	metrics.SetQueueDepth(p.name, len(p.entries))
	p.cond.Signal()
	return true
}

// Depth returns the current number of queued entries.
func (p *Pool[T]) Depth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Start launches the workers. They exit when Stop is called or ctx is
// canceled; an entry already handed to a handler runs to completion.
func (p *Pool[T]) Start(ctx context.Context) {
	context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		p.cond.Broadcast()
	})

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(ctx)
	}
}

// Stop prevents further admissions and waits for in-flight handlers.
// Entries still queued when Stop is called are discarded.
func (p *Pool[T]) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.entries = nil
	metrics.SetQueueDepth(p.name, 0)
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

func (p *Pool[T]) work(ctx context.Context) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.entries) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		e := p.entries[0]
		p.entries = p.entries[1:]
		metrics.SetQueueDepth(p.name, len(p.entries))
		p.mu.Unlock()

		if err := p.handle(ctx, e); err != nil {
			logging.Error("work item failed",
				zap.String("queue", p.name),
				zap.Bool("prioritized", e.prioritized),
				zap.Error(err))
		}
	}
}

// handle runs one entry through the handler, converting a panic into an
// error so a malformed work item cannot take the pool down.
func (p *Pool[T]) handle(ctx context.Context, e entry[T]) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return p.handler(ctx, e.payload, e.prioritized)
}
