// Package scheduler drives a bounded-concurrency worker pool over a
// internal/queue.Queue: the generic queue processor behind both the
// thumbnail/preview artifact service and any other priority-scheduled
// pipeline the catalog needs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maukemana/catalog/internal/metrics"
	"github.com/maukemana/catalog/internal/queue"
)

// Task is the per-item work function. It runs with no cooperative
// cancellation path — once dispatched, a task always runs to completion;
// only its result's effect (a cache write, a ready callback) can be
// discarded afterward by the caller's own bookkeeping (see imaging's
// generation tracking).
type Task[T any, R any] func(ctx context.Context, assetID uuid.UUID, payload T) (R, error)

// ResultFunc is invoked exactly once per dispatched item, after the id has
// already been removed from the active set — so a ResultFunc that issues a
// fresh Request for the same id is never deduped against its own job.
type ResultFunc[T any, R any] func(assetID uuid.UUID, payload T, result R, err error)

// Clamp bounds n to [1, 8], the default concurrency policy: host hardware
// parallelism clamped to a sane worker ceiling.
func Clamp(n int) int {
	if n < 1 {
		return 1
	}
	if n > 8 {
		return 8
	}
	return n
}

// DefaultConcurrency returns runtime.GOMAXPROCS(0) clamped to [1, 8].
func DefaultConcurrency() int {
	return Clamp(runtime.GOMAXPROCS(0))
}

// Processor is a bounded-concurrency worker pool draining a priority queue.
// At most one task per asset id is ever active (queued or executing) at a
// time; Request/Enqueue/Cancel together implement that dedup contract.
type Processor[T any, R any] struct {
	mu          sync.Mutex
	q           *queue.Queue[T]
	active      map[uuid.UUID]struct{}
	concurrency int
	running     int

	task     Task[T, R]
	onResult ResultFunc[T, R]

	workSignal chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	name string
}

// New creates a Processor bounded to queueCapacity queued items and
// concurrency in-flight tasks, running task for every dispatched item and
// reporting through onResult.
func New[T any, R any](name string, queueCapacity, concurrency int, task Task[T, R], onResult ResultFunc[T, R]) *Processor[T, R] {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Processor[T, R]{
		q:           queue.New[T](queueCapacity),
		active:      make(map[uuid.UUID]struct{}),
		concurrency: Clamp(concurrency),
		task:        task,
		onResult:    onResult,
		workSignal:  make(chan struct{}, 1),
		ctx:         ctx,
		cancel:      cancel,
		name:        name,
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// Request reports whether the caller should probe the cache and then
// Enqueue (true), or whether id was already active and its priority alone
// was updated (false) — the dedup half of the "exactly one decode per id"
// guarantee.
func (p *Processor[T, R]) Request(assetID uuid.UUID, priority queue.Priority) bool {
	p.mu.Lock()
	_, active := p.active[assetID]
	p.mu.Unlock()

	if active {
		p.q.UpdatePriority(assetID, priority)
		return false
	}
	return true
}

// Enqueue marks assetID active and inserts it into the queue, arming the
// scheduling loop. Call only after Request returned true and the cache
// probe missed.
func (p *Processor[T, R]) Enqueue(assetID uuid.UUID, priority queue.Priority, payload T) {
	p.mu.Lock()
	p.active[assetID] = struct{}{}
	p.mu.Unlock()

	if !p.q.Enqueue(assetID, priority, payload) {
		// Capacity rejected the arrival outright (backpressure
		// rule): it was never actually queued, so it isn't active either.
		p.mu.Lock()
		delete(p.active, assetID)
		p.mu.Unlock()
		return
	}
	p.reportQueueDepth()
	p.signal()
}

func (p *Processor[T, R]) reportQueueDepth() {
	metrics.QueueDepth.WithLabelValues(p.name).Set(float64(p.q.Size()))
}

// UpdatePriority re-targets assetID's priority if it is still queued; a
// no-op if it is absent or already executing.
func (p *Processor[T, R]) UpdatePriority(assetID uuid.UUID, priority queue.Priority) {
	p.q.UpdatePriority(assetID, priority)
}

// Cancel removes assetID from the queue if still pending, and — whether
// pending or already executing — drops it from the active set so a
// subsequent Request is not deduped against a cancelled or dying job. It
// does not abort an in-flight task.
func (p *Processor[T, R]) Cancel(assetID uuid.UUID) {
	p.q.Remove(assetID)
	p.mu.Lock()
	delete(p.active, assetID)
	p.mu.Unlock()
	p.reportQueueDepth()
}

// CancelAll empties the queue and clears the active set entirely. In-flight
// tasks keep running to completion but no new Request will dedup against
// them.
func (p *Processor[T, R]) CancelAll() {
	p.q.Clear()
	p.mu.Lock()
	p.active = make(map[uuid.UUID]struct{})
	p.mu.Unlock()
	p.reportQueueDepth()
}

// CancelBackgroundRequests removes every queued item at Background
// priority and returns the count removed.
func (p *Processor[T, R]) CancelBackgroundRequests() int {
	removed := p.q.RemoveWhere(func(it *queue.Item[T]) bool { return it.Priority == queue.Background })
	if len(removed) == 0 {
		return 0
	}
	p.mu.Lock()
	for _, id := range removed {
		delete(p.active, id)
	}
	p.mu.Unlock()
	p.reportQueueDepth()
	return len(removed)
}

// QueueSize reports the current number of queued (not executing) items.
func (p *Processor[T, R]) QueueSize() int { return p.q.Size() }

// Stop cancels the scheduling loop and waits for in-flight tasks to
// finish.
func (p *Processor[T, R]) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Processor[T, R]) signal() {
	select {
	case p.workSignal <- struct{}{}:
	default:
	}
}

// loop is the scheduling loop: whenever a worker slot frees up or the
// queue gains a new item, dispatch drains it down to the concurrency
// limit.
func (p *Processor[T, R]) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.dispatch()
		case <-p.workSignal:
			p.dispatch()
		}
	}
}

func (p *Processor[T, R]) dispatch() {
	for {
		p.mu.Lock()
		if p.running >= p.concurrency {
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		item, ok := p.q.Dequeue()
		if !ok {
			return
		}
		p.reportQueueDepth()

		p.mu.Lock()
		p.running++
		p.mu.Unlock()

		p.wg.Add(1)
		go p.execute(item)
	}
}

func (p *Processor[T, R]) execute(item *queue.Item[T]) {
	defer p.wg.Done()

	var result R
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("processor task panicked", "processor", p.name, "asset_id", item.AssetID, "panic", r)
				err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		result, err = p.task(p.ctx, item.AssetID, item.Payload)
	}()

	p.mu.Lock()
	p.running--
	// The asset leaves the active set before the result callback fires, so
	// a request issued from inside onResult (e.g. a dependent regenerate)
	// is never deduped against this now-finished job.
	delete(p.active, item.AssetID)
	p.mu.Unlock()

	if p.onResult != nil {
		p.onResult(item.AssetID, item.Payload, result, err)
	}

	p.signal()
}
