// Package broker fans captured frames out to prioritized subscribers.
//
// A publish expands into one task per live subscriber; tasks sit in a
// bounded priority queue drained by a pool of worker goroutines. Under
// overload the broker tail-drops per subscriber instead of growing the
// queue. Subscribers are held by weak reference, so consumer lifetime stays
// with the caller.
package broker

import (
	"container/heap"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/smazurov/framenode/internal/events"
	"github.com/smazurov/framenode/internal/frame"
	"github.com/smazurov/framenode/internal/pool"
)

// DefaultMaxQueueSize bounds the dispatch queue unless overridden.
const DefaultMaxQueueSize = 1024

// Stats is a snapshot of the broker's counters.
type Stats struct {
	PublishedFrames uint64 `json:"published_frames"`
	DispatchedTasks uint64 `json:"dispatched_tasks"`
	DroppedTasks    uint64 `json:"dropped_tasks"`
	QueueSize       int    `json:"queue_size"`
	SubscriberCount int    `json:"subscriber_count"`
}

// Broker is the frame distribution hub.
type Broker struct {
	subMu sync.Mutex
	subs  []weakEntry

	queueMu sync.Mutex
	queueCV *sync.Cond
	queue   taskHeap

	startMu sync.Mutex
	workers sync.WaitGroup

	running      atomic.Bool
	sequence     atomic.Uint64
	published    atomic.Uint64
	dispatched   atomic.Uint64
	dropped      atomic.Uint64
	maxQueueSize atomic.Int64

	logger *slog.Logger
	bus    *events.Bus
}

// New creates a stopped broker with the default queue bound.
func New(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broker{logger: logger}
	b.queueCV = sync.NewCond(&b.queueMu)
	b.maxQueueSize.Store(DefaultMaxQueueSize)
	return b
}

// SetEventBus attaches the pipeline event bus; subscribe and registry
// pruning publish lifecycle events on it. Set before Start.
func (b *Broker) SetEventBus(bus *events.Bus) {
	b.bus = bus
}

// Start spawns the worker pool. workerCount 0 resolves to the number of
// CPUs, minimum one. Idempotent: starting a running broker returns true
// without side effects.
func (b *Broker) Start(workerCount int) bool {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if b.running.Load() {
		return true
	}

	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
		if workerCount < 1 {
			workerCount = 1
		}
	}

	b.running.Store(true)
	b.workers.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go b.workerLoop()
	}

	b.logger.Info("frame broker started", "workers", workerCount)
	return true
}

// Stop clears the running flag, wakes every worker, joins them, then drops
// any tasks still queued, releasing their buffer references. Running
// callbacks are waited for, never cancelled. No-op if already stopped.
func (b *Broker) Stop() {
	b.startMu.Lock()
	defer b.startMu.Unlock()

	if !b.running.Load() {
		return
	}

	b.running.Store(false)
	b.queueMu.Lock()
	b.queueCV.Broadcast()
	b.queueMu.Unlock()

	b.workers.Wait()

	b.queueMu.Lock()
	remaining := len(b.queue)
	for i := range b.queue {
		b.queue[i].ref.Release()
	}
	b.queue = nil
	b.queueMu.Unlock()

	b.logger.Info("frame broker stopped", "discarded_tasks", remaining)
}

// IsRunning reports whether workers are active.
func (b *Broker) IsRunning() bool {
	return b.running.Load()
}

// Publish distributes a frame that carries no pooled buffer.
func (b *Broker) Publish(desc frame.Descriptor) {
	b.PublishRef(desc, nil)
}

// PublishRef distributes a frame backed by a pooled buffer. Each enqueued
// task carries its own clone of ref; the caller keeps its original.
//
// Publishing while stopped drops silently. A publish with zero live
// subscribers touches no counters. Tasks for subscribers that do not fit
// under the queue bound are tail-dropped individually; higher-priority
// subscribers are enqueued first and so are dropped last.
func (b *Broker) PublishRef(desc frame.Descriptor, ref *pool.Ref) {
	if !b.running.Load() {
		return
	}

	subs := b.snapshotSubscribers()
	if len(subs) == 0 {
		return
	}

	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].Priority() > subs[j].Priority()
	})

	b.published.Add(1)
	if ref != nil {
		ref.MarkInFlight()
	}

	b.queueMu.Lock()
	maxSize := int(b.maxQueueSize.Load())
	for _, sub := range subs {
		if len(b.queue) >= maxSize {
			b.dropped.Add(1)
			continue
		}
		t := task{
			desc:     desc,
			sub:      sub,
			priority: sub.Priority(),
			sequence: b.sequence.Add(1),
		}
		if ref != nil {
			t.ref = ref.Clone()
		}
		heap.Push(&b.queue, t)
	}
	b.queueMu.Unlock()

	b.queueCV.Broadcast()
}

// SetMaxQueueSize changes the queue bound. Takes effect on subsequent
// enqueues; zero drops every task.
func (b *Broker) SetMaxQueueSize(n int) {
	if n < 0 {
		n = 0
	}
	b.maxQueueSize.Store(int64(n))
}

// GetMaxQueueSize returns the current queue bound.
func (b *Broker) GetMaxQueueSize() int {
	return int(b.maxQueueSize.Load())
}

// Stats returns a snapshot of the broker's counters.
func (b *Broker) Stats() Stats {
	b.queueMu.Lock()
	queueSize := len(b.queue)
	b.queueMu.Unlock()

	return Stats{
		PublishedFrames: b.published.Load(),
		DispatchedTasks: b.dispatched.Load(),
		DroppedTasks:    b.dropped.Load(),
		QueueSize:       queueSize,
		SubscriberCount: b.SubscriberCount(),
	}
}

func (b *Broker) workerLoop() {
	defer b.workers.Done()

	for {
		b.queueMu.Lock()
		for len(b.queue) == 0 && b.running.Load() {
			b.queueCV.Wait()
		}
		if len(b.queue) == 0 && !b.running.Load() {
			b.queueMu.Unlock()
			return
		}
		t := heap.Pop(&b.queue).(task)
		b.queueMu.Unlock()

		b.dispatch(t)
	}
}

// dispatch invokes the consumer callback and releases the task's buffer
// reference. A panicking consumer is logged and counted neither dispatched
// nor dropped; it never takes the worker down.
func (b *Broker) dispatch(t task) {
	defer t.ref.Release()

	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber callback panicked",
				"subscriber", t.sub.SubscriberName(), "error", r)
		}
	}()

	t.sub.OnFrame(t.desc)
	b.dispatched.Add(1)
}
