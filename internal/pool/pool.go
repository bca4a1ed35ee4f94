// Package pool provides a fixed-capacity pool of equal-sized byte regions
// with a tri-state lifecycle (Free, InUse, InFlight) and leak detection.
//
// A region is handed out as a Guard wrapped in a reference-counted Ref so a
// single capture buffer can be shared across concurrent consumers; the
// region returns to the pool exactly once, when the last reference drops.
// The pool must outlive every guard it issued.
package pool

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// Stats is a snapshot of the pool's counters. Available, InUse and InFlight
// always sum to Total; MaxInUse and MaxInFlight are high-water marks.
type Stats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	InUse     int `json:"in_use"`
	InFlight  int `json:"in_flight"`

	MaxInUse    int `json:"max_in_use"`
	MaxInFlight int `json:"max_in_flight"`

	AcquireCount uint64 `json:"acquire_count"`
	ReleaseCount uint64 `json:"release_count"`
	AcquireFail  uint64 `json:"acquire_fail"`
}

type entry struct {
	data  []byte
	state State
}

// Pool owns the buffer regions. One mutex guards entries, the free queue
// and the stats; acquire and release are O(1).
type Pool struct {
	mu          sync.Mutex
	entries     []entry
	freeIDs     []uint32 // FIFO: released ids re-surface after older ones
	bufferSize  uint64
	initialized bool
	stats       Stats
	logger      *slog.Logger
}

// New creates an uninitialized pool. Acquire fails until Initialize is
// called with a valid geometry.
func New(logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{logger: logger}
}

// Initialize replaces any prior state with count regions of size bytes
// each. Rejects a zero count or size. All ids start in the free queue and
// the stats are reset.
func (p *Pool) Initialize(count int, size uint64) bool {
	if count <= 0 || size == 0 {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearLocked()

	p.entries = make([]entry, count)
	p.freeIDs = make([]uint32, 0, count)
	for i := range p.entries {
		p.entries[i].data = make([]byte, size)
		p.freeIDs = append(p.freeIDs, uint32(i))
	}

	p.bufferSize = size
	p.initialized = true
	p.stats = Stats{Total: count, Available: count}
	return true
}

// Acquire removes the head of the free queue and returns it as a shared
// buffer reference. Returns nil when the pool is exhausted or
// uninitialized; the failed attempt is still counted.
func (p *Pool) Acquire() *Ref {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.AcquireCount++
	if !p.initialized || len(p.freeIDs) == 0 {
		p.stats.AcquireFail++
		return nil
	}

	id := p.freeIDs[0]
	p.freeIDs = p.freeIDs[1:]

	p.entries[id].state = StateInUse
	p.stats.Available = len(p.freeIDs)
	p.stats.InUse++
	if p.stats.InUse > p.stats.MaxInUse {
		p.stats.MaxInUse = p.stats.InUse
	}

	g := &Guard{pool: p, id: id, data: p.entries[id].data}
	return newRef(g)
}

// Stats returns a snapshot of the counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Available = len(p.freeIDs)
	return s
}

// CheckLeaks returns the ids of all buffers not currently Free. It never
// mutates state.
func (p *Pool) CheckLeaks() []uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.leaksLocked()
}

// BufferCount returns the number of regions the pool owns.
func (p *Pool) BufferCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// BufferSize returns the byte size of each region.
func (p *Pool) BufferSize() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bufferSize
}

// Clear logs any leaked buffers, drops all regions and returns the pool to
// the uninitialized state.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked()
}

func (p *Pool) clearLocked() {
	if leaks := p.leaksLocked(); len(leaks) > 0 {
		p.logger.Error("buffer pool cleared with leaked buffers", "leaked_ids", leaks)
	}
	p.entries = nil
	p.freeIDs = nil
	p.bufferSize = 0
	p.initialized = false
	p.stats = Stats{}
}

func (p *Pool) leaksLocked() []uint32 {
	var leaks []uint32
	for i := range p.entries {
		if p.entries[i].state != StateFree {
			leaks = append(leaks, uint32(i))
		}
	}
	return leaks
}

// release is the guard-drop hook. The counter matching the entry's current
// state is decremented with a floor at zero, the entry becomes Free and its
// id re-enters the FIFO queue.
func (p *Pool) release(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized || int(id) >= len(p.entries) {
		return
	}

	switch p.entries[id].state {
	case StateInUse:
		if p.stats.InUse > 0 {
			p.stats.InUse--
		}
	case StateInFlight:
		if p.stats.InFlight > 0 {
			p.stats.InFlight--
		}
	case StateFree:
		// Double release; the free queue already holds the id.
		return
	}

	p.entries[id].state = StateFree
	p.freeIDs = append(p.freeIDs, id)
	p.stats.Available = len(p.freeIDs)
	p.stats.ReleaseCount++
}

// markInFlight transitions an entry from InUse to InFlight. Any other
// source state is a no-op.
func (p *Pool) markInFlight(id uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.initialized || int(id) >= len(p.entries) {
		return
	}
	if p.entries[id].state != StateInUse {
		return
	}

	p.entries[id].state = StateInFlight
	if p.stats.InUse > 0 {
		p.stats.InUse--
	}
	p.stats.InFlight++
	if p.stats.InFlight > p.stats.MaxInFlight {
		p.stats.MaxInFlight = p.stats.InFlight
	}
}

// Guard is the scoped owner of one pooled region. It is constructed only by
// the pool and released exactly once, by the Ref holding it.
type Guard struct {
	pool     *Pool
	id       uint32
	data     []byte
	released atomic.Bool
}

// Valid reports whether the guard still owns its region.
func (g *Guard) Valid() bool {
	return g.pool != nil && !g.released.Load()
}

// ID returns the stable region index.
func (g *Guard) ID() uint32 { return g.id }

// Data returns the region's bytes. The slice stays valid for the guard's
// lifetime.
func (g *Guard) Data() []byte { return g.data }

// Size returns the region's byte size.
func (g *Guard) Size() uint64 { return uint64(len(g.data)) }

// MarkInFlight flags the region as having entered the dispatch fabric.
// Safe to call any number of times; only the first call, from InUse, has
// effect.
func (g *Guard) MarkInFlight() {
	if g.pool != nil && !g.released.Load() {
		g.pool.markInFlight(g.id)
	}
}

// release returns the region to the pool. Idempotent.
func (g *Guard) release() {
	if g.pool == nil {
		return
	}
	if g.released.CompareAndSwap(false, true) {
		g.pool.release(g.id)
	}
}
