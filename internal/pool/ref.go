package pool

import "sync/atomic"

// Ref is the reference-counted holder around a Guard used during fan-out.
// Clones share the underlying guard; the guard's release runs exactly once,
// when the last clone is released. A Ref must be released exactly once per
// Acquire or Clone.
type Ref struct {
	guard *Guard
	refs  *atomic.Int64
}

func newRef(g *Guard) *Ref {
	r := &Ref{guard: g, refs: &atomic.Int64{}}
	r.refs.Store(1)
	return r
}

// Clone bumps the reference count and returns a handle sharing the same
// guard.
func (r *Ref) Clone() *Ref {
	r.refs.Add(1)
	return r
}

// Release drops one reference. The last release returns the region to the
// pool.
func (r *Ref) Release() {
	if r == nil {
		return
	}
	if r.refs.Add(-1) == 0 {
		r.guard.release()
	}
}

// Valid reports whether the underlying guard still owns its region.
func (r *Ref) Valid() bool { return r.guard.Valid() }

// ID returns the region index of the underlying guard.
func (r *Ref) ID() uint32 { return r.guard.ID() }

// Data returns the region's bytes.
func (r *Ref) Data() []byte { return r.guard.Data() }

// Size returns the region's byte size.
func (r *Ref) Size() uint64 { return r.guard.Size() }

// MarkInFlight forwards to the guard.
func (r *Ref) MarkInFlight() { r.guard.MarkInFlight() }
