package pool

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitializeRejectsZeroGeometry(t *testing.T) {
	p := New(testLogger())

	if p.Initialize(0, 1024) {
		t.Error("expected Initialize(0, 1024) to fail")
	}
	if p.Initialize(4, 0) {
		t.Error("expected Initialize(4, 0) to fail")
	}
	if !p.Initialize(4, 1024) {
		t.Error("expected Initialize(4, 1024) to succeed")
	}
}

func TestAcquireUninitialized(t *testing.T) {
	p := New(testLogger())

	if ref := p.Acquire(); ref != nil {
		t.Fatal("expected nil from uninitialized pool")
	}
	stats := p.Stats()
	if stats.AcquireCount != 1 || stats.AcquireFail != 1 {
		t.Errorf("expected acquire_count=1 acquire_fail=1, got %d/%d",
			stats.AcquireCount, stats.AcquireFail)
	}
}

func TestAcquireExhaustion(t *testing.T) {
	p := New(testLogger())
	if !p.Initialize(4, 1024) {
		t.Fatal("Initialize failed")
	}

	refs := make([]*Ref, 0, 4)
	seen := make(map[uint32]bool)
	for i := 0; i < 4; i++ {
		ref := p.Acquire()
		if ref == nil {
			t.Fatalf("acquire %d failed", i)
		}
		if ref.ID() > 3 {
			t.Errorf("id %d out of range", ref.ID())
		}
		if seen[ref.ID()] {
			t.Errorf("id %d handed out twice", ref.ID())
		}
		seen[ref.ID()] = true
		refs = append(refs, ref)
	}

	if ref := p.Acquire(); ref != nil {
		t.Fatal("expected fifth acquire to fail")
	}

	stats := p.Stats()
	if stats.Available != 0 || stats.InUse != 4 || stats.MaxInUse != 4 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats.AcquireCount != 5 || stats.AcquireFail != 1 {
		t.Errorf("expected acquire_count=5 acquire_fail=1, got %d/%d",
			stats.AcquireCount, stats.AcquireFail)
	}

	refs[0].Release()
	stats = p.Stats()
	if stats.Available != 1 || stats.InUse != 3 || stats.ReleaseCount != 1 {
		t.Errorf("unexpected stats after release: %+v", stats)
	}

	for _, ref := range refs[1:] {
		ref.Release()
	}
}

func TestFIFOReuse(t *testing.T) {
	p := New(testLogger())
	if !p.Initialize(2, 256) {
		t.Fatal("Initialize failed")
	}

	a := p.Acquire()
	b := p.Acquire()
	if a == nil || b == nil {
		t.Fatal("acquires failed")
	}
	if a.ID() == b.ID() {
		t.Fatal("expected distinct ids")
	}
	if ref := p.Acquire(); ref != nil {
		t.Fatal("expected exhaustion")
	}

	wantID := a.ID()
	a.Release()

	c := p.Acquire()
	if c == nil {
		t.Fatal("re-acquire failed")
	}
	if c.ID() != wantID {
		t.Errorf("expected FIFO reuse of id %d, got %d", wantID, c.ID())
	}

	b.Release()
	c.Release()
}

func TestFIFOReuseOrder(t *testing.T) {
	p := New(testLogger())
	if !p.Initialize(4, 64) {
		t.Fatal("Initialize failed")
	}

	refs := make([]*Ref, 4)
	for i := range refs {
		refs[i] = p.Acquire()
	}

	// Release in a scrambled order; re-acquires must match it.
	order := []int{2, 0, 3, 1}
	var want []uint32
	for _, i := range order {
		want = append(want, refs[i].ID())
		refs[i].Release()
	}

	for i, id := range want {
		ref := p.Acquire()
		if ref == nil {
			t.Fatalf("re-acquire %d failed", i)
		}
		if ref.ID() != id {
			t.Errorf("re-acquire %d: expected id %d, got %d", i, id, ref.ID())
		}
		defer ref.Release()
	}
}

func TestMarkInFlight(t *testing.T) {
	p := New(testLogger())
	if !p.Initialize(2, 256) {
		t.Fatal("Initialize failed")
	}

	a := p.Acquire()
	if a == nil {
		t.Fatal("acquire failed")
	}

	leaks := p.CheckLeaks()
	if len(leaks) != 1 || leaks[0] != a.ID() {
		t.Errorf("expected leaks [%d], got %v", a.ID(), leaks)
	}

	a.MarkInFlight()
	stats := p.Stats()
	if stats.InUse != 0 || stats.InFlight != 1 || stats.MaxInFlight != 1 {
		t.Errorf("unexpected stats after mark: %+v", stats)
	}

	// Idempotent: a second mark changes nothing.
	a.MarkInFlight()
	stats = p.Stats()
	if stats.InUse != 0 || stats.InFlight != 1 {
		t.Errorf("second mark changed stats: %+v", stats)
	}

	a.Release()
	stats = p.Stats()
	if stats.InFlight != 0 || stats.Available != 2 {
		t.Errorf("unexpected stats after release: %+v", stats)
	}
	if leaks := p.CheckLeaks(); len(leaks) != 0 {
		t.Errorf("expected no leaks, got %v", leaks)
	}
}

func TestConservationUnderConcurrency(t *testing.T) {
	p := New(testLogger())
	const total = 8
	if !p.Initialize(total, 128) {
		t.Fatal("Initialize failed")
	}

	checkConservation := func() {
		stats := p.Stats()
		if sum := stats.Available + stats.InUse + stats.InFlight; sum != total {
			t.Errorf("conservation violated: %d+%d+%d != %d",
				stats.Available, stats.InUse, stats.InFlight, total)
		}
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				ref := p.Acquire()
				if ref == nil {
					continue
				}
				if worker%2 == 0 {
					ref.MarkInFlight()
				}
				if i%3 == 0 {
					clone := ref.Clone()
					clone.Release()
				}
				ref.Release()
			}
		}(w)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()

	for {
		select {
		case <-done:
			checkConservation()
			stats := p.Stats()
			if stats.InUse != 0 || stats.InFlight != 0 {
				t.Errorf("buffers outstanding after drain: %+v", stats)
			}
			if leaks := p.CheckLeaks(); len(leaks) != 0 {
				t.Errorf("expected no leaks, got %v", leaks)
			}
			return
		default:
			checkConservation()
			time.Sleep(time.Millisecond)
		}
	}
}

func TestClearReportsLeaks(t *testing.T) {
	p := New(testLogger())
	if !p.Initialize(2, 64) {
		t.Fatal("Initialize failed")
	}

	ref := p.Acquire()
	if ref == nil {
		t.Fatal("acquire failed")
	}

	p.Clear()
	if p.BufferCount() != 0 || p.BufferSize() != 0 {
		t.Error("expected pool to be uninitialized after Clear")
	}

	// Releasing a guard into a cleared pool must be a safe no-op.
	ref.Release()

	if got := p.Acquire(); got != nil {
		t.Error("expected acquire to fail after Clear")
	}
}

func TestInitializeReplacesState(t *testing.T) {
	p := New(testLogger())
	if !p.Initialize(2, 64) {
		t.Fatal("first Initialize failed")
	}

	ref := p.Acquire()
	_ = ref

	if !p.Initialize(4, 128) {
		t.Fatal("second Initialize failed")
	}

	stats := p.Stats()
	if stats.Total != 4 || stats.Available != 4 || stats.AcquireCount != 0 {
		t.Errorf("expected reset stats, got %+v", stats)
	}
	if p.BufferSize() != 128 {
		t.Errorf("expected buffer size 128, got %d", p.BufferSize())
	}
}
