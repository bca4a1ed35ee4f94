package broker

import (
	"container/heap"
	"testing"
)

func TestTaskHeapOrdering(t *testing.T) {
	var h taskHeap

	// Enqueue interleaved priorities out of order.
	heap.Push(&h, task{priority: 100, sequence: 1})
	heap.Push(&h, task{priority: 200, sequence: 2})
	heap.Push(&h, task{priority: 100, sequence: 3})
	heap.Push(&h, task{priority: 200, sequence: 4})
	heap.Push(&h, task{priority: 50, sequence: 0})

	want := []struct {
		priority uint8
		sequence uint64
	}{
		{200, 2},
		{200, 4},
		{100, 1},
		{100, 3},
		{50, 0},
	}

	for i, w := range want {
		got := heap.Pop(&h).(task)
		if got.priority != w.priority || got.sequence != w.sequence {
			t.Errorf("pop %d: expected (%d,%d), got (%d,%d)",
				i, w.priority, w.sequence, got.priority, got.sequence)
		}
	}
	if h.Len() != 0 {
		t.Errorf("expected empty heap, got %d", h.Len())
	}
}

func TestTaskHeapSamePriorityIsFIFO(t *testing.T) {
	var h taskHeap
	for seq := uint64(0); seq < 100; seq++ {
		heap.Push(&h, task{priority: 128, sequence: seq})
	}
	for seq := uint64(0); seq < 100; seq++ {
		got := heap.Pop(&h).(task)
		if got.sequence != seq {
			t.Fatalf("expected sequence %d, got %d", seq, got.sequence)
		}
	}
}
