package broker

import (
	"github.com/smazurov/framenode/internal/frame"
	"github.com/smazurov/framenode/internal/pool"
)

// task is one dispatch unit: a frame descriptor by value, a strong
// reference to the target subscriber, and a shared clone of the buffer
// reference whose release on task completion drops this consumer's hold on
// the backing region.
type task struct {
	desc     frame.Descriptor
	sub      FrameSubscriber
	ref      *pool.Ref
	priority uint8
	sequence uint64
}

// taskHeap orders tasks by priority descending, sequence ascending. The
// sequence tie-break makes the heap FIFO within a priority band across
// publishes; the comparator is total.
type taskHeap []task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].sequence < h[j].sequence
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) {
	*h = append(*h, x.(task))
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = task{} // drop references for GC
	*h = old[:n-1]
	return t
}
