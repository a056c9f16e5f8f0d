package policy

import (
	"container/heap"

	"github.com/vsignal/vsm/internal/signal"
)

type timerKind int

const (
	timerStart timerKind = iota + 1
	timerStop
	timerEmission
)

// timer is one pending deadline: a monitor start/stop timeout or a delayed
// emission. Cancellation is lazy: cancelled timers stay in the heap and are
// skipped when popped.
type timer struct {
	deadline  int64
	seq       int64 // insertion order, breaks deadline ties FIFO
	kind      timerKind
	node      int // condition node for monitor timers, emit node for emissions
	value     signal.Value
	cancelled bool
}

// schedule is a min-heap of timers keyed by (deadline, seq).
type schedule struct {
	h   timerHeap
	seq int64
}

func newSchedule() *schedule {
	return &schedule{}
}

// push enqueues a timer at the given deadline and returns it so callers can
// hold a cancellation handle.
func (s *schedule) push(t *timer) *timer {
	s.seq++
	t.seq = s.seq
	heap.Push(&s.h, t)
	return t
}

// peek returns the earliest live timer without removing it.
func (s *schedule) peek() (*timer, bool) {
	for len(s.h) > 0 {
		if s.h[0].cancelled {
			heap.Pop(&s.h)
			continue
		}
		return s.h[0], true
	}
	return nil, false
}

// pop removes and returns the earliest live timer.
func (s *schedule) pop() (*timer, bool) {
	for len(s.h) > 0 {
		t := heap.Pop(&s.h).(*timer)
		if t.cancelled {
			continue
		}
		return t, true
	}
	return nil, false
}

// cancelEmissions marks all pending emissions owned by the given emit node
// as cancelled. Idempotent.
func (s *schedule) cancelEmissions(emitNode int) {
	for _, t := range s.h {
		if t.kind == timerEmission && t.node == emitNode {
			t.cancelled = true
		}
	}
}

type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].deadline != h[j].deadline {
		return h[i].deadline < h[j].deadline
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerHeap) Push(x any) { *h = append(*h, x.(*timer)) }

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
