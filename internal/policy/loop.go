package policy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vsignal/vsm/internal/signal"
)

// Input is one signal update awaiting the driver loop.
type Input struct {
	Name  string
	Value signal.Value
}

// inputQueue is a thread-safe FIFO of inputs.
//
// Transports enqueue from their own goroutines while the driver loop
// dequeues. A buffered signal channel (size 1) coalesces wakeups and lets
// the loop wait with context awareness.
type inputQueue struct {
	mu     sync.Mutex
	items  []Input
	closed bool
	signal chan struct{}
}

func newInputQueue() *inputQueue {
	return &inputQueue{
		items:  make([]Input, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// enqueue adds an input to the back of the queue.
// Returns false if the queue is closed.
func (q *inputQueue) enqueue(in Input) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, in)
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// tryDequeue removes the front input without blocking.
func (q *inputQueue) tryDequeue() (Input, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Input{}, false
	}
	in := q.items[0]
	q.items[0] = Input{}
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return in, true
}

// drained reports that the queue is closed with nothing left to process.
func (q *inputQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// wait returns the wakeup channel. It is closed when the queue closes,
// waking all waiters permanently.
func (q *inputQueue) wait() <-chan struct{} {
	return q.signal
}

func (q *inputQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}

// Loop is the driver: it blocks on the earlier of the next input or the
// next timer deadline, and is the only goroutine that touches the engine.
type Loop struct {
	engine *Engine
	clock  Clock
	queue  *inputQueue
	log    *slog.Logger
}

// NewLoop creates a driver loop for an engine and a clock.
func NewLoop(engine *Engine, clock Clock) *Loop {
	return &Loop{
		engine: engine,
		clock:  clock,
		queue:  newInputQueue(),
		log:    engine.log,
	}
}

// Enqueue submits a signal update for processing.
// Thread-safe: may be called from any transport goroutine.
// Returns false after Stop.
func (l *Loop) Enqueue(in Input) bool {
	return l.queue.enqueue(in)
}

// Stop closes the input queue; Run runs out the remaining timers and
// returns.
func (l *Loop) Stop() {
	l.queue.close()
}

// Run executes the driver loop until the context is cancelled or the queue
// is closed. Must be called from exactly one goroutine.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("driver loop starting")
	l.engine.Start()

	for {
		// Inputs first: within a tick, input-driven transitions precede
		// timer-driven ones.
		if in, ok := l.queue.tryDequeue(); ok {
			l.engine.HandleInput(l.clock.Now(), in.Name, in.Value)
			continue
		}

		if l.queue.drained() {
			// No more inputs will arrive; run out the remaining timers
			// (delayed emissions, monitor deadlines) and exit.
			deadline, ok := l.engine.NextDeadline()
			if !ok {
				l.log.Info("driver loop stopping: input queue closed")
				return nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(deadline):
				l.engine.AdvanceTo(l.clock.Now())
			}
			continue
		}

		var timerCh <-chan time.Time
		if deadline, ok := l.engine.NextDeadline(); ok {
			timerCh = l.clock.After(deadline)
		}

		select {
		case <-ctx.Done():
			l.log.Info("driver loop stopping: context cancelled")
			l.queue.close()
			return ctx.Err()

		case <-timerCh:
			l.engine.AdvanceTo(l.clock.Now())

		case <-l.queue.wait():
			// Wakeup: either a new input or the queue closed. Both are
			// handled at the top of the loop.
		}
	}
}
