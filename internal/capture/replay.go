package capture

import (
	"context"
	"log/slog"

	"github.com/vsignal/vsm/internal/policy"
)

// Replayer feeds captured events into a driver loop at their logical
// timestamps. Rate scaling is entirely the clock's concern: the replayer
// waits until logical time reaches each event's timestamp, so the engine
// sees the original timeline regardless of rate.
type Replayer struct {
	events []Event
	clock  policy.Clock
	loop   *policy.Loop
	log    *slog.Logger
}

// NewReplayer creates a replayer delivering events through loop under the
// given (typically rate-scaled) clock.
func NewReplayer(events []Event, clock policy.Clock, loop *policy.Loop, log *slog.Logger) *Replayer {
	if log == nil {
		log = slog.Default()
	}
	return &Replayer{events: events, clock: clock, loop: loop, log: log}
}

// Run delivers all events in order, then closes the loop's input queue so
// the driver drains remaining timers and exits. Blocks until done or the
// context is cancelled.
func (r *Replayer) Run(ctx context.Context) error {
	defer r.loop.Stop()

	for _, ev := range r.events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(ev.Time):
		}
		if !r.loop.Enqueue(policy.Input{Name: ev.Name, Value: ev.Value}) {
			r.log.Warn("replay input dropped: loop stopped", "signal", ev.Name)
			return nil
		}
		r.log.Debug("replayed input", "signal", ev.Name, "ts_ms", ev.Time)
	}
	return nil
}
