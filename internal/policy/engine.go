package policy

import (
	"log/slog"
	"time"

	"github.com/vsignal/vsm/internal/expr"
	"github.com/vsignal/vsm/internal/rules"
	"github.com/vsignal/vsm/internal/signal"
)

// Engine is the single-writer policy core. It owns the signal store, the
// condition-tree runtime state, and the timer schedule.
//
// The engine is driven by explicitly timestamped events: HandleInput for
// signal updates and AdvanceTo for the passage of logical time. All
// mutations must happen from one goroutine (the driver loop); the engine
// itself takes no locks.
//
// Ordering within a tick (identical logical now): input-driven transitions
// run before timer-driven ones, zero-delay emissions release after all
// propagation for the triggering event completes, and timers with equal
// deadlines dispatch FIFO by insertion.
type Engine struct {
	tree  *Tree
	smap  *rules.SignalMap
	store *signal.Store
	sched *schedule
	state []nodeState

	sink  Sink
	vsink ViolationSink
	log   *slog.Logger

	now       int64
	replaying bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithSink routes signal records (incoming echoes and emissions) to s.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithViolationSink routes monitor violation reports to s.
func WithViolationSink(s ViolationSink) Option {
	return func(e *Engine) { e.vsink = s }
}

// WithLogger sets the engine's structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithReplay marks the engine as replay-driven: unconditional emissions are
// suppressed, since the replayed inputs regenerate all downstream effects.
func WithReplay(replaying bool) Option {
	return func(e *Engine) { e.replaying = replaying }
}

// New creates an engine for a compiled tree. The store's reverse index is
// built here from the operand sets of every condition node.
func New(tree *Tree, smap *rules.SignalMap, opts ...Option) *Engine {
	e := &Engine{
		tree:  tree,
		smap:  smap,
		store: signal.NewStore(),
		sched: newSchedule(),
		state: make([]nodeState, len(tree.Nodes)),
		sink:  nopSink{},
		vsink: nopViolationSink{},
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, id := range tree.Conditions() {
		for _, name := range tree.Nodes[id].Operands {
			e.store.Subscribe(name, id)
		}
	}
	return e
}

// Store exposes the signal store, for seeding and inspection.
func (e *Engine) Store() *signal.Store { return e.store }

// Now returns the engine's current logical time.
func (e *Engine) Now() int64 { return e.now }

// NextDeadline returns the earliest pending timer deadline.
func (e *Engine) NextDeadline() (int64, bool) {
	t, ok := e.sched.peek()
	if !ok {
		return 0, false
	}
	return t.deadline, true
}

// Seed applies initial-state assignments to the store without triggering
// any rule evaluation. Call before Start.
func (e *Engine) Seed(assignments []rules.Assignment) {
	for _, a := range assignments {
		e.store.Set(a.Name, a.Value, 0)
	}
}

// Start arms every top-level node. Top-level monitored conditions begin
// their start window at logical zero; unconditional emit nodes produce
// exactly once here (unless replaying).
func (e *Engine) Start() {
	for _, root := range e.tree.Roots {
		switch e.tree.Nodes[root].Kind {
		case NodeCondition:
			e.arm(root)
		case NodeParallel, NodeSequence:
			e.armWrapper(root)
		case NodeEmit:
			if !e.replaying {
				e.scheduleEmission(root)
			}
		}
	}
	e.drainThrough(e.now)
}

// HandleInput applies one timestamped signal update: pending timers strictly
// before ts fire first, then the update propagates, then everything due at
// ts (zero-delay emissions, immediate start deadlines) releases.
func (e *Engine) HandleInput(ts int64, name string, v signal.Value) {
	e.drainBefore(ts)
	if ts > e.now {
		e.now = ts
	}

	name = rules.NormalizeName(name)
	num, hasNum := e.smap.Num(name)
	e.sink.Record(Record{Dir: Incoming, Time: e.now, Name: name, Num: num, HasNum: hasNum, Value: v})

	changed := e.store.Set(name, v, e.now)
	e.log.Debug("signal received", "signal", name, "value", v.Render(), "changed", changed)
	// External inputs always propagate, even when the value is unchanged:
	// a freshly armed sequence child must see a re-sent signal. Edge
	// triggering keeps repeated identical inputs from re-emitting.
	e.propagate(name)

	e.drainThrough(e.now)
}

// AdvanceTo moves logical time forward, dispatching every timer due at or
// before ts in (deadline, insertion) order.
func (e *Engine) AdvanceTo(ts int64) {
	e.drainThrough(ts)
	if ts > e.now {
		e.now = ts
	}
}

func (e *Engine) drainBefore(ts int64) {
	for {
		t, ok := e.sched.peek()
		if !ok || t.deadline >= ts {
			return
		}
		e.sched.pop()
		if t.deadline > e.now {
			e.now = t.deadline
		}
		e.dispatch(t)
	}
}

func (e *Engine) drainThrough(ts int64) {
	for {
		t, ok := e.sched.peek()
		if !ok || t.deadline > ts {
			return
		}
		e.sched.pop()
		if t.deadline > e.now {
			e.now = t.deadline
		}
		e.dispatch(t)
	}
}

func (e *Engine) dispatch(t *timer) {
	switch t.kind {
	case timerStart:
		e.onStartDeadline(t.node)
	case timerStop:
		e.onStopDeadline(t.node)
	case timerEmission:
		e.releaseEmission(t)
	}
}

func (e *Engine) propagate(name string) {
	for _, id := range e.store.Subscribers(name) {
		e.reevaluate(id)
	}
}

// reevaluate recomputes a condition node's truth and dispatches the edge,
// if any. Disarmed nodes (sequence-blocked, or under a false ancestor) are
// skipped entirely.
func (e *Engine) reevaluate(id int) {
	st := &e.state[id]
	if !st.armed {
		return
	}
	n := &e.tree.Nodes[id]

	val := expr.Eval(n.Expr, e.store)
	if val.IsUndefined() {
		e.log.Debug("condition undefined", "path", n.Path, "expr", n.ExprText)
	}
	truth := TruthFalse
	if val.IsTrue() {
		truth = TruthTrue
	}
	prev := st.truth
	st.truth = truth
	e.log.Debug("condition", "path", n.Path, "expr", n.ExprText, "result", truth.String())

	switch {
	case prev != TruthTrue && truth == TruthTrue:
		e.rising(id)
	case prev == TruthTrue && truth == TruthFalse:
		e.falling(id)
	}
}

// rising handles a condition's false→true edge: plain conditions fire
// their emit children immediately, monitored conditions feed EXPR_T into
// the state machine, and children arm either way.
func (e *Engine) rising(id int) {
	n := &e.tree.Nodes[id]
	st := &e.state[id]

	if n.Monitored() {
		switch st.phase {
		case PhaseAwaitStart:
			e.cancelTimer(&st.startTimer)
			e.enterWindow(id)
		default:
			// Oscillation after a terminal phase: recorded, no re-emission
			// until the parent re-arms.
			e.log.Debug("monitor oscillation", "path", n.Path, "phase", st.phase.String())
		}
		e.armChildren(id)
		return
	}

	for _, c := range e.tree.EmitChildren(id) {
		e.scheduleEmission(c)
	}
	e.armChildren(id)
	e.advanceSequence(id)
}

// falling handles a condition's true→false edge: an in-window monitor
// violates, descendants disarm, and pending delayed emissions owned by this
// condition's emit children are discarded.
func (e *Engine) falling(id int) {
	n := &e.tree.Nodes[id]
	st := &e.state[id]

	if n.Monitored() && st.phase == PhaseInWindow {
		e.violate(id, "condition went false within stop window")
	}
	e.disarmChildren(id)
	for _, c := range e.tree.EmitChildren(id) {
		e.sched.cancelEmissions(c)
	}
}

// arm begins supervising a condition node because its context became true
// (or at program start for top-level nodes). Arming does not evaluate the
// expression: truth edges come only from signal updates and from the
// T_START re-check.
func (e *Engine) arm(id int) {
	n := &e.tree.Nodes[id]
	st := &e.state[id]

	st.armed = true
	st.truth = TruthUnknown

	if n.Monitored() {
		st.phase = PhaseAwaitStart
		st.armTime = e.now
		e.cancelTimer(&st.startTimer)
		e.cancelTimer(&st.stopTimer)
		st.startTimer = e.sched.push(&timer{deadline: e.now + n.StartMs, kind: timerStart, node: id})
		e.log.Debug("monitor armed", "path", n.Path, "start_ms", n.StartMs, "stop_ms", n.StopMs)
	}
}

func (e *Engine) armChildren(id int) {
	for _, c := range e.tree.Nodes[id].Children {
		switch e.tree.Nodes[c].Kind {
		case NodeCondition:
			e.arm(c)
		case NodeParallel, NodeSequence:
			e.armWrapper(c)
		}
	}
}

// armWrapper arms a parallel or sequence block: parallel arms every child,
// sequence resets its cursor and arms only the first child.
func (e *Engine) armWrapper(w int) {
	n := &e.tree.Nodes[w]
	if n.Kind == NodeSequence {
		e.state[w].cursor = 0
		if len(n.Children) > 0 {
			e.armSlot(n.Children[0])
		}
		return
	}
	for _, c := range n.Children {
		e.armSlot(c)
	}
}

func (e *Engine) armSlot(c int) {
	switch e.tree.Nodes[c].Kind {
	case NodeCondition:
		e.arm(c)
	case NodeParallel, NodeSequence:
		e.armWrapper(c)
	}
}

// disarm stops supervising a node: an active monitor cancels silently,
// pending delayed emissions owned by its emit children are discarded, and
// the subtree disarms recursively. Idempotent.
func (e *Engine) disarm(id int) {
	n := &e.tree.Nodes[id]
	st := &e.state[id]

	if n.Monitored() && (st.phase == PhaseAwaitStart || st.phase == PhaseInWindow) {
		st.phase = PhaseCancelled
		e.cancelTimer(&st.startTimer)
		e.cancelTimer(&st.stopTimer)
		e.log.Debug("monitor cancelled", "path", n.Path)
	}
	st.armed = false
	st.truth = TruthUnknown

	for _, c := range e.tree.EmitChildren(id) {
		e.sched.cancelEmissions(c)
	}
	e.disarmChildren(id)
}

func (e *Engine) disarmChildren(id int) {
	for _, c := range e.tree.Nodes[id].Children {
		switch e.tree.Nodes[c].Kind {
		case NodeCondition:
			e.disarm(c)
		case NodeParallel, NodeSequence:
			e.state[c].cursor = 0
			e.disarmChildren(c)
		}
	}
}

// enterWindow moves a monitor from AwaitStart to InWindow and schedules the
// stop deadline at arm_time+start_ms+stop_ms.
func (e *Engine) enterWindow(id int) {
	n := &e.tree.Nodes[id]
	st := &e.state[id]
	st.phase = PhaseInWindow
	st.stopTimer = e.sched.push(&timer{
		deadline: st.armTime + n.StartMs + n.StopMs,
		kind:     timerStop,
		node:     id,
	})
	e.log.Debug("monitor in window", "path", n.Path, "stop_deadline", st.armTime+n.StartMs+n.StopMs)
}

// onStartDeadline fires when the start window closes. The expression is
// re-checked so a truth established before arming still counts.
func (e *Engine) onStartDeadline(id int) {
	st := &e.state[id]
	if st.phase != PhaseAwaitStart {
		return
	}
	st.startTimer = nil

	n := &e.tree.Nodes[id]
	if expr.Eval(n.Expr, e.store).IsTrue() {
		st.truth = TruthTrue
		e.enterWindow(id)
		e.armChildren(id)
		return
	}
	e.violate(id, "condition not satisfied before start window")
}

// onStopDeadline fires when the stop window closes with the condition still
// true: the monitor is satisfied, emit children fire, and an enclosing
// sequence advances.
func (e *Engine) onStopDeadline(id int) {
	st := &e.state[id]
	if st.phase != PhaseInWindow {
		return
	}
	st.stopTimer = nil
	st.phase = PhaseSatisfied

	n := &e.tree.Nodes[id]
	e.log.Info("monitor satisfied", "path", n.Path, "expr", n.ExprText)
	for _, c := range e.tree.EmitChildren(id) {
		e.scheduleEmission(c)
	}
	e.advanceSequence(id)
}

// violate records a monitor failure with operand snapshots along the
// ancestor chain and moves the monitor to Violated.
func (e *Engine) violate(id int, message string) {
	st := &e.state[id]
	st.phase = PhaseViolated
	e.cancelTimer(&st.startTimer)
	e.cancelTimer(&st.stopTimer)

	ancestors := e.tree.AncestorConditions(id)
	v := Violation{
		Time:      e.now,
		Message:   message,
		Node:      e.snapshot(id),
		Wallclock: time.Now(),
	}
	for _, a := range ancestors {
		v.Ancestors = append(v.Ancestors, e.snapshot(a))
	}

	e.vsink.Violation(v)
	e.log.Error("monitor violation",
		"path", e.tree.Nodes[id].Path,
		"expr", e.tree.Nodes[id].ExprText,
		"message", message,
		"time_ms", e.now,
	)
}

func (e *Engine) snapshot(id int) ConditionSnapshot {
	n := &e.tree.Nodes[id]
	snap := ConditionSnapshot{Path: n.Path, Expr: n.ExprText}
	for _, name := range n.Operands {
		snap.Operands = append(snap.Operands, Operand{Name: name, Value: e.store.Get(name)})
	}
	return snap
}

// advanceSequence moves an enclosing sequence's cursor past a satisfied
// child: the child disarms (its already-scheduled emissions survive), and
// the next child arms. After the last child the cursor wraps to the first.
func (e *Engine) advanceSequence(id int) {
	w, ok := e.tree.SequenceParent(id)
	if !ok {
		return
	}
	st := &e.state[w]
	children := e.tree.Nodes[w].Children
	if st.cursor >= len(children) || children[st.cursor] != id {
		return
	}

	child := &e.state[id]
	child.armed = false
	child.truth = TruthUnknown
	e.disarmChildren(id)

	st.cursor++
	if st.cursor >= len(children) {
		st.cursor = 0
	}
	e.armSlot(children[st.cursor])
}

// scheduleEmission evaluates an emit node's value against the store and
// enqueues the release at now+delay. Concurrent pending emissions from the
// same node are kept FIFO, never coalesced.
func (e *Engine) scheduleEmission(id int) {
	n := &e.tree.Nodes[id]
	val := expr.Eval(n.Value, e.store)
	if val.IsUndefined() {
		e.log.Debug("emission suppressed: value undefined", "path", n.Path, "signal", n.Signal)
		return
	}
	e.sched.push(&timer{deadline: e.now + n.DelayMs, kind: timerEmission, node: id, value: val})
	e.log.Debug("emission scheduled", "signal", n.Signal, "release_ms", e.now+n.DelayMs)
}

// releaseEmission delivers a due emission: the store updates first so
// downstream rules see the new value, then the record reaches the sinks.
func (e *Engine) releaseEmission(t *timer) {
	n := &e.tree.Nodes[t.node]
	changed := e.store.Set(n.Signal, t.value, e.now)
	e.sink.Record(Record{
		Dir:    Outgoing,
		Time:   e.now,
		Name:   n.Signal,
		Num:    n.SignalNum,
		HasNum: true,
		Value:  t.value,
	})
	e.log.Debug("signal emitted", "signal", n.Signal, "value", t.value.Render())
	if changed {
		e.propagate(n.Signal)
	}
}

func (e *Engine) cancelTimer(t **timer) {
	if *t != nil {
		(*t).cancelled = true
		*t = nil
	}
}

// PhaseOf reports a monitored condition's current phase. Exposed for tests
// and the trace command.
func (e *Engine) PhaseOf(id int) Phase { return e.state[id].phase }

// TruthOf reports a condition's last evaluated truth.
func (e *Engine) TruthOf(id int) Truth { return e.state[id].truth }

// CursorOf reports a sequence wrapper's cursor position.
func (e *Engine) CursorOf(id int) int { return e.state[id].cursor }

// Armed reports whether a node is currently armed.
func (e *Engine) Armed(id int) bool { return e.state[id].armed }

type nopSink struct{}

func (nopSink) Record(Record) {}

type nopViolationSink struct{}

func (nopViolationSink) Violation(Violation) {}
