package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const monitoredRules = `
- condition: transmission.gear == 'reverse'
  parallel:
    - condition: camera.backup.active == true
      start: 200
      stop: 1000
      emit:
        signal: car.backup.engaged
        value: true
`

var monitoredSignals = []string{
	"transmission.gear", "camera.backup.active", "car.backup.engaged",
}

func TestSimpleGate(t *testing.T) {
	f := newFixture(t, `
- condition: phone.call == 'active'
  emit:
    signal: car.stop
    value: true
`, "phone.call", "car.stop")

	f.input(0, "phone.call", "'active'")
	require.Equal(t, []string{"< 0,car.stop,2,'True'"}, f.outgoing())

	// A second identical input is not a rising edge.
	f.input(100, "phone.call", "'active'")
	assert.Len(t, f.outgoing(), 1)

	// Falling then rising fires again.
	f.input(200, "phone.call", "'inactive'")
	f.input(300, "phone.call", "'active'")
	assert.Equal(t, []string{
		"< 0,car.stop,2,'True'",
		"< 300,car.stop,2,'True'",
	}, f.outgoing())
}

func TestDelayedEmission(t *testing.T) {
	f := newFixture(t, `
- condition: wipers.front.on == true
  emit:
    signal: lights.external.headlights
    value: true
    delay: 2000
`, "wipers.front.on", "lights.external.headlights")

	f.input(0, "wipers.front.on", "True")
	assert.Empty(t, f.outgoing(), "emission must wait out the delay")

	f.engine.AdvanceTo(1999)
	assert.Empty(t, f.outgoing())

	f.engine.AdvanceTo(2500)
	assert.Equal(t, []string{"< 2000,lights.external.headlights,2,'True'"}, f.outgoing())
}

func TestDelayedEmissionDiscardedOnFalling(t *testing.T) {
	f := newFixture(t, `
- condition: wipers.front.on == true
  emit:
    signal: lights.external.headlights
    value: true
    delay: 2000
`, "wipers.front.on", "lights.external.headlights")

	f.input(0, "wipers.front.on", "True")
	f.input(1000, "wipers.front.on", "False")
	f.engine.AdvanceTo(3000)
	assert.Empty(t, f.outgoing(), "pending emission is discarded when the condition falls")
}

func TestDelayedEmissionRefiredAfterFallingSurvives(t *testing.T) {
	// A falling edge discards the pending emission; the next rising edge
	// schedules a fresh one that releases on its own delay.
	f := newFixture(t, `
- condition: button.pressed == true
  emit:
    signal: chime.play
    value: true
    delay: 500
`, "button.pressed", "chime.play")

	f.input(0, "button.pressed", "True")
	f.input(100, "button.pressed", "False")
	f.input(200, "button.pressed", "True")

	// The firing at t=0 was discarded by the falling edge at t=100; the
	// firing at t=200 survives and releases at t=700.
	f.engine.AdvanceTo(1000)
	require.Equal(t, []string{"< 700,chime.play,2,'True'"}, f.outgoing())
}

func TestMonitorSatisfied(t *testing.T) {
	f := newFixture(t, monitoredRules, monitoredSignals...)
	child := f.cond("camera.backup.active == true")

	f.input(0, "transmission.gear", "'reverse'")
	assert.Equal(t, PhaseAwaitStart, f.engine.PhaseOf(child))

	// Truth inside the start window moves the monitor into its window.
	f.input(100, "camera.backup.active", "true")
	assert.Equal(t, PhaseInWindow, f.engine.PhaseOf(child))

	f.engine.AdvanceTo(1199)
	assert.Equal(t, PhaseInWindow, f.engine.PhaseOf(child))

	// T_STOP at exactly arm_time + start + stop = 1200.
	f.engine.AdvanceTo(1500)
	assert.Equal(t, PhaseSatisfied, f.engine.PhaseOf(child))
	assert.Empty(t, f.violations.Violations)
	assert.Equal(t, []string{"< 1200,car.backup.engaged,3,'True'"}, f.outgoing())
}

func TestMonitorStartViolation(t *testing.T) {
	f := newFixture(t, monitoredRules, monitoredSignals...)
	child := f.cond("camera.backup.active == true")

	f.input(0, "transmission.gear", "'reverse'")
	f.engine.AdvanceTo(300)

	assert.Equal(t, PhaseViolated, f.engine.PhaseOf(child))
	require.Len(t, f.violations.Violations, 1)

	v := f.violations.Violations[0]
	assert.Equal(t, int64(200), v.Time, "start deadline is arm_time + start_ms")
	assert.Contains(t, v.Message, "not satisfied before start window")
	assert.Equal(t, "rules[0].condition.parallel[0].condition", v.Node.Path)
	assert.Equal(t, "camera.backup.active == true", v.Node.Expr)

	require.Len(t, v.Node.Operands, 1)
	assert.Equal(t, "camera.backup.active=<undefined>", v.Node.Operands[0].String())

	require.Len(t, v.Ancestors, 1)
	assert.Equal(t, "transmission.gear == 'reverse'", v.Ancestors[0].Expr)
	require.Len(t, v.Ancestors[0].Operands, 1)
	assert.Equal(t, "transmission.gear='reverse'", v.Ancestors[0].Operands[0].String())

	assert.Empty(t, f.outgoing(), "violated monitors do not emit")
}

func TestMonitorStopViolation(t *testing.T) {
	f := newFixture(t, monitoredRules, monitoredSignals...)
	child := f.cond("camera.backup.active == true")

	f.input(0, "transmission.gear", "'reverse'")
	f.input(100, "camera.backup.active", "true")
	require.Equal(t, PhaseInWindow, f.engine.PhaseOf(child))

	f.input(500, "camera.backup.active", "false")
	assert.Equal(t, PhaseViolated, f.engine.PhaseOf(child))
	require.Len(t, f.violations.Violations, 1)
	assert.Contains(t, f.violations.Violations[0].Message, "went false within stop window")

	// The stop timer is dead: nothing more happens.
	f.engine.AdvanceTo(2000)
	assert.Len(t, f.violations.Violations, 1)
	assert.Empty(t, f.outgoing())
}

func TestMonitorParentCancellation(t *testing.T) {
	f := newFixture(t, monitoredRules, monitoredSignals...)
	child := f.cond("camera.backup.active == true")

	f.input(0, "transmission.gear", "'reverse'")
	require.Equal(t, PhaseAwaitStart, f.engine.PhaseOf(child))

	f.input(100, "transmission.gear", "'park'")
	assert.Equal(t, PhaseCancelled, f.engine.PhaseOf(child))

	f.engine.AdvanceTo(2000)
	assert.Empty(t, f.violations.Violations, "cancellation is silent")
	assert.Empty(t, f.outgoing())
}

func TestMonitorCancelledInWindow(t *testing.T) {
	f := newFixture(t, monitoredRules, monitoredSignals...)
	child := f.cond("camera.backup.active == true")

	f.input(0, "transmission.gear", "'reverse'")
	f.input(100, "camera.backup.active", "true")
	require.Equal(t, PhaseInWindow, f.engine.PhaseOf(child))

	f.input(600, "transmission.gear", "'park'")
	assert.Equal(t, PhaseCancelled, f.engine.PhaseOf(child))

	f.engine.AdvanceTo(2000)
	assert.Empty(t, f.violations.Violations)
	assert.Empty(t, f.outgoing(), "the satisfied emission never fires after cancellation")
}

func TestMonitorRearms(t *testing.T) {
	f := newFixture(t, monitoredRules, monitoredSignals...)
	child := f.cond("camera.backup.active == true")

	f.input(0, "transmission.gear", "'reverse'")
	f.engine.AdvanceTo(300)
	require.Equal(t, PhaseViolated, f.engine.PhaseOf(child))

	// Parent falls and rises again: the monitor re-arms from the terminal
	// phase with a fresh start window.
	f.input(400, "transmission.gear", "'park'")
	f.input(500, "transmission.gear", "'reverse'")
	assert.Equal(t, PhaseAwaitStart, f.engine.PhaseOf(child))

	f.input(600, "camera.backup.active", "true")
	f.engine.AdvanceTo(1700)
	assert.Equal(t, PhaseSatisfied, f.engine.PhaseOf(child))
	assert.Equal(t, []string{"< 1700,car.backup.engaged,3,'True'"}, f.outgoing())
}

func TestMonitorTruthBeforeArming(t *testing.T) {
	// The camera is already true before the parent rises and never updates
	// again. The start deadline re-check picks the truth up.
	f := newFixture(t, monitoredRules, monitoredSignals...)
	child := f.cond("camera.backup.active == true")

	f.input(0, "camera.backup.active", "true")
	f.input(100, "transmission.gear", "'reverse'")
	require.Equal(t, PhaseAwaitStart, f.engine.PhaseOf(child))

	f.engine.AdvanceTo(400)
	assert.Equal(t, PhaseInWindow, f.engine.PhaseOf(child))

	f.engine.AdvanceTo(1300)
	assert.Equal(t, PhaseSatisfied, f.engine.PhaseOf(child))
	assert.Empty(t, f.violations.Violations)
}

func TestXorEdges(t *testing.T) {
	f := newFixture(t, `
- condition: a ^^ b
  emit:
    signal: x
    value: 1
`, "a", "b", "x")

	f.input(0, "a", "true")
	assert.Equal(t, []string{"< 0,x,3,'1'"}, f.outgoing(), "true xor unset fires")

	f.input(1, "b", "true")
	assert.Len(t, f.outgoing(), 1, "both true: condition falls, no emission")

	f.input(2, "b", "false")
	assert.Equal(t, []string{"< 0,x,3,'1'", "< 2,x,3,'1'"}, f.outgoing())
}

func TestSequenceGating(t *testing.T) {
	f := newFixture(t, `
- sequence:
    - condition: gear == 'park'
      emit:
        signal: car.parked
        value: true
    - condition: ignition == true
      emit:
        signal: car.ignited
        value: true
`, "gear", "ignition", "car.parked", "car.ignited")

	seq := f.wrapper(NodeSequence)
	first := f.cond("gear == 'park'")
	second := f.cond("ignition == true")

	// Only the cursor child is armed.
	assert.Equal(t, 0, f.engine.CursorOf(seq))
	assert.True(t, f.engine.Armed(first))
	assert.False(t, f.engine.Armed(second))

	// Out-of-order input is ignored while the cursor waits on gear.
	f.input(0, "ignition", "true")
	assert.Empty(t, f.outgoing())

	f.input(1, "gear", "'park'")
	assert.Equal(t, []string{"< 1,car.parked,3,'True'"}, f.outgoing())
	assert.Equal(t, 1, f.engine.CursorOf(seq))
	assert.False(t, f.engine.Armed(first))
	assert.True(t, f.engine.Armed(second))

	// The re-sent signal now reaches the armed second child.
	f.input(2, "ignition", "true")
	assert.Equal(t, []string{
		"< 1,car.parked,3,'True'",
		"< 2,car.ignited,4,'True'",
	}, f.outgoing())

	// After the last child the cursor wraps to the first.
	assert.Equal(t, 0, f.engine.CursorOf(seq))
	assert.True(t, f.engine.Armed(first))
}

func TestSequenceResetOnParentFalling(t *testing.T) {
	f := newFixture(t, `
- condition: session.active == true
  sequence:
    - condition: gear == 'park'
      emit:
        signal: step.one
        value: 1
    - condition: ignition == true
      emit:
        signal: step.two
        value: 2
`, "session.active", "gear", "ignition", "step.one", "step.two")

	seq := f.wrapper(NodeSequence)

	f.input(0, "session.active", "true")
	f.input(1, "gear", "'park'")
	assert.Equal(t, 1, f.engine.CursorOf(seq))

	// Parent falls: cursor resets, children disarm.
	f.input(2, "session.active", "false")
	assert.Equal(t, 0, f.engine.CursorOf(seq))
	assert.False(t, f.engine.Armed(f.cond("ignition == true")))

	// Parent rises again: sequence restarts from the first child.
	f.input(3, "session.active", "true")
	f.input(4, "ignition", "true")
	assert.Len(t, f.outgoing(), 1, "second step ignored after reset")
	f.input(5, "gear", "'drive'")
	f.input(6, "gear", "'park'")
	assert.Len(t, f.outgoing(), 2)
}

func TestSequencedMonitorAdvancesOnSatisfied(t *testing.T) {
	f := newFixture(t, `
- sequence:
    - condition: doors.closed == true
      start: 100
      stop: 300
    - condition: belts.fastened == true
      emit:
        signal: ready
        value: true
`, "doors.closed", "belts.fastened", "ready")

	seq := f.wrapper(NodeSequence)
	first := f.cond("doors.closed == true")

	f.input(0, "doors.closed", "true")
	require.Equal(t, PhaseInWindow, f.engine.PhaseOf(first))
	assert.Equal(t, 0, f.engine.CursorOf(seq), "monitored child advances on Satisfied, not on truth")

	f.engine.AdvanceTo(400)
	require.Equal(t, PhaseSatisfied, f.engine.PhaseOf(first))
	assert.Equal(t, 1, f.engine.CursorOf(seq))

	f.input(500, "belts.fastened", "true")
	assert.Equal(t, []string{"< 500,ready,3,'True'"}, f.outgoing())
}

func TestZeroDelayReentrySameTick(t *testing.T) {
	// An emission re-triggers a downstream rule in the same tick.
	f := newFixture(t, `
- condition: damage == true
  emit:
    signal: car.stop
    value: true
- condition: car.stop == true
  emit:
    signal: hazard.lights
    value: true
`, "damage", "car.stop", "hazard.lights")

	f.input(0, "damage", "true")
	assert.Equal(t, []string{
		"< 0,car.stop,2,'True'",
		"< 0,hazard.lights,3,'True'",
	}, f.outgoing())
}

func TestEqualDeadlinesReleaseFIFO(t *testing.T) {
	f := newFixture(t, `
- condition: trigger == true
  emit:
    signal: first.out
    value: 1
    delay: 100
- condition: trigger == true
  emit:
    signal: second.out
    value: 2
    delay: 100
`, "trigger", "first.out", "second.out")

	f.input(0, "trigger", "true")
	f.engine.AdvanceTo(100)
	assert.Equal(t, []string{
		"< 100,first.out,2,'1'",
		"< 100,second.out,3,'2'",
	}, f.outgoing())
}

func TestUnconditionalEmit(t *testing.T) {
	f := newFixture(t, `
- emit:
    signal: boot.banner
    value: 'ready'
`, "boot.banner")

	assert.Equal(t, []string{"< 0,boot.banner,1,'ready'"}, f.outgoing(), "fires exactly once at load")

	f.input(10, "boot.banner", "'ready'")
	f.engine.AdvanceTo(1000)
	assert.Len(t, f.outgoing(), 1)
}

func TestUnconditionalEmitSuppressedOnReplay(t *testing.T) {
	f := newFixtureOpts(t, `
- emit:
    signal: boot.banner
    value: 'ready'
`, []Option{WithReplay(true)}, "boot.banner")

	assert.Empty(t, f.outgoing())
}

func TestActivationRequiresTrueAncestors(t *testing.T) {
	f := newFixture(t, `
- condition: outer.on == true
  parallel:
    - condition: inner.on == true
      emit:
        signal: both.on
        value: true
`, "outer.on", "inner.on", "both.on")

	inner := f.cond("inner.on == true")

	// Inner updates are ignored while the outer condition is not true.
	f.input(0, "inner.on", "true")
	assert.False(t, f.engine.Armed(inner))
	assert.Empty(t, f.outgoing())

	f.input(10, "outer.on", "true")
	assert.True(t, f.engine.Armed(inner))

	// Arming does not evaluate: the inner truth arrives with its next
	// update.
	f.input(20, "inner.on", "true")
	assert.Equal(t, []string{"< 20,both.on,3,'True'"}, f.outgoing())
}

func TestUndefinedConditionIsNotTrue(t *testing.T) {
	f := newFixture(t, `
- condition: a && b
  emit:
    signal: x
    value: true
`, "a", "b", "x")

	f.input(0, "a", "true")
	assert.Empty(t, f.outgoing(), "a && <undefined> is undefined, gated as false")
	assert.Equal(t, TruthFalse, f.engine.TruthOf(f.cond("a && b")))

	f.input(1, "b", "true")
	assert.Equal(t, []string{"< 1,x,3,'True'"}, f.outgoing())
}

func TestEmissionUpdatesStore(t *testing.T) {
	f := newFixture(t, `
- condition: trigger == true
  emit:
    signal: derived.value
    value: 7
`, "trigger", "derived.value")

	f.input(0, "trigger", "true")
	got := f.engine.Store().Get("derived.value")
	i, ok := got.AsInt()
	require.True(t, ok, "store receives the typed value, not its string form")
	assert.Equal(t, int64(7), i)
}

func TestInputEcho(t *testing.T) {
	f := newFixture(t, `
- condition: a == 1
  emit:
    signal: x
    value: true
`, "a", "x")

	f.input(5, "a", "2")
	require.Len(t, f.out.Records, 1)
	assert.Equal(t, "> 5,a,1,2", f.out.Records[0].String())

	// Unmapped incoming signals echo with a placeholder id.
	f.input(6, "unmapped.name", "true")
	assert.Equal(t, "> 6,unmapped.name,[SIGNUM],True", f.out.Records[1].String())
}
