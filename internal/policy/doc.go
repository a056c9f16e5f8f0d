// Package policy implements the VSM policy manager: the compiled condition
// tree, its evaluation algorithm, the timer-driven monitored-condition
// state machine, and the emission pipeline.
//
// The scheduling model is single-threaded cooperative. The driver Loop is
// the sole mutator of the store, the tree runtime state, and the timer
// heap; transports serialize into it through one input queue. All ordering
// derives from one logical-millisecond clock and one event queue, which is
// what makes capture/replay reproduce identical output traces.
package policy
