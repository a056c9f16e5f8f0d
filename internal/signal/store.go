package signal

import (
	"slices"
)

// Store maps signal names to their current typed values.
//
// The store is the single source of truth the expression evaluator reads
// from. It also carries the reverse index from signal name to the condition
// nodes whose expressions reference it, built once at load time.
//
// The store is NOT safe for concurrent use: all mutations happen in the
// engine's single-writer loop.
type Store struct {
	values  map[string]Value
	updated map[string]int64
	subs    map[string][]int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		values:  make(map[string]Value),
		updated: make(map[string]int64),
		subs:    make(map[string][]int),
	}
}

// Set updates a signal's value and records the update timestamp.
// It returns true iff the new value is distinct from the prior one
// (a signal seen for the first time always counts as changed).
func (s *Store) Set(name string, v Value, ts int64) bool {
	prev, seen := s.values[name]
	s.values[name] = v
	s.updated[name] = ts
	return !seen || !prev.Equal(v)
}

// Get returns the current value of a signal, or Undefined if the signal
// has never been observed.
func (s *Store) Get(name string) Value {
	return s.values[name]
}

// LastUpdate returns the timestamp of the signal's most recent update.
func (s *Store) LastUpdate(name string) (int64, bool) {
	ts, ok := s.updated[name]
	return ts, ok
}

// Subscribe registers a condition node as interested in a signal.
// Called at load time from the operand sets of compiled expressions.
func (s *Store) Subscribe(name string, node int) {
	if slices.Contains(s.subs[name], node) {
		return
	}
	s.subs[name] = append(s.subs[name], node)
}

// Subscribers returns the condition nodes whose expressions reference the
// signal, in subscription (tree pre-order) order.
func (s *Store) Subscribers(name string) []int {
	return s.subs[name]
}

// Names returns all observed signal names in sorted order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
