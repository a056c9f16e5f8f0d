package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/vsignal/vsm/internal/policy"
	"github.com/vsignal/vsm/internal/rules"
)

// session is everything a command needs to drive an engine: the compiled
// tree, the signal map, and any seeded initial state.
type session struct {
	tree *policy.Tree
	smap *rules.SignalMap
	seed []rules.Assignment
}

// loadSession loads and compiles the rule set. All errors here are fatal
// load errors and abort the command.
func loadSession(rulesPath, vsiPath, statePath string) (*session, error) {
	smap, err := rules.LoadSignalMap(vsiPath)
	if err != nil {
		return nil, err
	}

	doc, err := rules.Load(rulesPath)
	if err != nil {
		return nil, err
	}

	tree, err := policy.Compile(doc, smap)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rulesPath, err)
	}

	s := &session{tree: tree, smap: smap}
	if statePath != "" {
		seed, err := rules.LoadInitialState(statePath)
		if err != nil {
			return nil, err
		}
		s.seed = seed
	}
	return s, nil
}

// violationWriter renders violation records as log lines on a writer,
// in addition to the engine's structured logging.
type violationWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func newViolationWriter(w io.Writer) *violationWriter {
	return &violationWriter{w: w}
}

func (s *violationWriter) Violation(v policy.Violation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, v.String())
}
