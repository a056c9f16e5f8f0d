package policy

import (
	"fmt"
	"io"
	"sync"

	"github.com/vsignal/vsm/internal/signal"
)

// Direction marks a signal record as received or emitted.
type Direction int

const (
	Incoming Direction = iota + 1
	Outgoing
)

// Indicator returns the line prefix for the direction: ">" incoming,
// "<" outgoing.
func (d Direction) Indicator() string {
	if d == Incoming {
		return ">"
	}
	return "<"
}

// Record is one signal crossing the engine boundary, in either direction.
type Record struct {
	Dir    Direction
	Time   int64 // logical ms
	Name   string
	Num    uint32
	HasNum bool
	Value  signal.Value
}

// Literal returns the value literal used on output lines and in capture
// logs. Outgoing values are rendered to their canonical string form and
// quoted; incoming values keep their typed literal.
func (r Record) Literal() string {
	if r.Dir == Outgoing {
		return signal.QuoteString(r.Value.Render())
	}
	return r.Value.Repr()
}

// String formats the record as a session log line:
//
//	< 2000,lights.external.headlights,31,'True'
//	> 0,wipers.front.on,29,True
//
// Unknown signal numbers print as [SIGNUM].
func (r Record) String() string {
	num := "[SIGNUM]"
	if r.HasNum {
		num = fmt.Sprintf("%d", r.Num)
	}
	return fmt.Sprintf("%s %d,%s,%s,%s", r.Dir.Indicator(), r.Time, r.Name, num, r.Literal())
}

// Sink consumes signal records. Implementations include the console
// echo, the capture log writer, the trace store, and transports.
type Sink interface {
	Record(rec Record)
}

// MultiSink fans records out to several sinks in order.
type MultiSink []Sink

func (m MultiSink) Record(rec Record) {
	for _, s := range m {
		s.Record(rec)
	}
}

// WriterSink writes formatted session lines to an io.Writer.
// Writes are serialized by a mutex, so it is safe for concurrent use.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink printing session lines to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Record(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, rec.String())
}

// RecorderSink collects records in memory, for tests and diagnostics.
type RecorderSink struct {
	Records []Record
}

func (s *RecorderSink) Record(rec Record) {
	s.Records = append(s.Records, rec)
}

// Outgoing returns only the emitted records.
func (s *RecorderSink) Outgoing() []Record {
	var out []Record
	for _, r := range s.Records {
		if r.Dir == Outgoing {
			out = append(out, r)
		}
	}
	return out
}
