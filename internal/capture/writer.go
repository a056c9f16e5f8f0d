package capture

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"

	"github.com/vsignal/vsm/internal/policy"
)

// Writer records incoming signal events as a capture log: line-oriented CSV
// of timestamp_ms,name,id,value_literal with timestamps relative to capture
// start. Replaying the log through the same rule set reproduces the same
// output trace.
//
// Writer implements policy.Sink and ignores outgoing records: emissions are
// regenerated by the rules on replay.
type Writer struct {
	mu  sync.Mutex
	csv *csv.Writer
}

// NewWriter creates a capture writer on w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// Record implements policy.Sink.
func (w *Writer) Record(rec policy.Record) {
	if rec.Dir != policy.Incoming {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	id := ""
	if rec.HasNum {
		id = strconv.FormatUint(uint64(rec.Num), 10)
	}
	// Errors surface on Flush; csv.Writer retains the first one.
	_ = w.csv.Write([]string{
		strconv.FormatInt(rec.Time, 10),
		rec.Name,
		id,
		rec.Value.Repr(),
	})
	w.csv.Flush()
}

// Flush forces buffered lines out and reports any write error.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.csv.Flush()
	return w.csv.Error()
}
