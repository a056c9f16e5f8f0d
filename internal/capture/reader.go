package capture

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/vsignal/vsm/internal/rules"
	"github.com/vsignal/vsm/internal/signal"
)

// Event is one captured signal update to replay.
type Event struct {
	Time  int64
	Name  string
	Value signal.Value
}

// Load reads a capture log file.
func Load(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture log: %w", err)
	}
	defer f.Close()
	events, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// Parse decodes capture log CSV: timestamp_ms,name,id,value_literal.
// The id field is informational and may be empty; names are what drive
// replay. Events must be ordered by non-decreasing timestamp.
func Parse(r io.Reader) ([]Event, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 4

	var events []Event
	var lastTime int64
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse capture log: %w", err)
		}

		line, _ := cr.FieldPos(0)
		ts, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad timestamp %q", line, fields[0])
		}
		if ts < lastTime {
			return nil, fmt.Errorf("line %d: timestamps must be non-decreasing", line)
		}
		lastTime = ts

		v, err := signal.ParseLiteral(fields[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %v", line, err)
		}

		events = append(events, Event{
			Time:  ts,
			Name:  rules.NormalizeName(fields[1]),
			Value: v,
		})
	}
}
