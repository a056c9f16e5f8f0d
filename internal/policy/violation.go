package policy

import (
	"fmt"
	"strings"
	"time"

	"github.com/vsignal/vsm/internal/signal"
)

// Operand is a signal referenced by a condition expression together with
// its value at snapshot time.
type Operand struct {
	Name  string
	Value signal.Value
}

func (o Operand) String() string {
	return fmt.Sprintf("%s=%s", o.Name, o.Value.Repr())
}

// ConditionSnapshot captures one condition node at violation time: its
// stable path from the tree root, its expression text, and the current
// value of each operand.
type ConditionSnapshot struct {
	Path     string
	Expr     string
	Operands []Operand
}

// Violation is a monitored-condition failure report. It references the
// violating condition and every ancestor condition with their operand
// values, so the log alone explains why the monitor fired.
type Violation struct {
	Time      int64 // logical ms
	Message   string
	Node      ConditionSnapshot
	Ancestors []ConditionSnapshot
	Wallclock time.Time
}

// String renders the single-line violation log record.
func (v Violation) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "violation at %dms: %s: %s: (%s)", v.Time, v.Node.Path, v.Message, v.Node.Expr)
	for _, op := range v.Node.Operands {
		fmt.Fprintf(&b, " %s", op)
	}
	for _, a := range v.Ancestors {
		fmt.Fprintf(&b, "; parent %s: (%s)", a.Path, a.Expr)
		for _, op := range a.Operands {
			fmt.Fprintf(&b, " %s", op)
		}
	}
	fmt.Fprintf(&b, " [%s]", v.Wallclock.Format(time.RFC3339Nano))
	return b.String()
}

// ViolationSink consumes violation reports.
type ViolationSink interface {
	Violation(v Violation)
}

// ViolationRecorder collects violations in memory, for tests.
type ViolationRecorder struct {
	Violations []Violation
}

func (r *ViolationRecorder) Violation(v Violation) {
	r.Violations = append(r.Violations, v)
}
