package policy

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vsignal/vsm/internal/rules"
	"github.com/vsignal/vsm/internal/signal"
)

// testMap builds a signal map assigning sequential IDs starting at 1.
func testMap(t *testing.T, names ...string) *rules.SignalMap {
	t.Helper()
	var b strings.Builder
	b.WriteString("1.0\n")
	for i, n := range names {
		fmt.Fprintf(&b, "%s %d\n", n, i+1)
	}
	m, err := rules.ParseSignalMap("test.vsi", strings.NewReader(b.String()))
	require.NoError(t, err)
	return m
}

func compileTree(t *testing.T, rulesYAML string, signals ...string) (*Tree, *rules.SignalMap) {
	t.Helper()
	smap := testMap(t, signals...)
	doc, err := rules.Parse("test.yaml", []byte(rulesYAML))
	require.NoError(t, err)
	tree, err := Compile(doc, smap)
	require.NoError(t, err)
	return tree, smap
}

// fixture wires an engine to in-memory sinks and starts it.
type fixture struct {
	t          *testing.T
	engine     *Engine
	tree       *Tree
	out        *RecorderSink
	violations *ViolationRecorder
}

func newFixture(t *testing.T, rulesYAML string, signals ...string) *fixture {
	return newFixtureOpts(t, rulesYAML, nil, signals...)
}

func newFixtureOpts(t *testing.T, rulesYAML string, extra []Option, signals ...string) *fixture {
	t.Helper()
	tree, smap := compileTree(t, rulesYAML, signals...)

	out := &RecorderSink{}
	violations := &ViolationRecorder{}
	opts := []Option{
		WithSink(out),
		WithViolationSink(violations),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	opts = append(opts, extra...)

	e := New(tree, smap, opts...)
	e.Start()
	return &fixture{t: t, engine: e, tree: tree, out: out, violations: violations}
}

// input feeds one literal-valued signal update at ts.
func (f *fixture) input(ts int64, name, literal string) {
	f.t.Helper()
	v, err := signal.ParseLiteral(literal)
	require.NoError(f.t, err)
	f.engine.HandleInput(ts, name, v)
}

// outgoing returns the formatted outgoing session lines so far.
func (f *fixture) outgoing() []string {
	var lines []string
	for _, rec := range f.out.Outgoing() {
		lines = append(lines, rec.String())
	}
	return lines
}

// cond finds the condition node with the given expression text.
func (f *fixture) cond(exprText string) int {
	f.t.Helper()
	for i := range f.tree.Nodes {
		n := &f.tree.Nodes[i]
		if n.Kind == NodeCondition && n.ExprText == exprText {
			return i
		}
	}
	f.t.Fatalf("no condition node with expression %q", exprText)
	return -1
}

// wrapper finds the first node of the given wrapper kind.
func (f *fixture) wrapper(kind NodeKind) int {
	f.t.Helper()
	for i := range f.tree.Nodes {
		if f.tree.Nodes[i].Kind == kind {
			return i
		}
	}
	f.t.Fatalf("no %s node in tree", kind)
	return -1
}
