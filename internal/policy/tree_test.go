package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vsignal/vsm/internal/rules"
)

func TestCompile_Shape(t *testing.T) {
	tree, _ := compileTree(t, monitoredRules, monitoredSignals...)

	require.Len(t, tree.Roots, 1)
	root := tree.Roots[0]
	top := tree.Nodes[root]
	assert.Equal(t, NodeCondition, top.Kind)
	assert.Equal(t, -1, top.Parent)
	assert.Equal(t, "rules[0].condition", top.Path)
	assert.False(t, (&top).Monitored())
	assert.Equal(t, []string{"transmission.gear"}, top.Operands)

	require.Len(t, top.Children, 1)
	wrapper := tree.Nodes[top.Children[0]]
	assert.Equal(t, NodeParallel, wrapper.Kind)

	require.Len(t, wrapper.Children, 1)
	child := tree.Nodes[wrapper.Children[0]]
	assert.Equal(t, NodeCondition, child.Kind)
	assert.True(t, (&child).Monitored())
	assert.Equal(t, int64(200), child.StartMs)
	assert.Equal(t, int64(1000), child.StopMs)

	emits := tree.EmitChildren(wrapper.Children[0])
	require.Len(t, emits, 1)
	assert.Equal(t, "car.backup.engaged", tree.Nodes[emits[0]].Signal)
	assert.Equal(t, uint32(3), tree.Nodes[emits[0]].SignalNum)
}

func TestCompile_AncestorsSkipWrappers(t *testing.T) {
	tree, _ := compileTree(t, monitoredRules, monitoredSignals...)

	var child int
	for i := range tree.Nodes {
		if tree.Nodes[i].Kind == NodeCondition && tree.Nodes[i].Monitored() {
			child = i
		}
	}
	ancestors := tree.AncestorConditions(child)
	require.Len(t, ancestors, 1)
	assert.Equal(t, "transmission.gear == 'reverse'", tree.Nodes[ancestors[0]].ExprText)
}

func TestCompile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		signals []string
		wantErr string
	}{
		{
			name:    "unknown signal in condition",
			doc:     "- condition: missing.signal == 1",
			signals: []string{"a"},
			wantErr: "not in signal number mapping file",
		},
		{
			name:    "unknown emit signal",
			doc:     "- condition: a == 1\n  emit: {signal: missing.out, value: 1}",
			signals: []string{"a"},
			wantErr: "not in signal number mapping file",
		},
		{
			name:    "emit inside wrapper",
			doc:     "- parallel:\n    - emit: {signal: a, value: 1}",
			signals: []string{"a"},
			wantErr: "not emit",
		},
		{
			name:    "start without stop",
			doc:     "- condition: a == 1\n  start: 200",
			signals: []string{"a"},
			wantErr: "no corresponding 'stop'",
		},
		{
			name:    "stop without start",
			doc:     "- condition: a == 1\n  stop: 200",
			signals: []string{"a"},
			wantErr: "no corresponding 'start'",
		},
		{
			name:    "bad expression",
			doc:     "- condition: a ==",
			signals: []string{"a"},
			wantErr: "parse",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			smap := testMap(t, tt.signals...)
			doc, err := rules.Parse("test.yaml", []byte(tt.doc))
			require.NoError(t, err, "document is structurally valid yaml")
			_, err = Compile(doc, smap)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestCompile_SequencePaths(t *testing.T) {
	tree, _ := compileTree(t, `
- sequence:
    - condition: a == 1
    - condition: b == 2
`, "a", "b")

	seq := tree.Nodes[tree.Roots[0]]
	require.Equal(t, NodeSequence, seq.Kind)
	assert.Equal(t, "rules[0].sequence", seq.Path)
	require.Len(t, seq.Children, 2)
	assert.Equal(t, "rules[0].sequence[0].condition", tree.Nodes[seq.Children[0]].Path)
	assert.Equal(t, "rules[0].sequence[1].condition", tree.Nodes[seq.Children[1]].Path)
}

func TestTreeDump(t *testing.T) {
	tree, _ := compileTree(t, monitoredRules, monitoredSignals...)
	dump := tree.Dump()
	assert.Contains(t, dump, "condition: transmission.gear == 'reverse'")
	assert.Contains(t, dump, "[start=200ms stop=1000ms]")
	assert.Contains(t, dump, "emit: car.backup.engaged = True")
}
