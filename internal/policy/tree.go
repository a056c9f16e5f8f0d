package policy

import (
	"fmt"

	"github.com/vsignal/vsm/internal/expr"
	"github.com/vsignal/vsm/internal/rules"
)

// NodeKind identifies the role of a tree node.
type NodeKind int

const (
	// NodeCondition gates its children on a Boolean expression, optionally
	// supervised by a start/stop monitor.
	NodeCondition NodeKind = iota + 1
	// NodeParallel wraps condition children that evaluate independently.
	NodeParallel
	// NodeSequence wraps condition children armed strictly in order.
	NodeSequence
	// NodeEmit produces a signal value when its enclosing condition fires.
	NodeEmit
)

func (k NodeKind) String() string {
	switch k {
	case NodeCondition:
		return "condition"
	case NodeParallel:
		return "parallel"
	case NodeSequence:
		return "sequence"
	case NodeEmit:
		return "emit"
	default:
		return "unknown"
	}
}

// Node is one rule-tree node. Nodes live in the Tree's flat arena and refer
// to each other by stable indices; parent back-links are indices, not
// pointers, so the tree is trivially acyclic.
type Node struct {
	Kind     NodeKind
	Parent   int // index into Tree.Nodes, -1 for top-level
	Children []int
	Path     string

	// Condition fields.
	Expr     expr.Expr
	ExprText string
	Operands []string
	StartMs  int64 // -1 when the condition is unmonitored
	StopMs   int64

	// Emit fields.
	Signal    string
	SignalNum uint32
	Value     expr.Expr
	DelayMs   int64
}

// Monitored reports whether the condition node carries start/stop timing.
func (n *Node) Monitored() bool {
	return n.Kind == NodeCondition && n.StartMs >= 0
}

// Tree is the compiled rule tree: a flat node arena plus the indices of the
// top-level nodes. It is built once at load and never structurally mutated;
// all runtime state lives in the engine.
type Tree struct {
	Nodes []Node
	Roots []int
}

// Compile builds the rule tree from a parsed document, resolving every
// referenced signal against the signal-number map. All structural errors
// are fatal: wrappers containing emit items, unmapped signals, start
// without stop, and emit-less malformed items.
func Compile(doc *rules.Document, smap *rules.SignalMap) (*Tree, error) {
	t := &Tree{}
	c := &compiler{tree: t, smap: smap}
	for i, item := range doc.Items {
		id, err := c.compileItem(item, -1, fmt.Sprintf("rules[%d]", i), true)
		if err != nil {
			return nil, err
		}
		t.Roots = append(t.Roots, id)
	}
	return t, nil
}

type compiler struct {
	tree *Tree
	smap *rules.SignalMap
}

func (c *compiler) alloc(n Node) int {
	c.tree.Nodes = append(c.tree.Nodes, n)
	return len(c.tree.Nodes) - 1
}

// compileItem compiles one document item. topLevel controls whether a bare
// emit is legal: wrappers may contain only condition or wrapper children.
func (c *compiler) compileItem(item rules.Item, parent int, path string, topLevel bool) (int, error) {
	switch {
	case item.Condition != "":
		return c.compileCondition(item, parent, path)

	case item.Parallel != nil:
		return c.compileWrapper(NodeParallel, item.Parallel, parent, path+".parallel")

	case item.Sequence != nil:
		return c.compileWrapper(NodeSequence, item.Sequence, parent, path+".sequence")

	case item.Emit != nil:
		if !topLevel {
			return 0, fmt.Errorf("%s: wrapper blocks may contain only condition or wrapper items, not emit", path)
		}
		return c.compileEmit(*item.Emit, parent, path+".emit")

	default:
		return 0, fmt.Errorf("%s: item has no condition, wrapper, or emit", path)
	}
}

func (c *compiler) compileCondition(item rules.Item, parent int, path string) (int, error) {
	path += ".condition"

	parsed, err := expr.Parse(item.Condition)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	parsed = normalizeRefs(parsed)

	operands := expr.Operands(parsed)
	for _, name := range operands {
		if !c.smap.Has(name) {
			return 0, fmt.Errorf("%s: signal %q not in signal number mapping file", path, name)
		}
	}

	start, stop := int64(-1), int64(-1)
	switch {
	case item.Start != nil && item.Stop != nil:
		start, stop = *item.Start, *item.Stop
		if start < 0 || stop < 0 {
			return 0, fmt.Errorf("%s: start/stop must be non-negative", path)
		}
	case item.Start != nil:
		return 0, fmt.Errorf("%s: 'start' keyword has no corresponding 'stop' keyword", path)
	case item.Stop != nil:
		return 0, fmt.Errorf("%s: 'stop' keyword has no corresponding 'start' keyword", path)
	}

	id := c.alloc(Node{
		Kind:     NodeCondition,
		Parent:   parent,
		Path:     path,
		Expr:     parsed,
		ExprText: item.Condition,
		Operands: operands,
		StartMs:  start,
		StopMs:   stop,
	})

	if item.Emit != nil {
		child, err := c.compileEmit(*item.Emit, id, path+".emit")
		if err != nil {
			return 0, err
		}
		c.tree.Nodes[id].Children = append(c.tree.Nodes[id].Children, child)
	}
	if item.Parallel != nil {
		child, err := c.compileWrapper(NodeParallel, item.Parallel, id, path+".parallel")
		if err != nil {
			return 0, err
		}
		c.tree.Nodes[id].Children = append(c.tree.Nodes[id].Children, child)
	}
	if item.Sequence != nil {
		child, err := c.compileWrapper(NodeSequence, item.Sequence, id, path+".sequence")
		if err != nil {
			return 0, err
		}
		c.tree.Nodes[id].Children = append(c.tree.Nodes[id].Children, child)
	}

	return id, nil
}

func (c *compiler) compileWrapper(kind NodeKind, items []rules.Item, parent int, path string) (int, error) {
	if len(items) == 0 {
		return 0, fmt.Errorf("%s: wrapper block is empty", path)
	}
	id := c.alloc(Node{Kind: kind, Parent: parent, Path: path})
	for i, item := range items {
		child, err := c.compileItem(item, id, fmt.Sprintf("%s[%d]", path, i), false)
		if err != nil {
			return 0, err
		}
		c.tree.Nodes[id].Children = append(c.tree.Nodes[id].Children, child)
	}
	return id, nil
}

func (c *compiler) compileEmit(e rules.Emit, parent int, path string) (int, error) {
	num, ok := c.smap.Num(e.Signal)
	if !ok {
		return 0, fmt.Errorf("%s: signal %q not in signal number mapping file", path, e.Signal)
	}
	if e.Delay < 0 {
		return 0, fmt.Errorf("%s: delay must be non-negative", path)
	}
	return c.alloc(Node{
		Kind:      NodeEmit,
		Parent:    parent,
		Path:      path,
		Signal:    e.Signal,
		SignalNum: num,
		Value:     expr.Literal{Value: e.Value},
		DelayMs:   e.Delay,
	}), nil
}

// normalizeRefs rewrites every signal reference to its NFC form so store
// lookups match names normalized at the other ingress points.
func normalizeRefs(e expr.Expr) expr.Expr {
	switch n := e.(type) {
	case expr.SignalRef:
		return expr.SignalRef{Name: rules.NormalizeName(n.Name)}
	case expr.Unary:
		return expr.Unary{Op: n.Op, X: normalizeRefs(n.X)}
	case expr.Binary:
		return expr.Binary{Op: n.Op, X: normalizeRefs(n.X), Y: normalizeRefs(n.Y)}
	default:
		return e
	}
}

// EmitChildren returns the emit children of a node.
func (t *Tree) EmitChildren(id int) []int {
	var emits []int
	for _, c := range t.Nodes[id].Children {
		if t.Nodes[c].Kind == NodeEmit {
			emits = append(emits, c)
		}
	}
	return emits
}

// AncestorConditions returns the chain of enclosing condition nodes,
// nearest first, skipping wrapper nodes.
func (t *Tree) AncestorConditions(id int) []int {
	var chain []int
	for p := t.Nodes[id].Parent; p >= 0; p = t.Nodes[p].Parent {
		if t.Nodes[p].Kind == NodeCondition {
			chain = append(chain, p)
		}
	}
	return chain
}

// SequenceParent returns the sequence wrapper directly enclosing the node,
// if any.
func (t *Tree) SequenceParent(id int) (int, bool) {
	p := t.Nodes[id].Parent
	if p >= 0 && t.Nodes[p].Kind == NodeSequence {
		return p, true
	}
	return 0, false
}

// Conditions returns the indices of all condition nodes in pre-order.
func (t *Tree) Conditions() []int {
	var conds []int
	for i := range t.Nodes {
		if t.Nodes[i].Kind == NodeCondition {
			conds = append(conds, i)
		}
	}
	return conds
}

// dumpValue is the literal form of an emit node's value for diagnostics.
func dumpValue(e expr.Expr) string {
	if lit, ok := e.(expr.Literal); ok {
		return lit.Value.Repr()
	}
	return "<expr>"
}

// Dump renders the tree structure for the validate command.
func (t *Tree) Dump() string {
	var out string
	for _, r := range t.Roots {
		out += t.dumpNode(r, "")
	}
	return out
}

func (t *Tree) dumpNode(id int, indent string) string {
	n := &t.Nodes[id]
	var line string
	switch n.Kind {
	case NodeCondition:
		line = fmt.Sprintf("%scondition: %s", indent, n.ExprText)
		if n.Monitored() {
			line += fmt.Sprintf(" [start=%dms stop=%dms]", n.StartMs, n.StopMs)
		}
	case NodeEmit:
		line = fmt.Sprintf("%semit: %s = %s", indent, n.Signal, dumpValue(n.Value))
		if n.DelayMs > 0 {
			line += fmt.Sprintf(" [delay=%dms]", n.DelayMs)
		}
	default:
		line = indent + n.Kind.String()
	}
	out := line + "\n"
	for _, c := range n.Children {
		out += t.dumpNode(c, indent+"  ")
	}
	return out
}
