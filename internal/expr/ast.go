package expr

import (
	"slices"

	"github.com/vsignal/vsm/internal/signal"
)

// Expr is a node in a parsed condition or value expression.
// The interface is sealed: only Literal, SignalRef, Unary, and Binary
// implement it.
type Expr interface {
	exprNode()
}

// Literal is a constant value.
type Literal struct {
	Value signal.Value
}

func (Literal) exprNode() {}

// SignalRef reads the current value of a named signal from the store.
type SignalRef struct {
	Name string
}

func (SignalRef) exprNode() {}

// UnaryOp identifies a unary operator.
type UnaryOp int

const (
	OpNot UnaryOp = iota + 1
	OpNeg
)

// Unary applies a unary operator to a subexpression.
type Unary struct {
	Op UnaryOp
	X  Expr
}

func (Unary) exprNode() {}

// BinaryOp identifies a binary operator.
type BinaryOp int

const (
	OpAdd BinaryOp = iota + 1
	OpSub
	OpMul
	OpDiv
	OpMod

	OpLt
	OpLe
	OpEq
	OpNe
	OpGe
	OpGt

	OpAnd
	OpOr
	OpXor
)

// Binary applies a binary operator to two subexpressions.
type Binary struct {
	Op   BinaryOp
	X, Y Expr
}

func (Binary) exprNode() {}

// Operands returns the sorted set of signal names referenced by the
// expression. The driver uses it to build the reverse index deciding which
// condition nodes re-evaluate when a signal changes.
func Operands(e Expr) []string {
	seen := make(map[string]struct{})
	collectOperands(e, seen)
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func collectOperands(e Expr, seen map[string]struct{}) {
	switch n := e.(type) {
	case SignalRef:
		seen[n.Name] = struct{}{}
	case Unary:
		collectOperands(n.X, seen)
	case Binary:
		collectOperands(n.X, seen)
		collectOperands(n.Y, seen)
	}
}
