package expr

import (
	"math"

	"github.com/vsignal/vsm/internal/signal"
)

// Env supplies signal values to the evaluator. *signal.Store satisfies it.
type Env interface {
	Get(name string) signal.Value
}

// Eval evaluates an expression against an environment.
//
// Eval is deterministic, pure, and never fails: evaluation errors (unknown
// signals, division by zero, type mismatches) yield the Undefined value.
// With one exception, any subexpression evaluating to Undefined makes the
// whole expression Undefined. The exception is "^^": it compares the
// truthiness of its sides, where an undefined side counts as not-true, so
// a defined-true side still makes the XOR true.
func Eval(e Expr, env Env) signal.Value {
	switch n := e.(type) {
	case Literal:
		return n.Value

	case SignalRef:
		return env.Get(n.Name)

	case Unary:
		x := Eval(n.X, env)
		if x.IsUndefined() {
			return signal.Undefined()
		}
		switch n.Op {
		case OpNot:
			if b, ok := x.AsBool(); ok {
				return signal.Bool(!b)
			}
		case OpNeg:
			if i, ok := x.AsInt(); ok {
				return signal.Int(-i)
			}
			if f, ok := x.AsFloat(); ok {
				return signal.Float(-f)
			}
		}
		return signal.Undefined()

	case Binary:
		if n.Op == OpXor {
			return signal.Bool(Eval(n.X, env).IsTrue() != Eval(n.Y, env).IsTrue())
		}
		x := Eval(n.X, env)
		y := Eval(n.Y, env)
		if x.IsUndefined() || y.IsUndefined() {
			return signal.Undefined()
		}
		switch n.Op {
		case OpAdd, OpSub, OpMul, OpDiv, OpMod:
			return arith(n.Op, x, y)
		case OpLt, OpLe, OpEq, OpNe, OpGe, OpGt:
			return compare(n.Op, x, y)
		case OpAnd, OpOr:
			xb, xok := x.AsBool()
			yb, yok := y.AsBool()
			if !xok || !yok {
				return signal.Undefined()
			}
			if n.Op == OpAnd {
				return signal.Bool(xb && yb)
			}
			return signal.Bool(xb || yb)
		}
		return signal.Undefined()

	default:
		return signal.Undefined()
	}
}

// arith applies an arithmetic operator. Integer pairs stay integral with
// truncation toward zero; mixed numeric pairs coerce to float. Division by
// zero yields Undefined rather than a fault.
func arith(op BinaryOp, x, y signal.Value) signal.Value {
	if xi, ok := x.AsInt(); ok {
		if yi, ok := y.AsInt(); ok {
			switch op {
			case OpAdd:
				return signal.Int(xi + yi)
			case OpSub:
				return signal.Int(xi - yi)
			case OpMul:
				return signal.Int(xi * yi)
			case OpDiv:
				if yi == 0 {
					return signal.Undefined()
				}
				return signal.Int(xi / yi)
			case OpMod:
				if yi == 0 {
					return signal.Undefined()
				}
				return signal.Int(xi % yi)
			}
		}
	}

	xf, xok := x.AsFloat()
	yf, yok := y.AsFloat()
	if !xok || !yok {
		return signal.Undefined()
	}
	switch op {
	case OpAdd:
		return signal.Float(xf + yf)
	case OpSub:
		return signal.Float(xf - yf)
	case OpMul:
		return signal.Float(xf * yf)
	case OpDiv:
		if yf == 0 {
			return signal.Undefined()
		}
		return signal.Float(xf / yf)
	case OpMod:
		if yf == 0 {
			return signal.Undefined()
		}
		return signal.Float(math.Mod(xf, yf))
	}
	return signal.Undefined()
}

// compare applies a comparison operator. Numeric pairs coerce to float,
// strings compare lexicographically to strings, booleans support only
// equality. Cross-kind comparisons yield Undefined.
func compare(op BinaryOp, x, y signal.Value) signal.Value {
	if xf, ok := x.AsFloat(); ok {
		if yf, ok := y.AsFloat(); ok {
			return cmpResult(op, cmpFloat(xf, yf))
		}
		return signal.Undefined()
	}

	if xs, ok := x.AsString(); ok {
		if ys, ok := y.AsString(); ok {
			switch {
			case xs < ys:
				return cmpResult(op, -1)
			case xs > ys:
				return cmpResult(op, 1)
			default:
				return cmpResult(op, 0)
			}
		}
		return signal.Undefined()
	}

	if xb, ok := x.AsBool(); ok {
		if yb, ok := y.AsBool(); ok {
			switch op {
			case OpEq:
				return signal.Bool(xb == yb)
			case OpNe:
				return signal.Bool(xb != yb)
			}
		}
		return signal.Undefined()
	}

	return signal.Undefined()
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpResult(op BinaryOp, c int) signal.Value {
	switch op {
	case OpLt:
		return signal.Bool(c < 0)
	case OpLe:
		return signal.Bool(c <= 0)
	case OpEq:
		return signal.Bool(c == 0)
	case OpNe:
		return signal.Bool(c != 0)
	case OpGe:
		return signal.Bool(c >= 0)
	case OpGt:
		return signal.Bool(c > 0)
	}
	return signal.Undefined()
}
