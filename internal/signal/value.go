package signal

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies the variant held by a Value.
type Kind int

const (
	// KindUndefined is the distinguished "no value" kind. Unknown signals
	// evaluate to it, and any expression touching it yields it.
	KindUndefined Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
)

// String returns a human-readable kind name for logs and errors.
func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "undefined"
	}
}

// Value is a tagged variant holding one of: integer, float, string, bool,
// or the distinguished Undefined.
//
// Value is a small immutable struct and is passed by value everywhere.
// Arithmetic is defined only on numeric kinds, comparison permits numeric
// coercion, and cross-kind operations yield Undefined (see internal/expr).
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
}

// Undefined returns the distinguished undefined value.
func Undefined() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int returns an integer value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsUndefined reports whether the value is the undefined value.
func (v Value) IsUndefined() bool { return v.kind == KindUndefined }

// IsTrue reports whether the value is the boolean true. Every other value,
// including Undefined, is "not true" for condition gating.
func (v Value) IsTrue() bool { return v.kind == KindBool && v.b }

// AsBool returns the boolean payload. ok is false for non-bool values.
func (v Value) AsBool() (b, ok bool) { return v.b, v.kind == KindBool }

// AsInt returns the integer payload. ok is false for non-int values.
func (v Value) AsInt() (int64, bool) { return v.i, v.kind == KindInt }

// AsString returns the string payload. ok is false for non-string values.
func (v Value) AsString() (string, bool) { return v.s, v.kind == KindString }

// AsFloat returns the numeric payload coerced to float64.
// ok is false for non-numeric values.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	default:
		return 0, false
	}
}

// Equal reports value equality for change detection. Numeric values compare
// across int/float; all other kinds compare only to themselves.
func (v Value) Equal(o Value) bool {
	if v.kind == o.kind {
		switch v.kind {
		case KindUndefined:
			return true
		case KindBool:
			return v.b == o.b
		case KindInt:
			return v.i == o.i
		case KindFloat:
			return v.f == o.f
		case KindString:
			return v.s == o.s
		}
	}
	vf, vok := v.AsFloat()
	of, ook := o.AsFloat()
	return vok && ook && vf == of
}

// Render returns the canonical unquoted string form of the value:
// True/False for booleans, decimal digits for integers, a form with a
// decimal point for floats, the raw text for strings. Undefined renders
// as "<undefined>".
func (v Value) Render() string {
	switch v.kind {
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindString:
		return v.s
	default:
		return "<undefined>"
	}
}

// Repr returns the value as a short literal: strings are single-quoted with
// backslash escapes, other kinds use their Render form. The result parses
// back with ParseLiteral for every defined value.
func (v Value) Repr() string {
	if v.kind == KindString {
		return QuoteString(v.s)
	}
	return v.Render()
}

// formatFloat keeps a decimal point in the output so the literal reads back
// as a float: 5 renders as "5.0".
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eE") && !strings.Contains(s, "Inf") && s != "NaN" {
		s += ".0"
	}
	return s
}

// QuoteString renders s as a single-quoted literal, escaping backslashes,
// quotes, and control whitespace.
func QuoteString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// ParseLiteral parses a short literal: a quoted string (single or double
// quotes, standard escapes), true/True/false/False, an integer, or a float.
func ParseLiteral(text string) (Value, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return Undefined(), fmt.Errorf("empty value literal")
	}

	if t[0] == '\'' || t[0] == '"' {
		s, err := unquote(t)
		if err != nil {
			return Undefined(), err
		}
		return String(s), nil
	}

	// Only the leading letter may be capitalized, to disallow e.g. "trUe".
	switch t {
	case "true", "True":
		return Bool(true), nil
	case "false", "False":
		return Bool(false), nil
	}

	if strings.ContainsAny(t, ".eE") {
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return Undefined(), fmt.Errorf("incorrect value: %s", text)
		}
		return Float(f), nil
	}

	i, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		return Undefined(), fmt.Errorf("incorrect value: %s", text)
	}
	return Int(i), nil
}

func unquote(t string) (string, error) {
	if len(t) < 2 || t[len(t)-1] != t[0] {
		return "", fmt.Errorf("unterminated string literal: %s", t)
	}
	quote := t[0]
	body := t[1 : len(t)-1]
	var b strings.Builder
	b.Grow(len(body))
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c != '\\' {
			if c == quote {
				return "", fmt.Errorf("stray quote in string literal: %s", t)
			}
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(body) {
			return "", fmt.Errorf("dangling escape in string literal: %s", t)
		}
		switch body[i] {
		case '\\':
			b.WriteByte('\\')
		case '\'':
			b.WriteByte('\'')
		case '"':
			b.WriteByte('"')
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		default:
			return "", fmt.Errorf("unknown escape \\%c in string literal: %s", body[i], t)
		}
	}
	return b.String(), nil
}
