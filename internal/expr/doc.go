// Package expr implements the condition expression language: a hand-written
// lexer, a recursive-descent parser, and a pure evaluator over typed signal
// values.
//
// Precedence, loosest first: "||", "^^", "&&", "!", comparisons,
// additive, multiplicative, unary minus. Parentheses override.
package expr
