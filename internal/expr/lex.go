package expr

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokFloat
	tokString
	tokBool
	tokOp     // + - * / % < <= == != >= > ! && ^^ ||
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lexer splits an expression string into tokens. Identifiers are dotted
// signal names; string literals use single or double quotes with backslash
// escapes.
type lexer struct {
	src  string
	pos  int
	toks []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		l.toks = append(l.toks, tok)
		if tok.kind == tokEOF {
			return l.toks, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil
	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil
	case c == '\'' || c == '"':
		return l.lexString(c)
	case c >= '0' && c <= '9':
		return l.lexNumber()
	case isIdentStart(c):
		return l.lexIdent()
	}

	// Two-character operators first.
	if l.pos+1 < len(l.src) {
		two := l.src[l.pos : l.pos+2]
		switch two {
		case "&&", "||", "^^", "==", "!=", "<=", ">=":
			l.pos += 2
			return token{kind: tokOp, text: two, pos: start}, nil
		}
	}
	switch c {
	case '+', '-', '*', '/', '%', '<', '>', '!':
		l.pos++
		return token{kind: tokOp, text: string(c), pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at offset %d", c, start)
}

func (l *lexer) lexString(quote byte) (token, error) {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case '\\':
			l.pos += 2
		case quote:
			l.pos++
			return token{kind: tokString, text: l.src[start:l.pos], pos: start}, nil
		default:
			l.pos++
		}
	}
	return token{}, fmt.Errorf("unterminated string literal at offset %d", start)
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	kind := tokInt
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c >= '0' && c <= '9' {
			l.pos++
			continue
		}
		if c == '.' || c == 'e' || c == 'E' {
			kind = tokFloat
			l.pos++
			if c != '.' && l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
				l.pos++
			}
			continue
		}
		break
	}
	return token{kind: kind, text: l.src[start:l.pos], pos: start}, nil
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if isIdentStart(c) || (c >= '0' && c <= '9') || c == '.' {
			l.pos++
			continue
		}
		break
	}
	text := l.src[start:l.pos]
	if strings.HasPrefix(text, ".") || strings.HasSuffix(text, ".") || strings.Contains(text, "..") {
		return token{}, fmt.Errorf("malformed identifier %q at offset %d", text, start)
	}
	switch text {
	case "true", "True", "false", "False":
		return token{kind: tokBool, text: text, pos: start}, nil
	}
	return token{kind: tokIdent, text: text, pos: start}, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isIdentStart(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c)) || c >= 0x80
}
