package filter

import (
	"strconv"
	"strings"

	"github.com/lexidx/lexidx/internal/common"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokEQ
	tokNE
	tokGT
	tokGE
	tokLT
	tokLE
	tokAnd
	tokOr
	tokNot
	tokTo
	tokIn
	tokExists
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int // byte offset into the source, for span-tracked errors
}

// lex tokenizes src, the filter DSL being whitespace-insensitive except
// inside quotes.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	n := len(src)

	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, pos: i})
			i++
		case c == '[':
			toks = append(toks, token{kind: tokLBracket, pos: i})
			i++
		case c == ']':
			toks = append(toks, token{kind: tokRBracket, pos: i})
			i++
		case c == ',':
			toks = append(toks, token{kind: tokComma, pos: i})
			i++
		case c == '=':
			toks = append(toks, token{kind: tokEQ, pos: i})
			i++
		case c == '!' && i+1 < n && src[i+1] == '=':
			toks = append(toks, token{kind: tokNE, pos: i})
			i += 2
		case c == '>' && i+1 < n && src[i+1] == '=':
			toks = append(toks, token{kind: tokGE, pos: i})
			i += 2
		case c == '>':
			toks = append(toks, token{kind: tokGT, pos: i})
			i++
		case c == '<' && i+1 < n && src[i+1] == '=':
			toks = append(toks, token{kind: tokLE, pos: i})
			i += 2
		case c == '<':
			toks = append(toks, token{kind: tokLT, pos: i})
			i++
		case c == '"' || c == '\'':
			s, next, err := lexQuoted(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i = next
		case isNumberStart(src, i):
			s, next := lexNumber(src, i)
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, common.NewUserError(common.ErrInvalidFilter, "invalid number %q at position %d", s, i)
			}
			toks = append(toks, token{kind: tokNumber, text: s, num: f, pos: i})
			i = next
		case isIdentStart(c):
			s, next := lexIdent(src, i)
			toks = append(toks, identOrKeyword(s, i))
			i = next
		default:
			return nil, common.NewUserError(common.ErrInvalidFilter, "unexpected character %q at position %d", c, i)
		}
	}

	toks = append(toks, token{kind: tokEOF, pos: n})
	return toks, nil
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '.' || c == '-' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isNumberStart(src string, i int) bool {
	c := src[i]
	if c >= '0' && c <= '9' {
		return true
	}
	return c == '-' && i+1 < len(src) && src[i+1] >= '0' && src[i+1] <= '9'
}

func lexNumber(src string, i int) (string, int) {
	start := i
	if src[i] == '-' {
		i++
	}
	for i < len(src) && (src[i] >= '0' && src[i] <= '9' || src[i] == '.') {
		i++
	}
	return src[start:i], i
}

func lexIdent(src string, i int) (string, int) {
	start := i
	for i < len(src) && isIdentCont(src[i]) {
		i++
	}
	return src[start:i], i
}

func lexQuoted(src string, i int) (string, int, error) {
	start := i
	quote := src[i]
	i++
	var b strings.Builder
	for i < len(src) {
		c := src[i]
		if c == '\\' && i+1 < len(src) && (src[i+1] == '"' || src[i+1] == '\'' || src[i+1] == '\\') {
			b.WriteByte(src[i+1])
			i += 2
			continue
		}
		if c == quote {
			return b.String(), i + 1, nil
		}
		b.WriteByte(c)
		i++
	}
	return "", i, common.NewUserError(common.ErrInvalidFilter, "unterminated quoted string starting at position %d", start)
}

func identOrKeyword(s string, pos int) token {
	switch strings.ToUpper(s) {
	case "AND":
		return token{kind: tokAnd, text: s, pos: pos}
	case "OR":
		return token{kind: tokOr, text: s, pos: pos}
	case "NOT":
		return token{kind: tokNot, text: s, pos: pos}
	case "TO":
		return token{kind: tokTo, text: s, pos: pos}
	case "IN":
		return token{kind: tokIn, text: s, pos: pos}
	case "EXISTS":
		return token{kind: tokExists, text: s, pos: pos}
	default:
		return token{kind: tokIdent, text: s, pos: pos}
	}
}
