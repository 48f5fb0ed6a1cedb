package filter

import (
	"strings"

	"github.com/lexidx/lexidx/internal/common"
)

// Parse parses src into a filter AST.
func Parse(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected trailing input at position %d", p.peek().pos)
	}
	return expr, nil
}

type parser struct {
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if p.i < len(p.toks)-1 {
		p.i++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return common.NewUserError(common.ErrInvalidFilter, format, args...)
}

// or_expr = and_expr ("OR" and_expr)*
func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Or{Left: left, Right: right}
	}
	return left, nil
}

// and_expr = not_expr ("AND" not_expr)*
func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &And{Left: left, Right: right}
	}
	return left, nil
}

// not_expr = "NOT" not_expr | "(" expr ")" | primary
//
// NOT binds tighter than AND/OR.
func (p *parser) parseNot() (Expr, error) {
	if p.peek().kind == tokNot {
		p.next()
		// a bare "NOT field IN [...]"/"NOT field EXISTS" is its own
		// primary form (negated In/Exists) rather than wrapping a Not
		// node, so check for that shape first.
		if p.peek().kind == tokIdent {
			if expr, ok, err := p.tryParseNegatedPrimary(); err != nil {
				return nil, err
			} else if ok {
				return expr, nil
			}
		}
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Not{Inner: inner}, nil
	}
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf("expected ')' at position %d", p.peek().pos)
		}
		p.next()
		return inner, nil
	}
	return p.parsePrimary()
}

// tryParseNegatedPrimary handles "NOT field IN [...]" / "NOT field EXISTS"
// as a negated In/Exists node, without consuming input if the lookahead
// doesn't match either shape (the caller falls back to a generic Not).
func (p *parser) tryParseNegatedPrimary() (Expr, bool, error) {
	save := p.i
	field := p.next().text
	switch p.peek().kind {
	case tokIn:
		p.next()
		values, err := p.parseValueList()
		if err != nil {
			return nil, false, err
		}
		return &In{Field: field, Values: values, Negate: true}, true, nil
	case tokExists:
		p.next()
		return &Exists{Field: field, Negate: true}, true, nil
	default:
		p.i = save
		return nil, false, nil
	}
}

// primary = field op value
//         | field value "TO" value
//         | field "NOT"? "IN" "[" value ("," value)* "]"
//         | field "EXISTS" | field "NOT" "EXISTS"
//         | "_geoRadius" "(" number "," number "," number ")"
func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	if tok.kind == tokIdent && strings.EqualFold(tok.text, "_geoRadius") {
		return p.parseGeoRadius()
	}
	if tok.kind != tokIdent {
		return nil, p.errorf("expected field name at position %d", tok.pos)
	}
	field := p.next().text

	switch p.peek().kind {
	case tokEQ, tokNE, tokGT, tokGE, tokLT, tokLE:
		op := opFromToken(p.next().kind)
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if p.peek().kind == tokTo {
			return nil, p.errorf("unexpected 'TO' after comparison operator at position %d", p.peek().pos)
		}
		return &Compare{Field: field, Op: op, Value: val}, nil
	case tokIn:
		p.next()
		values, err := p.parseValueList()
		if err != nil {
			return nil, err
		}
		return &In{Field: field, Values: values}, nil
	case tokExists:
		p.next()
		return &Exists{Field: field}, nil
	case tokNot:
		p.next()
		if p.peek().kind != tokExists {
			return nil, p.errorf("expected 'EXISTS' after 'NOT' at position %d", p.peek().pos)
		}
		p.next()
		return &Exists{Field: field, Negate: true}, nil
	case tokString, tokNumber:
		low, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokTo {
			return nil, p.errorf("expected 'TO' at position %d", p.peek().pos)
		}
		p.next()
		high, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		return &Range{Field: field, Low: low, High: high}, nil
	default:
		return nil, p.errorf("expected operator, 'IN', 'EXISTS', or a range at position %d", p.peek().pos)
	}
}

func (p *parser) parseGeoRadius() (Expr, error) {
	p.next() // "_geoRadius"
	if p.peek().kind != tokLParen {
		return nil, p.errorf("expected '(' after _geoRadius at position %d", p.peek().pos)
	}
	p.next()
	lat, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokComma {
		return nil, p.errorf("expected ',' at position %d", p.peek().pos)
	}
	p.next()
	lng, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokComma {
		return nil, p.errorf("expected ',' at position %d", p.peek().pos)
	}
	p.next()
	meters, err := p.parseNumber()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokRParen {
		return nil, p.errorf("expected ')' at position %d", p.peek().pos)
	}
	p.next()
	return &GeoRadius{Lat: lat, Lng: lng, Meters: meters}, nil
}

func (p *parser) parseValueList() ([]Value, error) {
	if p.peek().kind != tokLBracket {
		return nil, p.errorf("expected '[' at position %d", p.peek().pos)
	}
	p.next()
	var values []Value
	if p.peek().kind != tokRBracket {
		for {
			v, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if p.peek().kind == tokComma {
				p.next()
				continue
			}
			break
		}
	}
	if p.peek().kind != tokRBracket {
		return nil, p.errorf("expected ']' at position %d", p.peek().pos)
	}
	p.next()
	return values, nil
}

func (p *parser) parseValue() (Value, error) {
	tok := p.peek()
	switch tok.kind {
	case tokString:
		p.next()
		return Value{Str: tok.text}, nil
	case tokNumber:
		p.next()
		return Value{Num: tok.num, IsNumber: true}, nil
	case tokIdent:
		p.next()
		return Value{Str: tok.text}, nil
	default:
		return Value{}, p.errorf("expected a value at position %d", tok.pos)
	}
}

func (p *parser) parseNumber() (float64, error) {
	tok := p.peek()
	if tok.kind != tokNumber {
		return 0, p.errorf("expected a number at position %d", tok.pos)
	}
	p.next()
	return tok.num, nil
}

func opFromToken(k tokenKind) Op {
	switch k {
	case tokEQ:
		return OpEQ
	case tokNE:
		return OpNE
	case tokGT:
		return OpGT
	case tokGE:
		return OpGE
	case tokLT:
		return OpLT
	case tokLE:
		return OpLE
	}
	return OpEQ
}
