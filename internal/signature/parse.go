package signature

import (
	"fmt"
	"strings"
)

// ParseError is returned for unparseable signature strings (spec 4.1
// "invalid_signature").
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid_signature: %s at position %d in %q", e.Msg, e.Pos, e.Input)
}

// Parse parses a contract string per the grammar in spec 4.1:
//
//	sig     := "(" params ")" "->" type | type
//	params  := (name type ("," name type)*)?
//	type    := prim | list | map | optional
//	prim    := ":string" | ":int" | ":float" | ":bool" | ":keyword" | ":any" | ":map"
//	list    := "[" type "]"
//	map     := "{" (name type ("," name type)*)? "}"
//	optional:= type "?"
//
// A signature with no arrow is treated as return-type only (shorthand).
func Parse(input string) (Signature, error) {
	p := &parser{src: input}
	p.skipSpace()
	if p.peek() != '(' {
		t, err := p.parseType()
		if err != nil {
			return Signature{}, err
		}
		p.skipSpace()
		if !p.atEnd() {
			return Signature{}, p.errf("unexpected trailing input")
		}
		return Signature{Returns: t}, nil
	}
	p.next() // consume '('
	var params []Param
	p.skipSpace()
	if p.peek() != ')' {
		for {
			p.skipSpace()
			name := p.parseName()
			if name == "" {
				return Signature{}, p.errf("expected parameter name")
			}
			p.skipSpace()
			t, err := p.parseType()
			if err != nil {
				return Signature{}, err
			}
			params = append(params, Param{Name: name, Type: t})
			p.skipSpace()
			if p.peek() == ',' {
				p.next()
				continue
			}
			break
		}
	}
	p.skipSpace()
	if p.peek() != ')' {
		return Signature{}, p.errf("expected ')'")
	}
	p.next()
	p.skipSpace()
	if !p.consumeLiteral("->") {
		return Signature{}, p.errf("expected '->'")
	}
	p.skipSpace()
	ret, err := p.parseType()
	if err != nil {
		return Signature{}, err
	}
	p.skipSpace()
	if !p.atEnd() {
		return Signature{}, p.errf("unexpected trailing input")
	}
	return Signature{Params: params, Returns: ret}, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) atEnd() bool { return p.pos >= len(p.src) }
func (p *parser) peek() byte {
	if p.atEnd() {
		return 0
	}
	return p.src[p.pos]
}
func (p *parser) next() byte {
	c := p.src[p.pos]
	p.pos++
	return c
}
func (p *parser) skipSpace() {
	for !p.atEnd() && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t' || p.src[p.pos] == '\n') {
		p.pos++
	}
}
func (p *parser) errf(format string, args ...any) error {
	return &ParseError{Input: p.src, Pos: p.pos, Msg: fmt.Sprintf(format, args...)}
}
func (p *parser) consumeLiteral(s string) bool {
	if strings.HasPrefix(p.src[p.pos:], s) {
		p.pos += len(s)
		return true
	}
	return false
}

func (p *parser) parseName() string {
	start := p.pos
	for !p.atEnd() {
		c := p.src[p.pos]
		if c == ' ' || c == ':' || c == ',' || c == ')' || c == '(' {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) parseType() (Type, error) {
	p.skipSpace()
	var base Type
	var err error
	switch p.peek() {
	case '[':
		p.next()
		elem, e := p.parseType()
		if e != nil {
			return nil, e
		}
		p.skipSpace()
		if p.peek() != ']' {
			return nil, p.errf("expected ']'")
		}
		p.next()
		base = ListType{Elem: elem}
	case '{':
		p.next()
		var fields []Field
		p.skipSpace()
		if p.peek() != '}' {
			for {
				p.skipSpace()
				name := p.parseName()
				if name == "" {
					return nil, p.errf("expected field name")
				}
				p.skipSpace()
				t, e := p.parseType()
				if e != nil {
					return nil, e
				}
				fields = append(fields, Field{Name: name, Type: t})
				p.skipSpace()
				if p.peek() == ',' {
					p.next()
					continue
				}
				break
			}
		}
		p.skipSpace()
		if p.peek() != '}' {
			return nil, p.errf("expected '}'")
		}
		p.next()
		base = MapType{Fields: fields}
	case ':':
		p.next()
		start := p.pos
		for !p.atEnd() && isIdentByte(p.src[p.pos]) {
			p.pos++
		}
		name := p.src[start:p.pos]
		prim := Prim(name)
		switch prim {
		case PrimString, PrimInt, PrimFloat, PrimBool, PrimKeyword, PrimAny, PrimMap:
			base = prim
		default:
			return nil, p.errf("unknown primitive type %q", name)
		}
	default:
		return nil, p.errf("expected a type")
	}
	if p.peek() == '?' {
		p.next()
		base = Optional{Wrapped: base}
	}
	_ = err
	return base, nil
}

func isIdentByte(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}
