package lisp

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Reader turns a token stream into a forest of raw Forms: one Value
// per top-level form, using Symbol for bare identifiers and List/
// Vector/Map/Set for the bracketed forms. The analyzer is what gives
// these trees executable meaning.
type reader struct {
	toks []token
	pos  int
}

// ReadAll parses every top-level form in src.
func ReadAll(src string) ([]Value, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	r := &reader{toks: toks}
	var forms []Value
	for r.peek().kind != tokEOF {
		f, err := r.readForm()
		if err != nil {
			return nil, err
		}
		forms = append(forms, f)
	}
	return forms, nil
}

func (r *reader) peek() token { return r.toks[r.pos] }

func (r *reader) next() token {
	t := r.toks[r.pos]
	if r.pos < len(r.toks)-1 {
		r.pos++
	}
	return t
}

func (r *reader) readForm() (Value, error) {
	t := r.peek()
	switch t.kind {
	case tokLParen:
		return r.readSeq(tokRParen, func(items []Value) Value { return List{Items: items} })
	case tokLBracket:
		return r.readSeq(tokRBracket, func(items []Value) Value { return Vector{Items: items} })
	case tokLBrace:
		return r.readMap()
	case tokHashBrace:
		return r.readSet()
	case tokRParen, tokRBracket, tokRBrace:
		return nil, fmt.Errorf("unexpected %q at line %d col %d", t.text, t.line, t.col)
	case tokEOF:
		return nil, fmt.Errorf("unexpected end of input")
	default:
		return r.readAtom(t)
	}
}

func (r *reader) readSeq(close tokenKind, wrap func([]Value) Value) (Value, error) {
	open := r.next()
	var items []Value
	for {
		t := r.peek()
		if t.kind == tokEOF {
			return nil, fmt.Errorf("unterminated form starting at line %d col %d", open.line, open.col)
		}
		if t.kind == close {
			r.next()
			return wrap(items), nil
		}
		v, err := r.readForm()
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
}

func (r *reader) readMap() (Value, error) {
	open := r.next()
	m := NewMap()
	for {
		t := r.peek()
		if t.kind == tokEOF {
			return nil, fmt.Errorf("unterminated map starting at line %d col %d", open.line, open.col)
		}
		if t.kind == tokRBrace {
			r.next()
			return m, nil
		}
		k, err := r.readForm()
		if err != nil {
			return nil, err
		}
		if r.peek().kind == tokRBrace {
			return nil, fmt.Errorf("map literal missing value for key %s at line %d", k.String(), open.line)
		}
		v, err := r.readForm()
		if err != nil {
			return nil, err
		}
		m = m.Set(k, v)
	}
}

func (r *reader) readSet() (Value, error) {
	open := r.next()
	s := NewSet()
	for {
		t := r.peek()
		if t.kind == tokEOF {
			return nil, fmt.Errorf("unterminated set starting at line %d col %d", open.line, open.col)
		}
		if t.kind == tokRBrace {
			r.next()
			return s, nil
		}
		v, err := r.readForm()
		if err != nil {
			return nil, err
		}
		s = s.Add(v)
	}
}

func (r *reader) readAtom(t token) (Value, error) {
	r.next()
	text := t.text

	switch text {
	case "nil":
		return Nil{}, nil
	case "true":
		return Bool(true), nil
	case "false":
		return Bool(false), nil
	case "##Inf":
		return Float(math.Inf(1)), nil
	case "##-Inf":
		return Float(math.Inf(-1)), nil
	case "##NaN":
		return Float(math.NaN()), nil
	}

	if strings.HasPrefix(text, "\"") {
		return Str(unescapeString(text)), nil
	}
	if strings.HasPrefix(text, ":") {
		return Keyword(strings.TrimPrefix(text, ":")), nil
	}
	if iv, err := strconv.ParseInt(text, 10, 64); err == nil {
		return Int(iv), nil
	}
	if fv, err := strconv.ParseFloat(text, 64); err == nil && looksNumeric(text) {
		return Float(fv), nil
	}
	return Symbol(text), nil
}

func looksNumeric(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	return c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9')
}

func unescapeString(text string) string {
	// text includes the surrounding quotes.
	inner := text[1 : len(text)-1]
	var b strings.Builder
	for i := 0; i < len(inner); i++ {
		if inner[i] == '\\' && i+1 < len(inner) {
			switch inner[i+1] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(inner[i+1])
			}
			i++
			continue
		}
		b.WriteByte(inner[i])
	}
	return b.String()
}
