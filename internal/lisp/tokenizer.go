package lisp

import (
	"fmt"
	"strings"
)

type tokenKind int

const (
	tokLParen tokenKind = iota
	tokRParen
	tokLBracket
	tokRBracket
	tokLBrace
	tokRBrace
	tokHashBrace // #{
	tokAtom      // symbol, number, string, keyword, nil/true/false
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	line int
	col  int
}

// tokenize splits source into tokens. It recognizes the reader
// quirks named in spec 4.2: `#{` set-literal opener and the
// `##Inf`/`##-Inf`/`##NaN` atoms (handled as ordinary atoms here and
// resolved to float values in the reader).
func tokenize(src string) ([]token, error) {
	var toks []token
	line, col := 1, 1
	i := 0
	n := len(src)

	advance := func(r byte) {
		if r == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}

	for i < n {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == ',':
			advance(c)
			i++
		case c == ';':
			for i < n && src[i] != '\n' {
				i++
			}
		case c == '(':
			toks = append(toks, token{tokLParen, "(", line, col})
			advance(c)
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", line, col})
			advance(c)
			i++
		case c == '[':
			toks = append(toks, token{tokLBracket, "[", line, col})
			advance(c)
			i++
		case c == ']':
			toks = append(toks, token{tokRBracket, "]", line, col})
			advance(c)
			i++
		case c == '{':
			toks = append(toks, token{tokLBrace, "{", line, col})
			advance(c)
			i++
		case c == '}':
			toks = append(toks, token{tokRBrace, "}", line, col})
			advance(c)
			i++
		case c == '#' && i+1 < n && src[i+1] == '{':
			toks = append(toks, token{tokHashBrace, "#{", line, col})
			advance(c)
			i++
			advance(src[i])
			i++
		case c == '"':
			start := i
			startLine, startCol := line, col
			i++
			advance(c)
			var b strings.Builder
			b.WriteByte('"')
			closed := false
			for i < n {
				ch := src[i]
				if ch == '\\' && i+1 < n {
					b.WriteByte(ch)
					b.WriteByte(src[i+1])
					advance(ch)
					i++
					advance(src[i])
					i++
					continue
				}
				if ch == '"' {
					b.WriteByte(ch)
					advance(ch)
					i++
					closed = true
					break
				}
				b.WriteByte(ch)
				advance(ch)
				i++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string at line %d col %d", startLine, startCol)
			}
			_ = start
			toks = append(toks, token{tokAtom, b.String(), startLine, startCol})
		default:
			start := i
			startLine, startCol := line, col
			for i < n && !isDelim(src[i]) {
				advance(src[i])
				i++
			}
			toks = append(toks, token{tokAtom, src[start:i], startLine, startCol})
		}
	}
	toks = append(toks, token{tokEOF, "", line, col})
	return toks, nil
}

func isDelim(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', ',', '(', ')', '[', ']', '{', '}', ';', '"':
		return true
	default:
		return false
	}
}
