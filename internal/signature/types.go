// Package signature parses contract strings of the form
// `(params) -> return`, validates and coerces runtime values against
// the parsed types, and renders both human-readable tool schemas and
// JSON-Schema fragments (spec 4.1).
package signature

import "strings"

// Type is the closed set of signature types: primitive, list, map,
// and the optional-wrapper.
type Type interface {
	typ()
	String() string
}

type Prim string

const (
	PrimString  Prim = "string"
	PrimInt     Prim = "int"
	PrimFloat   Prim = "float"
	PrimBool    Prim = "bool"
	PrimKeyword Prim = "keyword"
	PrimAny     Prim = "any"
	PrimMap     Prim = "map"
)

func (Prim) typ()            {}
func (p Prim) String() string { return ":" + string(p) }

type ListType struct{ Elem Type }

func (ListType) typ() {}
func (l ListType) String() string {
	return "[" + l.Elem.String() + "]"
}

type Field struct {
	Name string
	Type Type
}

// MapType is a map with named fields. Field names prefixed `_` are
// firewalled (spec 3 "Signature AST"): present in program context and
// in returned data, omitted from LLM-visible text.
type MapType struct {
	Fields []Field
}

func (MapType) typ() {}
func (m MapType) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, f := range m.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Name)
		b.WriteByte(' ')
		b.WriteString(f.Type.String())
	}
	b.WriteByte('}')
	return b.String()
}

func (f Field) Firewalled() bool { return strings.HasPrefix(f.Name, "_") }

type Optional struct{ Wrapped Type }

func (Optional) typ() {}
func (o Optional) String() string {
	return o.Wrapped.String() + "?"
}

// Param is one named, typed parameter of a signature.
type Param struct {
	Name string
	Type Type
}

// Signature is the parsed `(params) -> return` contract.
type Signature struct {
	Params  []Param
	Returns Type
}

func (s Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteByte(' ')
		b.WriteString(p.Type.String())
	}
	b.WriteString(") -> ")
	b.WriteString(s.Returns.String())
	return b.String()
}
