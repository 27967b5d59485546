// Package lisp implements the Clojure-subset interpreter described by
// the runtime's language spec: tokenizer, reader, analyzer, evaluator,
// and a fixed built-in library.
package lisp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Value is the closed set of runtime values the interpreter operates
// on. Keeping this as a small interface rather than `any` lets the
// evaluator and builtins type-switch exhaustively instead of doing
// runtime reflection on Go-native types.
type Value interface {
	value()
	String() string
}

type Nil struct{}

func (Nil) value()          {}
func (Nil) String() string  { return "nil" }

type Bool bool

func (Bool) value() {}
func (b Bool) String() string {
	if b {
		return "true"
	}
	return "false"
}

type Int int64

func (Int) value()            {}
func (i Int) String() string  { return strconv.FormatInt(int64(i), 10) }

type Float float64

func (Float) value() {}
func (f Float) String() string {
	return strconv.FormatFloat(float64(f), 'g', -1, 64)
}

type Str string

func (Str) value()           {}
func (s Str) String() string { return string(s) }

// Keyword is a `:name` literal. Keywords act as functions when applied
// to a map, and sets act as membership predicates when applied to a
// value (spec 4.2 "Reader quirks").
type Keyword string

func (Keyword) value()           {}
func (k Keyword) String() string { return ":" + string(k) }

// Symbol is an unevaluated identifier appearing in source code. It is
// a Value only so the reader can build one uniform tree of forms; the
// analyzer consumes Symbols, and the only way one reaches an evaluated
// result is `(quote x)`, which yields its form unevaluated.
type Symbol string

func (Symbol) value()           {}
func (s Symbol) String() string { return string(s) }

type List struct{ Items []Value }

func (List) value() {}
func (l List) String() string {
	return "(" + joinValues(l.Items) + ")"
}

type Vector struct{ Items []Value }

func (Vector) value() {}
func (v Vector) String() string {
	return "[" + joinValues(v.Items) + "]"
}

// MapKey normalizes a Value used as a map key so Int/Str/Keyword/Bool
// keys compare by value rather than by Go interface identity.
type MapKey string

func keyOf(v Value) MapKey {
	switch k := v.(type) {
	case Keyword:
		return MapKey("kw:" + string(k))
	case Str:
		return MapKey("s:" + string(k))
	case Int:
		return MapKey("i:" + strconv.FormatInt(int64(k), 10))
	case Float:
		return MapKey("f:" + strconv.FormatFloat(float64(k), 'g', -1, 64))
	case Bool:
		return MapKey("b:" + k.String())
	default:
		return MapKey("?:" + v.String())
	}
}

// Map is an ordered association of Value keys to Values. Flexible map
// access (spec 4.2 "Key semantics") is implemented by Get, below: a
// lookup by keyword first tries the keyword key then the string key
// with the same name, and vice versa, so JSON-sourced string-keyed
// data interoperates with keyword-keyed program data. nil-valued
// entries are distinguished from absent keys via the ok bool.
type Map struct {
	keys   []Value
	byKey  map[MapKey]Value
}

func NewMap() *Map {
	return &Map{byKey: make(map[MapKey]Value)}
}

func (*Map) value() {}

func (m *Map) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k.String())
		b.WriteByte(' ')
		b.WriteString(m.byKey[keyOf(k)].String())
	}
	b.WriteByte('}')
	return b.String()
}

func (m *Map) Set(k, v Value) *Map {
	nm := m.clone()
	kk := keyOf(k)
	if _, exists := nm.byKey[kk]; !exists {
		nm.keys = append(nm.keys, k)
	}
	nm.byKey[kk] = v
	return nm
}

func (m *Map) Delete(k Value) *Map {
	nm := m.clone()
	kk := keyOf(k)
	if _, ok := nm.byKey[kk]; !ok {
		return nm
	}
	delete(nm.byKey, kk)
	for i, existing := range nm.keys {
		if keyOf(existing) == kk {
			nm.keys = append(nm.keys[:i], nm.keys[i+1:]...)
			break
		}
	}
	return nm
}

func (m *Map) clone() *Map {
	nm := NewMap()
	nm.keys = append(nm.keys, m.keys...)
	for k, v := range m.byKey {
		nm.byKey[k] = v
	}
	return nm
}

// Get implements flexible map access: try the given key as-is, then
// its keyword<->string counterpart.
func (m *Map) Get(k Value) (Value, bool) {
	if v, ok := m.byKey[keyOf(k)]; ok {
		return v, true
	}
	switch kk := k.(type) {
	case Keyword:
		if v, ok := m.byKey[keyOf(Str(kk))]; ok {
			return v, true
		}
	case Str:
		if v, ok := m.byKey[keyOf(Keyword(kk))]; ok {
			return v, true
		}
	}
	return Nil{}, false
}

func (m *Map) Keys() []Value {
	out := make([]Value, len(m.keys))
	copy(out, m.keys)
	return out
}

func (m *Map) Len() int { return len(m.keys) }

func (m *Map) Range(fn func(k, v Value) bool) {
	for _, k := range m.keys {
		if !fn(k, m.byKey[keyOf(k)]) {
			return
		}
	}
}

// SortedKeys returns keys in display-stable order (used for
// deterministic rendering, not required by program semantics).
func (m *Map) SortedKeys() []Value {
	ks := m.Keys()
	sort.Slice(ks, func(i, j int) bool { return ks[i].String() < ks[j].String() })
	return ks
}

type Set struct {
	items []Value
	by    map[MapKey]Value
}

func NewSet() *Set { return &Set{by: make(map[MapKey]Value)} }

func (*Set) value() {}

func (s *Set) String() string {
	var b strings.Builder
	b.WriteString("#{")
	for i, v := range s.items {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(v.String())
	}
	b.WriteByte('}')
	return b.String()
}

func (s *Set) Add(v Value) *Set {
	ns := s.clone()
	kk := keyOf(v)
	if _, ok := ns.by[kk]; ok {
		return ns
	}
	ns.items = append(ns.items, v)
	ns.by[kk] = v
	return ns
}

func (s *Set) Has(v Value) bool {
	_, ok := s.by[keyOf(v)]
	return ok
}

func (s *Set) Items() []Value {
	out := make([]Value, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Set) Len() int { return len(s.items) }

func (s *Set) clone() *Set {
	ns := NewSet()
	ns.items = append(ns.items, s.items...)
	for k, v := range s.by {
		ns.by[k] = v
	}
	return ns
}

// Fn is any callable value: a user-defined closure or a built-in.
// args are pre-evaluated; the evaluator is passed in so closures can
// recurse back through Eval for their bodies.
type Fn struct {
	Name    string
	Builtin BuiltinFn
	Params  []string
	Rest    string // non-empty if the fn has a variadic tail param
	Body    []IR
	Env     *Env
}

func (*Fn) value() {}

func (f *Fn) String() string {
	if f.Name != "" {
		return fmt.Sprintf("#<fn:%s>", f.Name)
	}
	return "#<fn>"
}

type BuiltinFn func(ev *Evaluator, args []Value) (Value, error)

func joinValues(vs []Value) string {
	var b strings.Builder
	for i, v := range vs {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(v.String())
	}
	return b.String()
}

// Truthy implements Lisp truthiness: nil and false are falsy,
// everything else (including 0 and "") is truthy.
func Truthy(v Value) bool {
	switch t := v.(type) {
	case Nil:
		return false
	case nil:
		return false
	case Bool:
		return bool(t)
	default:
		return true
	}
}

func Equal(a, b Value) bool {
	if a == nil {
		a = Nil{}
	}
	if b == nil {
		b = Nil{}
	}
	// Keywords and strings compare equal by name only inside `where`'s
	// `=`/`not=` operators (see builtins_where.go); this core equality,
	// which the `=` builtin also uses, keeps them distinct.
	switch av := a.(type) {
	case Int:
		if bv, ok := b.(Int); ok {
			return av == bv
		}
		if bv, ok := b.(Float); ok {
			return Float(av) == bv
		}
		return false
	case Float:
		if bv, ok := b.(Float); ok {
			return av == bv
		}
		if bv, ok := b.(Int); ok {
			return av == Float(bv)
		}
		return false
	case Str:
		bv, ok := b.(Str)
		return ok && av == bv
	case Keyword:
		bv, ok := b.(Keyword)
		return ok && av == bv
	case Bool:
		bv, ok := b.(Bool)
		return ok && av == bv
	case Nil:
		_, ok := b.(Nil)
		return ok
	case List:
		bv, ok := b.(List)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case Vector:
		bv, ok := b.(Vector)
		if !ok || len(av.Items) != len(bv.Items) {
			return false
		}
		for i := range av.Items {
			if !Equal(av.Items[i], bv.Items[i]) {
				return false
			}
		}
		return true
	case *Map:
		bv, ok := b.(*Map)
		if !ok || av.Len() != bv.Len() {
			return false
		}
		eq := true
		av.Range(func(k, v Value) bool {
			ov, ok := bv.Get(k)
			if !ok || !Equal(v, ov) {
				eq = false
				return false
			}
			return true
		})
		return eq
	default:
		return false
	}
}

// Items returns the elements of a List, Vector, or Set as a slice,
// or nil with ok=false for anything else — used by sequence builtins.
func Items(v Value) ([]Value, bool) {
	switch t := v.(type) {
	case List:
		return t.Items, true
	case Vector:
		return t.Items, true
	case *Set:
		return t.Items(), true
	case Nil:
		return nil, true
	default:
		return nil, false
	}
}
