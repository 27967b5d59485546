package lisp

// registerWhere implements the `where` filter DSL from spec 4.2:
// `(where :field = value)`, `(where [:a :b] = value)`, and the `in`/
// `includes`/`not=` operators. `where` returns a predicate Fn meant to
// be passed to `filter`.
//
// Coercion asymmetry (spec 9, Open Question 3): `=`/`not=` treat a
// keyword and the identically-named string as equal (the same
// flexible-map-access rule that backs Map.Get), but `<`/`>`/`<=`/`>=`
// never coerce between keywords and strings, and booleans are never
// coerced from either in any operator. This asymmetry is intentional
// and specific to `where`; it does not apply to the core `=` builtin
// used outside of `where`, which already treats keyword/string as
// distinct (see Equal in value.go).
func registerWhere(b map[string]BuiltinFn) {
	b["where"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 3 {
			return nil, argErr("where", "3", args)
		}
		fieldSpec := args[0]
		op, ok := args[1].(Keyword)
		if !ok {
			if opSym, ok := args[1].(Symbol); ok {
				op = Keyword(opSym)
			} else {
				return nil, &FaultError{Kind: FaultRuntimeError, Message: "where: operator must be a keyword or symbol"}
			}
		}
		target := args[2]
		pred := &Fn{Builtin: func(ev *Evaluator, a []Value) (Value, error) {
			if len(a) != 1 {
				return nil, argErr("where-predicate", "1", a)
			}
			m, ok := a[0].(*Map)
			if !ok {
				return Bool(false), nil
			}
			val := fieldValue(m, fieldSpec)
			return whereCompare(string(op), val, target)
		}}
		return pred, nil
	}
}

func fieldValue(m *Map, spec Value) Value {
	if fields, ok := Items(spec); ok && isKeywordSeq(spec) {
		for _, f := range fields {
			v, ok := m.Get(f)
			if ok {
				return v
			}
		}
		return Nil{}
	}
	v, _ := m.Get(spec)
	return orNil(v)
}

func isKeywordSeq(v Value) bool {
	switch v.(type) {
	case Vector, List:
		return true
	default:
		return false
	}
}

func whereCompare(op string, val, target Value) (Value, error) {
	switch op {
	case "=":
		return Bool(whereEqual(val, target)), nil
	case "not=":
		return Bool(!whereEqual(val, target)), nil
	case "<", ">", "<=", ">=":
		vf, ok1 := asFloat(val)
		tf, ok2 := asFloat(target)
		if !ok1 || !ok2 {
			return Bool(false), nil
		}
		switch op {
		case "<":
			return Bool(vf < tf), nil
		case ">":
			return Bool(vf > tf), nil
		case "<=":
			return Bool(vf <= tf), nil
		default:
			return Bool(vf >= tf), nil
		}
	case "in":
		items, ok := Items(target)
		if !ok {
			return Bool(false), nil
		}
		for _, it := range items {
			if whereEqual(val, it) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	case "includes":
		items, ok := Items(val)
		if !ok {
			return Bool(false), nil
		}
		for _, it := range items {
			if whereEqual(it, target) {
				return Bool(true), nil
			}
		}
		return Bool(false), nil
	default:
		return nil, &FaultError{Kind: FaultRuntimeError, Message: "where: unknown operator " + op}
	}
}

// whereEqual implements the keyword/string coercion documented above.
func whereEqual(a, b Value) bool {
	an, aIsName := nameOf(a)
	bn, bIsName := nameOf(b)
	if aIsName && bIsName {
		return an == bn
	}
	return Equal(a, b)
}

func nameOf(v Value) (string, bool) {
	switch t := v.(type) {
	case Keyword:
		return string(t), true
	case Str:
		return string(t), true
	default:
		return "", false
	}
}
