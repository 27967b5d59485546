package lisp

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// builtins is the fixed library named in spec 4.2, registered once at
// package init and never mutated afterward — the teacher's
// ToolRegistry needs a mutex because tools register at runtime; this
// table does not, since the Lisp surface is closed.
var builtins map[string]BuiltinFn

func init() {
	builtins = map[string]BuiltinFn{}
	registerArithmetic(builtins)
	registerComparison(builtins)
	registerLogic(builtins)
	registerCollections(builtins)
	registerMapOps(builtins)
	registerSetOps(builtins)
	registerStrings(builtins)
	registerAggregators(builtins)
	registerCoercion(builtins)
	registerPredicates(builtins)
	registerWhere(builtins)
	registerMemory(builtins)
}

func argErr(name string, want string, got []Value) error {
	return &FaultError{Kind: FaultRuntimeError, Message: fmt.Sprintf("%s: expected %s, got %d args", name, want, len(got))}
}

func asFloat(v Value) (float64, bool) {
	switch t := v.(type) {
	case Int:
		return float64(t), true
	case Float:
		return float64(t), true
	default:
		return 0, false
	}
}

func registerArithmetic(b map[string]BuiltinFn) {
	arith := func(name string, identity float64, fn func(a, b float64) float64) BuiltinFn {
		return func(ev *Evaluator, args []Value) (Value, error) {
			if len(args) == 0 {
				return Int(int64(identity)), nil
			}
			allInt := true
			acc, ok := asFloat(args[0])
			if !ok {
				return nil, &FaultError{Kind: FaultRuntimeError, Message: name + ": non-numeric argument"}
			}
			if _, isInt := args[0].(Int); !isInt {
				allInt = false
			}
			for _, a := range args[1:] {
				f, ok := asFloat(a)
				if !ok {
					return nil, &FaultError{Kind: FaultRuntimeError, Message: name + ": non-numeric argument"}
				}
				if _, isInt := a.(Int); !isInt {
					allInt = false
				}
				acc = fn(acc, f)
			}
			if allInt {
				return Int(int64(acc)), nil
			}
			return Float(acc), nil
		}
	}
	b["+"] = arith("+", 0, func(a, c float64) float64 { return a + c })
	b["*"] = arith("*", 1, func(a, c float64) float64 { return a * c })
	b["-"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) == 0 {
			return nil, argErr("-", "at least 1", args)
		}
		if len(args) == 1 {
			f, ok := asFloat(args[0])
			if !ok {
				return nil, &FaultError{Kind: FaultRuntimeError, Message: "-: non-numeric argument"}
			}
			if _, isInt := args[0].(Int); isInt {
				return Int(int64(-f)), nil
			}
			return Float(-f), nil
		}
		return registeredSub(args)
	}
	b["/"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) < 2 {
			return nil, argErr("/", "at least 2", args)
		}
		acc, ok := asFloat(args[0])
		if !ok {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "/: non-numeric argument"}
		}
		for _, a := range args[1:] {
			f, ok := asFloat(a)
			if !ok {
				return nil, &FaultError{Kind: FaultRuntimeError, Message: "/: non-numeric argument"}
			}
			if f == 0 {
				return nil, &FaultError{Kind: FaultRuntimeError, Message: "/: division by zero"}
			}
			acc /= f
		}
		return Float(acc), nil
	}
	b["mod"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("mod", "2", args)
		}
		a, ok1 := args[0].(Int)
		c, ok2 := args[1].(Int)
		if !ok1 || !ok2 {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "mod: requires integer arguments"}
		}
		if c == 0 {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "mod: division by zero"}
		}
		r := int64(a) % int64(c)
		if (r < 0) != (int64(c) < 0) && r != 0 {
			r += int64(c)
		}
		return Int(r), nil
	}
	b["quot"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("quot", "2", args)
		}
		a, ok1 := args[0].(Int)
		c, ok2 := args[1].(Int)
		if !ok1 || !ok2 {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "quot: requires integer arguments"}
		}
		if c == 0 {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "quot: division by zero"}
		}
		return Int(int64(a) / int64(c)), nil
	}
}

func registeredSub(args []Value) (Value, error) {
	allInt := true
	acc, _ := asFloat(args[0])
	if _, isInt := args[0].(Int); !isInt {
		allInt = false
	}
	for _, a := range args[1:] {
		f, ok := asFloat(a)
		if !ok {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "-: non-numeric argument"}
		}
		if _, isInt := a.(Int); !isInt {
			allInt = false
		}
		acc -= f
	}
	if allInt {
		return Int(int64(acc)), nil
	}
	return Float(acc), nil
}

func registerComparison(b map[string]BuiltinFn) {
	cmp := func(name string, ok func(c int) bool) BuiltinFn {
		return func(ev *Evaluator, args []Value) (Value, error) {
			if len(args) < 2 {
				return Bool(true), nil
			}
			for i := 0; i+1 < len(args); i++ {
				a, ok1 := asFloat(args[i])
				bb, ok2 := asFloat(args[i+1])
				if !ok1 || !ok2 {
					return nil, &FaultError{Kind: FaultRuntimeError, Message: name + ": non-numeric argument"}
				}
				c := 0
				if a < bb {
					c = -1
				} else if a > bb {
					c = 1
				}
				if !ok(c) {
					return Bool(false), nil
				}
			}
			return Bool(true), nil
		}
	}
	b["<"] = cmp("<", func(c int) bool { return c < 0 })
	b[">"] = cmp(">", func(c int) bool { return c > 0 })
	b["<="] = cmp("<=", func(c int) bool { return c <= 0 })
	b[">="] = cmp(">=", func(c int) bool { return c >= 0 })
	b["="] = func(ev *Evaluator, args []Value) (Value, error) {
		for i := 1; i < len(args); i++ {
			if !Equal(args[0], args[i]) {
				return Bool(false), nil
			}
		}
		return Bool(true), nil
	}
	b["not="] = func(ev *Evaluator, args []Value) (Value, error) {
		v, err := b["="](ev, args)
		if err != nil {
			return nil, err
		}
		return Bool(!bool(v.(Bool))), nil
	}
}

func registerLogic(b map[string]BuiltinFn) {
	b["and"] = func(ev *Evaluator, args []Value) (Value, error) {
		var last Value = Bool(true)
		for _, a := range args {
			if !Truthy(a) {
				return a, nil
			}
			last = a
		}
		return last, nil
	}
	b["or"] = func(ev *Evaluator, args []Value) (Value, error) {
		for _, a := range args {
			if Truthy(a) {
				return a, nil
			}
		}
		if len(args) == 0 {
			return Nil{}, nil
		}
		return args[len(args)-1], nil
	}
	b["not"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, argErr("not", "1", args)
		}
		return Bool(!Truthy(args[0])), nil
	}
}

func seqArg(name string, args []Value, idx int) ([]Value, error) {
	if idx >= len(args) {
		return nil, argErr(name, fmt.Sprintf("at least %d", idx+1), args)
	}
	items, ok := Items(args[idx])
	if !ok {
		return nil, &FaultError{Kind: FaultRuntimeError, Message: name + ": not a sequence"}
	}
	return items, nil
}

func registerCollections(b map[string]BuiltinFn) {
	b["map"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) < 2 {
			return nil, argErr("map", "at least 2", args)
		}
		fn := args[0]
		items, err := seqArg("map", args, 1)
		if err != nil {
			return nil, err
		}
		if err := ev.Root.Tick(int64(len(items))); err != nil {
			return nil, err
		}
		out := make([]Value, len(items))
		for i, it := range items {
			v, err := ev.Apply(fn, []Value{it})
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return List{Items: out}, nil
	}
	b["mapv"] = func(ev *Evaluator, args []Value) (Value, error) {
		v, err := b["map"](ev, args)
		if err != nil {
			return nil, err
		}
		return Vector{Items: v.(List).Items}, nil
	}
	b["filter"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("filter", "2", args)
		}
		items, err := seqArg("filter", args, 1)
		if err != nil {
			return nil, err
		}
		if err := ev.Root.Tick(int64(len(items))); err != nil {
			return nil, err
		}
		var out []Value
		for _, it := range items {
			v, err := ev.Apply(args[0], []Value{it})
			if err != nil {
				return nil, err
			}
			if Truthy(v) {
				out = append(out, it)
			}
		}
		return List{Items: out}, nil
	}
	b["remove"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("remove", "2", args)
		}
		neg := &Fn{Builtin: func(ev *Evaluator, a []Value) (Value, error) {
			v, err := ev.Apply(args[0], a)
			if err != nil {
				return nil, err
			}
			return Bool(!Truthy(v)), nil
		}}
		return b["filter"](ev, []Value{neg, args[1]})
	}
	b["reduce"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) < 2 || len(args) > 3 {
			return nil, argErr("reduce", "2 or 3", args)
		}
		fn := args[0]
		var items []Value
		var acc Value
		if len(args) == 3 {
			acc = args[1]
			var err error
			items, err = seqArg("reduce", args, 2)
			if err != nil {
				return nil, err
			}
		} else {
			var err error
			items, err = seqArg("reduce", args, 1)
			if err != nil {
				return nil, err
			}
			if len(items) == 0 {
				return Nil{}, nil
			}
			acc = items[0]
			items = items[1:]
		}
		if err := ev.Root.Tick(int64(len(items))); err != nil {
			return nil, err
		}
		for _, it := range items {
			v, err := ev.Apply(fn, []Value{acc, it})
			if err != nil {
				return nil, err
			}
			acc = v
		}
		return acc, nil
	}
	b["first"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("first", args, 0)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return Nil{}, nil
		}
		return items[0], nil
	}
	b["last"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("last", args, 0)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return Nil{}, nil
		}
		return items[len(items)-1], nil
	}
	b["nth"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("nth", "2", args)
		}
		items, err := seqArg("nth", args, 0)
		if err != nil {
			return nil, err
		}
		idx, ok := args[1].(Int)
		if !ok || int(idx) < 0 || int(idx) >= len(items) {
			return Nil{}, nil
		}
		return items[idx], nil
	}
	b["count"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, argErr("count", "1", args)
		}
		if m, ok := args[0].(*Map); ok {
			return Int(m.Len()), nil
		}
		items, err := seqArg("count", args, 0)
		if err != nil {
			return nil, err
		}
		return Int(len(items)), nil
	}
	b["empty?"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, argErr("empty?", "1", args)
		}
		if m, ok := args[0].(*Map); ok {
			return Bool(m.Len() == 0), nil
		}
		items, err := seqArg("empty?", args, 0)
		if err != nil {
			return nil, err
		}
		return Bool(len(items) == 0), nil
	}
	b["conj"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) < 1 {
			return nil, argErr("conj", "at least 1", args)
		}
		switch coll := args[0].(type) {
		case *Set:
			s := coll
			for _, a := range args[1:] {
				s = s.Add(a)
			}
			return s, nil
		case Vector:
			items := append(append([]Value{}, coll.Items...), args[1:]...)
			return Vector{Items: items}, nil
		default:
			items, ok := Items(args[0])
			if !ok {
				return nil, &FaultError{Kind: FaultRuntimeError, Message: "conj: not a collection"}
			}
			prefixed := append([]Value{}, args[1:]...)
			for i, j := 0, len(prefixed)-1; i < j; i, j = i+1, j-1 {
				prefixed[i], prefixed[j] = prefixed[j], prefixed[i]
			}
			out := append(prefixed, items...)
			return List{Items: out}, nil
		}
	}
	b["cons"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("cons", "2", args)
		}
		items, err := seqArg("cons", args, 1)
		if err != nil {
			return nil, err
		}
		out := append([]Value{args[0]}, items...)
		return List{Items: out}, nil
	}
	b["concat"] = func(ev *Evaluator, args []Value) (Value, error) {
		var out []Value
		for i := range args {
			items, err := seqArg("concat", args, i)
			if err != nil {
				return nil, err
			}
			out = append(out, items...)
		}
		return List{Items: out}, nil
	}
	b["sort"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("sort", args, 0)
		if err != nil {
			return nil, err
		}
		out := append([]Value{}, items...)
		sort.SliceStable(out, func(i, j int) bool { return lessValue(out[i], out[j]) })
		return List{Items: out}, nil
	}
	b["sort-by"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("sort-by", "2", args)
		}
		items, err := seqArg("sort-by", args, 1)
		if err != nil {
			return nil, err
		}
		keys := make([]Value, len(items))
		for i, it := range items {
			k, err := ev.Apply(args[0], []Value{it})
			if err != nil {
				return nil, err
			}
			keys[i] = k
		}
		out := append([]Value{}, items...)
		idx := make([]int, len(items))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(i, j int) bool { return lessValue(keys[idx[i]], keys[idx[j]]) })
		sorted := make([]Value, len(items))
		for i, ix := range idx {
			sorted[i] = out[ix]
		}
		return List{Items: sorted}, nil
	}
	b["group-by"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("group-by", "2", args)
		}
		items, err := seqArg("group-by", args, 1)
		if err != nil {
			return nil, err
		}
		out := NewMap()
		for _, it := range items {
			k, err := ev.Apply(args[0], []Value{it})
			if err != nil {
				return nil, err
			}
			existing, ok := out.Get(k)
			var list []Value
			if ok {
				list = existing.(List).Items
			}
			list = append(list, it)
			out = out.Set(k, List{Items: list})
		}
		return out, nil
	}
	b["take"] = func(ev *Evaluator, args []Value) (Value, error) { return takeDrop(args, true, false) }
	b["drop"] = func(ev *Evaluator, args []Value) (Value, error) { return takeDrop(args, false, false) }
	b["take-last"] = func(ev *Evaluator, args []Value) (Value, error) { return takeDrop(args, true, true) }
	b["drop-last"] = func(ev *Evaluator, args []Value) (Value, error) { return takeDrop(args, false, true) }
	b["butlast"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("butlast", args, 0)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return List{}, nil
		}
		return List{Items: items[:len(items)-1]}, nil
	}
	b["distinct"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("distinct", args, 0)
		if err != nil {
			return nil, err
		}
		seen := map[MapKey]bool{}
		var out []Value
		for _, it := range items {
			k := keyOf(it)
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, it)
		}
		return List{Items: out}, nil
	}
	b["partition-all"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("partition-all", "2", args)
		}
		n, ok := args[0].(Int)
		if !ok || n <= 0 {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "partition-all: size must be a positive int"}
		}
		items, err := seqArg("partition-all", args, 1)
		if err != nil {
			return nil, err
		}
		var out []Value
		for i := 0; i < len(items); i += int(n) {
			end := i + int(n)
			if end > len(items) {
				end = len(items)
			}
			out = append(out, List{Items: items[i:end]})
		}
		return List{Items: out}, nil
	}
	b["pluck"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("pluck", "2", args)
		}
		items, err := seqArg("pluck", args, 1)
		if err != nil {
			return nil, err
		}
		out := make([]Value, len(items))
		for i, it := range items {
			m, ok := it.(*Map)
			if !ok {
				out[i] = Nil{}
				continue
			}
			v, _ := m.Get(args[0])
			out[i] = orNil(v)
		}
		return List{Items: out}, nil
	}
}

func takeDrop(args []Value, take, fromEnd bool) (Value, error) {
	if len(args) != 2 {
		return nil, argErr("take/drop", "2", args)
	}
	n, ok := args[0].(Int)
	if !ok {
		return nil, &FaultError{Kind: FaultRuntimeError, Message: "take/drop: count must be int"}
	}
	items, ok := Items(args[1])
	if !ok {
		return nil, &FaultError{Kind: FaultRuntimeError, Message: "take/drop: not a sequence"}
	}
	cnt := int(n)
	if cnt < 0 {
		cnt = 0
	}
	if cnt > len(items) {
		cnt = len(items)
	}
	var out []Value
	switch {
	case take && !fromEnd:
		out = items[:cnt]
	case take && fromEnd:
		out = items[len(items)-cnt:]
	case !take && !fromEnd:
		out = items[cnt:]
	default:
		out = items[:len(items)-cnt]
	}
	return List{Items: out}, nil
}

func lessValue(a, b Value) bool {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af < bf
		}
	}
	return a.String() < b.String()
}

func registerMapOps(b map[string]BuiltinFn) {
	b["get"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) < 2 || len(args) > 3 {
			return nil, argErr("get", "2 or 3", args)
		}
		m, ok := args[0].(*Map)
		if !ok {
			if len(args) == 3 {
				return args[2], nil
			}
			return Nil{}, nil
		}
		v, ok := m.Get(args[1])
		if !ok {
			if len(args) == 3 {
				return args[2], nil
			}
			return Nil{}, nil
		}
		return v, nil
	}
	b["get-in"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) < 2 || len(args) > 3 {
			return nil, argErr("get-in", "2 or 3", args)
		}
		path, _ := Items(args[1])
		cur := args[0]
		for _, p := range path {
			m, ok := cur.(*Map)
			if !ok {
				if len(args) == 3 {
					return args[2], nil
				}
				return Nil{}, nil
			}
			v, ok := m.Get(p)
			if !ok {
				if len(args) == 3 {
					return args[2], nil
				}
				return Nil{}, nil
			}
			cur = v
		}
		return cur, nil
	}
	b["assoc"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) < 3 || len(args)%2 == 0 {
			return nil, argErr("assoc", "odd number >= 3", args)
		}
		m, ok := args[0].(*Map)
		if !ok {
			m = NewMap()
		}
		for i := 1; i+1 < len(args); i += 2 {
			m = m.Set(args[i], args[i+1])
		}
		return m, nil
	}
	b["assoc-in"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 3 {
			return nil, argErr("assoc-in", "3", args)
		}
		path, _ := Items(args[1])
		return assocInHelper(args[0], path, args[2]), nil
	}
	b["update"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) < 3 {
			return nil, argErr("update", "at least 3", args)
		}
		m, ok := args[0].(*Map)
		if !ok {
			m = NewMap()
		}
		cur, _ := m.Get(args[1])
		cur = orNil(cur)
		fnArgs := append([]Value{cur}, args[3:]...)
		nv, err := ev.Apply(args[2], fnArgs)
		if err != nil {
			return nil, err
		}
		return m.Set(args[1], nv), nil
	}
	b["update-in"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) < 3 {
			return nil, argErr("update-in", "at least 3", args)
		}
		path, _ := Items(args[1])
		cur := getInHelper(args[0], path)
		fnArgs := append([]Value{cur}, args[3:]...)
		nv, err := ev.Apply(args[2], fnArgs)
		if err != nil {
			return nil, err
		}
		return assocInHelper(args[0], path, nv), nil
	}
	b["dissoc"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) < 1 {
			return nil, argErr("dissoc", "at least 1", args)
		}
		m, ok := args[0].(*Map)
		if !ok {
			return NewMap(), nil
		}
		for _, k := range args[1:] {
			m = m.Delete(k)
		}
		return m, nil
	}
	b["keys"] = func(ev *Evaluator, args []Value) (Value, error) {
		m, ok := args[0].(*Map)
		if !ok {
			return List{}, nil
		}
		return List{Items: m.Keys()}, nil
	}
	b["vals"] = func(ev *Evaluator, args []Value) (Value, error) {
		m, ok := args[0].(*Map)
		if !ok {
			return List{}, nil
		}
		var out []Value
		m.Range(func(_, v Value) bool { out = append(out, v); return true })
		return List{Items: out}, nil
	}
	b["merge"] = func(ev *Evaluator, args []Value) (Value, error) {
		out := NewMap()
		for _, a := range args {
			m, ok := a.(*Map)
			if !ok {
				continue
			}
			m.Range(func(k, v Value) bool { out = out.Set(k, v); return true })
		}
		return out, nil
	}
	b["select-keys"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("select-keys", "2", args)
		}
		m, ok := args[0].(*Map)
		if !ok {
			return NewMap(), nil
		}
		keys, _ := Items(args[1])
		out := NewMap()
		for _, k := range keys {
			if v, ok := m.Get(k); ok {
				out = out.Set(k, v)
			}
		}
		return out, nil
	}
	b["hash-map"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args)%2 != 0 {
			return nil, argErr("hash-map", "even number", args)
		}
		out := NewMap()
		for i := 0; i+1 < len(args); i += 2 {
			out = out.Set(args[i], args[i+1])
		}
		return out, nil
	}
}

func getInHelper(v Value, path []Value) Value {
	cur := v
	for _, p := range path {
		m, ok := cur.(*Map)
		if !ok {
			return Nil{}
		}
		nv, ok := m.Get(p)
		if !ok {
			return Nil{}
		}
		cur = nv
	}
	return cur
}

func assocInHelper(v Value, path []Value, nv Value) Value {
	if len(path) == 0 {
		return nv
	}
	m, ok := v.(*Map)
	if !ok {
		m = NewMap()
	}
	if len(path) == 1 {
		return m.Set(path[0], nv)
	}
	child, _ := m.Get(path[0])
	return m.Set(path[0], assocInHelper(orNil(child), path[1:], nv))
}

func registerSetOps(b map[string]BuiltinFn) {
	b["set"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, argErr("set", "1", args)
		}
		items, ok := Items(args[0])
		if !ok {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "set: not a sequence"}
		}
		s := NewSet()
		for _, it := range items {
			s = s.Add(it)
		}
		return s, nil
	}
	b["set?"] = func(ev *Evaluator, args []Value) (Value, error) {
		_, ok := args[0].(*Set)
		return Bool(ok), nil
	}
	b["clojure.set/union"] = func(ev *Evaluator, args []Value) (Value, error) {
		out := NewSet()
		for _, a := range args {
			s, ok := a.(*Set)
			if !ok {
				continue
			}
			for _, it := range s.Items() {
				out = out.Add(it)
			}
		}
		return out, nil
	}
	b["clojure.set/intersection"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) == 0 {
			return NewSet(), nil
		}
		first, ok := args[0].(*Set)
		if !ok {
			return NewSet(), nil
		}
		out := NewSet()
		for _, it := range first.Items() {
			inAll := true
			for _, a := range args[1:] {
				s, ok := a.(*Set)
				if !ok || !s.Has(it) {
					inAll = false
					break
				}
			}
			if inAll {
				out = out.Add(it)
			}
		}
		return out, nil
	}
	b["clojure.set/difference"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) == 0 {
			return NewSet(), nil
		}
		first, ok := args[0].(*Set)
		if !ok {
			return NewSet(), nil
		}
		out := first
		for _, a := range args[1:] {
			s, ok := a.(*Set)
			if !ok {
				continue
			}
			for _, it := range s.Items() {
				if out.Has(it) {
					nset := NewSet()
					for _, x := range out.Items() {
						if !Equal(x, it) {
							nset = nset.Add(x)
						}
					}
					out = nset
				}
			}
		}
		return out, nil
	}
}

func registerStrings(b map[string]BuiltinFn) {
	b["str"] = func(ev *Evaluator, args []Value) (Value, error) {
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(displayString(a))
		}
		return Str(sb.String()), nil
	}
	b["str/includes?"] = func(ev *Evaluator, args []Value) (Value, error) {
		return Bool(strings.Contains(string(mustStr(args[0])), string(mustStr(args[1])))), nil
	}
	b["str/starts-with?"] = func(ev *Evaluator, args []Value) (Value, error) {
		return Bool(strings.HasPrefix(string(mustStr(args[0])), string(mustStr(args[1])))), nil
	}
	b["str/ends-with?"] = func(ev *Evaluator, args []Value) (Value, error) {
		return Bool(strings.HasSuffix(string(mustStr(args[0])), string(mustStr(args[1])))), nil
	}
	b["str/split"] = func(ev *Evaluator, args []Value) (Value, error) {
		parts := strings.Split(string(mustStr(args[0])), string(mustStr(args[1])))
		out := make([]Value, len(parts))
		for i, p := range parts {
			out[i] = Str(p)
		}
		return Vector{Items: out}, nil
	}
	b["str/join"] = func(ev *Evaluator, args []Value) (Value, error) {
		sep := ""
		var items []Value
		if len(args) == 1 {
			items, _ = Items(args[0])
		} else {
			sep = string(mustStr(args[0]))
			items, _ = Items(args[1])
		}
		parts := make([]string, len(items))
		for i, it := range items {
			parts[i] = displayString(it)
		}
		return Str(strings.Join(parts, sep)), nil
	}
	b["str/trim"] = func(ev *Evaluator, args []Value) (Value, error) {
		return Str(strings.TrimSpace(string(mustStr(args[0])))), nil
	}
	b["grep"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("grep", args, 1)
		if err != nil {
			return nil, err
		}
		pat := string(mustStr(args[0]))
		var out []Value
		for _, it := range items {
			if strings.Contains(displayString(it), pat) {
				out = append(out, it)
			}
		}
		return List{Items: out}, nil
	}
	b["grep-n"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("grep-n", args, 1)
		if err != nil {
			return nil, err
		}
		pat := string(mustStr(args[0]))
		var out []Value
		for i, it := range items {
			if strings.Contains(displayString(it), pat) {
				out = append(out, NewMap().Set(Keyword("index"), Int(i)).Set(Keyword("value"), it))
			}
		}
		return List{Items: out}, nil
	}
}

func mustStr(v Value) Str {
	if s, ok := v.(Str); ok {
		return s
	}
	return Str(v.String())
}

func registerAggregators(b map[string]BuiltinFn) {
	b["sum"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("sum", args, 0)
		if err != nil {
			return nil, err
		}
		return sumValues(items)
	}
	b["sum-by"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("sum-by", args, 1)
		if err != nil {
			return nil, err
		}
		mapped := make([]Value, len(items))
		for i, it := range items {
			v, err := ev.Apply(args[0], []Value{it})
			if err != nil {
				return nil, err
			}
			mapped[i] = v
		}
		return sumValues(mapped)
	}
	b["avg"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("avg", args, 0)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return Nil{}, nil
		}
		s, err := sumValues(items)
		if err != nil {
			return nil, err
		}
		f, _ := asFloat(s)
		return Float(f / float64(len(items))), nil
	}
	b["avg-by"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("avg-by", args, 1)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			return Nil{}, nil
		}
		mapped := make([]Value, len(items))
		for i, it := range items {
			v, err := ev.Apply(args[0], []Value{it})
			if err != nil {
				return nil, err
			}
			mapped[i] = v
		}
		s, err := sumValues(mapped)
		if err != nil {
			return nil, err
		}
		f, _ := asFloat(s)
		return Float(f / float64(len(items))), nil
	}
	b["min-by"] = func(ev *Evaluator, args []Value) (Value, error) { return extremeBy(ev, args, true) }
	b["max-by"] = func(ev *Evaluator, args []Value) (Value, error) { return extremeBy(ev, args, false) }
}

func sumValues(items []Value) (Value, error) {
	allInt := true
	var acc float64
	for _, it := range items {
		f, ok := asFloat(it)
		if !ok {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "sum: non-numeric element"}
		}
		if _, isInt := it.(Int); !isInt {
			allInt = false
		}
		acc += f
	}
	if allInt {
		return Int(int64(acc)), nil
	}
	return Float(acc), nil
}

func extremeBy(ev *Evaluator, args []Value, wantMin bool) (Value, error) {
	if len(args) != 2 {
		return nil, argErr("min-by/max-by", "2", args)
	}
	items, err := seqArg("min-by/max-by", args, 1)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return Nil{}, nil
	}
	best := items[0]
	bestKey, err := ev.Apply(args[0], []Value{best})
	if err != nil {
		return nil, err
	}
	bf, _ := asFloat(bestKey)
	for _, it := range items[1:] {
		k, err := ev.Apply(args[0], []Value{it})
		if err != nil {
			return nil, err
		}
		f, _ := asFloat(k)
		if (wantMin && f < bf) || (!wantMin && f > bf) {
			best, bf = it, f
		}
	}
	return best, nil
}

func registerCoercion(b map[string]BuiltinFn) {
	b["parse-long"] = func(ev *Evaluator, args []Value) (Value, error) {
		s := string(mustStr(args[0]))
		iv, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return Nil{}, nil
		}
		return Int(iv), nil
	}
	b["parse-double"] = func(ev *Evaluator, args []Value) (Value, error) {
		s := string(mustStr(args[0]))
		fv, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return Nil{}, nil
		}
		return Float(fv), nil
	}
	b["vec"] = func(ev *Evaluator, args []Value) (Value, error) {
		items, err := seqArg("vec", args, 0)
		if err != nil {
			return nil, err
		}
		return Vector{Items: items}, nil
	}
	b["vector"] = func(ev *Evaluator, args []Value) (Value, error) {
		return Vector{Items: append([]Value{}, args...)}, nil
	}
}

func registerPredicates(b map[string]BuiltinFn) {
	b["nil?"] = func(ev *Evaluator, args []Value) (Value, error) {
		_, ok := args[0].(Nil)
		return Bool(ok), nil
	}
	b["some?"] = func(ev *Evaluator, args []Value) (Value, error) {
		_, ok := args[0].(Nil)
		return Bool(!ok), nil
	}
	b["number?"] = func(ev *Evaluator, args []Value) (Value, error) {
		_, isI := args[0].(Int)
		_, isF := args[0].(Float)
		return Bool(isI || isF), nil
	}
	b["string?"] = func(ev *Evaluator, args []Value) (Value, error) {
		_, ok := args[0].(Str)
		return Bool(ok), nil
	}
	b["map?"] = func(ev *Evaluator, args []Value) (Value, error) {
		_, ok := args[0].(*Map)
		return Bool(ok), nil
	}
	b["vector?"] = func(ev *Evaluator, args []Value) (Value, error) {
		_, ok := args[0].(Vector)
		return Bool(ok), nil
	}
	b["odd?"] = func(ev *Evaluator, args []Value) (Value, error) {
		i, ok := args[0].(Int)
		if !ok {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "odd?: requires int"}
		}
		return Bool(i%2 != 0), nil
	}
	b["even?"] = func(ev *Evaluator, args []Value) (Value, error) {
		i, ok := args[0].(Int)
		if !ok {
			return nil, &FaultError{Kind: FaultRuntimeError, Message: "even?: requires int"}
		}
		return Bool(i%2 == 0), nil
	}
}

func registerMemory(b map[string]BuiltinFn) {
	b["memory/put"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 2 {
			return nil, argErr("memory/put", "2", args)
		}
		ev.Root.SetMemory(ev.Root.Memory().Set(args[0], args[1]))
		return args[1], nil
	}
	b["memory/get"] = func(ev *Evaluator, args []Value) (Value, error) {
		if len(args) != 1 {
			return nil, argErr("memory/get", "1", args)
		}
		v, ok := ev.Root.Memory().Get(args[0])
		if !ok {
			return Nil{}, nil
		}
		return v, nil
	}
}
