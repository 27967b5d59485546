package lisp

import (
	"fmt"
	"strings"
)

// Evaluator is a recursive tree-walker over IR (spec 4.2
// "Evaluator"). One Evaluator corresponds to one sandboxed
// invocation; it is not safe to share across concurrent invocations,
// but pmap workers each get a child Env over the same shared
// invocation-wide state (context, memory, tool dispatcher, counters).
type Evaluator struct {
	Root *Env
}

func NewEvaluator(root *Env) *Evaluator { return &Evaluator{Root: root} }

// Run evaluates every top-level form in order and assembles the
// terminal Step. `(return v)`/`(fail m)` anywhere in the program
// raise a ReturnSignal/FailSignal caught here; reaching the end of
// the program without one yields a Step with neither Return nor Fail
// set (the caller — agentloop — applies the single-shot/memory-merge
// rules from spec 4.4 on top of that).
func (ev *Evaluator) Run(program []IR) (*Step, error) {
	var last Value = Nil{}
	for _, node := range program {
		v, err := ev.Eval(ev.Root, node)
		if err != nil {
			if rs, ok := err.(*ReturnSignal); ok {
				return ev.finish(rs.Value, nil), nil
			}
			if fs, ok := err.(*FailSignal); ok {
				return ev.finish(nil, failValueFromLisp(fs.Value)), nil
			}
			return nil, err
		}
		last = v
	}
	return ev.finishLast(last), nil
}

func (ev *Evaluator) finishLast(last Value) *Step {
	s := ev.finish(nil, nil)
	s.Last = last
	return s
}

func (ev *Evaluator) finish(ret Value, fail *FailValue) *Step {
	s := &Step{
		Prints:    ev.Root.Prints(),
		ToolCalls: ev.Root.ToolCalls(),
		Memory:    ev.Root.Memory(),
	}
	if fail != nil {
		s.Fail = fail
		return s
	}
	if ret != nil {
		s.HasReturn = true
		s.Return = ret
	}
	return s
}

func failValueFromLisp(v Value) *FailValue {
	fv := &FailValue{Reason: "failed"}
	if m, ok := v.(*Map); ok {
		if r, ok := m.Get(Keyword("reason")); ok {
			fv.Reason = valueToPlainString(r)
		}
		if msg, ok := m.Get(Keyword("message")); ok {
			fv.Message = valueToPlainString(msg)
		}
		if op, ok := m.Get(Keyword("op")); ok {
			fv.Op = valueToPlainString(op)
		}
		if d, ok := m.Get(Keyword("details")); ok {
			if dm, ok := d.(*Map); ok {
				fv.Details = dm
			}
		}
	} else {
		fv.Message = v.String()
	}
	return fv
}

func valueToPlainString(v Value) string {
	switch t := v.(type) {
	case Str:
		return string(t)
	case Keyword:
		return string(t)
	default:
		return v.String()
	}
}

// Eval evaluates a single IR node in env.
func (ev *Evaluator) Eval(env *Env, node IR) (Value, error) {
	switch n := node.(type) {
	case IRLiteral:
		return n.Value, nil
	case IRCtx:
		ctx := env.Context()
		if ctx == nil {
			return Nil{}, nil
		}
		v, _ := ctx.Get(Str(n.Key))
		if v == nil {
			return Nil{}, nil
		}
		return v, nil
	case IRMem:
		mem := env.Memory()
		if mem == nil {
			return Nil{}, nil
		}
		v, _ := mem.Get(Str(n.Key))
		if v == nil {
			return Nil{}, nil
		}
		return v, nil
	case IRVar:
		return ev.evalVar(env, n.Name)
	case IRIf:
		c, err := ev.Eval(env, n.Cond)
		if err != nil {
			return nil, err
		}
		if Truthy(c) {
			return ev.Eval(env, n.Then)
		}
		return ev.Eval(env, n.Else)
	case IRDo:
		var last Value = Nil{}
		for _, e := range n.Exprs {
			v, err := ev.Eval(env, e)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil
	case IRLet:
		child := env.Child()
		for _, b := range n.Bindings {
			v, err := ev.Eval(child, b.Expr)
			if err != nil {
				return nil, err
			}
			if err := ev.bindPattern(child, b.Pattern, v); err != nil {
				return nil, err
			}
		}
		var last Value = Nil{}
		for _, e := range n.Body {
			v, err := ev.Eval(child, e)
			if err != nil {
				return nil, err
			}
			last = v
		}
		return last, nil
	case IRFn:
		fn := &Fn{Name: n.Name, Params: n.Params, Rest: n.Rest, Body: n.Body, Env: env}
		if n.Name != "" {
			env.Define(n.Name, fn)
		}
		return fn, nil
	case IRDef:
		v, err := ev.Eval(env, n.Expr)
		if err != nil {
			return nil, err
		}
		env.Define(n.Name, v)
		env.SetMemory(env.Memory().Set(Keyword(n.Name), v))
		return v, nil
	case IRCall:
		return ev.evalCall(env, n)
	default:
		return nil, &FaultError{Kind: FaultRuntimeError, Message: fmt.Sprintf("unhandled IR node %T", node)}
	}
}

func (ev *Evaluator) evalVar(env *Env, name string) (Value, error) {
	switch name {
	case "*1":
		return orNil(env.TurnHistory()[0]), nil
	case "*2":
		return orNil(env.TurnHistory()[1]), nil
	case "*3":
		return orNil(env.TurnHistory()[2]), nil
	}
	if v, ok := env.Lookup(name); ok {
		return v, nil
	}
	if b, ok := builtins[name]; ok {
		return &Fn{Name: name, Builtin: b}, nil
	}
	return nil, &FaultError{Kind: FaultRuntimeError, Message: "unbound symbol: " + name}
}

func orNil(v Value) Value {
	if v == nil {
		return Nil{}
	}
	return v
}

func (ev *Evaluator) evalCall(env *Env, n IRCall) (Value, error) {
	if v, ok := n.Fn.(IRVar); ok {
		switch v.Name {
		case "return":
			val, err := ev.evalSingleArg(env, n.Args, Nil{})
			if err != nil {
				return nil, err
			}
			return nil, &ReturnSignal{Value: val}
		case "fail":
			val, err := ev.evalSingleArg(env, n.Args, NewMap())
			if err != nil {
				return nil, err
			}
			return nil, &FailSignal{Value: val}
		case "println":
			parts := make([]string, len(n.Args))
			for i, a := range n.Args {
				av, err := ev.Eval(env, a)
				if err != nil {
					return nil, err
				}
				parts[i] = displayString(av)
			}
			env.Print(strings.Join(parts, " "))
			return Nil{}, nil
		case "call":
			return ev.evalDynamicToolCall(env, n)
		}
		if strings.HasPrefix(v.Name, "tool/") {
			return ev.evalToolCall(env, strings.TrimPrefix(v.Name, "tool/"), n.Args)
		}
	}
	fnVal, err := ev.Eval(env, n.Fn)
	if err != nil {
		return nil, err
	}
	args := make([]Value, len(n.Args))
	for i, a := range n.Args {
		av, err := ev.Eval(env, a)
		if err != nil {
			return nil, err
		}
		args[i] = av
	}
	return ev.Apply(fnVal, args)
}

func (ev *Evaluator) evalSingleArg(env *Env, args []IR, def Value) (Value, error) {
	if len(args) == 0 {
		return def, nil
	}
	return ev.Eval(env, args[0])
}

func (ev *Evaluator) evalDynamicToolCall(env *Env, n IRCall) (Value, error) {
	if len(n.Args) < 1 {
		return nil, &FaultError{Kind: FaultRuntimeError, Message: "call requires a tool name"}
	}
	nameVal, err := ev.Eval(env, n.Args[0])
	if err != nil {
		return nil, err
	}
	name := valueToPlainString(nameVal)
	return ev.evalToolCall(env, name, n.Args[1:])
}

func (ev *Evaluator) evalToolCall(env *Env, name string, argForms []IR) (Value, error) {
	if err := env.Tick(1); err != nil {
		return nil, err
	}
	var argMap *Map
	if len(argForms) == 0 {
		argMap = NewMap()
	} else if len(argForms) == 1 {
		v, err := ev.Eval(env, argForms[0])
		if err != nil {
			return nil, err
		}
		m, ok := v.(*Map)
		if !ok {
			return nil, &FaultError{Kind: FaultToolValidationErr, Message: "tool arguments must be a single map: " + name}
		}
		argMap = rewriteHyphens(m)
	} else {
		return nil, &FaultError{Kind: FaultToolValidationErr, Message: "positional tool arguments are not allowed: " + name}
	}

	result, err := env.CallTool(name, argMap)
	env.RecordToolCall(ToolCallRecord{Name: name, Args: argMap, Result: result, Err: err})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func rewriteHyphens(m *Map) *Map {
	out := NewMap()
	m.Range(func(k, v Value) bool {
		if kw, ok := k.(Keyword); ok && strings.Contains(string(kw), "-") {
			k = Keyword(strings.ReplaceAll(string(kw), "-", "_"))
		}
		if s, ok := k.(Str); ok && strings.Contains(string(s), "-") {
			k = Str(strings.ReplaceAll(string(s), "-", "_"))
		}
		out = out.Set(k, v)
		return true
	})
	return out
}

func displayString(v Value) string {
	if s, ok := v.(Str); ok {
		return string(s)
	}
	return v.String()
}

// Apply invokes fn (builtin or user closure) with pre-evaluated args.
func (ev *Evaluator) Apply(fn Value, args []Value) (Value, error) {
	if kw, ok := fn.(Keyword); ok && (len(args) == 1 || len(args) == 2) {
		if m, ok := args[0].(*Map); ok {
			if v, found := m.Get(kw); found {
				return v, nil
			}
		}
		if len(args) == 2 {
			return args[1], nil
		}
		return Nil{}, nil
	}
	if s, ok := fn.(*Set); ok && len(args) == 1 {
		if s.Has(args[0]) {
			return args[0], nil
		}
		return Nil{}, nil
	}
	f, ok := fn.(*Fn)
	if !ok {
		return nil, &FaultError{Kind: FaultRuntimeError, Message: "not a function: " + fn.String()}
	}
	if f.Builtin != nil {
		if err := ev.Root.Tick(1); err != nil {
			return nil, err
		}
		return f.Builtin(ev, args)
	}
	child := f.Env.Child()
	if f.Rest == "" && len(args) != len(f.Params) {
		return nil, &FaultError{Kind: FaultRuntimeError, Message: fmt.Sprintf("arity mismatch: expected %d args, got %d", len(f.Params), len(args))}
	}
	if f.Rest != "" && len(args) < len(f.Params) {
		return nil, &FaultError{Kind: FaultRuntimeError, Message: fmt.Sprintf("arity mismatch: expected at least %d args, got %d", len(f.Params), len(args))}
	}
	for i, p := range f.Params {
		child.Define(p, args[i])
	}
	if f.Rest != "" {
		restItems := append([]Value{}, args[len(f.Params):]...)
		child.Define(f.Rest, List{Items: restItems})
	}
	var last Value = Nil{}
	for _, body := range f.Body {
		v, err := ev.Eval(child, body)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

func (ev *Evaluator) bindPattern(env *Env, p Pattern, v Value) error {
	switch {
	case p.IsVector:
		items, _ := Items(v)
		for i, sub := range p.Vector {
			var elem Value = Nil{}
			if i < len(items) {
				elem = items[i]
			}
			if err := ev.bindPattern(env, sub, elem); err != nil {
				return err
			}
		}
		if p.VecRest != "" {
			var rest []Value
			if len(items) > len(p.Vector) {
				rest = items[len(p.Vector):]
			}
			env.Define(p.VecRest, List{Items: rest})
		}
		return nil
	case p.IsMap:
		m, _ := v.(*Map)
		for _, mk := range p.MapKeys {
			var val Value = Nil{}
			present := false
			if m != nil {
				val, present = m.Get(mk.Key)
			}
			if !present && mk.Default != nil {
				dv, err := ev.Eval(env, mk.Default)
				if err != nil {
					return err
				}
				val = dv
			} else if !present {
				val = Nil{}
			}
			env.Define(mk.Bind, val)
		}
		return nil
	default:
		env.Define(p.Symbol, v)
		return nil
	}
}
