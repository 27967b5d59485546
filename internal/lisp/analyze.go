package lisp

import "strings"

// Analyzer lowers a reader Form (a Value tree using Symbol for
// identifiers) into the IR described in ir.go. Arity and shape errors
// surface here as *AnalysisError, per spec 4.2.
type Analyzer struct{}

func NewAnalyzer() *Analyzer { return &Analyzer{} }

// AnalyzeTopLevel analyzes every top-level form; multiple fenced code
// blocks from one LLM response are joined by the caller into one source
// text, so their forms arrive here as a single top-level sequence that
// the evaluator runs in order (spec 4.4 step 4 / 9 "Multiple code
// blocks").
func (a *Analyzer) AnalyzeTopLevel(forms []Value) ([]IR, error) {
	out := make([]IR, 0, len(forms))
	for _, f := range forms {
		ir, err := a.Analyze(f)
		if err != nil {
			return nil, err
		}
		out = append(out, ir)
	}
	return out, nil
}

func (a *Analyzer) Analyze(form Value) (IR, error) {
	switch f := form.(type) {
	case Symbol:
		return a.analyzeSymbol(string(f)), nil
	case List:
		return a.analyzeList(f)
	case Vector:
		items := make([]IR, len(f.Items))
		for i, it := range f.Items {
			ir, err := a.Analyze(it)
			if err != nil {
				return nil, err
			}
			items[i] = ir
		}
		return IRCall{Fn: IRVar{Name: "vector"}, Args: items}, nil
	case *Map:
		// map literal containing computed sub-expressions: build via
		// calls to assoc so nested forms still get analyzed.
		args := []IR{}
		for _, k := range f.Keys() {
			v, _ := f.Get(k)
			ka, err := a.Analyze(k)
			if err != nil {
				return nil, err
			}
			va, err := a.Analyze(v)
			if err != nil {
				return nil, err
			}
			args = append(args, ka, va)
		}
		return IRCall{Fn: IRVar{Name: "hash-map"}, Args: args}, nil
	default:
		// literal: numbers, strings, keywords, nil, true/false, sets.
		return IRLiteral{Value: form}, nil
	}
}

func (a *Analyzer) analyzeSymbol(name string) IR {
	switch {
	case strings.HasPrefix(name, "ctx/") || strings.HasPrefix(name, "data/"):
		key := name[strings.IndexByte(name, '/')+1:]
		return IRCtx{Key: key}
	case strings.HasPrefix(name, "mem/") && !strings.HasPrefix(name, "memory/"):
		return IRMem{Key: strings.TrimPrefix(name, "mem/")}
	default:
		return IRVar{Name: name}
	}
}

func (a *Analyzer) analyzeList(l List) (IR, error) {
	if len(l.Items) == 0 {
		return IRLiteral{Value: l}, nil
	}
	head := l.Items[0]
	if sym, ok := head.(Symbol); ok {
		switch string(sym) {
		case "quote":
			if len(l.Items) != 2 {
				return nil, newAnalysisError(l, "quote takes exactly one argument")
			}
			return IRLiteral{Value: l.Items[1]}, nil
		case "def":
			return a.analyzeDef(l)
		case "defn":
			return a.analyzeDefn(l)
		case "fn":
			return a.analyzeFn(l, "")
		case "let":
			return a.analyzeLet(l)
		case "if":
			return a.analyzeIf(l)
		case "do":
			return a.analyzeDo(l.Items[1:])
		case "when":
			return a.analyzeWhen(l)
		case "cond":
			return a.analyzeCond(l)
		case "->":
			return a.analyzeThread(l, false)
		case "->>":
			return a.analyzeThread(l, true)
		case "where":
			// (where field op value): the operator is a bare name such
			// as `=`, `in` or `includes`, passed through unevaluated.
			if len(l.Items) == 4 {
				if opSym, ok := l.Items[2].(Symbol); ok {
					field, err := a.Analyze(l.Items[1])
					if err != nil {
						return nil, err
					}
					target, err := a.Analyze(l.Items[3])
					if err != nil {
						return nil, err
					}
					return IRCall{Fn: IRVar{Name: "where"}, Args: []IR{field, IRLiteral{Value: opSym}, target}}, nil
				}
			}
		case "keyword":
			// not a special form, fall through to call handling
		}
		if strings.HasPrefix(string(sym), "tool/") {
			return a.analyzeCallArgs(IRVar{Name: string(sym)}, l.Items[1:])
		}
	}
	fnIR, err := a.Analyze(head)
	if err != nil {
		return nil, err
	}
	return a.analyzeCallArgs(fnIR, l.Items[1:])
}

func (a *Analyzer) analyzeCallArgs(fn IR, rest []Value) (IR, error) {
	args := make([]IR, len(rest))
	for i, r := range rest {
		ir, err := a.Analyze(r)
		if err != nil {
			return nil, err
		}
		args[i] = ir
	}
	return IRCall{Fn: fn, Args: args}, nil
}

func (a *Analyzer) analyzeDef(l List) (IR, error) {
	if len(l.Items) != 3 {
		return nil, newAnalysisError(l, "def requires exactly a name and a value")
	}
	sym, ok := l.Items[1].(Symbol)
	if !ok {
		return nil, newAnalysisError(l, "def name must be a symbol")
	}
	expr, err := a.Analyze(l.Items[2])
	if err != nil {
		return nil, err
	}
	return IRDef{Name: string(sym), Expr: expr}, nil
}

func (a *Analyzer) analyzeDefn(l List) (IR, error) {
	if len(l.Items) < 3 {
		return nil, newAnalysisError(l, "defn requires a name, params, and body")
	}
	sym, ok := l.Items[1].(Symbol)
	if !ok {
		return nil, newAnalysisError(l, "defn name must be a symbol")
	}
	fnForm := List{Items: append([]Value{Symbol("fn")}, l.Items[2:]...)}
	fnIR, err := a.analyzeFn(fnForm, string(sym))
	if err != nil {
		return nil, err
	}
	return IRDef{Name: string(sym), Expr: fnIR}, nil
}

func (a *Analyzer) analyzeFn(l List, name string) (IR, error) {
	if len(l.Items) < 2 {
		return nil, newAnalysisError(l, "fn requires a parameter vector")
	}
	paramsVec, ok := l.Items[1].(Vector)
	if !ok {
		return nil, newAnalysisError(l, "fn parameters must be a vector")
	}
	var params []string
	var rest string
	for i := 0; i < len(paramsVec.Items); i++ {
		sym, ok := paramsVec.Items[i].(Symbol)
		if !ok {
			return nil, newAnalysisError(l, "fn parameter must be a symbol")
		}
		if string(sym) == "&" {
			if i+1 >= len(paramsVec.Items) {
				return nil, newAnalysisError(l, "fn variadic marker & requires a following symbol")
			}
			restSym, ok := paramsVec.Items[i+1].(Symbol)
			if !ok {
				return nil, newAnalysisError(l, "fn variadic parameter must be a symbol")
			}
			rest = string(restSym)
			break
		}
		params = append(params, string(sym))
	}
	body, err := a.analyzeBody(l.Items[2:])
	if err != nil {
		return nil, err
	}
	return IRFn{Name: name, Params: params, Rest: rest, Body: body}, nil
}

func (a *Analyzer) analyzeBody(forms []Value) ([]IR, error) {
	out := make([]IR, 0, len(forms))
	for _, f := range forms {
		ir, err := a.Analyze(f)
		if err != nil {
			return nil, err
		}
		out = append(out, ir)
	}
	if len(out) == 0 {
		out = append(out, IRLiteral{Value: Nil{}})
	}
	return out, nil
}

func (a *Analyzer) analyzeDo(forms []Value) (IR, error) {
	body, err := a.analyzeBody(forms)
	if err != nil {
		return nil, err
	}
	return IRDo{Exprs: body}, nil
}

func (a *Analyzer) analyzeLet(l List) (IR, error) {
	if len(l.Items) < 2 {
		return nil, newAnalysisError(l, "let requires a binding vector")
	}
	bindVec, ok := l.Items[1].(Vector)
	if !ok || len(bindVec.Items)%2 != 0 {
		return nil, newAnalysisError(l, "let bindings must be a vector of pattern/expr pairs")
	}
	var bindings []IRLetBinding
	for i := 0; i+1 < len(bindVec.Items); i += 2 {
		pat, err := a.analyzePattern(bindVec.Items[i])
		if err != nil {
			return nil, err
		}
		expr, err := a.Analyze(bindVec.Items[i+1])
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, IRLetBinding{Pattern: pat, Expr: expr})
	}
	body, err := a.analyzeBody(l.Items[2:])
	if err != nil {
		return nil, err
	}
	return IRLet{Bindings: bindings, Body: body}, nil
}

func (a *Analyzer) analyzePattern(form Value) (Pattern, error) {
	switch f := form.(type) {
	case Symbol:
		return Pattern{Symbol: string(f)}, nil
	case Vector:
		p := Pattern{IsVector: true}
		for i := 0; i < len(f.Items); i++ {
			sym, ok := f.Items[i].(Symbol)
			if ok && string(sym) == "&" && i+1 < len(f.Items) {
				restSym, ok := f.Items[i+1].(Symbol)
				if !ok {
					return Pattern{}, newAnalysisError(f, "vector destructure rest must be a symbol")
				}
				p.VecRest = string(restSym)
				break
			}
			sub, err := a.analyzePattern(f.Items[i])
			if err != nil {
				return Pattern{}, err
			}
			p.Vector = append(p.Vector, sub)
		}
		return p, nil
	case *Map:
		p := Pattern{IsMap: true}
		orDefaults := map[string]IR{}
		if orForm, ok := f.Get(Keyword("or")); ok {
			if orMap, ok := orForm.(*Map); ok {
				for _, k := range orMap.Keys() {
					sym, ok := k.(Symbol)
					if !ok {
						continue
					}
					v, _ := orMap.Get(k)
					ir, err := a.Analyze(v)
					if err != nil {
						return Pattern{}, err
					}
					orDefaults[string(sym)] = ir
				}
			}
		}
		if keysForm, ok := f.Get(Keyword("keys")); ok {
			vec, ok := keysForm.(Vector)
			if !ok {
				return Pattern{}, newAnalysisError(f, ":keys must be a vector of symbols")
			}
			for _, item := range vec.Items {
				sym, ok := item.(Symbol)
				if !ok {
					return Pattern{}, newAnalysisError(f, ":keys entries must be symbols")
				}
				p.MapKeys = append(p.MapKeys, MapPatternKey{
					Bind:    string(sym),
					Key:     Keyword(sym),
					Default: orDefaults[string(sym)],
				})
			}
		}
		for _, k := range f.Keys() {
			sym, ok := k.(Symbol)
			if !ok || string(sym) == "keys" || string(sym) == "or" {
				continue
			}
			v, _ := f.Get(k)
			p.MapKeys = append(p.MapKeys, MapPatternKey{
				Bind:    string(sym),
				Key:     v,
				Default: orDefaults[string(sym)],
			})
		}
		return p, nil
	default:
		return Pattern{}, newAnalysisError(form, "unsupported destructuring pattern")
	}
}

func (a *Analyzer) analyzeIf(l List) (IR, error) {
	if len(l.Items) < 3 || len(l.Items) > 4 {
		return nil, newAnalysisError(l, "if requires a condition, then-branch, and optional else-branch")
	}
	cond, err := a.Analyze(l.Items[1])
	if err != nil {
		return nil, err
	}
	then, err := a.Analyze(l.Items[2])
	if err != nil {
		return nil, err
	}
	var els IR = IRLiteral{Value: Nil{}}
	if len(l.Items) == 4 {
		els, err = a.Analyze(l.Items[3])
		if err != nil {
			return nil, err
		}
	}
	return IRIf{Cond: cond, Then: then, Else: els}, nil
}

// analyzeWhen desugars `(when cond body...)` to `(if cond (do body...))`.
func (a *Analyzer) analyzeWhen(l List) (IR, error) {
	if len(l.Items) < 2 {
		return nil, newAnalysisError(l, "when requires a condition")
	}
	cond, err := a.Analyze(l.Items[1])
	if err != nil {
		return nil, err
	}
	doIR, err := a.analyzeDo(l.Items[2:])
	if err != nil {
		return nil, err
	}
	return IRIf{Cond: cond, Then: doIR, Else: IRLiteral{Value: Nil{}}}, nil
}

// analyzeCond desugars `(cond p1 e1 p2 e2 ... [:else ed])` into nested ifs.
func (a *Analyzer) analyzeCond(l List) (IR, error) {
	clauses := l.Items[1:]
	if len(clauses)%2 != 0 {
		return nil, newAnalysisError(l, "cond requires an even number of test/expr forms")
	}
	var build func(i int) (IR, error)
	build = func(i int) (IR, error) {
		if i >= len(clauses) {
			return IRLiteral{Value: Nil{}}, nil
		}
		test := clauses[i]
		if kw, ok := test.(Keyword); ok && string(kw) == "else" {
			return a.Analyze(clauses[i+1])
		}
		condIR, err := a.Analyze(test)
		if err != nil {
			return nil, err
		}
		thenIR, err := a.Analyze(clauses[i+1])
		if err != nil {
			return nil, err
		}
		elseIR, err := build(i + 2)
		if err != nil {
			return nil, err
		}
		return IRIf{Cond: condIR, Then: thenIR, Else: elseIR}, nil
	}
	return build(0)
}

// analyzeThread desugars `->`/`->>` threading macros into nested calls.
func (a *Analyzer) analyzeThread(l List, last bool) (IR, error) {
	if len(l.Items) < 2 {
		return nil, newAnalysisError(l, "threading macro requires an initial expression")
	}
	cur := l.Items[1]
	for _, step := range l.Items[2:] {
		switch s := step.(type) {
		case List:
			items := append([]Value{}, s.Items...)
			if last {
				items = append(items, cur)
			} else {
				tail := append([]Value{items[0], cur}, items[1:]...)
				items = tail
			}
			cur = List{Items: items}
		default:
			cur = List{Items: []Value{step, cur}}
		}
	}
	return a.Analyze(cur)
}
