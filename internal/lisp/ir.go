package lisp

import "fmt"

// IR is the small core the analyzer lowers surface syntax into (spec
// 4.2 "Analyzer"): literal, var, if, do, let, fn, call, def, ctx, mem.
type IR interface {
	ir()
}

type IRLiteral struct{ Value Value }
type IRVar struct{ Name string }
type IRIf struct{ Cond, Then, Else IR }
type IRDo struct{ Exprs []IR }
type IRLetBinding struct {
	Pattern Pattern
	Expr    IR
}
type IRLet struct {
	Bindings []IRLetBinding
	Body     []IR
}
type IRFn struct {
	Name   string
	Params []string
	Rest   string
	Body   []IR
}
type IRCall struct {
	Fn   IR
	Args []IR
}
type IRDef struct {
	Name string
	Expr IR
}
type IRCtx struct{ Key string }
type IRMem struct{ Key string }

func (IRLiteral) ir() {}
func (IRVar) ir()     {}
func (IRIf) ir()      {}
func (IRDo) ir()      {}
func (IRLet) ir()     {}
func (IRFn) ir()      {}
func (IRCall) ir()    {}
func (IRDef) ir()     {}
func (IRCtx) ir()     {}
func (IRMem) ir()     {}

// Pattern is a let/fn-param destructuring target: either a plain
// symbol, a vector pattern ([a b & rest]), or a map pattern
// ({:keys [a b]} / {a :a :or {a 1}}).
type Pattern struct {
	Symbol   string
	Vector   []Pattern
	VecRest  string
	MapKeys  []MapPatternKey
	IsVector bool
	IsMap    bool
}

type MapPatternKey struct {
	Bind    string
	Key     Value
	Default IR // nil if no :or default
}

// AnalysisError is returned for malformed forms, carrying a source
// location hint for feedback to the LLM (spec: "produce an
// analysis_error with source location").
type AnalysisError struct {
	Message string
	Form    string
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis_error: %s (in %s)", e.Message, e.Form)
}

func newAnalysisError(form Value, format string, args ...any) error {
	return &AnalysisError{Message: fmt.Sprintf(format, args...), Form: form.String()}
}
