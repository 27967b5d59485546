package lisp

import "sync/atomic"

// ToolFn is the host-supplied callback a tool dispatch resolves to.
// args is always a single map (spec 4.2: "Tools always receive a
// single map argument; positional arguments are a validation error").
type ToolFn func(name string, args *Map) (Value, error)

// Limits bounds one sandboxed invocation per spec 4.3.
type Limits struct {
	IterationHardCap int64 // absolute ceiling, default 10000
	IterationSoftCap int64 // configured default, default 1000
}

func DefaultLimits() Limits {
	return Limits{IterationHardCap: 10000, IterationSoftCap: 1000}
}

// IterationCounter is a shared, atomic counter threaded through every
// Env in one invocation (including pmap workers) so looping builtins
// can check it at their boundary, per spec 4.3.
type IterationCounter struct {
	n    atomic.Int64
	caps Limits
}

func NewIterationCounter(caps Limits) *IterationCounter {
	return &IterationCounter{caps: caps}
}

// Tick increments the shared counter and returns an error once the
// soft cap (if set) or the hard cap is exceeded.
func (c *IterationCounter) Tick(n int64) error {
	v := c.n.Add(n)
	if c.caps.IterationHardCap > 0 && v > c.caps.IterationHardCap {
		return &FaultError{Kind: FaultIterationLimit, Message: "iteration hard cap exceeded"}
	}
	if c.caps.IterationSoftCap > 0 && v > c.caps.IterationSoftCap {
		return &FaultError{Kind: FaultIterationLimit, Message: "iteration soft cap exceeded"}
	}
	return nil
}

func (c *IterationCounter) Count() int64 { return c.n.Load() }

// Env is one lexical frame. Frames chain via parent for symbol
// lookup; Context and Memory are shared across the whole invocation
// (read-only Context, single-writer-at-top-level Memory).
type Env struct {
	parent *Env
	vars   map[string]Value

	// Shared, invocation-wide state (nil on child frames; look up via root()).
	context    *Map
	memory     *Map
	tools      ToolFn
	catalog    map[string]bool // tool names visible as catalog-only
	prints     *[]string
	toolCalls  *[]ToolCallRecord
	turnHist   [3]Value // *1, *2, *3
	iterations *IterationCounter
	allocBytes *atomic.Int64
	heapCap    int64
}

type ToolCallRecord struct {
	Name       string
	Args       Value
	Result     Value
	Err        error
	DurationMS float64
}

// NewRootEnv constructs the top-level environment for one invocation.
func NewRootEnv(context, memory *Map, tools ToolFn, catalog map[string]bool, turnHist [3]Value, limits Limits, heapCapBytes int64) *Env {
	prints := []string{}
	calls := []ToolCallRecord{}
	var allocBytes atomic.Int64
	return &Env{
		vars:       map[string]Value{},
		context:    context,
		memory:     memory,
		tools:      tools,
		catalog:    catalog,
		prints:     &prints,
		toolCalls:  &calls,
		turnHist:   turnHist,
		iterations: NewIterationCounter(limits),
		allocBytes: &allocBytes,
		heapCap:    heapCapBytes,
	}
}

func (e *Env) Child() *Env {
	return &Env{parent: e, vars: map[string]Value{}}
}

func (e *Env) root() *Env {
	cur := e
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

func (e *Env) Define(name string, v Value) {
	e.vars[name] = v
}

func (e *Env) Lookup(name string) (Value, bool) {
	for cur := e; cur != nil; cur = cur.parent {
		if v, ok := cur.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (e *Env) Context() *Map { return e.root().context }
func (e *Env) Memory() *Map  { return e.root().memory }

// SetMemory replaces the memory map at invocation scope; used by
// top-level `def` forms, which persist to the outgoing memory map
// per spec 4.2 "Evaluator".
func (e *Env) SetMemory(m *Map) { e.root().memory = m }

func (e *Env) Print(s string) {
	r := e.root()
	*r.prints = append(*r.prints, s)
}

func (e *Env) Prints() []string { return *e.root().prints }

func (e *Env) RecordToolCall(rec ToolCallRecord) {
	r := e.root()
	*r.toolCalls = append(*r.toolCalls, rec)
}

func (e *Env) ToolCalls() []ToolCallRecord { return *e.root().toolCalls }

func (e *Env) TurnHistory() [3]Value { return e.root().turnHist }

func (e *Env) CallTool(name string, args *Map) (Value, error) {
	r := e.root()
	if r.catalog[name] {
		return nil, &FaultError{Kind: FaultCatalogToolCalled, Message: "tool is catalog-only: " + name}
	}
	if r.tools == nil {
		return nil, &FaultError{Kind: FaultUnknownTool, Message: "no tool table configured"}
	}
	return r.tools(name, args)
}

func (e *Env) Tick(n int64) error { return e.root().iterations.Tick(n) }

// Allocate adds bytes to the invocation's running allocation total and
// returns an out_of_memory fault once it exceeds the heap cap (a cap of
// 0 disables the check). No builtin or evaluator path calls Allocate,
// so the heap cap does not bound an invocation's allocations. See
// DESIGN.md Open Question 1.
func (e *Env) Allocate(bytes int64) error {
	r := e.root()
	if r.heapCap <= 0 {
		return nil
	}
	v := r.allocBytes.Add(bytes)
	if v > r.heapCap {
		return &FaultError{Kind: FaultOutOfMemory, Message: "approximate heap cap exceeded"}
	}
	return nil
}

func (e *Env) AllocatedBytes() int64 { return e.root().allocBytes.Load() }
