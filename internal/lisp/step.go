package lisp

// Step is the interpreter's result of one execution (spec 3 "Step",
// narrowed to what the interpreter itself produces; usage/turns/
// signature are layered on top by internal/agentloop).
type Step struct {
	HasReturn bool
	Return    Value
	Fail      *FailValue
	Prints    []string
	ToolCalls []ToolCallRecord
	Memory    *Map
	// Last is the value of the final top-level form, populated only
	// when the program ended without an explicit (return v)/(fail m).
	// single-shot mode and the multi-turn memory-merge contract (spec
	// 4.4 steps 7-8) both consume this.
	Last Value
}

type FailValue struct {
	Reason  string
	Message string
	Op      string
	Details *Map
}
