package lisp

// FaultKind enumerates the structured faults an interpreter
// invocation can end in, mirroring the sandbox contract in spec 4.3
// (`{kind, message, detail}` where kind is one of timeout,
// out_of_memory, iteration_limit, crash, analysis_error,
// runtime_error) plus three interpreter-level recoverable tool kinds
// (catalog_tool_called, tool_error, tool_validation_error).
type FaultKind string

const (
	FaultTimeout            FaultKind = "timeout"
	FaultOutOfMemory        FaultKind = "out_of_memory"
	FaultIterationLimit     FaultKind = "iteration_limit"
	FaultCrash              FaultKind = "crash"
	FaultAnalysisErrorKind  FaultKind = "analysis_error"
	FaultRuntimeError       FaultKind = "runtime_error"
	FaultCatalogToolCalled  FaultKind = "catalog_tool_called"
	FaultUnknownTool        FaultKind = "tool_error"
	FaultToolValidationErr  FaultKind = "tool_validation_error"
)

// FaultError is the Go error type carrying a structured fault.
type FaultError struct {
	Kind    FaultKind
	Message string
	Detail  map[string]any
}

func (f *FaultError) Error() string { return string(f.Kind) + ": " + f.Message }

// ReturnSignal and FailSignal are the terminal-signal control values
// raised by `(return v)` / `(fail m)` and caught at the outermost
// invocation boundary (spec 9: "exceptions for control flow ... model
// as result types ... with a dedicated terminal-signal variant").
type ReturnSignal struct{ Value Value }
type FailSignal struct{ Value Value }

func (r *ReturnSignal) Error() string { return "return: " + r.Value.String() }
func (f *FailSignal) Error() string   { return "fail: " + f.Value.String() }
