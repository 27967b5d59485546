package agentloop

// Reason is the error-kind taxonomy surfaced via Step.Fail.Reason
// (spec 7 "Error taxonomy"); RunMission returns only a Step, never a
// Go error.
type Reason string

const (
	ReasonInvalidSignature      Reason = "invalid_signature"
	ReasonPlaceholderUnbound    Reason = "placeholder_unbound"
	ReasonLLMError              Reason = "llm_error"
	ReasonNoCodeInResponse      Reason = "no_code_in_response"
	ReasonAnalysisError         Reason = "analysis_error"
	ReasonRuntimeError          Reason = "runtime_error"
	ReasonToolError             Reason = "tool_error"
	ReasonToolValidationError   Reason = "tool_validation_error"
	ReasonCatalogToolCalled     Reason = "catalog_tool_called"
	ReasonReturnValidationFail  Reason = "return_validation_failed"
	ReasonTimeout               Reason = "timeout"
	ReasonOutOfMemory           Reason = "out_of_memory"
	ReasonIterationLimit        Reason = "iteration_limit"
	ReasonMemoryLimitExceeded   Reason = "memory_limit_exceeded"
	ReasonMaxTurnsExceeded      Reason = "max_turns_exceeded"
	ReasonTurnBudgetExhausted   Reason = "turn_budget_exhausted"
	ReasonMaxDepthExceeded      Reason = "max_depth_exceeded"
	ReasonMissionTimeout        Reason = "mission_timeout"
	ReasonFailed                Reason = "failed"
	ReasonCrash                 Reason = "crash"
)

// recoverable reports whether the loop should feed the failure back
// as the next user turn rather than terminating the run.
func (r Reason) recoverable() bool {
	switch r {
	case ReasonInvalidSignature, ReasonPlaceholderUnbound, ReasonLLMError,
		ReasonMaxTurnsExceeded, ReasonTurnBudgetExhausted, ReasonMaxDepthExceeded,
		ReasonMissionTimeout, ReasonFailed, ReasonCrash:
		return false
	default:
		return true
	}
}

// Fault is the structured failure attached to a terminal Step (spec 3
// "Step").
type Fault struct {
	Reason  Reason
	Message string
	Op      string
	Details map[string]any
}

func (f *Fault) Error() string {
	if f == nil {
		return ""
	}
	return string(f.Reason) + ": " + f.Message
}
