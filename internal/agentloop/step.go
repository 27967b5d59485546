package agentloop

import (
	"time"

	"github.com/nexus-ptc/ptc/internal/lisp"
	"github.com/nexus-ptc/ptc/internal/tracer"
)

// Step is the standard result record for a mission or sub-mission
// (spec glossary "Step"). Exactly one of Return/Fail is set on a
// terminal Step (invariant P1).
type Step struct {
	Return    lisp.Value
	Fail      *Fault
	Turns     []TurnLog
	Usage     Usage
	ToolCalls []lisp.ToolCallRecord
	Trace     *tracer.Collector
}

// TurnLog records one turn's program text and outcome for
// Step.turns/transcript inspection.
type TurnLog struct {
	Turn    int
	Program string
	Prints  []string
	Result  string
	Failed  bool
}

// Usage aggregates the resource counters a Step reports (spec 8 "P2
// budget soundness", "P4 sandbox bounds").
type Usage struct {
	Turns          int
	ToolCalls      int
	LLMCalls       int
	DurationMS     float64
	MemoryBytes    int64
	InputTokens    int
	OutputTokens   int
	SystemPromptTokens  int
	TurnsCompressed     int
	PrintlnsDropped     int
	ToolCallsDropped    int
	ErrorTurnsCollapsed int
}

// TotalTokens is InputTokens+OutputTokens, exposed as a method rather
// than a stored field since it is always derivable.
func (u Usage) TotalTokens() int { return u.InputTokens + u.OutputTokens }

// charsPerToken is the same ~4-chars-per-token heuristic the teacher
// pack's token estimator uses.
const charsPerToken = 4

// estimateTokens approximates a string's token count for
// Usage.SystemPromptTokens and Preview's token_estimate, since no
// provider-specific tokenizer is available to the loop.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

func terminalFail(reason Reason, msg string, op string, details map[string]any) *Step {
	return &Step{Fail: &Fault{Reason: reason, Message: msg, Op: op, Details: details}}
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
