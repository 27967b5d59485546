// Package ptc is the public library surface (spec 6 "Caller API"): a
// host embeds an LLM of its choosing, builds an Agent from a prompt
// template and a tool table, and calls Run to drive the turn loop to
// a terminal Step. Everything here is a thin facade over
// internal/agentloop; the facade exists so callers never import an
// internal package and so the wire types (LLMProvider, Step, Tool)
// have a stable public identity to depend on.
package ptc

import (
	"github.com/nexus-ptc/ptc/internal/agentloop"
	"github.com/nexus-ptc/ptc/internal/tracer"
)

// Re-exported LLM callback contract (spec 6 "LLM callback contract").
type (
	LLMProvider         = agentloop.LLMProvider
	Message             = agentloop.Message
	CompletionRequest   = agentloop.CompletionRequest
	CompletionResponse  = agentloop.CompletionResponse
	TokenUsage          = agentloop.TokenUsage
	ToolCallRequest     = agentloop.ToolCallRequest
	ToolFunc            = agentloop.ToolFunc
)

// Re-exported result types (spec 3 "Step", "Turn").
type (
	Step    = agentloop.Step
	TurnLog = agentloop.TurnLog
	Usage   = agentloop.Usage
	Fault   = agentloop.Fault
	Reason  = agentloop.Reason
)

// PreviewResult is Agent.Preview's dry-run output (spec 6 "Preview").
type PreviewResult = agentloop.PreviewResult

// OutputMode selects the LLM response contract.
type OutputMode = agentloop.OutputMode

const (
	PTCLisp OutputMode = agentloop.ModePTCLisp
	JSON    OutputMode = agentloop.ModeJSON
)

// MemoryStrategy picks what happens when a turn's memory update
// exceeds the configured limit.
type MemoryStrategy = agentloop.MemoryStrategy

const (
	MemoryStrict   MemoryStrategy = agentloop.MemoryStrict
	MemoryRollback MemoryStrategy = agentloop.MemoryRollback
)

// TraceMode selects whether a run's trace is retained (spec 4.6).
type TraceMode = tracer.Mode

const (
	TraceOff     TraceMode = tracer.ModeOff
	TraceOn      TraceMode = tracer.ModeOn
	TraceOnError TraceMode = tracer.ModeOnError
)
