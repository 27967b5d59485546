// Package agentloop drives the per-agent turn state machine from
// prompt to terminal Step (spec 4.4), grounded on the teacher's
// internal/agent.AgenticLoop phase structure, generalized from a
// channel-of-ResponseChunk streaming loop to a single-flow
// LLM-then-sandbox turn cycle.
package agentloop

import "context"

// LLMProvider is the caller-supplied completion backend (spec 6 "LLM
// callback contract"). Grounded on the teacher's agent.LLMProvider,
// narrowed to the single non-streaming call PTC turns need.
type LLMProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Message is one entry in the conversation sent to the LLM.
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is the input half of the LLM callback contract.
type CompletionRequest struct {
	System     string
	Messages   []Message
	Turn       int
	OutputMode string
	Schema     map[string]any
	ToolNames  []string
	LLMOpts    map[string]any
}

// TokenUsage reports input/output token counts from one completion.
type TokenUsage struct {
	Input  int
	Output int
}

// ToolCallRequest is one tool invocation the LLM asked for directly
// (used only in json mode's "respond" tool-call escape hatch, spec 6).
type ToolCallRequest struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// CompletionResponse is the output half of the LLM callback contract.
type CompletionResponse struct {
	Content   string
	Tokens    *TokenUsage
	ToolCalls []ToolCallRequest
}

// ToolFunc is the caller-supplied tool implementation (spec 6 "Tool
// function contract"): it receives the LLM's argument map (keys
// already hyphen-rewritten by the interpreter) and returns a plain
// value, or an error which is fed back to the LLM as a tool_error.
type ToolFunc func(ctx context.Context, args map[string]any) (any, error)

// ToolKind tags the variant a ToolEntry dispatches to (spec 9
// "Dynamic dispatch / polymorphism").
type ToolKind int

const (
	ToolPlain ToolKind = iota
	ToolTyped
	ToolNested
	ToolLLMJudge
	ToolSelf
)

// ToolEntry is one entry in the tool table (spec 9). Nested and
// LLMJudge entries resolve lazily at call time so cyclic tool graphs
// (including SELF) do not need eager construction.
type ToolEntry struct {
	Name        string
	Kind        ToolKind
	Fn          ToolFunc // ToolPlain, ToolTyped
	Signature   string   // ToolTyped, ToolLLMJudge: "(params) -> return"
	CatalogOnly bool
	Description string // ToolPlain/ToolTyped: human text; ToolLLMJudge: prompt template

	// NestedLoop, for ToolNested, is the child agent's Loop. Calling it
	// shares remaining_turns and mission_deadline with the parent one
	// level deeper (spec 4.4 "Nesting", spec 9 "Cyclic references"),
	// exactly like the ToolSelf variant.
	NestedLoop *Loop
}
