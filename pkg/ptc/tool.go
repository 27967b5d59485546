package ptc

import "github.com/nexus-ptc/ptc/internal/agentloop"

// Tool is one entry in an agent's tool table (spec 3 "Tool"). Build
// one with PlainTool, TypedTool, NestedTool, LLMJudgeTool, or Self;
// pass it to WithTools when constructing an Agent (the CatalogOnly
// option marks a planning-only entry).
type Tool struct {
	entry agentloop.ToolEntry
}

// ToolOption configures optional Tool fields.
type ToolOption func(*agentloop.ToolEntry)

// WithDescription attaches human-readable text shown in the tool
// schema section of the prompt.
func WithDescription(desc string) ToolOption {
	return func(e *agentloop.ToolEntry) { e.Description = desc }
}

// CatalogOnly marks the tool as visible in the schema for planning
// but not callable; calling it raises catalog_tool_called (spec 4.4
// step 5).
func CatalogOnly() ToolOption {
	return func(e *agentloop.ToolEntry) { e.CatalogOnly = true }
}

func applyToolOpts(e agentloop.ToolEntry, opts []ToolOption) Tool {
	for _, o := range opts {
		o(&e)
	}
	return Tool{entry: e}
}

// PlainTool wraps a bare callable with no argument validation (spec 3
// "Tool": "bare callable ... otherwise no validation").
func PlainTool(name string, fn ToolFunc, opts ...ToolOption) Tool {
	return applyToolOpts(agentloop.ToolEntry{Name: name, Kind: agentloop.ToolPlain, Fn: fn}, opts)
}

// TypedTool wraps a callable with a declared `(params) -> return`
// signature; arguments are validated against it before the call (spec
// 3 "Tool": "{callable, signature_string, options}").
func TypedTool(name, signature string, fn ToolFunc, opts ...ToolOption) Tool {
	return applyToolOpts(agentloop.ToolEntry{Name: name, Kind: agentloop.ToolTyped, Fn: fn, Signature: signature}, opts)
}

// NestedTool wraps another Agent so its configured signature becomes
// the tool schema (spec 3 "Tool": "a nested Agent"). Calling it shares
// the parent mission's remaining_turns counter and deadline one level
// deeper, so mutual-recursion cycles are bounded like SELF (spec 9
// "Cyclic references").
func NestedTool(name string, agent *Agent, opts ...ToolOption) Tool {
	return applyToolOpts(agentloop.ToolEntry{Name: name, Kind: agentloop.ToolNested, NestedLoop: agent.loop}, opts)
}

// LLMJudgeTool wraps a prompt template that is rendered over the
// call's arguments and sent to the LLM directly, bypassing the turn
// loop; if sig is non-empty, the response is parsed as JSON and
// validated against its return type (spec 9 "Dynamic dispatch").
func LLMJudgeTool(name, template, sig string, opts ...ToolOption) Tool {
	return applyToolOpts(agentloop.ToolEntry{Name: name, Kind: agentloop.ToolLLMJudge, Description: template, Signature: sig}, opts)
}

// Self is the SELF tool variant: "this agent, recursively" (spec 3
// "Agent"). Calling it recurses into the same Agent's RunMission,
// sharing remaining_turns/deadline one level deeper, bounded by
// max_depth.
func Self(opts ...ToolOption) Tool {
	return applyToolOpts(agentloop.ToolEntry{Name: "self", Kind: agentloop.ToolSelf}, opts)
}
