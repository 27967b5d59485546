package agentloop

import (
	"context"
	"encoding/json"

	"github.com/nexus-ptc/ptc/internal/signature"
)

// handleJSONTurn implements spec 4.4's json output mode: single
// completion, no tool calls, no history compression, firewalled
// context fields never rendered — parse the response as a bare JSON
// document (or, when the content holds none, the arguments of a single
// "respond" tool call) and validate it against the return signature
// before treating it as the mission's terminal return value.
func (st *turnState) handleJSONTurn(ctx context.Context, resp CompletionResponse) (*Step, bool) {
	cfg := st.loop.cfg
	if cfg.ReturnSignature == nil {
		return st.terminal(ReasonInvalidSignature, "json output mode requires a return signature", "validate_return"), true
	}

	raw, found := extractJSONPayload(resp.Content)
	if !found && len(resp.ToolCalls) == 1 && resp.ToolCalls[0].Name == "respond" {
		if b, err := json.Marshal(resp.ToolCalls[0].Arguments); err == nil {
			raw, found = string(b), true
		}
	}
	if !found {
		return st.recoverOrFail(ReasonNoCodeInResponse, formatNoCodeFeedback(ModeJSON), "parse")
	}

	schema, err := signature.CompileJSONSchema(cfg.ReturnSignature.Returns)
	if err != nil {
		return st.terminal(ReasonInvalidSignature, err.Error(), "compile_schema"), true
	}
	if err := signature.ValidateJSON(schema, []byte(raw)); err != nil {
		return st.recoverOrFailReturnValidation("return type validation failed: "+err.Error(), "validate_return")
	}

	v, err := jsonToLisp([]byte(raw))
	if err != nil {
		return st.recoverOrFailReturnValidation("return type validation failed: "+err.Error(), "parse")
	}
	validated, _, err := signature.Validate(v, cfg.ReturnSignature.Returns, true)
	if err != nil {
		return st.recoverOrFailReturnValidation("return type validation failed: "+err.Error(), "validate_return")
	}

	s := &Step{Return: validated}
	s.Usage = st.usage
	s.Turns = st.history2TurnLogs()
	return s, true
}
