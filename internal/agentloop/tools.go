package agentloop

import (
	"context"
	"fmt"

	"github.com/nexus-ptc/ptc/internal/lisp"
	"github.com/nexus-ptc/ptc/internal/signature"
)

// buildToolTable resolves cfg.Tools into the dispatch function and
// catalog map the sandbox needs (spec 9 "Dynamic dispatch"). Nested
// and Self entries resolve lazily, at call time, so cyclic tool
// graphs never need eager construction.
func (st *turnState) buildToolTable(ctx context.Context) (lisp.ToolFn, map[string]bool) {
	cfg := st.loop.cfg
	byName := make(map[string]ToolEntry, len(cfg.Tools))
	catalog := make(map[string]bool, len(cfg.Tools))
	for _, t := range cfg.Tools {
		byName[t.Name] = t
		if t.CatalogOnly {
			catalog[t.Name] = true
		}
	}

	fn := func(name string, args *lisp.Map) (lisp.Value, error) {
		entry, ok := byName[name]
		if !ok {
			return nil, &lisp.FaultError{Kind: lisp.FaultUnknownTool, Message: "unknown tool: " + name}
		}
		if entry.CatalogOnly {
			return nil, &lisp.FaultError{Kind: lisp.FaultCatalogToolCalled, Message: "tool is catalog-only and cannot be called: " + name}
		}
		goArgs, ok := lispToGo(args).(map[string]any)
		if !ok {
			goArgs = map[string]any{}
		}

		switch entry.Kind {
		case ToolPlain:
			return st.callPlain(ctx, entry, goArgs)
		case ToolTyped:
			return st.callTyped(ctx, entry, goArgs)
		case ToolNested:
			return st.callNested(ctx, entry, goArgs)
		case ToolLLMJudge:
			return st.callLLMJudge(ctx, entry, goArgs)
		case ToolSelf:
			return st.callSelf(ctx, goArgs)
		default:
			return nil, &lisp.FaultError{Kind: lisp.FaultRuntimeError, Message: "unhandled tool kind for: " + name}
		}
	}
	return fn, catalog
}

func (st *turnState) callPlain(ctx context.Context, entry ToolEntry, args map[string]any) (lisp.Value, error) {
	return st.callFunc(ctx, entry.Fn, args)
}

// callTyped validates the argument map against the tool's declared
// signature before invoking it (spec 9 "Typed(fn, sig, opts)").
func (st *turnState) callTyped(ctx context.Context, entry ToolEntry, args map[string]any) (lisp.Value, error) {
	sig, err := signature.Parse(entry.Signature)
	if err != nil {
		return nil, &lisp.FaultError{Kind: lisp.FaultToolValidationErr, Message: fmt.Sprintf("tool %s has an invalid signature: %s", entry.Name, err.Error())}
	}
	argsVal := goToLisp(args)
	if _, _, err := signature.Validate(argsVal, paramsToMapType(sig.Params), false); err != nil {
		return nil, &lisp.FaultError{Kind: lisp.FaultToolValidationErr, Message: fmt.Sprintf("tool %s argument validation failed: %s", entry.Name, err.Error())}
	}
	return st.callFunc(ctx, entry.Fn, args)
}

func paramsToMapType(params []signature.Param) signature.MapType {
	fields := make([]signature.Field, len(params))
	for i, p := range params {
		fields[i] = signature.Field{Name: p.Name, Type: p.Type}
	}
	return signature.MapType{Fields: fields}
}

func (st *turnState) callFunc(ctx context.Context, fn ToolFunc, args map[string]any) (lisp.Value, error) {
	if fn == nil {
		return nil, &lisp.FaultError{Kind: lisp.FaultRuntimeError, Message: "tool has no implementation bound"}
	}
	result, err := fn(ctx, args)
	if err != nil {
		return nil, &lisp.FaultError{Kind: lisp.FaultUnknownTool, Message: err.Error()}
	}
	return goToLisp(result), nil
}

// callLLMJudge renders entry.Description as a prompt template over
// args, asks the provider to complete it, and validates the raw text
// against entry.Signature's return type if one is declared (spec 9
// "LLMJudge(template, sig, llm?)").
func (st *turnState) callLLMJudge(ctx context.Context, entry ToolEntry, args map[string]any) (lisp.Value, error) {
	resp, err := st.loop.provider.Complete(ctx, CompletionRequest{
		System:   entry.Description,
		Messages: []Message{{Role: "user", Content: renderJudgeArgs(args)}},
		Turn:     st.turn,
	})
	if err != nil {
		return nil, &lisp.FaultError{Kind: lisp.FaultUnknownTool, Message: "llm_judge call failed: " + err.Error()}
	}
	if entry.Signature == "" {
		return lisp.Str(resp.Content), nil
	}
	sig, err := signature.Parse(entry.Signature)
	if err != nil {
		return nil, &lisp.FaultError{Kind: lisp.FaultToolValidationErr, Message: fmt.Sprintf("llm_judge tool %s has an invalid signature: %s", entry.Name, err.Error())}
	}
	v, err := jsonToLisp([]byte(resp.Content))
	if err != nil {
		return nil, &lisp.FaultError{Kind: lisp.FaultToolValidationErr, Message: "llm_judge response was not valid json: " + err.Error()}
	}
	validated, _, err := signature.Validate(v, sig.Returns, true)
	if err != nil {
		return nil, &lisp.FaultError{Kind: lisp.FaultToolValidationErr, Message: fmt.Sprintf("llm_judge tool %s response validation failed: %s", entry.Name, err.Error())}
	}
	return validated, nil
}

func renderJudgeArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	out := ""
	for _, k := range keys {
		out += fmt.Sprintf("%s: %v\n", k, args[k])
	}
	return out
}

// callSelf dispatches the SELF tool (spec 9 "Cyclic references"): a
// recursive RunMission sharing this mission's remaining_turns counter
// and deadline, one level deeper (spec 4.4 "Nesting").
func (st *turnState) callSelf(ctx context.Context, args map[string]any) (lisp.Value, error) {
	return st.runChild(ctx, st.loop, args)
}

// callNested dispatches a Nested(agent) tool: a different agent's
// Loop, called one level deeper but still sharing this mission's
// remaining_turns counter and deadline so mutual-recursion cycles are
// bounded exactly like SELF (spec 9 "Cyclic references").
func (st *turnState) callNested(ctx context.Context, entry ToolEntry, args map[string]any) (lisp.Value, error) {
	if entry.NestedLoop == nil {
		return nil, &lisp.FaultError{Kind: lisp.FaultRuntimeError, Message: "nested tool has no agent bound: " + entry.Name}
	}
	return st.runChild(ctx, entry.NestedLoop, args)
}

func (st *turnState) runChild(ctx context.Context, loop *Loop, args map[string]any) (lisp.Value, error) {
	child := loop.RunMission(ctx, RunOptions{
		ContextOverride: args,
		Nesting: &Nested{
			Depth:          st.depth + 1,
			RemainingTurns: st.remainingTurns,
			Deadline:       st.deadline,
		},
	})
	if child.Fail != nil {
		return nil, &lisp.FaultError{Kind: lisp.FaultKind(child.Fail.Reason), Message: child.Fail.Message}
	}
	return child.Return, nil
}
