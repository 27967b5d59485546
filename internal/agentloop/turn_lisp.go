package agentloop

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-ptc/ptc/internal/lisp"
	"github.com/nexus-ptc/ptc/internal/prompt"
	"github.com/nexus-ptc/ptc/internal/sandbox"
	"github.com/nexus-ptc/ptc/internal/signature"
	"github.com/nexus-ptc/ptc/internal/tracer"
)

// handleLispTurn implements spec 4.4 steps 4 (ptc_lisp parse), 5
// (catalog check — enforced at execution time by the sandbox's
// catalog map rather than a separate static scan, since the
// interpreter already raises catalog_tool_called deterministically
// on first such call with identical retry-feedback behavior), 6
// (execute), and 7-8 (handle result, memory contract).
func (st *turnState) handleLispTurn(ctx context.Context, resp CompletionResponse, singleShot bool) (*Step, bool) {
	program, found := extractLispProgram(resp.Content)
	if !found {
		return st.recoverOrFail(ReasonNoCodeInResponse, formatNoCodeFeedback(ModePTCLisp), "parse")
	}

	forms, err := lisp.ReadAll(program)
	if err != nil {
		return st.recoverOrFail(ReasonAnalysisError, err.Error(), "read")
	}
	ir, err := lisp.NewAnalyzer().AnalyzeTopLevel(forms)
	if err != nil {
		return st.recoverOrFail(ReasonAnalysisError, err.Error(), "analyze")
	}

	tools, catalog := st.buildToolTable(ctx)

	var collected []lisp.ToolCallRecord
	inv := sandbox.Invocation{
		Program:     ir,
		Context:     st.ctx,
		Memory:      st.memory,
		Tools:       tools,
		Catalog:     catalog,
		TurnHistory: st.recentTurnHistory(),
		Collector: func(rec lisp.ToolCallRecord) {
			collected = append(collected, rec)
			span := st.trace.Record(tracer.EventToolStart, "", map[string]any{"tool": rec.Name, "turn": st.turn})
			st.trace.RecordStop(tracer.EventToolStop, span, time.Now().UnixNano(), map[string]any{"tool": rec.Name, "duration_ms": rec.DurationMS})
			st.loop.metrics.RecordToolCall(rec.Name, rec.Err == nil, time.Duration(rec.DurationMS*float64(time.Millisecond)))
		},
	}

	lispStep, fault := st.loop.executor.Run(ctx, inv)
	st.usage.ToolCalls += len(collected)

	if fault != nil {
		return st.recoverOrFail(Reason(fault.Kind), fault.Message, "execute")
	}

	st.recordTurn(program, lispStep, collected)
	st.turnResults = append(st.turnResults, turnResultForHistory(lispStep))

	switch {
	case lispStep.HasReturn:
		return st.finalizeReturn(lispStep.Return, collected)
	case lispStep.Fail != nil:
		return st.terminalWithDetails(ReasonFailed, lispStep.Fail.Message, "fail", failDetails(lispStep.Fail)), true
	case singleShot:
		return st.finalizeReturn(lastProgramValue(lispStep), collected)
	default:
		return st.continueTurn(lispStep, collected)
	}
}

func failDetails(f *lisp.FailValue) map[string]any {
	if f == nil {
		return nil
	}
	d := map[string]any{}
	if f.Reason != "" {
		d["reason"] = f.Reason
	}
	if f.Op != "" {
		d["op"] = f.Op
	}
	return d
}

// lastProgramValue recovers the top-level expression's value for
// single-shot mode, where a bare trailing expression stands in for an
// explicit (return v).
func lastProgramValue(step *lisp.Step) lisp.Value {
	if step == nil || step.Last == nil {
		return lisp.Nil{}
	}
	return step.Last
}

// turnResultForHistory is the value *1/*2/*3 expose for this turn:
// the explicit return value if one fired, else the final expression's
// value.
func turnResultForHistory(step *lisp.Step) lisp.Value {
	if step == nil {
		return lisp.Nil{}
	}
	if step.HasReturn {
		return step.Return
	}
	return lastProgramValue(step)
}

func (st *turnState) recordTurn(program string, step *lisp.Step, calls []lisp.ToolCallRecord) {
	result := ""
	failed := false
	failMsg := ""
	if step != nil {
		if step.HasReturn {
			result = step.Return.String()
		}
		if step.Fail != nil {
			failed = true
			failMsg = step.Fail.Message
		}
	}
	var prints []string
	if step != nil {
		prints = step.Prints
	}
	toolCalls := make([]string, len(calls))
	for i, c := range calls {
		toolCalls[i] = renderToolCallRecord(c)
	}
	st.history = append(st.history, prompt.TurnRecord{
		Turn:      st.turn,
		Program:   program,
		Prints:    prints,
		Result:    result,
		Failed:    failed,
		FailMsg:   failMsg,
		ToolCalls: toolCalls,
	})
}

// renderToolCallRecord renders one tool invocation as the
// "name(args) -> result" line the compressed transcript retains (spec
// 4.5 "caps on retained tool-call count").
func renderToolCallRecord(rec lisp.ToolCallRecord) string {
	args := ""
	if rec.Args != nil {
		args = rec.Args.String()
	}
	if rec.Err != nil {
		return fmt.Sprintf("%s(%s) -> error: %s", rec.Name, args, rec.Err.Error())
	}
	result := ""
	if rec.Result != nil {
		result = rec.Result.String()
	}
	return fmt.Sprintf("%s(%s) -> %s", rec.Name, args, result)
}

// finalizeReturn validates an explicit (return v) against the return
// signature (spec 4.4 step 7).
func (st *turnState) finalizeReturn(v lisp.Value, calls []lisp.ToolCallRecord) (*Step, bool) {
	cfg := st.loop.cfg
	if cfg.ReturnSignature != nil {
		validated, _, err := signature.Validate(v, cfg.ReturnSignature.Returns, true)
		if err != nil {
			return st.recoverOrFailReturnValidation(fmt.Sprintf("return type validation failed: %s", err.Error()), "validate_return")
		}
		v = validated
	}
	s := &Step{Return: v, ToolCalls: calls}
	s.Usage = st.usage
	s.Turns = st.history2TurnLogs()
	return s, true
}

// recoverOrFailReturnValidation implements the return_validation_failed
// retry budget (spec 7: "Yes, until retry_turns exhausted"), a
// narrower, distinct budget from the generic max_turns-bounded
// recoverOrFail path. Both ptc_lisp's finalizeReturn and json mode's
// handleJSONTurn route their return-validation failures through this
// so the two output modes retry identically, per spec 4.4 "Output
// modes".
func (st *turnState) recoverOrFailReturnValidation(msg, op string) (*Step, bool) {
	cfg := st.loop.cfg
	if st.retriesUsedRV >= cfg.RetryTurns {
		return st.terminalWithDetails(ReasonReturnValidationFail, msg, op, nil), true
	}
	st.retriesUsedRV++
	st.messages = append(st.messages, Message{Role: "user", Content: msg})
	return nil, false
}

func (st *turnState) terminalWithDetails(reason Reason, msg, op string, details map[string]any) *Step {
	s := terminalFail(reason, msg, op, details)
	s.Usage = st.usage
	s.Turns = st.history2TurnLogs()
	return s
}

// recoverOrFail implements spec 7's policy: recoverable reasons are
// fed back as the next user turn and placed in ctx/fail so the next
// program can branch on them; unrecoverable reasons terminate.
func (st *turnState) recoverOrFail(reason Reason, msg, op string) (*Step, bool) {
	if !reason.recoverable() {
		return st.terminalWithDetails(reason, msg, op, nil), true
	}
	fault := &Fault{Reason: reason, Message: msg, Op: op}
	st.lastFail = fault
	st.ctx = st.ctx.Set(lisp.Keyword("fail"), faultToLisp(fault))
	st.messages = append(st.messages, Message{Role: "user", Content: recoverableFeedback(fault)})
	return nil, false
}

func faultToLisp(f *Fault) lisp.Value {
	if f == nil {
		return lisp.Nil{}
	}
	m := lisp.NewMap()
	m = m.Set(lisp.Keyword("reason"), lisp.Keyword(f.Reason))
	m = m.Set(lisp.Keyword("message"), lisp.Str(f.Message))
	if f.Op != "" {
		m = m.Set(lisp.Keyword("op"), lisp.Str(f.Op))
	}
	return m
}

// continueTurn implements the "otherwise" branch of spec 4.4 step 7:
// apply the memory contract, build per-turn feedback, append
// assistant+user messages.
func (st *turnState) continueTurn(step *lisp.Step, calls []lisp.ToolCallRecord) (*Step, bool) {
	cfg := st.loop.cfg
	// step.Memory already carries every top-level (def ...) binding
	// made this turn, layered on top of st.memory (spec 3 "Memory...
	// produced by top-level (def ...) forms and by returning a map
	// from a turn") — start from it so defs are never dropped even
	// when the turn's last expression isn't a map.
	base := step.Memory
	if base == nil {
		base = st.memory
	}
	nextMemory, turnResult, hasResult := applyMemoryContract(base, firstNonNilValue(step))

	if size := estimateMemoryBytes(nextMemory); size > cfg.MemoryLimitBytes {
		if cfg.MemoryStrategy == MemoryStrict {
			return st.terminalWithDetails(ReasonMemoryLimitExceeded, fmt.Sprintf("memory size %d exceeds limit %d", size, cfg.MemoryLimitBytes), "memory_contract", nil), true
		}
		st.messages = append(st.messages, Message{Role: "user", Content: "memory_limit_exceeded: this turn's memory update was rolled back, it exceeded the configured limit."})
	} else {
		st.memory = nextMemory
	}

	if hasResult {
		return st.finalizeReturn(turnResult, calls)
	}

	feedback := buildPerTurnFeedback(step.Prints, st.memory, *st.remainingTurns-1, cfg.FeedbackMaxChars)
	st.messages = append(st.messages, Message{Role: "assistant", Content: "(program executed)"})
	st.messages = append(st.messages, Message{Role: "user", Content: feedback})
	return nil, false
}

// firstNonNilValue extracts the value the memory contract inspects:
// the final top-level form's value, which is a map with or without a
// :return key per spec 4.4 step 8.
func firstNonNilValue(step *lisp.Step) lisp.Value {
	if step == nil || step.Last == nil {
		return lisp.Nil{}
	}
	return step.Last
}
