package ptc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nexus-ptc/ptc/internal/lisp"
	"github.com/nexus-ptc/ptc/internal/tracer"
)

// These tests correspond one-to-one with the six concrete scenarios
// in spec.md §8, driven through the public Agent API with a scripted
// LLMProvider so each runs end to end without a live model.

func TestScenarioArithmeticSingleShot(t *testing.T) {
	provider := &scriptedProvider{responses: []CompletionResponse{
		{Content: "```clojure\n(+ ctx/x ctx/y)\n```"},
	}}
	agent, err := New(provider,
		WithMission("Add {{x}} and {{y}}"),
		WithReturnSignature(":int"),
		WithMaxTurns(1),
		WithContext(map[string]any{"x": 5, "y": 3}, "{x :int, y :int}"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step := agent.Run(context.Background())
	if step.Fail != nil {
		t.Fatalf("unexpected failure: %+v", step.Fail)
	}
	if got := step.Return.String(); got != "8" {
		t.Errorf("expected return 8, got %q", got)
	}
}

func TestScenarioReturnContractViolationRetries(t *testing.T) {
	provider := &scriptedProvider{responses: []CompletionResponse{
		{Content: `(return {:result "eight"})`},
		{Content: `(return {:result 8})`},
	}}
	agent, err := New(provider,
		WithMission("return a result map"),
		WithReturnSignature("() -> {result :int}"),
		WithMaxTurns(3),
		WithRetryTurns(1),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step := agent.Run(context.Background())
	if step.Fail != nil {
		t.Fatalf("unexpected failure: %+v", step.Fail)
	}
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 llm calls, got %d", len(provider.requests))
	}
	secondTurnMsgs := provider.requests[1].Messages
	found := false
	for _, m := range secondTurnMsgs {
		if strings.Contains(m.Content, "return type validation failed") {
			found = true
		}
	}
	if !found {
		t.Error("expected turn 2's messages to mention return type validation failed")
	}
	if len(step.Turns) != 2 {
		t.Errorf("expected 2 recorded turns, got %d", len(step.Turns))
	}
	m, ok := step.Return.(*lisp.Map)
	if !ok {
		t.Fatalf("expected a map return value, got %T", step.Return)
	}
	if v, ok := m.Get(lisp.Keyword("result")); !ok || v.String() != "8" {
		t.Errorf("expected result 8, got %v (ok=%v)", v, ok)
	}
}

func TestScenarioToolDispatchWithValidation(t *testing.T) {
	provider := &scriptedProvider{responses: []CompletionResponse{
		{Content: "(return (tool/double {:n 21}))"},
	}}
	double := TypedTool("double", "(n :int) -> :int", func(ctx context.Context, args map[string]any) (any, error) {
		n, _ := args["n"].(int64)
		return n * 2, nil
	})
	agent, err := New(provider,
		WithMission("double the number"),
		WithTools(double),
		WithTraceMode(TraceOn),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step := agent.Run(context.Background())
	if step.Fail != nil {
		t.Fatalf("unexpected failure: %+v", step.Fail)
	}
	if got := step.Return.String(); got != "42" {
		t.Errorf("expected return 42, got %q", got)
	}
	if len(step.ToolCalls) != 1 || step.ToolCalls[0].Name != "double" {
		t.Fatalf("expected one recorded double tool call, got %+v", step.ToolCalls)
	}

	events := step.Trace.Events()
	var starts, stops int
	for _, e := range events {
		switch e.Kind {
		case tracer.EventToolStart:
			starts++
		case tracer.EventToolStop:
			stops++
		}
	}
	if starts != 1 || stops != 1 {
		t.Errorf("expected one matched tool.start/tool.stop pair, got %d starts %d stops", starts, stops)
	}
}

func TestScenarioCatalogOnlyToolBlocked(t *testing.T) {
	provider := &scriptedProvider{responses: []CompletionResponse{
		{Content: "(tool/plan {})"},
		{Content: "(tool/plan {})"},
	}}
	plan := PlainTool("plan", func(ctx context.Context, args map[string]any) (any, error) {
		return nil, nil
	}, CatalogOnly())
	agent, err := New(provider,
		WithMission("try the planning tool"),
		WithTools(plan),
		WithMaxTurns(2),
		WithRetryTurns(5),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step := agent.Run(context.Background())
	if len(provider.requests) < 2 {
		t.Fatalf("expected at least 2 llm calls, got %d", len(provider.requests))
	}
	secondTurnMsgs := provider.requests[1].Messages
	found := false
	for _, m := range secondTurnMsgs {
		if strings.Contains(m.Content, "catalog_tool_called") {
			found = true
		}
	}
	if !found {
		t.Error("expected turn 2's feedback to name catalog_tool_called")
	}
	if step.Fail == nil {
		t.Fatal("expected the mission to terminate once retries run out")
	}
}

func TestScenarioFirewalledFieldHiddenFromPrompt(t *testing.T) {
	provider := &scriptedProvider{responses: []CompletionResponse{
		{Content: `(return {:summary "ok" :_ids [1 2 3]})`},
	}}
	agent, err := New(provider,
		WithMission("summarize with hidden ids"),
		WithReturnSignature("() -> {summary :string, _ids [:int]}"),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step := agent.Run(context.Background())
	if step.Fail != nil {
		t.Fatalf("unexpected failure: %+v", step.Fail)
	}
	m, ok := step.Return.(*lisp.Map)
	if !ok {
		t.Fatalf("expected a map return value, got %T", step.Return)
	}
	if v, ok := m.Get(lisp.Keyword("_ids")); !ok || v.String() != "[1 2 3]" {
		t.Errorf("expected _ids to survive in Step.return, got %v (ok=%v)", v, ok)
	}

	preview, err := agent.Preview()
	if err != nil {
		t.Fatalf("unexpected preview error: %v", err)
	}
	if strings.Contains(preview.System, "_ids") {
		t.Error("expected _ids to never appear in the rendered system prompt")
	}
	if !strings.Contains(preview.System, "summary") {
		t.Error("expected summary to appear in the rendered system prompt")
	}
}

func TestScenarioMissionTimeout(t *testing.T) {
	provider := &sleepingProvider{perCallDelay: 50 * time.Millisecond}
	agent, err := New(provider,
		WithMission("stall forever"),
		WithMissionTimeout(100*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	step := agent.Run(context.Background())

	if step.Fail == nil || step.Fail.Reason != "mission_timeout" {
		t.Fatalf("expected a mission_timeout failure, got %+v", step.Fail)
	}
	if step.Usage.DurationMS < 100 {
		t.Errorf("expected usage.duration_ms >= 100, got %v", step.Usage.DurationMS)
	}
	if provider.calls > 2 {
		t.Errorf("expected at most two turns before the deadline fired, got %d calls", provider.calls)
	}
}

// sleepingProvider simulates an LLM callback with a fixed per-call
// latency, for exercising mission_timeout.
type sleepingProvider struct {
	perCallDelay time.Duration
	calls        int
}

func (p *sleepingProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.calls++
	time.Sleep(p.perCallDelay)
	return CompletionResponse{Content: "no code in this reply"}, nil
}
