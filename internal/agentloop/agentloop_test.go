package agentloop

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nexus-ptc/ptc/internal/lisp"
	"github.com/nexus-ptc/ptc/internal/signature"
)

func TestApplyMemoryContractMergesWithoutReturnKey(t *testing.T) {
	turnValue := lisp.NewMap().Set(lisp.Keyword("counter"), lisp.Int(1))
	next, result, hasResult := applyMemoryContract(lisp.NewMap(), turnValue)
	if hasResult {
		t.Fatal("expected no explicit result without a :return key")
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}
	if v, ok := next.Get(lisp.Keyword("counter")); !ok || v.String() != "1" {
		t.Errorf("expected memory to be merged, got %+v", next)
	}
}

func TestApplyMemoryContractWithReturnKeySplitsResult(t *testing.T) {
	turnValue := lisp.NewMap().Set(lisp.Keyword("counter"), lisp.Int(1)).Set(lisp.Keyword("return"), lisp.Str("done"))
	next, result, hasResult := applyMemoryContract(lisp.NewMap(), turnValue)
	if !hasResult {
		t.Fatal("expected an explicit result")
	}
	if result.String() != "done" {
		t.Errorf("expected result 'done', got %v", result)
	}
	if _, ok := next.Get(lisp.Keyword("return")); ok {
		t.Error("expected :return to be excluded from memory")
	}
	if v, ok := next.Get(lisp.Keyword("counter")); !ok || v.String() != "1" {
		t.Errorf("expected counter to be merged into memory, got %+v", next)
	}
}

func TestApplyMemoryContractNonMapLeavesMemoryUnchanged(t *testing.T) {
	original := lisp.NewMap().Set(lisp.Keyword("x"), lisp.Int(5))
	next, result, hasResult := applyMemoryContract(original, lisp.Int(42))
	if hasResult || result != nil {
		t.Error("expected no result for a non-map turn value")
	}
	if next != original {
		t.Error("expected memory to be unchanged for a non-map turn value")
	}
}

func TestEstimateMemoryBytes(t *testing.T) {
	m := lisp.NewMap().Set(lisp.Keyword("name"), lisp.Str("ada"))
	if got := estimateMemoryBytes(m); got <= 0 {
		t.Errorf("expected a positive byte estimate, got %d", got)
	}
	if got := estimateMemoryBytes(nil); got != 0 {
		t.Errorf("expected zero for nil memory, got %d", got)
	}
}

type scriptedLLM struct {
	responses []CompletionResponse
	calls     int
	requests  []CompletionRequest
}

func (p *scriptedLLM) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.requests = append(p.requests, req)
	if p.calls >= len(p.responses) {
		resp := p.responses[len(p.responses)-1]
		p.calls++
		return resp, nil
	}
	resp := p.responses[p.calls]
	p.calls++
	return resp, nil
}

type neverCalledLLM struct{ t *testing.T }

func (p *neverCalledLLM) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	p.t.Fatal("provider should not be called")
	return CompletionResponse{}, nil
}

func TestRunMissionFailsWhenDepthExceedsMaxDepth(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDepth = 2
	loop := New(cfg, &neverCalledLLM{t: t})
	remaining := 5
	step := loop.RunMission(context.Background(), RunOptions{
		Nesting: &Nested{Depth: 3, RemainingTurns: &remaining, Deadline: time.Now().Add(time.Minute)},
	})
	if step.Fail == nil || step.Fail.Reason != ReasonMaxDepthExceeded {
		t.Fatalf("expected ReasonMaxDepthExceeded, got %+v", step.Fail)
	}
}

func TestRunMissionFailsOnTurnBudgetExhausted(t *testing.T) {
	cfg := DefaultConfig()
	loop := New(cfg, &neverCalledLLM{t: t})
	remaining := 0
	step := loop.RunMission(context.Background(), RunOptions{
		Nesting: &Nested{Depth: 0, RemainingTurns: &remaining, Deadline: time.Now().Add(time.Minute)},
	})
	if step.Fail == nil || step.Fail.Reason != ReasonTurnBudgetExhausted {
		t.Fatalf("expected ReasonTurnBudgetExhausted, got %+v", step.Fail)
	}
}

func TestRunMissionFailsOnMissionTimeout(t *testing.T) {
	cfg := DefaultConfig()
	loop := New(cfg, &neverCalledLLM{t: t})
	remaining := 5
	step := loop.RunMission(context.Background(), RunOptions{
		Nesting: &Nested{Depth: 0, RemainingTurns: &remaining, Deadline: time.Now().Add(-time.Minute)},
	})
	if step.Fail == nil || step.Fail.Reason != ReasonMissionTimeout {
		t.Fatalf("expected ReasonMissionTimeout, got %+v", step.Fail)
	}
}

func TestRunMissionFailsOnMaxTurnsExceeded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTurns = 1
	cfg.TurnBudgetInitial = 5
	provider := &scriptedLLM{responses: []CompletionResponse{
		{Content: "no code here at all"},
	}}
	loop := New(cfg, provider)
	step := loop.RunMission(context.Background(), RunOptions{})
	if step.Fail == nil || step.Fail.Reason != ReasonMaxTurnsExceeded {
		t.Fatalf("expected ReasonMaxTurnsExceeded, got %+v", step.Fail)
	}
}

func TestRunMissionReturnsExplicitValue(t *testing.T) {
	cfg := DefaultConfig()
	provider := &scriptedLLM{responses: []CompletionResponse{
		{Content: "```clojure\n(return 99)\n```"},
	}}
	loop := New(cfg, provider)
	step := loop.RunMission(context.Background(), RunOptions{})
	if step.Fail != nil {
		t.Fatalf("unexpected failure: %+v", step.Fail)
	}
	if step.Return == nil || step.Return.String() != "99" {
		t.Errorf("expected return 99, got %+v", step)
	}
	if step.Usage.LLMCalls != 1 {
		t.Errorf("expected 1 llm call recorded, got %d", step.Usage.LLMCalls)
	}
}

func TestRunMissionJSONModeValidatesAndReturns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OutputMode = ModeJSON
	cfg.ReturnSignature = &signature.Signature{Returns: signature.MapType{Fields: []signature.Field{
		{Name: "summary", Type: signature.PrimString},
	}}}
	provider := &scriptedLLM{responses: []CompletionResponse{
		{Content: "```json\n{\"summary\": \"all good\"}\n```"},
	}}
	loop := New(cfg, provider)
	step := loop.RunMission(context.Background(), RunOptions{})
	if step.Fail != nil {
		t.Fatalf("unexpected failure: %+v", step.Fail)
	}
	m, ok := step.Return.(*lisp.Map)
	if !ok {
		t.Fatalf("expected a map return value, got %T", step.Return)
	}
	if v, ok := m.Get(lisp.Keyword("summary")); !ok || v.String() != "all good" {
		t.Errorf("unexpected summary field: %v ok=%v", v, ok)
	}
}

func TestRunMissionJSONModeRejectsSchemaMismatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTurns = 1
	cfg.OutputMode = ModeJSON
	cfg.ReturnSignature = &signature.Signature{Returns: signature.MapType{Fields: []signature.Field{
		{Name: "summary", Type: signature.PrimString},
	}}}
	provider := &scriptedLLM{responses: []CompletionResponse{
		{Content: "```json\n{\"summary\": 5}\n```"},
	}}
	loop := New(cfg, provider)
	step := loop.RunMission(context.Background(), RunOptions{})
	if step.Fail == nil {
		t.Fatal("expected a failure for a schema-mismatched json response")
	}
}

// TestContinueTurnPersistsDefOnlyMemoryAcrossTurns guards against
// continueTurn deriving next memory purely from the turn's final
// expression: a def whose turn ends on a non-map expression must
// still carry its binding into the next turn (spec 5 P5 "memory ...
// never silently loses keys").
func TestContinueTurnPersistsDefOnlyMemoryAcrossTurns(t *testing.T) {
	cfg := DefaultConfig()
	provider := &scriptedLLM{responses: []CompletionResponse{
		{Content: "```clojure\n(def x 10)\n(println \"ok\")\n```"},
		{Content: "```clojure\n(return mem/x)\n```"},
	}}
	loop := New(cfg, provider)
	step := loop.RunMission(context.Background(), RunOptions{})
	if step.Fail != nil {
		t.Fatalf("unexpected failure: %+v", step.Fail)
	}
	if step.Return == nil || step.Return.String() != "10" {
		t.Errorf("expected def'd x to survive into turn 2's memory, got %+v", step)
	}
}

// TestRecordTurnRendersToolCallsIntoCompressedHistory guards against
// recordTurn silently dropping the tool-call material compress.go
// renders (spec 4.5 "caps on retained tool-call count").
func TestRecordTurnRendersToolCallsIntoCompressedHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressHistory = true
	cfg.Tools = []ToolEntry{{
		Name: "echo",
		Kind: ToolPlain,
		Fn: func(ctx context.Context, args map[string]any) (any, error) {
			return "hi", nil
		},
	}}
	provider := &scriptedLLM{responses: []CompletionResponse{
		{Content: "```clojure\n(tool/echo {:msg \"hi\"})\n(println \"done\")\n```"},
		{Content: "```clojure\n(return 1)\n```"},
	}}
	loop := New(cfg, provider)
	step := loop.RunMission(context.Background(), RunOptions{})
	if step.Fail != nil {
		t.Fatalf("unexpected failure: %+v", step.Fail)
	}
	if len(provider.requests) != 2 {
		t.Fatalf("expected 2 llm calls, got %d", len(provider.requests))
	}
	var compressed string
	for _, m := range provider.requests[1].Messages {
		if strings.Contains(m.Content, "Prior turns (compressed)") {
			compressed = m.Content
		}
	}
	if compressed == "" {
		t.Fatal("expected turn 2's messages to include the compressed transcript")
	}
	if !strings.Contains(compressed, "tool: echo(") {
		t.Errorf("expected the compressed transcript to render the echo tool call, got %q", compressed)
	}
}

// TestRunMissionJSONModeRetryBoundedByRetryTurns guards against
// json-mode return-validation failures retrying up to max_turns
// instead of the narrower retry_turns budget (spec 4.4 "Output modes",
// spec 7 "return_validation_failed").
func TestRunMissionJSONModeRetryBoundedByRetryTurns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTurns = 5
	cfg.RetryTurns = 1
	cfg.OutputMode = ModeJSON
	cfg.ReturnSignature = &signature.Signature{Returns: signature.MapType{Fields: []signature.Field{
		{Name: "summary", Type: signature.PrimString},
	}}}
	provider := &scriptedLLM{responses: []CompletionResponse{
		{Content: "```json\n{\"summary\": 5}\n```"},
	}}
	loop := New(cfg, provider)
	step := loop.RunMission(context.Background(), RunOptions{})
	if step.Fail == nil || step.Fail.Reason != ReasonReturnValidationFail {
		t.Fatalf("expected a return_validation_failed terminal failure, got %+v", step.Fail)
	}
	if provider.calls != 2 {
		t.Errorf("expected exactly 2 llm calls (1 retry) bounded by retry_turns, not max_turns=5, got %d", provider.calls)
	}
}

func TestPreviewDoesNotCallProvider(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mission = "summarize the queue"
	loop := New(cfg, &neverCalledLLM{t: t})
	result, err := loop.Preview(RunOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.System == "" {
		t.Error("expected a non-empty system prompt")
	}
	if result.TokenEstimate <= 0 {
		t.Error("expected a positive token estimate")
	}
}
