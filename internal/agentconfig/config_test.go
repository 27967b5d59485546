package agentconfig

import (
	"context"
	"strings"
	"testing"
)

const sampleYAML = `
mission: "Summarize the ticket queue"
mission_data:
  queue: support
context:
  values:
    limit: 10
  signature: "{limit :int}"
return_signature: "() -> {summary :string}"
max_turns: 4
retry_turns: 2
turn_budget: 12
memory_limit_bytes: 1048576
memory_strategy: rollback
trace_mode: on_error
tools:
  - name: search_tickets
    signature: "(query :string) -> [:string]"
    description: "Search the ticket queue"
llm_retry:
  max_attempts: 5
  strategy: linear
`

func TestDecodeValid(t *testing.T) {
	f, err := Decode([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Mission != "Summarize the ticket queue" {
		t.Errorf("unexpected mission: %q", f.Mission)
	}
	if f.MaxTurns != 4 {
		t.Errorf("unexpected max_turns: %d", f.MaxTurns)
	}
	if len(f.Tools) != 1 || f.Tools[0].Name != "search_tickets" {
		t.Errorf("unexpected tools: %+v", f.Tools)
	}
	if f.LLMRetry.MaxAttempts != 5 || f.LLMRetry.Strategy != "linear" {
		t.Errorf("unexpected llm_retry: %+v", f.LLMRetry)
	}
}

func TestDecodeRejectsUnknownField(t *testing.T) {
	_, err := Decode([]byte("mission: hi\nbogus_field: true\n"))
	if err == nil {
		t.Fatal("expected an error for an unknown field")
	}
}

func TestDecodeRejectsMultipleDocuments(t *testing.T) {
	_, err := Decode([]byte("mission: one\n---\nmission: two\n"))
	if err == nil {
		t.Fatal("expected an error for multiple documents")
	}
	if !strings.Contains(err.Error(), "single document") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestOptionsRequiresToolBuilder(t *testing.T) {
	f, err := Decode([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := Options(f, ToolBuilders{}); err == nil {
		t.Fatal("expected an error for a tool with no builder")
	}
}

func TestOptionsBuildsWithBuilder(t *testing.T) {
	f, err := Decode([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	builders := ToolBuilders{
		"search_tickets": func(ctx context.Context, args map[string]any) (any, error) { return []string{"t1"}, nil },
	}
	opts, err := Options(f, builders)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opts) == 0 {
		t.Fatal("expected at least one option")
	}
}

func TestOptionsAllowsCatalogOnlyWithoutBuilder(t *testing.T) {
	f, err := Decode([]byte(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.Tools[0].CatalogOnly = true
	if _, err := Options(f, ToolBuilders{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
