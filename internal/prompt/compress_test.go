package prompt

import (
	"strings"
	"testing"
)

func TestCompressRendersSuccessfulTurn(t *testing.T) {
	turns := []TurnRecord{
		{Turn: 1, Program: "(return 1)", Prints: []string{"hello"}, Result: "1", ToolCalls: []string{`search("x") -> [1 2]`}},
	}
	out, stats := Compress(turns, DefaultCompressionConfig())
	if !strings.Contains(out, "turn 1") {
		t.Error("expected the turn number in the rendered transcript")
	}
	if !strings.Contains(out, "> hello") {
		t.Error("expected the println output to be rendered")
	}
	if !strings.Contains(out, "result: 1") {
		t.Error("expected the result line to be rendered")
	}
	if stats.TurnsCompressed != 1 {
		t.Errorf("expected 1 turn compressed, got %d", stats.TurnsCompressed)
	}
	if stats.ErrorTurnsCollapsed != 0 {
		t.Errorf("expected 0 error turns collapsed, got %d", stats.ErrorTurnsCollapsed)
	}
}

func TestCompressCollapsesFailedTurns(t *testing.T) {
	turns := []TurnRecord{
		{Turn: 2, Failed: true, FailMsg: "boom: something broke"},
	}
	out, stats := Compress(turns, DefaultCompressionConfig())
	if !strings.Contains(out, "turn 2 (failed)") {
		t.Error("expected a collapsed failed-turn marker")
	}
	if !strings.Contains(out, "boom: something broke") {
		t.Error("expected the fail message to be retained")
	}
	if stats.ErrorTurnsCollapsed != 1 {
		t.Errorf("expected 1 error turn collapsed, got %d", stats.ErrorTurnsCollapsed)
	}
}

func TestCompressCapsPrintlnsPerTurn(t *testing.T) {
	prints := make([]string, 5)
	for i := range prints {
		prints[i] = strings.Repeat("p", i+1)
	}
	turns := []TurnRecord{{Turn: 1, Prints: prints}}
	out, stats := Compress(turns, CompressionConfig{MaxPrintlnsPerTurn: 2})
	if stats.PrintlnsDropped != 3 {
		t.Errorf("expected 3 printlns dropped, got %d", stats.PrintlnsDropped)
	}
	if strings.Contains(out, "> p\n") {
		t.Error("expected the earliest println to have been dropped")
	}
	if !strings.Contains(out, "> pppp\n") || !strings.Contains(out, "> ppppp\n") {
		t.Error("expected the most recent printlns to be retained")
	}
}

func TestCompressCapsToolCallsPerTurn(t *testing.T) {
	calls := []string{"a()", "b()", "c()"}
	turns := []TurnRecord{{Turn: 1, ToolCalls: calls}}
	out, stats := Compress(turns, CompressionConfig{MaxToolCallsPerTurn: 1})
	if stats.ToolCallsDropped != 2 {
		t.Errorf("expected 2 tool calls dropped, got %d", stats.ToolCallsDropped)
	}
	if strings.Contains(out, "tool: a()") {
		t.Error("expected the earliest tool call to have been dropped")
	}
	if !strings.Contains(out, "tool: c()") {
		t.Error("expected the most recent tool call to be retained")
	}
}

func TestCompressZeroCapsMeansUnbounded(t *testing.T) {
	turns := []TurnRecord{{Turn: 1, Prints: []string{"a", "b", "c"}}}
	_, stats := Compress(turns, CompressionConfig{})
	if stats.PrintlnsDropped != 0 {
		t.Errorf("expected no printlns dropped with a zero cap, got %d", stats.PrintlnsDropped)
	}
}

func TestDefaultCompressionConfig(t *testing.T) {
	cfg := DefaultCompressionConfig()
	if cfg.MaxToolCallsPerTurn != 10 || cfg.MaxPrintlnsPerTurn != 20 {
		t.Errorf("unexpected default compression config: %+v", cfg)
	}
}
