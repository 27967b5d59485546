package prompt

import (
	"fmt"
	"strings"
)

// TurnRecord is one completed turn's raw material for compression
// (spec 4.5 "Compression strategies"): the program text, its println
// output, and the resulting value or fail, in REPL-transcript form.
type TurnRecord struct {
	Turn      int
	Program   string
	Prints    []string
	Result    string // rendered return value, empty if none
	Failed    bool
	FailMsg   string
	ToolCalls []string // rendered "name(args) -> result" lines, source order
}

// CompressionConfig bounds what a compacted transcript retains (spec
// 4.5: "caps on retained tool-call count and println count").
type CompressionConfig struct {
	MaxToolCallsPerTurn int
	MaxPrintlnsPerTurn  int
}

func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{MaxToolCallsPerTurn: 10, MaxPrintlnsPerTurn: 20}
}

// Stats are the usage counters compression records (spec 4.5: "Stats
// ... are recorded in usage").
type Stats struct {
	TurnsCompressed     int
	PrintlnsDropped     int
	ToolCallsDropped    int
	ErrorTurnsCollapsed int
}

// Compress coalesces prior turns into a single REPL-transcript-style
// user message, applying the configured per-turn caps. Failed turns
// are collapsed to a one-line summary rather than a full transcript
// entry, matching the teacher's oversized-message handling in
// internal/compaction.SummarizeWithFallback.
func Compress(turns []TurnRecord, cfg CompressionConfig) (string, Stats) {
	var stats Stats
	var b strings.Builder
	b.WriteString("Prior turns (compressed):\n")

	for _, t := range turns {
		stats.TurnsCompressed++
		if t.Failed {
			stats.ErrorTurnsCollapsed++
			fmt.Fprintf(&b, "\n--- turn %d (failed) ---\n%s\n", t.Turn, t.FailMsg)
			continue
		}

		fmt.Fprintf(&b, "\n--- turn %d ---\n", t.Turn)
		fmt.Fprintf(&b, "program:\n%s\n", t.Program)

		prints := t.Prints
		if cfg.MaxPrintlnsPerTurn > 0 && len(prints) > cfg.MaxPrintlnsPerTurn {
			stats.PrintlnsDropped += len(prints) - cfg.MaxPrintlnsPerTurn
			prints = prints[len(prints)-cfg.MaxPrintlnsPerTurn:]
		}
		for _, p := range prints {
			fmt.Fprintf(&b, "> %s\n", p)
		}

		calls := t.ToolCalls
		if cfg.MaxToolCallsPerTurn > 0 && len(calls) > cfg.MaxToolCallsPerTurn {
			stats.ToolCallsDropped += len(calls) - cfg.MaxToolCallsPerTurn
			calls = calls[len(calls)-cfg.MaxToolCallsPerTurn:]
		}
		for _, c := range calls {
			fmt.Fprintf(&b, "tool: %s\n", c)
		}

		if t.Result != "" {
			fmt.Fprintf(&b, "result: %s\n", t.Result)
		}
	}

	return b.String(), stats
}
