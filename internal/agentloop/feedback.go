package agentloop

import (
	"fmt"
	"strings"

	"github.com/nexus-ptc/ptc/internal/lisp"
)

// buildPerTurnFeedback renders the user message fed back after a
// non-terminal turn (spec 4.4 "Per-turn feedback"): println output
// (truncated), a hint of memory symbols in scope, and a boundary
// reminder that warns when exactly one turn remains.
func buildPerTurnFeedback(prints []string, memory *lisp.Map, remainingTurns int, maxChars int) string {
	var b strings.Builder

	b.WriteString("Output:\n")
	printed := strings.Join(prints, "\n")
	if maxChars > 0 && len(printed) > maxChars {
		printed = printed[:maxChars] + "\n[truncated]"
	}
	if printed == "" {
		b.WriteString("(none — remember to println what you want to inspect)")
	} else {
		b.WriteString(printed)
	}
	b.WriteString("\n\n")

	if memory != nil && memory.Len() > 0 {
		b.WriteString("Memory symbols in scope: ")
		keys := memory.SortedKeys()
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = "mem/" + keyName(k)
		}
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Turns remaining: %d.", remainingTurns)
	if remainingTurns == 1 {
		b.WriteString(" FINAL TURN — you must call `return` or `fail`.")
	}
	return b.String()
}

func keyName(k lisp.Value) string {
	switch t := k.(type) {
	case lisp.Keyword:
		return string(t)
	case lisp.Str:
		return string(t)
	default:
		return t.String()
	}
}

// recoverableFeedback renders the structured error message fed back
// as the next user turn for a recoverable fault (spec 7 "Policy").
func recoverableFeedback(f *Fault) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error (%s): %s", f.Reason, f.Message)
	if f.Op != "" {
		fmt.Fprintf(&b, " (in %s)", f.Op)
	}
	return b.String()
}
