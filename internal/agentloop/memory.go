package agentloop

import "github.com/nexus-ptc/ptc/internal/lisp"

// applyMemoryContract implements the second half of spec 4.4 step 8,
// layered on top of the interpreter's own top-level (def ...)
// bindings: callers pass a memory base that already reflects this
// turn's defs (lisp.Step.Memory), and this function folds in the
// turn's final expression on top of that base. If that value is a
// map without a :return key, merge all its keys into memory. If it
// is a map with a :return key, the rest of the map merges into memory
// and the :return value is the turn result. Otherwise the base memory
// passes through unchanged. It returns the candidate next memory and
// the resolved turn result (nil result means "no explicit result this
// turn" — distinct from an explicit nil return value, which the
// caller tracks separately via hasResult).
func applyMemoryContract(memory *lisp.Map, turnValue lisp.Value) (nextMemory *lisp.Map, result lisp.Value, hasResult bool) {
	m, ok := turnValue.(*lisp.Map)
	if !ok {
		return memory, nil, false
	}
	returnKey := lisp.Keyword("return")
	rv, hasReturn := m.Get(returnKey)
	next := memory
	if next == nil {
		next = lisp.NewMap()
	}
	m.Range(func(k, v lisp.Value) bool {
		if hasReturn {
			if kw, isKw := k.(lisp.Keyword); isKw && kw == "return" {
				return true
			}
		}
		next = next.Set(k, v)
		return true
	})
	if hasReturn {
		return next, rv, true
	}
	return next, nil, false
}

// estimateMemoryBytes approximates the external size of memory for
// the deep-size check in spec 4.4 step 8 by summing the printed
// lengths of its keys and values. It is applied only at turn
// boundaries; a turn's intermediate allocations are not measured
// (documented gap, see DESIGN.md Open Question 1).
func estimateMemoryBytes(m *lisp.Map) int64 {
	if m == nil {
		return 0
	}
	var total int64
	m.Range(func(k, v lisp.Value) bool {
		total += int64(len(k.String())) + int64(len(v.String()))
		return true
	})
	return total
}
