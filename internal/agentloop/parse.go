package agentloop

import (
	"fmt"
	"regexp"
	"strings"
)

var fencedCodeRe = regexp.MustCompile("(?s)```(?:clojure|lisp)\\s*\\n(.*?)```")

// extractLispProgram implements spec 4.4 step 4's ptc_lisp parse
// rule: concatenate every fenced clojure/lisp block, joining the bodies
// in order with newlines (the loop then reads them as one sequence of
// top-level forms, evaluated in order; no `do` form is built), falling
// back to a raw s-expression starting with `(`.
func extractLispProgram(content string) (string, bool) {
	matches := fencedCodeRe.FindAllStringSubmatch(content, -1)
	if len(matches) > 0 {
		var bodies []string
		for _, m := range matches {
			bodies = append(bodies, strings.TrimSpace(m[1]))
		}
		return strings.Join(bodies, "\n"), true
	}
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "(") {
		return trimmed, true
	}
	return "", false
}

var fencedJSONRe = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")

// extractJSONPayload implements spec 4.4 step 4's json parse rule: a
// fenced json block, else the first balanced top-level object/array
// that respects string escapes.
func extractJSONPayload(content string) (string, bool) {
	if m := fencedJSONRe.FindStringSubmatch(content); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	return scanBalancedJSON(content)
}

func scanBalancedJSON(s string) (string, bool) {
	start := -1
	var openCh, closeCh byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			openCh = s[i]
			if openCh == '{' {
				closeCh = '}'
			} else {
				closeCh = ']'
			}
			break
		}
	}
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			if escaped {
				escaped = false
			} else if c == '\\' {
				escaped = true
			} else if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case openCh:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func formatNoCodeFeedback(mode OutputMode) string {
	if mode == ModeJSON {
		return "no_code_in_response: expected a fenced json block or a top-level JSON object/array; none found."
	}
	return fmt.Sprintf("no_code_in_response: expected a fenced %s block or a raw s-expression starting with '('; none found.", "clojure")
}
