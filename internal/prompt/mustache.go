package prompt

import (
	"fmt"
	"strings"
)

// UnboundMode controls how Expand treats a placeholder that resolves
// to an absent value (spec 4.4 "Template expansion").
type UnboundMode int

const (
	// LeaveInPlace keeps the literal `{{path}}` text (ptc_lisp mode).
	LeaveInPlace UnboundMode = iota
	// RaiseError returns a placeholder_unbound error (json mode).
	RaiseError
)

// ErrPlaceholderUnbound is returned by Expand when RaiseError mode
// hits an absent placeholder.
type ErrPlaceholderUnbound struct{ Path string }

func (e *ErrPlaceholderUnbound) Error() string {
	return fmt.Sprintf("placeholder_unbound: %s", e.Path)
}

// Lookup resolves a dotted path against whatever data source backs
// the template (the context map, typically). ok=false means absent.
type Lookup func(path string) (value any, ok bool)

// Expand performs a single pass of Mustache-subset expansion: `{{path}}`
// variable substitution (including dotted paths) and `{{#items}}...{{/items}}`
// sections, which repeat the block once per element when items is a
// []any, or once (with the same lookup scope) when items is a truthy
// non-slice value, and are skipped entirely when absent or falsy.
func Expand(tmpl string, lookup Lookup, mode UnboundMode) (string, error) {
	out, _, err := expandSections(tmpl, lookup, mode)
	return out, err
}

func expandSections(tmpl string, lookup Lookup, mode UnboundMode) (string, int, error) {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		open := strings.Index(tmpl[i:], "{{")
		if open < 0 {
			b.WriteString(tmpl[i:])
			break
		}
		b.WriteString(tmpl[i : i+open])
		start := i + open + 2
		close := strings.Index(tmpl[start:], "}}")
		if close < 0 {
			// Unterminated tag: treat the rest as literal.
			b.WriteString(tmpl[i+open:])
			break
		}
		tag := strings.TrimSpace(tmpl[start : start+close])
		afterTag := start + close + 2

		if strings.HasPrefix(tag, "#") {
			name := strings.TrimSpace(tag[1:])
			endTag := "{{/" + name + "}}"
			bodyStart := afterTag
			endIdx := strings.Index(tmpl[bodyStart:], endTag)
			if endIdx < 0 {
				return "", 0, fmt.Errorf("unterminated section %q", name)
			}
			body := tmpl[bodyStart : bodyStart+endIdx]
			rendered, err := renderSection(name, body, lookup, mode)
			if err != nil {
				return "", 0, err
			}
			b.WriteString(rendered)
			i = bodyStart + endIdx + len(endTag)
			continue
		}

		val, ok := lookup(tag)
		if !ok {
			if mode == RaiseError {
				return "", 0, &ErrPlaceholderUnbound{Path: tag}
			}
			b.WriteString("{{" + tag + "}}")
		} else {
			b.WriteString(fmt.Sprint(val))
		}
		i = afterTag
	}
	return b.String(), len(tmpl), nil
}

func renderSection(name, body string, lookup Lookup, mode UnboundMode) (string, error) {
	val, ok := lookup(name)
	if !ok || isFalsy(val) {
		return "", nil
	}
	items, isList := val.([]any)
	if !isList {
		rendered, _, err := expandSections(body, lookup, mode)
		return rendered, err
	}
	var b strings.Builder
	for idx, item := range items {
		scoped := scopedLookup(lookup, name, idx, item)
		rendered, _, err := expandSections(body, scoped, mode)
		if err != nil {
			return "", err
		}
		b.WriteString(rendered)
	}
	return b.String(), nil
}

func scopedLookup(parent Lookup, section string, index int, item any) Lookup {
	return func(path string) (any, bool) {
		if path == "." {
			return item, true
		}
		if m, ok := item.(map[string]any); ok {
			if v, found := m[path]; found {
				return v, true
			}
		}
		return parent(fmt.Sprintf("%s.%d.%s", section, index, path))
	}
}

func isFalsy(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case bool:
		return !t
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// MapLookup builds a Lookup over a nested map[string]any, resolving
// dotted paths component by component.
func MapLookup(data map[string]any) Lookup {
	return func(path string) (any, bool) {
		parts := strings.Split(path, ".")
		var cur any = data
		for _, p := range parts {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			v, found := m[p]
			if !found {
				return nil, false
			}
			cur = v
		}
		return cur, true
	}
}
