// Package prompt assembles the system prompt and compresses turn
// history for the agent loop (spec 4.5), grounded on the teacher's
// template-expansion helpers and internal/compaction's token-budget
// machinery.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nexus-ptc/ptc/internal/lisp"
	"github.com/nexus-ptc/ptc/internal/signature"
)

// ToolDescriptor is one entry in the tool/tool_catalog schema section.
type ToolDescriptor struct {
	Name        string
	Signature   signature.Signature
	Description string
	CatalogOnly bool
}

// FieldDescriptions supplies the optional one-line description for
// each data-inventory entry (spec 4.5 section 2).
type FieldDescriptions map[string]string

// Assembler renders the seven stable-order system prompt sections.
type Assembler struct {
	RolesAndRules   string
	LanguageSpecs   map[string]string // keyed "single_shot" / "multi_turn" / caller override name
	MaxPromptChars  int
}

// Request carries everything Build needs for one turn's prompt.
type Request struct {
	Context           *lisp.Map
	ContextSignature  *signature.MapType // optional, nil means infer shallowly
	FieldDescriptions FieldDescriptions
	Tools             []ToolDescriptor
	LanguageSpecKey   string // "single_shot", "multi_turn", or a custom key
	ReturnType        signature.Type // nil when there is none (fail-only agent)
	JSONMode          bool
	Mission           string
	MissionData       map[string]any
}

// Build renders the full system prompt in the seven stable sections
// (spec 4.5 "Structure of the system prompt").
func (a *Assembler) Build(req Request) (string, error) {
	var sections []string

	sections = append(sections, a.RolesAndRules)
	sections = append(sections, renderDataInventory(req.Context, req.ContextSignature, req.FieldDescriptions))
	sections = append(sections, renderToolSchemas(req.Tools))

	spec, ok := a.LanguageSpecs[req.LanguageSpecKey]
	if !ok {
		spec = ""
	}
	sections = append(sections, spec)

	sections = append(sections, renderExpectedOutput(req.ReturnType, req.JSONMode))
	sections = append(sections, renderOutputFormatBoilerplate(req.JSONMode))

	mode := LeaveInPlace
	if req.JSONMode {
		mode = RaiseError
	}
	mission, err := Expand(req.Mission, MapLookup(req.MissionData), mode)
	if err != nil {
		return "", err
	}
	sections = append(sections, mission)

	full := strings.Join(sections, "\n\n")
	if a.MaxPromptChars > 0 && len(full) > a.MaxPromptChars {
		full = full[:a.MaxPromptChars] + "\n[truncated]"
	}
	return full, nil
}

func renderDataInventory(ctx *lisp.Map, sig *signature.MapType, descs FieldDescriptions) string {
	if ctx == nil || ctx.Len() == 0 {
		return "## Context\n(none)"
	}
	declared := map[string]signature.Type{}
	if sig != nil {
		for _, f := range sig.Fields {
			declared[f.Name] = f.Type
		}
	}
	var b strings.Builder
	b.WriteString("## Context\n")
	keys := ctx.SortedKeys()
	for _, k := range keys {
		name := keyDisplayName(k)
		v, _ := ctx.Get(k)
		typeName := "any"
		firewalled := strings.HasPrefix(name, "_")
		if t, ok := declared[name]; ok {
			typeName = t.String()
		} else {
			typeName = inferShallow(v)
		}
		line := fmt.Sprintf("- %s: %s", name, typeName)
		if desc, ok := descs[name]; ok && desc != "" {
			line += " — " + desc
		}
		sample := sampleOf(v, firewalled)
		line += fmt.Sprintf(" (e.g. %s)", sample)
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func keyDisplayName(k lisp.Value) string {
	switch t := k.(type) {
	case lisp.Keyword:
		return string(t)
	case lisp.Str:
		return string(t)
	default:
		return t.String()
	}
}

func inferShallow(v lisp.Value) string {
	switch v.(type) {
	case lisp.Str:
		return "string"
	case lisp.Int:
		return "int"
	case lisp.Float:
		return "float"
	case lisp.Bool:
		return "bool"
	case lisp.Keyword:
		return "keyword"
	case lisp.List, lisp.Vector:
		return "list"
	case *lisp.Map:
		return "map"
	case *lisp.Set:
		return "set"
	default:
		return "any"
	}
}

func sampleOf(v lisp.Value, firewalled bool) string {
	if firewalled {
		return "<Firewalled>"
	}
	s := v.String()
	const maxLen = 80
	if len(s) > maxLen {
		s = s[:maxLen] + "..."
	}
	return s
}

func renderToolSchemas(tools []ToolDescriptor) string {
	var callable, catalogOnly []ToolDescriptor
	for _, t := range tools {
		if t.CatalogOnly {
			catalogOnly = append(catalogOnly, t)
		} else {
			callable = append(callable, t)
		}
	}
	var b strings.Builder
	b.WriteString("## Tools\n")
	for _, t := range callable {
		line := signature.RenderInline(t.Name, t.Signature)
		if t.Description != "" {
			line += " — " + t.Description
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	if len(catalogOnly) > 0 {
		b.WriteString("\nFor planning only (not callable):\n")
		for _, t := range catalogOnly {
			line := signature.RenderInline(t.Name, t.Signature)
			if t.Description != "" {
				line += " — " + t.Description
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderExpectedOutput(ret signature.Type, jsonMode bool) string {
	if ret == nil {
		return "## Expected output\n(none declared)"
	}
	if jsonMode {
		schema := signature.RenderJSONSchema(ret)
		return "## Expected output (JSON Schema)\n" + renderJSONInline(schema)
	}
	return "## Expected output\n" + ret.String()
}

func renderJSONInline(m map[string]any) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: %v", k, m[k])
	}
	b.WriteByte('}')
	return b.String()
}

func renderOutputFormatBoilerplate(jsonMode bool) string {
	if jsonMode {
		return "## Output format\nRespond with exactly one fenced `json` block, nothing else."
	}
	return "## Output format\nRespond with exactly one fenced `clojure` block, nothing else."
}
