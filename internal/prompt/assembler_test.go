package prompt

import (
	"strings"
	"testing"

	"github.com/nexus-ptc/ptc/internal/lisp"
	"github.com/nexus-ptc/ptc/internal/signature"
)

func buildAssembler() *Assembler {
	return &Assembler{
		RolesAndRules: "## Role\nBe helpful.",
		LanguageSpecs: map[string]string{
			"single_shot": "## Language\nsingle shot rules",
			"multi_turn":  "## Language\nmulti turn rules",
		},
	}
}

func TestBuildRendersSectionsInOrder(t *testing.T) {
	ctx := lisp.NewMap().Set(lisp.Keyword("limit"), lisp.Int(10))
	sig, err := signature.Parse(":int")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out, err := (&Assembler{RolesAndRules: "## Role\nBe helpful.", LanguageSpecs: map[string]string{"single_shot": "## Language\nrules"}}).Build(Request{
		Context:         ctx,
		Tools:           []ToolDescriptor{{Name: "search", Signature: signature.Signature{Returns: signature.ListType{Elem: signature.PrimString}}}},
		LanguageSpecKey: "single_shot",
		ReturnType:      sig.Returns,
		Mission:         "find the answer",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order := []string{"## Role", "## Context", "## Tools", "## Language", "## Expected output", "## Output format", "find the answer"}
	lastIdx := -1
	for _, marker := range order {
		idx := strings.Index(out, marker)
		if idx < 0 {
			t.Fatalf("expected section %q in rendered prompt:\n%s", marker, out)
		}
		if idx < lastIdx {
			t.Fatalf("section %q appeared out of order", marker)
		}
		lastIdx = idx
	}
}

func TestBuildTruncatesAtMaxPromptChars(t *testing.T) {
	a := buildAssembler()
	a.MaxPromptChars = 50
	out, err := a.Build(Request{LanguageSpecKey: "single_shot", Mission: strings.Repeat("x", 500)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasSuffix(out, "[truncated]") {
		t.Error("expected truncated prompt to end with the truncation marker")
	}
}

func TestBuildJSONModeRendersSchemaAndBoilerplate(t *testing.T) {
	a := buildAssembler()
	sig, err := signature.Parse("{summary :string}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := a.Build(Request{LanguageSpecKey: "multi_turn", ReturnType: sig.Returns, JSONMode: true, Mission: "summarize"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "JSON Schema") {
		t.Error("expected a JSON Schema expected-output section")
	}
	if !strings.Contains(out, "fenced `json` block") {
		t.Error("expected JSON output format boilerplate")
	}
}

func TestBuildRaisesOnUnboundMissionPlaceholderInJSONMode(t *testing.T) {
	a := buildAssembler()
	_, err := a.Build(Request{LanguageSpecKey: "multi_turn", JSONMode: true, Mission: "look up {{missing}}"})
	if err == nil {
		t.Fatal("expected an error for an unbound placeholder in json mode")
	}
}

func TestBuildLeavesUnboundMissionPlaceholderInLispMode(t *testing.T) {
	a := buildAssembler()
	out, err := a.Build(Request{LanguageSpecKey: "single_shot", Mission: "look up {{missing}}"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "{{missing}}") {
		t.Error("expected the literal placeholder to survive lisp mode expansion")
	}
}

func TestRenderDataInventoryFirewallsUnderscorePrefixedFields(t *testing.T) {
	ctx := lisp.NewMap().Set(lisp.Keyword("_secret"), lisp.Str("topsecret"))
	out := renderDataInventory(ctx, nil, nil)
	if strings.Contains(out, "topsecret") {
		t.Error("expected firewalled field value to not leak into the prompt")
	}
	if !strings.Contains(out, "<Firewalled>") {
		t.Error("expected a firewalled marker for the underscore-prefixed field")
	}
}

func TestRenderDataInventoryEmptyContext(t *testing.T) {
	out := renderDataInventory(nil, nil, nil)
	if out != "## Context\n(none)" {
		t.Errorf("unexpected empty-context rendering: %q", out)
	}
}

func TestRenderToolSchemasSeparatesCatalogOnly(t *testing.T) {
	tools := []ToolDescriptor{
		{Name: "callable", Signature: signature.Signature{Returns: signature.PrimString}},
		{Name: "planning_only", Signature: signature.Signature{Returns: signature.PrimString}, CatalogOnly: true},
	}
	out := renderToolSchemas(tools)
	if !strings.Contains(out, "callable") {
		t.Error("expected the callable tool to be listed")
	}
	if !strings.Contains(out, "For planning only (not callable):") {
		t.Error("expected a catalog-only section header")
	}
	callableIdx := strings.Index(out, "callable")
	planningIdx := strings.Index(out, "For planning only")
	if callableIdx > planningIdx {
		t.Error("expected callable tools to render before the catalog-only section")
	}
}

func TestRenderExpectedOutputNilReturnType(t *testing.T) {
	if got := renderExpectedOutput(nil, false); got != "## Expected output\n(none declared)" {
		t.Errorf("unexpected rendering for nil return type: %q", got)
	}
}
