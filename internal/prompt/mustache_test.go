package prompt

import "testing"

func TestExpandSubstitutesDottedPath(t *testing.T) {
	data := map[string]any{"user": map[string]any{"name": "Ada"}}
	out, err := Expand("hello {{user.name}}", MapLookup(data), LeaveInPlace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello Ada" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExpandLeavesUnboundPlaceholderInPlace(t *testing.T) {
	out, err := Expand("hello {{missing}}", MapLookup(map[string]any{}), LeaveInPlace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hello {{missing}}" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExpandRaisesOnUnboundPlaceholder(t *testing.T) {
	_, err := Expand("hello {{missing}}", MapLookup(map[string]any{}), RaiseError)
	if err == nil {
		t.Fatal("expected an error for an unbound placeholder")
	}
	unbound, ok := err.(*ErrPlaceholderUnbound)
	if !ok {
		t.Fatalf("expected *ErrPlaceholderUnbound, got %T", err)
	}
	if unbound.Path != "missing" {
		t.Errorf("unexpected path: %q", unbound.Path)
	}
}

func TestExpandRepeatsSectionOverList(t *testing.T) {
	data := map[string]any{"items": []any{
		map[string]any{"name": "a"},
		map[string]any{"name": "b"},
	}}
	out, err := Expand("{{#items}}[{{name}}]{{/items}}", MapLookup(data), LeaveInPlace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "[a][b]" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExpandSkipsSectionWhenFalsy(t *testing.T) {
	data := map[string]any{"items": []any{}}
	out, err := Expand("before{{#items}}[x]{{/items}}after", MapLookup(data), LeaveInPlace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "beforeafter" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExpandRendersNonListTruthySectionOnce(t *testing.T) {
	data := map[string]any{"flag": true}
	out, err := Expand("{{#flag}}shown{{/flag}}", MapLookup(data), LeaveInPlace)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "shown" {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestExpandUnterminatedSectionIsError(t *testing.T) {
	_, err := Expand("{{#items}}oops", MapLookup(map[string]any{}), LeaveInPlace)
	if err == nil {
		t.Fatal("expected an error for an unterminated section")
	}
}

func TestMapLookupMissingPath(t *testing.T) {
	_, ok := MapLookup(map[string]any{"a": 1})("b.c")
	if ok {
		t.Error("expected a missing nested path to resolve absent")
	}
}
