package signature

import "testing"

func TestRenderInlineWithParamsAndReturn(t *testing.T) {
	sig := Signature{
		Params:  []Param{{Name: "query", Type: PrimString}, {Name: "limit", Type: PrimInt}},
		Returns: ListType{Elem: PrimString},
	}
	got := RenderInline("search", sig)
	want := "search(query :string, limit :int) -> [:string]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestRenderInlineHidesFirewalledMapFields(t *testing.T) {
	sig := Signature{Returns: MapType{Fields: []Field{
		{Name: "summary", Type: PrimString},
		{Name: "_internal", Type: PrimString},
	}}}
	got := RenderInline("report", sig)
	if got != "report() -> {summary :string}" {
		t.Errorf("unexpected render: %q", got)
	}
}

func TestRenderJSONSchemaPrimitives(t *testing.T) {
	cases := map[Prim]string{
		PrimString: "string",
		PrimInt:    "integer",
		PrimFloat:  "number",
		PrimBool:   "boolean",
		PrimMap:    "object",
	}
	for prim, want := range cases {
		schema := RenderJSONSchema(prim)
		if schema["type"] != want {
			t.Errorf("prim %v: got type %v, want %v", prim, schema["type"], want)
		}
	}
}

func TestRenderJSONSchemaAnyOmitsType(t *testing.T) {
	schema := RenderJSONSchema(PrimAny)
	if _, ok := schema["type"]; ok {
		t.Errorf("expected PrimAny to omit type, got %+v", schema)
	}
}

func TestRenderJSONSchemaListType(t *testing.T) {
	schema := RenderJSONSchema(ListType{Elem: PrimInt})
	if schema["type"] != "array" {
		t.Errorf("expected array type, got %v", schema["type"])
	}
	items, ok := schema["items"].(map[string]any)
	if !ok || items["type"] != "integer" {
		t.Errorf("unexpected items schema: %+v", schema["items"])
	}
}

func TestRenderJSONSchemaMapTypeRequiredAndFirewalled(t *testing.T) {
	m := MapType{Fields: []Field{
		{Name: "summary", Type: PrimString},
		{Name: "score", Type: Optional{Wrapped: PrimFloat}},
		{Name: "_secret", Type: PrimString},
	}}
	schema := RenderJSONSchema(m)
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("expected a properties map, got %+v", schema)
	}
	if _, ok := props["_secret"]; ok {
		t.Error("expected firewalled field to be excluded from JSON schema properties")
	}
	required, ok := schema["required"].([]string)
	if !ok || len(required) != 1 || required[0] != "summary" {
		t.Errorf("expected only 'summary' to be required, got %+v", schema["required"])
	}
}

func TestRenderJSONSchemaOptionalUnwraps(t *testing.T) {
	schema := RenderJSONSchema(Optional{Wrapped: PrimInt})
	if schema["type"] != "integer" {
		t.Errorf("expected optional to render its wrapped type, got %+v", schema)
	}
}
