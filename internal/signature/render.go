package signature

import "strings"

// RenderInline renders the human-readable tool schema used inside
// system prompts: `tool_name(param type, ...) -> return_type`, with
// firewalled fields hidden (spec 4.1 "Schema rendering" #1).
func RenderInline(name string, sig Signature) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('(')
	for i, p := range sig.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		b.WriteByte(' ')
		b.WriteString(renderTypeInline(p.Type))
	}
	b.WriteString(") -> ")
	b.WriteString(renderTypeInline(sig.Returns))
	return b.String()
}

func renderTypeInline(t Type) string {
	switch tt := t.(type) {
	case MapType:
		var b strings.Builder
		b.WriteByte('{')
		first := true
		for _, f := range tt.Fields {
			if f.Firewalled() {
				continue
			}
			if !first {
				b.WriteString(", ")
			}
			first = false
			b.WriteString(f.Name)
			b.WriteByte(' ')
			b.WriteString(renderTypeInline(f.Type))
		}
		b.WriteByte('}')
		return b.String()
	case ListType:
		return "[" + renderTypeInline(tt.Elem) + "]"
	case Optional:
		return renderTypeInline(tt.Wrapped) + "?"
	default:
		return t.String()
	}
}

// RenderJSONSchema renders a JSON-Schema fragment for json-output
// mode (spec 4.1 "Schema rendering" #2): `_`-prefixed fields omitted,
// required fields are the non-optional fields, `any` becomes absence
// of `type`.
func RenderJSONSchema(t Type) map[string]any {
	switch tt := t.(type) {
	case Prim:
		switch tt {
		case PrimString, PrimKeyword:
			return map[string]any{"type": "string"}
		case PrimInt:
			return map[string]any{"type": "integer"}
		case PrimFloat:
			return map[string]any{"type": "number"}
		case PrimBool:
			return map[string]any{"type": "boolean"}
		case PrimMap:
			return map[string]any{"type": "object"}
		case PrimAny:
			return map[string]any{}
		default:
			return map[string]any{}
		}
	case ListType:
		return map[string]any{
			"type":  "array",
			"items": RenderJSONSchema(tt.Elem),
		}
	case MapType:
		props := map[string]any{}
		var required []string
		for _, f := range tt.Fields {
			if f.Firewalled() {
				continue
			}
			props[f.Name] = RenderJSONSchema(f.Type)
			if _, isOpt := f.Type.(Optional); !isOpt {
				required = append(required, f.Name)
			}
		}
		schema := map[string]any{
			"type":       "object",
			"properties": props,
		}
		if len(required) > 0 {
			schema["required"] = required
		}
		return schema
	case Optional:
		return RenderJSONSchema(tt.Wrapped)
	default:
		return map[string]any{}
	}
}
