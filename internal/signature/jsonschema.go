package signature

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CompileJSONSchema compiles the rendered JSON-Schema fragment for a
// return type so json-output-mode responses can be schema-checked
// before the signature's own shallower Validate runs (SPEC_FULL.md
// DOMAIN STACK: jsonschema/v5 wired into the signature system).
func CompileJSONSchema(t Type) (*jsonschema.Schema, error) {
	fragment := RenderJSONSchema(t)
	raw, err := json.Marshal(fragment)
	if err != nil {
		return nil, fmt.Errorf("marshal json schema fragment: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	const resourceName = "nexus-ptc://return-type.json"
	if err := compiler.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add json schema resource: %w", err)
	}
	return compiler.Compile(resourceName)
}

// ValidateJSON validates a raw JSON document (a json-output-mode
// response) against the compiled schema, returning a *jsonschema.ValidationError
// wrapped as a plain error on mismatch.
func ValidateJSON(schema *jsonschema.Schema, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return schema.Validate(doc)
}
