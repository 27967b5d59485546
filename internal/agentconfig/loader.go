package agentconfig

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads and decodes an agent definition file (spec 3 "Agent"),
// grounded on the teacher's internal/config.decodeRawConfig: strict
// field matching so a misspelled key is a load-time error, not a
// silently-ignored default.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read agent config %s: %w", path, err)
	}
	return Decode(data)
}

// Decode parses raw YAML bytes into a File.
func Decode(data []byte) (*File, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	var f File
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse agent config: %w", err)
	}
	if err := decoder.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("parse agent config: expected a single document")
	}
	return &f, nil
}
