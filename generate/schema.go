package generate

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"

	"github.com/teranos/samplegen/errors"
)

// Schema is a caller-supplied JSON document used as a shape template.
// Only its validity as JSON is checked.
type Schema struct {
	doc json.RawMessage
}

// ParseSchema validates a JSON schema document
func ParseSchema(data []byte) (Schema, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Schema{}, errors.NewInvalidRequestError("sample schema is empty")
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return Schema{}, errors.NewInvalidRequestError("sample schema must not be null")
	}

	var probe interface{}
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return Schema{}, errors.WrapInvalidRequest(err, "sample schema is not valid JSON")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, trimmed); err != nil {
		return Schema{}, errors.WrapInvalidRequest(err, "sample schema is not valid JSON")
	}
	return Schema{doc: compact.Bytes()}, nil
}

// ParseSchemaYAML converts a YAML document into a JSON schema
func ParseSchemaYAML(data []byte) (Schema, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Schema{}, errors.WrapInvalidRequest(err, "sample schema is not valid YAML")
	}
	if doc == nil {
		return Schema{}, errors.NewInvalidRequestError("sample schema is empty")
	}

	// Non-string map keys have no JSON form and fail here
	out, err := json.Marshal(doc)
	if err != nil {
		return Schema{}, errors.WrapInvalidRequest(err, "sample schema cannot be represented as JSON")
	}
	return ParseSchema(out)
}

// IsZero reports whether the schema was never parsed
func (s Schema) IsZero() bool { return len(s.doc) == 0 }

// JSON returns the compact document
func (s Schema) JSON() json.RawMessage { return s.doc }

// Indented renders the document with two-space indentation for prompts
func (s Schema) Indented() string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, s.doc, "", "  "); err != nil {
		return string(s.doc)
	}
	return buf.String()
}

// MarshalJSON emits the document unchanged
func (s Schema) MarshalJSON() ([]byte, error) {
	if s.IsZero() {
		return []byte("null"), nil
	}
	return s.doc, nil
}

// UnmarshalJSON parses the document with ParseSchema validation
func (s *Schema) UnmarshalJSON(data []byte) error {
	parsed, err := ParseSchema(data)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
