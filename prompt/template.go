// Package prompt provides {{field}} interpolation for model prompts.
// A template is parsed against the set of fields the caller can supply;
// referencing any other field is a parse error, so a broken custom template
// fails at startup instead of on the first request.
package prompt

import (
	"regexp"
	"sort"
	"strings"

	"github.com/teranos/samplegen/errors"
)

// Template represents a parsed prompt template with named placeholders
type Template struct {
	raw      string
	segments []segment
}

// segment represents either a literal string or a placeholder
type segment struct {
	literal bool
	content string // for literal: the text; for placeholder: the field name
}

// Match {{field}}
var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z_][a-zA-Z0-9_]*)\}\}`)

// Parse creates a Template from a raw template string.
// allowed lists the field names Execute will be given.
func Parse(raw string, allowed ...string) (*Template, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.New("empty template")
	}

	valid := make(map[string]bool, len(allowed))
	for _, f := range allowed {
		valid[f] = true
	}

	t := &Template{raw: raw}
	matches := placeholderPattern.FindAllStringSubmatchIndex(raw, -1)
	lastEnd := 0

	for _, match := range matches {
		// match[0]:match[1] is {{field}}, match[2]:match[3] is field
		start, end := match[0], match[1]
		field := raw[match[2]:match[3]]

		if !valid[field] {
			return nil, errors.Newf("unknown field '%s' in placeholder {{%s}} (allowed: %s)",
				field, field, strings.Join(sortedKeys(valid), ", "))
		}

		if start > lastEnd {
			t.segments = append(t.segments, segment{literal: true, content: raw[lastEnd:start]})
		}
		t.segments = append(t.segments, segment{content: field})
		lastEnd = end
	}

	if lastEnd < len(raw) {
		t.segments = append(t.segments, segment{literal: true, content: raw[lastEnd:]})
	}

	return t, nil
}

// Execute interpolates the template. Every placeholder must have a value.
func (t *Template) Execute(values map[string]string) (string, error) {
	var result strings.Builder
	result.Grow(len(t.raw) * 2)

	for _, seg := range t.segments {
		if seg.literal {
			result.WriteString(seg.content)
			continue
		}
		value, ok := values[seg.content]
		if !ok {
			return "", errors.Newf("no value for {{%s}}", seg.content)
		}
		result.WriteString(value)
	}

	return result.String(), nil
}

// GetPlaceholders returns all placeholder field names in the template, in order
func (t *Template) GetPlaceholders() []string {
	var placeholders []string
	for _, seg := range t.segments {
		if !seg.literal {
			placeholders = append(placeholders, seg.content)
		}
	}
	return placeholders
}

// Raw returns the original template string
func (t *Template) Raw() string {
	return t.raw
}

// ValidateTemplate checks if a template string parses against the allowed fields
func ValidateTemplate(raw string, allowed ...string) error {
	_, err := Parse(raw, allowed...)
	return err
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
