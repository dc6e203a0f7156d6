package generate

import (
	_ "embed"
	"os"
	"strconv"

	"github.com/teranos/samplegen/am"
	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/prompt"
)

// Template fields available to instruction templates
const (
	FieldRecordCount = "record_count"
	FieldStartingID  = "starting_id"
	FieldSchema      = "schema"
)

//go:embed templates/instructions.txt
var defaultInstructions string

// Llama 3 chat markers around the user instructions. The assistant header is
// left open so the model's reply begins with the array.
const (
	llama3Preamble = "<|start_header_id|>system<|end_header_id|>\n\n" +
		"You are a precise JSON data generator. You must follow instructions exactly.\n\n" +
		"<|eot_id|><|start_header_id|>user<|end_header_id|>\n\n"
	llama3Closing = "\n<|eot_id|><|start_header_id|>assistant<|end_header_id|>\n\n"

	plainPreamble = "You are a precise JSON data generator. You must follow instructions exactly.\n\n"
)

// PromptBuilder renders batch prompts. It holds no per-call state.
type PromptBuilder struct {
	tmpl   *prompt.Template
	format string
}

// NewPromptBuilder parses instructions (empty = built-in) for the given format
func NewPromptBuilder(format, instructions string) (*PromptBuilder, error) {
	switch format {
	case "":
		format = am.PromptFormatLlama3
	case am.PromptFormatLlama3, am.PromptFormatPlain:
	default:
		return nil, errors.NewConfigurationError("unknown prompt format %q", format)
	}
	if instructions == "" {
		instructions = defaultInstructions
	}

	tmpl, err := prompt.Parse(instructions, FieldRecordCount, FieldStartingID, FieldSchema)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "parse prompt template")
	}
	return &PromptBuilder{tmpl: tmpl, format: format}, nil
}

// LoadPromptBuilder reads custom instructions from path; an empty path uses the built-in ones
func LoadPromptBuilder(format, path string) (*PromptBuilder, error) {
	if path == "" {
		return NewPromptBuilder(format, "")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfiguration(err, "read prompt template "+path)
	}
	b, err := NewPromptBuilder(format, string(raw))
	if err != nil {
		return nil, errors.WithDetailf(err, "template file: %s", path)
	}
	return b, nil
}

// Format returns the chat format the builder renders
func (b *PromptBuilder) Format() string { return b.format }

// Build renders the prompt for one batch
func (b *PromptBuilder) Build(startingID, recordCount int, schema Schema) (string, error) {
	body, err := b.tmpl.Execute(map[string]string{
		FieldRecordCount: strconv.Itoa(recordCount),
		FieldStartingID:  strconv.Itoa(startingID),
		FieldSchema:      schema.Indented(),
	})
	if err != nil {
		return "", errors.Wrap(err, "render prompt")
	}

	if b.format == am.PromptFormatPlain {
		return plainPreamble + body, nil
	}
	return llama3Preamble + body + llama3Closing, nil
}
