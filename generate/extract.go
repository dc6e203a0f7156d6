package generate

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/teranos/samplegen/am"
	"github.com/teranos/samplegen/errors"
)

// ErrBatchExtraction marks every failure to pull records out of a model
// response. These failures skip the batch and never fail the request.
var ErrBatchExtraction = errors.New("batch extraction failed")

// Extraction failures, each returned marked with ErrBatchExtraction
var (
	ErrNoArrayStart    = errors.New("no array start found in the response")
	ErrUnbalancedArray = errors.New("response is not a properly formatted JSON array")
	ErrMalformedJSON   = errors.New("bracketed span is not valid JSON")
	ErrNotArray        = errors.New("bracketed span is not a JSON array")
)

// IsBatchExtractionError reports whether err is a recoverable extraction failure
func IsBatchExtractionError(err error) bool {
	return err != nil && errors.Is(err, ErrBatchExtraction)
}

func extractionError(err error) error {
	return errors.Mark(err, ErrBatchExtraction)
}

// ScanMode selects how brackets are counted while locating the array
type ScanMode int

const (
	// ScanStringAware ignores brackets inside JSON string literals
	ScanStringAware ScanMode = iota
	// ScanLegacy counts every bracket character
	ScanLegacy
)

// String returns the config spelling of the mode
func (m ScanMode) String() string {
	if m == ScanLegacy {
		return am.ScanModeLegacy
	}
	return am.ScanModeStringAware
}

// ParseScanMode maps generation.scan_mode to a ScanMode
func ParseScanMode(s string) (ScanMode, error) {
	switch s {
	case "", am.ScanModeStringAware:
		return ScanStringAware, nil
	case am.ScanModeLegacy:
		return ScanLegacy, nil
	default:
		return 0, errors.NewConfigurationError("unknown scan mode %q", s)
	}
}

// Locate returns the first balanced top-level bracket span of text, trimmed.
// The span starts at the first '[' and ends where the depth first returns to zero.
func Locate(text string, mode ScanMode) (string, error) {
	start := strings.IndexByte(text, '[')
	if start < 0 {
		return "", extractionError(ErrNoArrayStart)
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = mode == ScanStringAware
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return strings.TrimSpace(text[start : i+1]), nil
			}
		}
	}

	return "", extractionError(ErrUnbalancedArray)
}

// ParseArray parses span as a JSON array and returns its elements in order
func ParseArray(span string) ([]json.RawMessage, error) {
	data := bytes.TrimSpace([]byte(span))
	if !json.Valid(data) {
		var probe interface{}
		err := json.Unmarshal(data, &probe)
		if err == nil {
			err = errors.New("invalid JSON")
		}
		return nil, extractionError(errors.WithSecondaryError(ErrMalformedJSON, err))
	}
	if len(data) == 0 || data[0] != '[' {
		return nil, extractionError(ErrNotArray)
	}

	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, extractionError(errors.WithSecondaryError(ErrMalformedJSON, err))
	}
	if records == nil {
		records = []json.RawMessage{}
	}
	return records, nil
}

// Extract locates and parses the JSON array in a model response.
// On failure the slice is nil and the error is marked ErrBatchExtraction.
func Extract(text string, mode ScanMode) ([]json.RawMessage, error) {
	span, err := Locate(text, mode)
	if err != nil {
		return nil, err
	}
	return ParseArray(span)
}
