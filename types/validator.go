package types

import (
	"strings"
	"unicode/utf8"

	"royal/batch"
)

// RequestValidator checks incoming parse requests before they reach the parser
type RequestValidator interface {
	// ValidateParse performs basic checks on a single-message request
	ValidateParse(req ParseRequest) ValidationResult

	// NormalizeCharset resolves common charset spellings to the name the decoder expects
	NormalizeCharset(name string) (normalized string, found bool)
}

// ValidationResult represents the outcome of request validation
type ValidationResult struct {
	IsValid  bool
	Problems []string
}

// Message joins the problems into one line for an error response
func (r ValidationResult) Message() string {
	return strings.Join(r.Problems, "; ")
}

// StandardRequestValidator is the default implementation of RequestValidator
type StandardRequestValidator struct {
	maxInputBytes int
}

// NewStandardRequestValidator creates a validator limiting inputs to maxInputBytes (0 means no limit)
func NewStandardRequestValidator(maxInputBytes int) *StandardRequestValidator {
	return &StandardRequestValidator{maxInputBytes: maxInputBytes}
}

// ValidateParse rejects empty, oversized or non-UTF-8 input
func (v *StandardRequestValidator) ValidateParse(req ParseRequest) ValidationResult {
	result := ValidationResult{Problems: []string{}}

	if strings.TrimSpace(req.Input) == "" {
		result.Problems = append(result.Problems, "input is required")
	}
	if v.maxInputBytes > 0 && len(req.Input) > v.maxInputBytes {
		result.Problems = append(result.Problems, "input exceeds maximum size")
	}
	if !utf8.ValidString(req.Input) {
		result.Problems = append(result.Problems, "input is not valid UTF-8")
	}

	result.IsValid = len(result.Problems) == 0
	return result
}

// NormalizeCharset resolves charset names through the same alias table the
// script decoder uses. An empty name stays empty so callers can apply their default.
func (v *StandardRequestValidator) NormalizeCharset(name string) (normalized string, found bool) {
	return batch.NormalizeCharset(name)
}
