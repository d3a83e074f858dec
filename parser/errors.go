package parser

import (
	"errors"
	"fmt"
)

// ErrStructural is matched by every ParseError via errors.Is
var ErrStructural = errors.New("structural parse failure")

// Reason identifies why a tag-stream was rejected
type Reason string

const (
	ReasonNoClosingBracket   Reason = "no_closing_bracket"
	ReasonHeaderTooShort     Reason = "header_too_short"
	ReasonNotMsgHeader       Reason = "not_msg_header"
	ReasonMissingStartMarker Reason = "missing_start_marker"
)

// ParseError represents a structural failure that rejects the whole input
type ParseError struct {
	Reason  Reason
	Message string
	Context string
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("parse error: %s (context: %s)", e.Message, e.Context)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

// Is reports ErrStructural as a match so callers need not know the concrete type
func (e *ParseError) Is(target error) bool {
	return target == ErrStructural
}

// ReasonOf returns the Reason of a ParseError in err's chain, or "" if there is none
func ReasonOf(err error) Reason {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Reason
	}
	return ""
}

func newParseError(reason Reason, message, context string) *ParseError {
	return &ParseError{Reason: reason, Message: message, Context: truncate(context, 64)}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
