// Package parser provides parsing of bracketed-tag dialogue scripts.
// It turns a single tag-stream such as
//
//	[msg MSG_BTTL_2 [Morgana]][s][f 4 10 65535 0 0]Hello world![f 1 3 65535][w][e]
//
// into a Message: header (box type, message ID, speaker), plain-text content,
// presentation flags and the optional confidant points award.
package parser

import (
	"fmt"
	"strings"
)

// BoxType represents the UI presentation style of a dialogue box
type BoxType int

const (
	BoxHelp BoxType = iota
	BoxMessage
	BoxMind
	BoxSystem
	BoxTrivia
	BoxDevil
	BoxProgress
	BoxUnknown
)

// boxTypePrefixes maps the 3-character message ID prefix to its box type.
// Lookup is case-sensitive.
var boxTypePrefixes = map[string]BoxType{
	"HLP": BoxHelp,
	"MSG": BoxMessage,
	"MND": BoxMind,
	"SYS": BoxSystem,
	"TRV": BoxTrivia,
	"DVL": BoxDevil,
	"PFM": BoxProgress,
}

// String returns the string representation of the BoxType
func (b BoxType) String() string {
	switch b {
	case BoxHelp:
		return "Help"
	case BoxMessage:
		return "Message"
	case BoxMind:
		return "Mind"
	case BoxSystem:
		return "System"
	case BoxTrivia:
		return "Trivia"
	case BoxDevil:
		return "Devil"
	case BoxProgress:
		return "Progress"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler so JSON and YAML output use the name
func (b BoxType) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (b *BoxType) UnmarshalText(text []byte) error {
	*b = ParseBoxTypeName(string(text))
	return nil
}

// BoxTypeFromID derives the box type from the first 3 characters of a message ID.
// Unrecognized or short prefixes yield BoxUnknown.
func BoxTypeFromID(messageID string) BoxType {
	if len(messageID) < 3 {
		return BoxUnknown
	}
	if boxType, ok := boxTypePrefixes[messageID[:3]]; ok {
		return boxType
	}
	return BoxUnknown
}

// ParseBoxTypeName converts a box type name (as produced by String) back to a BoxType
// with fallback to BoxUnknown
func ParseBoxTypeName(name string) BoxType {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "help":
		return BoxHelp
	case "message":
		return BoxMessage
	case "mind":
		return BoxMind
	case "system":
		return BoxSystem
	case "trivia":
		return BoxTrivia
	case "devil":
		return BoxDevil
	case "progress":
		return BoxProgress
	default:
		return BoxUnknown
	}
}

// MessageHeader is the parsed leading [msg ...] tag
type MessageHeader struct {
	BoxType   BoxType `json:"box_type" yaml:"box_type"`
	MessageID string  `json:"message_id" yaml:"message_id"`
	Character *string `json:"character,omitempty" yaml:"character,omitempty"`
}

// CharacterName returns the speaker name, or "" when the message has none
func (h MessageHeader) CharacterName() string {
	if h.Character == nil {
		return ""
	}
	return *h.Character
}

// MessageFlags holds presentation flags set by content tags
type MessageFlags struct {
	HasLipsync   bool `json:"has_lipsync" yaml:"has_lipsync"`
	WaitForInput bool `json:"wait_for_input" yaml:"wait_for_input"`
}

// ConfidantPoints is the relationship-score award carried by an [f 5 13 ...] tag
type ConfidantPoints struct {
	ConfidantID uint8  `json:"confidant_id" yaml:"confidant_id"`
	Points      uint8  `json:"points" yaml:"points"`
	ModelID     uint16 `json:"model_id" yaml:"model_id"`
}

// String returns a compact representation used in logs and text output
func (c ConfidantPoints) String() string {
	return fmt.Sprintf("confidant=%d points=%d model=%d", c.ConfidantID, c.Points, c.ModelID)
}

// Message represents a complete parsed dialogue message
type Message struct {
	Header          MessageHeader    `json:"header" yaml:"header"`
	Content         string           `json:"content" yaml:"content"`
	Flags           MessageFlags     `json:"flags" yaml:"flags"`
	ConfidantPoints *ConfidantPoints `json:"confidant_points,omitempty" yaml:"confidant_points,omitempty"`
	Diagnostics     []Diagnostic     `json:"diagnostics,omitempty" yaml:"diagnostics,omitempty"`
}

// DiagnosticKind classifies a local degradation that did not fail the parse
type DiagnosticKind string

const (
	DiagnosticUnknownBoxType DiagnosticKind = "unknown_box_type"
	DiagnosticAwardDropped   DiagnosticKind = "award_dropped"
	DiagnosticUnknownTag     DiagnosticKind = "unknown_tag"
	DiagnosticStrayText      DiagnosticKind = "stray_text"
)

// Diagnostic describes a degraded field of an otherwise successful parse
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind" yaml:"kind"`
	Segment string         `json:"segment,omitempty" yaml:"segment,omitempty"`
	Detail  string         `json:"detail" yaml:"detail"`
}

// String implements fmt.Stringer
func (d Diagnostic) String() string {
	if d.Segment != "" {
		return fmt.Sprintf("%s: %s (segment %q)", d.Kind, d.Detail, d.Segment)
	}
	return fmt.Sprintf("%s: %s", d.Kind, d.Detail)
}
