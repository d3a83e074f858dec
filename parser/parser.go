package parser

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options controls parser strictness and where diagnostics are logged
type Options struct {
	// RequireStart rejects messages whose content has no [s] marker before [e]
	RequireStart bool
	// RequireSpeakerToken rejects headers with fewer than three tokens ([msg ID])
	RequireSpeakerToken bool
	// Logger receives diagnostics; nil discards them
	Logger logrus.FieldLogger
}

// Parser parses tag-streams into Messages. A Parser holds no mutable state and
// is safe for concurrent use.
type Parser struct {
	opts Options
	log  logrus.FieldLogger
}

// New creates a Parser with the given options
func New(opts Options) *Parser {
	log := opts.Logger
	if log == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		log = discard
	}
	return &Parser{opts: opts, log: log}
}

// Options returns the options the parser was created with
func (p *Parser) Options() Options {
	return p.opts
}

// Package-level lenient parser
var defaultParser = New(Options{})

// Parse parses a tag-stream with the default lenient options
func Parse(input string) (*Message, error) {
	return defaultParser.Parse(input)
}

// Parse parses one complete tag-stream.
//
// On structural failure it returns a nil Message and a *ParseError. Local
// degradations (unknown box type, unparseable award, unknown tags) still yield a
// Message; they are recorded in Message.Diagnostics and logged.
func (p *Parser) Parse(input string) (*Message, error) {
	headerPart, contentPart, found := strings.Cut(input, "]")
	if !found {
		return nil, newParseError(ReasonNoClosingBracket, "no closing bracket in input", input)
	}

	header, err := ParseHeader(headerPart, p.opts.RequireSpeakerToken)
	if err != nil {
		return nil, err
	}

	result := ParseContent(contentPart)
	if p.opts.RequireStart && !result.HasStart {
		p.log.WithField("message_id", header.MessageID).Warn("Message rejected: no start marker")
		return nil, newParseError(ReasonMissingStartMarker, "content has no [s] start marker", contentPart)
	}

	var diagnostics []Diagnostic
	if header.BoxType == BoxUnknown {
		diagnostics = append(diagnostics, Diagnostic{
			Kind:   DiagnosticUnknownBoxType,
			Detail: "unrecognized box type prefix in " + header.MessageID,
		})
	}
	diagnostics = append(diagnostics, result.Diagnostics...)
	p.report(header.MessageID, diagnostics)

	return &Message{
		Header:          header,
		Content:         result.Content,
		Flags:           result.Flags,
		ConfidantPoints: result.ConfidantPoints,
		Diagnostics:     diagnostics,
	}, nil
}

func (p *Parser) report(messageID string, diagnostics []Diagnostic) {
	for _, d := range diagnostics {
		entry := p.log.WithFields(logrus.Fields{
			"message_id": messageID,
			"diagnostic": string(d.Kind),
		})
		if d.Segment != "" {
			entry = entry.WithField("segment", d.Segment)
		}
		if d.Kind == DiagnosticAwardDropped {
			entry.Warn("Failed to parse confidant points: " + d.Detail)
		} else {
			entry.Debug(d.Detail)
		}
	}
}
