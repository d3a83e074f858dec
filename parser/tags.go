package parser

import "strings"

// TagKind represents the classification of one '['-delimited content segment
type TagKind int

const (
	TagLiteral TagKind = iota
	TagStart
	TagVoice
	TagAward
	TagEffect
	TagWait
	TagEnd
)

// String returns the string representation of the TagKind
func (k TagKind) String() string {
	switch k {
	case TagStart:
		return "start"
	case TagVoice:
		return "voice"
	case TagAward:
		return "award"
	case TagEffect:
		return "effect"
	case TagWait:
		return "wait"
	case TagEnd:
		return "end"
	default:
		return "literal"
	}
}

// Segment is a content segment parsed once into its tag kind.
//
// For tags, Args holds the whitespace-separated arguments following the keyword
// (the f sub-type numbers included) and Text the literal text after the tag's own
// closing bracket. For TagLiteral, Text is the whole raw segment.
type Segment struct {
	Kind   TagKind
	Args   []string
	Text   string
	Raw    string
	Closed bool
}

// ClassifySegment parses a raw segment, as produced by splitting content on '[',
// into a Segment. Keywords match whole tokens: "s", "f", "w" and "e".
func ClassifySegment(raw string) Segment {
	body, text, closed := strings.Cut(raw, "]")
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return Segment{Kind: TagLiteral, Text: raw, Raw: raw}
	}

	seg := Segment{Args: fields[1:], Text: text, Raw: raw, Closed: closed}
	switch fields[0] {
	case "s":
		seg.Kind = TagStart
	case "f":
		seg.Kind = effectKind(seg.Args)
	case "w":
		seg.Kind = TagWait
	case "e":
		seg.Kind = TagEnd
	default:
		return Segment{Kind: TagLiteral, Text: raw, Raw: raw}
	}
	return seg
}

// effectKind distinguishes the f tag sub-types. f 4 10 is checked before f 5 13,
// and both before the generic effect fallback.
func effectKind(args []string) TagKind {
	if len(args) < 2 {
		return TagEffect
	}
	switch {
	case args[0] == "4" && args[1] == "10":
		return TagVoice
	case args[0] == "5" && args[1] == "13":
		return TagAward
	default:
		return TagEffect
	}
}

// EmittedText returns the literal text a segment contributes to message content.
// Tags carrying an argument list only emit what follows their own closing bracket.
func (s Segment) EmittedText() string {
	switch s.Kind {
	case TagLiteral:
		return s.Text
	case TagStart, TagVoice, TagAward, TagEffect:
		if !s.Closed {
			return ""
		}
		return s.Text
	default:
		return ""
	}
}
