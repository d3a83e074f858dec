package parser

import "strings"

const headerKeyword = "msg"

// ParseHeader parses the leading header segment, i.e. the text before the first ']'
// of a tag-stream (a leading '[' is tolerated). Tokens beyond the speaker are ignored.
//
// The header must contain the msg keyword and a message ID. When requireSpeaker is
// set a third token must also be present, although it still only names a speaker
// when it is bracketed.
func ParseHeader(segment string, requireSpeaker bool) (MessageHeader, error) {
	tokens := strings.Fields(strings.TrimLeft(segment, "["))

	minTokens := 2
	if requireSpeaker {
		minTokens = 3
	}
	if len(tokens) < minTokens {
		return MessageHeader{}, newParseError(ReasonHeaderTooShort, "header has too few tokens", segment)
	}
	if tokens[0] != headerKeyword {
		return MessageHeader{}, newParseError(ReasonNotMsgHeader, "header does not start with msg", segment)
	}

	header := MessageHeader{
		BoxType:   BoxTypeFromID(tokens[1]),
		MessageID: tokens[1],
	}

	if len(tokens) >= 3 && strings.HasPrefix(tokens[2], "[") {
		name := strings.Map(func(r rune) rune {
			if r == '[' || r == ']' {
				return -1
			}
			return r
		}, tokens[2])
		header.Character = &name
	}

	return header, nil
}
