package parser

import (
	"fmt"
	"strconv"
	"strings"
)

// ContentResult is the output of scanning the content part of a tag-stream
type ContentResult struct {
	Content         string
	Flags           MessageFlags
	ConfidantPoints *ConfidantPoints
	Diagnostics     []Diagnostic
	// HasStart reports whether a start marker was seen before the end tag
	HasStart bool
}

// ParseContent scans the remainder of a tag-stream after the header's first ']'.
//
// The remainder is split on '['. Whatever precedes the first '[' is header
// residue (typically the speaker's closing bracket) and never reaches the content.
// Scanning stops at the first end tag.
func ParseContent(remainder string) ContentResult {
	var result ContentResult
	var text strings.Builder

	parts := strings.Split(remainder, "[")
	if residue := strings.TrimSpace(strings.TrimLeft(parts[0], "]")); residue != "" {
		result.Diagnostics = append(result.Diagnostics, Diagnostic{
			Kind:    DiagnosticStrayText,
			Segment: parts[0],
			Detail:  "text before the first tag is ignored",
		})
	}

scan:
	for _, raw := range parts[1:] {
		if raw == "" {
			continue
		}

		seg := ClassifySegment(raw)
		switch seg.Kind {
		case TagStart:
			result.HasStart = true
		case TagVoice:
			result.Flags.HasLipsync = true
		case TagAward:
			award, err := parseAward(seg.Args)
			if err != nil {
				result.Diagnostics = append(result.Diagnostics, Diagnostic{
					Kind:    DiagnosticAwardDropped,
					Segment: raw,
					Detail:  err.Error(),
				})
			} else {
				result.ConfidantPoints = award
			}
		case TagWait:
			result.Flags.WaitForInput = true
		case TagEnd:
			break scan
		case TagLiteral:
			if strings.Contains(raw, "]") {
				result.Diagnostics = append(result.Diagnostics, Diagnostic{
					Kind:    DiagnosticUnknownTag,
					Segment: raw,
					Detail:  "unrecognized tag kept as literal text",
				})
			}
		}
		text.WriteString(seg.EmittedText())
	}

	result.Content = strings.TrimSpace(text.String())
	return result
}

// parseAward reads confidant ID, points and model ID from the arguments of an
// f 5 13 tag. All three must parse within range or the award is rejected.
func parseAward(args []string) (*ConfidantPoints, error) {
	// args[0:2] are the "5 13" sub-type
	values := args[2:]
	if len(values) < 3 {
		return nil, fmt.Errorf("confidant points tag needs 3 values, got %d", len(values))
	}

	confidantID, err := strconv.ParseUint(values[0], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid confidant id %q: %w", values[0], err)
	}
	points, err := strconv.ParseUint(values[1], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid points %q: %w", values[1], err)
	}
	modelID, err := strconv.ParseUint(values[2], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid model id %q: %w", values[2], err)
	}

	return &ConfidantPoints{
		ConfidantID: uint8(confidantID),
		Points:      uint8(points),
		ModelID:     uint16(modelID),
	}, nil
}
