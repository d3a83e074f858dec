// Package render writes parsed messages as text, JSON lines or YAML documents.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"royal/parser"
)

var (
	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	boxStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	contentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("242"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// Entry is one rendered item: a parsed message or the failure to parse one
type Entry struct {
	Source  string          `json:"source,omitempty" yaml:"source,omitempty"`
	Index   int             `json:"index" yaml:"index"`
	Line    int             `json:"line" yaml:"line"`
	Message *parser.Message `json:"message,omitempty" yaml:"message,omitempty"`
	Error   string          `json:"error,omitempty" yaml:"error,omitempty"`
	Reason  string          `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Writer renders entries to an underlying io.Writer
type Writer interface {
	Write(entry Entry) error
}

// New returns a Writer for the given format (text, json or yaml)
func New(w io.Writer, format string) (Writer, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return &textWriter{w: w}, nil
	case "json":
		return &jsonWriter{enc: json.NewEncoder(w)}, nil
	case "yaml":
		return &yamlWriter{w: w}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

type textWriter struct {
	w       io.Writer
	written int
}

func (t *textWriter) Write(entry Entry) error {
	var b strings.Builder
	if t.written > 0 {
		b.WriteString("\n")
	}
	t.written++

	if entry.Message == nil {
		fmt.Fprintf(&b, "%s %s\n", errorStyle.Render("Failed to parse message"), dimStyle.Render(location(entry)))
		if entry.Error != "" {
			fmt.Fprintf(&b, "  %s\n", entry.Error)
		}
		_, err := io.WriteString(t.w, b.String())
		return err
	}

	msg := entry.Message
	field := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", labelStyle.Render(label+":"), value)
	}

	field("Message ID", msg.Header.MessageID)
	if msg.Header.Character != nil {
		field("Character", *msg.Header.Character)
	}
	field("Box Type", boxStyle.Render(msg.Header.BoxType.String()))
	field("Content", contentStyle.Render(msg.Content))
	field("Has lipsync", fmt.Sprintf("%t", msg.Flags.HasLipsync))
	field("Waits for input", fmt.Sprintf("%t", msg.Flags.WaitForInput))
	if msg.ConfidantPoints != nil {
		field("Confidant points", msg.ConfidantPoints.String())
	}
	for _, d := range msg.Diagnostics {
		fmt.Fprintf(&b, "  %s\n", dimStyle.Render(d.String()))
	}

	_, err := io.WriteString(t.w, b.String())
	return err
}

func location(entry Entry) string {
	if entry.Source != "" {
		return fmt.Sprintf("(%s:%d)", entry.Source, entry.Line)
	}
	return fmt.Sprintf("(line %d)", entry.Line)
}

type jsonWriter struct {
	enc *json.Encoder
}

func (j *jsonWriter) Write(entry Entry) error {
	return j.enc.Encode(entry)
}

type yamlWriter struct {
	w       io.Writer
	written int
}

func (y *yamlWriter) Write(entry Entry) error {
	data, err := yaml.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode entry %d: %w", entry.Index, err)
	}
	if y.written > 0 {
		if _, err := io.WriteString(y.w, "---\n"); err != nil {
			return err
		}
	}
	y.written++
	_, err = y.w.Write(data)
	return err
}
