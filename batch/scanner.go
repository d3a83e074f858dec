// Package batch splits multi-message dialogue scripts into single tag-streams
// and drives them through the parser.
package batch

import (
	"bufio"
	"io"
	"strings"
	"unicode"
)

const (
	messagePrefix = "[msg"
	commentPrefix = "//"
	maxLineLength = 1024 * 1024
)

// Record is one message's tag-stream, assembled from one or more script lines
type Record struct {
	Index int    // 0-based position of the message in the script
	Line  int    // 1-based line number of the [msg line
	Text  string // concatenated tag-stream
}

// Scanner reads a script line by line and yields one Record per message.
// Blank lines and // comments are dropped; a line beginning with [msg starts a
// new message and every following line belongs to it until the next one.
type Scanner struct {
	lines     *bufio.Scanner
	separator string
	lineNo    int
	skipped   int
	index     int

	pending  *Record
	parts    []string
	current  Record
	finished bool
}

// NewScanner creates a Scanner joining message lines with separator
func NewScanner(r io.Reader, separator string) *Scanner {
	lines := bufio.NewScanner(r)
	lines.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &Scanner{lines: lines, separator: separator}
}

// Scan advances to the next Record, returning false at end of input or on error
func (s *Scanner) Scan() bool {
	if s.finished {
		return false
	}

	for s.lines.Scan() {
		s.lineNo++
		line := strings.TrimSuffix(s.lines.Text(), "\r")
		if s.lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		// the trimmed form only classifies the line; message lines keep their spacing
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, commentPrefix) {
			continue
		}

		if strings.HasPrefix(trimmed, messagePrefix) {
			done := s.flush()
			s.pending = &Record{Index: s.index, Line: s.lineNo}
			s.parts = []string{strings.TrimLeftFunc(line, unicode.IsSpace)}
			if done {
				return true
			}
			continue
		}

		if s.pending == nil {
			s.skipped++
			continue
		}
		s.parts = append(s.parts, line)
	}

	s.finished = true
	return s.flush()
}

// flush moves the pending message into current, reporting whether there was one
func (s *Scanner) flush() bool {
	if s.pending == nil {
		return false
	}
	s.current = *s.pending
	s.current.Text = strings.Join(s.parts, s.separator)
	s.pending = nil
	s.parts = nil
	s.index++
	return true
}

// Record returns the most recent Record produced by Scan
func (s *Scanner) Record() Record {
	return s.current
}

// Err returns the first read error encountered
func (s *Scanner) Err() error {
	return s.lines.Err()
}

// Skipped returns the number of non-blank, non-comment lines that appeared
// before the first message and were dropped
func (s *Scanner) Skipped() int {
	return s.skipped
}

// Split reads all Records from r
func Split(r io.Reader, separator string) ([]Record, error) {
	scanner := NewScanner(r, separator)
	var records []Record
	for scanner.Scan() {
		records = append(records, scanner.Record())
	}
	return records, scanner.Err()
}
