package parser

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// Test the main Parse function against complete dialogue messages
func TestParse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantBox     BoxType
		wantID      string
		wantChar    *string
		wantContent string
		wantFlags   MessageFlags
		wantAward   *ConfidantPoints
	}{
		{
			name:        "battle message with lipsync and wait",
			input:       "[msg MSG_BTTL_2 [Morgana]][s][f 4 10 65535 0 0]Hello world![f 1 3 65535][w][e]",
			wantBox:     BoxMessage,
			wantID:      "MSG_BTTL_2",
			wantChar:    strPtr("Morgana"),
			wantContent: "Hello world!",
			wantFlags:   MessageFlags{HasLipsync: true, WaitForInput: true},
		},
		{
			name:        "progress message with confidant points",
			input:       "[msg PFM_BTTL_2 [Morgana]][s][f 4 10 65535 0 0][f 5 13 30 15 5]I cant see an exit we're stuck here[f 1 3 65535][w][e]",
			wantBox:     BoxProgress,
			wantID:      "PFM_BTTL_2",
			wantChar:    strPtr("Morgana"),
			wantContent: "I cant see an exit we're stuck here",
			wantFlags:   MessageFlags{HasLipsync: true, WaitForInput: true},
			wantAward:   &ConfidantPoints{ConfidantID: 30, Points: 15, ModelID: 5},
		},
		{
			name:        "unknown box type prefix",
			input:       "[msg XYZ_1 [Bob]][s]Hi[e]",
			wantBox:     BoxUnknown,
			wantID:      "XYZ_1",
			wantChar:    strPtr("Bob"),
			wantContent: "Hi",
		},
		{
			name:        "non numeric award field drops the award",
			input:       "[msg MSG_1][s][f 5 13 abc 1 2]text[e]",
			wantBox:     BoxMessage,
			wantID:      "MSG_1",
			wantContent: "text",
		},
		{
			name:        "malformed award keeps the earlier valid one",
			input:       "[msg MSG_1][s][f 5 13 1 2 3]a[f 5 13 x 2 3]b[e]",
			wantBox:     BoxMessage,
			wantID:      "MSG_1",
			wantContent: "ab",
			wantAward:   &ConfidantPoints{ConfidantID: 1, Points: 2, ModelID: 3},
		},
		{
			name:        "help box without lipsync",
			input:       "[msg HLP_BTTL_2 [Morgan]][s]I cant see an exit[w][e]",
			wantBox:     BoxHelp,
			wantID:      "HLP_BTTL_2",
			wantChar:    strPtr("Morgan"),
			wantContent: "I cant see an exit",
			wantFlags:   MessageFlags{WaitForInput: true},
		},
		{
			name:        "unbracketed third token is not a speaker",
			input:       "[msg SYS_SAVE extra][s]Saved.[e]",
			wantBox:     BoxSystem,
			wantID:      "SYS_SAVE",
			wantContent: "Saved.",
		},
		{
			name:        "text after start marker arguments",
			input:       "[msg MND_04 [Joker]][s 1 2]Think...[e]",
			wantBox:     BoxMind,
			wantID:      "MND_04",
			wantChar:    strPtr("Joker"),
			wantContent: "Think...",
		},
		{
			name:        "generic effect tags split off their arguments",
			input:       "[msg TRV_01][s][f 2 1 3]Did you[f 0 1]know?[e]",
			wantBox:     BoxTrivia,
			wantID:      "TRV_01",
			wantContent: "Did youknow?",
		},
		{
			name:        "end tag truncates the scan",
			input:       "[msg DVL_9 [Arsene]][s]Before[e]After[w][f 4 10 1 0 0]Voice",
			wantBox:     BoxDevil,
			wantID:      "DVL_9",
			wantChar:    strPtr("Arsene"),
			wantContent: "Before",
		},
		{
			name:        "unrecognized tag is emitted verbatim",
			input:       "[msg MSG_2][s]Hi [clr 3]there[e]",
			wantBox:     BoxMessage,
			wantID:      "MSG_2",
			wantContent: "Hi clr 3]there",
		},
		{
			name:    "degenerate stream yields empty content",
			input:   "[msg MSG_3]",
			wantBox: BoxMessage,
			wantID:  "MSG_3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(tt.input)
			require.NoError(t, err)
			require.NotNil(t, msg)

			assert.Equal(t, tt.wantBox, msg.Header.BoxType)
			assert.Equal(t, tt.wantID, msg.Header.MessageID)
			assert.Equal(t, tt.wantChar, msg.Header.Character)
			assert.Equal(t, tt.wantContent, msg.Content)
			assert.Equal(t, tt.wantFlags, msg.Flags)
			assert.Equal(t, tt.wantAward, msg.ConfidantPoints)
		})
	}
}

// Test that structurally broken inputs are rejected in full
func TestParseRejects(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantReason Reason
	}{
		{"no brackets at all", "no brackets at all", ReasonNoClosingBracket},
		{"empty input", "", ReasonNoClosingBracket},
		{"unterminated header", "[msg MSG_1 [Bob", ReasonNoClosingBracket},
		{"bare msg keyword", "[msg][s]Hi[e]", ReasonHeaderTooShort},
		{"empty header", "[][s]Hi[e]", ReasonHeaderTooShort},
		{"wrong keyword", "[txt MSG_1 [Bob]][s]Hi[e]", ReasonNotMsgHeader},
		{"keyword is case sensitive", "[MSG MSG_1 [Bob]][s]Hi[e]", ReasonNotMsgHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Parse(tt.input)
			assert.Nil(t, msg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrStructural))
			assert.Equal(t, tt.wantReason, ReasonOf(err))
		})
	}
}

func TestParseRequireSpeakerToken(t *testing.T) {
	p := New(Options{RequireSpeakerToken: true})

	msg, err := p.Parse("[msg MSG_1][s]text[e]")
	assert.Nil(t, msg)
	assert.Equal(t, ReasonHeaderTooShort, ReasonOf(err))

	msg, err = p.Parse("[msg MSG_1 [Ryuji]][s]text[e]")
	require.NoError(t, err)
	assert.Equal(t, "Ryuji", msg.Header.CharacterName())
}

func TestParseRequireStart(t *testing.T) {
	strict := New(Options{RequireStart: true})
	lenient := New(Options{})

	tests := []struct {
		name       string
		input      string
		wantStrict bool
	}{
		{"start marker present", "[msg MSG_1 [Ann]][s]Hi[e]", true},
		{"start marker with arguments", "[msg MSG_1 [Ann]][s 0]Hi[e]", true},
		{"no start marker", "[msg MSG_1 [Ann]][f 4 10 1 0 0]Hi[e]", false},
		{"start marker after end", "[msg MSG_1 [Ann]]Hi[e][s]", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := strict.Parse(tt.input)
			if tt.wantStrict {
				require.NoError(t, err)
				assert.NotNil(t, msg)
			} else {
				assert.Nil(t, msg)
				assert.Equal(t, ReasonMissingStartMarker, ReasonOf(err))
			}

			msg, err = lenient.Parse(tt.input)
			require.NoError(t, err)
			assert.NotNil(t, msg)
		})
	}
}

func TestParseDiagnostics(t *testing.T) {
	msg, err := Parse("[msg ABC_1 [Bob]][s][f 5 13 999 1 2][zz 1]Hi[e]")
	require.NoError(t, err)

	kinds := make([]DiagnosticKind, 0, len(msg.Diagnostics))
	for _, d := range msg.Diagnostics {
		kinds = append(kinds, d.Kind)
	}
	assert.Equal(t, []DiagnosticKind{DiagnosticUnknownBoxType, DiagnosticAwardDropped, DiagnosticUnknownTag}, kinds)
	assert.Nil(t, msg.ConfidantPoints)

	clean, err := Parse("[msg MSG_BTTL_2 [Morgana]][s][f 4 10 65535 0 0]Hello world![f 1 3 65535][w][e]")
	require.NoError(t, err)
	assert.Empty(t, clean.Diagnostics)
}

func TestParseLogsDroppedAward(t *testing.T) {
	var buf bytes.Buffer
	log := logrus.New()
	log.SetOutput(&buf)
	log.SetLevel(logrus.WarnLevel)

	p := New(Options{Logger: log})
	msg, err := p.Parse("[msg MSG_1][s][f 5 13 1 2]short[e]")
	require.NoError(t, err)
	assert.Nil(t, msg.ConfidantPoints)
	assert.Equal(t, "short", msg.Content)
	assert.Contains(t, buf.String(), "Failed to parse confidant points")
	assert.Contains(t, buf.String(), "MSG_1")
}

func TestParseIsDeterministic(t *testing.T) {
	input := "[msg PFM_BTTL_2 [Morgana]][s][f 4 10 65535 0 0][f 5 13 30 15 5]I cant see an exit[f 1 3 65535][w][e]"

	first, err := Parse(input)
	require.NoError(t, err)
	second, err := Parse(input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// results must not share memory
	assert.NotSame(t, first.ConfidantPoints, second.ConfidantPoints)
	assert.NotSame(t, first.Header.Character, second.Header.Character)
}

func TestParseConcurrent(t *testing.T) {
	p := New(Options{RequireStart: true})
	input := "[msg MSG_BTTL_2 [Morgana]][s][f 4 10 65535 0 0]Hello world![f 1 3 65535][w][e]"

	var wg sync.WaitGroup
	results := make([]*Message, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg, err := p.Parse(input)
			if err == nil {
				results[i] = msg
			}
		}(i)
	}
	wg.Wait()

	for _, msg := range results {
		require.NotNil(t, msg)
		assert.Equal(t, "Hello world!", msg.Content)
	}
}
