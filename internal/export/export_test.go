package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"CoachChat/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleTranscript() Transcript {
	at := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	return NewTranscript("abc123", "onboarding", 0, "plan_ready", []session.Message{
		{ID: "1", Content: "Hi there", IsUser: false, Timestamp: at},
		{ID: "2", Content: "I want **more** sleep", IsUser: true, Timestamp: at.Add(time.Minute)},
	})
}

func TestNewExporter(t *testing.T) {
	tests := []struct {
		format  string
		ext     string
		wantErr bool
	}{
		{format: "json", ext: "json"},
		{format: "yaml", ext: "yaml"},
		{format: "yml", ext: "yaml"},
		{format: "md", ext: "md"},
		{format: "markdown", ext: "md"},
		{format: "csv", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			exp, err := NewExporter(tt.format)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unsupported format")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ext, exp.Extension())
		})
	}
}

func TestNewTranscriptRoles(t *testing.T) {
	tr := sampleTranscript()
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "coach", tr.Messages[0].Role)
	assert.Equal(t, "user", tr.Messages[1].Role)
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONExporter{}).Export(sampleTranscript(), &buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "abc123", decoded["session_id"])
	assert.NotContains(t, decoded, "week")
	assert.Len(t, decoded["messages"], 2)
}

func TestYAMLExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&YAMLExporter{}).Export(sampleTranscript(), &buf))

	var decoded Transcript
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, sampleTranscript(), decoded)
}

func TestMarkdownExporter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&MarkdownExporter{}).Export(sampleTranscript(), &buf))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "# Onboarding chat\n"))
	assert.Contains(t, out, "**Session:** abc123")
	assert.Contains(t, out, "**Coach:** (2026-05-04T10:00:00Z)")
	assert.Contains(t, out, "**You:**")
	assert.Contains(t, out, `I want \*\*more\*\* sleep`)
	assert.Equal(t, 1, strings.Count(out, "---"))

	buf.Reset()
	weekly := NewTranscript("", "weekly", 2, "", nil)
	require.NoError(t, (&MarkdownExporter{}).Export(weekly, &buf))
	assert.Contains(t, buf.String(), "# Week 2 chat")
	assert.Contains(t, buf.String(), "**Session:** none")
}

// limitWriter accepts limit bytes and fails every write after that
type limitWriter struct {
	limit int
	n     int
}

var errWriterFull = errors.New("writer full")

func (w *limitWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.limit {
		return 0, errWriterFull
	}
	w.n += len(p)
	return len(p), nil
}

func TestMarkdownExporterWriteError(t *testing.T) {
	var full bytes.Buffer
	require.NoError(t, (&MarkdownExporter{}).Export(sampleTranscript(), &full))

	for _, limit := range []int{0, len("# Onboarding chat\n\n"), full.Len() - 1} {
		w := &limitWriter{limit: limit}
		err := (&MarkdownExporter{}).Export(sampleTranscript(), w)
		require.ErrorIs(t, err, errWriterFull, "limit %d", limit)
	}

	w := &limitWriter{limit: full.Len()}
	require.NoError(t, (&MarkdownExporter{}).Export(sampleTranscript(), w))
	assert.Equal(t, full.Len(), w.n)
}

func TestEscapeMarkdownKeepsCodeBlocks(t *testing.T) {
	in := "a **b**\n```\nx **y**\n```"
	assert.Equal(t, "a \\*\\*b\\*\\*\n```\nx **y**\n```", escapeMarkdown(in))
}
