package export

import (
	"fmt"
	"io"
	"time"

	"CoachChat/internal/session"
)

// Exporter defines the interface for all export formats
type Exporter interface {
	Export(t Transcript, w io.Writer) error
	Extension() string
}

// Line is one exported message
type Line struct {
	Role      string    `json:"role" yaml:"role"`
	Text      string    `json:"text" yaml:"text"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Transcript is the exported form of one chat surface
type Transcript struct {
	SessionID string `json:"session_id" yaml:"session_id"`
	Surface   string `json:"surface" yaml:"surface"`
	Week      int    `json:"week,omitempty" yaml:"week,omitempty"`
	Phase     string `json:"phase,omitempty" yaml:"phase,omitempty"`
	Messages  []Line `json:"messages" yaml:"messages"`
}

// NewTranscript converts stored messages into a Transcript
func NewTranscript(sessionID, surface string, week int, phase string, messages []session.Message) Transcript {
	lines := make([]Line, len(messages))
	for i, m := range messages {
		role := "coach"
		if m.IsUser {
			role = "user"
		}
		lines[i] = Line{Role: role, Text: m.Content, Timestamp: m.Timestamp}
	}
	return Transcript{
		SessionID: sessionID,
		Surface:   surface,
		Week:      week,
		Phase:     phase,
		Messages:  lines,
	}
}

// NewExporter creates a new exporter based on format
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "md", "markdown":
		return &MarkdownExporter{}, nil
	case "yaml", "yml":
		return &YAMLExporter{}, nil
	case "json":
		return &JSONExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml, md)", format)
	}
}
