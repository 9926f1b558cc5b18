package export

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"time"
)

// MarkdownExporter exports transcripts as a readable Markdown document
type MarkdownExporter struct{}

func (e *MarkdownExporter) Export(t Transcript, w io.Writer) error {
	var buf bytes.Buffer

	title := "Onboarding chat"
	if t.Week > 0 {
		title = fmt.Sprintf("Week %d chat", t.Week)
	}
	fmt.Fprintf(&buf, "# %s\n\n", title)

	sessionID := t.SessionID
	if sessionID == "" {
		sessionID = "none"
	}
	fmt.Fprintf(&buf, "**Session:** %s  \n", sessionID)
	if t.Phase != "" {
		fmt.Fprintf(&buf, "**Phase:** %s  \n", t.Phase)
	}
	fmt.Fprintf(&buf, "**Messages:** %d\n\n", len(t.Messages))

	for i, line := range t.Messages {
		author := "Coach"
		if line.Role == "user" {
			author = "You"
		}
		stamp := ""
		if !line.Timestamp.IsZero() {
			stamp = " (" + line.Timestamp.UTC().Format(time.RFC3339) + ")"
		}
		fmt.Fprintf(&buf, "**%s:**%s\n\n%s\n\n", author, stamp, escapeMarkdown(line.Text))
		if i < len(t.Messages)-1 {
			buf.WriteString("---\n\n")
		}
	}

	if _, err := buf.WriteTo(w); err != nil {
		return fmt.Errorf("write markdown: %w", err)
	}
	return nil
}

// escapeMarkdown escapes emphasis markers outside fenced code blocks
func escapeMarkdown(text string) string {
	lines := strings.Split(text, "\n")
	inCodeBlock := false
	for i, line := range lines {
		if strings.HasPrefix(line, "```") {
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			continue
		}
		line = strings.ReplaceAll(line, "**", "\\*\\*")
		lines[i] = strings.ReplaceAll(line, "__", "\\_\\_")
	}
	return strings.Join(lines, "\n")
}

func (e *MarkdownExporter) Extension() string {
	return "md"
}
