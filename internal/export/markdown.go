// internal/export/markdown.go
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"rpchat/internal/formatting"
	"rpchat/internal/models"
)

// Transcript contains the data needed to export a chat session
type Transcript struct {
	Session    models.ChatSession
	Character  *models.Character
	Messages   []models.Message
	Settings   *formatting.Settings
	ExportedAt time.Time
}

func (t *Transcript) character() *models.Character {
	if t.Character != nil {
		return t.Character
	}
	return t.Session.Character
}

// Markdown generates a formatted markdown transcript.
// Formatting spans become markdown emphasis where one exists.
func Markdown(t *Transcript) string {
	var sb strings.Builder
	name := t.character().DisplayName()

	// Title header
	sb.WriteString(fmt.Sprintf("# Chat with %s\n\n", name))

	// Metadata section
	sb.WriteString("---\n\n")
	sb.WriteString(fmt.Sprintf("**Session:** `%d`\n\n", t.Session.ID))
	if c := t.character(); c != nil && c.Description != "" {
		sb.WriteString(fmt.Sprintf("**Character:** %s\n\n", c.Description))
	}
	sb.WriteString(fmt.Sprintf("**Messages:** %d\n\n", len(t.Messages)))
	sb.WriteString("---\n\n")

	// Messages section
	sb.WriteString("## Transcript\n\n")

	for i, msg := range t.Messages {
		speaker := "You"
		if msg.Role == models.RoleAssistant {
			speaker = name
		}
		if ts := msg.Time(); !ts.IsZero() {
			sb.WriteString(fmt.Sprintf("### [%s] %s\n\n", ts.Local().Format("15:04"), speaker))
		} else {
			sb.WriteString(fmt.Sprintf("### %s\n\n", speaker))
		}

		content := strings.TrimSpace(Emphasize(formatting.Parse(msg.Content, t.Settings)))
		for _, line := range strings.Split(content, "\n") {
			sb.WriteString("> ")
			sb.WriteString(line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")

		// Add horizontal rule between messages (except after last)
		if i < len(t.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	exported := t.ExportedAt
	if exported.IsZero() {
		exported = time.Now()
	}
	sb.WriteString("\n---\n\n")
	sb.WriteString(fmt.Sprintf("*Exported from rpchat on %s*\n", exported.Format("2006-01-02 15:04:05")))

	return sb.String()
}

// Emphasize renders segments as markdown. Bold and italic rules map to
// ** and *, line-through to ~~; spans with no markdown equivalent keep their
// original delimiters.
func Emphasize(segments []formatting.Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		if seg.Rule == nil {
			sb.WriteString(seg.Content)
			continue
		}

		marker := markerFor(seg.Rule.Styles)
		if marker == "" || strings.TrimSpace(seg.Content) == "" {
			marker = seg.Rule.Delimiter
		}
		sb.WriteString(marker)
		sb.WriteString(seg.Content)
		sb.WriteString(reverse(marker))
	}
	return sb.String()
}

func markerFor(st formatting.Styles) string {
	var marker string
	if strings.Contains(strings.ToLower(st.TextDecoration), "line-through") {
		marker += "~~"
	}
	switch strings.ToLower(st.FontWeight) {
	case "bold", "bolder", "600", "700", "800", "900":
		marker += "**"
	}
	if strings.EqualFold(st.FontStyle, "italic") {
		marker += "*"
	}
	return marker
}

// reverse mirrors an opening marker into its closing form
func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// Write exports a transcript to a markdown file in dir
func Write(t *Transcript, dir string) (string, error) {
	// Generate filename: YYYY-MM-DD-character-session-N.md
	exported := t.ExportedAt
	if exported.IsZero() {
		exported = time.Now()
	}
	filename := fmt.Sprintf("%s-%s-session-%d.md",
		exported.Format("2006-01-02"),
		sanitizeFilename(t.character().DisplayName()),
		t.Session.ID,
	)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(Markdown(t)), 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return path, nil
}

// Preview renders markdown for the terminal
func Preview(markdown string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(markdown)
}

// sanitizeFilename removes/replaces characters unsuitable for filenames
func sanitizeFilename(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "-")

	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-' || r == '_':
			sb.WriteRune(r)
		}
	}

	result := sb.String()

	// Collapse multiple hyphens
	for strings.Contains(result, "--") {
		result = strings.ReplaceAll(result, "--", "-")
	}
	result = strings.Trim(result, "-")

	if result == "" {
		result = "chat"
	}
	if len(result) > 50 {
		result = result[:50]
	}

	return result
}
