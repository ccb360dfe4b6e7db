// internal/ui/transcript.go
package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rpchat/internal/chat"
	"rpchat/internal/models"
	"rpchat/internal/render"
)

const (
	typingIndicator = "▊"
	cancelledMarker = " [cancelled]"
)

// Transcript renders the conversation of one chat session
type Transcript struct {
	Character *models.Character
	Messages  []models.Message
	State     chat.State
	Renderer  *render.Renderer
}

// Render lays out committed messages followed by the in-flight reply
func (t *Transcript) Render(width int) string {
	var sb strings.Builder

	for _, msg := range t.Messages {
		t.writeMessage(&sb, msg, width)
	}

	switch t.State.Phase {
	case chat.PhaseSending:
		sb.WriteString(CharacterStyle.Render(t.Character.DisplayName()))
		sb.WriteString(" ")
		sb.WriteString(DimStyle.Render("is thinking..."))
		sb.WriteString("\n")

	case chat.PhaseStreaming:
		sb.WriteString(CharacterStyle.Render(t.Character.DisplayName()))
		sb.WriteString(" ")
		sb.WriteString(DimStyle.Render("streaming..."))
		sb.WriteString("\n")
		writeIndented(&sb, t.Renderer.Render(t.State.Content)+typingIndicator, width)
		sb.WriteString("\n")

	case chat.PhaseCancelled:
		if t.State.Content != "" {
			sb.WriteString(CharacterStyle.Render(t.Character.DisplayName()))
			sb.WriteString("\n")
			writeIndented(&sb, t.Renderer.Render(t.State.Content)+DimStyle.Render(cancelledMarker), width)
			sb.WriteString("\n")
		}

	case chat.PhaseErrored:
		sb.WriteString(ErrorStyle.Render(errorTitle(t.State.Err)))
		sb.WriteString("\n")
		writeIndented(&sb, ErrorStyle.Render(errorText(t.State.Err)), width)
		sb.WriteString(DimStyle.Render("  /retry to send it again"))
		sb.WriteString("\n\n")
	}

	return sb.String()
}

func (t *Transcript) writeMessage(sb *strings.Builder, msg models.Message, width int) {
	var header string
	if msg.Role == models.RoleUser {
		header = UserStyle.Render("You")
	} else {
		header = CharacterStyle.Render(t.Character.DisplayName())
	}
	if ts := msg.Time(); !ts.IsZero() {
		header = DimStyle.Render(fmt.Sprintf("[%s]", ts.Local().Format("15:04"))) + " " + header
	}

	sb.WriteString(header)
	sb.WriteString("\n")
	writeIndented(sb, t.Renderer.Render(msg.Content), width)
	sb.WriteString("\n")
}

// writeIndented wraps s to fit width and writes each line with a two space indent
func writeIndented(sb *strings.Builder, s string, width int) {
	if width > 10 {
		s = lipgloss.NewStyle().Width(width - 2).Render(s)
	}
	for _, line := range strings.Split(s, "\n") {
		sb.WriteString("  ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
}

func errorTitle(err error) string {
	var backend *chat.BackendError
	if errors.As(err, &backend) {
		return "Backend error"
	}
	return "Connection error"
}

func errorText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}
