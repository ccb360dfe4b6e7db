// internal/render/render.go
package render

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rpchat/internal/formatting"
	"rpchat/internal/models"
)

// Resolve picks the formatting settings for a chat: the session's own
// override when it has one, the application default otherwise.
func Resolve(session *models.ChatSession, defaults *formatting.Settings) *formatting.Settings {
	if session != nil && session.FormattingSettings != nil {
		return session.FormattingSettings
	}
	return defaults
}

// Renderer formats message text with one settings value.
// Nothing is cached: streaming text is re-parsed on every chunk, so a span
// whose closing delimiter has not arrived yet shows unstyled.
type Renderer struct {
	settings *formatting.Settings
}

func New(settings *formatting.Settings) *Renderer {
	return &Renderer{settings: settings}
}

func (r *Renderer) Settings() *formatting.Settings {
	return r.settings
}

func (r *Renderer) SetSettings(settings *formatting.Settings) {
	r.settings = settings
}

// Message segments a committed message
func (r *Renderer) Message(m models.Message) []formatting.Segment {
	return formatting.Parse(m.Content, r.settings)
}

// Streaming segments the partial reply accumulated so far
func (r *Renderer) Streaming(content string) []formatting.Segment {
	return formatting.Parse(content, r.settings)
}

// Text segments arbitrary text
func (r *Renderer) Text(s string) []formatting.Segment {
	return formatting.Parse(s, r.settings)
}

// Render returns s with terminal styling applied
func (r *Renderer) Render(s string) string {
	return Styled(r.Text(s))
}

// Styled joins segments, rendering styled ones with their rule's style
func Styled(segments []formatting.Segment) string {
	var sb strings.Builder
	for _, seg := range segments {
		if seg.Rule == nil {
			sb.WriteString(seg.Content)
			continue
		}
		style := StyleFor(seg.Rule)
		// lipgloss pads multi-line blocks to a common width, so render per line
		lines := strings.Split(seg.Content, "\n")
		for i, line := range lines {
			if i > 0 {
				sb.WriteByte('\n')
			}
			if line != "" {
				sb.WriteString(style.Render(line))
			}
		}
	}
	return sb.String()
}

// StyleFor maps a rule's CSS-like styles onto a terminal style.
// Font family has no terminal equivalent and is ignored.
func StyleFor(rule *formatting.Rule) lipgloss.Style {
	style := lipgloss.NewStyle()
	if rule == nil {
		return style
	}
	st := rule.Styles

	switch strings.ToLower(strings.TrimSpace(st.FontWeight)) {
	case "bold", "bolder", "600", "700", "800", "900":
		style = style.Bold(true)
	}

	switch strings.ToLower(strings.TrimSpace(st.FontStyle)) {
	case "italic", "oblique":
		style = style.Italic(true)
	}

	for _, deco := range strings.Fields(strings.ToLower(st.TextDecoration)) {
		switch deco {
		case "underline":
			style = style.Underline(true)
		case "line-through":
			style = style.Strikethrough(true)
		}
	}

	if c := strings.TrimSpace(st.Color); c != "" {
		style = style.Foreground(lipgloss.Color(c))
	}
	if c := strings.TrimSpace(st.BackgroundColor); c != "" {
		style = style.Background(lipgloss.Color(c))
	}

	if smallFont(st.FontSize) {
		style = style.Faint(true)
	}

	return style
}

// smallFont reports whether a CSS font size is below the surrounding text size
func smallFont(size string) bool {
	size = strings.ToLower(strings.TrimSpace(size))
	switch size {
	case "":
		return false
	case "small", "smaller", "x-small", "xx-small":
		return true
	}

	for _, unit := range []struct {
		suffix string
		base   float64
	}{
		{"rem", 1},
		{"em", 1},
		{"%", 100},
		{"px", 16},
		{"pt", 12},
	} {
		if strings.HasSuffix(size, unit.suffix) {
			v, err := strconv.ParseFloat(strings.TrimSuffix(size, unit.suffix), 64)
			return err == nil && v < unit.base
		}
	}
	return false
}
