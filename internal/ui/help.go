// internal/ui/help.go
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"rpchat/internal/formatting"
	"rpchat/internal/render"
)

var (
	helpTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(Cyan).
			MarginBottom(1)

	helpSectionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(Yellow).
				MarginTop(1)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(Green).
			Bold(true)

	helpCmdStyle = lipgloss.NewStyle().
			Foreground(Magenta)

	helpDescStyle = lipgloss.NewStyle().
			Foreground(White)

	helpDimStyle = lipgloss.NewStyle().
			Foreground(Dim)
)

// HelpContent returns the formatted help overlay content.
// The formatting section lists the rules active for the session.
func HelpContent(width, height int, settings *formatting.Settings) string {
	var content strings.Builder

	content.WriteString(helpTitleStyle.Render("RPCHAT HELP"))
	content.WriteString("\n\n")

	content.WriteString(helpSectionStyle.Render("KEYBINDINGS"))
	content.WriteString("\n\n")

	keybindings := []struct {
		key  string
		desc string
	}{
		{"Enter", "Send message"},
		{"Esc", "Stop the streaming reply / close overlay"},
		{"Ctrl+R", "Retry the last failed or cancelled message"},
		{"PgUp/PgDn", "Scroll the conversation"},
		{"F1", "Toggle this help overlay"},
		{"Ctrl+C", "Quit"},
	}

	for _, kb := range keybindings {
		key := helpKeyStyle.Width(14).Render(kb.key)
		desc := helpDescStyle.Render(kb.desc)
		content.WriteString("  " + key + "  " + desc + "\n")
	}

	content.WriteString("\n")
	content.WriteString(helpSectionStyle.Render("SLASH COMMANDS"))
	content.WriteString("\n\n")

	commands := []struct {
		cmd  string
		desc string
	}{
		{"/help", "Show this help overlay"},
		{"/cancel", "Stop the reply being streamed"},
		{"/retry", "Resend the last failed or cancelled message"},
		{"/format on|off", "Override formatting for this session"},
		{"/format default", "Use the default formatting again"},
		{"/format add [d] [name]", "Add a formatting rule for delimiter d"},
		{"/export [dir]", "Export the transcript to markdown"},
		{"/runs", "Browse the local stream journal"},
		{"/quit", "Leave the chat"},
	}

	for _, cmd := range commands {
		cmdStr := helpCmdStyle.Width(22).Render(cmd.cmd)
		desc := helpDescStyle.Render(cmd.desc)
		content.WriteString("  " + cmdStr + "  " + desc + "\n")
	}

	content.WriteString("\n")
	content.WriteString(helpSectionStyle.Render("FORMATTING"))
	content.WriteString("\n\n")
	content.WriteString(formattingLegend(settings))

	content.WriteString("\n")
	footer := helpDimStyle.Render("Press F1 or Esc to close this help")
	content.WriteString(lipgloss.PlaceHorizontal(width-8, lipgloss.Center, footer))

	overlayStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(Cyan).
		Padding(1, 3).
		MaxWidth(width - 10).
		MaxHeight(height - 4)

	return lipgloss.Place(
		width,
		height,
		lipgloss.Center,
		lipgloss.Center,
		overlayStyle.Render(content.String()),
	)
}

// formattingLegend shows each active rule styled with itself
func formattingLegend(settings *formatting.Settings) string {
	if settings == nil || !settings.Enabled {
		return "  " + helpDimStyle.Render("Formatting is off for this session.") + "\n"
	}

	rules := settings.ActiveRules()
	if len(rules) == 0 {
		return "  " + helpDimStyle.Render("No formatting rules are enabled.") + "\n"
	}

	var sb strings.Builder
	for i := range rules {
		rule := &rules[i]
		delim := helpCmdStyle.Width(22).Render(rule.Delimiter + "text" + rule.Delimiter)
		sample := render.StyleFor(rule).Render(rule.Name)
		sb.WriteString("  " + delim + "  " + sample + "\n")
	}
	return sb.String()
}
