// Package commands handles slash command parsing for the rpchat chat screen.
package commands

import (
	"strings"
)

// Command interface for all command types
type Command interface {
	Type() string
}

// Help returns help text
type Help struct{}

func (Help) Type() string { return "help" }

// Cancel stops the reply being streamed
type Cancel struct{}

func (Cancel) Type() string { return "cancel" }

// Retry resends the last failed or cancelled message
type Retry struct{}

func (Retry) Type() string { return "retry" }

// FormatMode is the argument of /format
type FormatMode string

const (
	FormatShow    FormatMode = "show"
	FormatOn      FormatMode = "on"
	FormatOff     FormatMode = "off"
	FormatDefault FormatMode = "default"
	FormatAdd     FormatMode = "add"
)

// Format shows or changes the session's formatting override.
// Delimiter and Name are only set for FormatAdd, and may be empty.
type Format struct {
	Mode      FormatMode
	Delimiter string
	Name      string
}

func (Format) Type() string { return "format" }

// Export writes the transcript to markdown
type Export struct {
	Dir string
}

func (Export) Type() string { return "export" }

// ShowRuns opens the stream journal browser
type ShowRuns struct{}

func (ShowRuns) Type() string { return "runs" }

// Quit leaves the chat screen
type Quit struct{}

func (Quit) Type() string { return "quit" }

// ParseError represents a command parsing error
type ParseError struct {
	Message string
}

func (ParseError) Type() string { return "error" }

// Parse parses user input and returns the appropriate Command.
// Returns nil if the input is not a slash command.
func Parse(input string) Command {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return nil
	}

	// Split into command and arguments
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "/help", "/?":
		return Help{}

	case "/cancel", "/stop":
		return Cancel{}

	case "/retry":
		return Retry{}

	case "/format":
		if len(args) == 0 {
			return Format{Mode: FormatShow}
		}
		switch mode := FormatMode(strings.ToLower(args[0])); mode {
		case FormatShow, FormatOn, FormatOff, FormatDefault:
			return Format{Mode: mode}
		case FormatAdd:
			f := Format{Mode: FormatAdd}
			if len(args) > 1 {
				f.Delimiter = args[1]
			}
			if len(args) > 2 {
				f.Name = strings.Join(args[2:], " ")
			}
			return f
		default:
			return ParseError{Message: "unknown format mode: " + args[0] + " (use on, off, default, add or show)"}
		}

	case "/export":
		dir := strings.Join(args, " ")
		return Export{Dir: dir}

	case "/runs", "/history":
		return ShowRuns{}

	case "/quit", "/exit":
		return Quit{}

	default:
		return ParseError{Message: "unknown command: " + cmd}
	}
}

// HelpText returns the help text for all available commands.
func HelpText() string {
	return `Available commands:
  /help                  - Show this help
  /cancel                - Stop the reply being streamed
  /retry                 - Resend the last failed or cancelled message
  /format [on|off]       - Turn formatting on or off for this session
  /format default        - Drop the session override and use the defaults
  /format show           - Show the active formatting rules
  /format add [d] [name] - Add a rule for delimiter d (default |)
  /export [dir]          - Export the transcript as markdown
  /runs                  - Browse the local stream journal
  /quit                  - Leave the chat`
}
