package commands

import (
	"strings"
	"testing"
)

func TestParse_NonSlashCommand(t *testing.T) {
	tests := []string{
		"hello world",
		"",
		"   ",
		"help",
		"*waves* hello",
		"this is not a command",
	}

	for _, input := range tests {
		result := Parse(input)
		if result != nil {
			t.Errorf("Parse(%q) = %v, want nil", input, result)
		}
	}
}

func TestParse_Help(t *testing.T) {
	tests := []string{
		"/help",
		"/HELP",
		"/Help",
		"  /help  ",
		"/help extra args ignored",
		"/?",
	}

	for _, input := range tests {
		result := Parse(input)
		if result == nil {
			t.Errorf("Parse(%q) = nil, want Help{}", input)
			continue
		}
		if _, ok := result.(Help); !ok {
			t.Errorf("Parse(%q) = %T, want Help", input, result)
		}
		if result.Type() != "help" {
			t.Errorf("Parse(%q).Type() = %q, want %q", input, result.Type(), "help")
		}
	}
}

func TestParse_SimpleCommands(t *testing.T) {
	tests := []struct {
		input    string
		wantType string
	}{
		{"/cancel", "cancel"},
		{"/stop", "cancel"},
		{"/CANCEL", "cancel"},
		{"/retry", "retry"},
		{"/runs", "runs"},
		{"/history", "runs"},
		{"/quit", "quit"},
		{"/exit", "quit"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := Parse(tt.input)
			if result == nil {
				t.Fatalf("Parse(%q) = nil", tt.input)
			}
			if result.Type() != tt.wantType {
				t.Errorf("Parse(%q).Type() = %q, want %q", tt.input, result.Type(), tt.wantType)
			}
		})
	}
}

func TestParse_Format(t *testing.T) {
	tests := []struct {
		input    string
		wantMode FormatMode
	}{
		{"/format", FormatShow},
		{"/format show", FormatShow},
		{"/format on", FormatOn},
		{"/format OFF", FormatOff},
		{"/format default", FormatDefault},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := Parse(tt.input)
			f, ok := result.(Format)
			if !ok {
				t.Fatalf("Parse(%q) = %T, want Format", tt.input, result)
			}
			if f.Mode != tt.wantMode {
				t.Errorf("Parse(%q).Mode = %q, want %q", tt.input, f.Mode, tt.wantMode)
			}
		})
	}
}

func TestParse_FormatAdd(t *testing.T) {
	tests := []struct {
		input         string
		wantDelimiter string
		wantName      string
	}{
		{"/format add", "", ""},
		{"/format add ^", "^", ""},
		{"/format ADD ^ Soft whisper", "^", "Soft whisper"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, ok := Parse(tt.input).(Format)
			if !ok {
				t.Fatalf("Parse(%q) = %T, want Format", tt.input, Parse(tt.input))
			}
			if f.Mode != FormatAdd {
				t.Errorf("Parse(%q).Mode = %q, want %q", tt.input, f.Mode, FormatAdd)
			}
			if f.Delimiter != tt.wantDelimiter || f.Name != tt.wantName {
				t.Errorf("Parse(%q) = {%q %q}, want {%q %q}", tt.input, f.Delimiter, f.Name, tt.wantDelimiter, tt.wantName)
			}
		})
	}
}

func TestParse_FormatInvalidMode(t *testing.T) {
	result := Parse("/format sparkly")
	pe, ok := result.(ParseError)
	if !ok {
		t.Fatalf("Parse() = %T, want ParseError", result)
	}
	if !strings.Contains(pe.Message, "sparkly") {
		t.Errorf("ParseError.Message = %q, want it to name the mode", pe.Message)
	}
}

func TestParse_Export(t *testing.T) {
	tests := []struct {
		input   string
		wantDir string
	}{
		{"/export", ""},
		{"/export ./out", "./out"},
		{"/export my exports", "my exports"},
	}

	for _, tt := range tests {
		result := Parse(tt.input)
		e, ok := result.(Export)
		if !ok {
			t.Errorf("Parse(%q) = %T, want Export", tt.input, result)
			continue
		}
		if e.Dir != tt.wantDir {
			t.Errorf("Parse(%q).Dir = %q, want %q", tt.input, e.Dir, tt.wantDir)
		}
	}
}

func TestParse_Unknown(t *testing.T) {
	result := Parse("/dance")
	pe, ok := result.(ParseError)
	if !ok {
		t.Fatalf("Parse(/dance) = %T, want ParseError", result)
	}
	if pe.Message != "unknown command: /dance" {
		t.Errorf("Message = %q", pe.Message)
	}
	if pe.Type() != "error" {
		t.Errorf("Type() = %q, want error", pe.Type())
	}
}

func TestHelpText(t *testing.T) {
	text := HelpText()
	for _, cmd := range []string{"/help", "/cancel", "/retry", "/format", "/export", "/runs", "/quit"} {
		if !strings.Contains(text, cmd) {
			t.Errorf("HelpText() missing %s", cmd)
		}
	}
}
