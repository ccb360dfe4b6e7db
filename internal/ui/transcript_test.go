// internal/ui/transcript_test.go
package ui

import (
	"errors"
	"strings"
	"testing"

	"rpchat/internal/chat"
	"rpchat/internal/formatting"
	"rpchat/internal/models"
	"rpchat/internal/render"
)

func testTranscript(state chat.State) *Transcript {
	return &Transcript{
		Character: &models.Character{Name: "Mara"},
		Messages: []models.Message{
			{ID: 1, Role: models.RoleAssistant, Content: "*nods* Evening.", Timestamp: "2026-03-01T09:00:00Z"},
			{ID: 2, Role: models.RoleUser, Content: "A room please.", Timestamp: "2026-03-01T09:01:00Z"},
		},
		State:    state,
		Renderer: render.New(formatting.DefaultSettings()),
	}
}

func TestTranscriptRender(t *testing.T) {
	tests := []struct {
		name    string
		state   chat.State
		want    []string
		notWant []string
	}{
		{
			name:    "idle",
			state:   chat.State{Phase: chat.PhaseIdle},
			want:    []string{"Mara", "You", "nods Evening.", "A room please."},
			notWant: []string{typingIndicator, "streaming..."},
		},
		{
			name:  "sending",
			state: chat.State{Phase: chat.PhaseSending},
			want:  []string{"is thinking..."},
		},
		{
			name:  "streaming",
			state: chat.State{Phase: chat.PhaseStreaming, Content: "Upstairs, *poi"},
			want:  []string{"streaming...", "Upstairs, *poi" + typingIndicator},
		},
		{
			name:  "cancelled with partial reply",
			state: chat.State{Phase: chat.PhaseCancelled, Content: "Upstairs"},
			want:  []string{"Upstairs [cancelled]"},
		},
		{
			name:    "cancelled before any content",
			state:   chat.State{Phase: chat.PhaseCancelled},
			notWant: []string{"[cancelled]"},
		},
		{
			name:  "backend error",
			state: chat.State{Phase: chat.PhaseErrored, Err: &chat.BackendError{Message: "model overloaded"}},
			want:  []string{"Backend error", "model overloaded", "/retry"},
		},
		{
			name:  "transport error",
			state: chat.State{Phase: chat.PhaseErrored, Err: &chat.TransportError{Err: errors.New("connection refused")}},
			want:  []string{"Connection error", "connection refused"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := testTranscript(tt.state).Render(0)
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("Expected %q in:\n%s", w, out)
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(out, nw) {
					t.Errorf("Did not expect %q in:\n%s", nw, out)
				}
			}
		})
	}
}

func TestTranscriptTimestamps(t *testing.T) {
	tr := testTranscript(chat.State{})
	tr.Messages = append(tr.Messages, models.Message{ID: 3, Role: models.RoleUser, Content: "no time"})

	out := tr.Render(0)
	if strings.Count(out, "[") != 2 {
		t.Errorf("Expected timestamp headers only for parseable timestamps:\n%s", out)
	}
	if !strings.Contains(out, "no time") {
		t.Error("Expected message without timestamp to render")
	}
}

func TestTranscriptWithoutCharacter(t *testing.T) {
	tr := testTranscript(chat.State{})
	tr.Character = nil

	if !strings.Contains(tr.Render(0), "Assistant") {
		t.Error("Expected fallback speaker name")
	}
}
