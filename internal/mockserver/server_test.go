package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"rpchat/internal/models"
	"rpchat/internal/stream"
)

func post(t *testing.T, s *Server, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func sessionPath(id int64, suffix string) string {
	return fmt.Sprintf("/api/v1/chat-sessions/%d%s", id, suffix)
}

func decodeEvents(t *testing.T, body string) []stream.Event {
	t.Helper()
	d := stream.NewDecoder(strings.NewReader(body))
	var events []stream.Event
	for ev := range d.All() {
		events = append(events, ev)
	}
	return events
}

func TestSendMessageStream(t *testing.T) {
	s := New(WithResponder(func(c *models.Character, prompt string) []string {
		return []string{"*bows* ", `"Welcome"`}
	}))
	id := s.Seed()

	rec := post(t, s, sessionPath(id, "/send-message"), `{"content":"hi","stream":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected event-stream content type, got %s", ct)
	}

	events := decodeEvents(t, rec.Body.String())
	want := []stream.EventType{stream.TypeUserMessageSaved, stream.TypeContent, stream.TypeContent, stream.TypeDone}
	if len(events) != len(want) {
		t.Fatalf("Expected %d events, got %d: %+v", len(want), len(events), events)
	}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Errorf("event %d = %s, want %s", i, ev.Type, want[i])
		}
	}

	stored := s.Messages(id)
	if len(stored) != 2 || stored[1].Content != `*bows* "Welcome"` {
		t.Errorf("Unexpected stored messages: %+v", stored)
	}
	if *events[3].AIMessageID != stored[1].ID || *events[3].UserMessageID != stored[0].ID {
		t.Errorf("done ids do not match stored messages")
	}
}

func TestSendMessageFailNext(t *testing.T) {
	s := New()
	id := s.Seed()
	s.FailNext(id, "upstream model timed out")

	rec := post(t, s, sessionPath(id, "/send-message"), `{"content":"hi","stream":true}`)
	events := decodeEvents(t, rec.Body.String())

	last := events[len(events)-1]
	if last.Type != stream.TypeError || last.Error != "upstream model timed out" || last.Synthetic {
		t.Errorf("Expected backend error event, got %+v", last)
	}
	if len(s.Messages(id)) != 1 {
		t.Errorf("Expected only the user message stored, got %d", len(s.Messages(id)))
	}

	// the failure only applies once
	rec = post(t, s, sessionPath(id, "/send-message"), `{"content":"again","stream":true}`)
	events = decodeEvents(t, rec.Body.String())
	if events[len(events)-1].Type != stream.TypeDone {
		t.Errorf("Expected second send to complete, got %+v", events[len(events)-1])
	}
}

func TestSendMessageNonStreaming(t *testing.T) {
	s := New()
	id := s.Seed()

	rec := post(t, s, sessionPath(id, "/send-message"), `{"content":"hi","stream":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			UserMessage models.Message `json:"user_message"`
			AIMessage   models.Message `json:"ai_message"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp.Success || resp.Data.AIMessage.Role != models.RoleAssistant {
		t.Errorf("Unexpected response: %s", rec.Body.String())
	}
}

func TestSendMessageValidation(t *testing.T) {
	s := New()
	id := s.Seed()

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"empty content", sessionPath(id, "/send-message"), `{"content":"  "}`, http.StatusBadRequest},
		{"bad id", "/api/v1/chat-sessions/abc/send-message", `{"content":"hi"}`, http.StatusBadRequest},
		{"unknown session", "/api/v1/chat-sessions/99/send-message", `{"content":"hi"}`, http.StatusNotFound},
		{"cancel unknown session", "/api/v1/chat-sessions/99/cancel-message", ``, http.StatusNotFound},
		{"cancel idle session", sessionPath(id, "/cancel-message"), ``, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(t, s, tt.path, tt.body)
			if rec.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpdateSessionRejectsInvalidRules(t *testing.T) {
	s := New()
	id := s.Seed()

	body := `{"formatting_settings":{"enabled":true,"rules":[{"id":"a","delimiter":"****","enabled":true}]}}`
	req := httptest.NewRequest(http.MethodPut, sessionPath(id, ""), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("Expected 422, got %d", rec.Code)
	}
}
