// internal/client/client_test.go
package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"rpchat/internal/chat"
	"rpchat/internal/formatting"
	"rpchat/internal/mockserver"
	"rpchat/internal/models"
	"rpchat/internal/stream"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, WithHTTPClient(srv.Client()), WithRetry(fastRetry()))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return c
}

func drainSource(src stream.Source) []stream.Event {
	var events []stream.Event
	for {
		ev, ok := src.Next()
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func TestNormalizeServerURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		wantErr  bool
	}{
		{"http://127.0.0.1:5000", "http://127.0.0.1:5000", false},
		{"127.0.0.1:5000", "http://127.0.0.1:5000", false},
		{"https://rp.example.com/", "https://rp.example.com", false},
		{"https://rp.example.com/backend/", "https://rp.example.com/backend", false},
		{"", "", true},
		{"http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := normalizeServerURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("normalizeServerURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("normalizeServerURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestSendMessageStreams(t *testing.T) {
	mock := mockserver.New()
	sessionID := mock.Seed()
	c := newTestClient(t, mock.Router())

	src, err := c.SendMessage(context.Background(), sessionID, "hello there")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	events := drainSource(src)

	if len(events) < 3 {
		t.Fatalf("Expected at least 3 events, got %d", len(events))
	}
	if events[0].Type != stream.TypeUserMessageSaved || events[0].UserMessageID == nil {
		t.Errorf("Expected user_message_saved first, got %+v", events[0])
	}

	var content strings.Builder
	for _, ev := range events[1 : len(events)-1] {
		if ev.Type != stream.TypeContent {
			t.Errorf("Expected content event, got %s", ev.Type)
		}
		content.WriteString(ev.Data)
	}
	if !strings.Contains(content.String(), `"You said: hello there"`) {
		t.Errorf("Unexpected reply %q", content.String())
	}

	done := events[len(events)-1]
	if done.Type != stream.TypeDone || done.AIMessageID == nil {
		t.Fatalf("Expected done with ai id, got %+v", done)
	}

	stored := mock.Messages(sessionID)
	if len(stored) != 2 || stored[1].ID != *done.AIMessageID || stored[1].Content != content.String() {
		t.Errorf("Expected reply stored under ai id, got %+v", stored)
	}
}

func TestSendMessageNonStreaming(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Expected Accept text/event-stream, got %s", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Write([]byte(`{"success":true,"data":{"user_message":{"id":3,"role":"user","content":"hi"},"ai_message":{"id":4,"role":"assistant","content":"Hello!"}}}`))
	})
	c := newTestClient(t, handler)

	src, err := c.SendMessage(context.Background(), 1, "hi")
	if err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}
	events := drainSource(src)

	if len(events) != 3 {
		t.Fatalf("Expected 3 events, got %d: %+v", len(events), events)
	}
	if *events[0].UserMessageID != 3 {
		t.Errorf("Expected user id 3, got %d", *events[0].UserMessageID)
	}
	if events[1].Data != "Hello!" {
		t.Errorf("Expected content Hello!, got %q", events[1].Data)
	}
	if events[2].Type != stream.TypeDone || *events[2].AIMessageID != 4 {
		t.Errorf("Expected done with ai id 4, got %+v", events[2])
	}
}

func TestSendMessageIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"success":false,"error":"model pool exhausted"}`))
	})
	c := newTestClient(t, handler)

	_, err := c.SendMessage(context.Background(), 1, "hi")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusServiceUnavailable || statusErr.Message != "model pool exhausted" {
		t.Errorf("Unexpected status error: %+v", statusErr)
	}
	if calls.Load() != 1 {
		t.Errorf("Expected exactly 1 attempt, got %d", calls.Load())
	}
}

func TestReadsAreRetried(t *testing.T) {
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success":true,"data":{"default_formatting_settings":{"enabled":false,"rules":[]}}}`))
	})
	c := newTestClient(t, handler)

	settings, err := c.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("GetSettings failed: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("Expected 3 attempts, got %d", calls.Load())
	}
	if settings.FormattingSettings == nil || settings.FormattingSettings.Enabled {
		t.Errorf("Expected disabled formatting settings, got %+v", settings.FormattingSettings)
	}
}

func TestRetriesExhausted(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	c := newTestClient(t, handler)

	_, err := c.GetChatSession(context.Background(), 1)
	if !errors.Is(err, ErrRateLimit) {
		t.Errorf("Expected ErrRateLimit, got %v", err)
	}
}

func TestGetMessagesSorted(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat-sessions/9/messages" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		// bare body, no envelope
		w.Write([]byte(`{"items":[
			{"id":2,"chat_session_id":9,"role":"assistant","content":"b","timestamp":"2024-03-01T10:01:00Z"},
			{"id":1,"chat_session_id":9,"role":"user","content":"a","timestamp":"2024-03-01T10:00:00Z"}
		]}`))
	})
	c := newTestClient(t, handler)

	msgs, err := c.GetMessages(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != 1 || msgs[1].ID != 2 {
		t.Errorf("Expected messages sorted by timestamp, got %+v", msgs)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	mock := mockserver.New()
	sessionID := mock.Seed()
	c := newTestClient(t, mock.Router())
	ctx := context.Background()

	session, err := c.GetChatSession(ctx, sessionID)
	if err != nil {
		t.Fatalf("GetChatSession failed: %v", err)
	}
	if session.Character == nil || session.Character.Name != "Mara" {
		t.Fatalf("Expected embedded character Mara, got %+v", session.Character)
	}
	if session.FormattingSettings != nil {
		t.Error("Expected no formatting override on a new session")
	}

	character, err := c.GetCharacter(ctx, session.CharacterID)
	if err != nil {
		t.Fatalf("GetCharacter failed: %v", err)
	}
	if len(character.FirstMessages) != 3 {
		t.Errorf("Expected 3 first messages, got %d", len(character.FirstMessages))
	}

	override := &formatting.Settings{Enabled: true, Rules: []formatting.Rule{
		{ID: "whisper", Delimiter: "^", Name: "Whisper", Enabled: true},
	}}
	updated, err := c.UpdateSessionFormatting(ctx, sessionID, override)
	if err != nil {
		t.Fatalf("UpdateSessionFormatting failed: %v", err)
	}
	if updated.FormattingSettings == nil || updated.FormattingSettings.Rules[0].ID != "whisper" {
		t.Errorf("Expected override echoed back, got %+v", updated.FormattingSettings)
	}

	first, err := c.AddFirstMessage(ctx, sessionID, character.FirstMessages[1].Content)
	if err != nil {
		t.Fatalf("AddFirstMessage failed: %v", err)
	}
	if first.Role != models.RoleAssistant || first.ID == 0 {
		t.Errorf("Expected stored assistant message, got %+v", first)
	}

	_, err = c.AddFirstMessage(ctx, sessionID, "again")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for second first message, got %v", err)
	}
}

func TestUnknownSession(t *testing.T) {
	c := newTestClient(t, mockserver.New().Router())

	_, err := c.SendMessage(context.Background(), 404, "hi")
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("Expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusNotFound || statusErr.Message != "chat session not found" {
		t.Errorf("Unexpected status error: %+v", statusErr)
	}
}

func TestChatSessionAgainstMockBackend(t *testing.T) {
	mock := mockserver.New()
	sessionID := mock.Seed()
	c := newTestClient(t, mock.Router())

	s := chat.NewSession(sessionID, c, nil)
	updates, err := s.Send(context.Background(), "a room please")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	for range updates {
	}

	if s.State().Phase != chat.PhaseDone {
		t.Fatalf("Expected done, got %s (%v)", s.State().Phase, s.State().Err)
	}

	local := s.Messages()
	stored := mock.Messages(sessionID)
	if len(local) != 2 || len(stored) != 2 {
		t.Fatalf("Expected 2 messages on both sides, got %d local and %d stored", len(local), len(stored))
	}
	for i := range local {
		if local[i].ID != stored[i].ID || local[i].Content != stored[i].Content {
			t.Errorf("message %d: local %+v != stored %+v", i, local[i], stored[i])
		}
		if local[i].Provisional {
			t.Errorf("message %d still provisional", i)
		}
	}
}

func TestCancelAgainstMockBackend(t *testing.T) {
	mock := mockserver.New(mockserver.WithChunkDelay(50 * time.Millisecond))
	sessionID := mock.Seed()
	c := newTestClient(t, mock.Router())

	s := chat.NewSession(sessionID, c, nil)
	updates, err := s.Send(context.Background(), "tell me a long story")
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	for u := range updates {
		if u.State.Content != "" {
			break
		}
	}
	if err := s.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	for range updates {
	}

	if s.State().Phase != chat.PhaseCancelled {
		t.Errorf("Expected cancelled, got %s", s.State().Phase)
	}
	if len(s.Messages()) != 1 {
		t.Errorf("Expected only the user message locally, got %d", len(s.Messages()))
	}
	for _, m := range mock.Messages(sessionID) {
		if m.Role == models.RoleAssistant {
			t.Errorf("Expected no stored reply after cancel, got %+v", m)
		}
	}
}
