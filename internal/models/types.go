// internal/models/types.go
package models

import (
	"sort"
	"time"

	"rpchat/internal/formatting"
)

// Role is who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a message in a chat session
type Message struct {
	ID            int64  `json:"id"`
	ChatSessionID int64  `json:"chat_session_id"`
	Role          Role   `json:"role"`
	Content       string `json:"content"`
	Timestamp     string `json:"timestamp"`

	// Provisional marks ids assigned locally before the backend confirmed them.
	// Provisional ids are negative.
	Provisional bool `json:"-"`
}

// Time parses the wire timestamp. Unparseable values give the zero time.
func (m Message) Time() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, m.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Stamp formats t the way the backend does
func Stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// SortByTimestamp orders messages chronologically, keeping arrival order on ties
func SortByTimestamp(msgs []Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Time().Before(msgs[j].Time())
	})
}

// FirstMessage is one of a character's opening lines
type FirstMessage struct {
	ID      int64  `json:"id,omitempty"`
	Content string `json:"content"`
}

// Character is the persona the assistant plays
type Character struct {
	ID            int64          `json:"id"`
	Label         string         `json:"label"`
	Name          string         `json:"name"`
	Description   string         `json:"description,omitempty"`
	FirstMessages []FirstMessage `json:"first_messages,omitempty"`
	CreatedAt     string         `json:"created_at,omitempty"`
	UpdatedAt     string         `json:"updated_at,omitempty"`
}

// DisplayName prefers the character name over its label
func (c *Character) DisplayName() string {
	if c == nil {
		return "Assistant"
	}
	if c.Name != "" {
		return c.Name
	}
	if c.Label != "" {
		return c.Label
	}
	return "Assistant"
}

// ChatSession is a conversation with one character
type ChatSession struct {
	ID                 int64                `json:"id"`
	CharacterID        int64                `json:"character_id"`
	Character          *Character           `json:"character,omitempty"`
	UserProfileID      *int64               `json:"user_profile_id,omitempty"`
	AIModelID          *int64               `json:"ai_model_id,omitempty"`
	SystemPromptID     *int64               `json:"system_prompt_id,omitempty"`
	PrePrompt          string               `json:"pre_prompt,omitempty"`
	FormattingSettings *formatting.Settings `json:"formatting_settings,omitempty"`
	StartTime          string               `json:"start_time,omitempty"`
	UpdatedAt          string               `json:"updated_at,omitempty"`
}

// ApplicationSettings carries the backend-wide defaults the client reads
type ApplicationSettings struct {
	DefaultUserProfileID  *int64               `json:"default_user_profile_id,omitempty"`
	DefaultSystemPromptID *int64               `json:"default_system_prompt_id,omitempty"`
	DefaultAIModelID      *int64               `json:"default_ai_model_id,omitempty"`
	FormattingSettings    *formatting.Settings `json:"default_formatting_settings,omitempty"`
}

// Run is the local journal record of one send interaction
type Run struct {
	ID            string
	SessionID     int64
	Prompt        string
	Phase         string
	Content       string
	Error         string
	UserMessageID *int64
	AIMessageID   *int64
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// Duration is how long the run took, zero while unfinished
func (r Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
