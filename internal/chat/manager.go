// internal/chat/manager.go
package chat

import (
	"context"
	"sync"

	"rpchat/internal/formatting"
	"rpchat/internal/models"
)

// Manager keeps one Session per chat session id
type Manager struct {
	transport Transport
	opts      []Option

	mu       sync.Mutex
	sessions map[int64]*Session
}

func NewManager(transport Transport, opts ...Option) *Manager {
	return &Manager{
		transport: transport,
		opts:      opts,
		sessions:  make(map[int64]*Session),
	}
}

// Open returns the session for id, creating it with seed when it is new.
// An existing session keeps its messages.
func (m *Manager) Open(id int64, seed []models.Message) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s
	}
	s := NewSession(id, m.transport, seed, m.opts...)
	m.sessions[id] = s
	return s
}

// Get returns the session for id, or nil
func (m *Manager) Get(id int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Send posts content to the given chat session
func (m *Manager) Send(ctx context.Context, sessionID int64, content string) (<-chan Update, error) {
	return m.Open(sessionID, nil).Send(ctx, content)
}

// Cancel stops the session's in-flight reply. Unknown sessions are a no-op.
func (m *Manager) Cancel(ctx context.Context, sessionID int64) error {
	s := m.Get(sessionID)
	if s == nil {
		return nil
	}
	return s.Cancel(ctx)
}

// FormatText splits text into styled segments
func (m *Manager) FormatText(text string, settings *formatting.Settings) []formatting.Segment {
	return formatting.Parse(text, settings)
}
