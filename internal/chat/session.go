// internal/chat/session.go
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"rpchat/internal/logger"
	"rpchat/internal/models"
	"rpchat/internal/stream"
)

// Transport opens send-message streams and asks the backend to stop them
type Transport interface {
	SendMessage(ctx context.Context, sessionID int64, content string) (stream.Source, error)
	CancelMessage(ctx context.Context, sessionID int64) error
}

// Recorder is told when interactions start and finish
type Recorder interface {
	RunStarted(run models.Run) error
	RunFinished(run models.Run) error
}

// Option configures a Session
type Option func(*Session)

// WithRecorder journals every interaction
func WithRecorder(r Recorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

// WithClock overrides the time source used for message timestamps
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

const updateBuffer = 64

// interaction is one send and its stream
type interaction struct {
	prompt    string
	userID    int64
	cancelled atomic.Bool
	abort     context.CancelFunc
	run       models.Run
}

// Session drives the streaming exchange for one chat session.
// At most one interaction is in flight. A new Send is refused until its stream
// goroutine has exited, even when it was already cancelled locally.
type Session struct {
	id        int64
	transport Transport
	recorder  Recorder
	now       func() time.Time

	mu       sync.Mutex
	messages []models.Message
	state    State
	current  *interaction
	running  *interaction // set from Send until the stream goroutine finishes
	nextTemp int64
}

// NewSession creates a session holding the already loaded messages
func NewSession(id int64, transport Transport, seed []models.Message, opts ...Option) *Session {
	s := &Session{
		id:        id,
		transport: transport,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Seed(seed)
	return s
}

func (s *Session) ID() int64 {
	return s.id
}

func (s *Session) log() *logrus.Entry {
	return logger.WithComponent("chat").WithField("session", s.id)
}

// Seed replaces the message list, sorted chronologically
func (s *Session) Seed(msgs []models.Message) {
	cp := make([]models.Message, len(msgs))
	copy(cp, msgs)
	models.SortByTimestamp(cp)

	s.mu.Lock()
	s.messages = cp
	s.mu.Unlock()
}

// AppendOpening adds a character's opening line as an assistant message.
// A zero id is replaced with a provisional one.
func (s *Session) AppendOpening(msg models.Message) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ChatSessionID = s.id
	msg.Role = models.RoleAssistant
	if msg.ID == 0 {
		msg.ID = s.provisionalID()
		msg.Provisional = true
	}
	if msg.Timestamp == "" {
		msg.Timestamp = models.Stamp(s.now())
	}
	s.messages = append(s.messages, msg)
	return msg
}

// Messages returns a copy of the committed messages
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// State returns the current interaction snapshot
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// busy reports whether an interaction still owns the state.
// Caller holds s.mu.
func (s *Session) busy() bool {
	return s.running != nil || s.state.Phase.Active()
}

// provisionalID hands out negative ids, which never collide with backend ids.
// Caller holds s.mu.
func (s *Session) provisionalID() int64 {
	s.nextTemp--
	return s.nextTemp
}

// Send posts content and streams the reply. The returned channel receives an
// Update for every state change and is closed after the terminal one.
func (s *Session) Send(ctx context.Context, content string) (<-chan Update, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.busy() {
		s.mu.Unlock()
		return nil, ErrBusy
	}

	now := s.now()
	userMsg := models.Message{
		ID:            s.provisionalID(),
		ChatSessionID: s.id,
		Role:          models.RoleUser,
		Content:       content,
		Timestamp:     models.Stamp(now),
		Provisional:   true,
	}
	s.messages = append(s.messages, userMsg)

	reqCtx, abort := context.WithCancel(ctx)
	cur := &interaction{
		prompt: content,
		userID: userMsg.ID,
		abort:  abort,
		run: models.Run{
			ID:        uuid.NewString(),
			SessionID: s.id,
			Prompt:    content,
			Phase:     PhaseSending.String(),
			StartedAt: now,
		},
	}
	s.current = cur
	s.running = cur
	s.state = State{
		Phase:  PhaseSending,
		Prompt: content,
		RunID:  cur.run.ID,
	}
	first := s.state
	s.mu.Unlock()

	if s.recorder != nil {
		if err := s.recorder.RunStarted(cur.run); err != nil {
			s.log().WithError(err).Warn("failed to journal run start")
		}
	}

	updates := make(chan Update, updateBuffer)
	updates <- Update{SessionID: s.id, State: first}

	go s.stream(reqCtx, cur, updates)

	return updates, nil
}

// stream runs one interaction to its end
func (s *Session) stream(ctx context.Context, cur *interaction, updates chan<- Update) {
	defer close(updates)
	defer cur.abort()

	src, err := s.transport.SendMessage(ctx, s.id, cur.prompt)
	if err != nil {
		s.fail(cur, &TransportError{Err: err})
		s.finish(cur, updates)
		return
	}
	defer src.Close()

	for {
		if cur.cancelled.Load() {
			break
		}

		ev, ok := src.Next()
		if !ok {
			// a source that runs dry without a terminal event was cut short
			s.fail(cur, &TransportError{Err: stream.ErrInterrupted})
			break
		}

		state, applied, terminal := s.apply(cur, ev)
		if !applied {
			break
		}
		if terminal {
			break
		}
		s.publish(updates, state)
	}

	s.finish(cur, updates)
}

// apply folds one event into the session. It reports false once the
// interaction was cancelled, so nothing after Cancel reaches the state.
func (s *Session) apply(cur *interaction, ev stream.Event) (State, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur.cancelled.Load() {
		return s.state, false, false
	}

	// the response has started once its first event arrives
	if s.state.Phase == PhaseSending {
		s.state.Phase = PhaseStreaming
	}

	switch ev.Type {
	case stream.TypeUserMessageSaved:
		if ev.UserMessageID != nil {
			s.confirmUser(cur, *ev.UserMessageID)
		}

	case stream.TypeContent:
		s.state.Content += ev.Data

	case stream.TypeDone:
		if ev.UserMessageID != nil {
			s.confirmUser(cur, *ev.UserMessageID)
		}

		reply := models.Message{
			ChatSessionID: s.id,
			Role:          models.RoleAssistant,
			Content:       s.state.Content,
			Timestamp:     models.Stamp(s.now()),
		}
		if ev.AIMessageID != nil {
			reply.ID = *ev.AIMessageID
		} else {
			reply.ID = s.provisionalID()
			reply.Provisional = true
		}
		s.messages = append(s.messages, reply)

		cur.run.Content = reply.Content
		cur.run.AIMessageID = &reply.ID
		s.state.Content = ""
		s.state.Phase = PhaseDone
		return s.state, true, true

	case stream.TypeError:
		msg := ev.Error
		if msg == "" {
			msg = "unknown error"
		}
		var err error = &BackendError{Message: msg}
		if ev.Synthetic {
			err = &TransportError{Err: errors.New(msg)}
		}
		s.state.Phase = PhaseErrored
		s.state.Err = err
		cur.run.Content = s.state.Content
		return s.state, true, true

	case stream.TypeCancelled:
		s.state.Phase = PhaseCancelled
		s.state.CancelReason = ev.Reason
		cur.run.Content = s.state.Content
		return s.state, true, true
	}

	return s.state, true, false
}

// confirmUser swaps the provisional user id for the backend's, in place.
// Caller holds s.mu.
func (s *Session) confirmUser(cur *interaction, id int64) {
	for i := range s.messages {
		if s.messages[i].ID == cur.userID && s.messages[i].Role == models.RoleUser {
			s.messages[i].ID = id
			s.messages[i].Provisional = false
			cur.userID = id
			cur.run.UserMessageID = &id
			return
		}
	}
}

func (s *Session) fail(cur *interaction, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur.cancelled.Load() {
		return
	}
	s.state.Phase = PhaseErrored
	s.state.Err = err
	cur.run.Content = s.state.Content
}

// finish publishes the terminal state and journals the run. The state still
// belongs to cur here because Send is refused while cur is running; releasing
// it happens in the same critical section as the snapshot.
func (s *Session) finish(cur *interaction, updates chan<- Update) {
	s.mu.Lock()
	final := s.state
	if cur.cancelled.Load() {
		cur.run.Content = final.Content
	}
	run := cur.run
	if s.running == cur {
		s.running = nil
	}
	s.mu.Unlock()

	finished := s.now()
	run.Phase = final.Phase.String()
	run.FinishedAt = &finished
	if final.Err != nil {
		run.Error = final.Err.Error()
	}

	if s.recorder != nil {
		if err := s.recorder.RunFinished(run); err != nil {
			s.log().WithError(err).Warn("failed to journal run result")
		}
	}

	s.log().WithFields(logrus.Fields{
		"run":   run.ID,
		"phase": run.Phase,
	}).Debug("interaction finished")

	s.publish(updates, final)
}

func (s *Session) publish(updates chan<- Update, state State) {
	updates <- Update{SessionID: s.id, State: state}
}

// Cancel stops the in-flight interaction.
//
// The local state moves to Cancelled at once and any event still arriving is
// ignored. The backend is then asked to stop generating; if that call fails the
// error is returned but the local cancellation stands. Without an active
// interaction Cancel does nothing.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	cur := s.current
	if cur == nil || !s.state.Phase.Active() {
		s.mu.Unlock()
		return nil
	}
	cur.cancelled.Store(true)
	s.state.Phase = PhaseCancelled
	s.mu.Unlock()

	cur.abort()

	if err := s.transport.CancelMessage(ctx, s.id); err != nil {
		s.log().WithError(err).Warn("backend cancel failed")
		return &TransportError{Err: err}
	}
	return nil
}

// Retry sends the prompt of the last failed or cancelled interaction again.
// Its user message is dropped first when the backend never confirmed it.
func (s *Session) Retry(ctx context.Context) (<-chan Update, error) {
	s.mu.Lock()
	if s.busy() {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	cur := s.current
	if cur == nil || (s.state.Phase != PhaseErrored && s.state.Phase != PhaseCancelled) {
		s.mu.Unlock()
		return nil, ErrNothingToRetry
	}

	for i := range s.messages {
		if s.messages[i].ID == cur.userID && s.messages[i].Provisional {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			break
		}
	}
	prompt := cur.prompt
	s.mu.Unlock()

	return s.Send(ctx, prompt)
}
