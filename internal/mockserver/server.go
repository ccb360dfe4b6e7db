// internal/mockserver/server.go
package mockserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"rpchat/internal/formatting"
	"rpchat/internal/logger"
	"rpchat/internal/models"
	"rpchat/internal/stream"
)

// Responder produces the reply chunks for a prompt
type Responder func(character *models.Character, prompt string) []string

// Option configures a Server
type Option func(*Server)

// WithResponder replaces the default echo reply
func WithResponder(r Responder) Option {
	return func(s *Server) {
		s.responder = r
	}
}

// WithChunkDelay pauses between streamed chunks
func WithChunkDelay(d time.Duration) Option {
	return func(s *Server) {
		s.chunkDelay = d
	}
}

// Server is an in-memory implementation of the backend's chat endpoints,
// for local development and client tests
type Server struct {
	responder  Responder
	chunkDelay time.Duration
	now        func() time.Time

	mu         sync.Mutex
	nextID     int64
	characters map[int64]*models.Character
	sessions   map[int64]*models.ChatSession
	messages   map[int64][]models.Message
	settings   models.ApplicationSettings
	active     map[int64]context.CancelFunc
	failNext   map[int64]string
}

func New(opts ...Option) *Server {
	s := &Server{
		responder:  EchoResponder,
		now:        time.Now,
		characters: make(map[int64]*models.Character),
		sessions:   make(map[int64]*models.ChatSession),
		messages:   make(map[int64][]models.Message),
		active:     make(map[int64]context.CancelFunc),
		failNext:   make(map[int64]string),
		settings: models.ApplicationSettings{
			FormattingSettings: formatting.DefaultSettings(),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EchoResponder answers in character, split into word-sized chunks
func EchoResponder(character *models.Character, prompt string) []string {
	reply := fmt.Sprintf(`*%s considers this for a moment* "You said: %s"`, character.DisplayName(), prompt)
	return strings.SplitAfter(reply, " ")
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

// AddCharacter stores a character and returns it with its id
func (s *Server) AddCharacter(c models.Character) models.Character {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.ID = s.id()
	stamp := models.Stamp(s.now())
	c.CreatedAt, c.UpdatedAt = stamp, stamp
	s.characters[c.ID] = &c
	return c
}

// AddSession opens a chat session with a stored character
func (s *Server) AddSession(characterID int64) (models.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.characters[characterID]; !ok {
		return models.ChatSession{}, fmt.Errorf("character %d not found", characterID)
	}
	session := &models.ChatSession{
		ID:          s.id(),
		CharacterID: characterID,
		StartTime:   models.Stamp(s.now()),
	}
	s.sessions[session.ID] = session
	return *session, nil
}

// Seed adds a demo character and an empty session, returning the session id
func (s *Server) Seed() int64 {
	c := s.AddCharacter(models.Character{
		Label:       "innkeeper",
		Name:        "Mara",
		Description: "Keeper of the Crooked Lantern inn.",
		FirstMessages: []models.FirstMessage{
			{Content: `*Mara wipes down the counter and looks up* "Welcome, traveler. Room or a drink?"`},
			{Content: `*The fire crackles as Mara sets down a mug* "Long road? ~They always look tired.~"`},
			{Content: `"_Closed_ for the night," *Mara says, then sighs* "Fine. Come in out of the rain."`},
		},
	})
	session, _ := s.AddSession(c.ID)
	return session.ID
}

// FailNext makes the next reply in the session end with a backend error
func (s *Server) FailNext(sessionID int64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[sessionID] = message
}

// Messages returns what the server has stored for a session
func (s *Server) Messages(sessionID int64) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages[sessionID]...)
}

// Router builds the gin engine serving the API
func (s *Server) Router() *gin.Engine {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api/v1")
	{
		sessions := api.Group("/chat-sessions/:id")
		sessions.GET("", s.getSession)
		sessions.PUT("", s.updateSession)
		sessions.GET("/messages", s.getMessages)
		sessions.POST("/send-message", s.sendMessage)
		sessions.POST("/cancel-message", s.cancelMessage)
		sessions.POST("/first-message", s.firstMessage)

		api.GET("/characters/:id", s.getCharacter)
		api.GET("/settings/", s.getSettings)
	}

	return r
}

// Run serves on addr until ctx is cancelled
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.WithComponent("mock").Infof("mock backend listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.WithComponent("mock").WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"success": false, "error": message})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		fail(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// lookupSession returns the session with its character attached. Caller holds s.mu.
func (s *Server) lookupSession(id int64) (models.ChatSession, bool) {
	session, found := s.sessions[id]
	if !found {
		return models.ChatSession{}, false
	}
	out := *session
	if c, ok := s.characters[session.CharacterID]; ok {
		cp := *c
		out.Character = &cp
	}
	return out, true
}

func (s *Server) getSession(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	s.mu.Lock()
	session, found := s.lookupSession(id)
	s.mu.Unlock()

	if !found {
		fail(c, http.StatusNotFound, "chat session not found")
		return
	}
	ok(c, session)
}

type updateSessionRequest struct {
	FormattingSettings *formatting.Settings `json:"formatting_settings"`
}

func (s *Server) updateSession(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := formatting.Validate(req.FormattingSettings); err != nil {
		fail(c, http.StatusUnprocessableEntity, err.Error())
		return
	}

	s.mu.Lock()
	stored, found := s.sessions[id]
	if found {
		stored.FormattingSettings = req.FormattingSettings
		stored.UpdatedAt = models.Stamp(s.now())
	}
	session, _ := s.lookupSession(id)
	s.mu.Unlock()

	if !found {
		fail(c, http.StatusNotFound, "chat session not found")
		return
	}
	ok(c, session)
}

func (s *Server) getMessages(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	s.mu.Lock()
	_, found := s.sessions[id]
	items := append([]models.Message{}, s.messages[id]...)
	s.mu.Unlock()

	if !found {
		fail(c, http.StatusNotFound, "chat session not found")
		return
	}
	ok(c, gin.H{"items": items, "total": len(items)})
}

type sendMessageRequest struct {
	Content string `json:"content"`
	Stream  *bool  `json:"stream"`
}

func (s *Server) sendMessage(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		fail(c, http.StatusBadRequest, "content is required")
		return
	}

	genCtx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	s.mu.Lock()
	session, found := s.lookupSession(id)
	if !found {
		s.mu.Unlock()
		fail(c, http.StatusNotFound, "chat session not found")
		return
	}
	if _, busy := s.active[id]; busy {
		s.mu.Unlock()
		fail(c, http.StatusConflict, "a reply is already being generated")
		return
	}
	s.active[id] = cancel
	failure, failing := s.failNext[id]
	delete(s.failNext, id)

	userMsg := models.Message{
		ID:            s.id(),
		ChatSessionID: id,
		Role:          models.RoleUser,
		Content:       req.Content,
		Timestamp:     models.Stamp(s.now()),
	}
	s.messages[id] = append(s.messages[id], userMsg)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.active, id)
		s.mu.Unlock()
	}()

	chunks := s.responder(session.Character, req.Content)

	if req.Stream != nil && !*req.Stream {
		if failing {
			fail(c, http.StatusBadGateway, failure)
			return
		}
		reply := s.saveReply(id, strings.Join(chunks, ""))
		ok(c, gin.H{"user_message": userMsg, "ai_message": reply})
		return
	}

	w := newSSEWriter(c.Writer)
	log := logger.WithComponent("mock").WithField("session", id)

	if err := w.Write(stream.Event{Type: stream.TypeUserMessageSaved, UserMessageID: stream.ID(userMsg.ID)}); err != nil {
		return
	}

	var sb strings.Builder
	for i, chunk := range chunks {
		if i > 0 && s.chunkDelay > 0 {
			select {
			case <-genCtx.Done():
			case <-time.After(s.chunkDelay):
			}
		}
		if genCtx.Err() != nil {
			log.Debug("generation cancelled")
			w.Write(stream.Event{Type: stream.TypeCancelled, Reason: "cancelled by user"})
			return
		}

		if err := w.Write(stream.Event{Type: stream.TypeContent, Data: chunk}); err != nil {
			log.WithError(err).Debug("client went away")
			return
		}
		sb.WriteString(chunk)

		if failing && i == 0 {
			w.Write(stream.Event{Type: stream.TypeError, Error: failure})
			return
		}
	}

	reply := s.saveReply(id, sb.String())
	w.Write(stream.Event{
		Type:          stream.TypeDone,
		UserMessageID: stream.ID(userMsg.ID),
		AIMessageID:   stream.ID(reply.ID),
	})
}

func (s *Server) saveReply(sessionID int64, content string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	reply := models.Message{
		ID:            s.id(),
		ChatSessionID: sessionID,
		Role:          models.RoleAssistant,
		Content:       content,
		Timestamp:     models.Stamp(s.now()),
	}
	s.messages[sessionID] = append(s.messages[sessionID], reply)
	return reply
}

func (s *Server) cancelMessage(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	s.mu.Lock()
	_, found := s.sessions[id]
	cancel, active := s.active[id]
	s.mu.Unlock()

	if !found {
		fail(c, http.StatusNotFound, "chat session not found")
		return
	}
	if active {
		cancel()
	}
	ok(c, gin.H{"cancelled": active})
}

type firstMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) firstMessage(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	var req firstMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		fail(c, http.StatusBadRequest, "content is required")
		return
	}

	s.mu.Lock()
	_, found := s.sessions[id]
	existing := len(s.messages[id])
	s.mu.Unlock()

	if !found {
		fail(c, http.StatusNotFound, "chat session not found")
		return
	}
	if existing > 0 {
		fail(c, http.StatusConflict, "chat session already has messages")
		return
	}

	ok(c, s.saveReply(id, req.Content))
}

func (s *Server) getCharacter(c *gin.Context) {
	id, valid := pathID(c)
	if !valid {
		return
	}

	s.mu.Lock()
	character, found := s.characters[id]
	var out models.Character
	if found {
		out = *character
	}
	s.mu.Unlock()

	if !found {
		fail(c, http.StatusNotFound, "character not found")
		return
	}
	ok(c, out)
}

func (s *Server) getSettings(c *gin.Context) {
	s.mu.Lock()
	settings := s.settings
	s.mu.Unlock()
	ok(c, settings)
}
