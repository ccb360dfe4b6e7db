// internal/ui/app.go
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"rpchat/internal/chat"
	"rpchat/internal/commands"
	"rpchat/internal/export"
	"rpchat/internal/formatting"
	"rpchat/internal/logger"
	"rpchat/internal/models"
	"rpchat/internal/render"
)

const (
	loadTimeout   = 30 * time.Second
	cancelTimeout = 10 * time.Second

	headerHeight = 2
	footerHeight = 4 // status line plus bordered input
)

// Backend is the part of the backend client the chat screen reads and writes
type Backend interface {
	GetChatSession(ctx context.Context, sessionID int64) (*models.ChatSession, error)
	GetMessages(ctx context.Context, sessionID int64) ([]models.Message, error)
	GetCharacter(ctx context.Context, characterID int64) (*models.Character, error)
	GetSettings(ctx context.Context) (*models.ApplicationSettings, error)
	UpdateSessionFormatting(ctx context.Context, sessionID int64, settings *formatting.Settings) (*models.ChatSession, error)
	AddFirstMessage(ctx context.Context, sessionID int64, content string) (*models.Message, error)
}

// Config wires the chat screen to its collaborators
type Config struct {
	SessionID int64
	Backend   Backend
	Chats     *chat.Manager
	Journal   RunLister // nil disables /runs

	// Defaults is used when the backend has no application formatting default
	Defaults  *formatting.Settings
	ExportDir string
}

type loadedMsg struct {
	info      *models.ChatSession
	character *models.Character
	messages  []models.Message
	defaults  *formatting.Settings
	err       error
}

type updateMsg struct {
	ch     <-chan chat.Update
	update chat.Update
	ok     bool
}

type cancelDoneMsg struct{ err error }

type formatSavedMsg struct {
	info *models.ChatSession
	err  error
}

type openingSavedMsg struct {
	msg *models.Message
	err error
}

type exportedMsg struct {
	path string
	err  error
}

// Model is the bubbletea model of the chat screen
type Model struct {
	cfg           Config
	width, height int
	ready         bool
	mode          ViewMode

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	loading   bool
	fatal     error
	session   *chat.Session
	info      *models.ChatSession
	character *models.Character
	defaults  *formatting.Settings
	renderer  *render.Renderer
	state     chat.State
	updates   <-chan chat.Update

	selector *Selector
	runs     *RunsState

	status    string
	statusErr bool
}

func New(cfg Config) Model {
	ti := textinput.New()
	ti.Placeholder = "Say something... (/help for commands)"
	ti.Prompt = "> "
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = StatusWarn

	if cfg.Defaults == nil {
		cfg.Defaults = formatting.DefaultSettings()
	}

	return Model{
		cfg:      cfg,
		input:    ti,
		spinner:  sp,
		loading:  true,
		renderer: render.New(cfg.Defaults),
		runs:     NewRunsState(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(loadSession(m.cfg), m.spinner.Tick, textinput.Blink)
}

// loadSession fetches everything the screen needs before the first render
func loadSession(cfg Config) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		info, err := cfg.Backend.GetChatSession(ctx, cfg.SessionID)
		if err != nil {
			return loadedMsg{err: fmt.Errorf("load chat session %d: %w", cfg.SessionID, err)}
		}

		character := info.Character
		if character == nil && info.CharacterID != 0 {
			character, err = cfg.Backend.GetCharacter(ctx, info.CharacterID)
			if err != nil {
				return loadedMsg{err: fmt.Errorf("load character %d: %w", info.CharacterID, err)}
			}
		}

		messages, err := cfg.Backend.GetMessages(ctx, cfg.SessionID)
		if err != nil {
			return loadedMsg{err: fmt.Errorf("load messages: %w", err)}
		}

		defaults := cfg.Defaults
		settings, err := cfg.Backend.GetSettings(ctx)
		if err != nil {
			logger.WithComponent("ui").WithError(err).Warn("application settings unavailable, using local formatting defaults")
		} else if settings.FormattingSettings != nil {
			defaults = settings.FormattingSettings
		}

		return loadedMsg{
			info:      info,
			character: character,
			messages:  messages,
			defaults:  defaults,
		}
	}
}

func waitForUpdate(ch <-chan chat.Update) tea.Cmd {
	return func() tea.Msg {
		u, ok := <-ch
		return updateMsg{ch: ch, update: u, ok: ok}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := msg.Height - headerHeight - footerHeight
		if vpHeight < 1 {
			vpHeight = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.viewport.MouseWheelEnabled = true
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = msg.Width - 6
		m.runs.SetMaxHeight(msg.Height)
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		return m.handleLoaded(msg)

	case updateMsg:
		if msg.ch != m.updates {
			return m, nil
		}
		if !msg.ok {
			m.updates = nil
			return m, nil
		}
		m.state = msg.update.State
		if m.state.Phase == chat.PhaseErrored {
			m.setError(errorText(m.state.Err))
		}
		m.refresh()
		return m, waitForUpdate(m.updates)

	case cancelDoneMsg:
		if m.session != nil {
			m.state = m.session.State()
			m.refresh()
		}
		if msg.err != nil {
			m.setError("Stopped here, but the backend may still be generating: " + msg.err.Error())
		} else {
			m.setStatus("Reply cancelled")
		}
		return m, nil

	case formatSavedMsg:
		if msg.err != nil {
			m.setError("Could not save formatting: " + msg.err.Error())
			return m, nil
		}
		m.info = msg.info
		m.renderer.SetSettings(render.Resolve(m.info, m.defaults))
		m.setStatus(formattingSummary(m.info, m.renderer.Settings()))
		m.refresh()
		return m, nil

	case openingSavedMsg:
		if msg.err != nil {
			m.setError("Could not save the opening message: " + msg.err.Error())
			return m, nil
		}
		m.session.AppendOpening(*msg.msg)
		m.selector = nil
		m.mode = ViewChat
		m.setStatus("")
		m.refresh()
		return m, nil

	case exportedMsg:
		if msg.err != nil {
			m.setError("Export failed: " + msg.err.Error())
		} else {
			m.setStatus("Exported to " + msg.path)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, m.quit()
		}
		switch m.mode {
		case ViewHelp:
			return m.updateHelp(msg)
		case ViewRuns:
			return m.updateRuns(msg)
		case ViewSelect:
			return m.updateSelect(msg)
		}
		return m.updateChat(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleLoaded(msg loadedMsg) (tea.Model, tea.Cmd) {
	m.loading = false
	if msg.err != nil {
		m.fatal = msg.err
		logger.WithComponent("ui").WithError(msg.err).Error("failed to load chat")
		return m, nil
	}

	m.info = msg.info
	m.character = msg.character
	m.defaults = msg.defaults
	m.renderer.SetSettings(render.Resolve(m.info, m.defaults))
	m.session = m.cfg.Chats.Open(m.cfg.SessionID, msg.messages)
	m.state = m.session.State()

	if len(m.session.Messages()) == 0 && m.character != nil {
		if sel := NewSelector(m.character.FirstMessages); sel != nil {
			m.selector = sel
			m.mode = ViewSelect
		}
	}

	m.refresh()
	return m, nil
}

func (m Model) updateHelp(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "f1", "q", "?":
		m.mode = ViewChat
	}
	return m, nil
}

func (m Model) updateRuns(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		m.runs.Up()
	case "down", "j":
		m.runs.Down()
	case "esc", "q", "enter":
		m.mode = ViewChat
	}
	return m, nil
}

func (m Model) updateSelect(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "left", "h", "up", "k":
		m.selector.Prev()
	case "right", "l", "down", "j", "tab":
		m.selector.Next()
	case "enter":
		m.setStatus("Saving opening message...")
		return m, saveOpening(m.cfg, m.selector.Current().Content)
	case "esc":
		m.selector = nil
		m.mode = ViewChat
		m.refresh()
	}
	return m, nil
}

func saveOpening(cfg Config, content string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		msg, err := cfg.Backend.AddFirstMessage(ctx, cfg.SessionID, content)
		if err == nil && msg.Content == "" {
			msg.Content = content
		}
		return openingSavedMsg{msg: msg, err: err}
	}
}

func (m Model) updateChat(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "f1":
		m.mode = ViewHelp
		return m, nil
	case "esc":
		return m, m.cancel()
	case "ctrl+r":
		return m.retry()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case "enter":
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())
	if value == "" {
		return m, nil
	}

	if cmd := commands.Parse(value); cmd != nil {
		m.input.Reset()
		return m.handleCommand(cmd)
	}

	if m.session == nil {
		m.setError("Still loading the chat")
		return m, nil
	}

	updates, err := m.session.Send(context.Background(), value)
	if err != nil {
		m.setError(err.Error())
		return m, nil
	}
	m.input.Reset()
	return m.follow(updates)
}

// follow starts consuming a new interaction's updates
func (m Model) follow(updates <-chan chat.Update) (tea.Model, tea.Cmd) {
	m.updates = updates
	m.setStatus("")
	m.state = m.session.State()
	m.refresh()
	return m, tea.Batch(waitForUpdate(updates), m.spinner.Tick)
}

func (m Model) handleCommand(cmd commands.Command) (tea.Model, tea.Cmd) {
	switch c := cmd.(type) {
	case commands.Help:
		m.mode = ViewHelp
	case commands.Cancel:
		return m, m.cancel()
	case commands.Retry:
		return m.retry()
	case commands.Format:
		return m.format(c)
	case commands.Export:
		return m, m.export(c.Dir)
	case commands.ShowRuns:
		if err := m.runs.Load(m.cfg.Journal, m.cfg.SessionID); err != nil {
			m.setError("Cannot open the journal: " + err.Error())
			return m, nil
		}
		m.mode = ViewRuns
	case commands.Quit:
		return m, m.quit()
	case commands.ParseError:
		m.setError(c.Message)
	}
	return m, nil
}

func (m Model) cancel() tea.Cmd {
	if m.session == nil || !m.state.Phase.Active() {
		return nil
	}
	session := m.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		return cancelDoneMsg{err: session.Cancel(ctx)}
	}
}

func (m Model) retry() (tea.Model, tea.Cmd) {
	if m.session == nil {
		return m, nil
	}
	updates, err := m.session.Retry(context.Background())
	if err != nil {
		m.setError(err.Error())
		return m, nil
	}
	return m.follow(updates)
}

func (m Model) format(f commands.Format) (tea.Model, tea.Cmd) {
	if m.info == nil {
		m.setError("Still loading the chat")
		return m, nil
	}

	var settings *formatting.Settings
	switch mode := f.Mode; mode {
	case commands.FormatShow:
		m.setStatus(formattingSummary(m.info, m.renderer.Settings()))
		return m, nil
	case commands.FormatOn, commands.FormatOff:
		settings = m.renderer.Settings().Clone()
		if settings == nil {
			settings = formatting.DefaultSettings()
		}
		settings.Enabled = mode == commands.FormatOn
	case commands.FormatDefault:
		// nil clears the session override
	case commands.FormatAdd:
		settings = m.renderer.Settings().Clone()
		if settings == nil {
			settings = formatting.DefaultSettings()
		}
		settings.Rules = append(settings.Rules, formatting.NewRule(f.Delimiter, f.Name))
		if err := formatting.Validate(settings); err != nil {
			m.setError("Rule not added: " + err.Error())
			return m, nil
		}
	}

	cfg := m.cfg
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()
		info, err := cfg.Backend.UpdateSessionFormatting(ctx, cfg.SessionID, settings)
		return formatSavedMsg{info: info, err: err}
	}
}

func formattingSummary(info *models.ChatSession, settings *formatting.Settings) string {
	source := "default"
	if info != nil && info.FormattingSettings != nil {
		source = "session override"
	}
	if settings == nil || !settings.Enabled {
		return fmt.Sprintf("Formatting off (%s)", source)
	}
	return fmt.Sprintf("Formatting on (%s), %d active rules", source, len(settings.ActiveRules()))
}

func (m Model) export(dir string) tea.Cmd {
	if m.session == nil || m.info == nil {
		return nil
	}
	if dir == "" {
		dir = m.cfg.ExportDir
	}
	t := &export.Transcript{
		Session:   *m.info,
		Character: m.character,
		Messages:  m.session.Messages(),
		Settings:  m.renderer.Settings(),
	}
	return func() tea.Msg {
		path, err := export.Write(t, dir)
		return exportedMsg{path: path, err: err}
	}
}

// quit stops any streaming reply before leaving
func (m Model) quit() tea.Cmd {
	if cancel := m.cancel(); cancel != nil {
		return tea.Sequence(cancel, tea.Quit)
	}
	return tea.Quit
}

func (m Model) busy() bool {
	return m.loading || m.state.Phase.Active()
}

func (m *Model) setStatus(s string) {
	m.status = s
	m.statusErr = false
}

func (m *Model) setError(s string) {
	m.status = s
	m.statusErr = true
}

// refresh re-renders the conversation into the viewport
func (m *Model) refresh() {
	if !m.ready || m.session == nil {
		return
	}
	t := &Transcript{
		Character: m.character,
		Messages:  m.session.Messages(),
		State:     m.state,
		Renderer:  m.renderer,
	}
	m.viewport.SetContent(t.Render(m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.fatal != nil {
		return ErrorStyle.Render("Error: "+m.fatal.Error()) + "\n\n" + DimStyle.Render("Press Ctrl+C to quit")
	}

	switch m.mode {
	case ViewHelp:
		return HelpContent(m.width, m.height, m.renderer.Settings())
	case ViewRuns:
		return m.runs.Render(m.width, m.height)
	}

	var sb strings.Builder
	sb.WriteString(m.renderHeader())
	sb.WriteString("\n\n")

	if m.mode == ViewSelect && m.selector != nil {
		sb.WriteString(m.selector.Render(m.character.DisplayName(), m.renderer, m.width))
		sb.WriteString("\n")
		sb.WriteString(m.renderStatus())
		return sb.String()
	}

	sb.WriteString(m.viewport.View())
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())
	sb.WriteString("\n")
	sb.WriteString(ActiveBox.Width(m.width - 2).Render(m.input.View()))
	return sb.String()
}

func (m Model) renderHeader() string {
	if m.loading {
		return m.spinner.View() + " " + DimStyle.Render(fmt.Sprintf("Loading chat session %d...", m.cfg.SessionID))
	}
	return TitleStyle.Render(m.character.DisplayName()) +
		DimStyle.Render(fmt.Sprintf("  session %d", m.cfg.SessionID))
}

func (m Model) renderStatus() string {
	switch {
	case m.state.Phase.Active():
		return m.spinner.View() + " " + PhaseStyle(m.state.Phase.String()).Render(m.state.Phase.String()) +
			DimStyle.Render("  Esc to stop")
	case m.status == "":
		return DimStyle.Render("F1 for help")
	case m.statusErr:
		return ErrorStyle.Render(m.status)
	default:
		return SystemStyle.Render(m.status)
	}
}
