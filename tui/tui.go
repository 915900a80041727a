// Package tui renders the game session in the terminal: the world-event
// feed, chat tabs, room occupants and the command line. It reads the
// state store on every refresh and never mutates it directly; all game
// effects flow through the session.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/wumingmud/client/auth"
	"github.com/wumingmud/client/protocol"
	"github.com/wumingmud/client/session"
	"github.com/wumingmud/client/state"
)

var (
	statusBarStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))

	paneTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	chatTabStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	chatTabActiveStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("205"))

	systemEventStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	combatEventStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	notifErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	notifWarningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	notifInfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))

	promptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const inputHistoryLimit = 50

// RefreshMsg tells the UI that the state store changed.
type RefreshMsg struct{}

// connectResultMsg carries the outcome of the websocket connect that
// follows a successful login.
type connectResultMsg struct {
	err error
}

// expireNotificationMsg removes a timed notification.
type expireNotificationMsg struct {
	id string
}

type screen int

const (
	screenLogin screen = iota
	screenGame
)

// Model is the root bubbletea model.
type Model struct {
	sess *session.Session
	auth *auth.Client

	screen screen
	login  loginForm

	viewport  viewport.Model
	textInput textinput.Model
	ready     bool
	width     int
	height    int

	history    []string
	historyPos int

	expiring map[string]bool
}

// New builds the root model. If the auth client already holds a session
// token the login screen is skipped.
func New(sess *session.Session, authClient *auth.Client) *Model {
	ti := textinput.New()
	ti.Placeholder = "Type a command or just speak..."
	ti.CharLimit = 256
	ti.Width = 50
	ti.Prompt = ""

	m := &Model{
		sess:      sess,
		auth:      authClient,
		login:     newLoginForm(authClient),
		textInput: ti,
		expiring:  map[string]bool{},
	}
	if authClient.IsLoggedIn() {
		m.enterGame()
	}
	return m
}

func (m *Model) enterGame() {
	m.screen = screenGame
	m.textInput.Focus()
	m.history = nil
	m.historyPos = 0
}

func (m *Model) connectCmd() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		return connectResultMsg{err: sess.Connect(context.Background())}
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	if m.screen == screenGame {
		return tea.Batch(textinput.Blink, m.connectCmd())
	}
	return textinput.Blink
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.sess.Close()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		contentHeight := msg.Height - 10
		if contentHeight < 3 {
			contentHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, contentHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = contentHeight
		}
		m.textInput.Width = msg.Width - 4
		m.refreshViewport()
		return m, nil

	case authResultMsg:
		cmd := m.login.Update(msg)
		if msg.err == nil && msg.resp != nil && msg.resp.Data != nil {
			info := msg.resp.Data.Player
			m.sess.Store.SetAuthenticated(true)
			m.sess.Store.SetPlayer(state.Player{
				ID:    info.ID,
				Name:  info.Name,
				Level: info.Level,
			})
			m.enterGame()
			return m, tea.Batch(cmd, m.connectCmd())
		}
		return m, cmd

	case connectResultMsg:
		if msg.err != nil {
			m.sess.Store.AddNotification(state.Notification{
				ID:       uuid.NewString(),
				Type:     "error",
				Message:  "Connection failed. The mists refuse to part.",
				Duration: 5 * time.Second,
			})
		}
		cmds = append(cmds, m.refresh()...)
		return m, tea.Batch(cmds...)

	case RefreshMsg:
		cmds = append(cmds, m.refresh()...)
		return m, tea.Batch(cmds...)

	case expireNotificationMsg:
		m.sess.Store.RemoveNotification(msg.id)
		delete(m.expiring, msg.id)
		return m, nil
	}

	switch m.screen {
	case screenLogin:
		return m, m.login.Update(msg)
	case screenGame:
		return m.updateGame(msg)
	}
	return m, nil
}

func (m *Model) updateGame(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyTab:
			m.sess.Store.CycleChatTab(false)
			return m, nil

		case tea.KeyShiftTab:
			m.sess.Store.CycleChatTab(true)
			return m, nil

		case tea.KeyUp:
			if len(m.history) > 0 && m.historyPos > 0 {
				m.historyPos--
				m.textInput.SetValue(m.history[m.historyPos])
				m.textInput.CursorEnd()
			}
			return m, nil

		case tea.KeyDown:
			if m.historyPos < len(m.history)-1 {
				m.historyPos++
				m.textInput.SetValue(m.history[m.historyPos])
				m.textInput.CursorEnd()
			} else {
				m.historyPos = len(m.history)
				m.textInput.SetValue("")
			}
			return m, nil

		case tea.KeyEnter:
			input := strings.TrimSpace(m.textInput.Value())
			m.textInput.SetValue("")
			if input == "" {
				return m, nil
			}
			m.pushHistory(input)
			return m.handleGameInput(input)
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// handleGameInput intercepts client-side commands; everything else goes
// to the session.
func (m *Model) handleGameInput(input string) (tea.Model, tea.Cmd) {
	switch strings.ToLower(input) {
	case "/q", "/exit", "/quit":
		m.sess.Close()
		return m, tea.Quit

	case "/logout":
		m.sess.Logout()
		m.auth.Logout()
		m.sess.Store.AddNotification(state.Notification{
			ID:       uuid.NewString(),
			Type:     "info",
			Message:  "You have left the world. Until next time.",
			Duration: 3 * time.Second,
		})
		m.login = newLoginForm(m.auth)
		m.screen = screenLogin
		m.textInput.Blur()
		return m, nil
	}

	m.sess.HandleInput(input)
	return m, tea.Batch(m.refresh()...)
}

func (m *Model) pushHistory(input string) {
	m.history = append(m.history, input)
	if len(m.history) > inputHistoryLimit {
		m.history = m.history[len(m.history)-inputHistoryLimit:]
	}
	m.historyPos = len(m.history)
}

// refresh re-renders the viewport and schedules expiry for any timed
// notifications not yet tracked.
func (m *Model) refresh() []tea.Cmd {
	m.refreshViewport()

	var cmds []tea.Cmd
	for _, n := range m.sess.Store.Notifications() {
		if n.Duration <= 0 || m.expiring[n.ID] {
			continue
		}
		m.expiring[n.ID] = true
		id := n.ID
		cmds = append(cmds, tea.Tick(n.Duration, func(time.Time) tea.Msg {
			return expireNotificationMsg{id: id}
		}))
	}
	return cmds
}

func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	wasAtBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderWorldEvents())
	if wasAtBottom {
		m.viewport.GotoBottom()
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.screen == screenLogin {
		return "\n" + m.login.View()
	}
	if !m.ready {
		return "Initializing..."
	}

	return strings.Join([]string{
		m.renderStatusBar(),
		m.viewport.View(),
		m.renderRoom(),
		m.renderChat(),
		m.renderNotifications(),
		promptStyle.Render("> ") + m.textInput.View(),
		helpStyle.Render("Tab: chat channel • ↑/↓: history • /logout • /q: quit"),
	}, "\n")
}

func (m *Model) renderStatusBar() string {
	store := m.sess.Store
	player := store.Player()

	name := "—"
	vitals := ""
	if player != nil {
		name = fmt.Sprintf("%s (Lv.%d)", player.Name, player.Level)
		vitals = fmt.Sprintf("  HP %d/%d  MP %d/%d", player.HP, player.MaxHP, player.MP, player.MaxMP)
	}

	status := string(store.ConnectionStatus())
	if combat := store.Combat(); combat != nil {
		status += fmt.Sprintf("  ⚔ %s %d/%d", combat.Opponent.Name, combat.Opponent.HP, combat.Opponent.MaxHP)
	}

	bar := fmt.Sprintf(" %s%s  |  %s  |  %d online ", name, vitals, status, store.OnlineCount())
	return statusBarStyle.Width(m.width).Render(bar)
}

func (m *Model) renderWorldEvents() string {
	events := m.sess.Store.WorldEvents()
	if len(events) == 0 {
		return systemEventStyle.Render("The world is quiet.")
	}

	lines := make([]string, 0, len(events))
	for _, ev := range events {
		line := ev.Content
		if ev.Title != "" {
			line = ev.Title + ": " + line
		}
		switch ev.Type {
		case state.EventSystem:
			line = systemEventStyle.Render(line)
		case state.EventCombat:
			line = combatEventStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderRoom() string {
	room := m.sess.Store.Room()
	if room == nil {
		return paneTitleStyle.Render("Somewhere...")
	}

	exits := make([]string, 0, len(room.Exits))
	for _, e := range room.Exits {
		exits = append(exits, e.Direction)
	}

	occupants := make([]string, 0, len(room.Players)+len(room.NPCs))
	for _, p := range room.Players {
		occupants = append(occupants, p.Name)
	}
	for _, n := range room.NPCs {
		occupants = append(occupants, chatTabStyle.Render(n.Name))
	}

	line := paneTitleStyle.Render(room.Name)
	if len(exits) > 0 {
		line += helpStyle.Render("  [" + strings.Join(exits, " ") + "]")
	}
	if len(occupants) > 0 {
		line += "  " + strings.Join(occupants, ", ")
	}
	return line
}

func (m *Model) renderChat() string {
	store := m.sess.Store
	active := store.ActiveChatTab()

	tabs := make([]string, 0, 3)
	for _, ch := range []state.ChatChannel{state.ChannelRoom, state.ChannelGuild, state.ChannelPrivate} {
		label := string(ch)
		if ch == active {
			tabs = append(tabs, chatTabActiveStyle.Render("["+label+"]"))
		} else {
			tabs = append(tabs, chatTabStyle.Render(" "+label+" "))
		}
	}

	var lines []string
	for _, msg := range store.ChatMessages() {
		if msg.Channel != active && msg.Channel != state.ChannelSystem {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", msg.Sender.Name, msg.Content))
	}
	// Show only what fits in a shallow pane.
	const chatLines = 3
	if len(lines) > chatLines {
		lines = lines[len(lines)-chatLines:]
	}

	return strings.Join(tabs, "") + "\n" + strings.Join(lines, "\n")
}

func (m *Model) renderNotifications() string {
	notes := m.sess.Store.Notifications()
	if len(notes) == 0 {
		return ""
	}
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		switch n.Type {
		case "error":
			lines = append(lines, notifErrorStyle.Render("! "+n.Message))
		case "warning":
			lines = append(lines, notifWarningStyle.Render("! "+n.Message))
		default:
			lines = append(lines, notifInfoStyle.Render("· "+n.Message))
		}
	}
	return strings.Join(lines, "\n")
}

// Start runs the UI. It registers session handlers that nudge the
// program whenever the store changes, and blocks until the UI exits.
func Start(sess *session.Session, authClient *auth.Client) error {
	m := New(sess, authClient)
	p := tea.NewProgram(m, tea.WithAltScreen())

	unsubMsg := sess.Manager.OnMessage(func(*protocol.Envelope) {
		p.Send(RefreshMsg{})
	})
	unsubStatus := sess.Manager.OnStatusChange(func(state.ConnectionStatus) {
		p.Send(RefreshMsg{})
	})
	defer unsubMsg()
	defer unsubStatus()

	_, err := p.Run()
	return err
}
