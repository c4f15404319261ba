// Package tui is the interactive terminal front end: login and signup
// forms, the strategy picker and the backtest result view.
package tui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/newthinker/tradedesk/internal/core"
	"github.com/newthinker/tradedesk/internal/session"
)

// Sessions is the session manager as seen by the UI.
type Sessions interface {
	State() session.State
	Session() core.Session
	Signup(ctx context.Context, creds core.Credentials) error
	Login(ctx context.Context, creds core.Credentials) error
	Logout(ctx context.Context)
	Credentials() core.Credentials
}

// Desk is the backtest orchestrator as seen by the UI.
type Desk interface {
	Catalog() []string
	CatalogError() error
	FetchStrategies(ctx context.Context, token string)
	SelectStrategy(name string)
	Selected() string
	Timerange() string
	Run() core.BacktestRun
	RunBacktest(ctx context.Context) (core.BacktestRun, error)
}

const (
	fieldUsername = iota
	fieldEmail
	fieldPassword
	fieldCount
)

var fieldLabels = [fieldCount]string{"Username", "Email", "Password"}

// Messages
type (
	authDoneMsg struct {
		signup bool
		err    error
	}
	backtestDoneMsg struct {
		run core.BacktestRun
		err error
	}
	catalogLoadedMsg struct{}
)

// Model is the root Bubble Tea model.
type Model struct {
	ctx      context.Context
	sessions Sessions
	desk     Desk

	// Auth form
	signup bool
	inputs [fieldCount]textinput.Model
	focus  int // index into visibleFields()
	busy   bool

	// Desk
	cursor     int
	running    bool
	spin       spinner.Model
	result     viewport.Model
	resultJSON string
	hasResult  bool

	status    string
	statusErr bool

	width  int
	height int
}

// New creates the model. ctx bounds every backend call made from the UI.
func New(ctx context.Context, sessions Sessions, desk Desk) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(colorAccent)

	m := Model{
		ctx:      ctx,
		sessions: sessions,
		desk:     desk,
		spin:     s,
		result:   viewport.New(76, 12),
		width:    80,
		height:   30,
	}

	prompt, text, cursor := inputStyles()
	for i := range m.inputs {
		ti := textinput.New()
		ti.Placeholder = fieldLabels[i]
		ti.CharLimit = 128
		ti.Width = 40
		ti.PromptStyle = prompt
		ti.TextStyle = text
		ti.Cursor.Style = cursor
		if i == fieldPassword {
			ti.EchoMode = textinput.EchoPassword
			ti.EchoCharacter = '*'
		}
		m.inputs[i] = ti
	}
	m.inputs[fieldUsername].Focus()

	if run := desk.Run(); run.Status == core.RunCompleted {
		m.setResult(run)
	}
	return m
}

// Run starts the full-screen program and blocks until the user quits.
func Run(ctx context.Context, sessions Sessions, desk Desk) error {
	p := tea.NewProgram(New(ctx, sessions, desk), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running terminal ui: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// tea.Model interface
// ---------------------------------------------------------------------------

// Init starts the cursor blinking.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update processes messages and key events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.result.Width = max(m.width-4, 20)
		m.result.Height = max(m.height-18, 5)
		if m.hasResult {
			m.result.SetContent(renderMarkdown(fenced(m.resultJSON), m.result.Width))
		}
		return m, nil

	case spinner.TickMsg:
		if m.busy || m.running {
			var cmd tea.Cmd
			m.spin, cmd = m.spin.Update(msg)
			return m, cmd
		}
		return m, nil

	case authDoneMsg:
		return m.handleAuthDone(msg), nil

	case backtestDoneMsg:
		m.running = false
		m.setResult(msg.run)
		return m, nil

	case catalogLoadedMsg:
		m.clampCursor()
		if err := m.desk.CatalogError(); err != nil {
			m.setStatus("Failed to fetch strategies: "+core.UserMessage(err), true)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.loggedIn() {
			return m.handleDeskKey(msg)
		}
		return m.handleAuthKey(msg)
	}

	if !m.loggedIn() {
		return m.updateFocusedInput(msg)
	}
	return m, nil
}

func (m Model) loggedIn() bool {
	return m.sessions.State() == session.StateLoggedIn
}

// ---------------------------------------------------------------------------
// Auth form
// ---------------------------------------------------------------------------

func (m Model) visibleFields() []int {
	if m.signup {
		return []int{fieldUsername, fieldEmail, fieldPassword}
	}
	return []int{fieldUsername, fieldPassword}
}

func (m Model) handleAuthKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}

	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "ctrl+t":
		m.signup = !m.signup
		m.status = ""
		cmd := m.focusField(0)
		return m, cmd
	case "tab", "down":
		cmd := m.focusField((m.focus + 1) % len(m.visibleFields()))
		return m, cmd
	case "shift+tab", "up":
		n := len(m.visibleFields())
		cmd := m.focusField((m.focus - 1 + n) % n)
		return m, cmd
	case "enter":
		return m.submit()
	}

	return m.updateFocusedInput(msg)
}

func (m *Model) focusField(idx int) tea.Cmd {
	fields := m.visibleFields()
	for i := range m.inputs {
		m.inputs[i].Blur()
	}
	m.focus = idx
	m.inputs[fields[idx]].Focus()
	return textinput.Blink
}

func (m Model) updateFocusedInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	field := m.visibleFields()[m.focus]
	var cmd tea.Cmd
	m.inputs[field], cmd = m.inputs[field].Update(msg)
	return m, cmd
}

func (m Model) credentials() core.Credentials {
	creds := core.Credentials{
		Username: m.inputs[fieldUsername].Value(),
		Password: m.inputs[fieldPassword].Value(),
	}
	if m.signup {
		creds.Email = m.inputs[fieldEmail].Value()
	}
	return creds
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	creds := m.credentials()
	signup := m.signup
	ctx, sessions := m.ctx, m.sessions

	m.busy = true
	m.status = ""
	return m, tea.Batch(m.spin.Tick, func() tea.Msg {
		if signup {
			return authDoneMsg{signup: true, err: sessions.Signup(ctx, creds)}
		}
		return authDoneMsg{err: sessions.Login(ctx, creds)}
	})
}

func (m Model) handleAuthDone(msg authDoneMsg) Model {
	m.busy = false

	if msg.err != nil {
		verb := "Login"
		if msg.signup {
			verb = "Signup"
		}
		m.setStatus(verb+" failed: "+core.UserMessage(msg.err), true)
		m.fillInputs(m.sessions.Credentials())
		return m
	}

	m.clearInputs()
	if msg.signup {
		m.signup = false
		m.focusField(0)
		m.setStatus("Signup successful! Please login.", false)
		return m
	}

	m.status = ""
	m.cursor = 0
	m.hasResult = false
	if err := m.desk.CatalogError(); err != nil {
		m.setStatus("Failed to fetch strategies: "+core.UserMessage(err), true)
	}
	return m
}

// fillInputs puts back the form the session manager kept from a failed
// attempt.
func (m *Model) fillInputs(creds core.Credentials) {
	if creds.IsZero() {
		return
	}
	m.inputs[fieldUsername].SetValue(creds.Username)
	m.inputs[fieldPassword].SetValue(creds.Password)
	if m.signup {
		m.inputs[fieldEmail].SetValue(creds.Email)
	}
}

func (m *Model) clearInputs() {
	for i := range m.inputs {
		m.inputs[i].Reset()
	}
}

// ---------------------------------------------------------------------------
// Strategy desk
// ---------------------------------------------------------------------------

func (m Model) handleDeskKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	catalog := m.desk.Catalog()

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil
	case "down", "j":
		if m.cursor < len(catalog)-1 {
			m.cursor++
		}
		return m, nil
	case "enter", " ":
		if m.cursor < len(catalog) {
			m.desk.SelectStrategy(catalog[m.cursor])
			m.status = ""
		}
		return m, nil
	case "r":
		return m.startBacktest()
	case "f":
		ctx, desk, token := m.ctx, m.desk, m.sessions.Session().Token
		return m, func() tea.Msg {
			desk.FetchStrategies(ctx, token)
			return catalogLoadedMsg{}
		}
	case "L":
		return m.logout()
	}

	var cmd tea.Cmd
	m.result, cmd = m.result.Update(msg)
	return m, cmd
}

func (m Model) startBacktest() (tea.Model, tea.Cmd) {
	if m.running {
		return m, nil
	}
	if m.desk.Selected() == "" {
		m.setStatus(core.UserMessage(core.ErrNoStrategySelected), true)
		return m, nil
	}

	m.running = true
	m.hasResult = false
	m.status = ""
	ctx, desk := m.ctx, m.desk
	return m, tea.Batch(m.spin.Tick, func() tea.Msg {
		run, err := desk.RunBacktest(ctx)
		return backtestDoneMsg{run: run, err: err}
	})
}

func (m Model) logout() (tea.Model, tea.Cmd) {
	m.sessions.Logout(m.ctx)
	m.clearInputs()
	m.signup = false
	m.running = false
	m.hasResult = false
	m.resultJSON = ""
	m.cursor = 0
	m.setStatus("Logged out.", false)
	cmd := m.focusField(0)
	return m, cmd
}

func (m *Model) clampCursor() {
	n := len(m.desk.Catalog())
	if m.cursor >= n {
		m.cursor = max(n-1, 0)
	}
}

func (m *Model) setStatus(s string, isErr bool) {
	m.status = s
	m.statusErr = isErr
}

// setResult shows a finished run: the result of a completed one, the error
// of a failed one.
func (m *Model) setResult(run core.BacktestRun) {
	if !run.Status.IsTerminal() {
		return
	}
	switch run.Status {
	case core.RunCompleted:
		m.resultJSON = indentJSON(run.Result)
		m.result.SetContent(renderMarkdown(fenced(m.resultJSON), m.result.Width))
		m.result.GotoTop()
		m.hasResult = true
	case core.RunFailed:
		m.resultJSON = ""
		m.hasResult = false
		m.setStatus("Backtest failed: "+run.Error, true)
	}
}

// ---------------------------------------------------------------------------
// View
// ---------------------------------------------------------------------------

// View renders the current screen.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Trading Platform"))
	b.WriteString("\n")

	if m.loggedIn() {
		m.viewDesk(&b)
	} else {
		m.viewAuth(&b)
	}

	if m.status != "" {
		b.WriteString("\n")
		if m.statusErr {
			b.WriteString(errorStyle.Render(m.status))
		} else {
			b.WriteString(okStyle.Render(m.status))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) viewAuth(b *strings.Builder) {
	heading := "Login"
	toggle := "ctrl+t create account"
	if m.signup {
		heading = "Sign Up"
		toggle = "ctrl+t back to login"
	}
	b.WriteString(itemStyle.Bold(true).Render(heading))
	b.WriteString("\n\n")

	for _, f := range m.visibleFields() {
		b.WriteString(labelStyle.Render(fieldLabels[f]))
		b.WriteString(m.inputs[f].View())
		b.WriteString("\n")
	}

	if m.busy {
		b.WriteString("\n" + m.spin.View() + " " + heading + "...\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab next • enter submit • " + toggle + " • esc quit"))
	b.WriteString("\n")
}

func (m Model) viewDesk(b *strings.Builder) {
	b.WriteString(welcomeStyle.Render(fmt.Sprintf("Welcome, %s!", m.sessions.Session().Username)))
	b.WriteString("\n\n")

	b.WriteString(itemStyle.Bold(true).Render("Available Strategies"))
	b.WriteString("\n")

	catalog := m.desk.Catalog()
	selected := m.desk.Selected()
	if len(catalog) == 0 {
		b.WriteString(helpStyle.Render("  no strategies loaded (f to refresh)"))
		b.WriteString("\n")
	}
	for i, name := range catalog {
		marker := "  "
		if name == selected {
			marker = "● "
		}
		line := marker + name
		switch {
		case i == m.cursor:
			b.WriteString(cursorStyle.Render("> " + line))
		case name == selected:
			b.WriteString(selectedStyle.Render("  " + line))
		default:
			b.WriteString(itemStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("Timerange: " + m.desk.Timerange()))
	b.WriteString("\n")

	if m.running {
		b.WriteString("\n" + m.spin.View() + " Running Backtest...\n")
	}

	if m.hasResult {
		b.WriteString("\n")
		b.WriteString(itemStyle.Bold(true).Render("Backtest Results"))
		b.WriteString("\n")
		b.WriteString(panelStyle.Render(m.result.View()))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ move • enter select • r run backtest • f refresh • L logout • q quit"))
	b.WriteString("\n")
}

// ---------------------------------------------------------------------------
// Utilities
// ---------------------------------------------------------------------------

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func fenced(s string) string {
	return "```json\n" + s + "\n```"
}

func renderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimSpace(out)
}
