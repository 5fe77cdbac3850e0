// Package widget renders one chat session in the terminal.
package widget

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zhouzirui/rasa-chat/backend/internal/model/chat"
	"github.com/zhouzirui/rasa-chat/backend/internal/service/session"
)

const (
	placeholder = "Scrivi un messaggio..."
	inputHeight = 3
	headerLines = 2
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	userStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7DCFFF"))
	agentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C3E88D"))
	paneStyle  = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

type viewChangedMsg struct{}

type sessionClosedMsg struct{}

// Model is the bubbletea model of the chat widget.
type Model struct {
	title    string
	ctrl     *session.Controller
	updates  <-chan struct{}
	cancel   func()
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	view     chat.View
}

// New binds a widget to ctrl. The caller owns ctrl and closes it after the program exits.
func New(title string, ctrl *session.Controller) *Model {
	input := textinput.New()
	input.Placeholder = placeholder
	input.Prompt = "> "
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	updates, cancel := ctrl.Subscribe()

	return &Model{
		title:    title,
		ctrl:     ctrl,
		updates:  updates,
		cancel:   cancel,
		input:    input,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		view:     ctrl.View(),
	}
}

func waitForChange(updates <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-updates; !ok {
			return sessionClosedMsg{}
		}
		return viewChangedMsg{}
	}
}

// Init starts the cursor blink, the spinner and the controller bridge.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForChange(m.updates))
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancel()
			return m, tea.Quit
		case "enter":
			m.ctrl.Submit()
			m.sync()
			return m, nil
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		if m.view.Busy {
			// the input surface is disabled while a reply is pending
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		m.ctrl.UpdateComposer(m.input.Value())
		return m, cmd

	case viewChangedMsg:
		m.sync()
		return m, waitForChange(m.updates)

	case sessionClosedMsg:
		return m, tea.Quit

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// sync copies the controller view into the bubbles components.
func (m *Model) sync() {
	next := m.ctrl.View()
	grew := len(next.Transcript) != len(m.view.Transcript)
	m.view = next

	if m.input.Value() != m.view.Composer {
		m.input.SetValue(m.view.Composer)
		m.input.CursorEnd()
	}
	if m.view.Busy {
		m.input.Blur()
	} else {
		m.input.Focus()
	}

	m.viewport.SetContent(RenderTranscript(m.view.Transcript, m.viewport.Width))
	if grew {
		m.viewport.GotoBottom()
	}
}

func (m *Model) resize(width, height int) {
	paneWidth := width - paneStyle.GetHorizontalFrameSize()
	paneHeight := height - headerLines - inputHeight - paneStyle.GetVerticalFrameSize()
	if paneWidth < 10 {
		paneWidth = 10
	}
	if paneHeight < 3 {
		paneHeight = 3
	}

	m.viewport.Width = paneWidth
	m.viewport.Height = paneHeight
	m.input.Width = paneWidth - 4

	m.viewport.SetContent(RenderTranscript(m.view.Transcript, paneWidth))
	m.viewport.GotoBottom()
}

// View implements tea.Model.
func (m *Model) View() string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render(m.title))
	sb.WriteString("\n\n")
	sb.WriteString(paneStyle.Render(m.viewport.View()))
	sb.WriteString("\n")

	if m.view.Busy {
		sb.WriteString(m.spinner.View())
		sb.WriteString(helpStyle.Render(" in attesa di risposta..."))
	} else {
		sb.WriteString(m.input.View())
	}
	sb.WriteString("\n")
	sb.WriteString(helpStyle.Render("enter: invia • ↑/↓ pgup/pgdn: scorri • esc: esci"))

	return sb.String()
}

// RenderTranscript formats messages one per line with a side marker.
func RenderTranscript(messages []chat.Message, width int) string {
	if len(messages) == 0 {
		return helpStyle.Render("Nessun messaggio.")
	}

	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		style := agentStyle
		prefix := "🤖: "
		if msg.Origin == chat.OriginUser {
			style = userStyle
			prefix = "🧑: "
		}
		line := prefix + msg.Text
		if width > 0 {
			style = style.Width(width)
		}
		lines = append(lines, style.Render(line))
	}
	return strings.Join(lines, "\n")
}
