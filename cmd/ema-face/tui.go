package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	face "github.com/koscakluka/ema-face/core"
	"github.com/koscakluka/ema-face/core/config"
	"github.com/koscakluka/ema-face/core/events"
	"github.com/koscakluka/ema-face/core/history"
	"github.com/koscakluka/ema-face/core/protocol"
)

const statusInterval = 500 * time.Millisecond

var (
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	panelStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("8")).Padding(0, 1)
)

type historyMsg history.Entry

type disconnectedMsg struct{ err error }

type statusMsg struct {
	status  face.Status
	granted []protocol.Capability
}

// commandSender is the part of a session the view talks to.
type commandSender interface {
	SendCommand(text string)
	Status() face.Status
	Granted() []protocol.Capability
	Requirements() []protocol.CapabilityGroup
}

type model struct {
	session commandSender
	config  config.Config

	entries   []history.Entry
	status    face.Status
	granted   []protocol.Capability
	lastError error

	input    textinput.Model
	viewport viewport.Model
	width    int
	height   int
}

func newModel(session commandSender, cfg config.Config) model {
	input := textinput.New()
	input.Placeholder = "Type a command"
	input.Prompt = "> "
	input.Focus()

	return model{
		session:  session,
		config:   cfg,
		input:    input,
		viewport: viewport.New(80, 20),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.pollStatus())
}

func (m model) pollStatus() tea.Cmd {
	return tea.Tick(statusInterval, func(time.Time) tea.Msg {
		return statusMsg{status: m.session.Status(), granted: m.session.Granted()}
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if text := strings.TrimSpace(m.input.Value()); text != "" {
				m.session.SendCommand(text)
				m.input.SetValue("")
			}
			return m, nil
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		m.refresh()

	case historyMsg:
		m.entries = append(m.entries, history.Entry(msg))
		m.lastError = nil
		m.refresh()

	case disconnectedMsg:
		m.lastError = msg.err

	case statusMsg:
		m.status, m.granted = msg.status, msg.granted
		if m.width > 0 {
			m.resize()
		}
		cmds = append(cmds, m.pollStatus())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// resize gives the viewport everything except the input line, the status
// line and, when shown, the advanced panel.
func (m *model) resize() {
	reserved := 2
	if !m.config.HideAdvancedUI {
		reserved += lipgloss.Height(m.advancedPanel())
	}
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-reserved, 1)
	m.input.Width = max(m.width-len(m.input.Prompt)-1, 1)
}

func (m *model) refresh() {
	m.viewport.SetContent(renderEntries(m.entries, m.viewport.Width))
	m.viewport.GotoBottom()
}

func renderEntries(entries []history.Entry, width int) string {
	if len(entries) == 0 {
		return dimStyle.Render("No messages yet.")
	}

	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		label := assistantStyle.Render("ema")
		if entry.Direction == events.DirectionIn {
			label = userStyle.Render("you")
		}
		fmt.Fprintf(&b, "%s %s\n", label, dimStyle.Render(entry.At.Format("15:04:05")))
		b.WriteString(wordwrap.String(entry.Text, max(width, 20)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m model) statusLine() string {
	if m.lastError != nil {
		return errorStyle.Render("disconnected: " + m.lastError.Error())
	}
	if m.status.Connection == "" {
		return dimStyle.Render("starting")
	}
	return dimStyle.Render("connection: " + m.status.Connection)
}

func (m model) advancedPanel() string {
	requirements := make([]string, 0, len(m.session.Requirements()))
	for _, group := range m.session.Requirements() {
		names := make([]string, 0, len(group))
		for _, capability := range group {
			names = append(names, string(capability))
		}
		requirements = append(requirements, strings.Join(names, " | "))
	}
	granted := make([]string, 0, len(m.granted))
	for _, capability := range m.granted {
		granted = append(granted, string(capability))
	}

	lines := []string{
		"requested: " + strings.Join(requirements, ", "),
		"granted:   " + strings.Join(granted, ", "),
		fmt.Sprintf("text: in %s, out %s", orDash(m.status.TextInput), orDash(m.status.TextOutput)),
		fmt.Sprintf("audio: out %s, stream %s, recognition %s",
			orDash(m.status.AudioOutput), orDash(m.status.AudioStream), orDash(m.status.Recognition)),
	}
	if m.width > 4 {
		for i, line := range lines {
			lines[i] = wordwrap.String(line, m.width-4)
		}
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func (m model) View() string {
	parts := []string{}
	if !m.config.HideAdvancedUI {
		parts = append(parts, m.advancedPanel())
	}
	parts = append(parts, m.viewport.View(), m.statusLine(), m.input.View())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
