package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/v2/textarea"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/voxbridge/voxbridge/internal/client"
)

// Theme holds the color scheme for the chat display.
type Theme struct {
	User      lipgloss.Color
	Assistant lipgloss.Color
	Error     lipgloss.Color
	Hint      lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	User:      lipgloss.Color("#5FAFD7"), // light blue
	Assistant: lipgloss.Color("#00D787"), // green
	Error:     lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t Theme) assistantStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Assistant).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// chunkMsg carries one streamed reply fragment.
type chunkMsg string

// turnDoneMsg signals the end of a reply stream.
type turnDoneMsg struct {
	err error
}

// chatModel is the bubbletea model for the interactive chat session.
type chatModel struct {
	client *client.Client
	theme  Theme

	viewport viewport.Model
	textarea textarea.Model

	transcript []string
	reply      strings.Builder
	streaming  bool
	events     chan tea.Msg
	err        error

	width  int
	height int
}

// newChatModel creates the chat TUI model.
func newChatModel(c *client.Client) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.ShowLineNumbers = false
	ta.SetHeight(3)
	ta.Focus()

	vp := viewport.New()

	return chatModel{
		client:   c,
		theme:    defaultTheme,
		viewport: vp,
		textarea: ta,
		events:   make(chan tea.Msg, 16),
	}
}

// Init returns the initial command.
func (m chatModel) Init() tea.Cmd {
	return textarea.Blink
}

// waitForEvent delivers the next streamed event to Update.
func (m chatModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

// startTurn sends the user message and pumps reply chunks into the event
// channel from a background goroutine.
func (m chatModel) startTurn(text string) tea.Cmd {
	return func() tea.Msg {
		go func() {
			err := m.client.SendMessage(context.Background(), text, func(chunk string) error {
				m.events <- chunkMsg(chunk)
				return nil
			})
			m.events <- turnDoneMsg{err: err}
		}()
		return <-m.events
	}
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.textarea.Value())
			if text == "" || m.streaming {
				return m, nil
			}
			m.transcript = append(m.transcript, m.theme.userStyle().Render("You: ")+text)
			m.textarea.Reset()
			m.streaming = true
			m.reply.Reset()
			m.refreshViewport()
			return m, m.startTurn(text)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(msg.Height - m.textarea.Height() - 2)
		m.textarea.SetWidth(msg.Width)
		m.refreshViewport()

	case chunkMsg:
		m.reply.WriteString(string(msg))
		m.refreshViewport()
		return m, m.waitForEvent()

	case turnDoneMsg:
		m.streaming = false
		if msg.err != nil {
			m.err = msg.err
			m.transcript = append(m.transcript, m.theme.errorStyle().Render("Error: ")+msg.err.Error())
		} else if m.reply.Len() > 0 {
			m.transcript = append(m.transcript, m.theme.assistantStyle().Render("Assistant: ")+m.reply.String())
		}
		m.reply.Reset()
		m.refreshViewport()
		return m, nil
	}

	var cmd tea.Cmd
	m.textarea, cmd = m.textarea.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// refreshViewport re-renders the transcript, keeping the tail visible.
func (m *chatModel) refreshViewport() {
	lines := make([]string, len(m.transcript))
	copy(lines, m.transcript)
	if m.streaming {
		partial := m.reply.String()
		if partial == "" {
			partial = m.theme.hintStyle().Render("thinking...")
		}
		lines = append(lines, m.theme.assistantStyle().Render("Assistant: ")+partial)
	}
	m.viewport.SetContent(strings.Join(lines, "\n\n"))
	m.viewport.GotoBottom()
}

// View renders the chat screen.
func (m chatModel) View() string {
	hint := m.theme.hintStyle().Render("enter: send • esc: quit")
	return fmt.Sprintf("%s\n%s\n%s", m.viewport.View(), m.textarea.View(), hint)
}
