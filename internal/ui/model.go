package ui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"EpsilonChat/internal/chatbot"
	"EpsilonChat/internal/session"
)

const (
	defaultWidth  = 80
	defaultHeight = 24

	// header (2) + input box (3) + help (1)
	chromeHeight = 6
)

// replyMsg carries a resolved exchange back onto the UI goroutine.
type replyMsg struct {
	ex    *chatbot.Exchange
	reply session.Message
}

// Model is the Bubble Tea model for the chat client.
type Model struct {
	ctx context.Context
	bot *chatbot.ChatBot

	keyInput textinput.Model
	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	styles   Styles
	dark     bool
	markdown bool
	renderer *glamour.TermRenderer

	width  int
	height int
}

// Option customizes a Model
type Option func(*Model)

// WithoutMarkdown renders assistant replies as plain text.
func WithoutMarkdown() Option {
	return func(m *Model) { m.markdown = false }
}

// New builds the model. ctx bounds the outbound calls it starts.
func New(ctx context.Context, bot *chatbot.ChatBot, opts ...Option) Model {
	keyInput := textinput.New()
	keyInput.Placeholder = "sk-or-v1-..."
	keyInput.EchoMode = textinput.EchoPassword
	keyInput.EchoCharacter = '•'
	keyInput.Prompt = "🔑 "
	keyInput.CharLimit = 256
	keyInput.Width = 48

	input := textinput.New()
	input.Placeholder = "Type your message..."
	input.Prompt = "│ "
	input.CharLimit = 4096

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		ctx:      ctx,
		bot:      bot,
		keyInput: keyInput,
		input:    input,
		spinner:  sp,
		viewport: viewport.New(defaultWidth, defaultHeight-chromeHeight),
		markdown: true,
		width:    defaultWidth,
		height:   defaultHeight,
	}
	for _, opt := range opts {
		opt(&m)
	}

	m.applyTheme(bot.Dark())
	if bot.State().Snapshot().Mode == session.Chatting {
		m.input.Focus()
	} else {
		m.keyInput.Focus()
	}
	m.layout()
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		if msg.Height > 0 {
			m.height = msg.Height
		}
		m.layout()
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case replyMsg:
		m.bot.Finish(msg.ex, msg.reply)
		m.refresh()
		if m.mode() == session.Chatting {
			cmd := m.input.Focus()
			return m, cmd
		}
		return m, nil

	case spinner.TickMsg:
		if !m.bot.State().Snapshot().Pending {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m.updateFocused(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "ctrl+t":
		m.bot.Dispatch(chatbot.ToggleTheme{})
		m.applyTheme(m.bot.Dark())
		m.refresh()
		return m, nil
	}

	if m.mode() == session.AwaitingCredential {
		if msg.String() == "enter" {
			return m.submitCredential()
		}
		return m.updateFocused(msg)
	}

	switch msg.String() {
	case "enter":
		return m.send()
	case "ctrl+k":
		m.bot.Dispatch(chatbot.Reset{})
		m.input.Reset()
		m.input.Blur()
		m.keyInput.Reset()
		m.refresh()
		cmd := m.keyInput.Focus()
		return m, cmd
	case "ctrl+l":
		m.bot.Dispatch(chatbot.Clear{})
		m.refresh()
		return m, nil
	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	return m.updateFocused(msg)
}

func (m Model) submitCredential() (tea.Model, tea.Cmd) {
	m.bot.Dispatch(chatbot.SubmitCredential{Text: m.keyInput.Value()})
	if m.mode() != session.Chatting {
		return m, nil
	}
	m.keyInput.Reset()
	m.keyInput.Blur()
	m.refresh()
	cmd := m.input.Focus()
	return m, cmd
}

func (m Model) send() (tea.Model, tea.Cmd) {
	ex := m.bot.Dispatch(chatbot.SendMessage{Text: m.input.Value()})
	if ex == nil {
		return m, nil
	}
	m.input.Reset()
	m.input.Blur()
	m.refresh()
	return m, tea.Batch(m.spinner.Tick, m.await(ex))
}

// await resolves ex off the UI goroutine.
func (m Model) await(ex *chatbot.Exchange) tea.Cmd {
	ctx, bot := m.ctx, m.bot
	return func() tea.Msg {
		return replyMsg{ex: ex, reply: bot.Resolve(ctx, ex)}
	}
}

// updateFocused forwards msg to whichever input has focus. The chat input
// stays inert while a reply is pending.
func (m Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	if m.mode() == session.AwaitingCredential {
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}
	if m.bot.State().Snapshot().Pending {
		return m, nil
	}
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) mode() session.Mode {
	return m.bot.State().Snapshot().Mode
}

func (m *Model) applyTheme(dark bool) {
	m.dark = dark
	m.styles = StylesFor(dark)
	m.spinner.Style = m.styles.Spinner
	m.input.PromptStyle = m.styles.Prompt
	m.input.TextStyle = m.styles.Body
	m.keyInput.PromptStyle = m.styles.Prompt
	m.keyInput.TextStyle = m.styles.Body
	m.newRenderer()
}

func (m *Model) layout() {
	m.viewport.Width = m.width
	m.viewport.Height = max(m.height-chromeHeight, 1)
	m.input.Width = max(m.width-8, 10)
	m.newRenderer()
}

func (m *Model) newRenderer() {
	m.renderer = nil
	if !m.markdown {
		return
	}
	style := "light"
	if m.dark {
		style = "dark"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath(style),
		glamour.WithWordWrap(max(m.width-6, 20)),
	)
	if err == nil {
		m.renderer = r
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderMessages())
	m.viewport.GotoBottom()
}
