package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"EpsilonChat/internal/session"
)

const (
	appName      = "Epsilon"
	timeLayout   = "15:04"
	chatHelp     = "enter send • ↑/↓ scroll • ctrl+k change key • ctrl+l clear • ctrl+t theme • ctrl+c quit"
	keyEntryHelp = "enter start chat • ctrl+t theme • ctrl+c quit"
)

func (m Model) View() string {
	if m.mode() == session.AwaitingCredential {
		return m.credentialView()
	}
	return m.chatView()
}

func (m Model) credentialView() string {
	s := m.styles

	card := lipgloss.JoinVertical(lipgloss.Left,
		s.Title.Render("⚡ "+appName),
		s.Subtitle.Render("AI Assistant"),
		"",
		s.Heading.Render("Enter Your OpenRouter API Key"),
		s.Body.Render("To get started, please enter your OpenRouter API key."),
		s.Body.Render("You can get one at https://openrouter.ai"),
		"",
		m.keyInput.View(),
		"",
		s.Muted.Render("Your API key is kept in memory and only sent to OpenRouter."),
	)

	return lipgloss.JoinVertical(lipgloss.Center,
		lipgloss.Place(m.width, max(m.height-1, 1), lipgloss.Center, lipgloss.Center, s.Card.Render(card)),
		s.Help.Render(keyEntryHelp),
	)
}

func (m Model) chatView() string {
	s := m.styles

	header := s.Header.Width(m.width).Render(
		s.Title.Render("⚡ "+appName) + " " + s.Subtitle.Render("AI Assistant"),
	)

	var input string
	if m.bot.State().Snapshot().Pending {
		input = s.Muted.Render("│ Waiting for " + appName + "...")
	} else {
		input = m.input.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		s.InputBox.Width(max(m.width-2, 10)).Render(input),
		s.Help.Render(chatHelp),
	)
}

// renderMessages renders the conversation followed by the typing indicator
// while a reply is pending.
func (m Model) renderMessages() string {
	s := m.styles
	snap := m.bot.State().Snapshot()
	wrap := max(m.width-4, 20)

	var sb strings.Builder
	for _, msg := range snap.Messages {
		stamp := s.Timestamp.Render(msg.Timestamp.Format(timeLayout))

		if msg.Sender == session.SenderUser {
			sb.WriteString(s.UserName.Render("You") + " " + stamp + "\n")
			sb.WriteString(s.UserText.Width(wrap).Render(msg.Content))
			sb.WriteString("\n\n")
			continue
		}

		sb.WriteString(s.BotName.Render(appName) + " " + stamp + "\n")
		sb.WriteString(m.renderReply(msg.Content, wrap))
		sb.WriteString("\n")
	}

	if snap.Pending {
		sb.WriteString(s.BotName.Render(appName) + "\n")
		sb.WriteString(m.spinner.View() + s.Muted.Render(" typing..."))
		sb.WriteString("\n")
	}

	return sb.String()
}

// renderReply renders markdown, falling back to plain text if glamour fails.
func (m Model) renderReply(content string, wrap int) (result string) {
	plain := m.styles.BotText.Width(wrap).Render(content) + "\n"

	defer func() {
		if r := recover(); r != nil {
			result = plain
		}
	}()

	if m.renderer != nil && content != "" {
		rendered, err := m.renderer.Render(content)
		if err == nil {
			return rendered
		}
	}
	return plain
}
