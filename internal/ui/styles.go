// Package ui is the terminal presentation layer: it renders the session and
// turns key presses into controller intents.
package ui

import "github.com/charmbracelet/lipgloss"

// Theme holds one color scheme
type Theme struct {
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	UserBubble lipgloss.Color
	BotBubble  lipgloss.Color
	IsDark     bool
}

func LightTheme() Theme {
	return Theme{
		Foreground: lipgloss.Color("#1f2937"),
		Primary:    lipgloss.Color("#6366f1"),
		Accent:     lipgloss.Color("#0ea5e9"),
		Muted:      lipgloss.Color("#6b7280"),
		Border:     lipgloss.Color("#d1d5db"),
		UserBubble: lipgloss.Color("#e0e7ff"),
		BotBubble:  lipgloss.Color("#f3f4f6"),
	}
}

func DarkTheme() Theme {
	return Theme{
		Foreground: lipgloss.Color("#f3f4f6"),
		Primary:    lipgloss.Color("#a5b4fc"),
		Accent:     lipgloss.Color("#38bdf8"),
		Muted:      lipgloss.Color("#9ca3af"),
		Border:     lipgloss.Color("#374151"),
		UserBubble: lipgloss.Color("#312e81"),
		BotBubble:  lipgloss.Color("#1f2937"),
		IsDark:     true,
	}
}

// Styles are the lipgloss styles derived from a Theme
type Styles struct {
	Theme Theme

	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Header    lipgloss.Style
	Card      lipgloss.Style
	Heading   lipgloss.Style
	Body      lipgloss.Style
	Muted     lipgloss.Style
	Help      lipgloss.Style
	UserName  lipgloss.Style
	BotName   lipgloss.Style
	UserText  lipgloss.Style
	BotText   lipgloss.Style
	Timestamp lipgloss.Style
	InputBox  lipgloss.Style
	Prompt    lipgloss.Style
	Spinner   lipgloss.Style
}

func NewStyles(t Theme) Styles {
	return Styles{
		Theme:    t,
		Title:    lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Subtitle: lipgloss.NewStyle().Foreground(t.Muted),
		Header: lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(t.Border).
			Padding(0, 1),
		Card: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Primary).
			Padding(1, 3),
		Heading:   lipgloss.NewStyle().Bold(true).Foreground(t.Foreground),
		Body:      lipgloss.NewStyle().Foreground(t.Foreground),
		Muted:     lipgloss.NewStyle().Foreground(t.Muted),
		Help:      lipgloss.NewStyle().Foreground(t.Muted).Padding(0, 1),
		UserName:  lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		BotName:   lipgloss.NewStyle().Bold(true).Foreground(t.Accent),
		UserText:  lipgloss.NewStyle().Foreground(t.Foreground).Background(t.UserBubble).Padding(0, 1),
		BotText:   lipgloss.NewStyle().Foreground(t.Foreground).Background(t.BotBubble).Padding(0, 1),
		Timestamp: lipgloss.NewStyle().Foreground(t.Muted).Italic(true),
		InputBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(t.Border).
			Padding(0, 1),
		Prompt:  lipgloss.NewStyle().Foreground(t.Primary),
		Spinner: lipgloss.NewStyle().Foreground(t.Accent),
	}
}

// StylesFor picks the dark or light styles.
func StylesFor(dark bool) Styles {
	if dark {
		return NewStyles(DarkTheme())
	}
	return NewStyles(LightTheme())
}
