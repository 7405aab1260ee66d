package styles

import (
	"github.com/charmbracelet/lipgloss"
)

// Styles holds all the styles for the chat screen
type Styles struct {
	Theme Theme

	// Layout
	Header    lipgloss.Style
	StatusBar lipgloss.Style
	InputArea lipgloss.Style

	// Messages
	UserMessage    lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemMessage  lipgloss.Style
	ErrorMessage   lipgloss.Style
	Attachment     lipgloss.Style
	PendingImage   lipgloss.Style

	// Status
	StatusReady       lipgloss.Style
	StatusMissing     lipgloss.Style
	StatusUnavailable lipgloss.Style

	// UI Elements
	Title   lipgloss.Style
	Label   lipgloss.Style
	Help    lipgloss.Style
	Spinner lipgloss.Style
}

// NewStyles creates a new styles instance with the given theme
func NewStyles(theme Theme) *Styles {
	s := &Styles{
		Theme: theme,
	}

	// Layout styles
	s.Header = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	s.StatusBar = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.InputArea = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.Border)

	// Message styles
	s.UserMessage = lipgloss.NewStyle().
		Foreground(theme.Primary)

	s.AssistantLabel = lipgloss.NewStyle().
		Foreground(theme.Secondary).
		Bold(true)

	s.SystemMessage = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Italic(true)

	s.ErrorMessage = lipgloss.NewStyle().
		Foreground(theme.Error).
		Bold(true)

	s.Attachment = lipgloss.NewStyle().
		Foreground(theme.Info)

	s.PendingImage = lipgloss.NewStyle().
		Foreground(theme.Info).
		Italic(true)

	// Status styles
	s.StatusReady = lipgloss.NewStyle().
		Foreground(theme.Success)

	s.StatusMissing = lipgloss.NewStyle().
		Foreground(theme.Warning)

	s.StatusUnavailable = lipgloss.NewStyle().
		Foreground(theme.Error)

	// UI Element styles
	s.Title = lipgloss.NewStyle().
		Foreground(theme.Primary).
		Bold(true)

	s.Label = lipgloss.NewStyle().
		Foreground(theme.TextDim)

	s.Help = lipgloss.NewStyle().
		Foreground(theme.TextDim).
		Italic(true)

	s.Spinner = lipgloss.NewStyle().
		Foreground(theme.Primary)

	return s
}

// RenderRole returns a styled role prefix
func (s *Styles) RenderRole(role string) string {
	switch role {
	case "user":
		return s.UserMessage.Bold(true).Render("👤 You:")
	case "assistant":
		return s.AssistantLabel.Render("🤖 Assistant:")
	case "system":
		return s.SystemMessage.Bold(true).Render("System:")
	default:
		return s.Label.Render(role + ":")
	}
}

// RenderStatus returns a styled readiness label. state is one of
// "ready", "missing" or "unavailable".
func (s *Styles) RenderStatus(state, label string) string {
	switch state {
	case "ready":
		return s.StatusReady.Render(label)
	case "missing":
		return s.StatusMissing.Render(label)
	default:
		return s.StatusUnavailable.Render(label)
	}
}
