package tui

import "github.com/charmbracelet/lipgloss"

// Palette
var (
	colorAccent    = lipgloss.Color("#4fc1ff")
	colorSecondary = lipgloss.Color("#39c5bb")
	colorGold      = lipgloss.Color("#f5a623")
	colorOK        = lipgloss.Color("#22c55e")
	colorError     = lipgloss.Color("#ef4444")
	colorText      = lipgloss.Color("#e2e8f0")
	colorMuted     = lipgloss.Color("#64748b")
	colorBorder    = lipgloss.Color("#2d3748")
	colorHover     = lipgloss.Color("#232a3b")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			MarginBottom(1)

	welcomeStyle = lipgloss.NewStyle().Foreground(colorGold)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Width(10)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	cursorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAccent).
			Background(colorHover)

	selectedStyle = lipgloss.NewStyle().Foreground(colorSecondary)
	itemStyle     = lipgloss.NewStyle().Foreground(colorText)
	helpStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle       = lipgloss.NewStyle().Foreground(colorOK)
	errorStyle    = lipgloss.NewStyle().Foreground(colorError)
)

func inputStyles() (prompt, text, cursor lipgloss.Style) {
	return lipgloss.NewStyle().Foreground(colorAccent),
		lipgloss.NewStyle().Foreground(colorText),
		lipgloss.NewStyle().Foreground(colorAccent)
}
