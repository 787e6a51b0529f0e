package cmd

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7B61FF")).
			Bold(true).
			Padding(1, 0)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CCCCCC"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#5FD7FF"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3CB371")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6347")). // Tomato red
			Bold(true)
)
