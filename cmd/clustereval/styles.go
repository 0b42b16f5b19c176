package main

import "github.com/charmbracelet/lipgloss"

// Terminal styles shared by the report commands. lipgloss drops the colors
// when output is not a terminal.
var (
	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	borderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238"))
)
