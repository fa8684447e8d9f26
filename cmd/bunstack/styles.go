package main

import (
	"github.com/charmbracelet/lipgloss"

	"bunstack/internal/order"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	usageStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	statusStyles = map[order.Status]lipgloss.Style{
		order.StatusCreated:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		order.StatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		order.StatusDone:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		order.StatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
)

func statusStyle(s order.Status) lipgloss.Style {
	if style, ok := statusStyles[s]; ok {
		return style
	}
	return dimStyle
}
