package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title   lipgloss.Style
	tag     lipgloss.Style
	info    lipgloss.Style
	success lipgloss.Style
	error   lipgloss.Style
}

// newStyles detects the color profile of w, so nothing is styled when w isn't a terminal.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7d56f4")),
		tag: r.NewStyle().
			Bold(true).
			Width(4),
		info: r.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("#888888")),
		success: r.NewStyle().
			Foreground(lipgloss.Color("#28a745")),
		error: r.NewStyle().
			Foreground(lipgloss.Color("#ee4b2b")),
	}
}
