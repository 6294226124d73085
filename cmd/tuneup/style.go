package main

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/ciclofficina/tuneup"
)

var (
	keyword = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}).
		Render

	subtle = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}).
		Render

	label = lipgloss.NewStyle().
		Foreground(lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}).
		Width(12).
		Render

	lowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}).
			Render

	mediumStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#B58900", Dark: "#ECB53F"}).
			Render

	highStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D70000", Dark: "#FF5F5F"}).
			Bold(true).
			Render
)

// levelText renders a pressure level in its signal color.
func levelText(l tuneup.Level) string {
	switch l {
	case tuneup.LevelHigh:
		return highStyle(l.String())
	case tuneup.LevelMedium:
		return mediumStyle(l.String())
	default:
		return lowStyle(l.String())
	}
}

// paragraph wraps and indents help text to the terminal width.
func paragraph(s string) string {
	s = strings.TrimSpace(s)
	s = indent.String(wordwrap.String(s, termWidth()-4), 2)
	return "\n" + s + "\n"
}

// termWidth returns the terminal width capped at 80, or 80 when stdout is
// not a terminal.
func termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		if w > 80 {
			w = 80
		}
		return w
	}
	return 80
}
