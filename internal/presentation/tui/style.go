package tui

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// NewSystemStyle returns a formatter for chat system lines written to w.
// Styles are dropped when w is not a color terminal.
func NewSystemStyle(w io.Writer) func(string) string {
	style := lipgloss.NewRenderer(w).NewStyle().
		Foreground(lipgloss.Color("#38bdf8")).
		Bold(true)
	return func(s string) string {
		return style.Render(s)
	}
}
