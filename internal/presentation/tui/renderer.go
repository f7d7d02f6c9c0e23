package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders narrative text for the terminal.
// When glamour cannot be initialised the text is returned unchanged.
func NewRenderer(width int) func(string) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle(), glamour.WithPreservedNewLines()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return Plain
	}

	return r.Render
}

// Plain is the renderer used when output is not a terminal.
func Plain(text string) (string, error) {
	return text + "\n", nil
}
