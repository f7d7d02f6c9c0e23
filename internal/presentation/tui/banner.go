package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the startup banner with the version.
func PrintBanner(w io.Writer, version string) {
	out := termenv.NewOutput(w)
	p := out.ColorProfile()

	lines := []struct {
		text  string
		color string
	}{
		{`   __ _ _ __   __ _ _ __ ___  _ __   ___  ___(_)___`, "#34d399"},
		{`  / _' | '_ \ / _' | '_ ' _ \| '_ \ / _ \/ __| / __|`, "#2dd4bf"},
		{` | (_| | | | | (_| | | | | | | | | |  __/\__ \ \__ \`, "#22d3ee"},
		{`  \__,_|_| |_|\__,_|_| |_| |_|_| |_|\___||___/_|___/`, "#38bdf8"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, p.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, p.String("  v"+version).Faint())
	fmt.Fprintln(w)
}
