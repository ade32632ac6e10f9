package cmd

import (
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func terminalWidth(w io.Writer, fallback int) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	return fallback
}

// printDocument writes a markdown document, rendered for the terminal when w
// is one and color is enabled.
func printDocument(w io.Writer, doc string, raw bool) error {
	if raw || noColor || !isTerminal(w) {
		_, err := io.WriteString(w, doc+"\n")
		return err
	}
	width := terminalWidth(w, 100)
	if width > 120 {
		width = 120
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width-4))
	if err != nil {
		_, err = io.WriteString(w, doc+"\n")
		return err
	}
	out, err := r.Render(doc)
	if err != nil {
		out = doc + "\n"
	}
	_, err = io.WriteString(w, out)
	return err
}
