// Package clip copies generated documents to the clipboard.
package clip

import (
	"errors"
	"fmt"
	"io"
	"os"

	atotto "github.com/atotto/clipboard"
	osc52 "github.com/aymanbagabas/go-osc52/v2"
	"golang.org/x/term"
)

// Method is how the text was made available.
type Method string

const (
	MethodNative Method = "native"
	MethodOSC52  Method = "osc52"
	MethodFile   Method = "file"
)

// Result reports where the text went. FilePath is set for MethodFile.
type Result struct {
	Method   Method
	FilePath string
}

// Terminals may silently drop larger OSC52 payloads.
const osc52LimitBytes = 100_000

// Copier tries the native clipboard, then an OSC52 escape sequence on a
// terminal, then falls back to a temp file.
type Copier struct {
	native   func(string) error
	terminal *os.File
	getenv   func(string) string
	tempDir  string
}

// New creates a copier that writes OSC52 sequences to stderr.
func New() *Copier {
	return &Copier{
		native:   atotto.WriteAll,
		terminal: os.Stderr,
		getenv:   os.Getenv,
	}
}

// Copy makes text available by the first method that works.
func (c *Copier) Copy(text string) (Result, error) {
	if text == "" {
		return Result{}, errors.New("nothing to copy")
	}
	if c.native != nil && !atotto.Unsupported {
		if err := c.native(text); err == nil {
			return Result{Method: MethodNative}, nil
		}
	}
	if c.terminal != nil && term.IsTerminal(int(c.terminal.Fd())) {
		if err := c.writeOSC52(c.terminal, text); err == nil {
			return Result{Method: MethodOSC52}, nil
		}
	}
	path, err := c.writeTemp(text)
	if err != nil {
		return Result{}, fmt.Errorf("copying to clipboard: %w", err)
	}
	return Result{Method: MethodFile, FilePath: path}, nil
}

func (c *Copier) writeOSC52(w io.Writer, text string) error {
	if len(text) > osc52LimitBytes {
		return fmt.Errorf("text too large for OSC52 (%d bytes)", len(text))
	}
	seq := osc52.New(text)
	switch {
	case c.getenv("TMUX") != "":
		seq = seq.Tmux()
	case c.getenv("STY") != "":
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(w)
	return err
}

func (c *Copier) writeTemp(text string) (string, error) {
	f, err := os.CreateTemp(c.tempDir, "quorum-spec-*.md")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
