package console

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ergochat/readline"
	"golang.org/x/term"
)

const historySize = 500

// LineReader supplies console input one line at a time. io.EOF ends the session.
type LineReader interface {
	GetLine(prompt string) (string, error)
	Close()
}

// LineEditor reads with readline on a terminal and falls back to a plain scanner otherwise.
type LineEditor struct {
	rl      *readline.Instance
	scanner *bufio.Scanner
	out     io.Writer
}

// NewLineEditor picks readline when stdin is an interactive terminal.
// historyPath may be empty to disable persisted history.
func NewLineEditor(historyPath string) *LineEditor {
	interactive := term.IsTerminal(int(os.Stdin.Fd())) && os.Getenv("INSIDE_EMACS") == ""
	if !interactive {
		return NewScannerEditor(os.Stdin, os.Stdout)
	}

	if historyPath != "" {
		_ = os.MkdirAll(filepath.Dir(historyPath), 0o700)
	}
	rl, err := readline.NewFromConfig(&readline.Config{
		HistoryFile:            historyPath,
		HistoryLimit:           historySize,
		DisableAutoSaveHistory: true,
		Prompt:                 "",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: readline init failed (%v), using basic input\n", err)
		return NewScannerEditor(os.Stdin, os.Stdout)
	}
	return &LineEditor{rl: rl}
}

// NewScannerEditor reads lines from in and echoes prompts to out.
func NewScannerEditor(in io.Reader, out io.Writer) *LineEditor {
	return &LineEditor{scanner: bufio.NewScanner(in), out: out}
}

func (le *LineEditor) GetLine(prompt string) (string, error) {
	if le.rl != nil {
		le.rl.SetPrompt(prompt)
		line, err := le.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				return "", io.EOF
			}
			return "", err
		}
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			le.rl.SaveToHistory(trimmed)
		}
		return line, nil
	}

	fmt.Fprint(le.out, prompt)
	if !le.scanner.Scan() {
		if err := le.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return le.scanner.Text(), nil
}

func (le *LineEditor) Close() {
	if le.rl != nil {
		_ = le.rl.Close()
		le.rl = nil
	}
}

// IsInteractive reports whether readline is in use.
func (le *LineEditor) IsInteractive() bool {
	return le.rl != nil
}

// HistoryPath returns the console history file under XDG_STATE_HOME or ~/.local/state.
func HistoryPath() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "merion", "history")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "merion", "history")
}
