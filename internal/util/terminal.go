package util

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal checks if the given file descriptor is a terminal
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// StdoutIsTerminal reports whether progress output should be drawn.
func StdoutIsTerminal() bool {
	return IsTerminal(os.Stdout.Fd())
}
