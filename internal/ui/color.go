// Package ui provides terminal output helpers for dotsync.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Color function types for styled output.
var (
	// Success is used for created and updated items (green).
	Success = color.New(color.FgGreen).SprintFunc()
	// Error is used for failures (red).
	Error = color.New(color.FgRed).SprintFunc()
	// Warning is used for drifted items (yellow).
	Warning = color.New(color.FgYellow).SprintFunc()
	// Info is used for paths and digests (cyan).
	Info = color.New(color.FgCyan).SprintFunc()
	// Bold is used for item names.
	Bold = color.New(color.Bold).SprintFunc()
	// Dim is used for skipped items and secondary details (faint).
	Dim = color.New(color.Faint).SprintFunc()
	// Header is used for table headers (bold cyan).
	Header = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// Status symbols.
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "⚠"
	SymbolSkipped = "-"
	SymbolPending = "○"
	SymbolDeleted = "×"
)

// Color modes accepted by SetColorMode.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// StatusSuccess returns a green checkmark with optional message.
func StatusSuccess(msg string) string {
	return status(Success(SymbolSuccess), msg)
}

// StatusError returns a red X with optional message.
func StatusError(msg string) string {
	return status(Error(SymbolError), msg)
}

// StatusWarning returns a yellow warning with optional message.
func StatusWarning(msg string) string {
	return status(Warning(SymbolWarning), msg)
}

// StatusSkipped returns a dimmed skip symbol with optional message.
func StatusSkipped(msg string) string {
	return status(Dim(SymbolSkipped), msg)
}

// StatusPending returns a cyan circle with optional message.
func StatusPending(msg string) string {
	return status(Info(SymbolPending), msg)
}

// StatusDeleted returns a yellow cross with optional message.
func StatusDeleted(msg string) string {
	return status(Warning(SymbolDeleted), msg)
}

func status(symbol, msg string) string {
	if msg == "" {
		return symbol
	}
	return symbol + " " + msg
}

// DisableColors disables all color output.
func DisableColors() {
	color.NoColor = true
}

// EnableColors enables color output.
func EnableColors() {
	color.NoColor = false
}

// IsColorEnabled returns whether colors are currently enabled.
func IsColorEnabled() bool {
	return !color.NoColor
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd())) // #nosec G115 - file descriptors fit in int
}

// SetColorMode applies a color mode. In auto mode colors follow NO_COLOR and
// whether out is a terminal.
func SetColorMode(mode string, out io.Writer) error {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ColorAlways:
		EnableColors()
	case ColorNever:
		DisableColors()
	case ColorAuto, "":
		if os.Getenv("NO_COLOR") != "" || !IsTerminal(out) {
			DisableColors()
		} else {
			EnableColors()
		}
	default:
		return fmt.Errorf("invalid color mode %q (want %s, %s, or %s)", mode, ColorAuto, ColorAlways, ColorNever)
	}
	return nil
}
