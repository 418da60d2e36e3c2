// Package render formats agent progress for the terminal.
package render

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	ColorCyan   = lipgloss.Color("12") // Step header
	ColorYellow = lipgloss.Color("11") // Pending, confirmation prompts
	ColorGreen  = lipgloss.Color("10") // Success indicator
	ColorRed    = lipgloss.Color("9")  // Error and risk indicator
	ColorGray   = lipgloss.Color("8")  // Dim/secondary
)

const (
	SymbolExec          = "▶" // Raw shell command
	SymbolTool          = "●" // Tool call
	SymbolSuccess       = "✓"
	SymbolError         = "✗"
	SymbolSkipped       = "↷"
	SymbolRisky         = "⚠"
	SymbolSystemMessage = "→"
)

var (
	// HeaderStyle is used for step headers and the session banner
	HeaderStyle = lipgloss.NewStyle().Foreground(ColorCyan).Bold(true)

	// PendingStyle is used for the spinner and confirmation prompts
	PendingStyle = lipgloss.NewStyle().Foreground(ColorYellow)

	SuccessStyle = lipgloss.NewStyle().Foreground(ColorGreen)

	ErrorStyle = lipgloss.NewStyle().Foreground(ColorRed)

	// RiskStyle highlights commands that need the strict confirmation
	RiskStyle = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)

	// DimStyle is used for command output and meta information
	DimStyle = lipgloss.NewStyle().Foreground(ColorGray)

	SystemMessageStyle = lipgloss.NewStyle().Foreground(ColorGray)
)

// StatusSymbol returns the styled symbol for a checkpoint status.
func StatusSymbol(status string) string {
	switch status {
	case "ok", "done":
		return SuccessStyle.Render(SymbolSuccess)
	case "error", "failed", "aborted":
		return ErrorStyle.Render(SymbolError)
	case "skipped":
		return DimStyle.Render(SymbolSkipped)
	default:
		return SystemMessageStyle.Render(SymbolSystemMessage)
	}
}

// ConfigureColor disables styling when NO_COLOR is set or w is not a terminal.
func ConfigureColor(w io.Writer) {
	if termenv.EnvNoColor() || !IsTerminal(w) {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether w is a terminal file descriptor.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the width of w, or fallback when it cannot be determined.
func TerminalWidth(w io.Writer, fallback int) int {
	f, ok := w.(*os.File)
	if !ok {
		return fallback
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallback
	}
	return width
}
