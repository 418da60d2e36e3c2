package render

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
)

// DefaultDisplayLines is the number of output lines shown per step.
const DefaultDisplayLines = 20

const defaultWidth = 80

// Renderer writes agent progress to the operator's terminal.
type Renderer struct {
	writer       io.Writer
	displayLines int
	termWidth    func() int
	spinner      bool
}

// New creates a renderer for w. displayLines <= 0 uses DefaultDisplayLines.
func New(w io.Writer, displayLines int) *Renderer {
	if displayLines <= 0 {
		displayLines = DefaultDisplayLines
	}
	return &Renderer{
		writer:       w,
		displayLines: displayLines,
		termWidth:    func() int { return TerminalWidth(w, defaultWidth) },
		spinner:      IsTerminal(w),
	}
}

// Writer returns the underlying writer.
func (r *Renderer) Writer() io.Writer {
	return r.writer
}

func (r *Renderer) fit(s string) string {
	width := r.termWidth()
	if width <= 0 {
		return s
	}
	return truncate.StringWithTail(s, uint(width), "…")
}

// SessionBanner prints the goal and mode of a starting or resumed session.
func (r *Renderer) SessionBanner(goal, mode string, nextStep int, resumed bool) {
	verb := "Starting"
	if resumed {
		verb = "Resuming"
	}
	fmt.Fprintln(r.writer, HeaderStyle.Render(r.fit(fmt.Sprintf("%s agent session: %s", verb, goal))))
	fmt.Fprintln(r.writer, DimStyle.Render(fmt.Sprintf("mode: %s, next step: %d", mode, nextStep)))
}

// StepHeader prints the step counter and the proposed action.
func (r *Renderer) StepHeader(step, batchStep, maxSteps int, action string, tool bool) {
	symbol := SymbolExec
	if tool {
		symbol = SymbolTool
	}
	counter := DimStyle.Render(fmt.Sprintf("[step %d, %d/%d]", step, batchStep, maxSteps))
	fmt.Fprintf(r.writer, "%s %s %s\n", counter, PendingStyle.Render(symbol), r.fit(action))
}

// RiskWarning flags a command matched by the risk classifier.
func (r *Renderer) RiskWarning(rule string) {
	fmt.Fprintf(r.writer, "%s %s\n", RiskStyle.Render(SymbolRisky), RiskStyle.Render("risky command ("+rule+")"))
}

// Output prints command output truncated to the configured number of lines.
func (r *Renderer) Output(output string) {
	shown, rest := TruncateLines(output, r.displayLines)
	if shown == "" {
		return
	}
	for _, line := range strings.Split(shown, "\n") {
		fmt.Fprintln(r.writer, DimStyle.Render("  "+line))
	}
	if rest > 0 {
		fmt.Fprintln(r.writer, DimStyle.Render(fmt.Sprintf("  ... (%d more lines)", rest)))
	}
}

// StepResult prints the final status of a step.
func (r *Renderer) StepResult(status string, exitCode int) {
	text := status
	if exitCode != 0 {
		text = fmt.Sprintf("%s (exit code %d)", status, exitCode)
	}
	fmt.Fprintf(r.writer, "%s %s\n", StatusSymbol(status), DimStyle.Render(text))
}

// Message prints a secondary system message.
func (r *Renderer) Message(format string, args ...any) {
	fmt.Fprintf(r.writer, "%s %s\n", SystemMessageStyle.Render(SymbolSystemMessage), SystemMessageStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error line.
func (r *Renderer) Error(format string, args ...any) {
	fmt.Fprintf(r.writer, "%s %s\n", ErrorStyle.Render(SymbolError), ErrorStyle.Render(fmt.Sprintf(format, args...)))
}

// Completed prints the final summary of a finished session.
func (r *Renderer) Completed(summary string, steps int) {
	fmt.Fprintf(r.writer, "%s %s\n", SuccessStyle.Render(SymbolSuccess), SuccessStyle.Render("Done: "+summary))
	fmt.Fprintln(r.writer, DimStyle.Render(fmt.Sprintf("%s steps in total", humanize.Comma(int64(steps)))))
}

// Failed prints the reason the model gave up.
func (r *Renderer) Failed(reason string) {
	fmt.Fprintf(r.writer, "%s %s\n", ErrorStyle.Render(SymbolError), ErrorStyle.Render("Failed: "+reason))
}

// Paused tells the operator how to pick the session back up.
func (r *Renderer) Paused(nextStep int) {
	r.Message("session paused; run `nlsh agent --resume` to continue from step %d", nextStep)
}

// Wait shows a spinner with message until the returned function is called.
// It is a no-op when the output is not a terminal.
func (r *Renderer) Wait(ctx context.Context, message string) func() {
	if !r.spinner {
		return func() {}
	}
	s := NewSpinner(r.writer)
	s.SetMessage(message)
	return s.Start(ctx)
}

// TruncateLines keeps the first max lines of text and reports how many were dropped.
func TruncateLines(text string, max int) (string, int) {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return "", 0
	}
	lines := strings.Split(text, "\n")
	if max <= 0 || len(lines) <= max {
		return text, 0
	}
	return strings.Join(lines[:max], "\n"), len(lines) - max
}
