// Package confirm asks the operator to approve agent actions over a
// line-based reader.
package confirm

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/atinylittleshell/nlsh/internal/render"
)

// StrictToken is the only answer that approves a risky command.
const StrictToken = "YES"

// Decision is the operator's answer to a confirmation prompt.
type Decision int

const (
	Approved Decision = iota
	Skipped
	Aborted
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case Skipped:
		return "skipped"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("Decision(%d)", int(d))
	}
}

// Prompter reads answers from in and writes prompts to out. Every prompt
// gives up when its context is cancelled.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	// pending is a read still in flight from a cancelled prompt; the next
	// prompt takes its answer instead of starting a second read.
	pending chan lineRead
}

type lineRead struct {
	line string
	err  error
}

// NewPrompter creates a prompter. The reader is buffered once so that
// consecutive prompts share it.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// readLine returns the trimmed answer. io.EOF is returned only when nothing
// was read.
func (p *Prompter) readLine(ctx context.Context, prompt string) (string, error) {
	fmt.Fprint(p.out, render.PendingStyle.Render(prompt))

	if p.pending == nil {
		ch := make(chan lineRead, 1)
		p.pending = ch
		go func() {
			line, err := p.in.ReadString('\n')
			ch <- lineRead{line: line, err: err}
		}()
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case a := <-p.pending:
		p.pending = nil
		if a.err != nil {
			if errors.Is(a.err, io.EOF) && a.line != "" {
				return strings.TrimSpace(a.line), nil
			}
			fmt.Fprintln(p.out)
			return "", a.err
		}
		return strings.TrimSpace(a.line), nil
	}
}

// ConfirmRisky asks for the exact strict token. "s" or "skip" skips the step;
// anything else, including end of input or cancellation, aborts.
func (p *Prompter) ConfirmRisky(ctx context.Context, action string) Decision {
	fmt.Fprintf(p.out, "%s %s\n", render.RiskStyle.Render(render.SymbolRisky), action)
	answer, err := p.readLine(ctx, fmt.Sprintf("Type %s to run, s to skip, anything else aborts: ", StrictToken))
	if err != nil {
		return Aborted
	}
	switch {
	case answer == StrictToken:
		return Approved
	case isSkip(answer):
		return Skipped
	default:
		return Aborted
	}
}

// ConfirmSafe asks a lenient yes/no/skip question with yes as the default.
// Unrecognized answers repeat the prompt.
func (p *Prompter) ConfirmSafe(ctx context.Context, action string) Decision {
	for {
		answer, err := p.readLine(ctx, fmt.Sprintf("Run %s? [Y/n/s] ", action))
		if err != nil {
			return Aborted
		}
		switch strings.ToLower(answer) {
		case "", "y", "yes":
			return Approved
		case "s", "skip":
			return Skipped
		case "n", "no", "q", "abort":
			return Aborted
		}
		fmt.Fprintln(p.out, render.DimStyle.Render("please answer y, n or s"))
	}
}

// ConfirmContinue asks whether to run another batch of steps. Only an
// explicit yes continues.
func (p *Prompter) ConfirmContinue(ctx context.Context, total int) bool {
	answer, err := p.readLine(ctx, fmt.Sprintf("Reached the step limit after %d steps in total. Continue? [y/N] ", total))
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func isSkip(answer string) bool {
	switch strings.ToLower(answer) {
	case "s", "skip":
		return true
	default:
		return false
	}
}
