package render

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
)

func newTestRenderer(displayLines int) (*Renderer, *bytes.Buffer) {
	lipgloss.SetColorProfile(termenv.Ascii)
	var buf bytes.Buffer
	r := New(&buf, displayLines)
	r.termWidth = func() int { return 200 }
	return r, &buf
}

func TestTruncateLines(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		max      int
		wantText string
		wantRest int
	}{
		{"empty", "", 5, "", 0},
		{"under limit", "a\nb", 5, "a\nb", 0},
		{"exact limit", "a\nb\nc", 3, "a\nb\nc", 0},
		{"over limit", "a\nb\nc\nd\ne", 2, "a\nb", 3},
		{"trailing newline ignored", "a\nb\n", 1, "a", 1},
		{"no limit", "a\nb\nc", 0, "a\nb\nc", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, rest := TruncateLines(tt.text, tt.max)
			assert.Equal(t, tt.wantText, text)
			assert.Equal(t, tt.wantRest, rest)
		})
	}
}

func TestOutput_ShowsRemainingCount(t *testing.T) {
	r, buf := newTestRenderer(2)

	r.Output("one\ntwo\nthree\nfour\n")

	out := buf.String()
	assert.Contains(t, out, "one")
	assert.Contains(t, out, "two")
	assert.NotContains(t, out, "three")
	assert.Contains(t, out, "... (2 more lines)")
}

func TestOutput_Empty(t *testing.T) {
	r, buf := newTestRenderer(2)
	r.Output("")
	assert.Empty(t, buf.String())
}

func TestStepHeader(t *testing.T) {
	r, buf := newTestRenderer(20)

	r.StepHeader(7, 2, 20, "ls -la", false)
	assert.Equal(t, "[step 7, 2/20] "+SymbolExec+" ls -la\n", buf.String())

	buf.Reset()
	r.StepHeader(8, 3, 20, "TOOL:list_dir(.)", true)
	assert.Contains(t, buf.String(), SymbolTool+" TOOL:list_dir(.)")
}

func TestStepHeader_TruncatesToWidth(t *testing.T) {
	r, buf := newTestRenderer(20)
	r.termWidth = func() int { return 20 }

	r.StepHeader(1, 1, 20, strings.Repeat("x", 100), false)
	assert.Contains(t, buf.String(), "…")
	assert.NotContains(t, buf.String(), strings.Repeat("x", 30))
}

func TestStepResult(t *testing.T) {
	r, buf := newTestRenderer(20)

	r.StepResult("error", 2)
	assert.Equal(t, SymbolError+" error (exit code 2)\n", buf.String())

	buf.Reset()
	r.StepResult("ok", 0)
	assert.Equal(t, SymbolSuccess+" ok\n", buf.String())
}

func TestCompleted(t *testing.T) {
	r, buf := newTestRenderer(20)
	r.Completed("set up repo", 1200)
	assert.Contains(t, buf.String(), "Done: set up repo")
	assert.Contains(t, buf.String(), "1,200 steps in total")
}

func TestStatusSymbol(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	assert.Equal(t, SymbolSuccess, StatusSymbol("ok"))
	assert.Equal(t, SymbolSuccess, StatusSymbol("done"))
	assert.Equal(t, SymbolError, StatusSymbol("aborted"))
	assert.Equal(t, SymbolSkipped, StatusSymbol("skipped"))
	assert.Equal(t, SymbolSystemMessage, StatusSymbol("unknown"))
}

func TestWait_NoopWithoutTerminal(t *testing.T) {
	r, buf := newTestRenderer(20)
	stop := r.Wait(context.Background(), "thinking")
	stop()
	assert.Empty(t, buf.String())
}

func TestTerminalWidth_Fallback(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 42, TerminalWidth(&buf, 42))
	assert.False(t, IsTerminal(&buf))
}
