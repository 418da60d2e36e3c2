package agent

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/atinylittleshell/nlsh/internal/bash"
	"github.com/atinylittleshell/nlsh/internal/checkpoint"
	"github.com/atinylittleshell/nlsh/internal/confirm"
	"github.com/atinylittleshell/nlsh/internal/history"
	"github.com/atinylittleshell/nlsh/internal/oracle"
	"github.com/atinylittleshell/nlsh/internal/render"
	"github.com/atinylittleshell/nlsh/internal/tools"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/require"
)

// fakeModel returns scripted replies in order and records every request.
type fakeModel struct {
	replies  []string
	err      error
	requests []oracle.Request
}

func (m *fakeModel) Complete(ctx context.Context, req oracle.Request) (string, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return "", m.err
	}
	if len(m.replies) == 0 {
		return "", errors.New("no more scripted replies")
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

// fakeRunner records commands instead of running them.
type fakeRunner struct {
	mu       sync.Mutex
	commands []string
	results  map[string]*bash.ExecResult
	hook     func(ctx context.Context, command string) error
}

func (r *fakeRunner) run(ctx context.Context, dir, command string, timeout time.Duration) (*bash.ExecResult, error) {
	r.mu.Lock()
	r.commands = append(r.commands, command)
	r.mu.Unlock()

	if r.hook != nil {
		if err := r.hook(ctx, command); err != nil {
			return nil, err
		}
	}
	if res, ok := r.results[command]; ok {
		return res, nil
	}
	return &bash.ExecResult{Output: "ran " + command + "\n"}, nil
}

// scriptedConfirmer answers prompts from fixed queues. An exhausted queue aborts.
// onPrompt, when set, runs before every answer.
type scriptedConfirmer struct {
	onPrompt  func()
	risky     []confirm.Decision
	safe      []confirm.Decision
	cont      []bool
	riskySeen []string
	safeSeen  []string
	contSeen  []int
}

func (c *scriptedConfirmer) prompt() {
	if c.onPrompt != nil {
		c.onPrompt()
	}
}

func (c *scriptedConfirmer) ConfirmRisky(ctx context.Context, action string) confirm.Decision {
	c.prompt()
	c.riskySeen = append(c.riskySeen, action)
	if len(c.risky) == 0 {
		return confirm.Aborted
	}
	d := c.risky[0]
	c.risky = c.risky[1:]
	return d
}

func (c *scriptedConfirmer) ConfirmSafe(ctx context.Context, action string) confirm.Decision {
	c.prompt()
	c.safeSeen = append(c.safeSeen, action)
	if len(c.safe) == 0 {
		return confirm.Aborted
	}
	d := c.safe[0]
	c.safe = c.safe[1:]
	return d
}

func (c *scriptedConfirmer) ConfirmContinue(ctx context.Context, total int) bool {
	c.prompt()
	c.contSeen = append(c.contSeen, total)
	if len(c.cont) == 0 {
		return false
	}
	v := c.cont[0]
	c.cont = c.cont[1:]
	return v
}

// fakeRecorder keeps history entries in memory.
type fakeRecorder struct {
	entries []*history.HistoryEntry
}

func (r *fakeRecorder) StartCommand(command, directory, source, sessionID string, step int) (*history.HistoryEntry, error) {
	entry := &history.HistoryEntry{Command: command, Directory: directory, Source: source, SessionID: sessionID, Step: step}
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *fakeRecorder) FinishCommand(entry *history.HistoryEntry, exitCode int) (*history.HistoryEntry, error) {
	entry.ExitCode.Int32 = int32(exitCode)
	entry.ExitCode.Valid = true
	return entry, nil
}

type harness struct {
	session   *Session
	model     *fakeModel
	runner    *fakeRunner
	confirmer *scriptedConfirmer
	recorder  *fakeRecorder
	out       *bytes.Buffer
	workDir   string
}

func newHarness(t *testing.T, mode Mode, maxSteps int, replies ...string) *harness {
	t.Helper()
	lipgloss.SetColorProfile(termenv.Ascii)

	workDir := t.TempDir()
	store := checkpoint.NewStore(filepath.Join(t.TempDir(), "session"))
	session, err := NewSession(store, "test goal", mode, workDir, maxSteps)
	require.NoError(t, err)

	return &harness{
		session:   session,
		model:     &fakeModel{replies: replies},
		runner:    &fakeRunner{results: map[string]*bash.ExecResult{}},
		confirmer: &scriptedConfirmer{},
		recorder:  &fakeRecorder{},
		out:       &bytes.Buffer{},
		workDir:   workDir,
	}
}

func (h *harness) loop() *Loop {
	return NewLoop(h.session, Options{
		Model:              h.model,
		Dispatcher:         tools.NewDispatcher(h.workDir),
		Confirmer:          h.confirmer,
		Renderer:           render.New(h.out, 20),
		Runner:             h.runner.run,
		Recorder:           h.recorder,
		HistorySteps:       8,
		HistoryOutputLines: 3,
	})
}

func (h *harness) records(t *testing.T) []checkpoint.Record {
	t.Helper()
	records, err := h.session.Store().Records()
	require.NoError(t, err)
	return records
}
