// Package agent runs the autonomous multi-step loop: it asks the model for
// one action at a time, gates it by risk and mode, executes it and
// checkpoints every step so the session can be resumed.
package agent

import (
	"errors"
	"fmt"

	"github.com/atinylittleshell/nlsh/internal/checkpoint"
	"github.com/google/uuid"
)

// ErrResumeWithoutSession is returned when resuming a directory with no persisted goal.
var ErrResumeWithoutSession = errors.New("no agent session to resume")

// Mode controls how often the operator is asked for confirmation.
type Mode string

const (
	// ModeAuto runs non-risky actions without asking.
	ModeAuto Mode = "auto"
	// ModeSafe asks before every action.
	ModeSafe Mode = "safe"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeAuto, ModeSafe:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid agent mode %q (must be %s or %s)", s, ModeAuto, ModeSafe)
	}
}

// Session is one goal-directed agent run backed by a checkpoint store.
type Session struct {
	ID       string
	Goal     string
	Mode     Mode
	WorkDir  string
	MaxSteps int // per batch

	// NextStep is the index the next checkpoint will be saved under.
	NextStep int
	Resumed  bool

	store *checkpoint.Store
}

// NewSession wipes any previous session in store and persists a fresh one.
func NewSession(store *checkpoint.Store, goal string, mode Mode, workDir string, maxSteps int) (*Session, error) {
	if goal == "" {
		return nil, errors.New("goal must not be empty")
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}

	if err := store.Reset(); err != nil {
		return nil, err
	}

	s := &Session{
		ID:       uuid.NewString(),
		Goal:     goal,
		Mode:     mode,
		WorkDir:  workDir,
		MaxSteps: maxSteps,
		NextStep: 1,
		store:    store,
	}

	if err := store.WriteSession(checkpoint.Session{ID: s.ID, Goal: goal, Mode: string(mode)}); err != nil {
		return nil, err
	}
	return s, nil
}

// ResumeSession loads the goal and mode from store and continues after the
// highest persisted step.
func ResumeSession(store *checkpoint.Store, workDir string, maxSteps int) (*Session, error) {
	meta, err := store.ReadSession()
	if err != nil {
		if errors.Is(err, checkpoint.ErrNoSession) {
			return nil, fmt.Errorf("%w in %s", ErrResumeWithoutSession, store.Dir())
		}
		return nil, err
	}

	mode, err := ParseMode(meta.Mode)
	if err != nil {
		return nil, fmt.Errorf("persisted session is corrupt: %w", err)
	}

	latest, err := store.LatestCompletedStep()
	if err != nil {
		return nil, err
	}

	id := meta.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &Session{
		ID:       id,
		Goal:     meta.Goal,
		Mode:     mode,
		WorkDir:  workDir,
		MaxSteps: maxSteps,
		NextStep: latest + 1,
		Resumed:  true,
		store:    store,
	}, nil
}

// Store returns the checkpoint store backing the session.
func (s *Session) Store() *checkpoint.Store {
	return s.store
}

// Steps returns the number of persisted steps.
func (s *Session) Steps() int {
	return s.NextStep - 1
}

// save persists one step under NextStep and advances the counter.
func (s *Session) save(action string, status checkpoint.Status, exitCode int, output string) error {
	rec := checkpoint.Record{
		Step:     s.NextStep,
		WorkDir:  s.WorkDir,
		Action:   action,
		Status:   status,
		ExitCode: exitCode,
	}
	if err := s.store.Save(rec, output); err != nil {
		return fmt.Errorf("failed to persist step %d: %w", s.NextStep, err)
	}
	s.NextStep++
	return nil
}
