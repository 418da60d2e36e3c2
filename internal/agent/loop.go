package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinylittleshell/nlsh/internal/checkpoint"
	"github.com/atinylittleshell/nlsh/internal/oracle"
	"github.com/atinylittleshell/nlsh/internal/render"
	"github.com/atinylittleshell/nlsh/internal/tools"
	"go.uber.org/zap"
)

// MaxEmptyReplies is how many consecutive replies without an action are
// tolerated before the session pauses.
const MaxEmptyReplies = 3

// State is a state of the agent loop.
type State int

const (
	StateInit State = iota
	StateRunning
	StateCompleted
	StateFailed
	StatePaused
	StateStepLimitReached
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StatePaused:
		return "paused"
	case StateStepLimitReached:
		return "step limit reached"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Outcome is how a run of the loop ended.
type Outcome struct {
	State   State
	Summary string // DONE summary or FAILED reason
	Steps   int    // persisted steps in the whole session
}

// Options wires the loop's collaborators.
type Options struct {
	Model      oracle.Model
	Dispatcher *tools.Dispatcher
	Confirmer  Confirmer
	Renderer   *render.Renderer

	// Runner defaults to RunShellCommand.
	Runner CommandRunner
	// Recorder is optional.
	Recorder       CommandRecorder
	CommandTimeout time.Duration

	HistorySteps       int
	HistoryOutputLines int

	Logger *zap.Logger
}

// Loop drives one session from its current step until it completes, fails
// or pauses.
type Loop struct {
	session  *Session
	model    oracle.Model
	catalog  []string
	executor *Executor
	confirm  Confirmer
	renderer *render.Renderer
	logger   *zap.Logger

	historySteps       int
	historyOutputLines int

	state State
}

func NewLoop(session *Session, opts Options) *Loop {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	runner := opts.Runner
	if runner == nil {
		runner = RunShellCommand
	}
	historySteps := opts.HistorySteps
	if historySteps <= 0 {
		historySteps = 8
	}

	logger = logger.With(zap.String("session", session.ID))

	return &Loop{
		session:  session,
		model:    opts.Model,
		catalog:  append([]string{}, opts.Dispatcher.Catalog()...),
		confirm:  opts.Confirmer,
		renderer: opts.Renderer,
		logger:   logger,
		executor: &Executor{
			session:    session,
			dispatcher: opts.Dispatcher,
			confirmer:  opts.Confirmer,
			renderer:   opts.Renderer,
			runner:     runner,
			recorder:   opts.Recorder,
			timeout:    opts.CommandTimeout,
			logger:     logger,
		},
		historySteps:       historySteps,
		historyOutputLines: opts.HistoryOutputLines,
		state:              StateInit,
	}
}

// State returns the current state of the loop.
func (l *Loop) State() State {
	return l.state
}

// Run executes steps until a terminal state. Oracle and interruption errors
// end the run in StatePaused and are returned alongside the outcome.
func (l *Loop) Run(ctx context.Context) (*Outcome, error) {
	l.state = StateRunning
	l.renderer.SessionBanner(l.session.Goal, string(l.session.Mode), l.session.NextStep, l.session.Resumed)
	l.logger.Info("agent session running",
		zap.String("goal", l.session.Goal),
		zap.String("mode", string(l.session.Mode)),
		zap.Int("nextStep", l.session.NextStep))

	system := SystemPrompt(l.catalog)
	batch := 0
	empty := 0

	for {
		if err := ctx.Err(); err != nil {
			return l.pause(), fmt.Errorf("agent interrupted: %w", err)
		}

		if batch >= l.session.MaxSteps {
			l.state = StateStepLimitReached
			l.renderer.Message("reached the limit of %d steps for this batch", l.session.MaxSteps)
			if !l.confirm.ConfirmContinue(ctx, l.session.Steps()) {
				if err := ctx.Err(); err != nil {
					return l.pause(), fmt.Errorf("agent interrupted: %w", err)
				}
				return l.pause(), nil
			}
			l.state = StateRunning
			batch = 0
		}

		digest, err := l.session.Store().History(l.historySteps, l.historyOutputLines)
		if err != nil {
			return l.pause(), err
		}

		stop := l.renderer.Wait(ctx, "thinking")
		reply, err := l.model.Complete(ctx, oracle.Request{
			System: system,
			User:   UserPrompt(l.session, batch+1, digest),
		})
		stop()
		if err != nil {
			if ctx.Err() != nil {
				return l.pause(), fmt.Errorf("agent interrupted: %w", ctx.Err())
			}
			l.logger.Error("oracle query failed", zap.Error(err))
			l.renderer.Error("model query failed: %v", err)
			return l.pause(), fmt.Errorf("oracle query failed: %w", err)
		}

		action, err := ParseReply(reply)
		if errors.Is(err, ErrOracleUnparseable) {
			empty++
			l.logger.Warn("empty model reply", zap.Int("consecutive", empty), zap.String("reply", reply))
			l.renderer.Message("no response")
			if empty >= MaxEmptyReplies {
				return l.pause(), nil
			}
			continue
		}
		empty = 0

		switch a := action.(type) {
		case Done:
			if err := l.session.save(a.String(), checkpoint.StatusDone, 0, a.Summary); err != nil {
				return l.pause(), err
			}
			l.state = StateCompleted
			l.renderer.Completed(a.Summary, l.session.Steps())
			l.logger.Info("agent session completed", zap.String("summary", a.Summary))
			return l.outcome(a.Summary), nil

		case Failed:
			if err := l.session.save(a.String(), checkpoint.StatusFailed, 0, a.Reason); err != nil {
				return l.pause(), err
			}
			l.state = StateFailed
			l.renderer.Failed(a.Reason)
			l.logger.Info("agent session failed", zap.String("reason", a.Reason))
			return l.outcome(a.Reason), nil

		default:
			result, err := l.executor.Execute(ctx, action, batch+1)
			if err != nil {
				if ctx.Err() != nil {
					return l.pause(), fmt.Errorf("agent interrupted: %w", err)
				}
				return l.pause(), err
			}
			batch++
			if result.Aborted() {
				l.logger.Info("operator aborted the session", zap.Int("step", result.Step))
				return l.pause(), nil
			}
		}
	}
}

func (l *Loop) pause() *Outcome {
	l.state = StatePaused
	l.renderer.Paused(l.session.NextStep)
	return l.outcome("")
}

func (l *Loop) outcome(summary string) *Outcome {
	return &Outcome{State: l.state, Summary: summary, Steps: l.session.Steps()}
}
