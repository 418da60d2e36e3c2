package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atinylittleshell/nlsh/internal/bash"
	"github.com/atinylittleshell/nlsh/internal/checkpoint"
	"github.com/atinylittleshell/nlsh/internal/confirm"
	"github.com/atinylittleshell/nlsh/internal/history"
	"github.com/atinylittleshell/nlsh/internal/render"
	"github.com/atinylittleshell/nlsh/internal/risk"
	"github.com/atinylittleshell/nlsh/internal/tools"
	"go.uber.org/zap"
)

const (
	exitSyntaxError = 2
	exitTimeout     = 124
	exitInterrupted = 130
)

// CommandRunner executes a raw shell command in dir and returns its combined
// output. A cancelled ctx must surface as ctx.Err().
type CommandRunner func(ctx context.Context, dir, command string, timeout time.Duration) (*bash.ExecResult, error)

// RunShellCommand runs command through a PTY, turning a per-command timeout
// into an ordinary failed result.
func RunShellCommand(ctx context.Context, dir, command string, timeout time.Duration) (*bash.ExecResult, error) {
	if timeout <= 0 {
		timeout = bash.DefaultExecTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := bash.ExecuteCommand(runCtx, dir, command, nil)
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
		return &bash.ExecResult{
			Output:   fmt.Sprintf("command timed out after %s", timeout),
			ExitCode: exitTimeout,
		}, nil
	}
	return result, err
}

// Confirmer asks the operator to approve actions.
// A cancelled ctx must end a waiting prompt.
type Confirmer interface {
	ConfirmRisky(ctx context.Context, action string) confirm.Decision
	ConfirmSafe(ctx context.Context, action string) confirm.Decision
	ConfirmContinue(ctx context.Context, total int) bool
}

// CommandRecorder indexes executed commands, e.g. a history.HistoryManager.
type CommandRecorder interface {
	StartCommand(command, directory, source, sessionID string, step int) (*history.HistoryEntry, error)
	FinishCommand(entry *history.HistoryEntry, exitCode int) (*history.HistoryEntry, error)
}

// StepResult is the persisted outcome of one executed or declined step.
type StepResult struct {
	Step     int
	Status   checkpoint.Status
	ExitCode int
	Output   string
}

// Aborted reports whether the operator ended the session at this step.
func (r *StepResult) Aborted() bool {
	return r.Status == checkpoint.StatusAborted
}

// Executor applies the confirmation policy to one action, runs it and
// persists the outcome before returning.
type Executor struct {
	session    *Session
	dispatcher *tools.Dispatcher
	confirmer  Confirmer
	renderer   *render.Renderer
	runner     CommandRunner
	recorder   CommandRecorder
	timeout    time.Duration
	logger     *zap.Logger
}

// Execute handles RunCommand and ToolCall actions.
func (e *Executor) Execute(ctx context.Context, action Action, batchStep int) (*StepResult, error) {
	switch a := action.(type) {
	case RunCommand:
		return e.executeCommand(ctx, a, batchStep)
	case ToolCall:
		return e.executeTool(ctx, a, batchStep)
	default:
		return nil, fmt.Errorf("executor cannot run %T", action)
	}
}

func (e *Executor) executeCommand(ctx context.Context, a RunCommand, batchStep int) (*StepResult, error) {
	e.renderer.StepHeader(e.session.NextStep, batchStep, e.session.MaxSteps, a.Command, false)

	if err := bash.CheckSyntax(a.Command); err != nil {
		output := fmt.Sprintf("error: %v", err)
		e.renderer.Output(output)
		return e.finish(a, checkpoint.StatusError, exitSyntaxError, output)
	}

	if decision := e.gateCommand(ctx, a.Command); decision != confirm.Approved {
		return e.decline(ctx, a, decision)
	}

	var entry *history.HistoryEntry
	if e.recorder != nil {
		var err error
		entry, err = e.recorder.StartCommand(a.Command, e.session.WorkDir, history.SourceAgent, e.session.ID, e.session.NextStep)
		if err != nil {
			e.logger.Warn("failed to record command in history", zap.Error(err))
		}
	}

	start := time.Now()
	result, err := e.runner(ctx, e.session.WorkDir, a.Command, e.timeout)
	if ctx.Err() != nil {
		// Interrupted steps are not persisted and will be proposed again on resume.
		e.finishHistory(entry, exitInterrupted)
		return nil, ctx.Err()
	}
	if err != nil {
		e.logger.Error("command failed to start", zap.String("command", a.Command), zap.Error(err))
		result = &bash.ExecResult{Output: fmt.Sprintf("error: %v", err), ExitCode: 1}
	}
	e.finishHistory(entry, result.ExitCode)

	e.logger.Info("command executed",
		zap.String("session", e.session.ID),
		zap.Int("step", e.session.NextStep),
		zap.String("command", a.Command),
		zap.Int("exitCode", result.ExitCode),
		zap.Duration("duration", time.Since(start)))

	e.renderer.Output(result.Output)
	return e.finish(a, checkpoint.StatusForExit(result.ExitCode), result.ExitCode, result.Output)
}

func (e *Executor) executeTool(ctx context.Context, a ToolCall, batchStep int) (*StepResult, error) {
	e.renderer.StepHeader(e.session.NextStep, batchStep, e.session.MaxSteps, a.String(), true)

	if a.Err != nil {
		output := fmt.Sprintf("error: %v", a.Err)
		e.renderer.Output(output)
		return e.finish(a, checkpoint.StatusError, exitSyntaxError, output)
	}

	if e.session.Mode == ModeSafe {
		if decision := e.confirmer.ConfirmSafe(ctx, a.String()); decision != confirm.Approved {
			return e.decline(ctx, a, decision)
		}
	}

	result := e.dispatcher.Run(ctx, a.Call)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	e.renderer.Output(result.Output)
	return e.finish(a, checkpoint.StatusForExit(result.ExitCode), result.ExitCode, result.Output)
}

// gateCommand applies the confirmation policy. Risky commands always need the
// strict token, whatever the mode.
func (e *Executor) gateCommand(ctx context.Context, command string) confirm.Decision {
	if rule, risky := risk.Match(command); risky {
		e.logger.Info("risky command proposed", zap.String("command", command), zap.String("rule", rule))
		e.renderer.RiskWarning(rule)
		return e.confirmer.ConfirmRisky(ctx, command)
	}
	if e.session.Mode == ModeSafe {
		return e.confirmer.ConfirmSafe(ctx, command)
	}
	return confirm.Approved
}

// decline persists a skipped or aborted step. A prompt ended by
// cancellation is an interruption and is not persisted.
func (e *Executor) decline(ctx context.Context, a Action, decision confirm.Decision) (*StepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if decision == confirm.Skipped {
		return e.finish(a, checkpoint.StatusSkipped, 0, "")
	}
	return e.finish(a, checkpoint.StatusAborted, 0, "")
}

func (e *Executor) finish(a Action, status checkpoint.Status, exitCode int, output string) (*StepResult, error) {
	step := e.session.NextStep
	if err := e.session.save(a.String(), status, exitCode, output); err != nil {
		return nil, err
	}
	e.renderer.StepResult(string(status), exitCode)
	return &StepResult{Step: step, Status: status, ExitCode: exitCode, Output: output}, nil
}

func (e *Executor) finishHistory(entry *history.HistoryEntry, exitCode int) {
	if entry == nil || e.recorder == nil {
		return
	}
	if _, err := e.recorder.FinishCommand(entry, exitCode); err != nil {
		e.logger.Warn("failed to update command history", zap.Error(err))
	}
}
