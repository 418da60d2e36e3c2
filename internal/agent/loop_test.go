package agent

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/atinylittleshell/nlsh/internal/bash"
	"github.com/atinylittleshell/nlsh/internal/checkpoint"
	"github.com/atinylittleshell/nlsh/internal/confirm"
	"github.com/atinylittleshell/nlsh/internal/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestLoop_DoneCompletesWithExactSummary(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "DONE: set up repo", "COMMAND: should never run")

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, "set up repo", outcome.Summary)
	assert.Equal(t, 1, outcome.Steps)
	assert.Len(t, h.model.requests, 1)
	assert.Empty(t, h.runner.commands)

	records := h.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, checkpoint.StatusDone, records[0].Status)
	assert.Equal(t, "DONE: set up repo", records[0].Action)
}

func TestLoop_FailedEndsSession(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "FAILED: repository is private")

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, outcome.State)
	assert.Equal(t, "repository is private", outcome.Summary)

	records := h.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, checkpoint.StatusFailed, records[0].Status)
}

func TestLoop_AutoModeRunsCommandsAndFeedsHistory(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "COMMAND: echo hi", "ls", "DONE: listed")
	h.runner.results["ls"] = &bash.ExecResult{Output: "no such dir\n", ExitCode: 2}

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, []string{"echo hi", "ls"}, h.runner.commands)
	assert.Empty(t, h.confirmer.safeSeen)

	records := h.records(t)
	require.Len(t, records, 3)
	assert.Equal(t, checkpoint.StatusOK, records[0].Status)
	assert.Equal(t, "ran echo hi\n", records[0].Output)
	assert.Equal(t, checkpoint.StatusError, records[1].Status)
	assert.Equal(t, 2, records[1].ExitCode)
	assert.Equal(t, "COMMAND: ls", records[1].Action)

	// The third query sees both earlier steps in its digest.
	require.Len(t, h.model.requests, 3)
	last := h.model.requests[2].User
	assert.Contains(t, last, "[1] (ok) COMMAND: echo hi")
	assert.Contains(t, last, "[2] (error) COMMAND: ls")
	assert.Contains(t, last, "Step: 3")
	assert.Contains(t, h.model.requests[0].User, "(no steps yet)")
	assert.Contains(t, h.model.requests[0].System, "TOOL:read_file")
}

func TestLoop_RecordsCommandHistory(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "COMMAND: make", "DONE: built")
	h.runner.results["make"] = &bash.ExecResult{ExitCode: 3}

	_, err := h.loop().Run(context.Background())
	require.NoError(t, err)

	require.Len(t, h.recorder.entries, 1)
	entry := h.recorder.entries[0]
	assert.Equal(t, "make", entry.Command)
	assert.Equal(t, history.SourceAgent, entry.Source)
	assert.Equal(t, h.session.ID, entry.SessionID)
	assert.Equal(t, 1, entry.Step)
	assert.Equal(t, int32(3), entry.ExitCode.Int32)
}

func TestLoop_RiskyCommandNeedsStrictToken(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "COMMAND: rm -rf build", "DONE: cleaned")
	h.confirmer.risky = []confirm.Decision{confirm.Approved}

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, []string{"rm -rf build"}, h.confirmer.riskySeen)
	assert.Equal(t, []string{"rm -rf build"}, h.runner.commands)
	assert.Contains(t, h.out.String(), "risky command (file deletion)")
}

func TestLoop_RiskyAbortPausesAndIsResumable(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "COMMAND: echo start", "sudo rm -rf /var/cache")

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePaused, outcome.State)
	assert.Equal(t, 2, outcome.Steps)
	assert.Equal(t, []string{"echo start"}, h.runner.commands)

	records := h.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, checkpoint.StatusAborted, records[1].Status)
	assert.Contains(t, h.out.String(), "continue from step 3")

	resumed, err := ResumeSession(h.session.Store(), h.workDir, 20)
	require.NoError(t, err)
	assert.Equal(t, 3, resumed.NextStep)

	h.session = resumed
	h.model.replies = []string{"DONE: gave up on cache"}
	outcome, err = h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, 3, outcome.Steps)
	assert.Contains(t, h.model.requests[len(h.model.requests)-1].User, "Step: 3")
}

func TestLoop_RiskySkipContinues(t *testing.T) {
	h := newHarness(t, ModeSafe, 20, "COMMAND: git push --force", "DONE: skipped push")
	h.confirmer.risky = []confirm.Decision{confirm.Skipped}

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Empty(t, h.runner.commands)
	// Risky commands use the strict prompt only, even in safe mode.
	assert.Empty(t, h.confirmer.safeSeen)

	records := h.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, checkpoint.StatusSkipped, records[0].Status)
}

func TestLoop_RiskyNeverRunsWithoutStrictApproval(t *testing.T) {
	commands := []string{
		"rm -rf build",
		"sudo apt-get install jq",
		"kubectl delete pod web-1",
		"terraform destroy -auto-approve",
		"find . -name '*.tmp' -delete",
		"docker system prune -a",
	}

	rapid.Check(t, func(rt *rapid.T) {
		command := rapid.SampledFrom(commands).Draw(rt, "command")
		mode := rapid.SampledFrom([]Mode{ModeAuto, ModeSafe}).Draw(rt, "mode")
		riskyAnswer := rapid.SampledFrom([]confirm.Decision{confirm.Approved, confirm.Skipped, confirm.Aborted}).Draw(rt, "riskyAnswer")

		h := newHarness(t, mode, 20, "COMMAND: "+command, "DONE: finished")
		h.confirmer.risky = []confirm.Decision{riskyAnswer}
		h.confirmer.safe = []confirm.Decision{confirm.Approved, confirm.Approved}

		if _, err := h.loop().Run(context.Background()); err != nil {
			rt.Fatalf("run: %v", err)
		}

		ran := len(h.runner.commands) > 0
		if ran != (riskyAnswer == confirm.Approved) {
			rt.Fatalf("command %q ran=%v with risky answer %v in %s mode", command, ran, riskyAnswer, mode)
		}
		if len(h.confirmer.riskySeen) != 1 {
			rt.Fatalf("expected one strict prompt, got %d", len(h.confirmer.riskySeen))
		}
	})
}

func TestLoop_SafeModePrompts(t *testing.T) {
	h := newHarness(t, ModeSafe, 20, "COMMAND: ls", "COMMAND: pwd", "COMMAND: whoami")
	h.confirmer.safe = []confirm.Decision{confirm.Approved, confirm.Skipped, confirm.Aborted}

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePaused, outcome.State)
	assert.Equal(t, []string{"ls"}, h.runner.commands)
	assert.Equal(t, []string{"ls", "pwd", "whoami"}, h.confirmer.safeSeen)

	records := h.records(t)
	require.Len(t, records, 3)
	assert.Equal(t, checkpoint.StatusOK, records[0].Status)
	assert.Equal(t, checkpoint.StatusSkipped, records[1].Status)
	assert.Equal(t, checkpoint.StatusAborted, records[2].Status)
}

func TestLoop_ToolReadMissingFileIsErrorStep(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "TOOL:read_file(/no/such/path)", "DONE: checked")

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)

	records := h.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, checkpoint.StatusError, records[0].Status)
	assert.NotZero(t, records[0].ExitCode)
	assert.Contains(t, records[0].Output, "file not found: /no/such/path")
	assert.Contains(t, h.model.requests[1].User, "file not found")
}

func TestLoop_ToolSearchDefaultsToWorkDir(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "TOOL:search(needle,)", "DONE: found")
	require.NoError(t, os.WriteFile(filepath.Join(h.workDir, "notes.txt"), []byte("hay\nneedle\n"), 0o644))

	_, err := h.loop().Run(context.Background())
	require.NoError(t, err)

	records := h.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, checkpoint.StatusOK, records[0].Status)
	assert.Contains(t, records[0].Output, "notes.txt:2:needle")
}

func TestLoop_SafeModeToolSkipDoesNotRun(t *testing.T) {
	h := newHarness(t, ModeSafe, 20, "TOOL:write_file(out.txt, hello)", "DONE: skipped")
	h.confirmer.safe = []confirm.Decision{confirm.Skipped}

	_, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(h.workDir, "out.txt"))
	assert.Equal(t, checkpoint.StatusSkipped, h.records(t)[0].Status)
}

func TestLoop_AutoModeToolRunsWithoutPrompt(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "TOOL:write_file(out.txt, hello, world)", "DONE: written")

	_, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.confirmer.safeSeen)

	data, err := os.ReadFile(filepath.Join(h.workDir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello, world", string(data))
}

func TestLoop_MalformedToolIsErrorStep(t *testing.T) {
	h := newHarness(t, ModeSafe, 20, "TOOL:read_file", "DONE: done")

	_, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.confirmer.safeSeen)

	records := h.records(t)
	require.Len(t, records, 2)
	assert.Equal(t, checkpoint.StatusError, records[0].Status)
	assert.Contains(t, records[0].Output, "invalid")
}

func TestLoop_SyntaxErrorIsNotRun(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "COMMAND: echo 'unterminated", "DONE: done")

	_, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.runner.commands)
	assert.Equal(t, checkpoint.StatusError, h.records(t)[0].Status)
}

func TestLoop_EmptyReplyWritesNoCheckpoint(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "", "<think>pondering</think>", "```\n```")

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePaused, outcome.State)
	assert.Equal(t, 0, outcome.Steps)
	assert.Empty(t, h.records(t))
	assert.Len(t, h.model.requests, MaxEmptyReplies)
	assert.Equal(t, MaxEmptyReplies, strings.Count(h.out.String(), "no response"))
}

func TestLoop_EmptyReplyCountResets(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "", "", "COMMAND: true", "", "", "DONE: ok")

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, 2, outcome.Steps)
}

func TestLoop_StepLimitContinue(t *testing.T) {
	h := newHarness(t, ModeAuto, 2, "COMMAND: a", "COMMAND: b", "COMMAND: c", "DONE: all")
	h.confirmer.cont = []bool{true}

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateCompleted, outcome.State)
	assert.Equal(t, 4, outcome.Steps)
	assert.Equal(t, []int{2}, h.confirmer.contSeen)
	assert.Contains(t, h.model.requests[2].User, "Step: 3 (1 of 2 in this batch)")
}

func TestLoop_StepLimitDeclinePauses(t *testing.T) {
	h := newHarness(t, ModeAuto, 2, "COMMAND: a", "COMMAND: b", "COMMAND: c")

	outcome, err := h.loop().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatePaused, outcome.State)
	assert.Equal(t, 2, outcome.Steps)
	assert.Len(t, h.model.requests, 2)
	assert.Equal(t, []string{"a", "b"}, h.runner.commands)
}

func TestLoop_OracleErrorPauses(t *testing.T) {
	h := newHarness(t, ModeAuto, 20)
	sentinel := errors.New("connection refused")
	h.model.err = sentinel

	l := h.loop()
	outcome, err := l.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, StatePaused, outcome.State)
	assert.Equal(t, StatePaused, l.State())
	assert.Empty(t, h.records(t))
}

func TestLoop_InterruptedStepIsNotPersisted(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "COMMAND: echo one", "COMMAND: sleep 100")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.runner.hook = func(ctx context.Context, command string) error {
		if command == "sleep 100" {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	outcome, err := h.loop().Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatePaused, outcome.State)
	assert.Equal(t, 1, outcome.Steps)

	latest, err := h.session.Store().LatestCompletedStep()
	require.NoError(t, err)
	assert.Equal(t, 1, latest)

	require.Len(t, h.recorder.entries, 2)
	assert.Equal(t, int32(exitInterrupted), h.recorder.entries[1].ExitCode.Int32)
}

func TestLoop_InterruptedPromptIsNotPersisted(t *testing.T) {
	h := newHarness(t, ModeAuto, 20, "COMMAND: echo one", "COMMAND: rm -rf build")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.confirmer.onPrompt = cancel

	outcome, err := h.loop().Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatePaused, outcome.State)
	assert.Equal(t, 1, outcome.Steps)
	assert.Equal(t, []string{"echo one"}, h.runner.commands)
	assert.Equal(t, []string{"rm -rf build"}, h.confirmer.riskySeen)

	records := h.records(t)
	require.Len(t, records, 1)
	assert.Equal(t, "COMMAND: echo one", records[0].Action)
}

func TestLoop_InterruptedContinuePromptReturnsError(t *testing.T) {
	h := newHarness(t, ModeAuto, 1, "COMMAND: a", "COMMAND: b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.confirmer.onPrompt = cancel

	outcome, err := h.loop().Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatePaused, outcome.State)
	assert.Equal(t, 1, outcome.Steps)
	assert.Equal(t, []int{1}, h.confirmer.contSeen)
}

func TestLoop_CheckpointsAreContiguous(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		replies := rapid.SliceOfN(rapid.SampledFrom([]string{
			"COMMAND: true",
			"TOOL:list_dir()",
			"TOOL:nope(x)",
			"",
			"git push --force",
		}), 0, 12).Draw(rt, "replies")
		replies = append(replies, "DONE: finished")

		h := newHarness(t, ModeAuto, 100, replies...)
		h.confirmer.risky = []confirm.Decision{confirm.Skipped, confirm.Skipped, confirm.Skipped, confirm.Skipped,
			confirm.Skipped, confirm.Skipped, confirm.Skipped, confirm.Skipped, confirm.Skipped, confirm.Skipped,
			confirm.Skipped, confirm.Skipped}

		outcome, err := h.loop().Run(context.Background())
		if err != nil {
			rt.Fatalf("run: %v", err)
		}

		records := h.records(t)
		for i, rec := range records {
			if rec.Step != i+1 {
				rt.Fatalf("record %d has step %d", i, rec.Step)
			}
		}
		if outcome.Steps != len(records) {
			rt.Fatalf("outcome reports %d steps, store has %d", outcome.Steps, len(records))
		}
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "paused", StatePaused.String())
	assert.Equal(t, "step limit reached", StateStepLimitReached.String())
}
