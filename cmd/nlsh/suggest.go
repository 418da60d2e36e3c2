package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/atinylittleshell/nlsh/internal/agent"
	"github.com/atinylittleshell/nlsh/internal/bash"
	"github.com/atinylittleshell/nlsh/internal/confirm"
	"github.com/atinylittleshell/nlsh/internal/core"
	"github.com/atinylittleshell/nlsh/internal/history"
	"github.com/atinylittleshell/nlsh/internal/oracle"
	"github.com/atinylittleshell/nlsh/internal/render"
	"github.com/atinylittleshell/nlsh/internal/risk"
	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const suggestSystemPrompt = `You translate a natural-language request into a single shell command.
Reply with exactly one line: the command to run in bash. No explanations, no markdown.`

// writeClipboard is a variable that can be overridden for testing.
var writeClipboard = clipboard.WriteAll

func newSuggestCmd(a *app) *cobra.Command {
	var (
		run      bool
		copyFlag bool
	)

	cmd := &cobra.Command{
		Use:   "suggest <request>",
		Short: "Suggest a single shell command for a request",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			request := strings.TrimSpace(strings.Join(args, " "))
			if request == "" {
				return errors.New("a request is required")
			}

			workDir, err := workingDir()
			if err != nil {
				return err
			}

			model, err := a.newModel(a.cfg.Model, a.logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			render.ConfigureColor(out)
			renderer := render.New(out, a.cfg.Agent.DisplayLines)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			wait := renderer.Wait(ctx, "thinking")
			reply, err := model.Complete(ctx, oracle.Request{
				System: suggestSystemPrompt,
				User:   fmt.Sprintf("Working directory: %s\nRequest: %s", workDir, request),
			})
			wait()
			if err != nil {
				return err
			}

			action, err := agent.ParseReply(reply)
			if err != nil {
				return fmt.Errorf("no command suggested: %w", err)
			}
			suggestion, ok := action.(agent.RunCommand)
			if !ok {
				return fmt.Errorf("model replied with %q instead of a command", action.String())
			}
			command := suggestion.Command

			fmt.Fprintln(out, render.HeaderStyle.Render(command))
			rule, risky := risk.Match(command)
			if risky {
				renderer.RiskWarning(rule)
			}

			if copyFlag {
				if err := writeClipboard(command); err != nil {
					renderer.Error("failed to copy to clipboard: %v", err)
				} else {
					renderer.Message("copied to clipboard")
				}
			}

			if !run {
				return nil
			}

			prompter := confirm.NewPrompter(cmd.InOrStdin(), out)
			var decision confirm.Decision
			if risky {
				decision = prompter.ConfirmRisky(ctx, command)
			} else {
				decision = prompter.ConfirmSafe(ctx, command)
			}
			if decision != confirm.Approved {
				renderer.Message("not running: %s", decision)
				return nil
			}

			return a.runSuggestion(cmd, workDir, command)
		},
	}

	cmd.Flags().BoolVar(&run, "run", false, "offer to run the suggested command")
	cmd.Flags().BoolVar(&copyFlag, "copy", false, "copy the suggested command to the clipboard")
	return cmd
}

func (a *app) runSuggestion(cmd *cobra.Command, workDir, command string) error {
	var entry *history.HistoryEntry
	historyManager, err := history.NewHistoryManager(core.HistoryFile())
	if err != nil {
		a.logger.Warn("command history unavailable", zap.Error(err))
	} else {
		defer historyManager.Close()
		entry, err = historyManager.StartCommand(command, workDir, history.SourceSuggest, "", 0)
		if err != nil {
			a.logger.Warn("failed to record command in history", zap.Error(err))
		}
	}

	exitCode, err := bash.RunInteractive(cmd.Context(), workDir, command, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())

	if entry != nil {
		if _, ferr := historyManager.FinishCommand(entry, exitCode); ferr != nil {
			a.logger.Warn("failed to update command history", zap.Error(ferr))
		}
	}

	a.logger.Info("suggested command executed", zap.String("command", command), zap.Int("exitCode", exitCode))
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("command exited with status %d", exitCode)
	}
	return nil
}
