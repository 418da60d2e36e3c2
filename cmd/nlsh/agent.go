package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atinylittleshell/nlsh/internal/agent"
	"github.com/atinylittleshell/nlsh/internal/checkpoint"
	"github.com/atinylittleshell/nlsh/internal/confirm"
	"github.com/atinylittleshell/nlsh/internal/core"
	"github.com/atinylittleshell/nlsh/internal/history"
	"github.com/atinylittleshell/nlsh/internal/render"
	"github.com/atinylittleshell/nlsh/internal/tools"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newAgentCmd(a *app) *cobra.Command {
	var (
		resume   bool
		mode     string
		maxSteps int
	)

	cmd := &cobra.Command{
		Use:   "agent [goal]",
		Short: "Work toward a goal step by step, checkpointing every step",
		Long: `Start an autonomous agent session for the given goal, or resume the
previous session with --resume. Every step is checkpointed so an aborted or
interrupted session can be picked up where it stopped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			goal := strings.TrimSpace(strings.Join(args, " "))
			if resume && goal != "" {
				return errors.New("--resume continues the persisted goal; do not pass a new one")
			}
			if !resume && goal == "" {
				return errors.New("a goal is required (or use --resume)")
			}

			if maxSteps <= 0 {
				maxSteps = a.cfg.Agent.MaxSteps
			}
			if mode == "" {
				mode = a.cfg.Agent.Mode
			}
			sessionMode, err := agent.ParseMode(mode)
			if err != nil {
				return err
			}

			workDir, err := workingDir()
			if err != nil {
				return err
			}

			store := checkpoint.NewStore(sessionDir(a.cfg))
			var session *agent.Session
			if resume {
				session, err = agent.ResumeSession(store, workDir, maxSteps)
			} else {
				session, err = agent.NewSession(store, goal, sessionMode, workDir, maxSteps)
			}
			if err != nil {
				return err
			}

			return a.runAgent(cmd, session)
		},
	}

	cmd.Flags().BoolVar(&resume, "resume", false, "resume the persisted session")
	cmd.Flags().StringVar(&mode, "mode", "", "confirmation mode: auto or safe (default from config)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "steps per batch before asking to continue (default from config)")
	return cmd
}

func (a *app) runAgent(cmd *cobra.Command, session *agent.Session) error {
	logger := a.logger.With(zap.String("session", session.ID))

	model, err := a.newModel(a.cfg.Model, logger)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	render.ConfigureColor(out)
	renderer := render.New(out, a.cfg.Agent.DisplayLines)

	dispatcherOpts := []tools.Option{tools.WithLogger(logger)}
	if a.cfg.Tools.WebFetch {
		dispatcherOpts = append(dispatcherOpts, tools.WithFetcher(tools.NewHTTPFetcher(a.cfg.Tools.WebFetchTimeout)))
	}

	opts := agent.Options{
		Model:              model,
		Dispatcher:         tools.NewDispatcher(session.WorkDir, dispatcherOpts...),
		Confirmer:          confirm.NewPrompter(cmd.InOrStdin(), out),
		Renderer:           renderer,
		Runner:             a.runner,
		CommandTimeout:     a.cfg.Agent.CommandTimeout,
		HistorySteps:       a.cfg.Agent.HistorySteps,
		HistoryOutputLines: a.cfg.Agent.HistoryOutputLines,
		Logger:             logger,
	}

	historyManager, err := history.NewHistoryManager(core.HistoryFile())
	if err != nil {
		logger.Warn("command history unavailable", zap.Error(err))
	} else {
		defer historyManager.Close()
		opts.Recorder = historyManager
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outcome, err := agent.NewLoop(session, opts).Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			renderer.Message("interrupted; the last checkpoint is step %d", outcome.Steps)
			return nil
		}
		return err
	}

	logger.Info("agent run finished", zap.Stringer("state", outcome.State), zap.Int("steps", outcome.Steps))
	if outcome.State == agent.StateFailed {
		return errSilent
	}
	return nil
}
