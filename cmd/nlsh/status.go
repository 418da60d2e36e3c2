package main

import (
	"errors"
	"fmt"

	"github.com/atinylittleshell/nlsh/internal/checkpoint"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the persisted agent session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store := checkpoint.NewStore(sessionDir(a.cfg))

			meta, err := store.ReadSession()
			if err != nil {
				if errors.Is(err, checkpoint.ErrNoSession) {
					fmt.Fprintln(cmd.OutOrStdout(), "no agent session")
					return nil
				}
				return err
			}

			latest, err := store.LatestCompletedStep()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Goal: %s\n", meta.Goal)
			fmt.Fprintf(out, "Mode: %s\n", meta.Mode)
			fmt.Fprintf(out, "Session: %s\n", meta.ID)
			fmt.Fprintf(out, "Steps: %d\n", latest)

			if latest == 0 {
				return nil
			}

			last, err := store.Load(latest)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Last step: %s (%s)\n", last.Status, humanize.Time(last.Timestamp))

			digest, err := store.History(a.cfg.Agent.HistorySteps, a.cfg.Agent.HistoryOutputLines)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%s\n", digest)
			return nil
		},
	}
}
