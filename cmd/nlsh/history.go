package main

import (
	"fmt"

	"github.com/atinylittleshell/nlsh/internal/core"
	"github.com/atinylittleshell/nlsh/internal/history"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit     int
		sessionID string
		search    string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List commands run by the agent and by suggest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			historyManager, err := history.NewHistoryManager(core.HistoryFile())
			if err != nil {
				return fmt.Errorf("failed to open command history: %w", err)
			}
			defer historyManager.Close()

			var entries []history.HistoryEntry
			switch {
			case sessionID != "":
				entries, err = historyManager.GetSessionEntries(sessionID)
			case search != "":
				entries, err = historyManager.SearchHistory(search, limit)
			default:
				entries, err = historyManager.GetRecentEntries("", limit)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "no commands recorded")
				return nil
			}
			for _, entry := range entries {
				exit := "-"
				if entry.ExitCode.Valid {
					exit = fmt.Sprintf("%d", entry.ExitCode.Int32)
				}
				fmt.Fprintf(out, "%-14s %-4s %-8s %s\n", humanize.Time(entry.CreatedAt), exit, entry.Source, entry.Command)
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().StringVar(&sessionID, "session", "", "only show commands of this agent session")
	cmd.Flags().StringVar(&search, "search", "", "only show commands containing this text")
	return cmd
}
