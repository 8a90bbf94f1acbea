package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/tracker/cli"
	"github.com/grovetools/tracker/internal/history"
	"github.com/grovetools/tracker/pkg/paths"
)

// NewHistoryCmd lists completed sessions from the local history index.
func NewHistoryCmd() *cobra.Command {
	var (
		filter history.Filter
		since  time.Duration
		totals bool
	)

	cmd := cli.NewStandardCommand("history", "List completed tracking sessions")
	cmd.Long = `Lists completed sessions recorded by the daemon, newest first.
The history database is read directly; the daemon does not need to be running.`
	cmd.Example = `  tracker history --task TASK-42
  tracker history --since 168h --limit 20
  tracker history --totals`

	cmd.Flags().StringVar(&filter.TaskID, "task", "", "Only sessions of this task")
	cmd.Flags().IntVar(&filter.Limit, "limit", 50, "Maximum number of sessions (0 for all)")
	cmd.Flags().DurationVar(&since, "since", 0, "Only sessions that ended within this window")
	cmd.Flags().BoolVar(&totals, "totals", false, "Show tracked time per task instead")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(paths.HistoryDBPath())
		if err != nil {
			return err
		}
		defer store.Close()

		jsonOut := cli.GetOptions(cmd).JSONOutput
		w := cmd.OutOrStdout()

		if totals {
			rows, err := store.Totals(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(w, rows)
			}
			fmt.Fprintf(w, "%-24s %-9s %s\n", "TASK", "SESSIONS", "TRACKED")
			for _, t := range rows {
				fmt.Fprintf(w, "%-24s %-9d %s\n", truncate(t.TaskID, 24), t.Sessions, t.Duration.Round(time.Second))
			}
			return nil
		}

		if since > 0 {
			filter.Since = time.Now().Add(-since)
		}
		entries, err := store.List(cmd.Context(), filter)
		if err != nil {
			return err
		}
		if jsonOut {
			return printJSON(w, entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(w, "No recorded sessions")
			return nil
		}
		fmt.Fprintf(w, "%-20s %-24s %-17s %-10s %s\n", "TASK", "NAME", "ENDED", "DURATION", "SHOTS")
		for _, e := range entries {
			fmt.Fprintf(w, "%-20s %-24s %-17s %-10s %d\n",
				truncate(e.TaskID, 20), truncate(e.TaskName, 24),
				e.EndTime.Local().Format("2006-01-02 15:04"),
				e.Duration.Round(time.Second), e.Screenshots)
		}
		return nil
	}
	return cmd
}
