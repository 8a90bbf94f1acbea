package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovetools/tracker/cli"
	"github.com/grovetools/tracker/errors"
	"github.com/grovetools/tracker/internal/tracker"
	"github.com/grovetools/tracker/logging"
	"github.com/grovetools/tracker/state"
	"github.com/grovetools/tracker/util/pathutil"
)

const promptTimeout = 300 * time.Millisecond

// NewStartCmd returns the start command.
func NewStartCmd() *cobra.Command {
	var (
		opts     tracker.StartOptions
		interval time.Duration
	)

	cmd := cli.NewStandardCommand("start <task-id>", "Start tracking a task")
	cmd.Long = `Start tracking a task in the running daemon.

The session captures a screenshot immediately and then every interval,
records keyboard and mouse activity, and diffs the repository between
captures when --repo is given.`
	cmd.Example = `  tracker start TASK-42 --name "Fix login"
  tracker start TASK-42 --repo . --interval 2m --tenant acme --project web`
	cmd.Args = cobra.ExactArgs(1)

	cmd.Flags().StringVar(&opts.Name, "name", "", "Human-readable task name")
	cmd.Flags().StringVar(&opts.TenantID, "tenant", "", "Tenant correlation id")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "Project correlation id")
	cmd.Flags().StringVar(&opts.SessionID, "session", "", "Session id (default: {task}-{startMillis})")
	cmd.Flags().StringVar(&opts.GitRepoPath, "repo", "", "Git repository to diff between screenshots")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Screenshot interval (default: configured snapshot_interval)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if opts.GitRepoPath != "" {
			expanded, err := pathutil.Expand(opts.GitRepoPath)
			if err != nil {
				return err
			}
			if opts.GitRepoPath, err = pathutil.CanonicalPath(expanded); err != nil {
				return err
			}
		}
		if interval > 0 {
			opts.SnapshotIntervalMs = interval.Milliseconds()
		}

		c, err := connect(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.Start(cmd.Context(), args[0], opts)
		if err != nil {
			return err
		}
		if err := state.Set(state.KeyLastTask, res.TaskID); err != nil {
			cli.GetLogger(cmd, "cli").WithError(err).Debug("Failed to remember last task")
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd.OutOrStdout(), res)
		}

		out := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
		out.Success(fmt.Sprintf("Tracking %s", res.TaskID))
		out.Field("Session", res.SessionID)
		out.Field("Interval", time.Duration(res.Config.SnapshotIntervalMs)*time.Millisecond)
		out.Field("Keyboard", res.Config.Keyboard)
		out.Field("Mouse", res.Config.Mouse)
		if res.Config.GitRepoPath != "" {
			out.Path("Repository", res.Config.GitRepoPath)
		}
		out.Field("Uploads", res.Config.Uploads)
		return nil
	}
	return cmd
}

// NewStopCmd returns the stop command.
func NewStopCmd() *cobra.Command {
	cmd := cli.NewStandardCommand("stop [task-id]", "Stop tracking a task and print its summary")
	cmd.Long = `Stop tracking a task and print its summary.
Without a task id the task most recently started from this machine is stopped.`
	cmd.Args = cobra.MaximumNArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		taskID, err := resolveTask(args)
		if err != nil {
			return err
		}
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		sum, err := c.Stop(cmd.Context(), taskID)
		if err != nil {
			return err
		}
		if last, _ := state.GetString(state.KeyLastTask); last == taskID {
			_ = state.Delete(state.KeyLastTask)
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd.OutOrStdout(), sum)
		}
		printSummary(logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout()), sum)
		return nil
	}
	return cmd
}

func printSummary(out *logging.PrettyLogger, sum *tracker.Summary) {
	out.Success(fmt.Sprintf("Stopped %s", sum.TaskID))
	if sum.TaskName != "" {
		out.Field("Name", sum.TaskName)
	}
	out.Field("Duration", sum.Duration().Round(time.Second))
	out.Field("Screenshots", sum.ScreenshotCount)
	out.Field("Keypresses", sum.KeyboardEventCount)
	out.Field("Mouse moves", sum.MouseEventCount)
	if sum.SummaryPath != "" {
		out.Path("Summary", sum.SummaryPath)
	}
	if sum.KeyboardWarning != "" {
		out.Warn(sum.KeyboardWarning)
	}
}

// NewStatusCmd returns the status command.
func NewStatusCmd() *cobra.Command {
	cmd := cli.NewStandardCommand("status [task-id]", "Show the live status of a tracked task")
	cmd.Args = cobra.MaximumNArgs(1)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		taskID, err := resolveTask(args)
		if err != nil {
			return err
		}
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		st, err := c.Status(cmd.Context(), taskID)
		if err != nil {
			return err
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd.OutOrStdout(), st)
		}

		out := logging.NewPrettyLogger().WithWriter(cmd.OutOrStdout())
		if !st.Active {
			out.Warn(fmt.Sprintf("%s is not being tracked", taskID))
			return nil
		}
		out.Success(fmt.Sprintf("Tracking %s", st.TaskID))
		if st.TaskName != "" {
			out.Field("Name", st.TaskName)
		}
		out.Field("Session", st.SessionID)
		out.Field("Elapsed", fmt.Sprintf("%.1f min", st.ElapsedMinutes))
		out.Field("Screenshots", st.Screenshots)
		out.Field("Keypresses", st.KeyboardEvents)
		out.Field("Mouse moves", st.MouseEvents)
		if st.LastScreenshot != "" {
			out.Path("Last capture", st.LastScreenshot)
		}
		if st.KeyboardWarning != "" {
			out.Warn(st.KeyboardWarning)
		}
		return nil
	}
	return cmd
}

// NewListCmd returns the list command.
func NewListCmd() *cobra.Command {
	cmd := cli.NewStandardCommand("list", "List active tracking sessions")
	cmd.Aliases = []string{"ls"}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		sessions, err := c.ListActive(cmd.Context())
		if err != nil {
			return err
		}
		if cli.GetOptions(cmd).JSONOutput {
			return printJSON(cmd.OutOrStdout(), sessions)
		}
		if len(sessions) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No active sessions")
			return nil
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-20s %-28s %-10s %s\n", "TASK", "NAME", "ELAPSED", "SCREENSHOTS")
		for _, s := range sessions {
			fmt.Fprintf(w, "%-20s %-28s %-10s %d\n",
				truncate(s.TaskID, 20), truncate(s.TaskName, 28),
				time.Since(s.StartTime).Round(time.Second), s.Screenshots)
		}
		return nil
	}
	return cmd
}

// promptStatus renders the active sessions for the shell prompt, e.g.
// "⏺ TASK-42 12m +1".
func promptStatus(cmd *cobra.Command) (string, error) {
	c, err := connect(cmd)
	if err != nil {
		return "", err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), promptTimeout)
	defer cancel()
	sessions, err := c.ListActive(ctx)
	if err != nil || len(sessions) == 0 {
		return "", err
	}
	// Newest session first in the prompt.
	s := sessions[len(sessions)-1]
	out := fmt.Sprintf("⏺ %s %dm", s.TaskID, int(time.Since(s.StartTime).Minutes()))
	if extra := len(sessions) - 1; extra > 0 {
		out += fmt.Sprintf(" +%d", extra)
	}
	return out, nil
}

// resolveTask returns the explicit task id, else the last started one.
func resolveTask(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	last, err := state.GetString(state.KeyLastTask)
	if err != nil {
		return "", err
	}
	if last == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "no task id given and no task was started from this machine")
	}
	return last, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
